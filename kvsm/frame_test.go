package kvsm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/finwo/kvsm/storage"
)

func TestWriteFrameThenReadHeaderRoundTrip(t *testing.T) {
	f := storage.NewMemFiler()
	records := []Record{{Key: []byte("hello"), Value: []byte("world")}}

	require.NoError(t, writeFrame(f, 0, 0, 1, records))

	h, err := readFrameHeader(f, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, h.predecessor)
	require.EqualValues(t, 1, h.generation)
}

func TestIterateRecordsFindsKey(t *testing.T) {
	f := storage.NewMemFiler()
	records := []Record{
		{Key: []byte("alpha"), Value: []byte("1")},
		{Key: []byte("beta"), Value: []byte("2")},
	}
	require.NoError(t, writeFrame(f, 0, 0, 1, records))

	var found []string
	err := iterateRecords(f, 0, func(key []byte, valueLen, valueOffset int64) (bool, error) {
		v, err := readValue(f, valueOffset, valueLen)
		require.NoError(t, err)
		found = append(found, string(key)+"="+string(v))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha=1", "beta=2"}, found)
}

func TestTombstoneHasZeroValueLen(t *testing.T) {
	f := storage.NewMemFiler()
	records := []Record{{Key: []byte("k"), Value: nil}}
	require.NoError(t, writeFrame(f, 0, 0, 1, records))

	var gotLen int64 = -1
	err := iterateRecords(f, 0, func(key []byte, valueLen, valueOffset int64) (bool, error) {
		gotLen = valueLen
		return true, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, gotLen)
}

func TestCursorRecordsMatchWhatWasWritten(t *testing.T) {
	s, err := OpenMem(Options{})
	require.NoError(t, err)
	want := []Record{{Key: []byte("alpha"), Value: []byte("1")}}
	require.NoError(t, s.Set(want[0].Key, want[0].Value))

	head, err := s.Head()
	require.NoError(t, err)
	got, err := head.Records()
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyPrefixEncodingSwitchesAt128(t *testing.T) {
	require.Equal(t, 1, keyPrefixLen(127))
	require.Equal(t, 2, keyPrefixLen(128))
	require.Equal(t, 2, keyPrefixLen(MaxKeyLen))
}

func TestLongKeyRoundTripsThroughPrefix(t *testing.T) {
	f := storage.NewMemFiler()
	key := make([]byte, 300)
	for i := range key {
		key[i] = byte(i)
	}
	records := []Record{{Key: key, Value: []byte("v")}}
	require.NoError(t, writeFrame(f, 0, 0, 1, records))

	var gotKey []byte
	err := iterateRecords(f, 0, func(k []byte, _, _ int64) (bool, error) {
		gotKey = append([]byte(nil), k...)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, key, gotKey)
}
