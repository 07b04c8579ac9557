package kvsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// collectPayloads walks src from root to head and serializes every frame
// in that order, the order a well-behaved replication feed would deliver
// them in.
func collectPayloads(t *testing.T, s *Store) [][]byte {
	t.Helper()
	var cursors []*Cursor
	cur, err := s.Head()
	require.NoError(t, err)
	for cur != nil {
		cursors = append(cursors, cur)
		cur, err = cur.Previous()
		require.NoError(t, err)
	}

	payloads := make([][]byte, len(cursors))
	for i, c := range cursors {
		p, err := c.Serialize()
		require.NoError(t, err)
		payloads[len(cursors)-1-i] = p // reverse: root first
	}
	return payloads
}

func TestSerializeIngestRoundTrip(t *testing.T) {
	src, err := OpenMem(Options{})
	require.NoError(t, err)
	require.NoError(t, src.Set([]byte("x"), []byte("1")))
	require.NoError(t, src.Set([]byte("y"), []byte("2")))

	payloads := collectPayloads(t, src)

	dst, err := OpenMem(Options{})
	require.NoError(t, err)
	for _, p := range payloads {
		require.NoError(t, dst.Ingest(p))
	}

	require.Equal(t, src.HeadGeneration(), dst.HeadGeneration())

	v, err := dst.Get([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))

	v, err = dst.Get([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
}

func TestIngestSameGenerationTwiceIsNoop(t *testing.T) {
	src, err := OpenMem(Options{})
	require.NoError(t, err)
	require.NoError(t, src.Set([]byte("x"), []byte("1")))
	payloads := collectPayloads(t, src)

	dst, err := OpenMem(Options{})
	require.NoError(t, err)
	require.NoError(t, dst.Ingest(payloads[0]))
	require.NoError(t, dst.Ingest(payloads[0]))

	require.Equal(t, []uint64{1}, chainGenerations(t, dst))
}

func TestIngestOutOfOrderStillConverges(t *testing.T) {
	src, err := OpenMem(Options{})
	require.NoError(t, err)
	require.NoError(t, src.Set([]byte("x"), []byte("1")))
	require.NoError(t, src.Set([]byte("y"), []byte("2")))
	require.NoError(t, src.Set([]byte("z"), []byte("3")))
	payloads := collectPayloads(t, src)

	dst, err := OpenMem(Options{})
	require.NoError(t, err)
	// deliver newest first, then backfill
	require.NoError(t, dst.Ingest(payloads[2]))
	require.NoError(t, dst.Ingest(payloads[0]))
	require.NoError(t, dst.Ingest(payloads[1]))

	require.Equal(t, src.HeadGeneration(), dst.HeadGeneration())
	require.Equal(t, []uint64{3, 2, 1}, chainGenerations(t, dst))

	for _, kv := range []struct{ k, v string }{{"x", "1"}, {"y", "2"}, {"z", "3"}} {
		got, err := dst.Get([]byte(kv.k))
		require.NoError(t, err)
		require.Equal(t, kv.v, string(got))
	}
}

func TestIngestTruncatedPayloadIsRejected(t *testing.T) {
	dst, err := OpenMem(Options{})
	require.NoError(t, err)
	require.ErrorIs(t, dst.Ingest([]byte{0x00, 0x01, 0x02}), ErrTruncatedIngest)
}
