package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemFilerReadWriteRoundTrip(t *testing.T) {
	f := NewMemFiler()

	_, err := f.WriteAt([]byte("hello"), 10)
	require.NoError(t, err)
	require.EqualValues(t, 15, f.Size())

	got := make([]byte, 5)
	n, err := f.ReadAt(got, 10)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(got))
}

func TestMemFilerReadPastEndIsEOF(t *testing.T) {
	f := NewMemFiler()
	_, err := f.WriteAt([]byte("ab"), 0)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 0)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 2, n)
}

func TestMemFilerSpansMultiplePages(t *testing.T) {
	f := NewMemFiler()
	big := make([]byte, pgSize*3+17)
	for i := range big {
		big[i] = byte(i)
	}

	_, err := f.WriteAt(big, 5)
	require.NoError(t, err)

	got := make([]byte, len(big))
	n, err := f.ReadAt(got, 5)
	require.NoError(t, err)
	require.Equal(t, len(big), n)
	require.Equal(t, big, got)
}

func TestMemFilerTruncate(t *testing.T) {
	f := NewMemFiler()
	_, err := f.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(4))
	require.EqualValues(t, 4, f.Size())

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "0123", string(buf[:n]))
}

func TestMemFilerPunchHoleReadsZero(t *testing.T) {
	f := NewMemFiler()
	filler := make([]byte, pgSize)
	for i := range filler {
		filler[i] = 1
	}
	_, err := f.WriteAt(filler, 0)
	require.NoError(t, err)

	require.NoError(t, f.PunchHole(0, pgSize))

	buf := make([]byte, 4)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}
