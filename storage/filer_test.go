package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInnerFilerTranslatesOffsets(t *testing.T) {
	outer := NewMemFiler()
	_, err := outer.WriteAt([]byte("HEADERHEADER"), 0) // 12-byte outer-only region
	require.NoError(t, err)

	inner := NewInnerFiler(outer, 12)
	_, err = inner.WriteAt([]byte("payload"), 0)
	require.NoError(t, err)

	got := make([]byte, 7)
	_, err = outer.ReadAt(got, 12)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	require.EqualValues(t, 7, inner.Size())
}

func TestInnerFilerSizeNeverNegative(t *testing.T) {
	outer := NewMemFiler()
	inner := NewInnerFiler(outer, 16)
	require.EqualValues(t, 0, inner.Size())
}
