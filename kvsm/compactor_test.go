package kvsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// chainGenerations returns the generation of every frame reachable from the
// head, newest first.
func chainGenerations(t *testing.T, s *Store) []uint64 {
	t.Helper()
	var gens []uint64
	cur, err := s.Head()
	require.NoError(t, err)
	for cur != nil {
		gens = append(gens, cur.Generation)
		cur, err = cur.Previous()
		require.NoError(t, err)
	}
	return gens
}

func TestCompactDropsFullyShadowedFrames(t *testing.T) {
	s, err := OpenMem(Options{})
	require.NoError(t, err)

	require.NoError(t, s.Set([]byte("a"), []byte("1"))) // gen 1, shadowed by gen 2
	require.NoError(t, s.Set([]byte("a"), []byte("2"))) // gen 2, kept: "a" not touched again
	require.NoError(t, s.Set([]byte("b"), []byte("3"))) // gen 3, head

	require.NoError(t, s.Compact())

	require.Equal(t, []uint64{3, 2}, chainGenerations(t, s))

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "2", string(v))

	v, err = s.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "3", string(v))
}

func TestCompactNeverDropsHead(t *testing.T) {
	s, err := OpenMem(Options{})
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))

	require.NoError(t, s.Compact())
	require.Equal(t, []uint64{1}, chainGenerations(t, s))
}

func TestCompactDropsShadowedTombstoneToo(t *testing.T) {
	s, err := OpenMem(Options{})
	require.NoError(t, err)

	require.NoError(t, s.Set([]byte("a"), []byte("1"))) // gen 1
	require.NoError(t, s.Del([]byte("a")))              // gen 2, shadows gen 1
	require.NoError(t, s.Set([]byte("b"), []byte("x"))) // gen 3, head

	require.NoError(t, s.Compact())

	require.Equal(t, []uint64{3, 2}, chainGenerations(t, s))
	_, err = s.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompactIsIdempotent(t *testing.T) {
	s, err := OpenMem(Options{})
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	require.NoError(t, s.Set([]byte("a"), []byte("2")))

	require.NoError(t, s.Compact())
	first := chainGenerations(t, s)
	require.NoError(t, s.Compact())
	require.Equal(t, first, chainGenerations(t, s))
}
