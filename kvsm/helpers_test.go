package kvsm

import (
	"testing"

	"github.com/finwo/kvsm/storage"
)

// newSharedMemFiler returns a MemFiler suitable for opening more than one
// *Store against, simulating reopening the same backing file.
func newSharedMemFiler(t *testing.T) *storage.MemFiler {
	t.Helper()
	return storage.NewMemFiler()
}
