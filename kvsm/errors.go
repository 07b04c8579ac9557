package kvsm

import "errors"

// Error kinds returned by this package. Detail is added by wrapping, e.g.
// fmt.Errorf("kvsm: opening %s: %w", path, ErrOpenFailed); callers should
// compare with errors.Is.
var (
	// ErrBadVersion is returned when a frame or a serialized payload's
	// leading version byte is not the supported format version 0.
	ErrBadVersion = errors.New("kvsm: unsupported frame version")

	// ErrKeyTooLarge is returned when a key is 32768 bytes or longer.
	ErrKeyTooLarge = errors.New("kvsm: key too large")

	// ErrInvalidKey is returned for a zero-length key; key length 0 is
	// reserved on the wire as the record-list terminator and can never
	// address a stored value.
	ErrInvalidKey = errors.New("kvsm: key must be non-empty")

	// ErrOpenFailed is returned when the backing device cannot be opened
	// or the allocator cannot be initialized on it.
	ErrOpenFailed = errors.New("kvsm: open failed")

	// ErrAllocationFailed is returned when the allocator cannot reserve
	// the requested number of bytes.
	ErrAllocationFailed = errors.New("kvsm: allocation failed")

	// ErrTruncatedIngest is returned when a serialized payload is shorter
	// than the minimum possible header.
	ErrTruncatedIngest = errors.New("kvsm: truncated ingest payload")

	// ErrBadChain is returned when a predecessor walk encounters a blob
	// that does not decode as a valid frame. The operation that returns
	// it has made no change to the chain.
	ErrBadChain = errors.New("kvsm: undecodable frame encountered while walking the chain")

	// ErrNotFound is the reader's normal miss signal, returned both for a
	// key that was never set and for a key whose newest record is a
	// tombstone.
	ErrNotFound = errors.New("kvsm: not found")
)
