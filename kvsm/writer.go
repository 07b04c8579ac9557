package kvsm

import "fmt"

// Set appends a new frame recording key=value, making it the chain's new
// head. The previous head becomes this frame's predecessor and its
// generation is the old head generation plus one — frame generations are
// dense and strictly increasing by construction, never assigned by the
// caller.
func (s *Store) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	if len(key) > s.opts.maxKeyLen() {
		return ErrKeyTooLarge
	}

	records := []Record{{Key: key, Value: value}}
	size := frameSize(records)

	offset, err := s.alloc.Alloc(size)
	if err != nil {
		return fmt.Errorf("kvsm: %w: %v", ErrAllocationFailed, err)
	}

	generation := s.headGeneration + 1
	if err := writeFrame(s.filer, offset, s.headOffset, generation, records); err != nil {
		return fmt.Errorf("kvsm: writing frame: %w", err)
	}

	s.headOffset = offset
	s.headGeneration = generation
	return nil
}

// Del appends a tombstone for key: a frame whose value is empty. Reads for
// key will return ErrNotFound from this point on, but the key's history
// remains on disk until Compact reclaims it.
func (s *Store) Del(key []byte) error {
	return s.Set(key, nil)
}
