package kvsm

import (
	"bytes"
	"fmt"
)

// lookup walks the chain from the head looking for the newest frame that
// mentions key, stopping at the first match (per spec, physical order from
// the head is generation order, so the first match is always the newest
// write). found is false both when key was never written and when the
// matching frame is a tombstone.
func (s *Store) lookup(key []byte) (value []byte, generation uint64, found bool, err error) {
	offset := s.headOffset
	for offset != 0 {
		h, err := readFrameHeader(s.filer, offset)
		if err != nil {
			return nil, 0, false, fmt.Errorf("kvsm: reading frame at %d: %w", offset, ErrBadChain)
		}

		var (
			matched bool
			valLen  int64
			valOff  int64
		)
		iterErr := iterateRecords(s.filer, offset, func(k []byte, vlen, voff int64) (bool, error) {
			if bytes.Equal(k, key) {
				matched, valLen, valOff = true, vlen, voff
				return false, nil
			}
			return true, nil
		})
		if iterErr != nil {
			return nil, 0, false, fmt.Errorf("kvsm: reading frame at %d: %w", offset, ErrBadChain)
		}

		if matched {
			if valLen == 0 {
				return nil, h.generation, false, nil
			}
			v, err := readValue(s.filer, valOff, valLen)
			return v, h.generation, true, err
		}

		offset = h.predecessor
	}
	return nil, 0, false, nil
}

// Get returns the value most recently Set for key. It returns ErrNotFound
// if the key was never written or its newest write was a Del.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, _, found, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

// GetGeneration returns the generation number of the frame that most
// recently wrote key. It returns ErrNotFound under the same conditions as
// Get.
func (s *Store) GetGeneration(key []byte) (uint64, error) {
	_, generation, found, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return generation, nil
}
