package kvsm

import "fmt"

// Cursor addresses a single frame in a chain and carries its decoded
// header fields, so walking the chain doesn't re-read them on every step.
type Cursor struct {
	store       *Store
	Offset      int64
	Predecessor int64
	Generation  uint64
}

// LoadCursor positions a Cursor at an arbitrary frame offset, decoding its
// header. Most callers want Head or Fetch instead; LoadCursor is exposed
// for tests and for ingest bookkeeping.
func (s *Store) LoadCursor(offset int64) (*Cursor, error) {
	h, err := readFrameHeader(s.filer, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChain, err)
	}
	return &Cursor{store: s, Offset: offset, Predecessor: h.predecessor, Generation: h.generation}, nil
}

// Head returns a Cursor at the newest frame, or ErrNotFound if the store
// has never been written to.
func (s *Store) Head() (*Cursor, error) {
	if s.headOffset == 0 {
		return nil, ErrNotFound
	}
	return s.LoadCursor(s.headOffset)
}

// Previous moves to the frame this one was appended on top of: one step
// older. It returns (nil, nil), not an error, once the chain's root is
// reached.
func (c *Cursor) Previous() (*Cursor, error) {
	if c.Predecessor == 0 {
		return nil, nil
	}
	return c.store.LoadCursor(c.Predecessor)
}

// Next moves one step newer. Because the chain only links backwards, this
// re-walks from the head to find whichever frame names c as its
// predecessor; it returns (nil, nil) when c is already the head.
func (c *Cursor) Next() (*Cursor, error) {
	if c.Offset == c.store.headOffset {
		return nil, nil
	}
	cur, err := c.store.Head()
	if err != nil {
		return nil, err
	}
	for cur != nil {
		prev, err := cur.Previous()
		if err != nil {
			return nil, err
		}
		if prev != nil && prev.Offset == c.Offset {
			return cur, nil
		}
		cur = prev
	}
	return nil, ErrBadChain
}

// Fetch walks backward from the head looking for the frame with the given
// generation number. Generations strictly decrease along the chain, so an
// exact match can vanish from under a caller when Compact frees it; Fetch
// falls back to the oldest frame whose generation is still >= target, the
// nearest surviving anchor a replication peer can resume from. It returns
// ErrNotFound only when every frame in the chain is older than target.
func (s *Store) Fetch(generation uint64) (*Cursor, error) {
	cur, err := s.Head()
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var best *Cursor
	for cur != nil {
		if cur.Generation == generation {
			return cur, nil
		}
		if cur.Generation < generation {
			break
		}
		best = cur
		cur, err = cur.Previous()
		if err != nil {
			return nil, err
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, ErrNotFound
}

// Records materializes every key/value pair stored in this frame, in the
// order they were written. A zero-length Value marks a tombstone.
func (c *Cursor) Records() ([]Record, error) {
	var out []Record
	err := iterateRecords(c.store.filer, c.Offset, func(key []byte, valueLen, valueOffset int64) (bool, error) {
		v, err := readValue(c.store.filer, valueOffset, valueLen)
		if err != nil {
			return false, err
		}
		out = append(out, Record{Key: append([]byte(nil), key...), Value: v})
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChain, err)
	}
	return out, nil
}
