package kvsm

import "fmt"

// chainNode is one frame visited while walking the chain for compaction,
// newest first.
type chainNode struct {
	offset      int64
	predecessor int64
	keys        [][]byte
}

// Compact reclaims every frame whose records are all shadowed by a newer
// write to the same key — a frame none of whose keys could ever be the
// answer to a future Get, because something newer already answers for all
// of them. The head frame is never discardable, even if every key it
// touches is later overwritten by something still older than it (that
// cannot happen: nothing is newer than the head). Discarded frames are
// spliced out of the chain by repointing the next-newer frame's
// predecessor, then their blobs are freed.
func (s *Store) Compact() error {
	if s.headOffset == 0 {
		return nil
	}

	var nodes []chainNode
	offset := s.headOffset
	for offset != 0 {
		h, err := readFrameHeader(s.filer, offset)
		if err != nil {
			return fmt.Errorf("kvsm: compacting: %w", ErrBadChain)
		}
		var keys [][]byte
		err = iterateRecords(s.filer, offset, func(key []byte, _, _ int64) (bool, error) {
			keys = append(keys, append([]byte(nil), key...))
			return true, nil
		})
		if err != nil {
			return fmt.Errorf("kvsm: compacting: %w", ErrBadChain)
		}
		nodes = append(nodes, chainNode{offset: offset, predecessor: h.predecessor, keys: keys})
		offset = h.predecessor
	}

	discardable := make([]bool, len(nodes))
	seen := make(map[string]bool)
	for i, n := range nodes {
		if i != 0 { // the head can never be discarded
			allShadowed := true
			for _, k := range n.keys {
				if !seen[string(k)] {
					allShadowed = false
					break
				}
			}
			discardable[i] = allShadowed
		}
		for _, k := range n.keys {
			seen[string(k)] = true
		}
	}

	kept := 0 // index into nodes of the most recently seen non-discarded frame
	for i := 1; i < len(nodes); i++ {
		if discardable[i] {
			continue
		}
		if err := patchPredecessor(s.filer, nodes[kept].offset, nodes[i].offset); err != nil {
			return fmt.Errorf("kvsm: compacting: splicing %d over %d: %w", nodes[kept].offset, nodes[i].offset, err)
		}
		kept = i
	}
	if discardable[len(nodes)-1] {
		if err := patchPredecessor(s.filer, nodes[kept].offset, 0); err != nil {
			return fmt.Errorf("kvsm: compacting: terminating chain at %d: %w", nodes[kept].offset, err)
		}
	}

	for i, n := range nodes {
		if discardable[i] {
			if err := s.alloc.Free(n.offset); err != nil {
				return fmt.Errorf("kvsm: compacting: freeing frame at %d: %w", n.offset, err)
			}
		}
	}

	return nil
}
