package kvsm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// serializedHeaderSize is version(1) + generation(8). No predecessor, no
// offsets: physical offsets never leave the file they belong to, and the
// splice point on the receiving side is derived purely from generation
// order (see spliceTarget), so the predecessor need not travel on the wire.
const serializedHeaderSize = 9

// Serialize encodes this frame's generation and its records into a payload
// that Ingest can replay against any other store.
func (c *Cursor) Serialize() ([]byte, error) {
	records, err := c.Records()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, serializedHeaderSize, serializedHeaderSize+int(frameSize(records)))
	buf[0] = frameVersion
	binary.BigEndian.PutUint64(buf[1:9], c.Generation)

	for _, r := range records {
		if len(r.Key) > MaxKeyLen {
			return nil, ErrKeyTooLarge
		}
		var prefix [2]byte
		n := encodeKeyPrefix(prefix[:], len(r.Key))
		buf = append(buf, prefix[:n]...)
		buf = append(buf, r.Key...)
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(r.Value)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, r.Value...)
	}
	buf = append(buf, 0x00)

	return buf, nil
}

var errDuplicateGeneration = errors.New("kvsm: generation already present")

// spliceTarget returns where in the chain a frame of the given generation
// belongs: succ is the existing frame that should be repointed at the new
// one (nil means the new frame becomes the head), and pred is the frame
// the new one should name as its own predecessor (nil means offset 0, a
// new root). Generations strictly decrease from head to root, so the walk
// stops as soon as it finds where generation fits between two neighbors.
func (s *Store) spliceTarget(generation uint64) (succ, pred *Cursor, err error) {
	cur, err := s.Head()
	if err == ErrNotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var newer *Cursor
	for cur != nil {
		if cur.Generation == generation {
			return nil, nil, errDuplicateGeneration
		}
		if cur.Generation < generation {
			return newer, cur, nil
		}
		newer = cur
		cur, err = cur.Previous()
		if err != nil {
			return nil, nil, err
		}
	}
	return newer, nil, nil
}

// Ingest decodes a payload produced by Serialize and grafts it into this
// store's chain in generation order. Ingesting the same generation twice is
// a no-op: replication can safely redeliver. spliceTarget locates the graft
// point by generation alone, so a payload can arrive before the frame it
// was appended on top of has; it is still accepted and spliced in, and the
// logger records when that happened so an operator can tell replication is
// behind.
func (s *Store) Ingest(payload []byte) error {
	if len(payload) < serializedHeaderSize+1 {
		return ErrTruncatedIngest
	}
	if payload[0] != frameVersion {
		return fmt.Errorf("kvsm: ingest payload: %w", ErrBadVersion)
	}

	generation := binary.BigEndian.Uint64(payload[1:9])

	records, err := decodeSerializedRecords(payload[serializedHeaderSize:])
	if err != nil {
		return err
	}

	succ, pred, err := s.spliceTarget(generation)
	if errors.Is(err, errDuplicateGeneration) {
		return nil
	}
	if err != nil {
		return err
	}

	predecessorOffset := int64(0)
	if pred != nil {
		predecessorOffset = pred.Offset
	} else if succ != nil {
		s.opts.logger().Warn("ingest: grafting frame at chain root, predecessor not yet present", "generation", generation)
	}

	size := frameSize(records)
	offset, err := s.alloc.Alloc(size)
	if err != nil {
		return fmt.Errorf("kvsm: ingest: %w: %v", ErrAllocationFailed, err)
	}
	if err := writeFrame(s.filer, offset, predecessorOffset, generation, records); err != nil {
		return fmt.Errorf("kvsm: ingest: writing frame: %w", err)
	}

	if succ == nil {
		s.headOffset = offset
		s.headGeneration = generation
		return nil
	}
	return patchPredecessor(s.filer, succ.Offset, offset)
}

// decodeSerializedRecords parses the record list trailing a serialized
// payload's fixed header, using the same wire encoding as a frame's record
// list but reading straight out of an in-memory byte slice rather than a
// storage.Filer.
func decodeSerializedRecords(b []byte) ([]Record, error) {
	var records []Record
	cur := 0
	for {
		if cur >= len(b) {
			return nil, ErrTruncatedIngest
		}
		first := b[cur]
		var keyLen, prefixLen int
		if first&0x80 != 0 {
			if cur+1 >= len(b) {
				return nil, ErrTruncatedIngest
			}
			keyLen = int(first&0x7f)<<8 | int(b[cur+1])
			prefixLen = 2
		} else {
			keyLen = int(first)
			prefixLen = 1
		}
		if keyLen == 0 {
			return records, nil
		}
		cur += prefixLen

		if cur+keyLen+8 > len(b) {
			return nil, ErrTruncatedIngest
		}
		key := append([]byte(nil), b[cur:cur+keyLen]...)
		cur += keyLen

		valueLen := int(binary.BigEndian.Uint64(b[cur : cur+8]))
		cur += 8

		if cur+valueLen > len(b) {
			return nil, ErrTruncatedIngest
		}
		var value []byte
		if valueLen > 0 {
			value = append([]byte(nil), b[cur:cur+valueLen]...)
		}
		cur += valueLen

		records = append(records, Record{Key: key, Value: value})
	}
}
