package kvsm

import (
	"encoding/binary"
	"fmt"

	"github.com/finwo/kvsm/storage"
)

// frameVersion is the only frame layout this package understands. It is the
// Go counterpart of KVSM_VERSION in kvsm.h.
const frameVersion byte = 0

// MaxKeyLen is the largest key a frame can address: the wire format's key
// length prefix tops out at 15 bits, and length 0 is reserved as the
// record-list terminator.
const MaxKeyLen = 1<<15 - 1

const (
	predecessorMask = 1<<56 - 1
	headerSize      = 16 // version+predecessor word (8) + generation (8)
)

// frameHeader is the decoded fixed-size prologue of a transaction frame.
type frameHeader struct {
	version     byte
	predecessor int64
	generation  uint64
}

// readFrameHeader decodes the 16-byte header at offset. predecessor is 0 for
// the chain's root frame (no predecessor).
func readFrameHeader(f storage.Filer, offset int64) (frameHeader, error) {
	var b [headerSize]byte
	if err := storage.ReadFull(f, b[:], offset); err != nil {
		return frameHeader{}, fmt.Errorf("kvsm: reading frame header at %d: %w", offset, err)
	}
	word := binary.BigEndian.Uint64(b[0:8])
	h := frameHeader{
		version:     byte(word >> 56),
		predecessor: int64(word & predecessorMask),
		generation:  binary.BigEndian.Uint64(b[8:16]),
	}
	if h.version != frameVersion {
		return frameHeader{}, fmt.Errorf("kvsm: frame at %d has version %d: %w", offset, h.version, ErrBadVersion)
	}
	return h, nil
}

func writeFrameHeader(f storage.Filer, offset int64, predecessor int64, generation uint64) error {
	var b [headerSize]byte
	word := uint64(frameVersion)<<56 | uint64(predecessor)&predecessorMask
	binary.BigEndian.PutUint64(b[0:8], word)
	binary.BigEndian.PutUint64(b[8:16], generation)
	_, err := f.WriteAt(b[:], offset)
	return err
}

// patchPredecessor rewrites only the predecessor half of a frame's header
// word, leaving its version and generation untouched. Used by the
// compactor to splice discarded frames out of the chain and by Ingest to
// graft an incoming frame in by generation order.
func patchPredecessor(f storage.Filer, frameOffset int64, predecessor int64) error {
	word := uint64(frameVersion)<<56 | uint64(predecessor)&predecessorMask
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], word)
	_, err := f.WriteAt(b[:], frameOffset)
	return err
}

// keyPrefixLen returns how many bytes the length prefix of a key of the
// given length occupies on the wire: 1 byte for 1..127, 2 bytes for
// 128..MaxKeyLen.
func keyPrefixLen(keyLen int) int {
	if keyLen < 0x80 {
		return 1
	}
	return 2
}

func encodeKeyPrefix(b []byte, keyLen int) int {
	if keyLen < 0x80 {
		b[0] = byte(keyLen)
		return 1
	}
	b[0] = 0x80 | byte(keyLen>>8)
	b[1] = byte(keyLen)
	return 2
}

// recordSize is the number of bytes a record of the given key/value length
// occupies in a frame's record list.
func recordSize(keyLen, valueLen int) int64 {
	return int64(keyPrefixLen(keyLen) + keyLen + 8 + valueLen)
}

// frameSize is the total number of bytes a frame with the given records
// (plus its header and terminator) occupies.
func frameSize(records []Record) int64 {
	size := int64(headerSize + 1) // header + terminator
	for _, r := range records {
		size += recordSize(len(r.Key), len(r.Value))
	}
	return size
}

// Record is a single key/value pair as written into a frame. A nil or
// zero-length Value marks the key as deleted (a tombstone).
type Record struct {
	Key   []byte
	Value []byte
}

// writeFrame lays out a complete frame — header, record list, terminator —
// starting at offset, which must have been sized via frameSize(records) by
// the caller (the allocator in practice).
func writeFrame(f storage.Filer, offset int64, predecessor int64, generation uint64, records []Record) error {
	if err := writeFrameHeader(f, offset, predecessor, generation); err != nil {
		return err
	}

	cur := offset + headerSize
	for _, r := range records {
		if len(r.Key) > MaxKeyLen {
			return ErrKeyTooLarge
		}
		var prefix [2]byte
		n := encodeKeyPrefix(prefix[:], len(r.Key))
		if _, err := f.WriteAt(prefix[:n], cur); err != nil {
			return err
		}
		cur += int64(n)

		if len(r.Key) > 0 {
			if _, err := f.WriteAt(r.Key, cur); err != nil {
				return err
			}
			cur += int64(len(r.Key))
		}

		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(r.Value)))
		if _, err := f.WriteAt(lenBuf[:], cur); err != nil {
			return err
		}
		cur += 8

		if len(r.Value) > 0 {
			if _, err := f.WriteAt(r.Value, cur); err != nil {
				return err
			}
			cur += int64(len(r.Value))
		}
	}

	_, err := f.WriteAt([]byte{0x00}, cur)
	return err
}

// iterateRecords walks a frame's record list starting right after its
// header, calling fn with each key and the location of its value. fn
// controls whether the walk continues; returning a non-nil error both stops
// the walk and propagates out of iterateRecords.
func iterateRecords(f storage.Filer, frameOffset int64, fn func(key []byte, valueLen int64, valueOffset int64) (bool, error)) error {
	cur := frameOffset + headerSize
	for {
		var first [1]byte
		if err := storage.ReadFull(f, first[:], cur); err != nil {
			return fmt.Errorf("kvsm: reading record prefix at %d: %w", cur, err)
		}

		var keyLen int
		var prefixLen int64
		if first[0]&0x80 != 0 {
			var second [1]byte
			if err := storage.ReadFull(f, second[:], cur+1); err != nil {
				return fmt.Errorf("kvsm: reading record prefix at %d: %w", cur, err)
			}
			keyLen = int(first[0]&0x7f)<<8 | int(second[0])
			prefixLen = 2
		} else {
			keyLen = int(first[0])
			prefixLen = 1
		}

		if keyLen == 0 {
			return nil // terminator
		}
		cur += prefixLen

		key := make([]byte, keyLen)
		if err := storage.ReadFull(f, key, cur); err != nil {
			return fmt.Errorf("kvsm: reading key at %d: %w", cur, err)
		}
		cur += int64(keyLen)

		var lenBuf [8]byte
		if err := storage.ReadFull(f, lenBuf[:], cur); err != nil {
			return fmt.Errorf("kvsm: reading value length at %d: %w", cur, err)
		}
		valueLen := int64(binary.BigEndian.Uint64(lenBuf[:]))
		cur += 8

		valueOffset := cur
		cont, err := fn(key, valueLen, valueOffset)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		cur += valueLen
	}
}

// readValue materializes the value bytes for a record previously located by
// iterateRecords.
func readValue(f storage.Filer, valueOffset, valueLen int64) ([]byte, error) {
	if valueLen == 0 {
		return nil, nil
	}
	v := make([]byte, valueLen)
	if err := storage.ReadFull(f, v, valueOffset); err != nil {
		return nil, fmt.Errorf("kvsm: reading value at %d: %w", valueOffset, err)
	}
	return v, nil
}
