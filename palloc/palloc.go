// Package palloc implements variable-size blob allocation on top of a
// storage.Filer: allocate(size)->offset, free(offset), and enumeration of
// every allocated blob in physical order. It is the Go counterpart of
// finwo/palloc.c and, in spirit, a drastically simplified sibling of
// lldb.Allocator — no atom quantization, no content compression, no block
// relocation, because none of that is needed by a single-writer transaction
// log and the allocator is explicitly a supporting collaborator, not core.
package palloc

import (
	"encoding/binary"
	"fmt"

	"github.com/finwo/kvsm/storage"
)

const (
	headerSize     = 9  // tag(1) + size(8)
	ptrSize        = 8
	minBlockSize   = headerSize + 2*ptrSize // must hold prev/next once freed
	superblockSize = 16

	tagFree byte = 0x00
	tagUsed byte = 0x01

	magic         uint32 = 0x6b765000 // "kvP\0"
	formatVersion byte   = 0
)

// Allocator manages blob allocation within a storage.Filer. Offset 0 of the
// Filer is reserved for the superblock (magic, version, free-list head); the
// first possible block starts at offset 16.
type Allocator struct {
	f        storage.Filer
	freeHead int64
}

// Open initializes a fresh (zero-length) Filer or attaches to an existing
// one previously initialized by palloc.
func Open(f storage.Filer) (*Allocator, error) {
	a := &Allocator{f: f}
	if f.Size() == 0 {
		if err := a.writeSuperblock(); err != nil {
			return nil, err
		}
		return a, nil
	}

	var sb [superblockSize]byte
	if err := storage.ReadFull(f, sb[:], 0); err != nil {
		return nil, fmt.Errorf("palloc: reading superblock: %w", err)
	}
	if binary.BigEndian.Uint32(sb[0:4]) != magic {
		return nil, fmt.Errorf("palloc: bad superblock magic")
	}
	if sb[4] != formatVersion {
		return nil, fmt.Errorf("palloc: unsupported superblock version %d", sb[4])
	}
	a.freeHead = int64(binary.BigEndian.Uint64(sb[8:16]))
	return a, nil
}

func (a *Allocator) writeSuperblock() error {
	var sb [superblockSize]byte
	binary.BigEndian.PutUint32(sb[0:4], magic)
	sb[4] = formatVersion
	binary.BigEndian.PutUint64(sb[8:16], uint64(a.freeHead))
	_, err := a.f.WriteAt(sb[:], 0)
	return err
}

func (a *Allocator) setFreeHead(off int64) error {
	a.freeHead = off
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(off))
	_, err := a.f.WriteAt(b[:], 8)
	return err
}

// Alloc reserves space for a content blob of size bytes and returns the
// offset at which the caller may write those bytes directly (the
// allocator's own header precedes it and is invisible to the caller).
func (a *Allocator) Alloc(size int64) (int64, error) {
	if size < 0 {
		return 0, fmt.Errorf("palloc: negative size %d", size)
	}
	needed := headerSize + size
	if needed < minBlockSize {
		needed = minBlockSize
	}

	if off, ok, err := a.allocFromFreeList(needed); err != nil {
		return 0, err
	} else if ok {
		return off + headerSize, nil
	}

	off := a.f.Size()
	if off < superblockSize {
		off = superblockSize
	}
	if err := a.f.Truncate(off + needed); err != nil {
		return 0, err
	}
	if err := a.writeUsedHeader(off, needed); err != nil {
		return 0, err
	}
	return off + headerSize, nil
}

func (a *Allocator) allocFromFreeList(needed int64) (off int64, ok bool, err error) {
	cur := a.freeHead
	for cur != 0 {
		size, fprev, fnext, err := a.readFreeBlock(cur)
		if err != nil {
			return 0, false, err
		}
		if size >= needed {
			if err := a.unlinkFree(cur, fprev, fnext); err != nil {
				return 0, false, err
			}

			remaining := size - needed
			if remaining >= minBlockSize {
				if err := a.writeUsedHeader(cur, needed); err != nil {
					return 0, false, err
				}
				if err := a.insertFree(cur+needed, remaining); err != nil {
					return 0, false, err
				}
			} else if err := a.writeUsedHeader(cur, size); err != nil {
				return 0, false, err
			}
			return cur, true, nil
		}
		cur = fnext
	}
	return 0, false, nil
}

// Free releases the blob at offset (as returned by Alloc) back to the free
// list, merging it with a physically adjacent following free block, or
// truncating the file when the freed block is now the tail. Only the
// following neighbour is merged: a free block physically before the freed
// tail stays on the free list and then ends the file.
func (a *Allocator) Free(offset int64) error {
	blockOff := offset - headerSize
	tag, size, err := a.readHeader(blockOff)
	if err != nil {
		return err
	}
	if tag != tagUsed {
		return fmt.Errorf("palloc: Free called on non-used block at %d", offset)
	}

	next := blockOff + size
	if next < a.f.Size() {
		if ntag, nsize, nerr := a.readHeader(next); nerr == nil && ntag == tagFree {
			_, nprev, nnext, ferr := a.readFreeBlock(next)
			if ferr != nil {
				return ferr
			}
			if err := a.unlinkFree(next, nprev, nnext); err != nil {
				return err
			}
			size += nsize
		}
	}

	if blockOff+size >= a.f.Size() {
		return a.f.Truncate(blockOff)
	}
	return a.insertFree(blockOff, size)
}

// Enumerate calls fn, in increasing physical offset order, with the content
// offset of every currently allocated (used) blob. It stops and returns fn's
// error if fn returns a non-nil error.
func (a *Allocator) Enumerate(fn func(offset int64) error) error {
	off := int64(superblockSize)
	end := a.f.Size()
	for off < end {
		tag, size, err := a.readHeader(off)
		if err != nil {
			return err
		}
		if size <= 0 {
			return fmt.Errorf("palloc: corrupt block at %d: non-positive size", off)
		}
		if tag == tagUsed {
			if err := fn(off + headerSize); err != nil {
				return err
			}
		}
		off += size
	}
	return nil
}

func (a *Allocator) readHeader(blockOff int64) (tag byte, size int64, err error) {
	var b [headerSize]byte
	if err := storage.ReadFull(a.f, b[:], blockOff); err != nil {
		return 0, 0, err
	}
	return b[0], int64(binary.BigEndian.Uint64(b[1:9])), nil
}

func (a *Allocator) readFreeBlock(blockOff int64) (size, prev, next int64, err error) {
	var b [headerSize + 2*ptrSize]byte
	if err := storage.ReadFull(a.f, b[:], blockOff); err != nil {
		return 0, 0, 0, err
	}
	if b[0] != tagFree {
		return 0, 0, 0, fmt.Errorf("palloc: block at %d is not free", blockOff)
	}
	size = int64(binary.BigEndian.Uint64(b[1:9]))
	prev = int64(binary.BigEndian.Uint64(b[9:17]))
	next = int64(binary.BigEndian.Uint64(b[17:25]))
	return size, prev, next, nil
}

func (a *Allocator) writeUsedHeader(blockOff, size int64) error {
	var b [headerSize]byte
	b[0] = tagUsed
	binary.BigEndian.PutUint64(b[1:9], uint64(size))
	_, err := a.f.WriteAt(b[:], blockOff)
	return err
}

func (a *Allocator) writeFreeBlock(blockOff, size, prev, next int64) error {
	var b [headerSize + 2*ptrSize]byte
	b[0] = tagFree
	binary.BigEndian.PutUint64(b[1:9], uint64(size))
	binary.BigEndian.PutUint64(b[9:17], uint64(prev))
	binary.BigEndian.PutUint64(b[17:25], uint64(next))
	_, err := a.f.WriteAt(b[:], blockOff)
	return err
}

func (a *Allocator) setFreeNext(blockOff, next int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(next))
	_, err := a.f.WriteAt(b[:], blockOff+17)
	return err
}

func (a *Allocator) setFreePrev(blockOff, prev int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(prev))
	_, err := a.f.WriteAt(b[:], blockOff+9)
	return err
}

// insertFree pushes a newly freed block onto the head of the free list.
func (a *Allocator) insertFree(off, size int64) error {
	oldHead := a.freeHead
	if err := a.writeFreeBlock(off, size, 0, oldHead); err != nil {
		return err
	}
	if oldHead != 0 {
		if err := a.setFreePrev(oldHead, off); err != nil {
			return err
		}
	}
	return a.setFreeHead(off)
}

func (a *Allocator) unlinkFree(off, prev, next int64) error {
	if prev == 0 {
		if err := a.setFreeHead(next); err != nil {
			return err
		}
	} else if err := a.setFreeNext(prev, next); err != nil {
		return err
	}
	if next != 0 {
		if err := a.setFreePrev(next, prev); err != nil {
			return err
		}
	}
	return nil
}
