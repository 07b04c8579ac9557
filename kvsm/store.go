// Package kvsm implements an embedded, append-friendly key/value store
// persisted as a singly-linked chain of self-describing transaction frames
// in a single backing file. Every Set or Del appends a new frame whose
// predecessor pointer is the previous head, so the store's whole history is
// reachable by walking backwards from the head. The only in-place change to
// a frame already on disk is a rewrite of its predecessor pointer, made by
// Compact and Ingest when splicing the chain. No head pointer is stored:
// opening a store scans every blob and takes the highest generation.
package kvsm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/finwo/kvsm/palloc"
	"github.com/finwo/kvsm/storage"
)

// storeMagic and storeHeaderSize identify a file as a kvsm store before the
// allocator ever looks at it. The allocator's own superblock starts right
// after this header: storage.InnerFiler keeps it out of the allocator's
// (and therefore out of every frame's) address space, the same trick
// lldb.NewInnerFiler uses to keep an allocator's bookkeeping out of the
// handles it gives its own clients.
const (
	storeMagic      uint32 = 0x6b76736d // "kvsm"
	storeHeaderSize int64  = 8
)

// Options configures a Store. The zero value is usable: MaxKeyLen defaults
// to MaxKeyLen, Logger defaults to a discarding logger, IsBlockDevice
// defaults to false (regular file semantics).
type Options struct {
	// IsBlockDevice tells the OS-backed filer that the backing file is a
	// fixed-size block device: writes must not grow it.
	IsBlockDevice bool

	// Logger receives diagnostics for conditions that are survivable but
	// noteworthy, chiefly a blob rejected by Open while scanning for the
	// chain head (see ErrBadChain).
	Logger *log.Logger

	// MaxKeyLen overrides the wire format's built-in key length ceiling.
	// Zero means "use the format maximum" (MaxKeyLen).
	MaxKeyLen int
}

func (o Options) maxKeyLen() int {
	if o.MaxKeyLen <= 0 || o.MaxKeyLen > MaxKeyLen {
		return MaxKeyLen
	}
	return o.MaxKeyLen
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(io.Discard)
}

// Store is a single backing file opened as a kvsm transaction log.
type Store struct {
	raw   storage.Filer // owns the OS handle; only Close touches it directly
	filer storage.Filer // raw, shifted past the store header; all frame I/O goes through this
	alloc *palloc.Allocator
	opts  Options

	headOffset     int64 // 0 means the chain is empty
	headGeneration uint64
}

// Open opens path as a kvsm store, creating it if it does not exist.
func Open(path string, opts Options) (*Store, error) {
	flags := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("kvsm: opening %s: %w", path, ErrOpenFailed)
	}
	osf, err := storage.NewOSFiler(f, opts.IsBlockDevice)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("kvsm: opening %s: %w", path, ErrOpenFailed)
	}
	return OpenFiler(osf, opts)
}

// OpenMem opens a Store backed by an in-memory storage.MemFiler, useful for
// tests and for staging serialized payloads before they hit disk.
func OpenMem(opts Options) (*Store, error) {
	return OpenFiler(storage.NewMemFiler(), opts)
}

// OpenFiler attaches a Store to an already-open storage.Filer, initializing
// its allocator and, for a non-empty filer, scanning every allocated blob to
// find the chain head: the frame with the highest generation. A blob that
// does not decode as a valid frame is logged and skipped rather than
// treated as fatal, since the chain is reachable without it as long as it
// is not itself on the path from the head.
func OpenFiler(f storage.Filer, opts Options) (*Store, error) {
	if f.Size() == 0 {
		var hdr [storeHeaderSize]byte
		binary.BigEndian.PutUint32(hdr[0:4], storeMagic)
		hdr[4] = frameVersion
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			return nil, fmt.Errorf("kvsm: writing store header: %w", ErrOpenFailed)
		}
	} else {
		var hdr [storeHeaderSize]byte
		if err := storage.ReadFull(f, hdr[:], 0); err != nil {
			return nil, fmt.Errorf("kvsm: reading store header: %w", ErrOpenFailed)
		}
		if binary.BigEndian.Uint32(hdr[0:4]) != storeMagic {
			return nil, fmt.Errorf("kvsm: %s is not a kvsm store: %w", f.Name(), ErrOpenFailed)
		}
		if hdr[4] != frameVersion {
			return nil, fmt.Errorf("kvsm: %s has store format version %d: %w", f.Name(), hdr[4], ErrBadVersion)
		}
	}

	filer := storage.NewInnerFiler(f, storeHeaderSize)
	alloc, err := palloc.Open(filer)
	if err != nil {
		return nil, fmt.Errorf("kvsm: initializing allocator: %w", ErrOpenFailed)
	}

	s := &Store{raw: f, filer: filer, alloc: alloc, opts: opts}

	logger := opts.logger()
	err = alloc.Enumerate(func(offset int64) error {
		h, err := readFrameHeader(filer, offset)
		if err != nil {
			logger.Warn("skipping undecodable blob while scanning for chain head", "offset", offset, "err", err)
			return nil
		}
		if s.headOffset == 0 || h.generation > s.headGeneration {
			s.headOffset = offset
			s.headGeneration = h.generation
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvsm: scanning for chain head: %w", err)
	}

	return s, nil
}

// Close releases the backing file.
func (s *Store) Close() error {
	return s.raw.Close()
}

// HeadOffset is the backing-file offset of the newest frame, or 0 if the
// store has never been written to.
func (s *Store) HeadOffset() int64 {
	return s.headOffset
}

// HeadGeneration is the generation number of the newest frame, or 0 if the
// store has never been written to. This is the value the kvsmctl
// current-increment command reports.
func (s *Store) HeadGeneration() uint64 {
	return s.headGeneration
}
