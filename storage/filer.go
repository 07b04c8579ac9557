// Package storage provides the random-access byte medium kvsm's allocator
// and frame codec are built on. A Filer plays the same role as lldb.Filer:
// an abstraction over "a file or similar entity" addressed purely by
// absolute offset, never by an implicit cursor.
package storage

import "io"

// A Filer is a []byte-like model of a file or block device. ReadAt and
// WriteAt are always addressed by an absolute offset; a Filer has no notion
// of a current position, so callers never need to seek before reading.
//
// A Filer is not safe for concurrent use. kvsm serializes all access to a
// given Filer through its owning Store.
type Filer interface {
	// Name reports the path or synthetic name of the medium, as
	// os.File.Name does.
	Name() string

	// Close releases the medium. Closing a Filer that is still referenced
	// by an open Store is a caller error.
	Close() error

	// Size reports the current extent of the medium in bytes.
	Size() int64

	// Truncate grows or shrinks the medium to size bytes.
	Truncate(size int64) error

	// ReadAt reads len(b) bytes starting at off. It returns io.EOF (or a
	// wrapped error containing it) if fewer than len(b) bytes are
	// available.
	ReadAt(b []byte, off int64) (n int, err error)

	// WriteAt writes b at off, growing the medium if necessary.
	WriteAt(b []byte, off int64) (n int, err error)

	// PunchHole deallocates the byte range [off, off+size) without
	// changing Size. Implementations that cannot reclaim space selectively
	// may treat this as a no-op.
	PunchHole(off, size int64) error
}

var _ Filer = (*InnerFiler)(nil)

// InnerFiler is a Filer that adds a fixed offset to every access into an
// outer Filer, the same translation lldb.InnerFiler performs to keep an
// allocator's own bookkeeping region out of the address space it hands to
// its clients.
type InnerFiler struct {
	outer Filer
	off   int64
}

// NewInnerFiler returns a Filer where access at offset n is translated to
// access at off+n in outer. Size() is reported relative to off: it is never
// negative even if outer is smaller than off.
func NewInnerFiler(outer Filer, off int64) *InnerFiler {
	return &InnerFiler{outer: outer, off: off}
}

func (f *InnerFiler) Name() string { return f.outer.Name() }
func (f *InnerFiler) Close() error { return nil } // only the outer Filer owns the handle

func (f *InnerFiler) Size() int64 {
	sz := f.outer.Size() - f.off
	if sz < 0 {
		return 0
	}
	return sz
}

func (f *InnerFiler) Truncate(size int64) error {
	if size < 0 {
		return &ErrInvalid{What: "Truncate size", Value: size}
	}
	return f.outer.Truncate(size + f.off)
}

func (f *InnerFiler) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &ErrInvalid{What: f.outer.Name() + ": ReadAt offset", Value: off}
	}
	return f.outer.ReadAt(b, f.off+off)
}

func (f *InnerFiler) WriteAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &ErrInvalid{What: f.outer.Name() + ": WriteAt offset", Value: off}
	}
	return f.outer.WriteAt(b, f.off+off)
}

func (f *InnerFiler) PunchHole(off, size int64) error {
	if off < 0 || size < 0 {
		return &ErrInvalid{What: f.outer.Name() + ": PunchHole range", Value: off}
	}
	return f.outer.PunchHole(f.off+off, size)
}

// ReadFull reads exactly len(b) bytes at off, translating a short read into
// io.ErrUnexpectedEOF the way callers throughout kvsm expect.
func ReadFull(f Filer, b []byte, off int64) error {
	n, err := f.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
