package storage

import (
	"io"

	"github.com/cznic/mathutil"
)

const (
	pgBits = 12
	pgSize = 1 << pgBits
	pgMask = pgSize - 1
)

var zeroPage [pgSize]byte

var _ Filer = (*MemFiler)(nil)

// MemFiler is an in-memory Filer, paged the same way lldb.MemFiler is so
// that large sparse stores (lots of freed/holed space) don't cost much
// memory. It is not persistent; it exists for tests and for kvsm.OpenMem.
type MemFiler struct {
	pages map[int64]*[pgSize]byte
	size  int64
}

// NewMemFiler returns an empty in-memory Filer.
func NewMemFiler() *MemFiler {
	return &MemFiler{pages: map[int64]*[pgSize]byte{}}
}

func (f *MemFiler) Name() string { return "mem" }
func (f *MemFiler) Close() error { return nil }
func (f *MemFiler) Size() int64  { return f.size }

func (f *MemFiler) Truncate(size int64) error {
	if size < 0 {
		return &ErrInvalid{What: "Truncate size", Value: size}
	}
	if size == 0 {
		f.pages = map[int64]*[pgSize]byte{}
		f.size = 0
		return nil
	}

	first := size >> pgBits
	if size&pgMask != 0 {
		first++
	}
	last := f.size >> pgBits
	if f.size&pgMask != 0 {
		last++
	}
	for ; first < last; first++ {
		delete(f.pages, first)
	}
	f.size = size
	return nil
}

func (f *MemFiler) ReadAt(b []byte, off int64) (n int, err error) {
	avail := f.size - off
	if avail <= 0 {
		return 0, io.EOF
	}

	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(b)
	if int64(rem) > avail {
		rem = int(avail)
		err = io.EOF
	}
	for rem != 0 {
		pg := f.pages[pgI]
		if pg == nil {
			pg = &zeroPage
		}
		nc := copy(b[:mathutil.Min(rem, pgSize-pgO)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
		b = b[nc:]
	}
	return n, err
}

func (f *MemFiler) WriteAt(b []byte, off int64) (n int, err error) {
	pgI := off >> pgBits
	pgO := int(off & pgMask)
	n = len(b)
	rem := n
	for rem != 0 {
		pg := f.pages[pgI]
		if pg == nil {
			pg = new([pgSize]byte)
			f.pages[pgI] = pg
		}
		nc := copy(pg[pgO:], b)
		pgI++
		pgO = 0
		rem -= nc
		b = b[nc:]
	}
	f.size = mathutil.MaxInt64(f.size, off+int64(n))
	return n, nil
}

func (f *MemFiler) PunchHole(off, size int64) error {
	if off < 0 {
		return &ErrInvalid{What: "PunchHole offset", Value: off}
	}
	if size < 0 || off+size > f.size {
		return &ErrInvalid{What: "PunchHole size", Value: size}
	}

	first := off >> pgBits
	if off&pgMask != 0 {
		first++
	}
	last := (off+size)>>pgBits - 1 // last page lying wholly inside the range
	for pg := first; pg <= last && pg <= f.size>>pgBits; pg++ {
		delete(f.pages, pg)
	}
	return nil
}
