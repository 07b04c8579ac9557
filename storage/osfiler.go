package storage

import (
	"os"

	"github.com/cznic/fileutil"
	"github.com/cznic/mathutil"
)

var _ Filer = (*OSFiler)(nil)

// OSFiler is an *os.File backed Filer, the disk counterpart of MemFiler.
// Unlike lldb.SimpleFileFiler it carries no BeginUpdate/EndUpdate nesting —
// kvsm has no structural transaction layer, only the single promote-the-head
// write a Set or Del performs.
type OSFiler struct {
	file      *os.File
	size      int64
	blockSize bool // true: medium is a fixed-size block device, no growth
}

// NewOSFiler wraps f. If blockDevice is true the Filer refuses to grow past
// the file's current size; otherwise writes past the current end grow it,
// the same as a regular file opened for append.
func NewOSFiler(f *os.File, blockDevice bool) (*OSFiler, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &OSFiler{file: f, size: fi.Size(), blockSize: blockDevice}, nil
}

func (f *OSFiler) Name() string { return f.file.Name() }
func (f *OSFiler) Close() error { return f.file.Close() }
func (f *OSFiler) Size() int64  { return f.size }

func (f *OSFiler) Truncate(size int64) error {
	if size < 0 {
		return &ErrInvalid{What: "Truncate size", Value: size}
	}
	if f.blockSize && size > f.size {
		return &ErrInvalid{What: f.Name() + ": grow beyond block device extent", Value: size}
	}
	f.size = size
	return f.file.Truncate(size)
}

func (f *OSFiler) ReadAt(b []byte, off int64) (int, error) {
	return f.file.ReadAt(b, off)
}

func (f *OSFiler) WriteAt(b []byte, off int64) (int, error) {
	if f.blockSize && off+int64(len(b)) > f.size {
		return 0, &ErrInvalid{What: f.Name() + ": write beyond block device extent", Value: off + int64(len(b))}
	}
	n, err := f.file.WriteAt(b, off)
	f.size = mathutil.MaxInt64(f.size, off+int64(n))
	return n, err
}

func (f *OSFiler) PunchHole(off, size int64) error {
	return fileutil.PunchHole(f.file, off, size)
}
