package storage

import "fmt"

// ErrInvalid reports an out of range or otherwise nonsensical argument, the
// storage-package counterpart of lldb.ErrINVAL.
type ErrInvalid struct {
	What  string
	Value interface{}
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("invalid argument: %s (%v)", e.What, e.Value)
}
