package records

import "fmt"

// IOError reports a source or destination that could not be opened, read
// or written.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// LayoutMismatchError reports data whose length is not a whole number of
// records.
type LayoutMismatchError struct {
	Path   string
	Size   int
	Stride int
}

func (e *LayoutMismatchError) Error() string {
	msg := fmt.Sprintf("%d bytes is not a multiple of the %d-byte record stride (%d trailing bytes)",
		e.Size, e.Stride, e.Size%e.Stride)
	if e.Path != "" {
		return e.Path + ": " + msg
	}
	return msg
}
