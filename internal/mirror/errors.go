package mirror

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by Mirror.
var (
	// ErrSourceMissing means the source path does not exist.
	ErrSourceMissing = errors.New("source does not exist")
	// ErrInvalidKind means the source is neither a regular file nor a directory.
	ErrInvalidKind = errors.New("source is not a regular file or directory")
	// ErrSamePath means source and destination resolve to the same path.
	ErrSamePath = errors.New("source and destination are the same path")
	// ErrNestedPath means one of source and destination contains the other.
	ErrNestedPath = errors.New("source and destination are nested")
)

// Operation names reported in Error.Op and passed to EscalateFunc.
const (
	OpStat   = "stat"
	OpRemove = "remove"
	OpCreate = "create"
	OpRead   = "read"
	OpCopy   = "copy"
)

// Error describes a failed filesystem step.
type Error struct {
	// Op is the step that failed (remove, create, read, copy).
	Op string
	// Path is the path the step was operating on.
	Path string
	// Err is the underlying error.
	Err error
}

// Error returns a formatted message naming the operation and path.
func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
