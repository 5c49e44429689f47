package bytestore

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrStoreNotFound   = errors.New("byte store not found")
	ErrShortWrite      = errors.New("short write to byte store")
	ErrShortRead       = errors.New("short read from byte store")
	ErrOutOfRange      = errors.New("range outside byte store")
	ErrOffsetBeyondEOF = fmt.Errorf("%w: offset beyond end of file", ErrOutOfRange)
	ErrClosed          = errors.New("byte store is closed")
	ErrChecksum        = errors.New("checksum mismatch")
)

// ReadError describes a failed range read.
type ReadError struct {
	Path   string
	Offset int64
	Length int64
	Err    error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s [%d:+%d]: %v", e.Path, e.Offset, e.Length, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// ValidationError provides detailed information about range validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Is reports out_of_bounds and negative_offset failures as ErrOutOfRange.
func (e *ValidationError) Is(target error) bool {
	return target == ErrOutOfRange && (e.Type == "out_of_bounds" || e.Type == "negative_offset")
}
