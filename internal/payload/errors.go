package payload

import (
	"errors"
	"fmt"
)

// ErrVerifyFailed is returned by Verify when payloads differ.
var ErrVerifyFailed = errors.New("rehydrated payloads differ from original")

// ErrStoreInUse is returned by SplitFile when the output store is one the
// source graph still reads from and the source is not being replaced.
var ErrStoreInUse = errors.New("output store is referenced by the source graph")

// TensorError reports a failure while processing one initializer.
type TensorError struct {
	Tensor string // Initializer name
	Op     string // "externalize", "resolve", "open" or "read"
	Err    error
}

// Error implements the error interface.
func (e *TensorError) Error() string {
	return fmt.Sprintf("%s tensor %q: %v", e.Op, e.Tensor, e.Err)
}

// Unwrap returns the underlying error.
func (e *TensorError) Unwrap() error {
	return e.Err
}
