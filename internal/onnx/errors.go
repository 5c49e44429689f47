package onnx

import "errors"

// ErrFormat reports a graph description that is not a valid ONNX message, or a
// tensor whose external descriptor is malformed.
var ErrFormat = errors.New("invalid ONNX format")
