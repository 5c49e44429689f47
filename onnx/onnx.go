// Package onnx splits ONNX models into a slim graph plus an external weight
// file, and rehydrates them back into a single in-memory model.
//
// Initializer payloads of at least a threshold size (1024 bytes by default)
// are appended to a flat byte store; the graph keeps an external-data
// descriptor {location, offset, length} in their place. Rehydration reads the
// ranges back and re-inlines them, restoring the original model bytes.
//
// # Example Usage
//
//	import "github.com/tarekziade/onnx-native/onnx"
//
//	// Split once, at preparation time
//	res, err := onnx.SplitFile("model.onnx", "out/graph.onnx", onnx.WithThreshold(1024))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("externalized:", len(res.Externalized))
//
//	// Rehydrate into one buffer for an inference session
//	blob, err := onnx.RehydrateToBytes("out/graph.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
package onnx

import (
	internalonnx "github.com/tarekziade/onnx-native/internal/onnx"
	"github.com/tarekziade/onnx-native/internal/payload"
)

// ModelProto is a parsed ONNX model.
type ModelProto = internalonnx.ModelProto

// TensorProto is one initializer tensor.
type TensorProto = internalonnx.TensorProto

// ExternalData locates an external payload.
type ExternalData = internalonnx.ExternalData

// ModelInfo contains metadata about an ONNX model.
type ModelInfo = internalonnx.ModelInfo

// Option configures split and rehydrate operations.
type Option = payload.Option

// SplitResult summarizes a split.
type SplitResult = payload.SplitResult

// TensorLayout describes where one initializer's payload lives.
type TensorLayout = payload.TensorLayout

// ErrFormat is returned for malformed models and external descriptors.
var ErrFormat = internalonnx.ErrFormat

// Option constructors.
var (
	WithThreshold = payload.WithThreshold
	WithLocation  = payload.WithLocation
	WithBaseDir   = payload.WithBaseDir
	WithWorkers   = payload.WithWorkers
	WithMmap      = payload.WithMmap
	WithLogger    = payload.WithLogger
)

// ParseFile parses an ONNX model file.
func ParseFile(path string) (*ModelProto, error) {
	return internalonnx.ParseFile(path)
}

// Marshal encodes a model. Parsed models re-encode losslessly.
func Marshal(m *ModelProto) ([]byte, error) {
	return internalonnx.Marshal(m)
}

// GetModelInfo extracts metadata from an ONNX file.
//
// Example:
//
//	info, err := onnx.GetModelInfo("graph.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("External bytes: %d\n", info.ExternalBytes)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// SplitFile splits the model at src into a slim graph at graphOut and a
// payload file next to it.
func SplitFile(src, graphOut string, opts ...Option) (*SplitResult, error) {
	return payload.SplitFile(src, graphOut, opts...)
}

// RehydrateFile parses the graph at path and re-inlines its external payloads.
func RehydrateFile(path string, opts ...Option) (*ModelProto, error) {
	return payload.RehydrateFile(path, opts...)
}

// RehydrateToBytes rehydrates the graph at path into one contiguous buffer.
func RehydrateToBytes(path string, opts ...Option) ([]byte, error) {
	return payload.RehydrateToBytes(path, opts...)
}

// Layout lists every initializer of m with its payload state and range.
func Layout(m *ModelProto) []TensorLayout {
	return payload.Layout(m)
}
