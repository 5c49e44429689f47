package onnx

import "google.golang.org/protobuf/encoding/protowire"

// ONNX protobuf data structures.
//
// Only the fields the splitter needs are decoded into typed values that are
// also written back. Everything else is recorded as raw wire bytes in the
// order it was read and replayed verbatim by the encoder, so graph structure
// survives a parse/encode cycle untouched.

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Opset version(s)
	ProducerName    string              // Framework name (e.g., "pytorch", "tf")
	ProducerVersion string              // Framework version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Computation graph
	MetadataProps   []StringStringEntry // Key-value metadata

	fields []rawField // wire layout; the graph slot is re-encoded from Graph
}

// GraphProto represents the computation graph.
//
// Nodes, Inputs, Outputs and ValueInfo are read-only views. Initializers
// are owned by the graph and are re-encoded on Marshal.
type GraphProto struct {
	Name         string           // Graph name
	Nodes        []NodeProto      // Operation nodes
	Inputs       []ValueInfoProto // Graph inputs
	Outputs      []ValueInfoProto // Graph outputs
	Initializers []TensorProto    // Weight tensors
	DocString    string           // Graph description
	ValueInfo    []ValueInfoProto // Intermediate tensor info

	fields []rawField // wire layout; initializer slots point into Initializers
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name           string   // Node name (optional)
	OpType         string   // Operation type (e.g., "Conv", "MatMul", "Relu")
	Inputs         []string // Input tensor names
	Outputs        []string // Output tensor names
	Domain         string   // Custom domain (empty for default)
	AttributeCount int      // Number of attributes (not decoded)
}

// TensorProto represents a tensor (weights/initializers).
//
// A tensor is in exactly one payload state at a time; see State.
type TensorProto struct {
	Name      string  // Tensor name
	DataType  int32   // Element data type
	Dims      []int64 // Tensor shape
	DocString string  // Tensor description

	rawData     []byte
	hasRawData  bool
	external    *ExternalData
	externalExt []StringStringEntry // descriptor keys other than location/offset/length
	extra       []byte              // unmanaged fields, re-emitted verbatim
}

// ValueInfoProto describes input/output tensor specifications.
type ValueInfoProto struct {
	Name      string     // Tensor name
	Type      *TypeProto // Tensor type information
	DocString string     // Description
}

// TypeProto describes tensor type.
type TypeProto struct {
	TensorType *TensorTypeProto // Tensor type (most common)
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32             // Element data type
	Shape    *TensorShapeProto // Tensor shape
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto // Dimensions
}

// DimensionProto describes a single dimension.
type DimensionProto struct {
	DimValue int64  // Static dimension value (e.g., 224 for image size)
	DimParam string // Dynamic dimension name (e.g., "batch_size")
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for default)
	Version int64  // Opset version number
}

// StringStringEntry represents key-value metadata.
type StringStringEntry struct {
	Key   string
	Value string
}

// rawField is one top-level field of a message as it appeared on the wire.
// slot is -1 for verbatim fields, otherwise the index of the typed value
// the encoder writes in its place.
type rawField struct {
	num  protowire.Number
	raw  []byte
	slot int
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined  = 0
	TensorProtoFloat      = 1  // float32
	TensorProtoUint8      = 2  // uint8
	TensorProtoInt8       = 3  // int8
	TensorProtoUint16     = 4  // uint16
	TensorProtoInt16      = 5  // int16
	TensorProtoInt32      = 6  // int32
	TensorProtoInt64      = 7  // int64
	TensorProtoString     = 8  // string
	TensorProtoBool       = 9  // bool
	TensorProtoFloat16    = 10 // float16
	TensorProtoDouble     = 11 // float64
	TensorProtoUint32     = 12 // uint32
	TensorProtoUint64     = 13 // uint64
	TensorProtoComplex64  = 14 // complex64
	TensorProtoComplex128 = 15 // complex128
	TensorProtoBfloat16   = 16 // bfloat16
)

// TensorProto.DataLocation values.
const (
	DataLocationDefault  = 0
	DataLocationExternal = 1
)

// DataTypeName returns the ONNX name of a TensorProto data type.
func DataTypeName(dt int32) string {
	switch dt {
	case TensorProtoFloat:
		return "float32"
	case TensorProtoUint8:
		return "uint8"
	case TensorProtoInt8:
		return "int8"
	case TensorProtoUint16:
		return "uint16"
	case TensorProtoInt16:
		return "int16"
	case TensorProtoInt32:
		return "int32"
	case TensorProtoInt64:
		return "int64"
	case TensorProtoString:
		return "string"
	case TensorProtoBool:
		return "bool"
	case TensorProtoFloat16:
		return "float16"
	case TensorProtoDouble:
		return "float64"
	case TensorProtoUint32:
		return "uint32"
	case TensorProtoUint64:
		return "uint64"
	case TensorProtoComplex64:
		return "complex64"
	case TensorProtoComplex128:
		return "complex128"
	case TensorProtoBfloat16:
		return "bfloat16"
	default:
		return "undefined"
	}
}
