package onnx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// TestParseGraphWithoutInitializers checks that a graph with nothing to move
// decodes its node and replays byte for byte.
func TestParseGraphWithoutInitializers(t *testing.T) {
	data := buildSimpleAddModel()

	model, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if model.Graph == nil || model.Graph.Name != "simple_add" {
		t.Fatalf("unexpected graph: %+v", model.Graph)
	}
	if got := model.Graph.Nodes; len(got) != 1 || got[0].OpType != "Add" || len(got[0].Inputs) != 2 {
		t.Fatalf("unexpected nodes: %+v", got)
	}
	if len(model.Graph.Initializers) != 0 {
		t.Fatalf("expected no initializers, got %d", len(model.Graph.Initializers))
	}

	out, err := Marshal(model)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(data, out) {
		t.Errorf("replayed model differs: %d bytes in, %d bytes out", len(data), len(out))
	}
}

// TestParseWithInitializer tests parsing a model with weight tensors.
func TestParseWithInitializer(t *testing.T) {
	data := buildMatMulModel(make([]byte, 64))

	model, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(model.Graph.Initializers) != 1 {
		t.Fatalf("Expected 1 initializer, got %d", len(model.Graph.Initializers))
	}

	init := &model.Graph.Initializers[0]
	if init.Name != "W" {
		t.Errorf("Expected initializer name 'W', got '%s'", init.Name)
	}
	if init.DataType != TensorProtoFloat {
		t.Errorf("Expected data type float32, got %d", init.DataType)
	}
	if len(init.Dims) != 2 {
		t.Errorf("Expected 2 dims, got %d", len(init.Dims))
	}
	if init.State() != PayloadInline {
		t.Errorf("Expected inline payload, got %s", init.State())
	}

	expectedSize := 4 * 4 * 4 // 4x4 matrix, float32 = 4 bytes
	if len(init.RawData()) != expectedSize {
		t.Errorf("Expected raw data size %d, got %d", expectedSize, len(init.RawData()))
	}
}

// TestParseInputOutput tests parsing input/output specifications.
func TestParseInputOutput(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(model.Graph.Inputs) != 2 {
		t.Errorf("Expected 2 inputs, got %d", len(model.Graph.Inputs))
	}
	if len(model.Graph.Outputs) != 1 {
		t.Errorf("Expected 1 output, got %d", len(model.Graph.Outputs))
	}

	input := model.Graph.Inputs[0]
	if input.Name != "X" {
		t.Errorf("Expected input name 'X', got '%s'", input.Name)
	}
	if input.Type == nil || input.Type.TensorType == nil {
		t.Fatal("Input type info is nil")
	}
	if input.Type.TensorType.ElemType != TensorProtoFloat {
		t.Errorf("Expected float32 type, got %d", input.Type.TensorType.ElemType)
	}
	dims := input.Type.TensorType.Shape.Dims
	if len(dims) != 2 || dims[0].DimParam != "batch" || dims[1].DimValue != 784 {
		t.Errorf("Unexpected input shape %+v", dims)
	}
}

// TestParseOpsetVersion tests parsing opset version.
func TestParseOpsetVersion(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(model.OpsetImport) != 1 {
		t.Fatalf("Expected 1 opset import, got %d", len(model.OpsetImport))
	}
	if model.OpsetImport[0].Version != 13 {
		t.Errorf("Expected opset version 13, got %d", model.OpsetImport[0].Version)
	}
}

// TestParseExternalTensor tests decoding an external data descriptor.
func TestParseExternalTensor(t *testing.T) {
	tensor := buildExternalTensor("B", []StringStringEntry{
		{Key: "location", Value: "weights.data"},
		{Key: "offset", Value: "4096"},
		{Key: "length", Value: "2000"},
		{Key: "checksum", Value: "abc123"},
	}, true)
	model, err := Parse(buildModelWithTensors(tensor))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	init := &model.Graph.Initializers[0]
	if init.State() != PayloadExternal {
		t.Fatalf("Expected external payload, got %s", init.State())
	}
	ref, ok := init.ExternalData()
	if !ok {
		t.Fatal("ExternalData returned false")
	}
	want := ExternalData{Location: "weights.data", Offset: 4096, Length: 2000}
	if ref != want {
		t.Errorf("Expected %+v, got %+v", want, ref)
	}
	if init.PayloadSize() != 2000 {
		t.Errorf("Expected payload size 2000, got %d", init.PayloadSize())
	}
	if init.RawData() != nil {
		t.Error("External tensor must not expose raw data")
	}

	// The checksum key is not part of the descriptor record but must survive.
	out, err := Marshal(model)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Contains(out, []byte("abc123")) {
		t.Error("Pass-through descriptor key was dropped")
	}
}

// TestParseExternalDataErrors tests malformed external descriptors.
func TestParseExternalDataErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []StringStringEntry
	}{
		{"MissingLocation", []StringStringEntry{{"offset", "0"}, {"length", "4"}}},
		{"MissingOffset", []StringStringEntry{{"location", "w.bin"}, {"length", "4"}}},
		{"MissingLength", []StringStringEntry{{"location", "w.bin"}, {"offset", "0"}}},
		{"InvalidOffset", []StringStringEntry{{"location", "w.bin"}, {"offset", "not-a-number"}, {"length", "4"}}},
		{"NegativeLength", []StringStringEntry{{"location", "w.bin"}, {"offset", "0"}, {"length", "-4"}}},
		{"DuplicateKey", []StringStringEntry{{"location", "a"}, {"location", "b"}, {"offset", "0"}, {"length", "4"}}},
		{"FlagWithoutEntries", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildModelWithTensors(buildExternalTensor("W", tt.entries, true))
			_, err := Parse(data)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, ErrFormat) {
				t.Errorf("Expected ErrFormat, got %v", err)
			}
		})
	}
}

// TestParseRawAndExternal tests that a tensor cannot carry both payloads.
func TestParseRawAndExternal(t *testing.T) {
	b := &protoBuilder{}
	b.writeString(8, "W")
	b.writeString(9, "abcd")
	b.writeMessage(13, entryMessage("location", "w.bin"))
	b.writeMessage(13, entryMessage("offset", "0"))
	b.writeMessage(13, entryMessage("length", "4"))
	b.writeTag(14, protowire.VarintType)
	b.writeVarint(DataLocationExternal)

	_, err := Parse(buildModelWithTensors(b.data))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("Expected ErrFormat, got %v", err)
	}
}

// TestParseTruncated tests error handling for a cut-off message.
func TestParseTruncated(t *testing.T) {
	data := buildMatMulModel(make([]byte, 64))
	_, err := Parse(data[:len(data)-10])
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("Expected ErrFormat, got %v", err)
	}
}

// TestParseFile tests parsing from file.
func TestParseFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.onnx")
	if err := os.WriteFile(tmpFile, buildSimpleAddModel(), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	model, err := ParseFile(tmpFile)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if model.Graph == nil || len(model.Graph.Nodes) != 1 {
		t.Fatal("Unexpected graph")
	}
}

// TestParseInvalidFile tests error handling for non-existent file.
func TestParseInvalidFile(t *testing.T) {
	_, err := ParseFile("/nonexistent/file.onnx")
	if err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

// TestParseEmptyData tests that empty input yields an empty model.
func TestParseEmptyData(t *testing.T) {
	model, err := Parse([]byte{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if model.Graph != nil {
		t.Error("Expected no graph")
	}
}

// Helper: buildSimpleAddModel creates a minimal ONNX model with Add operation.
func buildSimpleAddModel() []byte {
	buf := &protoBuilder{}
	buf.writeTag(1, protowire.VarintType) // ir_version
	buf.writeVarint(7)
	buf.writeMessage(8, opsetMessage(13))
	buf.writeMessage(7, buildSimpleAddGraph())
	return buf.data
}

// buildSimpleAddGraph creates graph: Z = X + Y.
func buildSimpleAddGraph() []byte {
	buf := &protoBuilder{}
	buf.writeString(2, "simple_add")

	node := &protoBuilder{}
	node.writeString(1, "X")
	node.writeString(1, "Y")
	node.writeString(2, "Z")
	node.writeString(4, "Add")
	buf.writeMessage(1, node.data)

	buf.writeMessage(11, buildValueInfo("X", TensorProtoFloat, []int64{-1, 784}))
	buf.writeMessage(11, buildValueInfo("Y", TensorProtoFloat, []int64{-1, 784}))
	buf.writeMessage(12, buildValueInfo("Z", TensorProtoFloat, []int64{-1, 784}))
	return buf.data
}

// buildMatMulModel creates a model with MatMul and weight initializer W.
func buildMatMulModel(weights []byte) []byte {
	buf := &protoBuilder{}
	buf.writeTag(1, protowire.VarintType)
	buf.writeVarint(7)
	buf.writeMessage(8, opsetMessage(13))

	graph := &protoBuilder{}
	graph.writeString(2, "matmul_graph")

	node := &protoBuilder{}
	node.writeString(1, "X")
	node.writeString(1, "W")
	node.writeString(2, "Y")
	node.writeString(4, "MatMul")
	graph.writeMessage(1, node.data)

	graph.writeMessage(5, buildTensorProto("W", TensorProtoFloat, []int64{4, 4}, weights))
	graph.writeMessage(11, buildValueInfo("X", TensorProtoFloat, []int64{-1, 4}))
	graph.writeMessage(12, buildValueInfo("Y", TensorProtoFloat, []int64{-1, 4}))

	buf.writeMessage(7, graph.data)
	return buf.data
}

// buildModelWithTensors wraps encoded tensors into a model with one graph.
func buildModelWithTensors(tensors ...[]byte) []byte {
	graph := &protoBuilder{}
	graph.writeString(2, "g")
	for _, tensor := range tensors {
		graph.writeMessage(5, tensor)
	}
	buf := &protoBuilder{}
	buf.writeTag(1, protowire.VarintType)
	buf.writeVarint(8)
	buf.writeMessage(7, graph.data)
	return buf.data
}

// buildValueInfo creates ValueInfoProto. Negative dims become "batch".
//
//nolint:unparam // dtype mirrors TensorProto.data_type
func buildValueInfo(name string, dtype int32, shape []int64) []byte {
	shapeData := &protoBuilder{}
	for _, dim := range shape {
		dimData := &protoBuilder{}
		if dim > 0 {
			dimData.writeTag(1, protowire.VarintType)
			dimData.writeVarint(uint64(dim))
		} else {
			dimData.writeString(2, "batch")
		}
		shapeData.writeMessage(1, dimData.data)
	}

	tensorType := &protoBuilder{}
	tensorType.writeTag(1, protowire.VarintType)
	tensorType.writeVarint(uint64(dtype))
	tensorType.writeMessage(2, shapeData.data)

	typeData := &protoBuilder{}
	typeData.writeMessage(1, tensorType.data)

	buf := &protoBuilder{}
	buf.writeString(1, name)
	buf.writeMessage(2, typeData.data)
	return buf.data
}

// buildTensorProto creates an inline TensorProto in canonical field order.
func buildTensorProto(name string, dtype int32, dims []int64, rawData []byte) []byte {
	buf := &protoBuilder{}
	for _, dim := range dims {
		buf.writeTag(1, protowire.VarintType)
		buf.writeVarint(uint64(dim))
	}
	buf.writeTag(2, protowire.VarintType)
	buf.writeVarint(uint64(dtype))
	buf.writeString(8, name)
	buf.writeTag(9, protowire.BytesType)
	buf.writeBytes(rawData)
	return buf.data
}

// buildExternalTensor creates a TensorProto carrying external_data entries.
func buildExternalTensor(name string, entries []StringStringEntry, flag bool) []byte {
	buf := &protoBuilder{}
	buf.writeTag(2, protowire.VarintType)
	buf.writeVarint(TensorProtoFloat)
	buf.writeString(8, name)
	for _, e := range entries {
		buf.writeMessage(13, entryMessage(e.Key, e.Value))
	}
	if flag {
		buf.writeTag(14, protowire.VarintType)
		buf.writeVarint(DataLocationExternal)
	}
	return buf.data
}

func entryMessage(key, value string) []byte {
	buf := &protoBuilder{}
	buf.writeString(1, key)
	buf.writeString(2, value)
	return buf.data
}

func opsetMessage(version uint64) []byte {
	buf := &protoBuilder{}
	buf.writeString(1, "")
	buf.writeTag(2, protowire.VarintType)
	buf.writeVarint(version)
	return buf.data
}

// protoBuilder helps construct protobuf messages.
type protoBuilder struct {
	data []byte
}

func (b *protoBuilder) writeTag(fieldNum protowire.Number, wireType protowire.Type) {
	b.data = protowire.AppendTag(b.data, fieldNum, wireType)
}

func (b *protoBuilder) writeVarint(v uint64) {
	b.data = protowire.AppendVarint(b.data, v)
}

func (b *protoBuilder) writeBytes(data []byte) {
	b.data = protowire.AppendBytes(b.data, data)
}

// writeString writes a length-delimited field even when s is empty.
func (b *protoBuilder) writeString(fieldNum protowire.Number, s string) {
	b.writeTag(fieldNum, protowire.BytesType)
	b.writeBytes([]byte(s))
}

func (b *protoBuilder) writeMessage(fieldNum protowire.Number, msg []byte) {
	b.writeTag(fieldNum, protowire.BytesType)
	b.writeBytes(msg)
}
