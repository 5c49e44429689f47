package onnx

import (
	"errors"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal serializes a model to protobuf wire format.
//
// For a parsed model every field is replayed exactly as it was read, except
// graph initializers, which are re-encoded from their current state. A model
// built in memory is encoded from its typed fields.
func Marshal(m *ModelProto) ([]byte, error) {
	if m == nil {
		return nil, errors.New("model is nil")
	}
	if m.fields == nil {
		return appendModelTyped(nil, m), nil
	}

	var b []byte
	graphWritten := false
	for _, f := range m.fields {
		if f.slot < 0 {
			b = append(b, f.raw...)
			continue
		}
		if m.Graph != nil && !graphWritten {
			b = appendMessage(b, 7, appendGraph(nil, m.Graph))
			graphWritten = true
		}
	}
	if m.Graph != nil && !graphWritten {
		b = appendMessage(b, 7, appendGraph(nil, m.Graph))
	}
	return b, nil
}

// WriteFile serializes a model and writes it to path.
func WriteFile(path string, m *ModelProto) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: model files are not secrets
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// appendModelTyped encodes a model built in memory.
func appendModelTyped(b []byte, m *ModelProto) []byte {
	if m.IRVersion != 0 {
		b = appendVarint(b, 1, uint64(m.IRVersion)) //nolint:gosec // G115: int64 round-trips through varint.
	}
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	if m.ModelVersion != 0 {
		b = appendVarint(b, 5, uint64(m.ModelVersion)) //nolint:gosec // G115: int64 round-trips through varint.
	}
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, appendGraph(nil, m.Graph))
	}
	for _, opset := range m.OpsetImport {
		var sub []byte
		sub = appendString(sub, 1, opset.Domain)
		sub = appendVarint(sub, 2, uint64(opset.Version)) //nolint:gosec // G115: int64 round-trips through varint.
		b = appendMessage(b, 8, sub)
	}
	for _, entry := range m.MetadataProps {
		b = appendMessage(b, 14, appendEntry(nil, entry))
	}
	return b
}

// appendGraph encodes the body of a GraphProto.
func appendGraph(b []byte, g *GraphProto) []byte {
	if g.fields == nil {
		return appendGraphTyped(b, g)
	}

	written := make([]bool, len(g.Initializers))
	for _, f := range g.fields {
		if f.slot < 0 {
			b = append(b, f.raw...)
			continue
		}
		if f.slot < len(g.Initializers) && !written[f.slot] {
			b = appendMessage(b, 5, appendTensor(nil, &g.Initializers[f.slot]))
			written[f.slot] = true
		}
	}
	// Initializers appended after parsing go last.
	for i := range g.Initializers {
		if !written[i] {
			b = appendMessage(b, 5, appendTensor(nil, &g.Initializers[i]))
		}
	}
	return b
}

// appendGraphTyped encodes a graph built in memory.
func appendGraphTyped(b []byte, g *GraphProto) []byte {
	for i := range g.Nodes {
		b = appendMessage(b, 1, appendNode(nil, &g.Nodes[i]))
	}
	b = appendString(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessage(b, 5, appendTensor(nil, &g.Initializers[i]))
	}
	b = appendString(b, 10, g.DocString)
	for i := range g.Inputs {
		b = appendMessage(b, 11, appendValueInfo(nil, &g.Inputs[i]))
	}
	for i := range g.Outputs {
		b = appendMessage(b, 12, appendValueInfo(nil, &g.Outputs[i]))
	}
	for i := range g.ValueInfo {
		b = appendMessage(b, 13, appendValueInfo(nil, &g.ValueInfo[i]))
	}
	return b
}

// appendTensor encodes the body of a TensorProto from its current payload state.
func appendTensor(b []byte, t *TensorProto) []byte {
	for _, d := range t.Dims {
		b = appendVarint(b, 1, uint64(d)) //nolint:gosec // G115: int64 round-trips through varint.
	}
	if t.DataType != 0 {
		b = appendVarint(b, 2, uint64(t.DataType)) //nolint:gosec // G115: int32 round-trips through varint.
	}
	b = appendString(b, 8, t.Name)

	state := t.State()
	if state == PayloadInline {
		// Written even when empty so presence survives.
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.rawData)
	}
	b = appendString(b, 12, t.DocString)
	if state == PayloadExternal {
		for _, entry := range t.external.entries(t.externalExt) {
			b = appendMessage(b, 13, appendEntry(nil, entry))
		}
		b = appendVarint(b, 14, DataLocationExternal)
	}
	return append(b, t.extra...)
}

func appendNode(b []byte, n *NodeProto) []byte {
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, n.Name)
	b = appendString(b, 4, n.OpType)
	return appendString(b, 7, n.Domain)
}

func appendValueInfo(b []byte, vi *ValueInfoProto) []byte {
	b = appendString(b, 1, vi.Name)
	if vi.Type != nil && vi.Type.TensorType != nil {
		tt := vi.Type.TensorType
		var tensorType []byte
		if tt.ElemType != 0 {
			tensorType = appendVarint(tensorType, 1, uint64(tt.ElemType)) //nolint:gosec // G115: int32 round-trips through varint.
		}
		if tt.Shape != nil {
			var shape []byte
			for _, dim := range tt.Shape.Dims {
				var d []byte
				if dim.DimParam != "" {
					d = appendString(d, 2, dim.DimParam)
				} else {
					d = appendVarint(d, 1, uint64(dim.DimValue)) //nolint:gosec // G115: int64 round-trips through varint.
				}
				shape = appendMessage(shape, 1, d)
			}
			tensorType = appendMessage(tensorType, 2, shape)
		}
		b = appendMessage(b, 2, appendMessage(nil, 1, tensorType))
	}
	return appendString(b, 3, vi.DocString)
}

func appendEntry(b []byte, e StringStringEntry) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, e.Key)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendString(b, e.Value)
}

// appendString writes a string field, omitting it when empty.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}
