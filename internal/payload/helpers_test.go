package payload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tarekziade/onnx-native/internal/onnx"
)

// pattern returns n bytes that differ per seed.
func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i) ^ seed
	}
	return out
}

func tensor(name string, raw []byte) onnx.TensorProto {
	return onnx.NewTensor(name, onnx.TensorProtoUint8, []int64{int64(len(raw))}, raw)
}

func valueInfo(name string) onnx.ValueInfoProto {
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
			ElemType: onnx.TensorProtoUint8,
			Shape:    &onnx.TensorShapeProto{Dims: []onnx.DimensionProto{{DimParam: "n"}}},
		}},
	}
}

// buildModel encodes a small model holding tensors as initializers and returns
// its canonical bytes.
func buildModel(t *testing.T, tensors ...onnx.TensorProto) []byte {
	t.Helper()

	nodes := make([]onnx.NodeProto, 0, len(tensors))
	for _, tp := range tensors {
		nodes = append(nodes, onnx.NodeProto{
			Name:    "add_" + tp.Name,
			OpType:  "Add",
			Inputs:  []string{"X", tp.Name},
			Outputs: []string{"Y_" + tp.Name},
		})
	}

	model := &onnx.ModelProto{
		IRVersion:    8,
		ProducerName: "payload-test",
		OpsetImport:  []onnx.OperatorSetID{{Version: 17}},
		Graph: &onnx.GraphProto{
			Name:         "g",
			Nodes:        nodes,
			Initializers: tensors,
			Inputs:       []onnx.ValueInfoProto{valueInfo("X")},
			Outputs:      []onnx.ValueInfoProto{valueInfo("Y")},
		},
		MetadataProps: []onnx.StringStringEntry{{Key: "purpose", Value: "test"}},
	}

	data, err := onnx.Marshal(model)
	require.NoError(t, err)
	return data
}

func parseModel(t *testing.T, data []byte) *onnx.ModelProto {
	t.Helper()

	m, err := onnx.Parse(data)
	require.NoError(t, err)
	return m
}

func marshal(t *testing.T, m *onnx.ModelProto) []byte {
	t.Helper()

	data, err := onnx.Marshal(m)
	require.NoError(t, err)
	return data
}
