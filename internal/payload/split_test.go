package payload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
)

func newStore(t *testing.T) (*bytestore.Writer, string) {
	t.Helper()

	dir := t.TempDir()
	w, err := bytestore.Create(dir, "weights.data")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, dir
}

func TestExternalizeThresholdBoundary(t *testing.T) {
	const threshold = 1024

	tests := []struct {
		name     string
		size     int
		external bool
	}{
		{"below", threshold - 1, false},
		{"equal", threshold, true},
		{"above", threshold + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newStore(t)
			tp := tensor("W", pattern(tt.size, 1))

			moved, err := Externalize(&tp, w, threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.external, moved)
			if tt.external {
				assert.Equal(t, onnx.PayloadExternal, tp.State())
				assert.Equal(t, int64(tt.size), w.Size())
			} else {
				assert.Equal(t, onnx.PayloadInline, tp.State())
				assert.Zero(t, w.Size())
			}
		})
	}
}

func TestExternalizeZeroLength(t *testing.T) {
	w, _ := newStore(t)

	for _, threshold := range []int64{0, 1, 1024} {
		tp := tensor("E", nil)
		moved, err := Externalize(&tp, w, threshold)
		require.NoError(t, err)
		assert.False(t, moved)
		assert.Equal(t, onnx.PayloadInline, tp.State())
	}
	assert.Zero(t, w.Size())
}

func TestExternalizeSkipsNonInline(t *testing.T) {
	w, _ := newStore(t)

	external := tensor("X", nil)
	external.SetExternal(onnx.ExternalData{Location: "other.data", Offset: 8, Length: 4096})
	moved, err := Externalize(&external, w, 1)
	require.NoError(t, err)
	assert.False(t, moved)
	ref, _ := external.ExternalData()
	assert.Equal(t, "other.data", ref.Location)

	var typed onnx.TensorProto
	moved, err = Externalize(&typed, w, 1)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, onnx.PayloadNone, typed.State())
}

// failingStore rejects every append.
type failingStore struct{ err error }

func (s failingStore) Append([]byte) (bytestore.Range, error) { return bytestore.Range{}, s.err }
func (s failingStore) Location() string                       { return "broken.data" }

func TestExternalizeWriteFailureKeepsInline(t *testing.T) {
	raw := pattern(2048, 3)
	tp := tensor("W", raw)

	moved, err := Externalize(&tp, failingStore{err: bytestore.ErrShortWrite}, 1024)
	require.Error(t, err)
	assert.False(t, moved)
	assert.ErrorIs(t, err, bytestore.ErrShortWrite)

	var tensorErr *TensorError
	require.True(t, errors.As(err, &tensorErr))
	assert.Equal(t, "W", tensorErr.Tensor)
	assert.Equal(t, "externalize", tensorErr.Op)

	assert.Equal(t, onnx.PayloadInline, tp.State())
	assert.Equal(t, raw, tp.RawData())
}

func TestSplitWorkedExample(t *testing.T) {
	a, b, c := pattern(10, 1), pattern(2000, 2), pattern(500, 3)
	original := buildModel(t, tensor("A", a), tensor("B", b), tensor("C", c))
	model := parseModel(t, original)
	w, dir := newStore(t)

	res, err := Split(model, w, WithThreshold(1024))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	inits := model.Graph.Initializers
	assert.Equal(t, onnx.PayloadInline, inits[0].State())
	assert.Equal(t, onnx.PayloadInline, inits[2].State())
	ref, ok := inits[1].ExternalData()
	require.True(t, ok)
	assert.Equal(t, onnx.ExternalData{Location: "weights.data", Offset: 0, Length: 2000}, ref)

	assert.Equal(t, []Placement{{Tensor: "B", Range: bytestore.Range{Offset: 0, Length: 2000}}}, res.Externalized)
	assert.Equal(t, 2, res.InlineCount)
	assert.Equal(t, int64(510), res.InlineBytes)
	assert.Equal(t, int64(2000), res.StoreBytes)

	stored, err := os.ReadFile(filepath.Join(dir, "weights.data"))
	require.NoError(t, err)
	assert.Equal(t, b, stored)

	// The slim graph reparses to the same layout and rehydrates to the original.
	slim := parseModel(t, marshal(t, model))
	require.NoError(t, Rehydrate(slim, dir))
	assert.Equal(t, b, slim.Graph.Initializers[1].RawData())
	assert.True(t, bytes.Equal(original, marshal(t, slim)))
}

func TestSplitOffsetsFollowStoredOrder(t *testing.T) {
	sizes := []int{3000, 10, 1500, 4096, 1024}
	tensors := make([]onnx.TensorProto, len(sizes))
	for i, n := range sizes {
		tensors[i] = tensor(string(rune('a'+i)), pattern(n, byte(i)))
	}
	model := parseModel(t, buildModel(t, tensors...))
	w, _ := newStore(t)

	res, err := Split(model, w, WithThreshold(1024))
	require.NoError(t, err)

	require.Len(t, res.Externalized, 4)
	var next int64
	ranges := make([]bytestore.NamedRange, 0, len(res.Externalized))
	for _, p := range res.Externalized {
		assert.Equal(t, next, p.Offset, "tensor %s", p.Tensor)
		next = p.End()
		ranges = append(ranges, bytestore.NamedRange{Name: p.Tensor, Range: p.Range})
	}
	assert.Equal(t, []string{"a", "c", "d", "e"}, placementNames(res.Externalized))
	assert.Equal(t, next, w.Size())
	assert.NoError(t, bytestore.ValidateRanges(ranges, w.Size()))
}

func placementNames(ps []Placement) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Tensor
	}
	return names
}

func TestSplitRoundTripIdentity(t *testing.T) {
	tensors := []onnx.TensorProto{
		tensor("empty", nil),
		tensor("tiny", pattern(1, 9)),
		tensor("small", pattern(700, 8)),
		tensor("big", pattern(70_000, 7)),
		tensor("edge", pattern(1024, 6)),
	}
	original := buildModel(t, tensors...)

	for _, threshold := range []int64{0, 1, 512, 1024, 1 << 20} {
		model := parseModel(t, original)
		w, dir := newStore(t)

		_, err := Split(model, w, WithThreshold(threshold))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		slim := parseModel(t, marshal(t, model))
		require.NoError(t, Rehydrate(slim, dir, WithWorkers(3)))

		for i := range tensors {
			assert.Equal(t, tensors[i].RawData(), slim.Graph.Initializers[i].RawData(),
				"threshold %d tensor %s", threshold, tensors[i].Name)
		}
		assert.True(t, bytes.Equal(original, marshal(t, slim)), "threshold %d", threshold)
	}
}

func TestSplitPartiallyExternalGraph(t *testing.T) {
	first := tensor("first", pattern(2048, 1))
	first.SetExternal(onnx.ExternalData{Location: "old.data", Offset: 0, Length: 2048})
	model := parseModel(t, buildModel(t, first, tensor("second", pattern(4096, 2)), tensor("third", pattern(8, 3))))
	w, _ := newStore(t)

	res, err := Split(model, w, WithThreshold(1024))
	require.NoError(t, err)

	ref, ok := model.Graph.Initializers[0].ExternalData()
	require.True(t, ok)
	assert.Equal(t, onnx.ExternalData{Location: "old.data", Offset: 0, Length: 2048}, ref)

	ref, ok = model.Graph.Initializers[1].ExternalData()
	require.True(t, ok)
	assert.Equal(t, onnx.ExternalData{Location: "weights.data", Offset: 0, Length: 4096}, ref)

	assert.Equal(t, onnx.PayloadInline, model.Graph.Initializers[2].State())
	assert.Len(t, res.Externalized, 1)
	assert.Equal(t, int64(4096), w.Size())
}

func TestSplitIdempotentOnFreshStore(t *testing.T) {
	original := buildModel(t, tensor("A", pattern(10, 1)), tensor("B", pattern(5000, 2)))

	split := func() ([]byte, []byte) {
		model := parseModel(t, original)
		w, dir := newStore(t)
		_, err := Split(model, w)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		store, err := os.ReadFile(filepath.Join(dir, "weights.data"))
		require.NoError(t, err)
		return marshal(t, model), store
	}

	graph1, store1 := split()
	graph2, store2 := split()
	assert.Equal(t, graph1, graph2)
	assert.Equal(t, store1, store2)
}

func TestSplitNoGraph(t *testing.T) {
	w, _ := newStore(t)

	_, err := Split(&onnx.ModelProto{}, w)
	assert.ErrorIs(t, err, onnx.ErrFormat)
	_, err = Split(nil, w)
	assert.ErrorIs(t, err, onnx.ErrFormat)
}

func TestSplitStopsOnWriteFailure(t *testing.T) {
	model := parseModel(t, buildModel(t, tensor("A", pattern(10, 1)), tensor("B", pattern(5000, 2))))

	_, err := Split(model, failingStore{err: errors.New("disk full")}, WithThreshold(1024))
	require.Error(t, err)
	assert.Equal(t, onnx.PayloadInline, model.Graph.Initializers[1].State())
}
