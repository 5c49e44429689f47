package payload

import (
	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
)

// Store is the append side of a byte store.
type Store interface {
	Append(data []byte) (bytestore.Range, error)
	Location() string
}

// Externalize moves t's inline payload to w when it holds at least threshold
// bytes. Empty payloads and tensors without raw_data are left alone.
// The descriptor is only switched after the append succeeded.
func Externalize(t *onnx.TensorProto, w Store, threshold int64) (bool, error) {
	if t.State() != onnx.PayloadInline {
		return false, nil
	}

	raw := t.RawData()
	if len(raw) == 0 || int64(len(raw)) < threshold {
		return false, nil
	}

	rng, err := w.Append(raw)
	if err != nil {
		return false, &TensorError{Tensor: t.Name, Op: "externalize", Err: err}
	}

	t.SetExternal(onnx.ExternalData{
		Location: w.Location(),
		Offset:   rng.Offset,
		Length:   rng.Length,
	})
	return true, nil
}
