package payload

import (
	"fmt"

	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
)

// Placement records where a split put one tensor's payload.
type Placement struct {
	Tensor string
	bytestore.Range
}

// SplitResult summarizes a split.
type SplitResult struct {
	Externalized []Placement // in store order
	InlineCount  int         // initializers left in the graph as they were
	InlineBytes  int64
	StoreBytes   int64 // bytes appended by this split
}

// Split externalizes every initializer of m in stored order, so offsets grow
// with initializer index. Tensors that are already external or below the
// threshold are left as they are.
//
// m is modified in place. On error, tensors processed before the failure stay
// external and point at fully written ranges.
func Split(m *onnx.ModelProto, w Store, opts ...Option) (*SplitResult, error) {
	o := newOptions(opts)
	if m == nil || m.Graph == nil {
		return nil, fmt.Errorf("%w: model has no graph", onnx.ErrFormat)
	}

	res := &SplitResult{}
	for i := range m.Graph.Initializers {
		t := &m.Graph.Initializers[i]

		moved, err := Externalize(t, w, o.threshold)
		if err != nil {
			return nil, err
		}
		if !moved {
			res.InlineCount++
			if t.State() == onnx.PayloadInline {
				res.InlineBytes += t.PayloadSize()
			}
			o.logger.Debug().
				Str("tensor", t.Name).
				Stringer("state", t.State()).
				Int64("size", t.PayloadSize()).
				Msg("kept in graph")
			continue
		}

		ref, _ := t.ExternalData()
		res.Externalized = append(res.Externalized, Placement{
			Tensor: t.Name,
			Range:  bytestore.Range{Offset: ref.Offset, Length: ref.Length},
		})
		res.StoreBytes += ref.Length
		o.logger.Debug().
			Str("tensor", t.Name).
			Int64("offset", ref.Offset).
			Int64("length", ref.Length).
			Msg("externalized")
	}

	o.logger.Info().
		Str("location", w.Location()).
		Int("externalized", len(res.Externalized)).
		Int("inline", res.InlineCount).
		Int64("store_bytes", res.StoreBytes).
		Msg("split graph")
	return res, nil
}
