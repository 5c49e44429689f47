package payload

import (
	"fmt"

	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
	"github.com/tarekziade/onnx-native/internal/parallel"
)

type readJob struct {
	index int
	ref   onnx.ExternalData
	path  string
}

// Rehydrate re-inlines every external initializer of m, resolving locations
// against baseDir. Inline tensors are untouched.
//
// All payloads are read before any tensor is modified: if a descriptor or
// read fails, m is left exactly as it was.
func Rehydrate(m *onnx.ModelProto, baseDir string, opts ...Option) error {
	o := newOptions(opts)
	if m == nil || m.Graph == nil {
		return fmt.Errorf("%w: model has no graph", onnx.ErrFormat)
	}
	inits := m.Graph.Initializers

	var jobs []readJob
	for i := range inits {
		ref, ok := inits[i].ExternalData()
		if !ok {
			continue
		}
		path, err := ref.Resolve(baseDir)
		if err != nil {
			return &TensorError{Tensor: inits[i].Name, Op: "resolve", Err: err}
		}
		jobs = append(jobs, readJob{index: i, ref: ref, path: path})
	}
	if len(jobs) == 0 {
		return nil
	}

	readers := make(map[string]*bytestore.Reader)
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()
	for _, j := range jobs {
		if _, ok := readers[j.path]; ok {
			continue
		}
		r, err := bytestore.Open(j.path, bytestore.WithMmap(o.mmap))
		if err != nil {
			return &TensorError{Tensor: inits[j.index].Name, Op: "open", Err: err}
		}
		readers[j.path] = r
	}

	payloads := make([][]byte, len(jobs))
	err := parallel.ForEach(len(jobs), func(k int) error {
		j := jobs[k]
		data, err := readers[j.path].ReadAt(j.ref.Offset, j.ref.Length)
		if err != nil {
			return &TensorError{Tensor: inits[j.index].Name, Op: "read", Err: err}
		}
		payloads[k] = data
		return nil
	}, parallel.Workers(o.workers))
	if err != nil {
		o.logger.Error().Err(err).Msg("rehydration failed, graph left unchanged")
		return err
	}

	var total int64
	for k, j := range jobs {
		inits[j.index].SetRawData(payloads[k])
		total += j.ref.Length
		o.logger.Debug().
			Str("tensor", inits[j.index].Name).
			Str("location", j.ref.Location).
			Int64("offset", j.ref.Offset).
			Int64("length", j.ref.Length).
			Msg("re-inlined")
	}

	o.logger.Info().
		Int("tensors", len(jobs)).
		Int("stores", len(readers)).
		Int64("bytes", total).
		Msg("rehydrated graph")
	return nil
}
