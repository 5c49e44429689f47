package inference

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Input is one named input tensor. Exactly one of Int64 or Float32 is set.
type Input struct {
	Name    string
	Shape   []int64
	Int64   []int64
	Float32 []float32
}

// Output is one named float32 output tensor.
type Output struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Session is a loaded model ready to run.
type Session struct {
	session *ort.DynamicAdvancedSession
	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo
}

// NewSession loads a serialized model into a new session, initializing the
// runtime first if needed. Input and output names are discovered from the
// model itself.
func (r *Runtime) NewSession(model []byte) (*Session, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}

	so, err := r.sessionOptions()
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model, infoNames(inputs), infoNames(outputs), so)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.opts.Logger.Debug().
		Strs("inputs", infoNames(inputs)).
		Strs("outputs", infoNames(outputs)).
		Int("model_bytes", len(model)).
		Msg("session created")
	return &Session{session: session, inputs: inputs, outputs: outputs}, nil
}

func infoNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// InputNames returns the model's input names in session order.
func (s *Session) InputNames() []string {
	return infoNames(s.inputs)
}

// OutputNames returns the model's output names in session order.
func (s *Session) OutputNames() []string {
	return infoNames(s.outputs)
}

// Run executes the model. Every session input must be provided; outputs are
// returned in session order.
func (s *Session) Run(inputs []Input) ([]Output, error) {
	byName := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}

	values := make([]ort.Value, len(s.inputs))
	defer destroyAll(values)
	for i, info := range s.inputs {
		in, ok := byName[info.Name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", info.Name)
		}
		v, err := newValue(in)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	// nil outputs are allocated by ONNX Runtime with their real shapes.
	outputs := make([]ort.Value, len(s.outputs))
	defer destroyAll(outputs)
	if err := s.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	result := make([]Output, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q: unsupported value type %T", s.outputs[i].Name, v)
		}
		result[i] = Output{
			Name:  s.outputs[i].Name,
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), t.GetData()...),
		}
	}
	return result, nil
}

func newValue(in Input) (ort.Value, error) {
	shape := ort.NewShape(in.Shape...)
	switch {
	case in.Int64 != nil && in.Float32 != nil:
		return nil, fmt.Errorf("input %q: both int64 and float32 data set", in.Name)
	case in.Int64 != nil:
		t, err := ort.NewTensor(shape, in.Int64)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		return t, nil
	case in.Float32 != nil:
		t, err := ort.NewTensor(shape, in.Float32)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("input %q: no data", in.Name)
	}
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}

// Destroy releases the session.
func (s *Session) Destroy() error {
	return s.session.Destroy()
}
