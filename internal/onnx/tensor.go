package onnx

// PayloadState tells where a tensor's raw bytes live.
type PayloadState int

const (
	// PayloadNone means the tensor carries no raw_data (typed data fields or empty).
	PayloadNone PayloadState = iota
	// PayloadInline means the bytes are embedded in raw_data.
	PayloadInline
	// PayloadExternal means the bytes live in a byte store.
	PayloadExternal
)

// String returns the state name.
func (s PayloadState) String() string {
	switch s {
	case PayloadInline:
		return "inline"
	case PayloadExternal:
		return "external"
	default:
		return "none"
	}
}

// NewTensor creates an initializer tensor with an inline payload.
func NewTensor(name string, dataType int32, dims []int64, raw []byte) TensorProto {
	t := TensorProto{
		Name:     name,
		DataType: dataType,
		Dims:     dims,
	}
	t.SetRawData(raw)
	return t
}

// State returns the current payload state.
func (t *TensorProto) State() PayloadState {
	switch {
	case t.external != nil:
		return PayloadExternal
	case t.hasRawData:
		return PayloadInline
	default:
		return PayloadNone
	}
}

// RawData returns the inline payload, or nil when the tensor is not inline.
func (t *TensorProto) RawData() []byte {
	if t.external != nil {
		return nil
	}
	return t.rawData
}

// ExternalData returns the external descriptor when the tensor is external.
func (t *TensorProto) ExternalData() (ExternalData, bool) {
	if t.external == nil {
		return ExternalData{}, false
	}
	return *t.external, true
}

// PayloadSize returns the byte size of the raw content in either state.
func (t *TensorProto) PayloadSize() int64 {
	switch t.State() {
	case PayloadInline:
		return int64(len(t.rawData))
	case PayloadExternal:
		return t.external.Length
	default:
		return 0
	}
}

// SetRawData switches the tensor to the inline state, dropping any external
// descriptor.
func (t *TensorProto) SetRawData(raw []byte) {
	if raw == nil {
		raw = []byte{}
	}
	t.rawData = raw
	t.hasRawData = true
	t.external = nil
	t.externalExt = nil
}

// SetExternal switches the tensor to the external state. The inline buffer is
// released.
func (t *TensorProto) SetExternal(ref ExternalData) {
	t.rawData = nil
	t.hasRawData = false
	t.external = &ref
	t.externalExt = nil
}
