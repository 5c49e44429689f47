package onnx

import (
	"errors"
	"fmt"
	"io"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
//
// The returned model aliases data: byte slices inside it (raw tensor
// payloads, verbatim fields) point into the input buffer.
func Parse(data []byte) (*ModelProto, error) {
	p := &parser{data: data, pos: 0}
	model := &ModelProto{}
	if err := p.readModelProto(model); err != nil {
		return nil, fmt.Errorf("%w: failed to parse model: %w", ErrFormat, err)
	}
	return model, nil
}

// parser is a protobuf wire format decoder over a single message.
type parser struct {
	data []byte
	pos  int
}

// readModelProto reads ModelProto message.
//
//nolint:gocognit,gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func (p *parser) readModelProto(m *ModelProto) error {
	for p.pos < len(p.data) {
		start := p.pos
		num, typ, err := p.readTag()
		if err != nil {
			return err
		}

		slot := -1
		switch num {
		case 1: // ir_version
			m.IRVersion, err = p.readInt64(typ)
		case 2: // producer_name
			m.ProducerName, err = p.readString(typ)
		case 3: // producer_version
			m.ProducerVersion, err = p.readString(typ)
		case 4: // domain
			m.Domain, err = p.readString(typ)
		case 5: // model_version
			m.ModelVersion, err = p.readInt64(typ)
		case 6: // doc_string
			m.DocString, err = p.readString(typ)
		case 7: // graph
			if m.Graph != nil {
				return errors.New("duplicate graph field")
			}
			m.Graph = &GraphProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readGraphProto(m.Graph) })
			slot = 0
		case 8: // opset_import
			opset := OperatorSetID{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readOperatorSetID(&opset) })
			m.OpsetImport = append(m.OpsetImport, opset)
		case 14: // metadata_props
			entry := StringStringEntry{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readStringStringEntry(&entry) })
			m.MetadataProps = append(m.MetadataProps, entry)
		default:
			err = p.skipField(num, typ)
		}
		if err != nil {
			return fmt.Errorf("model field %d: %w", num, err)
		}
		m.fields = append(m.fields, rawField{num: num, raw: p.data[start:p.pos], slot: slot})
	}
	return nil
}

// readGraphProto reads GraphProto message.
//
//nolint:gocognit,gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func (p *parser) readGraphProto(m *GraphProto) error {
	for p.pos < len(p.data) {
		start := p.pos
		num, typ, err := p.readTag()
		if err != nil {
			return err
		}

		slot := -1
		switch num {
		case 1: // node
			node := NodeProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readNodeProto(&node) })
			m.Nodes = append(m.Nodes, node)
		case 2: // name
			m.Name, err = p.readString(typ)
		case 5: // initializer
			tensor := TensorProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readTensorProto(&tensor) })
			if err != nil {
				err = fmt.Errorf("initializer %d: %w", len(m.Initializers), err)
			}
			slot = len(m.Initializers)
			m.Initializers = append(m.Initializers, tensor)
		case 10: // doc_string
			m.DocString, err = p.readString(typ)
		case 11: // input
			vi := ValueInfoProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readValueInfoProto(&vi) })
			m.Inputs = append(m.Inputs, vi)
		case 12: // output
			vi := ValueInfoProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readValueInfoProto(&vi) })
			m.Outputs = append(m.Outputs, vi)
		case 13: // value_info
			vi := ValueInfoProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readValueInfoProto(&vi) })
			m.ValueInfo = append(m.ValueInfo, vi)
		default:
			err = p.skipField(num, typ)
		}
		if err != nil {
			return fmt.Errorf("graph field %d: %w", num, err)
		}
		m.fields = append(m.fields, rawField{num: num, raw: p.data[start:p.pos], slot: slot})
	}
	return nil
}

// readTensorProto reads TensorProto message. Payload fields are decoded into
// the tensor's payload state; fields the codec does not manage are kept as
// raw bytes.
//
//nolint:gocognit,gocyclo,cyclop,funlen // Protobuf parsing requires field-by-field switch logic
func (p *parser) readTensorProto(m *TensorProto) error {
	var (
		entries  []StringStringEntry
		location int64
	)
	for p.pos < len(p.data) {
		start := p.pos
		num, typ, err := p.readTag()
		if err != nil {
			return err
		}

		switch num {
		case 1: // dims (repeated int64, packed or not)
			if typ == protowire.BytesType {
				var data []byte
				data, err = p.readBytes(typ)
				if err != nil {
					return err
				}
				sub := &parser{data: data, pos: 0}
				for sub.pos < len(sub.data) {
					v, err2 := sub.readInt64(protowire.VarintType)
					if err2 != nil {
						return err2
					}
					m.Dims = append(m.Dims, v)
				}
				continue
			}
			var v int64
			v, err = p.readInt64(typ)
			m.Dims = append(m.Dims, v)
		case 2: // data_type
			var v int64
			v, err = p.readInt64(typ)
			m.DataType = int32(v) //nolint:gosec // G115: ONNX protobuf varint fits in int32.
		case 8: // name
			m.Name, err = p.readString(typ)
		case 9: // raw_data
			m.rawData, err = p.readBytes(typ)
			m.hasRawData = true
		case 12: // doc_string
			m.DocString, err = p.readString(typ)
		case 13: // external_data
			entry := StringStringEntry{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readStringStringEntry(&entry) })
			entries = append(entries, entry)
		case 14: // data_location
			location, err = p.readInt64(typ)
		default:
			if err = p.skipField(num, typ); err == nil {
				m.extra = append(m.extra, p.data[start:p.pos]...)
			}
		}
		if err != nil {
			return fmt.Errorf("tensor field %d: %w", num, err)
		}
	}

	switch location {
	case DataLocationDefault:
		if len(entries) == 0 {
			return nil
		}
	case DataLocationExternal:
	default:
		return fmt.Errorf("tensor %q: unknown data_location %d", m.Name, location)
	}

	if len(m.rawData) > 0 {
		return fmt.Errorf("tensor %q: both raw_data and external_data are set", m.Name)
	}
	ref, extra, err := parseExternalData(entries)
	if err != nil {
		return fmt.Errorf("tensor %q: %w", m.Name, err)
	}
	m.SetExternal(ref)
	m.externalExt = extra
	return nil
}

// readNodeProto reads NodeProto message.
func (p *parser) readNodeProto(m *NodeProto) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var (
			s   string
			err error
		)
		switch num {
		case 1: // input
			s, err = p.readString(typ)
			m.Inputs = append(m.Inputs, s)
		case 2: // output
			s, err = p.readString(typ)
			m.Outputs = append(m.Outputs, s)
		case 3: // name
			m.Name, err = p.readString(typ)
		case 4: // op_type
			m.OpType, err = p.readString(typ)
		case 5: // attribute
			m.AttributeCount++
			return false, nil
		case 7: // domain
			m.Domain, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
}

// readValueInfoProto reads ValueInfoProto message.
func (p *parser) readValueInfoProto(m *ValueInfoProto) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // name
			m.Name, err = p.readString(typ)
		case 2: // type
			m.Type = &TypeProto{}
			err = p.readMessage(typ, func(sub *parser) error { return sub.readTypeProto(m.Type) })
		case 3: // doc_string
			m.DocString, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
}

// readTypeProto reads TypeProto message.
func (p *parser) readTypeProto(m *TypeProto) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		if num != 1 { // tensor_type
			return false, nil
		}
		m.TensorType = &TensorTypeProto{}
		return true, p.readMessage(typ, func(sub *parser) error { return sub.readTensorTypeProto(m.TensorType) })
	})
}

// readTensorTypeProto reads TensorTypeProto message.
func (p *parser) readTensorTypeProto(m *TensorTypeProto) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		switch num {
		case 1: // elem_type
			v, err := p.readInt64(typ)
			m.ElemType = int32(v) //nolint:gosec // G115: ONNX protobuf varint fits in int32.
			return true, err
		case 2: // shape
			m.Shape = &TensorShapeProto{}
			return true, p.readMessage(typ, func(sub *parser) error { return sub.readTensorShapeProto(m.Shape) })
		default:
			return false, nil
		}
	})
}

// readTensorShapeProto reads TensorShapeProto message.
func (p *parser) readTensorShapeProto(m *TensorShapeProto) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		if num != 1 { // dim
			return false, nil
		}
		dim := DimensionProto{}
		err := p.readMessage(typ, func(sub *parser) error { return sub.readDimensionProto(&dim) })
		m.Dims = append(m.Dims, dim)
		return true, err
	})
}

// readDimensionProto reads DimensionProto message.
func (p *parser) readDimensionProto(m *DimensionProto) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // dim_value
			m.DimValue, err = p.readInt64(typ)
		case 2: // dim_param
			m.DimParam, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
}

// readOperatorSetID reads OperatorSetID message.
func (p *parser) readOperatorSetID(m *OperatorSetID) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // domain
			m.Domain, err = p.readString(typ)
		case 2: // version
			m.Version, err = p.readInt64(typ)
		default:
			return false, nil
		}
		return true, err
	})
}

// readStringStringEntry reads StringStringEntry message.
func (p *parser) readStringStringEntry(m *StringStringEntry) error {
	return p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // key
			m.Key, err = p.readString(typ)
		case 2: // value
			m.Value, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
}

// readFields walks every field of the message. visit reports whether it
// consumed the field value; unconsumed values are skipped.
func (p *parser) readFields(visit func(num protowire.Number, typ protowire.Type) (bool, error)) error {
	for p.pos < len(p.data) {
		num, typ, err := p.readTag()
		if err != nil {
			return err
		}
		handled, err := visit(num, typ)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if !handled {
			if err := p.skipField(num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// readMessage reads a length-delimited sub-message and decodes it with read.
func (p *parser) readMessage(typ protowire.Type, read func(sub *parser) error) error {
	data, err := p.readBytes(typ)
	if err != nil {
		return err
	}
	sub := &parser{data: data, pos: 0}
	return read(sub)
}

// readTag reads a protobuf field tag.
func (p *parser) readTag() (protowire.Number, protowire.Type, error) {
	if p.pos >= len(p.data) {
		return 0, 0, io.EOF
	}
	num, typ, n := protowire.ConsumeTag(p.data[p.pos:])
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	p.pos += n
	return num, typ, nil
}

// readInt64 reads a varint-encoded int64.
func (p *parser) readInt64(typ protowire.Type) (int64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("wire type %d, expected varint", typ)
	}
	v, n := protowire.ConsumeVarint(p.data[p.pos:])
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	p.pos += n
	return int64(v), nil //nolint:gosec // G115: Protobuf int64 is two's complement in a varint.
}

// readBytes reads a length-delimited byte slice. The result aliases the
// parser's buffer.
func (p *parser) readBytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("wire type %d, expected length-delimited", typ)
	}
	v, n := protowire.ConsumeBytes(p.data[p.pos:])
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	p.pos += n
	return v, nil
}

// readString reads a length-delimited string.
func (p *parser) readString(typ protowire.Type) (string, error) {
	data, err := p.readBytes(typ)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// skipField skips a field value based on wire type.
func (p *parser) skipField(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, p.data[p.pos:])
	if n < 0 {
		return protowire.ParseError(n)
	}
	p.pos += n
	return nil
}
