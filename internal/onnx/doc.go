// Package onnx provides a lossless reader and writer for ONNX model files.
//
// ONNX (Open Neural Network Exchange) stores a model as a protobuf ModelProto.
// This package decodes the parts needed to move tensor payloads in and out of
// the graph and keeps everything else as raw wire bytes, so a parse/encode
// cycle leaves nodes, signatures and metadata untouched.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - TensorProto: Weight/initializer tensor whose payload is inline or external
//   - ExternalData: {location, offset, length} of an external payload
//
// A TensorProto is always in one payload state:
//   - PayloadInline: bytes embedded in raw_data
//   - PayloadExternal: bytes in a byte store, described by ExternalData
//   - PayloadNone: no raw_data (typed data fields, left alone)
//
// Example usage:
//
//	model, err := onnx.ParseFile("graph.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for i := range model.Graph.Initializers {
//	    t := &model.Graph.Initializers[i]
//	    if ref, ok := t.ExternalData(); ok {
//	        fmt.Printf("%s -> %s\n", t.Name, ref)
//	    }
//	}
//
//	data, err := onnx.Marshal(model)
package onnx
