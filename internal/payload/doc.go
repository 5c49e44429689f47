// Package payload moves initializer payloads between an ONNX graph and an
// external byte store.
//
// Splitting appends every inline payload of at least the threshold size to a
// store and replaces it in the graph with an {location, offset, length}
// descriptor. Rehydration reads the ranges back and re-inlines them, so the
// rehydrated graph encodes to the same bytes as the original.
//
// Example usage:
//
//	res, err := payload.SplitFile("model.onnx", "out/graph.onnx",
//	    payload.WithThreshold(1024), payload.WithLocation("weights.data"))
//	...
//	blob, err := payload.RehydrateToBytes("out/graph.onnx")
package payload
