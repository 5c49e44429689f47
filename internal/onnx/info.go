package onnx

// ModelInfo contains basic information about an ONNX model.
type ModelInfo struct {
	IRVersion       int64    `json:"ir_version"`
	OpsetVersion    int64    `json:"opset_version"`
	ProducerName    string   `json:"producer_name"`
	ProducerVersion string   `json:"producer_version"`
	InputNames      []string `json:"inputs"`
	OutputNames     []string `json:"outputs"`
	NodeCount       int      `json:"nodes"`
	WeightCount     int      `json:"initializers"`
	InlineBytes     int64    `json:"inline_bytes"`   // raw bytes embedded in the graph
	ExternalBytes   int64    `json:"external_bytes"` // raw bytes referenced in byte stores
	ExternalCount   int      `json:"external_count"` // initializers with an external payload
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Info(proto), nil
}

// Info summarizes a parsed model.
func Info(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
	}

	// Get opset version
	for _, opset := range proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			info.OpsetVersion = opset.Version
			break
		}
	}

	graph := proto.Graph
	if graph == nil {
		return info
	}

	// Inputs are graph inputs minus initializers
	initNames := make(map[string]bool, len(graph.Initializers))
	for i := range graph.Initializers {
		t := &graph.Initializers[i]
		initNames[t.Name] = true
		switch t.State() {
		case PayloadInline:
			info.InlineBytes += t.PayloadSize()
		case PayloadExternal:
			info.ExternalBytes += t.PayloadSize()
			info.ExternalCount++
		}
	}
	for i := range graph.Inputs {
		if !initNames[graph.Inputs[i].Name] {
			info.InputNames = append(info.InputNames, graph.Inputs[i].Name)
		}
	}
	for _, output := range graph.Outputs {
		info.OutputNames = append(info.OutputNames, output.Name)
	}

	info.NodeCount = len(graph.Nodes)
	info.WeightCount = len(graph.Initializers)
	return info
}
