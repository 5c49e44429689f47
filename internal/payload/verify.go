package payload

import (
	"fmt"
	"runtime"

	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
	"github.com/tarekziade/onnx-native/internal/parallel"
)

// Mismatch describes one initializer that differs between two models.
type Mismatch struct {
	Tensor string `json:"tensor"`
	Reason string `json:"reason"`
}

// VerifyReport is the result of Verify.
type VerifyReport struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Verify compares the initializers of original and rehydrated by name, state
// and SHA-256 digest of the inline payload. It returns ErrVerifyFailed, along
// with the report, when anything differs.
func Verify(original, rehydrated *onnx.ModelProto) (*VerifyReport, error) {
	want := initializers(original)
	got := initializers(rehydrated)

	report := &VerifyReport{Checked: len(want)}
	if len(want) != len(got) {
		report.Mismatches = append(report.Mismatches, Mismatch{
			Reason: fmt.Sprintf("initializer count %d != %d", len(want), len(got)),
		})
		return report, ErrVerifyFailed
	}

	reasons := make([]string, len(want))
	parallel.For(len(want), func(i int) {
		reasons[i] = compareTensor(&want[i], &got[i])
	}, parallel.Workers(runtime.NumCPU()))

	for i, reason := range reasons {
		if reason != "" {
			report.Mismatches = append(report.Mismatches, Mismatch{Tensor: want[i].Name, Reason: reason})
		}
	}
	if len(report.Mismatches) > 0 {
		return report, ErrVerifyFailed
	}
	return report, nil
}

func initializers(m *onnx.ModelProto) []onnx.TensorProto {
	if m == nil || m.Graph == nil {
		return nil
	}
	return m.Graph.Initializers
}

func compareTensor(want, got *onnx.TensorProto) string {
	switch {
	case want.Name != got.Name:
		return fmt.Sprintf("name %q != %q", want.Name, got.Name)
	case got.State() == onnx.PayloadExternal:
		return "payload still external"
	case want.State() != got.State():
		return fmt.Sprintf("state %s != %s", want.State(), got.State())
	case want.PayloadSize() != got.PayloadSize():
		return fmt.Sprintf("size %d != %d", want.PayloadSize(), got.PayloadSize())
	}

	a := bytestore.ComputeChecksum(want.RawData())
	b := bytestore.ComputeChecksum(got.RawData())
	if err := bytestore.ValidateChecksum(b, a); err != nil {
		return fmt.Sprintf("sha256 %s != %s", a, b)
	}
	return ""
}
