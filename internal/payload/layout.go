package payload

import (
	"fmt"
	"os"
	"sort"

	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
)

// TensorLayout describes where one initializer's payload lives.
type TensorLayout struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Dims     []int64 `json:"dims"`
	State    string  `json:"state"`
	Size     int64   `json:"size"`
	Location string  `json:"location,omitempty"`
	Offset   int64   `json:"offset,omitempty"`
	Checksum string  `json:"sha256,omitempty"`

	ref *onnx.ExternalData // nil unless external
}

// Layout lists every initializer of m in stored order. Inline payloads carry
// their SHA-256 digest.
func Layout(m *onnx.ModelProto) []TensorLayout {
	if m == nil || m.Graph == nil {
		return nil
	}

	out := make([]TensorLayout, 0, len(m.Graph.Initializers))
	for i := range m.Graph.Initializers {
		t := &m.Graph.Initializers[i]
		l := TensorLayout{
			Name:     t.Name,
			DataType: onnx.DataTypeName(t.DataType),
			Dims:     t.Dims,
			State:    t.State().String(),
			Size:     t.PayloadSize(),
		}
		switch t.State() {
		case onnx.PayloadInline:
			l.Checksum = bytestore.ComputeChecksum(t.RawData()).String()
		case onnx.PayloadExternal:
			ref, _ := t.ExternalData()
			l.Location = ref.Location
			l.Offset = ref.Offset
			l.ref = &ref
		}
		out = append(out, l)
	}
	return out
}

// ValidateLayout checks the external ranges of m against the stores under
// baseDir: every store must exist, and ranges must be inside it and disjoint.
func ValidateLayout(m *onnx.ModelProto, baseDir string) error {
	byPath := make(map[string][]bytestore.NamedRange)
	for _, l := range Layout(m) {
		if l.ref == nil {
			continue
		}
		path, err := l.ref.Resolve(baseDir)
		if err != nil {
			return &TensorError{Tensor: l.Name, Op: "resolve", Err: err}
		}
		byPath[path] = append(byPath[path], bytestore.NamedRange{
			Name:  l.Name,
			Range: bytestore.Range{Offset: l.ref.Offset, Length: l.ref.Length},
		})
	}

	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		stat, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %w", bytestore.ErrStoreNotFound, err)
			}
			return fmt.Errorf("failed to stat store: %w", err)
		}
		if err := bytestore.ValidateRanges(byPath[path], stat.Size()); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
	}
	return nil
}

// StoreDigest is the SHA-256 of one whole byte store.
type StoreDigest struct {
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Checksum string `json:"sha256"`
}

// StoreDigests hashes every store referenced by m, in location order.
func StoreDigests(m *onnx.ModelProto, baseDir string) ([]StoreDigest, error) {
	seen := make(map[string]string)
	for _, l := range Layout(m) {
		if l.ref == nil || seen[l.ref.Location] != "" {
			continue
		}
		path, err := l.ref.Resolve(baseDir)
		if err != nil {
			return nil, &TensorError{Tensor: l.Name, Op: "resolve", Err: err}
		}
		seen[l.ref.Location] = path
	}

	locations := make([]string, 0, len(seen))
	for loc := range seen {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	out := make([]StoreDigest, 0, len(locations))
	for _, loc := range locations {
		d, err := digestFile(seen[loc])
		if err != nil {
			return nil, err
		}
		d.Location = loc
		out = append(out, d)
	}
	return out, nil
}

func digestFile(path string) (StoreDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StoreDigest{}, fmt.Errorf("%w: %w", bytestore.ErrStoreNotFound, err)
		}
		return StoreDigest{}, fmt.Errorf("failed to open store: %w", err)
	}
	defer f.Close()

	sum, err := bytestore.ComputeChecksumReader(f)
	if err != nil {
		return StoreDigest{}, fmt.Errorf("failed to hash store %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		return StoreDigest{}, fmt.Errorf("failed to stat store: %w", err)
	}
	return StoreDigest{Size: stat.Size(), Checksum: sum.String()}, nil
}
