package payload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tarekziade/onnx-native/internal/bytestore"
	"github.com/tarekziade/onnx-native/internal/onnx"
)

// rename moves files during a commit. Tests swap it to fail a step.
var rename = os.Rename

// SplitFile splits the model at src into a slim graph at graphOut and a fresh
// store at dir(graphOut)/location. Any previous graph and store at those paths
// are replaced.
//
// Tensors that src already keeps external are re-inlined from their stores
// before the split, so the output never depends on the previous store.
// Writing over a store that src references is only allowed when graphOut is
// src itself; any other graph would be left with stale descriptors.
//
// The store and graph are written to temporary files and renamed into place
// once both are complete. If the graph cannot be moved into place, the
// previous store is restored, so src stays readable on failure.
func SplitFile(src, graphOut string, opts ...Option) (*SplitResult, error) {
	o := newOptions(opts)

	model, err := onnx.ParseFile(src)
	if err != nil {
		return nil, err
	}

	storePath, err := onnx.ExternalData{Location: o.location}.Resolve(filepath.Dir(graphOut))
	if err != nil {
		return nil, err
	}
	inPlace := sameFile(src, graphOut)
	if !inPlace {
		for _, path := range referencedStores(model, filepath.Dir(src)) {
			if samePath(path, storePath) {
				return nil, fmt.Errorf("%w: %s is referenced by %s", ErrStoreInUse, storePath, src)
			}
		}
	}

	if err := Rehydrate(model, filepath.Dir(src), opts...); err != nil {
		return nil, fmt.Errorf("failed to load external payloads of %s: %w", src, err)
	}

	// An in-place split keeps src until the new graph replaces it.
	if !inPlace {
		if err := removeIfExists(graphOut); err != nil {
			return nil, fmt.Errorf("failed to remove previous graph: %w", err)
		}
	}

	w, err := stageStore(storePath, o.location)
	if err != nil {
		return nil, err
	}
	graphTmp := ""
	committed := false
	defer func() {
		if !committed {
			_ = w.Close()
			_ = os.Remove(w.Path())
			if graphTmp != "" {
				_ = os.Remove(graphTmp)
			}
		}
	}()

	res, err := Split(model, w, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close store: %w", err)
	}

	data, err := onnx.Marshal(model)
	if err != nil {
		return nil, err
	}
	if graphTmp, err = writeTemp(graphOut, data); err != nil {
		return nil, err
	}
	if err := commit(w.Path(), storePath, graphTmp, graphOut); err != nil {
		return nil, err
	}
	committed = true

	o.logger.Info().
		Str("graph", graphOut).
		Str("store", storePath).
		Int("graph_bytes", len(data)).
		Msg("wrote split model")
	return res, nil
}

// RehydrateFile parses the graph at path and re-inlines its external payloads.
// Locations resolve against the graph's directory unless WithBaseDir is given.
func RehydrateFile(path string, opts ...Option) (*onnx.ModelProto, error) {
	o := newOptions(opts)

	model, err := onnx.ParseFile(path)
	if err != nil {
		return nil, err
	}

	baseDir := o.baseDir
	if baseDir == "" {
		baseDir = filepath.Dir(path)
	}
	if err := Rehydrate(model, baseDir, opts...); err != nil {
		return nil, err
	}
	return model, nil
}

// RehydrateToBytes rehydrates the graph at path and encodes it into one
// contiguous buffer, ready to hand to an inference session.
func RehydrateToBytes(path string, opts ...Option) ([]byte, error) {
	model, err := RehydrateFile(path, opts...)
	if err != nil {
		return nil, err
	}
	return onnx.Marshal(model)
}

// referencedStores returns the resolved paths of every store m's external
// tensors point at. Unresolvable locations are skipped; Rehydrate reports them.
func referencedStores(m *onnx.ModelProto, baseDir string) []string {
	if m == nil || m.Graph == nil {
		return nil
	}
	var paths []string
	for i := range m.Graph.Initializers {
		ref, ok := m.Graph.Initializers[i].ExternalData()
		if !ok {
			continue
		}
		if path, err := ref.Resolve(baseDir); err == nil {
			paths = append(paths, path)
		}
	}
	return paths
}

// stageStore opens an empty temporary store next to path. Descriptors written
// through it carry location.
func stageStore(path, location string) (*bytestore.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp store: %w", err)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return nil, fmt.Errorf("failed to create temp store: %w", err)
	}
	w, err := bytestore.OpenWriter(name, location)
	if err != nil {
		_ = os.Remove(name)
		return nil, err
	}
	return w, nil
}

// writeTemp writes data to a synced temporary file next to path and returns
// its name.
func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("failed to write graph: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close graph: %w", err)
	}
	ok = true
	return tmpName, nil
}

// commit moves the staged store and graph into place. The previous store is
// kept aside until the graph is in place and put back if any step fails.
func commit(storeTmp, storePath, graphTmp, graphOut string) error {
	backup := ""
	if _, err := os.Stat(storePath); err == nil {
		backup = storeTmp + ".old"
		if err := rename(storePath, backup); err != nil {
			return fmt.Errorf("failed to move previous store aside: %w", err)
		}
	}
	restore := func() {
		if backup != "" {
			_ = rename(backup, storePath)
		}
	}

	if err := rename(storeTmp, storePath); err != nil {
		restore()
		return fmt.Errorf("failed to move store into place: %w", err)
	}
	if err := rename(graphTmp, graphOut); err != nil {
		_ = os.Remove(storePath)
		restore()
		return fmt.Errorf("failed to move graph into place: %w", err)
	}

	if backup != "" {
		_ = os.Remove(backup)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

// samePath reports whether a and b name the same file, existing or not.
func samePath(a, b string) bool {
	if sameFile(a, b) {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
