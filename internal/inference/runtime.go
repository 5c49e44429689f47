// Package inference is a thin harness around ONNX Runtime: it loads the
// shared library, opens sessions from in-memory model bytes and runs them.
package inference

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv names the variable consulted when no library path is configured.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ErrNoLibrary is returned when no ONNX Runtime shared library is configured.
var ErrNoLibrary = errors.New("onnxruntime shared library path not set (use " + LibraryPathEnv + ")")

// Options configures a Runtime.
type Options struct {
	LibraryPath    string // path to libonnxruntime; falls back to LibraryPathEnv
	Optimization   string // disable, basic, extended or all (default)
	IntraOpThreads int    // 0 lets ONNX Runtime decide
	Logger         zerolog.Logger
}

// Runtime owns the process-wide ONNX Runtime environment.
//
// Init is called lazily by NewSession; Close destroys the environment if this
// Runtime created it.
type Runtime struct {
	opts Options

	mu    sync.Mutex
	owned bool
}

// New creates a Runtime. No library is loaded until Init.
func New(opts Options) *Runtime {
	return &Runtime{opts: opts}
}

// LibraryPath returns the configured shared library path, or the value of
// LibraryPathEnv when none was configured.
func (r *Runtime) LibraryPath() string {
	if r.opts.LibraryPath != "" {
		return r.opts.LibraryPath
	}
	return os.Getenv(LibraryPathEnv)
}

// Init loads the shared library and creates the environment.
func (r *Runtime) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	path := r.LibraryPath()
	if path == "" {
		return ErrNoLibrary
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime from %s: %w", path, err)
	}
	r.owned = true

	r.opts.Logger.Info().
		Str("library", path).
		Msg("onnxruntime initialized")
	return nil
}

// Close destroys the environment when this Runtime created it.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.owned {
		return nil
	}
	r.owned = false
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy onnxruntime environment: %w", err)
	}
	return nil
}

func (r *Runtime) sessionOptions() (*ort.SessionOptions, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	level, err := optimizationLevel(r.opts.Optimization)
	if err == nil {
		err = so.SetGraphOptimizationLevel(level)
	}
	if err == nil && r.opts.IntraOpThreads > 0 {
		err = so.SetIntraOpNumThreads(r.opts.IntraOpThreads)
	}
	if err != nil {
		_ = so.Destroy()
		return nil, fmt.Errorf("failed to configure session options: %w", err)
	}
	return so, nil
}

func optimizationLevel(name string) (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(name) {
	case "disable":
		return ort.GraphOptimizationLevelDisableAll, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "extended":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "", "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level %q", name)
	}
}
