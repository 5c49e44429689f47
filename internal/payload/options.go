package payload

import (
	"runtime"

	"github.com/rs/zerolog"
)

// Defaults for split and rehydrate.
const (
	DefaultThreshold = 1024
	DefaultLocation  = "weights.data"
)

type options struct {
	threshold int64
	location  string
	baseDir   string
	workers   int
	mmap      bool
	logger    zerolog.Logger
}

// Option configures split and rehydrate operations.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		threshold: DefaultThreshold,
		location:  DefaultLocation,
		workers:   runtime.NumCPU(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithThreshold sets the minimum payload size, in bytes, that is externalized.
// Payloads strictly smaller stay inline.
func WithThreshold(n int64) Option {
	return func(o *options) {
		o.threshold = n
	}
}

// WithLocation sets the store location written into descriptors by SplitFile.
func WithLocation(location string) Option {
	return func(o *options) {
		o.location = location
	}
}

// WithBaseDir sets the directory locations are resolved against by
// RehydrateFile. Defaults to the graph file's directory.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithWorkers sets how many payload reads run in parallel. 1 is sequential.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMmap serves rehydration reads from memory-mapped stores.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithLogger sets the logger for per-tensor decisions and summaries.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
