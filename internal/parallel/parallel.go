// Package parallel runs independent per-item work on a bounded set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum number of items before going parallel.
}

// DefaultConfig returns defaults based on CPU count.
// Items are I/O bound tensor reads, so any batch of two or more runs in parallel.
func DefaultConfig() Config {
	return Workers(runtime.NumCPU())
}

// Workers returns a Config using n workers. n <= 1 means sequential.
func Workers(n int) Config {
	return Config{
		Enabled:      n > 1,
		NumWorkers:   max(n, 1),
		MinChunkSize: 2,
	}
}

func (cfg Config) sequential(n int) bool {
	return !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	_ = ForEach(n, func(i int) error {
		f(i)
		return nil
	}, cfg)
}

// ForEach executes f(i) for i in [0, n) and returns the error of the lowest
// failing index. After a failure no new items are started; items already
// running finish.
func ForEach(n int, f func(i int) error, cfg Config) error {
	if cfg.sequential(n) {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg     sync.WaitGroup
		next   atomic.Int64
		failed atomic.Bool
		errs   = make([]error, n)
	)

	for w := 0; w < min(cfg.NumWorkers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !failed.Load() {
				i := int(next.Add(1) - 1)
				if i >= n {
					return
				}
				if err := f(i); err != nil {
					errs[i] = err
					failed.Store(true)
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
