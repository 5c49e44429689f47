// Package config loads onnx-native settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tarekziade/onnx-native/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. ONNXNATIVE_SPLIT_THRESHOLD.
const EnvPrefix = "ONNXNATIVE"

// Config is the complete tool configuration.
type Config struct {
	Split     SplitConfig     `yaml:"split" envconfig:"SPLIT"`
	Rehydrate RehydrateConfig `yaml:"rehydrate" envconfig:"REHYDRATE"`
	Runtime   RuntimeConfig   `yaml:"runtime" envconfig:"RUNTIME"`
	Log       logging.Config  `yaml:"log" envconfig:"LOG"`
}

// SplitConfig controls how models are split.
type SplitConfig struct {
	Threshold int64  `yaml:"threshold" envconfig:"THRESHOLD"`
	Location  string `yaml:"location" envconfig:"LOCATION"`
}

// RehydrateConfig controls how payloads are read back.
type RehydrateConfig struct {
	Workers int  `yaml:"workers" envconfig:"WORKERS"` // 0 means one per CPU
	Mmap    bool `yaml:"mmap" envconfig:"MMAP"`
}

// RuntimeConfig controls the inference harness.
type RuntimeConfig struct {
	LibraryPath    string `yaml:"library_path" envconfig:"LIBRARY_PATH"`
	Optimization   string `yaml:"optimization" envconfig:"OPTIMIZATION"`
	IntraOpThreads int    `yaml:"intra_op_threads" envconfig:"INTRA_OP_THREADS"`
}

// Optimization levels accepted by RuntimeConfig.
var optimizationLevels = []string{"disable", "basic", "extended", "all"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Split: SplitConfig{
			Threshold: 1024,
			Location:  "weights.data",
		},
		Runtime: RuntimeConfig{
			Optimization: "all",
		},
		Log: logging.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and ONNXNATIVE_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: config path is chosen by the user
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing YAML: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the environment
// without overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", file, err)
		}
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Split.Threshold < 0 {
		return fmt.Errorf("split.threshold must be >= 0, got %d", c.Split.Threshold)
	}
	if c.Split.Location == "" {
		return errors.New("split.location must not be empty")
	}
	if c.Rehydrate.Workers < 0 {
		return fmt.Errorf("rehydrate.workers must be >= 0, got %d", c.Rehydrate.Workers)
	}
	if c.Runtime.IntraOpThreads < 0 {
		return fmt.Errorf("runtime.intra_op_threads must be >= 0, got %d", c.Runtime.IntraOpThreads)
	}

	opt := strings.ToLower(c.Runtime.Optimization)
	for _, level := range optimizationLevels {
		if opt == level {
			return nil
		}
	}
	return fmt.Errorf("runtime.optimization must be one of %s, got %q",
		strings.Join(optimizationLevels, ", "), c.Runtime.Optimization)
}
