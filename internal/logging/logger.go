// Package logging builds the zerolog logger used by the command line tool.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes the logger.
type Config struct {
	Level      string `yaml:"level" envconfig:"LEVEL"`             // trace, debug, info, warn, error
	Format     string `yaml:"format" envconfig:"FORMAT"`           // console or json
	Output     string `yaml:"output" envconfig:"OUTPUT"`           // stderr, stdout or file
	FilePath   string `yaml:"file_path" envconfig:"FILE_PATH"`     // used when Output is file
	TimeFormat string `yaml:"time_format" envconfig:"TIME_FORMAT"` // rfc3339, unix or iso8601
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "rfc3339",
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a logger from cfg. The returned Closer releases the log file
// when Output is file.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	switch strings.ToLower(cfg.TimeFormat) {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "iso8601":
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "", "stderr":
		output = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), nil, fmt.Errorf("log output is file but no file path is set")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		//nolint:gosec // G304: log path comes from configuration
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file '%s': %w", cfg.FilePath, err)
		}
		output, closer = file, file
	default:
		return zerolog.Nop(), nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	if strings.ToLower(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).Level(level).With().
		Timestamp().
		Logger()
	return logger, closer, nil
}
