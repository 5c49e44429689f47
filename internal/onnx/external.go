package onnx

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Keys of the external_data entries of a TensorProto.
const (
	ExternalKeyLocation = "location"
	ExternalKeyOffset   = "offset"
	ExternalKeyLength   = "length"
)

// ExternalData locates a tensor payload inside a byte store.
type ExternalData struct {
	Location string // store path, relative to the rehydration base directory
	Offset   int64  // first byte of the payload
	Length   int64  // payload size in bytes
}

// End returns the offset one past the last payload byte.
func (e ExternalData) End() int64 {
	return e.Offset + e.Length
}

// String formats the descriptor as location[offset:end].
func (e ExternalData) String() string {
	return fmt.Sprintf("%s[%d:%d]", e.Location, e.Offset, e.End())
}

// Resolve returns the store path for baseDir. Absolute locations and
// locations that climb out of baseDir are rejected.
func (e ExternalData) Resolve(baseDir string) (string, error) {
	if e.Location == "" {
		return "", fmt.Errorf("%w: empty location", ErrFormat)
	}
	if strings.Contains(e.Location, "\x00") {
		return "", fmt.Errorf("%w: location %q contains null byte", ErrFormat, e.Location)
	}
	if path.IsAbs(e.Location) || filepath.IsAbs(e.Location) || filepath.VolumeName(e.Location) != "" {
		return "", fmt.Errorf("%w: location %q must be relative", ErrFormat, e.Location)
	}
	clean := filepath.Clean(filepath.FromSlash(e.Location))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: location %q escapes the base directory", ErrFormat, e.Location)
	}
	return filepath.Join(baseDir, clean), nil
}

// entries encodes the descriptor as wire key/value pairs, followed by any
// pass-through keys.
func (e ExternalData) entries(extra []StringStringEntry) []StringStringEntry {
	out := make([]StringStringEntry, 0, 3+len(extra))
	out = append(out,
		StringStringEntry{Key: ExternalKeyLocation, Value: e.Location},
		StringStringEntry{Key: ExternalKeyOffset, Value: strconv.FormatInt(e.Offset, 10)},
		StringStringEntry{Key: ExternalKeyLength, Value: strconv.FormatInt(e.Length, 10)},
	)
	return append(out, extra...)
}

// parseExternalData decodes wire key/value pairs. All three descriptor keys
// are required; unknown keys are returned for pass-through.
func parseExternalData(entries []StringStringEntry) (ExternalData, []StringStringEntry, error) {
	var (
		ref                    ExternalData
		extra                  []StringStringEntry
		hasLoc, hasOff, hasLen bool
	)
	for _, entry := range entries {
		switch entry.Key {
		case ExternalKeyLocation:
			if hasLoc {
				return ExternalData{}, nil, fmt.Errorf("%w: duplicate %q key", ErrFormat, entry.Key)
			}
			ref.Location, hasLoc = entry.Value, true
		case ExternalKeyOffset:
			if hasOff {
				return ExternalData{}, nil, fmt.Errorf("%w: duplicate %q key", ErrFormat, entry.Key)
			}
			v, err := parseUint(entry.Value)
			if err != nil {
				return ExternalData{}, nil, fmt.Errorf("%w: invalid offset %q", ErrFormat, entry.Value)
			}
			ref.Offset, hasOff = v, true
		case ExternalKeyLength:
			if hasLen {
				return ExternalData{}, nil, fmt.Errorf("%w: duplicate %q key", ErrFormat, entry.Key)
			}
			v, err := parseUint(entry.Value)
			if err != nil {
				return ExternalData{}, nil, fmt.Errorf("%w: invalid length %q", ErrFormat, entry.Value)
			}
			ref.Length, hasLen = v, true
		default:
			extra = append(extra, entry)
		}
	}

	switch {
	case !hasLoc || ref.Location == "":
		return ExternalData{}, nil, fmt.Errorf("%w: missing required %q key", ErrFormat, ExternalKeyLocation)
	case !hasOff:
		return ExternalData{}, nil, fmt.Errorf("%w: missing required %q key", ErrFormat, ExternalKeyOffset)
	case !hasLen:
		return ExternalData{}, nil, fmt.Errorf("%w: missing required %q key", ErrFormat, ExternalKeyLength)
	}
	return ref, extra, nil
}

// parseUint parses a decimal unsigned integer that fits in int64.
func parseUint(s string) (int64, error) {
	v, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, err
	}
	return int64(v), nil //nolint:gosec // G115: bitSize 63 keeps v within int64.
}
