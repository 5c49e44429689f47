package bytestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tarekziade/onnx-native/internal/onnx"
)

// Range is a byte range inside a store.
type Range struct {
	Offset int64
	Length int64
}

// End returns the offset one past the last byte of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// storeFile is the subset of *os.File a Writer needs.
type storeFile interface {
	io.Writer
	io.Seeker
	io.Closer
	Sync() error
}

// Writer appends payloads to a store file.
//
// A Writer is not safe for concurrent use; a store has a single writer.
type Writer struct {
	file     storeFile
	path     string
	location string
	size     int64
	closed   bool
}

// Create removes any existing store at dir/location and returns a Writer on a
// fresh, empty file. The location must be relative and stay inside dir.
func Create(dir, location string) (*Writer, error) {
	path, err := onnx.ExternalData{Location: location}.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove previous store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return OpenWriter(path, location)
}

// OpenWriter opens path for appending, creating it if absent. Existing
// contents are kept and new payloads land after them.
func OpenWriter(path, location string) (*Writer, error) {
	//nolint:gosec // G304: store path is chosen by the caller
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	w := newWriter(file, path, location)
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	w.size = size
	return w, nil
}

func newWriter(file storeFile, path, location string) *Writer {
	return &Writer{file: file, path: path, location: location}
}

// Append writes data at the current end of the store and returns the range it
// occupies. On error no range is returned.
func (w *Writer) Append(data []byte) (Range, error) {
	if w.closed {
		return Range{}, ErrClosed
	}

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return Range{}, fmt.Errorf("failed to locate end of store: %w", err)
	}

	n, err := w.file.Write(data)
	if n != len(data) {
		if err == nil {
			err = io.ErrShortWrite
		}
		return Range{}, fmt.Errorf("%w: wrote %d of %d bytes at offset %d: %w", ErrShortWrite, n, len(data), offset, err)
	}
	if err != nil {
		return Range{}, fmt.Errorf("failed to write %d bytes at offset %d: %w", len(data), offset, err)
	}

	w.size = offset + int64(n)
	return Range{Offset: offset, Length: int64(n)}, nil
}

// Location returns the location recorded in descriptors for this store.
func (w *Writer) Location() string {
	return w.location
}

// Path returns the store's file path.
func (w *Writer) Path() string {
	return w.path
}

// Size returns the number of bytes in the store.
func (w *Writer) Size() int64 {
	return w.size
}

// Sync flushes written payloads to stable storage.
func (w *Writer) Sync() error {
	if w.closed {
		return ErrClosed
	}
	return w.file.Sync()
}

// Close syncs and closes the store file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.file.Sync()
	if closeErr := w.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
