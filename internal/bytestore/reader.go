package bytestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Reader reads byte ranges from a store file.
//
// Reads are positional, so a Reader is safe for concurrent use until Close.
type Reader struct {
	file   *os.File
	path   string
	size   int64
	data   []byte // mmap'd region (read-only), nil when reading through the file
	closed bool
}

type readerOptions struct {
	mmap bool
}

// Option configures Open.
type Option func(*readerOptions)

// WithMmap serves reads from a read-only memory mapping of the store.
func WithMmap(enabled bool) Option {
	return func(o *readerOptions) {
		o.mmap = enabled
	}
}

// Open opens the store at path for reading.
//
// Important: Always call Close() when done (use defer).
func Open(path string, opts ...Option) (*Reader, error) {
	var o readerOptions
	for _, opt := range opts {
		opt(&o)
	}

	//nolint:gosec // G304: store path is resolved from the model's descriptors
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrStoreNotFound, err)
		}
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	if stat.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrStoreNotFound, path)
	}

	r := &Reader{file: file, path: path, size: stat.Size()}

	// Empty files cannot be mapped.
	if o.mmap && r.size > 0 {
		data, err := mmapFile(file, r.size)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("mmap failed: %w", err)
		}
		r.data = data
	}

	return r, nil
}

// ReadAt returns exactly length bytes starting at offset.
func (r *Reader) ReadAt(offset, length int64) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}

	fail := func(err error) ([]byte, error) {
		return nil, &ReadError{Path: r.path, Offset: offset, Length: length, Err: err}
	}

	switch {
	case offset < 0 || length < 0:
		return fail(fmt.Errorf("%w: negative offset or length", ErrOutOfRange))
	case offset > r.size:
		return fail(fmt.Errorf("%w (size %d)", ErrOffsetBeyondEOF, r.size))
	case length > r.size-offset:
		return fail(fmt.Errorf("%w: %w: %d of %d bytes available", ErrShortRead, ErrOutOfRange, r.size-offset, length))
	}

	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}

	if r.data != nil {
		copy(buf, r.data[offset:offset+length])
		return buf, nil
	}

	n, err := r.file.ReadAt(buf, offset)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return fail(fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, length))
		}
		return fail(err)
	}
	return buf, nil
}

// Path returns the store's file path.
func (r *Reader) Path() string {
	return r.path
}

// Size returns the store size observed at Open.
func (r *Reader) Size() int64 {
	return r.size
}

// Mapped reports whether reads are served from a memory mapping.
func (r *Reader) Mapped() bool {
	return r.data != nil
}

// Close unmaps and closes the file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}

	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}

// ReadRange opens path, reads one range and closes the store.
func ReadRange(path string, offset, length int64) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAt(offset, length)
}
