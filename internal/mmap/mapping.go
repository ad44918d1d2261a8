package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data     []byte
	size     int
	writable bool
	closed   atomic.Bool
	// unmap and flush are the platform-specific functions bound at map time.
	unmap func([]byte) error
	flush func([]byte) error
}

// Open maps the file at path into memory.
// The file is mapped as read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return mapFile(f, false)
}

// OpenRW maps the file at path into memory as a shared read-write mapping.
// Writes to Bytes() modify the file; Flush() forces them to stable storage.
func OpenRW(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return mapFile(f, true)
}

// Create creates the file at path with the given size and maps it read-write.
// The file must not already exist.
func Create(path string, size int) (*Mapping, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, err
	}
	m, err := mapFile(f, true)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return m, nil
}

func mapFile(f *os.File, writable bool) (*Mapping, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{data: nil, size: 0, writable: writable}, nil
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}

	// Platform-specific mapping
	data, unmapFunc, flushFunc, err := osMap(f, int(size), writable)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     int(size),
		writable: writable,
		unmap:    unmapFunc,
		flush:    flushFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
// Writable mappings are flushed before unmapping.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	var err error
	if m.writable && m.flush != nil && m.data != nil {
		err = m.flush(m.data)
	}
	if m.unmap != nil && m.data != nil {
		if unmapErr := m.unmap(m.data); unmapErr != nil && err == nil {
			err = unmapErr
		}
	}
	return err
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
// Accessing the slice after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping was opened read-write.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Flush forces modified pages of a writable mapping to stable storage.
// It is a no-op for read-only and empty mappings.
func (m *Mapping) Flush() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !m.writable || m.flush == nil || m.data == nil {
		return nil
	}
	return m.flush(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
