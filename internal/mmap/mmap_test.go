package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmap_OpenReadClose(t *testing.T) {
	content := []byte("Hello, Mmap!")
	f, err := os.CreateTemp("", "mmap_test")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	_, err = f.Write(content)
	require.NoError(t, err)
	f.Close()

	m, err := Open(f.Name())
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())
	assert.False(t, m.Writable())

	// ReadAt
	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 7) // "Mmap!"
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Mmap!", string(buf))

	// ReadAt out of bounds
	buf2 := make([]byte, 10)
	n, err = m.ReadAt(buf2, 100)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// ReadAt negative offset
	_, err = m.ReadAt(buf, -1)
	assert.Equal(t, ErrInvalidOffset, err)
}

func TestMmap_CreateWriteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	m, err := Create(path, 64)
	require.NoError(t, err)
	assert.Equal(t, 64, m.Size())
	assert.True(t, m.Writable())

	copy(m.Bytes()[8:], []byte("payload"))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())

	// Close is idempotent.
	require.NoError(t, m.Close())

	ro, err := Open(path)
	require.NoError(t, err)
	defer ro.Close()

	assert.Equal(t, []byte("payload"), ro.Bytes()[8:15])

	// Read-only flushes are no-ops.
	require.NoError(t, ro.Flush())
}

func TestMmap_CreateExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	m, err := Create(path, 16)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = Create(path, 16)
	assert.Error(t, err)
}

func TestMmap_OpenRWMutatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	m, err := Create(path, 32)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	rw, err := OpenRW(path)
	require.NoError(t, err)
	rw.Bytes()[0] = 0xAB
	require.NoError(t, rw.Close())

	ro, err := Open(path)
	require.NoError(t, err)
	defer ro.Close()
	assert.Equal(t, byte(0xAB), ro.Bytes()[0])
}

func TestMmap_EmptyFile(t *testing.T) {
	f, err := os.CreateTemp("", "mmap_test_empty")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	f.Close()

	m, err := Open(f.Name())
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 0, m.Size())
	assert.Nil(t, m.Bytes())
}

func TestMmap_Region(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	m, err := Create(path, 64)
	require.NoError(t, err)
	defer m.Close()

	r, err := m.Region(16, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Size())
	assert.Len(t, r.Bytes(), 8)

	_, err = m.Region(60, 8)
	assert.Equal(t, ErrOutOfBounds, err)
	_, err = m.Region(-1, 8)
	assert.Equal(t, ErrOutOfBounds, err)
}

func TestMmap_UseAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	m, err := Create(path, 16)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())
	assert.Equal(t, ErrClosed, m.Flush())
	assert.Equal(t, ErrClosed, m.Advise(AccessRandom))
	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.Equal(t, ErrClosed, err)
	_, err = m.Region(0, 1)
	assert.Equal(t, ErrClosed, err)
}
