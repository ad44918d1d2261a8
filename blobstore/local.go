package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/pairgo/internal/mmap"
)

// LocalStore is a Store backed by a directory. Reads are zero-copy through
// read-only memory mappings; writes go through a temp file and rename so a
// crash never leaves a partial blob under its final name.
type LocalStore struct {
	dir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore opens (creating if necessary) dir as a blob store.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Blob names may carry slash-separated prefixes; map them onto
// subdirectories.
func (s *LocalStore) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("blobstore: open %s: %w", name, err)
	}
	return &localBlob{m: m}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(_ context.Context, name string, r io.Reader) error {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}
	return nil
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s: %w", name, err)
	}
	return nil
}

// List returns all blob names with the given prefix, sorted.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list %s: %w", prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	m *mmap.Mapping
}

var _ Mappable = (*localBlob)(nil)

func (b *localBlob) ReadAt(p []byte, off int64) (int, error) {
	return b.m.ReadAt(p, off)
}

func (b *localBlob) Size() int64 {
	return int64(b.m.Size())
}

func (b *localBlob) Bytes() ([]byte, error) {
	return b.m.Bytes(), nil
}

func (b *localBlob) Close() error {
	return b.m.Close()
}
