// Package recfile implements named, persistent, fixed-element-size record
// containers backed by shared memory mappings.
//
// A record file is a 32-byte header followed by elemCount records of
// elemSize bytes each. Capacity is fixed at creation time; there is no
// resize. Neighbor tables, signature sets, and id subsets are all persisted
// through this primitive.
package recfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/pairgo/internal/mmap"
)

const (
	// FormatMagic identifies record files (ASCII: "REC0").
	FormatMagic = 0x52454330

	// FormatVersion is the current record file format version.
	FormatVersion uint32 = 1

	// HeaderSize is the size of the file header in bytes.
	HeaderSize = 32
)

var (
	// ErrNotFound is returned when the named record file does not exist.
	ErrNotFound = errors.New("recfile: not found")

	// ErrExists is returned when creating a record file whose name is taken.
	ErrExists = errors.New("recfile: already exists")

	// ErrCorrupt is returned when a header is invalid or disagrees with the
	// actual file size.
	ErrCorrupt = errors.New("recfile: corrupt record file")

	// ErrInvalidName is returned for empty names or names containing path
	// separators.
	ErrInvalidName = errors.New("recfile: invalid name")

	// ErrInvalidShape is returned for a non-positive element size or a
	// negative element count.
	ErrInvalidShape = errors.New("recfile: invalid element size or count")

	// ErrReadOnly is returned when flushing is requested on a read-only file.
	ErrReadOnly = errors.New("recfile: read-only")
)

// header is the 32-byte little-endian file header.
type header struct {
	Magic     uint32
	Version   uint32
	ElemSize  uint64
	ElemCount uint64
	Checksum  uint32 // CRC32 of the preceding 24 bytes
	// 4 bytes reserved
}

func (h *header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.ElemSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.ElemCount)
	h.Checksum = crc32.ChecksumIEEE(buf[:24])
	binary.LittleEndian.PutUint32(buf[24:28], h.Checksum)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	var h header
	if len(buf) < HeaderSize {
		return h, ErrCorrupt
	}
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.ElemSize = binary.LittleEndian.Uint64(buf[8:16])
	h.ElemCount = binary.LittleEndian.Uint64(buf[16:24])
	h.Checksum = binary.LittleEndian.Uint32(buf[24:28])

	if h.Magic != FormatMagic {
		return h, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, h.Magic)
	}
	if h.Version > FormatVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Checksum != crc32.ChecksumIEEE(buf[:24]) {
		return h, fmt.Errorf("%w: header checksum mismatch", ErrCorrupt)
	}
	return h, nil
}

// Store is a directory of named record files.
type Store struct {
	dir string
}

// NewStore opens (creating if necessary) the directory dir as a record store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recfile: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Create allocates a new record file with elemCount fixed-size records of
// elemSize bytes each, all zero. The name must be unused.
func (s *Store) Create(name string, elemSize, elemCount int) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if elemSize <= 0 || elemCount < 0 {
		return nil, ErrInvalidShape
	}

	size := HeaderSize + elemSize*elemCount
	m, err := mmap.Create(s.path(name), size)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return nil, fmt.Errorf("recfile: create %s: %w", name, err)
	}

	h := header{
		Magic:     FormatMagic,
		Version:   FormatVersion,
		ElemSize:  uint64(elemSize),
		ElemCount: uint64(elemCount),
	}
	copy(m.Bytes()[:HeaderSize], h.encode())

	return newFile(name, elemSize, elemCount, m)
}

// Open attaches to an existing record file with a writable mapping.
func (s *Store) Open(name string) (*File, error) {
	return s.open(name, true)
}

// OpenReadOnly attaches to an existing record file with a read-only mapping.
func (s *Store) OpenReadOnly(name string) (*File, error) {
	return s.open(name, false)
}

func (s *Store) open(name string, writable bool) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	var (
		m   *mmap.Mapping
		err error
	)
	if writable {
		m, err = mmap.OpenRW(s.path(name))
	} else {
		m, err = mmap.Open(s.path(name))
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("recfile: open %s: %w", name, err)
	}

	if m.Size() < HeaderSize {
		m.Close()
		return nil, fmt.Errorf("%w: %s: file shorter than header", ErrCorrupt, name)
	}
	h, err := decodeHeader(m.Bytes()[:HeaderSize])
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	want := HeaderSize + int64(h.ElemSize)*int64(h.ElemCount)
	if int64(m.Size()) != want {
		m.Close()
		return nil, fmt.Errorf("%w: %s: size %d, header implies %d", ErrCorrupt, name, m.Size(), want)
	}

	f, err := newFile(name, int(h.ElemSize), int(h.ElemCount), m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return f, nil
}

// Exists reports whether the named record file exists.
func (s *Store) Exists(name string) bool {
	if validName(name) != nil {
		return false
	}
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Remove deletes the named record file.
func (s *Store) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("recfile: remove %s: %w", name, err)
	}
	return nil
}

// List returns the names of all record files in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("recfile: list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// File is an open record file. The payload is accessed zero-copy through the
// underlying mapping; for writable files, mutations hit the mapped pages
// directly and reach disk on Flush or Close.
type File struct {
	name      string
	elemSize  int
	elemCount int
	m         *mmap.Mapping
	payload   *mmap.Region
}

func newFile(name string, elemSize, elemCount int, m *mmap.Mapping) (*File, error) {
	payload, err := m.Region(HeaderSize, elemSize*elemCount)
	if err != nil {
		return nil, fmt.Errorf("recfile: %s: %w", name, err)
	}
	return &File{
		name:      name,
		elemSize:  elemSize,
		elemCount: elemCount,
		m:         m,
		payload:   payload,
	}, nil
}

// Name returns the file's name within its store.
func (f *File) Name() string { return f.name }

// ElemSize returns the fixed record size in bytes.
func (f *File) ElemSize() int { return f.elemSize }

// ElemCount returns the number of records.
func (f *File) ElemCount() int { return f.elemCount }

// Bytes returns the whole payload (all records, without the header).
// The slice is valid until Close.
func (f *File) Bytes() []byte {
	return f.payload.Bytes()
}

// Record returns the i-th record's bytes. The slice aliases the mapping and
// is valid until Close. i must be in [0, ElemCount).
func (f *File) Record(i int) []byte {
	b := f.payload.Bytes()
	return b[i*f.elemSize : (i+1)*f.elemSize]
}

// Advise forwards an access-pattern hint for the payload to the kernel.
func (f *File) Advise(pattern mmap.AccessPattern) error {
	return f.payload.Advise(pattern)
}

// Flush forces modified records to stable storage.
func (f *File) Flush() error {
	if !f.m.Writable() {
		return ErrReadOnly
	}
	return f.m.Flush()
}

// Close flushes (when writable) and unmaps the file. It is idempotent.
func (f *File) Close() error {
	return f.m.Close()
}
