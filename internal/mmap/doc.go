// Package mmap provides memory-mapped file access for zero-copy I/O.
//
// # Overview
//
// Memory mapping gives direct access to file contents without copying data
// through kernel buffers. Neighbor tables and signature sets are plain
// fixed-record files that can reach gigabytes; they are read and mutated
// in place through shared mappings.
//
// # Usage
//
//	m, err := mmap.Open("pairs-run1-slots")     // read-only
//	m, err := mmap.OpenRW("pairs-run1-slots")   // shared read-write
//	m, err := mmap.Create("pairs-run1-slots", size)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()            // zero-copy view, writable for RW mappings
//	region, _ := m.Region(offset, size)
//	m.Advise(mmap.AccessSequential)
//	m.Flush()                    // msync for RW mappings
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile, FlushViewOfFile; madvise is a no-op
//
// # Thread Safety
//
// Mapping and Region are safe for concurrent read access. Concurrent writes
// to disjoint byte ranges of a writable mapping are safe at the Go level;
// coordinating overlapping writes is the caller's job. Close() is idempotent
// and protected by atomic operations, but callers must ensure no goroutine
// touches Bytes() after Close() returns.
package mmap
