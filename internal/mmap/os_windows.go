//go:build windows

package mmap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMap(f *os.File, size int, writable bool) ([]byte, func([]byte) error, func([]byte) error, error) {
	if size == 0 {
		return nil, nil, nil, nil
	}

	prot := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		prot = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}

	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, prot, 0, 0, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	// The view holds a reference, so the handle can be closed right away.
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	unmap := func(b []byte) error {
		return windows.UnmapViewOfFile(addr)
	}
	// FlushViewOfFile writes dirty pages without waiting for the metadata
	// update; the file handle may already be closed by then, so
	// FlushFileBuffers is not an option here.
	flush := func(b []byte) error {
		return windows.FlushViewOfFile(addr, uintptr(size))
	}
	return data, unmap, flush, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	// Windows does not have a direct equivalent to madvise.
	// PrefetchVirtualMemory could be used for AccessWillNeed, but requires
	// Windows 8+ and more complex setup. For now, this is a no-op.
	// The OS page cache will still work effectively for sequential access.
	_ = data
	_ = pattern
	return nil
}
