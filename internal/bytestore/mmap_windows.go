//go:build windows

package bytestore

import (
	"errors"
	"os"
	"syscall"
	"unsafe"
)

// mmapFile memory-maps a file for reading (Windows implementation).
func mmapFile(f *os.File, size int64) ([]byte, error) {
	handle, err := syscall.CreateFileMapping(
		syscall.Handle(f.Fd()),
		nil,
		syscall.PAGE_READONLY,
		uint32(size>>32), //nolint:gosec // G115: high dword of the mapping size
		uint32(size),     //nolint:gosec // G115: low dword of the mapping size
		nil,
	)
	if err != nil {
		return nil, err
	}
	// The view keeps the mapping alive after the handle is closed.
	defer func() { _ = syscall.CloseHandle(handle) }()

	addr, err := syscall.MapViewOfFile(
		handle,
		syscall.FILE_MAP_READ,
		0,
		0,
		uintptr(size), //nolint:gosec // G115: int64-to-uintptr needed for syscall
	)
	if err != nil {
		return nil, err
	}

	//nolint:govet,gosec // G103: addr is a valid view returned by MapViewOfFile
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// munmapFile unmaps a memory-mapped file (Windows implementation).
func munmapFile(data []byte) error {
	if len(data) == 0 {
		return errors.New("cannot unmap empty data")
	}
	//nolint:gosec // G103: data starts at the mapped view
	return syscall.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
}
