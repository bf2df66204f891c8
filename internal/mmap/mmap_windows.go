//go:build windows

package mmap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Anon reserves and commits size bytes of zero-filled, read-write memory.
func Anon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmap: invalid mapping size %d", size)
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap: VirtualAlloc %d bytes: %w", size, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	released := false
	release := func() error {
		if released {
			return nil
		}
		if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
			return err
		}
		released = true
		return nil
	}
	return data, release, nil
}
