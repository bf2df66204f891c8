//go:build unix

package mmap

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Anon maps size bytes of private, zero-filled, read-write memory.
func Anon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmap: invalid mapping size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap: map %d bytes: %w", size, err)
	}
	released := false
	release := func() error {
		if released {
			return nil
		}
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		released = err == nil
		return err
	}
	return data, release, nil
}
