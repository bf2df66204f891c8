//go:build !unix && !windows

package mmap

import "fmt"

// Anon allocates size bytes on the Go heap when no mapping primitive is available.
// The returned slice must stay reachable for as long as its addresses are in use.
func Anon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmap: invalid mapping size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}
