package alloc

import (
	"errors"
	"fmt"

	"github.com/r-efi/r-efi-alloc/efi"
)

var (
	// ErrAllocationFailed is the only recoverable failure: the native pool
	// refused the request, returned a zero address, or the adjusted request
	// size does not fit in the address space.
	ErrAllocationFailed = errors.New("alloc: allocation failed")

	// ErrBadAlign indicates an alignment that is not a power of two.
	ErrBadAlign = errors.New("alloc: alignment must be a power of two")

	// ErrLayoutOverflow indicates a size that overflows when rounded up to its alignment.
	ErrLayoutOverflow = errors.New("alloc: layout size overflows")

	// ErrNilServices indicates an allocator constructed without a native service.
	ErrNilServices = errors.New("alloc: nil boot services")

	// ErrBadNativeAlignment indicates a native alignment that cannot hold a marker.
	ErrBadNativeAlignment = errors.New("alloc: native alignment cannot hold a marker")
)

// AllocError describes a failed allocation. It matches ErrAllocationFailed
// and, when the native pool reported one, the efi.StatusError.
type AllocError struct {
	Layout  Layout
	Class   efi.MemoryType
	Request uintptr    // adjusted size handed to AllocatePool, 0 on overflow
	Status  efi.Status // native status, Success when the pool returned a zero address
	Reason  string
}

func (e *AllocError) Error() string {
	if e.Request == 0 {
		return fmt.Sprintf("alloc: allocation failed for %s: %s", e.Layout, e.Reason)
	}
	return fmt.Sprintf("alloc: allocation failed for %s (%d bytes from %s): %s",
		e.Layout, e.Request, e.Class, e.Reason)
}

func (e *AllocError) Unwrap() []error {
	if err := e.Status.Err(); err != nil {
		return []error{ErrAllocationFailed, err}
	}
	return []error{ErrAllocationFailed}
}

// ContractViolation is the panic value raised when a caller breaks the
// allocation contract: mismatched layouts, double frees, a native free that
// fails on a block this package handed out, or a bridge invariant broken by
// a foreign writer. It is never returned as an error.
type ContractViolation struct {
	Op     string
	Detail string
}

func (e *ContractViolation) Error() string {
	return "alloc: contract violation in " + e.Op + ": " + e.Detail
}

func violate(op, format string, args ...any) {
	panic(&ContractViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}
