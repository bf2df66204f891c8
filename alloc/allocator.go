package alloc

import (
	"fmt"
	"log/slog"

	"github.com/r-efi/r-efi-alloc/efi"
	"github.com/r-efi/r-efi-alloc/internal/logger"
)

// Source is a memory source with an explicit success/failure contract.
// Allocator and global.Bridge both implement it.
type Source interface {
	// Allocate returns a block satisfying l. Zero-sized layouts yield
	// l.Dangling() without touching any backing store.
	Allocate(l Layout) (uintptr, error)

	// Deallocate releases a block returned by Allocate with the same layout.
	// Misuse panics with *ContractViolation.
	Deallocate(p uintptr, l Layout)
}

// Options configures an Allocator. A nil *Options selects the defaults.
type Options struct {
	// NativeAlignment is the alignment the native pool guarantees.
	// Defaults to efi.PoolAlignment.
	NativeAlignment uintptr

	// Logger receives allocation failures at debug level. Defaults to logger.L.
	Logger *slog.Logger
}

// Allocator serves arbitrarily aligned requests from an efi.BootServices
// pool of a single memory type. It holds no mutable state and is safe for
// concurrent use as long as the underlying service is.
//
// The caller guarantees that the service outlives the allocator and every
// block it handed out.
type Allocator struct {
	bs     efi.BootServices
	class  efi.MemoryType
	native uintptr
	log    *slog.Logger
}

var _ Source = (*Allocator)(nil)

// New binds an allocator to bs, drawing every block from memory type class.
func New(bs efi.BootServices, class efi.MemoryType, opts *Options) (*Allocator, error) {
	if bs == nil {
		return nil, ErrNilServices
	}
	if opts == nil {
		opts = &Options{}
	}
	native := opts.NativeAlignment
	if native == 0 {
		native = efi.PoolAlignment
	}
	if err := CheckNativeAlignment(native); err != nil {
		return nil, err
	}
	return &Allocator{
		bs:     bs,
		class:  class,
		native: native,
		log:    logger.Or(opts.Logger),
	}, nil
}

// CheckNativeAlignment returns ErrBadNativeAlignment unless native is a power
// of two that leaves room for a correctly aligned marker.
func CheckNativeAlignment(native uintptr) error {
	if !holdsMarker(native) {
		return fmt.Errorf("%w: %d", ErrBadNativeAlignment, native)
	}
	return nil
}

// Class returns the memory type every block is drawn from.
func (a *Allocator) Class() efi.MemoryType {
	return a.class
}

// NativeAlignment returns the alignment the native pool guarantees.
func (a *Allocator) NativeAlignment() uintptr {
	return a.native
}

// Allocate returns a block of l.Size bytes aligned to l.Align. Failures wrap
// ErrAllocationFailed as an *AllocError.
func (a *Allocator) Allocate(l Layout) (uintptr, error) {
	l.check("allocate")
	if l.Size == 0 {
		return l.Dangling(), nil
	}

	n, ok := RequestSize(l.Size, l.Align, a.native)
	if !ok {
		return 0, a.fail(&AllocError{Layout: l, Class: a.class, Reason: "request size overflows"})
	}

	p, status := a.bs.AllocatePool(a.class, n)
	switch {
	case status.IsError():
		return 0, a.fail(&AllocError{Layout: l, Class: a.class, Request: n, Status: status, Reason: status.String()})
	case p == 0:
		// A zero address is never a valid block, whatever the status says.
		return 0, a.fail(&AllocError{Layout: l, Class: a.class, Request: n, Status: status, Reason: "pool returned a zero address"})
	}
	return AlignBlock(p, l.Align, a.native), nil
}

// AllocateZeroed is like Allocate but clears the block.
func (a *Allocator) AllocateZeroed(l Layout) (uintptr, error) {
	p, err := a.Allocate(l)
	if err != nil {
		return 0, err
	}
	clear(Bytes(p, l.Size))
	return p, nil
}

// Deallocate releases p, which must come from Allocate with the same layout.
// Zero-sized layouts are a no-op. A failing FreePool means the block was not
// ours to free and panics with *ContractViolation.
func (a *Allocator) Deallocate(p uintptr, l Layout) {
	l.check("deallocate")
	if l.Size == 0 {
		return
	}
	if p == 0 {
		violate("deallocate", "zero address for %s", l)
	}

	native := UnalignBlock(p, l.Align, a.native)
	if status := a.bs.FreePool(native); status.IsError() {
		violate("deallocate", "free_pool(%#x) for block %#x %s: %s", native, p, l, status)
	}
}

func (a *Allocator) fail(err *AllocError) error {
	a.log.Debug("alloc: allocation failed",
		"size", err.Layout.Size,
		"align", err.Layout.Align,
		"class", a.class.String(),
		"request", err.Request,
		"status", err.Status.String(),
		"reason", err.Reason,
	)
	return err
}
