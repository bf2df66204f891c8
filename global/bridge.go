// Package global provides a bridge that presents an allocator attached at
// runtime as the process-wide default memory source.
//
// The native service handle only becomes known once the governing process
// starts, so the default allocator cannot be built during static
// initialization. A Bridge is an empty slot created up front and passed to
// everything that needs the default allocator; the entry point attaches an
// alloc.Allocator once the handle is known and detaches it before the handle
// goes away.
//
//	bridge := global.NewBridge()
//	...
//	att, ok := bridge.Attach(a)
//	if !ok {
//	    return global.ErrAlreadyAttached
//	}
//	defer att.Detach()
//
// Every block allocated through the bridge must be released before the
// attachment is detached.
package global

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/r-efi/r-efi-alloc/alloc"
	"github.com/r-efi/r-efi-alloc/internal/logger"
)

var (
	// ErrNotAttached is returned by Allocate on an empty bridge. It matches
	// alloc.ErrAllocationFailed.
	ErrNotAttached = errors.Wrap(alloc.ErrAllocationFailed, "global: no allocator attached")

	// ErrAlreadyAttached is returned by With when the slot is occupied.
	ErrAlreadyAttached = errors.New("global: allocator already attached")
)

// Bridge is a slot holding at most one attached allocator.
// The zero value is an empty bridge ready for use.
type Bridge struct {
	slot atomic.Pointer[alloc.Allocator]
	log  atomic.Pointer[slog.Logger]
}

var _ alloc.Source = (*Bridge)(nil)

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// WithLogger sets the logger for attach/detach records and returns b.
// It may be called while the bridge is in use.
func (b *Bridge) WithLogger(l *slog.Logger) *Bridge {
	b.log.Store(l)
	return b
}

// Attach links a to the bridge if it is empty. The returned attachment is
// the only way to empty the slot again. ok is false when another allocator
// is attached or a is nil; no ordering is implied by a failed attempt.
func (b *Bridge) Attach(a *alloc.Allocator) (att *Attachment, ok bool) {
	if a == nil || !b.slot.CompareAndSwap(nil, a) {
		return nil, false
	}
	logger.Or(b.log.Load()).Debug("global: attached", "class", a.Class().String())
	return &Attachment{bridge: b, alloc: a}, true
}

// Attached reports whether an allocator is currently attached.
func (b *Bridge) Attached() bool {
	return b.slot.Load() != nil
}

// With attaches a for the duration of fn. The attachment is released on
// every exit from fn, including a panic.
func (b *Bridge) With(a *alloc.Allocator, fn func() error) error {
	att, ok := b.Attach(a)
	if !ok {
		return ErrAlreadyAttached
	}
	defer att.Detach()
	return fn()
}

// Allocate forwards to the attached allocator.
func (b *Bridge) Allocate(l alloc.Layout) (uintptr, error) {
	a := b.slot.Load()
	if a == nil {
		return 0, ErrNotAttached
	}
	return a.Allocate(l)
}

// Deallocate forwards to the attached allocator. Deallocating through an
// empty bridge means the block outlived its allocator and panics with
// *alloc.ContractViolation.
func (b *Bridge) Deallocate(p uintptr, l alloc.Layout) {
	a := b.slot.Load()
	if a == nil {
		panic(&alloc.ContractViolation{
			Op:     "deallocate",
			Detail: fmt.Sprintf("block %#x %s released through a bridge with no allocator", p, l),
		})
	}
	a.Deallocate(p, l)
}

// Attachment represents exclusive occupancy of a Bridge.
type Attachment struct {
	bridge *Bridge
	alloc  *alloc.Allocator
	done   atomic.Bool
}

// Allocator returns the attached allocator.
func (att *Attachment) Allocator() *alloc.Allocator {
	return att.alloc
}

// Detach empties the bridge. Only the first call has an effect. A slot that
// no longer holds this attachment's allocator means someone else wrote it,
// which panics with *alloc.ContractViolation.
func (att *Attachment) Detach() {
	if !att.done.CompareAndSwap(false, true) {
		return
	}
	if !att.bridge.slot.CompareAndSwap(att.alloc, nil) {
		panic(&alloc.ContractViolation{
			Op:     "detach",
			Detail: fmt.Sprintf("bridge slot holds %p, expected %p", att.bridge.slot.Load(), att.alloc),
		})
	}
	logger.Or(att.bridge.log.Load()).Debug("global: detached", "class", att.alloc.Class().String())
}
