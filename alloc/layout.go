package alloc

import (
	"fmt"
	"unsafe"

	"github.com/r-efi/r-efi-alloc/internal/buf"
)

// Layout is the size and alignment of an allocation request.
// Align is always a power of two for layouts built by NewLayout or LayoutOf.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// NewLayout validates size and align. The size rounded up to align must fit
// in a uintptr.
func NewLayout(size, align uintptr) (Layout, error) {
	if !buf.IsPowerOfTwo(align) {
		return Layout{}, fmt.Errorf("%w: %d", ErrBadAlign, align)
	}
	if _, ok := buf.AlignUp(size, align); !ok {
		return Layout{}, fmt.Errorf("%w: size %d align %d", ErrLayoutOverflow, size, align)
	}
	return Layout{Size: size, Align: align}, nil
}

// MustLayout is like NewLayout but panics on invalid input.
func MustLayout(size, align uintptr) Layout {
	l, err := NewLayout(size, align)
	if err != nil {
		panic(err)
	}
	return l
}

// LayoutOf returns the layout of a value of type T.
func LayoutOf[T any]() Layout {
	var v T
	return Layout{Size: unsafe.Sizeof(v), Align: unsafe.Alignof(v)}
}

// ArrayOf returns the layout of n consecutive values of l.
func ArrayOf(l Layout, n uintptr) (Layout, error) {
	stride, ok := buf.AlignUp(l.Size, l.Align)
	if !ok || (n != 0 && stride > ^uintptr(0)/n) {
		return Layout{}, fmt.Errorf("%w: %d x %s", ErrLayoutOverflow, n, l)
	}
	return NewLayout(stride*n, l.Align)
}

// Dangling returns a non-zero, correctly aligned address that must never be
// dereferenced. It stands in for zero-sized blocks.
func (l Layout) Dangling() uintptr {
	return l.Align
}

func (l Layout) String() string {
	return fmt.Sprintf("{size: %d, align: %d}", l.Size, l.Align)
}

func (l Layout) check(op string) {
	if !buf.IsPowerOfTwo(l.Align) {
		violate(op, "layout %s has a non power-of-two alignment", l)
	}
}
