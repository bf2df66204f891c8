package alloc

import (
	"unsafe"

	"github.com/r-efi/r-efi-alloc/internal/buf"
)

const (
	markerSize  = unsafe.Sizeof(uintptr(0))
	markerAlign = unsafe.Alignof(uintptr(0))
)

// frame is a native block whose payload was shifted up for alignment:
//
//	native                          user
//	|<----------- offset ---------->|
//	| padding ...       | marker    | payload ...
//
// The marker is the word right before user and holds the native address.
// All marker access goes through frame and markerAt.
type frame struct {
	native uintptr
	offset uintptr
}

func (f frame) user() uintptr {
	return f.native + f.offset
}

// header is the [native, user) prefix of the block.
func (f frame) header() []byte {
	return view(f.native, f.offset)
}

func (f frame) writeMarker() {
	if !buf.PutWord(f.header(), int(f.offset-markerSize), f.native) {
		violate("align", "marker does not fit in %d header bytes", f.offset)
	}
}

// markerAt returns the native address stored in front of user.
func markerAt(user uintptr) uintptr {
	native, ok := buf.Word(view(user-markerSize, markerSize), 0)
	if !ok {
		violate("unalign", "marker at %#x unreadable", user)
	}
	return native
}

// holdsMarker reports whether blocks aligned to native leave room for a
// correctly aligned marker in front of any shifted payload.
func holdsMarker(native uintptr) bool {
	return buf.IsPowerOfTwo(native) && native >= markerSize && native%markerAlign == 0
}

func view(addr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// Bytes returns the n bytes at p as a slice. It returns nil for zero-sized
// blocks, whose address is never dereferenceable.
func Bytes(p, n uintptr) []byte {
	if p == 0 {
		return nil
	}
	return view(p, n)
}
