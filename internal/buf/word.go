package buf

import (
	"encoding/binary"
	"unsafe"
)

// WordSize is the width of a machine address in bytes.
const WordSize = int(unsafe.Sizeof(uintptr(0)))

// Word reads a native-endian machine word at b[off:]. Returns ok = false when b is too short.
func Word(b []byte, off int) (uintptr, bool) {
	w, ok := Slice(b, off, WordSize)
	if !ok {
		return 0, false
	}
	if WordSize == 8 {
		return uintptr(binary.NativeEndian.Uint64(w)), true
	}
	return uintptr(binary.NativeEndian.Uint32(w)), true
}

// PutWord writes v as a native-endian machine word at b[off:].
// Returns false, leaving b untouched, when the word does not fit.
func PutWord(b []byte, off int, v uintptr) bool {
	w, ok := Slice(b, off, WordSize)
	if !ok {
		return false
	}
	if WordSize == 8 {
		binary.NativeEndian.PutUint64(w, uint64(v))
	} else {
		binary.NativeEndian.PutUint32(w, uint32(v))
	}
	return true
}
