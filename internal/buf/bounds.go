// Package buf contains overflow-safe size arithmetic and bounds-checked
// access to raw memory views.
package buf

import "golang.org/x/exp/constraints"

// AddOverflowSafe adds a and b, returning ok = false when the result would wrap.
func AddOverflowSafe[T constraints.Unsigned](a, b T) (T, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](n T) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
// Returns ok = false when the rounded value does not fit in T.
func AlignUp[T constraints.Unsigned](n, align T) (T, bool) {
	mask := align - 1
	sum, ok := AddOverflowSafe(n, mask)
	if !ok {
		return 0, false
	}
	return sum &^ mask, true
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end := off + n
	if end < off || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}
