package alloc

import "github.com/r-efi/r-efi-alloc/internal/buf"

// RequestSize returns the number of bytes to request from a pool that
// guarantees native alignment in order to serve size bytes at align.
//
// Requests the pool already satisfies pass through unchanged. Stronger ones
// grow by the full align: at most align-native bytes are needed to reach the
// next boundary, which leaves at least native bytes in front of the payload
// for the marker. ok is false when the sum overflows.
func RequestSize(size, align, native uintptr) (uintptr, bool) {
	if align <= native {
		return size, true
	}
	return buf.AddOverflowSafe(size, align)
}

// AlignBlock shifts a block returned by the pool up to align and records the
// original address in front of the result. The block must span at least
// RequestSize bytes. Alignments the pool already guarantees return p.
func AlignBlock(p, align, native uintptr) uintptr {
	if !buf.IsPowerOfTwo(align) {
		violate("align", "alignment %d is not a power of two", align)
	}
	if align <= native {
		return p
	}
	if !holdsMarker(native) {
		violate("align", "native alignment %d cannot hold a %d-byte marker", native, markerSize)
	}

	// p is native-aligned and align > native, so offset lands in [native, align].
	offset := align - p&(align-1)
	if offset < native {
		violate("align", "block %#x is not %d-byte aligned", p, native)
	}

	f := frame{native: p, offset: offset}
	f.writeMarker()
	return f.user()
}

// UnalignBlock is the inverse of AlignBlock. align must be the value used
// when the block was aligned.
func UnalignBlock(p, align, native uintptr) uintptr {
	if !buf.IsPowerOfTwo(align) {
		violate("unalign", "alignment %d is not a power of two", align)
	}
	if align <= native {
		return p
	}
	return markerAt(p)
}
