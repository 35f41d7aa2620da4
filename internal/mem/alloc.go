package mem

import (
	"unsafe"
)

// Alignment is the default byte alignment of AllocAligned (one cache line).
const Alignment = 64

// AllocAligned allocates a byte slice of the given size whose first byte sits
// at an address divisible by Alignment.
func AllocAligned(size int) []byte {
	return AllocAlignedTo(size, Alignment)
}

// AllocAlignedTo allocates size bytes aligned to align, which must be a power
// of two. It returns nil for non-positive sizes.
//
// The allocation is slightly larger than requested; the underlying array is
// kept alive by the returned slice.
func AllocAlignedTo(size, align int) []byte {
	if size <= 0 {
		return nil
	}
	if align <= 1 {
		return make([]byte, size)
	}

	buf := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := (uintptr(align) - (addr & uintptr(align-1))) & uintptr(align-1)

	return buf[offset : offset+uintptr(size)]
}

// IsAligned reports whether the first byte of b sits at a multiple of align.
// Empty slices are trivially aligned.
func IsAligned(b []byte, align int) bool {
	if len(b) == 0 || align <= 1 {
		return true
	}
	addr := uintptr(unsafe.Pointer(&b[0])) //nolint:gosec // unsafe is required for alignment checks
	return addr&uintptr(align-1) == 0
}

// AlignUp rounds n up to the next multiple of align (a power of two).
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
