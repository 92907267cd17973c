// Package platform holds the runtime-specific pieces the compiler needs:
// mapping executable memory for generated code and probing the host CPU for
// the instruction-set extensions the emitter can take advantage of.
package platform

import "errors"

// MmapCodeSegment allocates a read-write-execute memory region of the given
// size. Generated code is written into and patched inside this region, so the
// mapping stays writable for its whole lifetime.
func MmapCodeSegment(size int) ([]byte, error) {
	if size == 0 {
		panic(errors.New("BUG: MmapCodeSegment with zero length"))
	}
	return mmapCodeSegment(size)
}

// MunmapCodeSegment unmaps a region returned by MmapCodeSegment.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		panic(errors.New("BUG: MunmapCodeSegment with zero length"))
	}
	return munmapCodeSegment(code)
}
