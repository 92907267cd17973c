package asm

import (
	"fmt"
	"unsafe"

	"github.com/dynarec/krait/internal/platform"
)

// CodeSegment is a fixed-size executable memory region with a write cursor.
//
// The region never moves once mapped. Entry pointers and patch sites recorded
// against it stay valid until Unmap, which is why growing is not supported:
// when the segment fills up the caller must clear its cache and start over.
//
// The cursor can be repositioned with SetCursor to rewrite previously emitted
// ranges in place. Writing past the mapped capacity panics.
type CodeSegment struct {
	code   []byte
	cursor int
}

// Map allocates the backing memory mapping. It errors if called twice.
func (seg *CodeSegment) Map(size int) error {
	if seg.code != nil {
		return fmt.Errorf("code segment already initialized to memory mapping of size %d", len(seg.code))
	}
	b, err := platform.MmapCodeSegment(size)
	if err != nil {
		return err
	}
	seg.code = b
	return nil
}

// Unmap releases the backing memory region, resetting the segment to empty.
// All code pointers into the segment are invalid afterwards.
func (seg *CodeSegment) Unmap() error {
	if seg.code != nil {
		if err := platform.MunmapCodeSegment(seg.code[:cap(seg.code)]); err != nil {
			return err
		}
		seg.code = nil
		seg.cursor = 0
	}
	return nil
}

// Addr returns the address of the beginning of the segment.
func (seg *CodeSegment) Addr() uintptr {
	if len(seg.code) > 0 {
		return uintptr(unsafe.Pointer(&seg.code[0]))
	}
	return 0
}

// Cap returns the mapped capacity in bytes.
func (seg *CodeSegment) Cap() int {
	return len(seg.code)
}

// Cursor returns the current write offset.
func (seg *CodeSegment) Cursor() int {
	return seg.cursor
}

// CursorAddr returns the absolute address of the current write offset.
func (seg *CodeSegment) CursorAddr() uintptr {
	return seg.Addr() + uintptr(seg.cursor)
}

// SetCursor repositions the write cursor. Used by the patcher to rewrite an
// already emitted site, bracketed by a save of the previous cursor.
func (seg *CodeSegment) SetCursor(off int) {
	if off < 0 || off > len(seg.code) {
		panic(fmt.Errorf("BUG: SetCursor(%d) outside mapped segment of %d bytes", off, len(seg.code)))
	}
	seg.cursor = off
}

// Bytes returns the mapped region. The slice stays valid until Unmap.
func (seg *CodeSegment) Bytes() []byte {
	return seg.code
}

func (seg *CodeSegment) WriteByte(b byte) {
	if seg.cursor >= len(seg.code) {
		panic(fmt.Errorf("BUG: code segment exhausted at %d bytes", len(seg.code)))
	}
	seg.code[seg.cursor] = b
	seg.cursor++
}

func (seg *CodeSegment) Write(b []byte) {
	if seg.cursor+len(b) > len(seg.code) {
		panic(fmt.Errorf("BUG: code segment exhausted at %d bytes", len(seg.code)))
	}
	copy(seg.code[seg.cursor:], b)
	seg.cursor += len(b)
}
