// Package ir defines the intermediate representation the backend consumes:
// basic blocks of micro-operations with a single terminal, the values flowing
// between them, and the location descriptors that key the code cache.
package ir

import "fmt"

// FpscrModeMask selects the FPSCR bits that change how code must be
// translated: rounding mode, flush-to-zero, default NaN, stride and length.
const FpscrModeMask uint32 = 0x07F70000

// CpsrModeMask selects the CPSR bits that are part of a location: the Thumb
// bit and the big-endian data bit.
const CpsrModeMask uint32 = 1<<5 | 1<<9

// LocationDescriptor identifies a guest execution context precisely enough
// that one translation is valid for it: program counter, instruction set,
// data endianness and the translation-relevant FPSCR bits.
type LocationDescriptor struct {
	pc        uint32
	tFlag     bool
	eFlag     bool
	fpscrMode uint32
}

// NewLocationDescriptor masks fpscr down to the translation-relevant bits.
func NewLocationDescriptor(pc uint32, tFlag, eFlag bool, fpscr uint32) LocationDescriptor {
	return LocationDescriptor{pc: pc, tFlag: tFlag, eFlag: eFlag, fpscrMode: fpscr & FpscrModeMask}
}

func (l LocationDescriptor) PC() uint32        { return l.pc }
func (l LocationDescriptor) TFlag() bool       { return l.tFlag }
func (l LocationDescriptor) EFlag() bool       { return l.eFlag }
func (l LocationDescriptor) FpscrMode() uint32 { return l.fpscrMode }

// FpscrFTZ reports whether flush-to-zero mode is active.
func (l LocationDescriptor) FpscrFTZ() bool { return l.fpscrMode&(1<<24) != 0 }

// FpscrDN reports whether default NaN mode is active.
func (l LocationDescriptor) FpscrDN() bool { return l.fpscrMode&(1<<25) != 0 }

// FpscrRMode returns the FPSCR rounding mode field: 0 nearest, 1 towards
// plus infinity, 2 towards minus infinity, 3 towards zero.
func (l LocationDescriptor) FpscrRMode() uint32 { return (l.fpscrMode >> 22) & 3 }

// SetPC returns a copy with a different program counter.
func (l LocationDescriptor) SetPC(pc uint32) LocationDescriptor {
	l.pc = pc
	return l
}

// AdvancePC returns a copy with the program counter advanced by n bytes.
func (l LocationDescriptor) AdvancePC(n int) LocationDescriptor {
	l.pc = uint32(int64(l.pc) + int64(n))
	return l
}

// Hash packs the descriptor into its unique 64-bit cache key: PC in the low
// word, the FPSCR mode bits in the high word with the CPSR T and E bits folded
// in at bits 3 and 7. The layout is load-bearing: emitted RSB lookup code
// reconstructs the same value from the guest state by masking CPSR down to
// bits 5 and 9, shifting right by two, ORing in the FPSCR mode word and
// shifting the result up by 32.
func (l LocationDescriptor) Hash() uint64 {
	upper := uint64(l.fpscrMode)
	if l.tFlag {
		upper |= 1 << 3
	}
	if l.eFlag {
		upper |= 1 << 7
	}
	return upper<<32 | uint64(l.pc)
}

func (l LocationDescriptor) String() string {
	t, e := 0, 0
	if l.tFlag {
		t = 1
	}
	if l.eFlag {
		e = 1
	}
	return fmt.Sprintf("{%08x,T=%d,E=%d,FPSCR=%08x}", l.pc, t, e, l.fpscrMode)
}
