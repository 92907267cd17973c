package jit

import "github.com/dynarec/krait/internal/platform"

// PageTableBits is the number of guest address bits resolved per page table
// entry. Entries cover 4KiB pages.
const (
	PageTableBits    = 12
	PageTableEntries = 1 << (32 - PageTableBits)
	PageMask         = (1 << PageTableBits) - 1
)

// ReservationGranuleMask aligns exclusive monitor addresses to the 8-byte
// reservation granule.
const ReservationGranuleMask uint32 = 0xFFFFFFF8

// Callbacks are C ABI function pointers invoked directly by emitted code.
// Each receives its declared arguments in the System V integer registers.
// They must not unwind into the code cache.
type Callbacks struct {
	MemoryRead8  uintptr // func(addr uint32) uint8
	MemoryRead16 uintptr // func(addr uint32) uint16
	MemoryRead32 uintptr // func(addr uint32) uint32
	MemoryRead64 uintptr // func(addr uint32) uint64

	MemoryWrite8  uintptr // func(addr uint32, value uint8)
	MemoryWrite16 uintptr // func(addr uint32, value uint16)
	MemoryWrite32 uintptr // func(addr uint32, value uint32)
	MemoryWrite64 uintptr // func(addr uint32, value uint64)

	// InterpreterFallback executes count instructions starting at pc
	// against the guest state, for instructions the backend does not
	// compile.
	InterpreterFallback uintptr // func(pc uint32, state *State, count uint64)

	// CallSVC handles a supervisor call with the given immediate.
	CallSVC uintptr // func(swi uint32)
}

// Config carries everything emission needs to know about the environment.
type Config struct {
	Callbacks Callbacks

	// PageTable, when non-nil, maps guest page indexes to host pointers and
	// enables the inline fast path for memory accesses. A nil entry falls
	// back to the callbacks above.
	PageTable *[PageTableEntries]uintptr

	// Coprocessors occupies slots 0..15; accesses to nil slots emit an
	// INT3 trap.
	Coprocessors [16]Coprocessor

	CpuFeatures platform.CpuFeatures

	// CodeCacheSize is the fixed size of the executable region. Zero picks
	// the default.
	CodeCacheSize int
}

const DefaultCodeCacheSize = 128 * 1024 * 1024
