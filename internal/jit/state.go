package jit

import (
	"github.com/dynarec/krait/internal/ir"
)

const (
	// RSBSize is the number of entries in the return stack buffer ring.
	// Must be a power of two so the cursor wraps with a mask.
	RSBSize = 8

	// SpillCount is the number of 64-bit spill slots available to the
	// register allocator.
	SpillCount = 64

	// rsbInvalidHash never collides with a real location hash: the upper
	// word of a real hash has holes left by FpscrModeMask, so it can never
	// be all ones.
	rsbInvalidHash = uint64(0xFFFFFFFFFFFFFFFF)
)

// State is the guest context read and written by emitted code through the
// pinned base register. Field order is frozen: emitted code addresses fields
// by the Offset* constants below, which are verified against the real layout
// in state_test.go.
type State struct {
	Regs    [16]uint32
	ExtRegs [64]uint32
	Cpsr    uint32
	_       uint32

	CyclesToRun     int64
	CyclesRemaining int64

	GuestMXCSR    uint32
	SaveHostMXCSR uint32

	ExclusiveState   uint8
	HaltRequested    uint8
	_                [2]uint8
	ExclusiveAddress uint32

	FpscrIDC  uint32
	FpscrUFC  uint32
	FpscrMode uint32
	FpscrNZCV uint32

	RsbPtr       uint64
	RsbLocations [RSBSize]uint64
	RsbCodePtrs  [RSBSize]uint64

	Spill [SpillCount]uint64
}

// Byte offsets of State fields, as used by emitted code.
const (
	OffsetRegs             = 0
	OffsetExtRegs          = 64
	OffsetCpsr             = 320
	OffsetCyclesToRun      = 328
	OffsetCyclesRemaining  = 336
	OffsetGuestMXCSR       = 344
	OffsetSaveHostMXCSR    = 348
	OffsetExclusiveState   = 352
	OffsetHaltRequested    = 353
	OffsetExclusiveAddress = 356
	OffsetFpscrIDC         = 360
	OffsetFpscrUFC         = 364
	OffsetFpscrMode        = 368
	OffsetFpscrNZCV        = 372
	OffsetRsbPtr           = 376
	OffsetRsbLocations     = 384
	OffsetRsbCodePtrs      = 448
	OffsetSpill            = 512
)

// OffsetReg returns the offset of guest general register r.
func OffsetReg(r ir.Reg) int32 { return OffsetRegs + 4*int32(r) }

// OffsetExtReg returns the offset of the given single-precision slot index.
// Doubles alias two consecutive singles.
func OffsetExtReg(index int) int32 { return OffsetExtRegs + 4*int32(index) }

// OffsetSpillSlot returns the offset of 64-bit spill slot i.
func OffsetSpillSlot(i int) int32 { return OffsetSpill + 8*int32(i) }

// FPSCR bit positions surfaced by the decomposed fields.
const (
	fpscrNzcvMask = 0xF0000000
	fpscrIDCBit   = 1 << 7
	fpscrUFCBit   = 1 << 3
)

// MXCSR layout used when deriving the guest control word from FPSCR.
const (
	mxcsrDefault = 0x1F80 // all exceptions masked
	mxcsrFZ      = 1 << 15
	mxcsrDAZ     = 1 << 6
	mxcsrRCShift = 13
)

// NewState returns a guest state with the RSB poisoned and the guest MXCSR
// at its power-on value.
func NewState() *State {
	s := &State{GuestMXCSR: mxcsrDefault}
	s.ResetRSB()
	return s
}

// ResetRSB invalidates every ring entry. Stale code pointers must never
// survive a cache clear.
func (s *State) ResetRSB() {
	for i := range s.RsbLocations {
		s.RsbLocations[i] = rsbInvalidHash
	}
	for i := range s.RsbCodePtrs {
		s.RsbCodePtrs[i] = 0
	}
	s.RsbPtr = 0
}

// Fpscr reassembles the architectural FPSCR from the decomposed fields.
func (s *State) Fpscr() uint32 {
	fpscr := s.FpscrMode | (s.FpscrNZCV & fpscrNzcvMask)
	if s.FpscrIDC != 0 {
		fpscr |= fpscrIDCBit
	}
	if s.FpscrUFC != 0 {
		fpscr |= fpscrUFCBit
	}
	return fpscr
}

// SetFpscr decomposes an architectural FPSCR write and recomputes the guest
// MXCSR so emitted VFP code runs under the guest rounding mode, with
// flush-to-zero mapped onto FZ+DAZ.
func (s *State) SetFpscr(fpscr uint32) {
	s.FpscrMode = fpscr & ir.FpscrModeMask
	s.FpscrNZCV = fpscr & fpscrNzcvMask
	s.FpscrIDC = 0
	if fpscr&fpscrIDCBit != 0 {
		s.FpscrIDC = 1 << 7
	}
	s.FpscrUFC = 0
	if fpscr&fpscrUFCBit != 0 {
		s.FpscrUFC = 1 << 3
	}

	mxcsr := uint32(mxcsrDefault)
	// ARM RMode: 00 nearest, 01 +inf, 10 -inf, 11 zero.
	// x86 RC:    00 nearest, 01 -inf, 10 +inf, 11 zero.
	switch (fpscr >> 22) & 3 {
	case 1:
		mxcsr |= 2 << mxcsrRCShift
	case 2:
		mxcsr |= 1 << mxcsrRCShift
	case 3:
		mxcsr |= 3 << mxcsrRCShift
	}
	if fpscr&(1<<24) != 0 { // FTZ
		mxcsr |= mxcsrFZ | mxcsrDAZ
	}
	s.GuestMXCSR = mxcsr
}

// CpsrThumb reports CPSR.T.
func (s *State) CpsrThumb() bool { return s.Cpsr&(1<<5) != 0 }

// CpsrBigEndian reports CPSR.E.
func (s *State) CpsrBigEndian() bool { return s.Cpsr&(1<<9) != 0 }

// Location builds the descriptor for the state's current PC and mode bits.
func (s *State) Location() ir.LocationDescriptor {
	return ir.NewLocationDescriptor(s.Regs[15], s.CpsrThumb(), s.CpsrBigEndian(), s.FpscrMode)
}
