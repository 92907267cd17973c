package jit

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/dynarec/krait/internal/ir"
)

func TestStateOffsets(t *testing.T) {
	var s State
	require.Equal(t, uintptr(OffsetRegs), unsafe.Offsetof(s.Regs))
	require.Equal(t, uintptr(OffsetExtRegs), unsafe.Offsetof(s.ExtRegs))
	require.Equal(t, uintptr(OffsetCpsr), unsafe.Offsetof(s.Cpsr))
	require.Equal(t, uintptr(OffsetCyclesToRun), unsafe.Offsetof(s.CyclesToRun))
	require.Equal(t, uintptr(OffsetCyclesRemaining), unsafe.Offsetof(s.CyclesRemaining))
	require.Equal(t, uintptr(OffsetGuestMXCSR), unsafe.Offsetof(s.GuestMXCSR))
	require.Equal(t, uintptr(OffsetSaveHostMXCSR), unsafe.Offsetof(s.SaveHostMXCSR))
	require.Equal(t, uintptr(OffsetExclusiveState), unsafe.Offsetof(s.ExclusiveState))
	require.Equal(t, uintptr(OffsetHaltRequested), unsafe.Offsetof(s.HaltRequested))
	require.Equal(t, uintptr(OffsetExclusiveAddress), unsafe.Offsetof(s.ExclusiveAddress))
	require.Equal(t, uintptr(OffsetFpscrIDC), unsafe.Offsetof(s.FpscrIDC))
	require.Equal(t, uintptr(OffsetFpscrUFC), unsafe.Offsetof(s.FpscrUFC))
	require.Equal(t, uintptr(OffsetFpscrMode), unsafe.Offsetof(s.FpscrMode))
	require.Equal(t, uintptr(OffsetFpscrNZCV), unsafe.Offsetof(s.FpscrNZCV))
	require.Equal(t, uintptr(OffsetRsbPtr), unsafe.Offsetof(s.RsbPtr))
	require.Equal(t, uintptr(OffsetRsbLocations), unsafe.Offsetof(s.RsbLocations))
	require.Equal(t, uintptr(OffsetRsbCodePtrs), unsafe.Offsetof(s.RsbCodePtrs))
	require.Equal(t, uintptr(OffsetSpill), unsafe.Offsetof(s.Spill))
}

func TestStateFieldHelpers(t *testing.T) {
	require.Equal(t, int32(0), OffsetReg(ir.R0))
	require.Equal(t, int32(12), OffsetReg(ir.R3))
	require.Equal(t, int32(60), OffsetReg(ir.PC))
	require.Equal(t, int32(64), OffsetExtReg(0))
	require.Equal(t, int32(64+4*31), OffsetExtReg(31))
	require.Equal(t, int32(OffsetSpill), OffsetSpillSlot(0))
	require.Equal(t, int32(OffsetSpill+8*63), OffsetSpillSlot(63))
}

func TestNewStatePoisonsRSB(t *testing.T) {
	s := NewState()
	require.Equal(t, uint32(mxcsrDefault), s.GuestMXCSR)
	require.Equal(t, uint64(0), s.RsbPtr)
	for i := 0; i < RSBSize; i++ {
		require.Equal(t, rsbInvalidHash, s.RsbLocations[i])
		require.Equal(t, uint64(0), s.RsbCodePtrs[i])
	}
}

func TestResetRSB(t *testing.T) {
	s := NewState()
	s.RsbPtr = 5
	s.RsbLocations[3] = 0x8000
	s.RsbCodePtrs[3] = 0xCAFE
	s.ResetRSB()
	require.Equal(t, uint64(0), s.RsbPtr)
	require.Equal(t, rsbInvalidHash, s.RsbLocations[3])
	require.Equal(t, uint64(0), s.RsbCodePtrs[3])
}

func TestSetFpscrGuestMXCSR(t *testing.T) {
	tests := []struct {
		name  string
		fpscr uint32
		want  uint32
	}{
		{"round to nearest", 0, 0x1F80},
		{"round towards plus infinity", 1 << 22, 0x5F80},
		{"round towards minus infinity", 2 << 22, 0x3F80},
		{"round towards zero", 3 << 22, 0x7F80},
		{"flush to zero", 1 << 24, 0x1F80 | mxcsrFZ | mxcsrDAZ},
		{"ftz with round to zero", 3<<22 | 1<<24, 0x7F80 | mxcsrFZ | mxcsrDAZ},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState()
			s.SetFpscr(tc.fpscr)
			require.Equal(t, tc.want, s.GuestMXCSR)
		})
	}
}

func TestFpscrRoundTrip(t *testing.T) {
	s := NewState()
	s.SetFpscr(0xA0C00088)
	require.Equal(t, uint32(0x00C00000), s.FpscrMode)
	require.Equal(t, uint32(0xA0000000), s.FpscrNZCV)
	require.NotZero(t, s.FpscrIDC)
	require.NotZero(t, s.FpscrUFC)
	require.Equal(t, uint32(0xA0C00088), s.Fpscr())
}

func TestSetFpscrDropsUntrackedBits(t *testing.T) {
	s := NewState()
	s.SetFpscr(0xFFFFFFFF)
	want := uint32(0xF0000000) | ir.FpscrModeMask | 1<<7 | 1<<3
	require.Equal(t, want, s.Fpscr())
}

func TestCpsrModeBits(t *testing.T) {
	s := NewState()
	require.False(t, s.CpsrThumb())
	require.False(t, s.CpsrBigEndian())
	s.Cpsr = 1 << 5
	require.True(t, s.CpsrThumb())
	s.Cpsr = 1 << 9
	require.True(t, s.CpsrBigEndian())
}

func TestStateLocation(t *testing.T) {
	s := NewState()
	s.Regs[15] = 0x8000
	s.Cpsr = 1 << 5
	s.FpscrMode = 0x00C00000
	want := ir.NewLocationDescriptor(0x8000, true, false, 0x00C00000)
	require.Equal(t, want, s.Location())
}
