package jit

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dynarec/krait/internal/ir"
)

func newTestEmitter(t *testing.T, cfg *Config) (*Emitter, *BlockOfCode) {
	t.Helper()
	code, err := NewBlockOfCode(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, code.Close()) })
	if cfg == nil {
		cfg = &Config{}
	}
	return NewEmitter(code, cfg), code
}

func blockBytes(code *BlockOfCode, d BlockDescriptor) []byte {
	off := int(d.EntryPtr - code.Seg().Addr())
	return code.Seg().Bytes()[off : off+d.Size]
}

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// relTarget resolves a rel32 branch whose displacement field starts at
// fieldAddr and is relative to the end of the field.
func relTarget(fieldAddr uintptr, field []byte) int64 {
	return int64(fieldAddr) + 4 + int64(int32(le32(field)))
}

func nops(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0x90
	}
	return b
}

// addCycles(n) for imm8 cycle counts.
func subCyclesBytes(n byte) []byte {
	return []byte{0x49, 0x83, 0xaf, 0x50, 0x01, 0x00, 0x00, n}
}

func TestThunkLayout(t *testing.T) {
	_, code := newTestEmitter(t, nil)
	base := code.Seg().Addr()

	require.Equal(t, base, code.RunCodeAddress())
	require.Equal(t, base+35, code.ReturnFromRunCodeAddress())
	require.Equal(t, base+51, code.ReturnFromRunCodeWithoutMxcsrSwitchAddress())
	require.Equal(t, 66, code.clearCacheCursor)

	var want []byte
	// Entry: push callee-saved, realign, pin the state register, swap in the
	// guest MXCSR, jump to the target block.
	want = append(want,
		0x53, 0x55, 0x41, 0x54, 0x41, 0x55, 0x41, 0x56, 0x41, 0x57,
		0x48, 0x83, 0xec, 0x08,
		0x49, 0x89, 0xff,
		0x41, 0x0f, 0xae, 0x9f, 0x5c, 0x01, 0x00, 0x00,
		0x41, 0x0f, 0xae, 0x97, 0x58, 0x01, 0x00, 0x00,
		0xff, 0xe6,
	)
	// Exit with MXCSR switch.
	want = append(want,
		0x41, 0x0f, 0xae, 0x9f, 0x58, 0x01, 0x00, 0x00,
		0x41, 0x0f, 0xae, 0x97, 0x5c, 0x01, 0x00, 0x00,
	)
	// Common exit tail.
	want = append(want,
		0x48, 0x83, 0xc4, 0x08,
		0x41, 0x5f, 0x41, 0x5e, 0x41, 0x5d, 0x41, 0x5c, 0x5d, 0x5b,
		0xc3,
	)
	require.Equal(t, want, code.Seg().Bytes()[:66])
}

func TestEmitReturnToDispatch(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	b.Terminal = ir.TermReturnToDispatch{}

	desc := e.Emit(b)
	require.Zero(t, desc.EntryPtr%16)

	got, ok := e.GetBasicBlock(loc)
	require.True(t, ok)
	require.Equal(t, desc, got)

	raw := blockBytes(code, desc)
	require.Equal(t, subCyclesBytes(1), raw[:8])
	require.Equal(t, byte(0xe9), raw[8])
	require.Equal(t, int64(code.ReturnFromRunCodeAddress()), relTarget(desc.EntryPtr+9, raw[9:13]))
	require.Equal(t, byte(0xcc), raw[13])
	require.Equal(t, 14, desc.Size)
}

func TestEmitRegisterMoves(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	get := b.AppendInst(ir.OpGetRegister, ir.RegRef(ir.R0))
	b.AppendInst(ir.OpSetRegister, ir.RegRef(ir.R1), ir.InstValue(get))
	b.AppendInst(ir.OpSetRegister, ir.RegRef(ir.R2), ir.ImmU32(0xDEAD))
	b.Terminal = ir.TermReturnToDispatch{}

	raw := blockBytes(code, e.Emit(b))
	want := []byte{
		0x41, 0x8b, 0x07, // r0 -> eax
		0x41, 0x89, 0x47, 0x04, // eax -> r1
		0x41, 0xc7, 0x47, 0x08, 0xad, 0xde, 0x00, 0x00, // 0xDEAD -> r2
	}
	require.Equal(t, want, raw[:len(want)])
}

func TestEmitFlagAccess(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	c := b.AppendInst(ir.OpGetCFlag)
	b.AppendInst(ir.OpSetRegister, ir.RegRef(ir.R0), ir.InstValue(c))
	b.AppendInst(ir.OpSetCFlag, ir.ImmU1(true))
	b.AppendInst(ir.OpSetNFlag, ir.ImmU1(false))
	b.Terminal = ir.TermReturnToDispatch{}

	raw := blockBytes(code, e.Emit(b))
	want := []byte{
		0x41, 0x8b, 0x87, 0x40, 0x01, 0x00, 0x00, // cpsr -> eax
		0xc1, 0xe8, 0x1d, // >> 29
		0x83, 0xe0, 0x01, // & 1
		0x41, 0x89, 0x07, // eax -> r0
		0x41, 0x81, 0x8f, 0x40, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, // cpsr |= C
		0x41, 0x81, 0xa7, 0x40, 0x01, 0x00, 0x00, 0xff, 0xff, 0xff, 0x7f, // cpsr &= ^N
	}
	require.Equal(t, want, raw[:len(want)])
}

func TestEmitTermLinkBlockPatching(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	locA := ir.NewLocationDescriptor(0x8000, false, false, 0)
	locB := ir.NewLocationDescriptor(0x8004, false, false, 0)

	a := ir.NewBlock(locA)
	a.CycleCount = 1
	a.Terminal = ir.TermLinkBlock{Next: locB}
	descA := e.Emit(a)

	rawA := blockBytes(code, descA)
	require.Equal(t, subCyclesBytes(1), rawA[:8])
	// Cycle check against zero.
	require.Equal(t, []byte{0x49, 0x83, 0xbf, 0x50, 0x01, 0x00, 0x00, 0x00}, rawA[8:16])
	// The link site is unpatched while the target is uncompiled.
	require.Equal(t, nops(6), rawA[16:22])
	// Fallback: store the target PC and return to the dispatcher.
	require.Equal(t, []byte{0x41, 0xc7, 0x47, 0x3c, 0x04, 0x80, 0x00, 0x00}, rawA[22:30])
	require.Equal(t, byte(0xe9), rawA[30])
	require.Equal(t, int64(code.ReturnFromRunCodeAddress()), relTarget(descA.EntryPtr+31, rawA[31:35]))
	require.Equal(t, byte(0xcc), rawA[35])
	require.Equal(t, 36, descA.Size)

	b := ir.NewBlock(locB)
	b.CycleCount = 1
	b.Terminal = ir.TermReturnToDispatch{}
	descB := e.Emit(b)

	// Compiling the target rewrote the site into a conditional jump to it.
	rawA = blockBytes(code, descA)
	require.Equal(t, []byte{0x0f, 0x8f}, rawA[16:18])
	require.Equal(t, int64(descB.EntryPtr), relTarget(descA.EntryPtr+18, rawA[18:22]))

	e.unpatch(locB)
	rawA = blockBytes(code, descA)
	require.Equal(t, nops(6), rawA[16:22])
}

func TestEmitTermLinkBlockToCompiledTarget(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	locA := ir.NewLocationDescriptor(0x8000, false, false, 0)
	locB := ir.NewLocationDescriptor(0x8004, false, false, 0)

	b := ir.NewBlock(locB)
	b.CycleCount = 1
	b.Terminal = ir.TermReturnToDispatch{}
	descB := e.Emit(b)

	a := ir.NewBlock(locA)
	a.CycleCount = 1
	a.Terminal = ir.TermLinkBlock{Next: locB}
	descA := e.Emit(a)

	rawA := blockBytes(code, descA)
	require.Equal(t, []byte{0x0f, 0x8f}, rawA[16:18])
	require.Equal(t, int64(descB.EntryPtr), relTarget(descA.EntryPtr+18, rawA[18:22]))
}

func TestEmitTermLinkBlockFastPatching(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	locA := ir.NewLocationDescriptor(0x8000, false, false, 0)
	locB := ir.NewLocationDescriptor(0x8004, false, false, 0)

	a := ir.NewBlock(locA)
	a.CycleCount = 1
	a.Terminal = ir.TermLinkBlockFast{Next: locB}
	descA := e.Emit(a)

	// Unlinked, the 13-byte site stores the target PC and exits.
	rawA := blockBytes(code, descA)
	require.Equal(t, []byte{0x41, 0xc7, 0x47, 0x3c, 0x04, 0x80, 0x00, 0x00}, rawA[8:16])
	require.Equal(t, byte(0xe9), rawA[16])
	require.Equal(t, int64(code.ReturnFromRunCodeAddress()), relTarget(descA.EntryPtr+17, rawA[17:21]))

	b := ir.NewBlock(locB)
	b.CycleCount = 1
	b.Terminal = ir.TermReturnToDispatch{}
	descB := e.Emit(b)

	// Linked, the same 13 bytes become a direct jump plus padding.
	rawA = blockBytes(code, descA)
	require.Equal(t, byte(0xe9), rawA[8])
	require.Equal(t, int64(descB.EntryPtr), relTarget(descA.EntryPtr+9, rawA[9:13]))
	require.Equal(t, nops(8), rawA[13:21])
}

func TestEmitLocationFixups(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	locA := ir.NewLocationDescriptor(0x8000, false, false, 0)
	locB := ir.NewLocationDescriptor(0x8004, true, false, 0)

	a := ir.NewBlock(locA)
	a.CycleCount = 1
	a.Terminal = ir.TermLinkBlock{Next: locB}
	raw := blockBytes(code, e.Emit(a))

	// Entering Thumb flips CPSR.T before the link.
	require.Equal(t, []byte{0x41, 0x83, 0x8f, 0x40, 0x01, 0x00, 0x00, 0x20}, raw[8:16])
}

func TestEmitTermPopRSBHint(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	b.Terminal = ir.TermPopRSBHint{}
	raw := blockBytes(code, e.Emit(b))

	want := subCyclesBytes(1)
	// Rebuild the location hash from CPSR.T/E, FPSCR mode, and PC.
	want = append(want,
		0x41, 0x8b, 0x9f, 0x40, 0x01, 0x00, 0x00, // cpsr -> ebx
		0x41, 0x8b, 0x4f, 0x3c, // pc -> ecx
		0x81, 0xe3, 0x20, 0x02, 0x00, 0x00, // ebx &= T|E
		0xc1, 0xeb, 0x02, // ebx >>= 2
		0x41, 0x0b, 0x9f, 0x70, 0x01, 0x00, 0x00, // ebx |= fpscr mode
		0x48, 0xc1, 0xe3, 0x20, // rbx <<= 32
		0x48, 0x09, 0xcb, // rbx |= rcx
	)
	want = append(want, 0x48, 0xb8)
	want = binary.LittleEndian.AppendUint64(want, uint64(code.ReturnFromRunCodeAddress()))
	for i := 0; i < RSBSize; i++ {
		want = append(want, 0x49, 0x3b, 0x9f)
		want = binary.LittleEndian.AppendUint32(want, uint32(OffsetRsbLocations+8*i))
		want = append(want, 0x49, 0x0f, 0x44, 0x87)
		want = binary.LittleEndian.AppendUint32(want, uint32(OffsetRsbCodePtrs+8*i))
	}
	want = append(want, 0xff, 0xe0, 0xcc)
	require.Equal(t, want, raw)
}

func TestEmitPushRSBPatchesCodePointer(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	locA := ir.NewLocationDescriptor(0x8000, false, false, 0)
	locB := ir.NewLocationDescriptor(0x9000, false, false, 0)

	a := ir.NewBlock(locA)
	a.CycleCount = 1
	a.AppendInst(ir.OpPushRSB, ir.ImmU64(locB.Hash()))
	a.Terminal = ir.TermReturnToDispatch{}
	descA := e.Emit(a)

	rawA := blockBytes(code, descA)
	site := bytes.Index(rawA, []byte{0x48, 0xb9})
	require.GreaterOrEqual(t, site, 0)
	require.Equal(t, uint64(code.ReturnFromRunCodeAddress()), le64(rawA[site+2:site+10]))

	b := ir.NewBlock(locB)
	b.CycleCount = 1
	b.Terminal = ir.TermReturnToDispatch{}
	descB := e.Emit(b)

	rawA = blockBytes(code, descA)
	require.Equal(t, uint64(descB.EntryPtr), le64(rawA[site+2:site+10]))

	e.unpatch(locB)
	rawA = blockBytes(code, descA)
	require.Equal(t, uint64(code.ReturnFromRunCodeAddress()), le64(rawA[site+2:site+10]))
}

func TestEmitTermCheckHalt(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	b.Terminal = ir.TermCheckHalt{Else: ir.TermReturnToDispatch{}}
	desc := e.Emit(b)
	raw := blockBytes(code, desc)

	require.Equal(t, []byte{0x41, 0x80, 0xbf, 0x61, 0x01, 0x00, 0x00, 0x00}, raw[8:16])
	require.Equal(t, []byte{0x0f, 0x85}, raw[16:18])
	require.Equal(t, int64(code.ReturnFromRunCodeAddress()), relTarget(desc.EntryPtr+18, raw[18:22]))
	require.Equal(t, byte(0xe9), raw[22])
	require.Equal(t, int64(code.ReturnFromRunCodeAddress()), relTarget(desc.EntryPtr+23, raw[23:27]))
}

func TestEmitTermInterpret(t *testing.T) {
	cfg := &Config{}
	cfg.Callbacks.InterpreterFallback = 0x123456
	e, code := newTestEmitter(t, cfg)
	loc := ir.NewLocationDescriptor(0x9000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	b.Terminal = ir.TermInterpret{Next: loc}
	desc := e.Emit(b)
	raw := blockBytes(code, desc)

	want := subCyclesBytes(1)
	want = append(want,
		0xbf, 0x00, 0x90, 0x00, 0x00, // pc -> edi
		0x4c, 0x89, 0xfe, // state -> rsi
		0xba, 0x01, 0x00, 0x00, 0x00, // count -> edx
		0x41, 0xc7, 0x47, 0x3c, 0x00, 0x90, 0x00, 0x00, // pc -> state
		0x41, 0x0f, 0xae, 0x9f, 0x58, 0x01, 0x00, 0x00, // stmxcsr guest
		0x41, 0x0f, 0xae, 0x97, 0x5c, 0x01, 0x00, 0x00, // ldmxcsr host
		0x48, 0xb8, 0x56, 0x34, 0x12, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xff, 0xd0, // call fallback
	)
	require.Equal(t, want, raw[:len(want)])
	off := len(want)
	require.Equal(t, byte(0xe9), raw[off])
	require.Equal(t, int64(code.ReturnFromRunCodeWithoutMxcsrSwitchAddress()),
		relTarget(desc.EntryPtr+uintptr(off)+1, raw[off+1:off+5]))
}

func TestEmitCondPrelude(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	fail := loc.SetPC(0x8004)
	b := ir.NewBlock(loc)
	b.SetEntryCond(ir.CondNE, fail)
	b.CondFailedCycleCount = 1
	b.CycleCount = 2
	b.Terminal = ir.TermReturnToDispatch{}
	desc := e.Emit(b)
	raw := blockBytes(code, desc)

	require.Equal(t, []byte{0x41, 0x8b, 0x87, 0x40, 0x01, 0x00, 0x00}, raw[:7])
	require.Equal(t, []byte{0xf7, 0xc0, 0x00, 0x00, 0x00, 0x40}, raw[7:13])
	require.Equal(t, []byte{0x0f, 0x84}, raw[13:15])

	// The pass label lands after the fail path's link terminal.
	passOff := relTarget(desc.EntryPtr+15, raw[15:19]) - int64(desc.EntryPtr)
	require.Equal(t, int64(54), passOff)
	require.Equal(t, subCyclesBytes(1), raw[19:27])
	require.Equal(t, subCyclesBytes(2), raw[54:62])
}

func TestEmitTermIf(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	b.Terminal = ir.TermIf{
		Cond: ir.CondEQ,
		Then: ir.TermReturnToDispatch{},
		Else: ir.TermReturnToDispatch{},
	}
	desc := e.Emit(b)
	raw := blockBytes(code, desc)

	require.Equal(t, []byte{0x41, 0x8b, 0x87, 0x40, 0x01, 0x00, 0x00}, raw[8:15])
	require.Equal(t, []byte{0xf7, 0xc0, 0x00, 0x00, 0x00, 0x40}, raw[15:21])
	require.Equal(t, []byte{0x0f, 0x85}, raw[21:23])
	// Else branch first, then the pass label at the Then branch.
	require.Equal(t, byte(0xe9), raw[27])
	passOff := relTarget(desc.EntryPtr+23, raw[23:27]) - int64(desc.EntryPtr)
	require.Equal(t, int64(32), passOff)
	require.Equal(t, byte(0xe9), raw[32])
}

func TestEmitterClearCache(t *testing.T) {
	e, code := newTestEmitter(t, nil)
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)
	b := ir.NewBlock(loc)
	b.CycleCount = 1
	b.Terminal = ir.TermReturnToDispatch{}
	e.Emit(b)

	_, ok := e.GetBasicBlock(loc)
	require.True(t, ok)
	require.Greater(t, code.Cursor(), code.clearCacheCursor)

	e.ClearCache()
	code.ClearCache()

	_, ok = e.GetBasicBlock(loc)
	require.False(t, ok)
	require.Equal(t, code.clearCacheCursor, code.Cursor())
	require.Equal(t, code.Seg().Cap()-code.clearCacheCursor, code.SpaceRemaining())
}
