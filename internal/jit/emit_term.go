package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

// patchInformation records the cursor offset of every patchable site that
// targets one location, grouped by site kind. Each kind has a fixed byte
// length so sites can be rewritten in place.
type patchInformation struct {
	jg     []int
	jmp    []int
	movRcx []int
}

func (e *Emitter) recordPatch(hash uint64) *patchInformation {
	pi := e.patchInformation[hash]
	if pi == nil {
		pi = &patchInformation{}
		e.patchInformation[hash] = pi
	}
	return pi
}

// emitCond evaluates an ARM condition against the guest CPSR and returns the
// label jumped to when it passes. Runs outside register allocation, so eax,
// ebx and esi are free to clobber.
func (e *Emitter) emitCond(cond ir.Cond) *amd64.Label {
	const (
		nMask = uint32(1) << cpsrNShift
		zMask = uint32(1) << cpsrZShift
		cMask = uint32(1) << cpsrCShift
		vMask = uint32(1) << cpsrVShift
	)

	label := e.code.NewLabel()

	cpsr := amd64.REG_AX
	e.code.MOVLload(memCpsr(), cpsr)

	switch cond {
	case ir.CondEQ:
		e.code.TESTLconst(zMask, cpsr)
		e.code.Jcc(amd64.CondNZ, label)
	case ir.CondNE:
		e.code.TESTLconst(zMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondCS:
		e.code.TESTLconst(cMask, cpsr)
		e.code.Jcc(amd64.CondNZ, label)
	case ir.CondCC:
		e.code.TESTLconst(cMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondMI:
		e.code.TESTLconst(nMask, cpsr)
		e.code.Jcc(amd64.CondNZ, label)
	case ir.CondPL:
		e.code.TESTLconst(nMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondVS:
		e.code.TESTLconst(vMask, cpsr)
		e.code.Jcc(amd64.CondNZ, label)
	case ir.CondVC:
		e.code.TESTLconst(vMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondHI: // C and not Z
		e.code.ANDLconst(zMask|cMask, cpsr)
		e.code.CMPLconst(cMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondLS: // not C or Z
		e.code.ANDLconst(zMask|cMask, cpsr)
		e.code.CMPLconst(cMask, cpsr)
		e.code.Jcc(amd64.CondNZ, label)
	case ir.CondGE: // N == V
		e.code.ANDLconst(nMask|vMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
		e.code.CMPLconst(nMask|vMask, cpsr)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondLT: // N != V
		fail := e.code.NewLabel()
		e.code.ANDLconst(nMask|vMask, cpsr)
		e.code.Jcc(amd64.CondZ, fail)
		e.code.CMPLconst(nMask|vMask, cpsr)
		e.code.Jcc(amd64.CondNZ, label)
		e.code.Bind(fail)
	case ir.CondGT: // not Z and N == V
		tmp1, tmp2 := amd64.REG_BX, amd64.REG_SI
		e.code.MOVL(cpsr, tmp1)
		e.code.MOVL(cpsr, tmp2)
		e.code.SHRLconst(cpsrNShift, tmp1)
		e.code.SHRLconst(cpsrVShift, tmp2)
		e.code.SHRLconst(cpsrZShift, cpsr)
		e.code.XORL(tmp2, tmp1)
		e.code.ORL(cpsr, tmp1)
		e.code.TESTLconst(1, tmp1)
		e.code.Jcc(amd64.CondZ, label)
	case ir.CondLE: // Z or N != V
		tmp1, tmp2 := amd64.REG_BX, amd64.REG_SI
		e.code.MOVL(cpsr, tmp1)
		e.code.MOVL(cpsr, tmp2)
		e.code.SHRLconst(cpsrNShift, tmp1)
		e.code.SHRLconst(cpsrVShift, tmp2)
		e.code.SHRLconst(cpsrZShift, cpsr)
		e.code.XORL(tmp2, tmp1)
		e.code.ORL(cpsr, tmp1)
		e.code.TESTLconst(1, tmp1)
		e.code.Jcc(amd64.CondNZ, label)
	default:
		panic(fmt.Errorf("BUG: cannot evaluate condition %s", cond))
	}

	return label
}

// emitCondPrelude guards a conditional block. When the condition fails the
// fail-path cycles are charged and control links to the fail location.
func (e *Emitter) emitCondPrelude(block *ir.Block) {
	if block.EntryCond() == ir.CondAL {
		return
	}
	failedLoc, ok := block.CondFailedLocation()
	if !ok {
		panic(fmt.Errorf("BUG: conditional block %s has no fail location", block.Location()))
	}

	pass := e.emitCond(block.EntryCond())
	e.emitAddCycles(block.CondFailedCycleCount)
	e.emitTerminal(ir.TermLinkBlock{Next: failedLoc}, block.Location())
	e.code.Bind(pass)
}

func (e *Emitter) emitTerminal(term ir.Terminal, initial ir.LocationDescriptor) {
	switch t := term.(type) {
	case ir.TermInterpret:
		e.emitTermInterpret(t, initial)
	case ir.TermReturnToDispatch:
		e.code.JMPAddr(e.code.ReturnFromRunCodeAddress())
	case ir.TermLinkBlock:
		e.emitTermLinkBlock(t, initial)
	case ir.TermLinkBlockFast:
		e.emitTermLinkBlockFast(t, initial)
	case ir.TermPopRSBHint:
		e.emitTermPopRSBHint()
	case ir.TermIf:
		pass := e.emitCond(t.Cond)
		e.emitTerminal(t.Else, initial)
		e.code.Bind(pass)
		e.emitTerminal(t.Then, initial)
	case ir.TermCheckHalt:
		e.code.CMPBconstToMem(0, amd64.M(StateReg, OffsetHaltRequested))
		e.code.JccAddr(amd64.CondNZ, e.code.ReturnFromRunCodeAddress())
		e.emitTerminal(t.Else, initial)
	default:
		panic(fmt.Errorf("BUG: unknown terminal %T", term))
	}
}

func (e *Emitter) emitTermInterpret(t ir.TermInterpret, initial ir.LocationDescriptor) {
	if t.Next.TFlag() != initial.TFlag() || t.Next.EFlag() != initial.EFlag() {
		panic(fmt.Errorf("BUG: interpreter handoff cannot change instruction set or endianness"))
	}

	e.code.MOVLconst(t.Next.PC(), amd64.REG_DI)
	e.code.MOVQ(StateReg, amd64.REG_SI)
	e.code.MOVLconst(1, amd64.REG_DX)
	e.code.MOVLstoreconst(t.Next.PC(), memReg(ir.PC))
	e.code.SwitchMxcsrOnExit()
	e.code.CallFunction(e.cfg.Callbacks.InterpreterFallback)
	e.code.JMPAddr(e.code.ReturnFromRunCodeWithoutMxcsrSwitchAddress())
}

// emitLocationFixups updates the CPSR T and E bits when the target location
// differs from the current one.
func (e *Emitter) emitLocationFixups(next, initial ir.LocationDescriptor) {
	if next.TFlag() != initial.TFlag() {
		if next.TFlag() {
			e.code.ORLconstToMem(cpsrTBit, memCpsr())
		} else {
			e.code.ANDLconstToMem(^cpsrTBit, memCpsr())
		}
	}
	if next.EFlag() != initial.EFlag() {
		if next.EFlag() {
			e.code.ORLconstToMem(cpsrEBit, memCpsr())
		} else {
			e.code.ANDLconstToMem(^cpsrEBit, memCpsr())
		}
	}
}

func (e *Emitter) emitTermLinkBlock(t ir.TermLinkBlock, initial ir.LocationDescriptor) {
	e.emitLocationFixups(t.Next, initial)

	e.code.CMPQconstToMem(0, amd64.M(StateReg, OffsetCyclesRemaining))

	pi := e.recordPatch(t.Next.Hash())
	pi.jg = append(pi.jg, e.code.Cursor())
	if bd, ok := e.GetBasicBlock(t.Next); ok {
		e.emitPatchJg(bd.EntryPtr)
	} else {
		e.emitPatchJg(0)
	}

	e.code.MOVLstoreconst(t.Next.PC(), memReg(ir.PC))
	e.code.JMPAddr(e.code.ReturnFromRunCodeAddress())
}

func (e *Emitter) emitTermLinkBlockFast(t ir.TermLinkBlockFast, initial ir.LocationDescriptor) {
	e.emitLocationFixups(t.Next, initial)

	pi := e.recordPatch(t.Next.Hash())
	pi.jmp = append(pi.jmp, e.code.Cursor())
	if bd, ok := e.GetBasicBlock(t.Next); ok {
		e.emitPatchJmp(t.Next, bd.EntryPtr)
	} else {
		e.emitPatchJmp(t.Next, 0)
	}
}

// emitTermPopRSBHint rebuilds the location hash of the current guest state
// and jumps to the matching RSB entry, or back to the dispatcher on a miss.
// The reconstruction must agree bit for bit with LocationDescriptor.Hash.
func (e *Emitter) emitTermPopRSBHint() {
	e.code.MOVLload(memCpsr(), amd64.REG_BX)
	e.code.MOVLload(memReg(ir.PC), amd64.REG_CX)
	e.code.ANDLconst(cpsrTBit|cpsrEBit, amd64.REG_BX)
	e.code.SHRLconst(2, amd64.REG_BX)
	e.code.ORLload(amd64.M(StateReg, OffsetFpscrMode), amd64.REG_BX)
	e.code.SHLQconst(32, amd64.REG_BX)
	e.code.ORQ(amd64.REG_CX, amd64.REG_BX)

	e.code.MOVQconst(uint64(e.code.ReturnFromRunCodeAddress()), amd64.REG_AX)
	for i := 0; i < RSBSize; i++ {
		e.code.CMPQload(amd64.M(StateReg, OffsetRsbLocations+int32(i*8)), amd64.REG_BX)
		e.code.CMOVQload(amd64.CondZ, amd64.M(StateReg, OffsetRsbCodePtrs+int32(i*8)), amd64.REG_AX)
	}

	e.code.JMPreg(amd64.REG_AX)
}

// patch rewrites every recorded site targeting loc to jump to entry. An
// entry of zero points the sites back at the dispatcher.
func (e *Emitter) patch(loc ir.LocationDescriptor, entry uintptr) {
	pi, ok := e.patchInformation[loc.Hash()]
	if !ok {
		return
	}

	save := e.code.Cursor()
	for _, off := range pi.jg {
		e.code.SetCursor(off)
		e.emitPatchJg(entry)
	}
	for _, off := range pi.jmp {
		e.code.SetCursor(off)
		e.emitPatchJmp(loc, entry)
	}
	for _, off := range pi.movRcx {
		e.code.SetCursor(off)
		e.emitPatchMovRcx(entry)
	}
	e.code.SetCursor(save)
}

// unpatch disconnects every site targeting loc, used when its block is
// invalidated.
func (e *Emitter) unpatch(loc ir.LocationDescriptor) {
	e.patch(loc, 0)
}

func (e *Emitter) emitPatchJg(target uintptr) {
	start := e.code.Cursor()
	if target != 0 {
		e.code.JccAddr(amd64.CondG, target)
	}
	e.code.EnsurePatchSize(start, 6)
}

func (e *Emitter) emitPatchJmp(dest ir.LocationDescriptor, target uintptr) {
	start := e.code.Cursor()
	if target != 0 {
		e.code.JMPAddr(target)
	} else {
		e.code.MOVLstoreconst(dest.PC(), memReg(ir.PC))
		e.code.JMPAddr(e.code.ReturnFromRunCodeAddress())
	}
	e.code.EnsurePatchSize(start, 13)
}

func (e *Emitter) emitPatchMovRcx(target uintptr) {
	if target == 0 {
		target = e.code.ReturnFromRunCodeAddress()
	}
	start := e.code.Cursor()
	e.code.MOVQconst(uint64(target), amd64.REG_CX)
	e.code.EnsurePatchSize(start, 10)
}
