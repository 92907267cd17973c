package jit

import (
	"unsafe"

	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

func init() {
	registerEmit(ir.OpReadMemory8, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryRead(regs, inst, 8, e.cfg.Callbacks.MemoryRead8)
	})
	registerEmit(ir.OpReadMemory16, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryRead(regs, inst, 16, e.cfg.Callbacks.MemoryRead16)
	})
	registerEmit(ir.OpReadMemory32, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryRead(regs, inst, 32, e.cfg.Callbacks.MemoryRead32)
	})
	registerEmit(ir.OpReadMemory64, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryRead(regs, inst, 64, e.cfg.Callbacks.MemoryRead64)
	})
	registerEmit(ir.OpWriteMemory8, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryWrite(regs, inst, 8, e.cfg.Callbacks.MemoryWrite8)
	})
	registerEmit(ir.OpWriteMemory16, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryWrite(regs, inst, 16, e.cfg.Callbacks.MemoryWrite16)
	})
	registerEmit(ir.OpWriteMemory32, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryWrite(regs, inst, 32, e.cfg.Callbacks.MemoryWrite32)
	})
	registerEmit(ir.OpWriteMemory64, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitMemoryWrite(regs, inst, 64, e.cfg.Callbacks.MemoryWrite64)
	})
	registerEmit(ir.OpClearExclusive, (*Emitter).emitClearExclusive)
	registerEmit(ir.OpSetExclusive, (*Emitter).emitSetExclusive)
	registerEmit(ir.OpExclusiveWriteMemory8, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitExclusiveWrite(regs, inst, e.cfg.Callbacks.MemoryWrite8)
	})
	registerEmit(ir.OpExclusiveWriteMemory16, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitExclusiveWrite(regs, inst, e.cfg.Callbacks.MemoryWrite16)
	})
	registerEmit(ir.OpExclusiveWriteMemory32, func(e *Emitter, regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
		e.emitExclusiveWrite(regs, inst, e.cfg.Callbacks.MemoryWrite32)
	})
	registerEmit(ir.OpExclusiveWriteMemory64, (*Emitter).emitExclusiveWriteMemory64)
}

func (e *Emitter) pageTableAddr() uint64 {
	return uint64(uintptr(unsafe.Pointer(e.cfg.PageTable)))
}

// emitMemoryRead emits a guest load. With a page table configured the common
// case resolves inline: a mapped page yields a direct host load, an unmapped
// entry falls back to the callback. The callback arguments are marshalled up
// front either way, so the slow path is a bare CALL.
func (e *Emitter) emitMemoryRead(regs *RegAlloc, inst *ir.Inst, bits int, fn uintptr) {
	regs.HostCall(inst, inst.Arg(0))
	if e.cfg.PageTable == nil {
		e.code.CallFunction(fn)
		return
	}

	result := amd64.REG_AX
	vaddr := amd64.REG_DI
	pageIndex := regs.Scratch()
	pageOffset := regs.Scratch()

	abort := e.code.NewLabel()
	end := e.code.NewLabel()

	e.code.MOVQconst(e.pageTableAddr(), result)
	e.code.MOVL(vaddr, pageIndex)
	e.code.SHRLconst(PageTableBits, pageIndex)
	e.code.MOVQload(amd64.Mem{Base: result, Index: pageIndex, Scale: 3}, result)
	e.code.TESTQ(result, result)
	e.code.Jcc(amd64.CondZ, abort)
	e.code.MOVL(vaddr, pageOffset)
	e.code.ANDLconst(PageMask, pageOffset)
	host := amd64.Mem{Base: result, Index: pageOffset, Scale: 0}
	switch bits {
	case 8:
		e.code.MOVBLZXload(host, result)
	case 16:
		e.code.MOVWLZXload(host, result)
	case 32:
		e.code.MOVLload(host, result)
	case 64:
		e.code.MOVQload(host, result)
	}
	e.code.JMPlabel(end)
	e.code.Bind(abort)
	e.code.CallFunction(fn)
	e.code.Bind(end)
}

func (e *Emitter) emitMemoryWrite(regs *RegAlloc, inst *ir.Inst, bits int, fn uintptr) {
	regs.HostCall(nil, inst.Arg(0), inst.Arg(1))
	if e.cfg.PageTable == nil {
		e.code.CallFunction(fn)
		return
	}

	table := amd64.REG_AX
	vaddr := amd64.REG_DI
	value := amd64.REG_SI
	pageIndex := regs.Scratch()
	pageOffset := regs.Scratch()

	abort := e.code.NewLabel()
	end := e.code.NewLabel()

	e.code.MOVQconst(e.pageTableAddr(), table)
	e.code.MOVL(vaddr, pageIndex)
	e.code.SHRLconst(PageTableBits, pageIndex)
	e.code.MOVQload(amd64.Mem{Base: table, Index: pageIndex, Scale: 3}, table)
	e.code.TESTQ(table, table)
	e.code.Jcc(amd64.CondZ, abort)
	e.code.MOVL(vaddr, pageOffset)
	e.code.ANDLconst(PageMask, pageOffset)
	host := amd64.Mem{Base: table, Index: pageOffset, Scale: 0}
	switch bits {
	case 8:
		e.code.MOVBstore(value, host)
	case 16:
		e.code.MOVWstore(value, host)
	case 32:
		e.code.MOVLstore(value, host)
	case 64:
		e.code.MOVQstore(value, host)
	}
	e.code.JMPlabel(end)
	e.code.Bind(abort)
	e.code.CallFunction(fn)
	e.code.Bind(end)
}

func (e *Emitter) emitClearExclusive(_ *RegAlloc, _ *ir.Block, _ *ir.Inst) {
	e.code.MOVBstoreconst(0, amd64.M(StateReg, OffsetExclusiveState))
}

func (e *Emitter) emitSetExclusive(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	address := regs.Use(inst.Arg(0))

	e.code.MOVBstoreconst(1, amd64.M(StateReg, OffsetExclusiveState))
	e.code.MOVLstore(address, amd64.M(StateReg, OffsetExclusiveAddress))
}

// emitExclusiveWrite emits a store-exclusive. The result is 0 on success and
// 1 when the monitor was not armed for this address's reservation granule.
func (e *Emitter) emitExclusiveWrite(regs *RegAlloc, inst *ir.Inst, fn uintptr) {
	regs.HostCall(nil, inst.Arg(0), inst.Arg(1))
	passed := regs.Def(inst)
	tmp := amd64.REG_AX

	end := e.code.NewLabel()

	e.code.MOVLconst(1, passed)
	e.code.CMPBconstToMem(0, amd64.M(StateReg, OffsetExclusiveState))
	e.code.Jcc(amd64.CondZ, end)
	e.code.MOVL(amd64.REG_DI, tmp)
	e.code.XORLload(amd64.M(StateReg, OffsetExclusiveAddress), tmp)
	e.code.TESTLconst(ReservationGranuleMask, tmp)
	e.code.Jcc(amd64.CondNZ, end)
	e.code.MOVBstoreconst(0, amd64.M(StateReg, OffsetExclusiveState))
	e.code.CallFunction(fn)
	e.code.XORL(passed, passed)
	e.code.Bind(end)
}

func (e *Emitter) emitExclusiveWriteMemory64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	regs.HostCall(nil, inst.Arg(0), inst.Arg(1))
	passed := regs.Def(inst)
	valueHi := regs.UseScratch(inst.Arg(2))
	valueLo := amd64.REG_SI
	tmp := amd64.REG_AX

	end := e.code.NewLabel()

	e.code.MOVLconst(1, passed)
	e.code.CMPBconstToMem(0, amd64.M(StateReg, OffsetExclusiveState))
	e.code.Jcc(amd64.CondZ, end)
	e.code.MOVL(amd64.REG_DI, tmp)
	e.code.XORLload(amd64.M(StateReg, OffsetExclusiveAddress), tmp)
	e.code.TESTLconst(ReservationGranuleMask, tmp)
	e.code.Jcc(amd64.CondNZ, end)
	e.code.MOVBstoreconst(0, amd64.M(StateReg, OffsetExclusiveState))
	e.code.MOVL(valueLo, valueLo) // zero-extend the low word
	e.code.SHLQconst(32, valueHi)
	e.code.ORQ(valueHi, valueLo)
	e.code.CallFunction(e.cfg.Callbacks.MemoryWrite64)
	e.code.XORL(passed, passed)
	e.code.Bind(end)
}
