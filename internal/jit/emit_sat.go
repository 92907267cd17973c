package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm"
	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

func init() {
	registerEmit(ir.OpSignedSaturatedAdd, (*Emitter).emitSignedSaturatedAdd)
	registerEmit(ir.OpSignedSaturatedSub, (*Emitter).emitSignedSaturatedSub)
	registerEmit(ir.OpSignedSaturation, (*Emitter).emitSignedSaturation)
	registerEmit(ir.OpUnsignedSaturation, (*Emitter).emitUnsignedSaturation)
}

func (e *Emitter) emitSignedSaturatedArith(regs *RegAlloc, block *ir.Block, inst *ir.Inst, sub bool) {
	overflowInst := erasePseudoOp(block, inst, ir.OpGetOverflowFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	operand := regs.Use(inst.Arg(1))
	var overflow asm.Register
	if overflowInst != nil {
		overflow = regs.Def(overflowInst)
	} else {
		overflow = regs.Scratch()
	}

	// Build the saturation value from the sign of the first operand:
	// 0x7FFFFFFF when non-negative, 0x80000000 when negative.
	e.code.MOVL(result, overflow)
	e.code.SHRLconst(31, overflow)
	e.code.ADDLconst(0x7FFFFFFF, overflow)
	if sub {
		e.code.SUBL(operand, result)
	} else {
		e.code.ADDL(operand, result)
	}
	e.code.CMOVL(amd64.CondO, overflow, result)

	if overflowInst != nil {
		e.code.SETcc(amd64.CondO, overflow)
	}
}

func (e *Emitter) emitSignedSaturatedAdd(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.emitSignedSaturatedArith(regs, block, inst, false)
}

func (e *Emitter) emitSignedSaturatedSub(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.emitSignedSaturatedArith(regs, block, inst, true)
}

func (e *Emitter) emitUnsignedSaturation(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	overflowInst := erasePseudoOp(block, inst, ir.OpGetOverflowFromOp)

	n := inst.Arg(1).U8()
	if n > 31 {
		panic(fmt.Errorf("BUG: unsigned saturation to %d bits", n))
	}
	saturated := uint32(1)<<n - 1

	result := regs.Def(inst)
	a := regs.Use(inst.Arg(0))
	var overflow asm.Register
	if overflowInst != nil {
		overflow = regs.Def(overflowInst)
	} else {
		overflow = regs.Scratch()
	}

	// result = clamp(a, 0, saturated), treating a as signed.
	e.code.XORL(overflow, overflow)
	e.code.CMPLconst(saturated, a)
	e.code.MOVLconst(saturated, result)
	e.code.CMOVL(amd64.CondLE, overflow, result)
	e.code.CMOVL(amd64.CondBE, a, result)

	if overflowInst != nil {
		e.code.SETcc(amd64.CondA, overflow)
	}
}

func (e *Emitter) emitSignedSaturation(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	overflowInst := erasePseudoOp(block, inst, ir.OpGetOverflowFromOp)

	n := inst.Arg(1).U8()
	if n < 1 || n > 32 {
		panic(fmt.Errorf("BUG: signed saturation to %d bits", n))
	}

	if n == 32 {
		regs.RegisterAddDef(inst, inst.Arg(0))
		if overflowInst != nil {
			overflow := regs.Def(overflowInst)
			e.code.XORL(overflow, overflow)
		}
		return
	}

	mask := uint32(1)<<n - 1
	positiveSaturated := uint32(1)<<(n-1) - 1
	negativeSaturated := uint32(1) << (n - 1)
	sextNegativeSaturated := -negativeSaturated

	result := regs.Def(inst)
	a := regs.Use(inst.Arg(0))
	var overflow asm.Register
	if overflowInst != nil {
		overflow = regs.Def(overflowInst)
	} else {
		overflow = regs.Scratch()
	}
	tmp := regs.Scratch()

	// overflow holds a value in [0, mask] exactly when a is representable
	// in n bits.
	e.code.LEAL(amd64.M(a, int32(negativeSaturated)), overflow)

	e.code.CMPLconst(positiveSaturated, a)
	e.code.MOVLconst(positiveSaturated, tmp)
	e.code.MOVLconst(sextNegativeSaturated, result)
	e.code.CMOVL(amd64.CondG, tmp, result)

	e.code.CMPLconst(mask, overflow)
	e.code.CMOVL(amd64.CondBE, a, result)

	if overflowInst != nil {
		e.code.SETcc(amd64.CondA, overflow)
	}
}
