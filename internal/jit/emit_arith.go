package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm"
	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

func init() {
	registerEmit(ir.OpGetCarryFromOp, (*Emitter).emitGetCarryFromOp)
	registerEmit(ir.OpGetOverflowFromOp, (*Emitter).emitGetOverflowFromOp)
	registerEmit(ir.OpLogicalShiftLeft, (*Emitter).emitLogicalShiftLeft)
	registerEmit(ir.OpLogicalShiftRight, (*Emitter).emitLogicalShiftRight)
	registerEmit(ir.OpLogicalShiftRight64, (*Emitter).emitLogicalShiftRight64)
	registerEmit(ir.OpArithmeticShiftRight, (*Emitter).emitArithmeticShiftRight)
	registerEmit(ir.OpRotateRight, (*Emitter).emitRotateRight)
	registerEmit(ir.OpRotateRightExtended, (*Emitter).emitRotateRightExtended)
	registerEmit(ir.OpAddWithCarry, (*Emitter).emitAddWithCarry)
	registerEmit(ir.OpSubWithCarry, (*Emitter).emitSubWithCarry)
	registerEmit(ir.OpMul, (*Emitter).emitMul)
	registerEmit(ir.OpMul64, (*Emitter).emitMul64)
	registerEmit(ir.OpAnd, (*Emitter).emitAnd)
	registerEmit(ir.OpEor, (*Emitter).emitEor)
	registerEmit(ir.OpOr, (*Emitter).emitOr)
	registerEmit(ir.OpNot, (*Emitter).emitNot)
	registerEmit(ir.OpSignExtendByteToWord, (*Emitter).emitSignExtendByteToWord)
	registerEmit(ir.OpSignExtendHalfToWord, (*Emitter).emitSignExtendHalfToWord)
	registerEmit(ir.OpZeroExtendByteToWord, (*Emitter).emitZeroExtendByteToWord)
	registerEmit(ir.OpZeroExtendHalfToWord, (*Emitter).emitZeroExtendHalfToWord)
	registerEmit(ir.OpByteReverseWord, (*Emitter).emitByteReverseWord)
	registerEmit(ir.OpByteReverseHalf, (*Emitter).emitByteReverseHalf)
	registerEmit(ir.OpByteReverseDual, (*Emitter).emitByteReverseDual)
	registerEmit(ir.OpCountLeadingZeros, (*Emitter).emitCountLeadingZeros)
}

// erasePseudoOp detaches and erases the pseudo-op of the given kind attached
// to inst, returning it. Must run before inst is defined so that the use count
// the allocator snapshots no longer includes the pseudo-op's reference.
func erasePseudoOp(block *ir.Block, inst *ir.Inst, op ir.Opcode) *ir.Inst {
	pseudo := inst.AssociatedPseudoOperation(op)
	if pseudo != nil {
		block.EraseInstruction(pseudo)
	}
	return pseudo
}

func (e *Emitter) emitGetCarryFromOp(_ *RegAlloc, _ *ir.Block, _ *ir.Inst) {
	panic(fmt.Errorf("BUG: GetCarryFromOp must be erased by the flag-producing instruction"))
}

func (e *Emitter) emitGetOverflowFromOp(_ *RegAlloc, _ *ir.Block, _ *ir.Inst) {
	panic(fmt.Errorf("BUG: GetOverflowFromOp must be erased by the flag-producing instruction"))
}

// The 32-bit shift instructions mask the count by 0x1F. ARM does not: counts
// of 32 and above produce zeros (or, for ASR, all sign bits). The variable
// count paths below normalise the count register with a zero extension and
// compare against 32 to recover the ARM behaviour.

func (e *Emitter) emitLogicalShiftLeft(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)
	shiftArg := inst.Arg(1)

	if carryInst == nil {
		regs.DiscardUse(inst.Arg(2))

		if shiftArg.IsImmediate() {
			result := regs.UseDef(inst.Arg(0), inst)
			if shift := shiftArg.U8(); shift <= 31 {
				e.code.SHLLconst(shift, result)
			} else {
				e.code.XORL(result, result)
			}
			return
		}

		shift := regs.UseScratch(shiftArg, amd64.REG_CX)
		result := regs.UseDef(inst.Arg(0), inst)
		zero := regs.Scratch()

		e.code.MOVBLZX(shift, shift)
		e.code.SHLLcl(result)
		e.code.XORL(zero, zero)
		e.code.CMPLconst(32, shift)
		e.code.CMOVL(amd64.CondNB, zero, result)
		return
	}

	if shiftArg.IsImmediate() {
		shift := shiftArg.U8()
		result := regs.UseDef(inst.Arg(0), inst)
		carry := regs.UseDef(inst.Arg(2), carryInst)

		switch {
		case shift == 0:
			// Carry and result pass through unchanged.
		case shift < 32:
			e.code.BTLconst(0, carry)
			e.code.SHLLconst(shift, result)
			e.code.SETcc(amd64.CondB, carry)
		case shift > 32:
			e.code.XORL(result, result)
			e.code.XORL(carry, carry)
		default:
			e.code.MOVL(result, carry)
			e.code.XORL(result, result)
			e.code.ANDLconst(1, carry)
		}
		return
	}

	shift := regs.UseScratch(shiftArg, amd64.REG_CX)
	result := regs.UseDef(inst.Arg(0), inst)
	carry := regs.UseDef(inst.Arg(2), carryInst)

	gt32 := e.code.NewLabel()
	eq32 := e.code.NewLabel()
	end := e.code.NewLabel()

	e.code.MOVBLZX(shift, shift)
	e.code.CMPLconst(32, shift)
	e.code.Jcc(amd64.CondA, gt32)
	e.code.Jcc(amd64.CondZ, eq32)

	// count < 32. Setting CF first gives the correct carry-out when the
	// count is zero, since a zero-count shift leaves the flags alone.
	e.code.BTLconst(0, carry)
	e.code.SHLLcl(result)
	e.code.SETcc(amd64.CondB, carry)
	e.code.JMPlabel(end)

	e.code.Bind(gt32)
	e.code.XORL(result, result)
	e.code.XORL(carry, carry)
	e.code.JMPlabel(end)

	e.code.Bind(eq32)
	e.code.MOVL(result, carry)
	e.code.ANDLconst(1, carry)
	e.code.XORL(result, result)

	e.code.Bind(end)
}

func (e *Emitter) emitLogicalShiftRight(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)
	shiftArg := inst.Arg(1)

	if carryInst == nil {
		regs.DiscardUse(inst.Arg(2))

		if shiftArg.IsImmediate() {
			result := regs.UseDef(inst.Arg(0), inst)
			if shift := shiftArg.U8(); shift <= 31 {
				e.code.SHRLconst(shift, result)
			} else {
				e.code.XORL(result, result)
			}
			return
		}

		shift := regs.UseScratch(shiftArg, amd64.REG_CX)
		result := regs.UseDef(inst.Arg(0), inst)
		zero := regs.Scratch()

		e.code.MOVBLZX(shift, shift)
		e.code.SHRLcl(result)
		e.code.XORL(zero, zero)
		e.code.CMPLconst(32, shift)
		e.code.CMOVL(amd64.CondNB, zero, result)
		return
	}

	if shiftArg.IsImmediate() {
		shift := shiftArg.U8()
		result := regs.UseDef(inst.Arg(0), inst)
		carry := regs.UseDef(inst.Arg(2), carryInst)

		switch {
		case shift == 0:
			// Carry and result pass through unchanged.
		case shift < 32:
			e.code.SHRLconst(shift, result)
			e.code.SETcc(amd64.CondB, carry)
		case shift == 32:
			e.code.BTLconst(31, result)
			e.code.SETcc(amd64.CondB, carry)
			e.code.MOVLconst(0, result)
		default:
			e.code.XORL(result, result)
			e.code.XORL(carry, carry)
		}
		return
	}

	shift := regs.UseScratch(shiftArg, amd64.REG_CX)
	result := regs.UseDef(inst.Arg(0), inst)
	carry := regs.UseDef(inst.Arg(2), carryInst)

	gt32 := e.code.NewLabel()
	eq32 := e.code.NewLabel()
	end := e.code.NewLabel()

	e.code.MOVBLZX(shift, shift)
	e.code.TESTL(shift, shift)
	e.code.Jcc(amd64.CondZ, end)
	e.code.CMPLconst(32, shift)
	e.code.Jcc(amd64.CondA, gt32)
	e.code.Jcc(amd64.CondZ, eq32)

	e.code.SHRLcl(result)
	e.code.SETcc(amd64.CondB, carry)
	e.code.JMPlabel(end)

	e.code.Bind(gt32)
	e.code.XORL(result, result)
	e.code.XORL(carry, carry)
	e.code.JMPlabel(end)

	e.code.Bind(eq32)
	e.code.BTLconst(31, result)
	e.code.SETcc(amd64.CondB, carry)
	e.code.MOVLconst(0, result)

	e.code.Bind(end)
}

func (e *Emitter) emitLogicalShiftRight64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	shiftArg := inst.Arg(1)
	if !shiftArg.IsImmediate() {
		panic(fmt.Errorf("BUG: 64-bit shift count must be an immediate"))
	}
	shift := shiftArg.U8()
	if shift >= 64 {
		panic(fmt.Errorf("BUG: 64-bit shift count %d out of range", shift))
	}
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.SHRQconst(shift, result)
}

func (e *Emitter) emitArithmeticShiftRight(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)
	shiftArg := inst.Arg(1)

	if carryInst == nil {
		regs.DiscardUse(inst.Arg(2))

		if shiftArg.IsImmediate() {
			shift := shiftArg.U8()
			if shift > 31 {
				shift = 31
			}
			result := regs.UseDef(inst.Arg(0), inst)
			e.code.SARLconst(shift, result)
			return
		}

		shift := regs.UseScratch(shiftArg, amd64.REG_CX)
		result := regs.UseDef(inst.Arg(0), inst)
		const31 := regs.Scratch()

		// Saturate the count at 31. Shifting a 32-bit value right by 31
		// arithmetically gives the same answer as any greater count.
		e.code.MOVLconst(31, const31)
		e.code.MOVBLZX(shift, shift)
		e.code.CMPLconst(31, shift)
		e.code.CMOVL(amd64.CondG, const31, shift)
		e.code.SARLcl(result)
		return
	}

	if shiftArg.IsImmediate() {
		shift := shiftArg.U8()
		result := regs.UseDef(inst.Arg(0), inst)
		carry := regs.UseDef(inst.Arg(2), carryInst)

		switch {
		case shift == 0:
			// Carry and result pass through unchanged.
		case shift <= 31:
			e.code.SARLconst(shift, result)
			e.code.SETcc(amd64.CondB, carry)
		default:
			e.code.SARLconst(31, result)
			e.code.BTLconst(31, result)
			e.code.SETcc(amd64.CondB, carry)
		}
		return
	}

	shift := regs.UseScratch(shiftArg, amd64.REG_CX)
	result := regs.UseDef(inst.Arg(0), inst)
	carry := regs.UseDef(inst.Arg(2), carryInst)

	gt31 := e.code.NewLabel()
	end := e.code.NewLabel()

	e.code.MOVBLZX(shift, shift)
	e.code.TESTL(shift, shift)
	e.code.Jcc(amd64.CondZ, end)
	e.code.CMPLconst(31, shift)
	e.code.Jcc(amd64.CondA, gt31)

	e.code.SARLcl(result)
	e.code.SETcc(amd64.CondB, carry)
	e.code.JMPlabel(end)

	e.code.Bind(gt31)
	e.code.SARLconst(31, result)
	e.code.BTLconst(31, result)
	e.code.SETcc(amd64.CondB, carry)

	e.code.Bind(end)
}

func (e *Emitter) emitRotateRight(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)
	shiftArg := inst.Arg(1)

	if carryInst == nil {
		regs.DiscardUse(inst.Arg(2))

		if shiftArg.IsImmediate() {
			result := regs.UseDef(inst.Arg(0), inst)
			e.code.RORLconst(shiftArg.U8()&0x1F, result)
			return
		}

		// Rotation is modulo 32 on both architectures, so the masked count
		// in CL is already correct.
		regs.UseScratch(shiftArg, amd64.REG_CX)
		result := regs.UseDef(inst.Arg(0), inst)
		e.code.RORLcl(result)
		return
	}

	if shiftArg.IsImmediate() {
		shift := shiftArg.U8()
		result := regs.UseDef(inst.Arg(0), inst)
		carry := regs.UseDef(inst.Arg(2), carryInst)

		switch {
		case shift == 0:
			// Carry and result pass through unchanged.
		case shift&0x1F == 0:
			e.code.BTLconst(31, result)
			e.code.SETcc(amd64.CondB, carry)
		default:
			e.code.RORLconst(shift&0x1F, result)
			e.code.SETcc(amd64.CondB, carry)
		}
		return
	}

	shift := regs.UseScratch(shiftArg, amd64.REG_CX)
	result := regs.UseDef(inst.Arg(0), inst)
	carry := regs.UseDef(inst.Arg(2), carryInst)

	mult32 := e.code.NewLabel()
	end := e.code.NewLabel()

	e.code.MOVBLZX(shift, shift)
	e.code.TESTL(shift, shift)
	e.code.Jcc(amd64.CondZ, end)
	e.code.ANDLconst(0x1F, shift)
	e.code.Jcc(amd64.CondZ, mult32)

	e.code.RORLcl(result)
	e.code.SETcc(amd64.CondB, carry)
	e.code.JMPlabel(end)

	// A nonzero multiple of 32 leaves the value alone and copies out bit 31.
	e.code.Bind(mult32)
	e.code.BTLconst(31, result)
	e.code.SETcc(amd64.CondB, carry)

	e.code.Bind(end)
}

func (e *Emitter) emitRotateRightExtended(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	var carry asm.Register
	if carryInst != nil {
		carry = regs.UseDef(inst.Arg(1), carryInst)
	} else {
		carry = regs.Use(inst.Arg(1))
	}

	e.code.BTLconst(0, carry)
	e.code.RCRLconst(1, result)
	if carryInst != nil {
		e.code.SETcc(amd64.CondB, carry)
	}
}

func (e *Emitter) emitAddWithCarry(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)
	overflowInst := erasePseudoOp(block, inst, ir.OpGetOverflowFromOp)

	b := inst.Arg(1)
	carryIn := inst.Arg(2)

	result := regs.UseDef(inst.Arg(0), inst)
	var carry, overflow asm.Register
	if carryInst != nil {
		carry = regs.Def(carryInst)
		e.code.XORL(carry, carry)
	}
	if overflowInst != nil {
		overflow = regs.Def(overflowInst)
		e.code.XORL(overflow, overflow)
	}

	var opArg OpArg
	if !b.IsImmediate() {
		opArg = regs.UseOpArg(b)
	}

	if carryIn.IsImmediate() {
		if carryIn.U1() {
			e.code.STC()
			e.emitAdc(b, opArg, result)
		} else {
			e.emitAdd(b, opArg, result)
		}
	} else {
		carryInReg := regs.Use(carryIn)
		e.code.BTLconst(0, carryInReg)
		e.emitAdc(b, opArg, result)
	}

	if carryInst != nil {
		e.code.SETcc(amd64.CondB, carry)
	}
	if overflowInst != nil {
		e.code.SETcc(amd64.CondO, overflow)
	}
}

func (e *Emitter) emitAdd(b ir.Value, opArg OpArg, result asm.Register) {
	switch {
	case b.IsImmediate():
		e.code.ADDLconst(b.U32(), result)
	case opArg.IsMem():
		e.code.ADDLload(opArg.Mem(), result)
	default:
		e.code.ADDL(opArg.Reg(), result)
	}
}

func (e *Emitter) emitAdc(b ir.Value, opArg OpArg, result asm.Register) {
	switch {
	case b.IsImmediate():
		e.code.ADCLconst(b.U32(), result)
	case opArg.IsMem():
		e.code.ADCLload(opArg.Mem(), result)
	default:
		e.code.ADCL(opArg.Reg(), result)
	}
}

func (e *Emitter) emitSubWithCarry(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	carryInst := erasePseudoOp(block, inst, ir.OpGetCarryFromOp)
	overflowInst := erasePseudoOp(block, inst, ir.OpGetOverflowFromOp)

	b := inst.Arg(1)
	carryIn := inst.Arg(2)

	result := regs.UseDef(inst.Arg(0), inst)
	var carry, overflow asm.Register
	if carryInst != nil {
		carry = regs.Def(carryInst)
		e.code.XORL(carry, carry)
	}
	if overflowInst != nil {
		overflow = regs.Def(overflowInst)
		e.code.XORL(overflow, overflow)
	}

	var opArg OpArg
	if !b.IsImmediate() {
		opArg = regs.UseOpArg(b)
	}

	// The host borrow flag is the complement of the guest carry.
	if carryIn.IsImmediate() {
		if carryIn.U1() {
			e.emitSub(b, opArg, result)
		} else {
			e.code.STC()
			e.emitSbb(b, opArg, result)
		}
	} else {
		carryInReg := regs.Use(carryIn)
		e.code.BTLconst(0, carryInReg)
		e.code.CMC()
		e.emitSbb(b, opArg, result)
	}

	if carryInst != nil {
		e.code.SETcc(amd64.CondNB, carry)
	}
	if overflowInst != nil {
		e.code.SETcc(amd64.CondO, overflow)
	}
}

func (e *Emitter) emitSub(b ir.Value, opArg OpArg, result asm.Register) {
	switch {
	case b.IsImmediate():
		e.code.SUBLconst(b.U32(), result)
	case opArg.IsMem():
		e.code.SUBLload(opArg.Mem(), result)
	default:
		e.code.SUBL(opArg.Reg(), result)
	}
}

func (e *Emitter) emitSbb(b ir.Value, opArg OpArg, result asm.Register) {
	switch {
	case b.IsImmediate():
		e.code.SBBLconst(b.U32(), result)
	case opArg.IsMem():
		e.code.SBBLload(opArg.Mem(), result)
	default:
		e.code.SBBL(opArg.Reg(), result)
	}
}

func (e *Emitter) emitMul(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	a, b := inst.Arg(0), inst.Arg(1)
	if a.IsImmediate() {
		a, b = b, a
	}

	result := regs.UseDef(a, inst)
	if b.IsImmediate() {
		e.code.IMULLconst(result, b.U32(), result)
	} else {
		opArg := regs.UseOpArg(b)
		if opArg.IsMem() {
			e.code.IMULLload(opArg.Mem(), result)
		} else {
			e.code.IMULL(opArg.Reg(), result)
		}
	}
}

func (e *Emitter) emitMul64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	b := inst.Arg(1)
	if b.IsImmediate() {
		breg := regs.Use(b)
		e.code.IMULQ(breg, result)
		return
	}
	opArg := regs.UseOpArg(b)
	if opArg.IsMem() {
		e.code.IMULQload(opArg.Mem(), result)
	} else {
		e.code.IMULQ(opArg.Reg(), result)
	}
}

func (e *Emitter) emitAnd(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	b := inst.Arg(1)
	switch {
	case b.IsImmediate():
		e.code.ANDLconst(b.U32(), result)
	default:
		opArg := regs.UseOpArg(b)
		if opArg.IsMem() {
			e.code.ANDLload(opArg.Mem(), result)
		} else {
			e.code.ANDL(opArg.Reg(), result)
		}
	}
}

func (e *Emitter) emitEor(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	b := inst.Arg(1)
	switch {
	case b.IsImmediate():
		e.code.XORLconst(b.U32(), result)
	default:
		opArg := regs.UseOpArg(b)
		if opArg.IsMem() {
			e.code.XORLload(opArg.Mem(), result)
		} else {
			e.code.XORL(opArg.Reg(), result)
		}
	}
}

func (e *Emitter) emitOr(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	b := inst.Arg(1)
	switch {
	case b.IsImmediate():
		e.code.ORLconst(b.U32(), result)
	default:
		opArg := regs.UseOpArg(b)
		if opArg.IsMem() {
			e.code.ORLload(opArg.Mem(), result)
		} else {
			e.code.ORL(opArg.Reg(), result)
		}
	}
}

func (e *Emitter) emitNot(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	a := inst.Arg(0)
	if a.IsImmediate() {
		result := regs.Def(inst)
		e.code.MOVLconst(^a.U32(), result)
		return
	}
	result := regs.UseDef(a, inst)
	e.code.NOTL(result)
}

func (e *Emitter) emitSignExtendByteToWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.MOVBLSX(result, result)
}

func (e *Emitter) emitSignExtendHalfToWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.MOVWLSX(result, result)
}

func (e *Emitter) emitZeroExtendByteToWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.MOVBLZX(result, result)
}

func (e *Emitter) emitZeroExtendHalfToWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.MOVWLZX(result, result)
}

func (e *Emitter) emitByteReverseWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.BSWAPL(result)
}

func (e *Emitter) emitByteReverseHalf(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.ROLWconst(8, result)
}

func (e *Emitter) emitByteReverseDual(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	e.code.BSWAPQ(result)
}

func (e *Emitter) emitCountLeadingZeros(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if e.cfg.CpuFeatures.HasLZCNT {
		source := regs.Use(inst.Arg(0))
		result := regs.Def(inst)
		e.code.LZCNTL(source, result)
		return
	}

	source := regs.UseScratch(inst.Arg(0))
	result := regs.Def(inst)

	// BSR leaves the destination undefined for a zero input. Substituting -1
	// for the bit index makes the final 31-index computation yield 32.
	e.code.BSRL(source, result)
	e.code.MOVLconst(0xFFFFFFFF, source)
	e.code.CMOVL(amd64.CondZ, source, result)
	e.code.NEGL(result)
	e.code.ADDLconst(31, result)
}
