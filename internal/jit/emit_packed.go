package jit

import (
	"github.com/dynarec/krait/internal/asm"
	"github.com/dynarec/krait/internal/ir"
)

func init() {
	registerEmit(ir.OpGetGEFromOp, (*Emitter).emitGetGEFromOp)
	registerEmit(ir.OpPackedAddU8, (*Emitter).emitPackedAddU8)
	registerEmit(ir.OpPackedAddS8, (*Emitter).emitPackedAddS8)
	registerEmit(ir.OpPackedAddU16, (*Emitter).emitPackedAddU16)
	registerEmit(ir.OpPackedAddS16, (*Emitter).emitPackedAddS16)
	registerEmit(ir.OpPackedSubU8, (*Emitter).emitPackedSubU8)
	registerEmit(ir.OpPackedSubS8, (*Emitter).emitPackedSubS8)
	registerEmit(ir.OpPackedSubU16, (*Emitter).emitPackedSubU16)
	registerEmit(ir.OpPackedSubS16, (*Emitter).emitPackedSubS16)
	registerEmit(ir.OpPackedHalvingAddU8, (*Emitter).emitPackedHalvingAddU8)
	registerEmit(ir.OpPackedHalvingAddS8, (*Emitter).emitPackedHalvingAddS8)
	registerEmit(ir.OpPackedHalvingAddU16, (*Emitter).emitPackedHalvingAddU16)
	registerEmit(ir.OpPackedHalvingAddS16, (*Emitter).emitPackedHalvingAddS16)
	registerEmit(ir.OpPackedHalvingSubU8, (*Emitter).emitPackedHalvingSubU8)
	registerEmit(ir.OpPackedHalvingSubS8, (*Emitter).emitPackedHalvingSubS8)
	registerEmit(ir.OpPackedHalvingSubU16, (*Emitter).emitPackedHalvingSubU16)
	registerEmit(ir.OpPackedHalvingSubS16, (*Emitter).emitPackedHalvingSubS16)
	registerEmit(ir.OpPackedHalvingAddSubU16, (*Emitter).emitPackedHalvingAddSubU16)
	registerEmit(ir.OpPackedHalvingAddSubS16, (*Emitter).emitPackedHalvingAddSubS16)
	registerEmit(ir.OpPackedHalvingSubAddU16, (*Emitter).emitPackedHalvingSubAddU16)
	registerEmit(ir.OpPackedHalvingSubAddS16, (*Emitter).emitPackedHalvingSubAddS16)
	registerEmit(ir.OpPackedSaturatedAddU8, (*Emitter).emitPackedSaturatedAddU8)
	registerEmit(ir.OpPackedSaturatedAddS8, (*Emitter).emitPackedSaturatedAddS8)
	registerEmit(ir.OpPackedSaturatedAddU16, (*Emitter).emitPackedSaturatedAddU16)
	registerEmit(ir.OpPackedSaturatedAddS16, (*Emitter).emitPackedSaturatedAddS16)
	registerEmit(ir.OpPackedSaturatedSubU8, (*Emitter).emitPackedSaturatedSubU8)
	registerEmit(ir.OpPackedSaturatedSubS8, (*Emitter).emitPackedSaturatedSubS8)
	registerEmit(ir.OpPackedSaturatedSubU16, (*Emitter).emitPackedSaturatedSubU16)
	registerEmit(ir.OpPackedSaturatedSubS16, (*Emitter).emitPackedSaturatedSubS16)
	registerEmit(ir.OpPackedAbsDiffSumS8, (*Emitter).emitPackedAbsDiffSumS8)
}

func (e *Emitter) emitGetGEFromOp(_ *RegAlloc, _ *ir.Block, _ *ir.Inst) {
	panic("BUG: GetGEFromOp must be erased by the flag-producing instruction")
}

// extractPackedByteMSBs packs the sign bit of each byte lane into the low
// four bits of value:
//
//	a-------b-------c-------d-------  becomes  ............................abcd
func (e *Emitter) extractPackedByteMSBs(regs *RegAlloc, value, tmp asm.Register) {
	if e.cfg.CpuFeatures.HasBMI2 {
		if tmp == asm.NilRegister {
			tmp = regs.Scratch()
		}
		e.code.MOVLconst(0x80808080, tmp)
		e.code.PEXTL(value, tmp, value)
		return
	}
	e.code.ANDLconst(0x80808080, value)
	e.code.IMULLconst(value, 0x00204081, value)
	e.code.SHRLconst(28, value)
}

// extractPackedWordMSBs packs the sign bit of each halfword lane, duplicated
// per lane, into the low four bits of value:
//
//	a---------------b---------------  becomes  ............................aabb
func (e *Emitter) extractPackedWordMSBs(value asm.Register) {
	e.code.ANDLconst(0x80008000, value)
	e.code.SHRLconst(1, value)
	e.code.IMULLconst(value, 0xC003, value)
	e.code.SHRLconst(28, value)
}

func (e *Emitter) emitPackedAddU8(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	regA := regs.UseScratch(inst.Arg(0))
	regB := regs.UseScratch(inst.Arg(1))
	result := regs.Def(inst)

	var regGE, tmp asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
		tmp = regs.Scratch()

		e.code.MOVL(regA, regGE)
		e.code.ANDL(regB, regGE)
	}

	// a+b splits into (a^b) for the carry-less sum and carries computed in
	// the low seven bits of each lane.
	e.code.MOVL(regA, result)
	e.code.XORL(regB, result)
	e.code.ANDLconst(0x80808080, result)
	e.code.ANDLconst(0x7F7F7F7F, regA)
	e.code.ANDLconst(0x7F7F7F7F, regB)
	e.code.ADDL(regB, regA)
	if geInst != nil {
		e.code.MOVL(result, tmp)
		e.code.ANDL(regA, tmp)
		e.code.ORL(tmp, regGE)
	}
	e.code.XORL(regA, result)
	if geInst != nil {
		e.extractPackedByteMSBs(regs, regGE, tmp)
	}
}

func (e *Emitter) emitPackedAddS8(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	var regGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
	}

	e.code.MOVDregToXmm(result, xmmA)
	e.code.MOVDregToXmm(arg, xmmB)
	if geInst != nil {
		saturated := regs.ScratchXmm()
		e.code.MOVAPS(xmmA, saturated)
		e.code.PADDSB(xmmB, saturated)
		e.code.MOVDxmmToReg(saturated, regGE)
	}
	e.code.PADDB(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)
	if geInst != nil {
		// GE is set when the true sum is non-negative, which is exactly when
		// the saturated sum did not go negative.
		e.code.NOTL(regGE)
		e.extractPackedByteMSBs(regs, regGE, asm.NilRegister)
	}
}

func (e *Emitter) emitPackedAddU16(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	regA := regs.UseScratch(inst.Arg(0))
	regB := regs.UseScratch(inst.Arg(1))
	result := regs.Def(inst)

	var regGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)

		e.code.MOVL(regA, regGE)
		e.code.ANDL(regB, regGE)
	}

	e.code.MOVL(regA, result)
	e.code.XORL(regB, result)
	e.code.ANDLconst(0x80008000, result)
	e.code.ANDLconst(0x7FFF7FFF, regA)
	e.code.ANDLconst(0x7FFF7FFF, regB)
	e.code.ADDL(regB, regA)
	if geInst != nil {
		tmp := regs.Scratch()
		e.code.MOVL(result, tmp)
		e.code.ANDL(regA, tmp)
		e.code.ORL(tmp, regGE)
	}
	e.code.XORL(regA, result)
	if geInst != nil {
		e.extractPackedWordMSBs(regGE)
	}
}

func (e *Emitter) emitPackedAddS16(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	var regGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
	}

	e.code.MOVDregToXmm(result, xmmA)
	e.code.MOVDregToXmm(arg, xmmB)
	if geInst != nil {
		saturated := regs.ScratchXmm()
		e.code.MOVAPS(xmmA, saturated)
		e.code.PADDSW(xmmB, saturated)
		e.code.MOVDxmmToReg(saturated, regGE)
	}
	e.code.PADDW(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)
	if geInst != nil {
		e.code.NOTL(regGE)
		e.extractPackedWordMSBs(regGE)
	}
}

func (e *Emitter) emitPackedSubU8(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	var regGE asm.Register
	var xmmGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
		xmmGE = regs.ScratchXmm()
	}

	e.code.MOVDregToXmm(result, xmmA)
	e.code.MOVDregToXmm(arg, xmmB)
	if geInst != nil {
		// GE per lane is a >= b, computed as max(a, b) == a.
		e.code.MOVAPS(xmmA, xmmGE)
		e.code.PMAXUB(xmmB, xmmGE)
		e.code.PCMPEQB(xmmA, xmmGE)
		e.code.MOVDxmmToReg(xmmGE, regGE)
	}
	e.code.PSUBB(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)

	if geInst != nil {
		e.extractPackedByteMSBs(regs, regGE, asm.NilRegister)
	}
}

func (e *Emitter) emitPackedSubS8(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	var regGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
	}

	e.code.MOVDregToXmm(arg, xmmB)
	e.code.MOVDregToXmm(result, xmmA)
	if geInst != nil {
		xmmGE := regs.ScratchXmm()
		e.code.MOVAPS(xmmA, xmmGE)
		e.code.PSUBSB(xmmB, xmmGE)
		e.code.MOVDxmmToReg(xmmGE, regGE)
	}
	e.code.PSUBB(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)
	if geInst != nil {
		e.code.NOTL(regGE)
		e.extractPackedByteMSBs(regs, regGE, asm.NilRegister)
	}
}

func (e *Emitter) emitPackedSubU16(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	var regGE asm.Register
	var xmmGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
		xmmGE = regs.ScratchXmm()
	}

	e.code.MOVDregToXmm(result, xmmA)
	e.code.MOVDregToXmm(arg, xmmB)
	if geInst != nil {
		e.code.MOVAPS(xmmA, xmmGE)
		e.code.PMAXUW(xmmB, xmmGE)
		e.code.PCMPEQW(xmmA, xmmGE)
		e.code.MOVDxmmToReg(xmmGE, regGE)
	}
	e.code.PSUBW(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)
	if geInst != nil {
		e.extractPackedWordMSBs(regGE)
	}
}

func (e *Emitter) emitPackedSubS16(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	geInst := erasePseudoOp(block, inst, ir.OpGetGEFromOp)

	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	var regGE asm.Register
	if geInst != nil {
		regGE = regs.Def(geInst)
	}

	e.code.MOVDregToXmm(arg, xmmB)
	e.code.MOVDregToXmm(result, xmmA)
	if geInst != nil {
		xmmGE := regs.ScratchXmm()
		e.code.MOVAPS(xmmA, xmmGE)
		e.code.PSUBSW(xmmB, xmmGE)
		e.code.MOVDxmmToReg(xmmGE, regGE)
	}
	e.code.PSUBW(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)
	if geInst != nil {
		e.code.NOTL(regGE)
		e.extractPackedWordMSBs(regGE)
	}
}

func (e *Emitter) emitPackedHalvingAddU8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if e.cfg.CpuFeatures.HasSSSE3 {
		result := regs.UseDef(inst.Arg(0), inst)
		arg := regs.Use(inst.Arg(1))

		xmmA := regs.ScratchXmm()
		xmmB := regs.ScratchXmm()
		xmmMask := regs.ScratchXmm()
		mask := regs.Scratch()

		e.code.MOVDregToXmm(result, xmmA)
		e.code.MOVDregToXmm(arg, xmmB)

		// Widen each byte to a halfword, add, halve, and repack.
		e.code.MOVQconst(0x8003800280018000, mask)
		e.code.MOVQregToXmm(mask, xmmMask)
		e.code.PSHUFB(xmmMask, xmmA)
		e.code.PSHUFB(xmmMask, xmmB)
		e.code.PADDW(xmmB, xmmA)
		e.code.PSRLWconst(1, xmmA)
		e.code.MOVLconst(0x06040200, mask)
		e.code.MOVQregToXmm(mask, xmmMask)
		e.code.PSHUFB(xmmMask, xmmA)

		e.code.MOVDxmmToReg(xmmA, result)
		return
	}

	result := regs.UseDef(inst.Arg(0), inst)
	regB := regs.Use(inst.Arg(1))
	xorAB := regs.Scratch()

	// x+y == ((x&y) << 1) + (x^y), so (x+y)/2 == (x&y) + ((x^y)>>1). The
	// per-lane LSB is masked off after the shift so it cannot leak into the
	// lane below.
	e.code.MOVL(result, xorAB)
	e.code.ANDL(regB, result)
	e.code.XORL(regB, xorAB)
	e.code.SHRLconst(1, xorAB)
	e.code.ANDLconst(0x7F7F7F7F, xorAB)
	e.code.ADDL(xorAB, result)
}

func (e *Emitter) emitPackedHalvingAddU16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDef(inst.Arg(0), inst)
	regB := regs.Use(inst.Arg(1))
	xorAB := regs.Scratch()

	e.code.MOVL(result, xorAB)
	e.code.ANDL(regB, result)
	e.code.XORL(regB, xorAB)
	e.code.SHRLconst(1, xorAB)
	e.code.ANDLconst(0x7FFF7FFF, xorAB)
	e.code.ADDL(xorAB, result)
}

func (e *Emitter) emitPackedHalvingAddSigned(regs *RegAlloc, inst *ir.Inst, mask uint32) {
	result := regs.UseDef(inst.Arg(0), inst)
	regB := regs.Use(inst.Arg(1))
	xorAB := regs.Scratch()
	carry := regs.Scratch()

	// As the unsigned variant, but the sign bit of (x^y)>>1 must propagate
	// upwards by one lane bit, which the final xor with carry performs.
	e.code.MOVL(result, xorAB)
	e.code.ANDL(regB, result)
	e.code.XORL(regB, xorAB)
	e.code.MOVL(xorAB, carry)
	e.code.ANDLconst(^mask, carry)
	e.code.SHRLconst(1, xorAB)
	e.code.ANDLconst(mask, xorAB)
	e.code.ADDL(xorAB, result)
	e.code.XORL(carry, result)
}

func (e *Emitter) emitPackedHalvingAddS8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingAddSigned(regs, inst, 0x7F7F7F7F)
}

func (e *Emitter) emitPackedHalvingAddS16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingAddSigned(regs, inst, 0x7FFF7FFF)
}

func (e *Emitter) emitPackedHalvingSubUnsigned(regs *RegAlloc, inst *ir.Inst, signMask uint32) {
	minuend := regs.UseDef(inst.Arg(0), inst)
	subtrahend := regs.UseScratch(inst.Arg(1))

	// x-y == (x^y) - (((x^y)&y) << 1), so (x-y)/2 == ((x^y)>>1) - ((x^y)&y).
	e.code.XORL(subtrahend, minuend)
	e.code.ANDL(minuend, subtrahend)
	e.code.SHRLconst(1, minuend)

	// Partitioned subtraction: seed each lane's spare top bit as a borrow
	// source, then flip it back to recover the per-lane result.
	e.code.ORLconst(signMask, minuend)
	e.code.SUBL(subtrahend, minuend)
	e.code.XORLconst(signMask, minuend)
}

func (e *Emitter) emitPackedHalvingSubU8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingSubUnsigned(regs, inst, 0x80808080)
}

func (e *Emitter) emitPackedHalvingSubU16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingSubUnsigned(regs, inst, 0x80008000)
}

func (e *Emitter) emitPackedHalvingSubSigned(regs *RegAlloc, inst *ir.Inst, signMask uint32) {
	minuend := regs.UseDef(inst.Arg(0), inst)
	subtrahend := regs.UseScratch(inst.Arg(1))
	carry := regs.Scratch()

	e.code.XORL(subtrahend, minuend)
	e.code.ANDL(minuend, subtrahend)
	e.code.MOVL(minuend, carry)
	e.code.ANDLconst(signMask, carry)
	e.code.SHRLconst(1, minuend)

	// As the unsigned variant, with a final xor to sign extend each lane's
	// result into its top bit.
	e.code.ORLconst(signMask, minuend)
	e.code.SUBL(subtrahend, minuend)
	e.code.XORLconst(signMask, minuend)
	e.code.XORL(carry, minuend)
}

func (e *Emitter) emitPackedHalvingSubS8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingSubSigned(regs, inst, 0x80808080)
}

func (e *Emitter) emitPackedHalvingSubS16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingSubSigned(regs, inst, 0x80008000)
}

// emitPackedHalvingExchange16 handles the halving add-sub exchange family.
// hiIsSum selects whether the high halfword receives the sum or the
// difference of the crossed operands.
func (e *Emitter) emitPackedHalvingExchange16(regs *RegAlloc, inst *ir.Inst, signed, hiIsSum bool) {
	aHi := regs.UseDef(inst.Arg(0), inst)
	bHi := regs.UseScratch(inst.Arg(1))
	aLo := regs.Scratch()
	bLo := regs.Scratch()

	if signed {
		e.code.MOVWLSX(aHi, aLo)
		e.code.MOVWLSX(bHi, bLo)
		e.code.SARLconst(16, aHi)
		e.code.SARLconst(16, bHi)
	} else {
		e.code.MOVWLZX(aHi, aLo)
		e.code.MOVWLZX(bHi, bLo)
		e.code.SHRLconst(16, aHi)
		e.code.SHRLconst(16, bHi)
	}

	if hiIsSum {
		// aLo<31:16> := diff<16:1>, aHi<15:0> := sum<16:1>.
		e.code.SUBL(bHi, aLo)
		e.code.SHLLconst(15, aLo)
		e.code.ADDL(bLo, aHi)
		e.code.SHRLconst(1, aHi)
	} else {
		// aLo<31:16> := sum<16:1>, aHi<15:0> := diff<16:1>.
		e.code.ADDL(bHi, aLo)
		e.code.SHLLconst(15, aLo)
		e.code.SUBL(bLo, aHi)
		e.code.SHRLconst(1, aHi)
	}

	e.code.SHLDLconst(aLo, 16, aHi)
}

func (e *Emitter) emitPackedHalvingAddSubU16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingExchange16(regs, inst, false, true)
}

func (e *Emitter) emitPackedHalvingAddSubS16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingExchange16(regs, inst, true, true)
}

func (e *Emitter) emitPackedHalvingSubAddU16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingExchange16(regs, inst, false, false)
}

func (e *Emitter) emitPackedHalvingSubAddS16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedHalvingExchange16(regs, inst, true, false)
}

// emitPackedXmmOp lifts both operands into XMM registers, applies one packed
// instruction, and moves the low doubleword back.
func (e *Emitter) emitPackedXmmOp(regs *RegAlloc, inst *ir.Inst, op func(src, dst asm.Register)) {
	result := regs.UseDef(inst.Arg(0), inst)
	arg := regs.Use(inst.Arg(1))

	xmmA := regs.ScratchXmm()
	xmmB := regs.ScratchXmm()

	e.code.MOVDregToXmm(result, xmmA)
	e.code.MOVDregToXmm(arg, xmmB)
	op(xmmB, xmmA)
	e.code.MOVDxmmToReg(xmmA, result)
}

func (e *Emitter) emitPackedSaturatedAddU8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PADDUSB)
}

func (e *Emitter) emitPackedSaturatedAddS8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PADDSB)
}

func (e *Emitter) emitPackedSaturatedSubU8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PSUBUSB)
}

func (e *Emitter) emitPackedSaturatedSubS8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PSUBSB)
}

func (e *Emitter) emitPackedSaturatedAddU16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PADDUSW)
}

func (e *Emitter) emitPackedSaturatedAddS16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PADDSW)
}

func (e *Emitter) emitPackedSaturatedSubU16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PSUBUSW)
}

func (e *Emitter) emitPackedSaturatedSubS16(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PSUBSW)
}

func (e *Emitter) emitPackedAbsDiffSumS8(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitPackedXmmOp(regs, inst, e.code.PSADBW)
}
