package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm"
	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

func init() {
	registerEmit(ir.OpFPAbs32, (*Emitter).emitFPAbs32)
	registerEmit(ir.OpFPAbs64, (*Emitter).emitFPAbs64)
	registerEmit(ir.OpFPNeg32, (*Emitter).emitFPNeg32)
	registerEmit(ir.OpFPNeg64, (*Emitter).emitFPNeg64)
	registerEmit(ir.OpFPAdd32, (*Emitter).emitFPAdd32)
	registerEmit(ir.OpFPAdd64, (*Emitter).emitFPAdd64)
	registerEmit(ir.OpFPSub32, (*Emitter).emitFPSub32)
	registerEmit(ir.OpFPSub64, (*Emitter).emitFPSub64)
	registerEmit(ir.OpFPMul32, (*Emitter).emitFPMul32)
	registerEmit(ir.OpFPMul64, (*Emitter).emitFPMul64)
	registerEmit(ir.OpFPDiv32, (*Emitter).emitFPDiv32)
	registerEmit(ir.OpFPDiv64, (*Emitter).emitFPDiv64)
	registerEmit(ir.OpFPSqrt32, (*Emitter).emitFPSqrt32)
	registerEmit(ir.OpFPSqrt64, (*Emitter).emitFPSqrt64)
	registerEmit(ir.OpFPCompare32, (*Emitter).emitFPCompare32)
	registerEmit(ir.OpFPCompare64, (*Emitter).emitFPCompare64)
	registerEmit(ir.OpFPSingleToDouble, (*Emitter).emitFPSingleToDouble)
	registerEmit(ir.OpFPDoubleToSingle, (*Emitter).emitFPDoubleToSingle)
	registerEmit(ir.OpFPSingleToS32, (*Emitter).emitFPSingleToS32)
	registerEmit(ir.OpFPSingleToU32, (*Emitter).emitFPSingleToU32)
	registerEmit(ir.OpFPDoubleToS32, (*Emitter).emitFPDoubleToS32)
	registerEmit(ir.OpFPDoubleToU32, (*Emitter).emitFPDoubleToU32)
	registerEmit(ir.OpFPS32ToSingle, (*Emitter).emitFPS32ToSingle)
	registerEmit(ir.OpFPU32ToSingle, (*Emitter).emitFPU32ToSingle)
	registerEmit(ir.OpFPS32ToDouble, (*Emitter).emitFPS32ToDouble)
	registerEmit(ir.OpFPU32ToDouble, (*Emitter).emitFPU32ToDouble)
}

// Bit patterns of the floating point constants the emitted code clamps and
// masks with. The code cache has no data pool, so they are materialized
// through a general register at each use.
const (
	f32NonSignMask  uint32 = 0x7FFFFFFF
	f32NegativeZero uint32 = 0x80000000
	f32QuietNaN     uint32 = 0x7FC00000

	f64NonSignMask  uint64 = 0x7FFFFFFFFFFFFFFF
	f64NegativeZero uint64 = 0x8000000000000000
	f64QuietNaN     uint64 = 0x7FF8000000000000

	// 2147483647.0 and -2147483648.0 as doubles. Every int32 is exactly
	// representable in double precision, which is what makes the
	// convert-through-double clamping below exact.
	f64MaxS32 uint64 = 0x41DFFFFFFFC00000
	f64MinS32 uint64 = 0xC1E0000000000000

	// Positive denormal range upper bounds, biased by the subtract-one
	// trick: value-1 <= bound iff value is a nonzero denormal.
	f32PenultDenormal uint32 = 0x007FFFFE
	f64PenultDenormal uint64 = 0x000FFFFFFFFFFFFE

	rmodeTowardsZero uint32 = 3
)

func (e *Emitter) loadFPConst32(bits uint32, gpr, xmm asm.Register) {
	e.code.MOVLconst(bits, gpr)
	e.code.MOVDregToXmm(gpr, xmm)
}

func (e *Emitter) loadFPConst64(bits uint64, gpr, xmm asm.Register) {
	e.code.MOVQconst(bits, gpr)
	e.code.MOVQregToXmm(gpr, xmm)
}

// denormalsAreZero32 squashes a denormal single in value to zero and records
// the input-denormal exception. SSE's DAZ bit would do the squashing but not
// the reporting, so the check is emitted explicitly.
func (e *Emitter) denormalsAreZero32(value, scratch asm.Register) {
	end := e.code.NewLabel()
	e.code.MOVDxmmToReg(value, scratch)
	e.code.ANDLconst(f32NonSignMask, scratch)
	e.code.SUBLconst(1, scratch)
	e.code.CMPLconst(f32PenultDenormal, scratch)
	e.code.Jcc(amd64.CondA, end)
	e.code.PXOR(value, value)
	e.code.MOVLstoreconst(1<<7, amd64.M(StateReg, OffsetFpscrIDC))
	e.code.Bind(end)
}

func (e *Emitter) denormalsAreZero64(regs *RegAlloc, value, scratch asm.Register) {
	tmp := regs.Scratch()
	end := e.code.NewLabel()
	e.code.MOVQxmmToReg(value, scratch)
	e.code.MOVQconst(f64NonSignMask, tmp)
	e.code.ANDQ(tmp, scratch)
	e.code.SUBQconst(1, scratch)
	e.code.MOVQconst(f64PenultDenormal, tmp)
	e.code.CMPQ(tmp, scratch)
	e.code.Jcc(amd64.CondA, end)
	e.code.PXOR(value, value)
	e.code.MOVLstoreconst(1<<7, amd64.M(StateReg, OffsetFpscrIDC))
	e.code.Bind(end)
}

// flushToZero32 squashes a denormal result to zero and records the underflow
// exception.
func (e *Emitter) flushToZero32(value, scratch asm.Register) {
	end := e.code.NewLabel()
	e.code.MOVDxmmToReg(value, scratch)
	e.code.ANDLconst(f32NonSignMask, scratch)
	e.code.SUBLconst(1, scratch)
	e.code.CMPLconst(f32PenultDenormal, scratch)
	e.code.Jcc(amd64.CondA, end)
	e.code.PXOR(value, value)
	e.code.MOVLstoreconst(1<<3, amd64.M(StateReg, OffsetFpscrUFC))
	e.code.Bind(end)
}

func (e *Emitter) flushToZero64(regs *RegAlloc, value, scratch asm.Register) {
	tmp := regs.Scratch()
	end := e.code.NewLabel()
	e.code.MOVQxmmToReg(value, scratch)
	e.code.MOVQconst(f64NonSignMask, tmp)
	e.code.ANDQ(tmp, scratch)
	e.code.SUBQconst(1, scratch)
	e.code.MOVQconst(f64PenultDenormal, tmp)
	e.code.CMPQ(tmp, scratch)
	e.code.Jcc(amd64.CondA, end)
	e.code.PXOR(value, value)
	e.code.MOVLstoreconst(1<<3, amd64.M(StateReg, OffsetFpscrUFC))
	e.code.Bind(end)
}

// defaultNaN32 replaces any NaN in value with the canonical quiet NaN.
func (e *Emitter) defaultNaN32(value, scratch asm.Register) {
	end := e.code.NewLabel()
	e.code.UCOMISS(value, value)
	e.code.Jcc(amd64.CondNP, end)
	e.loadFPConst32(f32QuietNaN, scratch, value)
	e.code.Bind(end)
}

func (e *Emitter) defaultNaN64(value, scratch asm.Register) {
	end := e.code.NewLabel()
	e.code.UCOMISD(value, value)
	e.code.Jcc(amd64.CondNP, end)
	e.loadFPConst64(f64QuietNaN, scratch, value)
	e.code.Bind(end)
}

// zeroIfNaN64 replaces a NaN in value with +0.0 using an ordered-compare
// mask.
func (e *Emitter) zeroIfNaN64(value, xmmScratch asm.Register) {
	e.code.PXOR(xmmScratch, xmmScratch)
	e.code.CMPSD(7, value, xmmScratch) // cmpordsd: all-ones when value is not a NaN
	e.code.PAND(xmmScratch, value)
}

func (e *Emitter) fpThreeOp32(regs *RegAlloc, block *ir.Block, inst *ir.Inst, op func(src, dst asm.Register)) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	operand := regs.UseXmm(inst.Arg(1))
	scratch := regs.Scratch()

	ftz := block.Location().FpscrFTZ()
	if ftz {
		e.denormalsAreZero32(result, scratch)
		e.denormalsAreZero32(operand, scratch)
	}
	op(operand, result)
	if ftz {
		e.flushToZero32(result, scratch)
	}
	if block.Location().FpscrDN() {
		e.defaultNaN32(result, scratch)
	}
}

func (e *Emitter) fpThreeOp64(regs *RegAlloc, block *ir.Block, inst *ir.Inst, op func(src, dst asm.Register)) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	operand := regs.UseXmm(inst.Arg(1))
	scratch := regs.Scratch()

	ftz := block.Location().FpscrFTZ()
	if ftz {
		e.denormalsAreZero64(regs, result, scratch)
		e.denormalsAreZero64(regs, operand, scratch)
	}
	op(operand, result)
	if ftz {
		e.flushToZero64(regs, result, scratch)
	}
	if block.Location().FpscrDN() {
		e.defaultNaN64(result, scratch)
	}
}

func (e *Emitter) fpTwoOp32(regs *RegAlloc, block *ir.Block, inst *ir.Inst, op func(src, dst asm.Register)) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	scratch := regs.Scratch()

	ftz := block.Location().FpscrFTZ()
	if ftz {
		e.denormalsAreZero32(result, scratch)
	}
	op(result, result)
	if ftz {
		e.flushToZero32(result, scratch)
	}
	if block.Location().FpscrDN() {
		e.defaultNaN32(result, scratch)
	}
}

func (e *Emitter) fpTwoOp64(regs *RegAlloc, block *ir.Block, inst *ir.Inst, op func(src, dst asm.Register)) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	scratch := regs.Scratch()

	ftz := block.Location().FpscrFTZ()
	if ftz {
		e.denormalsAreZero64(regs, result, scratch)
	}
	op(result, result)
	if ftz {
		e.flushToZero64(regs, result, scratch)
	}
	if block.Location().FpscrDN() {
		e.defaultNaN64(result, scratch)
	}
}

func (e *Emitter) emitFPAbs32(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	mask := regs.ScratchXmm()
	e.loadFPConst32(f32NonSignMask, regs.Scratch(), mask)
	e.code.PAND(mask, result)
}

func (e *Emitter) emitFPAbs64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	mask := regs.ScratchXmm()
	e.loadFPConst64(f64NonSignMask, regs.Scratch(), mask)
	e.code.PAND(mask, result)
}

func (e *Emitter) emitFPNeg32(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	mask := regs.ScratchXmm()
	e.loadFPConst32(f32NegativeZero, regs.Scratch(), mask)
	e.code.PXOR(mask, result)
}

func (e *Emitter) emitFPNeg64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	mask := regs.ScratchXmm()
	e.loadFPConst64(f64NegativeZero, regs.Scratch(), mask)
	e.code.PXOR(mask, result)
}

func (e *Emitter) emitFPAdd32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp32(regs, block, inst, e.code.ADDSS)
}

func (e *Emitter) emitFPAdd64(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp64(regs, block, inst, e.code.ADDSD)
}

func (e *Emitter) emitFPSub32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp32(regs, block, inst, e.code.SUBSS)
}

func (e *Emitter) emitFPSub64(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp64(regs, block, inst, e.code.SUBSD)
}

func (e *Emitter) emitFPMul32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp32(regs, block, inst, e.code.MULSS)
}

func (e *Emitter) emitFPMul64(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp64(regs, block, inst, e.code.MULSD)
}

func (e *Emitter) emitFPDiv32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp32(regs, block, inst, e.code.DIVSS)
}

func (e *Emitter) emitFPDiv64(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpThreeOp64(regs, block, inst, e.code.DIVSD)
}

func (e *Emitter) emitFPSqrt32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpTwoOp32(regs, block, inst, e.code.SQRTSS)
}

func (e *Emitter) emitFPSqrt64(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.fpTwoOp64(regs, block, inst, e.code.SQRTSD)
}

// setFpscrNzcvFromFlags stores the guest NZCV encoding of a comiss/comisd
// result. Host flags map as: greater leaves everything clear, less sets CF,
// equal sets ZF, unordered sets ZF, PF and CF. Unordered therefore satisfies
// every CMOV below, so the PF one must come last.
func (e *Emitter) setFpscrNzcvFromFlags(regs *RegAlloc) {
	nzcv := regs.Scratch()
	tmp := regs.Scratch()

	e.code.MOVLconst(0x20000000, nzcv)
	e.code.MOVLconst(0x80000000, tmp)
	e.code.CMOVL(amd64.CondB, tmp, nzcv)
	e.code.MOVLconst(0x60000000, tmp)
	e.code.CMOVL(amd64.CondZ, tmp, nzcv)
	e.code.MOVLconst(0x30000000, tmp)
	e.code.CMOVL(amd64.CondP, tmp, nzcv)
	e.code.MOVLstore(nzcv, amd64.M(StateReg, OffsetFpscrNZCV))
}

func (e *Emitter) emitFPCompare32(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	a := regs.UseXmm(inst.Arg(0))
	b := regs.UseXmm(inst.Arg(1))
	if quiet := inst.Arg(2).U1(); quiet {
		e.code.UCOMISS(b, a)
	} else {
		e.code.COMISS(b, a)
	}
	e.setFpscrNzcvFromFlags(regs)
}

func (e *Emitter) emitFPCompare64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	a := regs.UseXmm(inst.Arg(0))
	b := regs.UseXmm(inst.Arg(1))
	if quiet := inst.Arg(2).U1(); quiet {
		e.code.UCOMISD(b, a)
	} else {
		e.code.COMISD(b, a)
	}
	e.setFpscrNzcvFromFlags(regs)
}

func (e *Emitter) emitFPSingleToDouble(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	scratch := regs.Scratch()

	ftz := block.Location().FpscrFTZ()
	if ftz {
		e.denormalsAreZero32(result, scratch)
	}
	e.code.CVTSS2SD(result, result)
	if ftz {
		e.flushToZero64(regs, result, scratch)
	}
	if block.Location().FpscrDN() {
		e.defaultNaN64(result, scratch)
	}
}

func (e *Emitter) emitFPDoubleToSingle(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	result := regs.UseDefXmm(inst.Arg(0), inst)
	scratch := regs.Scratch()

	ftz := block.Location().FpscrFTZ()
	if ftz {
		e.denormalsAreZero64(regs, result, scratch)
	}
	e.code.CVTSD2SS(result, result)
	if ftz {
		e.flushToZero32(result, scratch)
	}
	if block.Location().FpscrDN() {
		e.defaultNaN32(result, scratch)
	}
}

// emitFPToS32 converts from to a signed 32-bit integer lane. The guest
// saturates out-of-range inputs where cvtsd2si returns a sentinel, so the
// value is clamped through double precision, which represents every int32
// exactly. The first conversion only exists to raise the host exception
// flags on the unclamped input.
func (e *Emitter) emitFPToS32(regs *RegAlloc, block *ir.Block, inst *ir.Inst, single bool) {
	roundTowardsZero := inst.Arg(1).U1()

	from := regs.UseScratchXmm(inst.Arg(0))
	to := regs.DefXmm(inst)
	scratch := regs.Scratch()
	xmmScratch := regs.ScratchXmm()

	if block.Location().FpscrFTZ() {
		if single {
			e.denormalsAreZero32(from, scratch)
		} else {
			e.denormalsAreZero64(regs, from, scratch)
		}
	}
	if single {
		e.code.CVTSS2SD(from, from)
	}
	if roundTowardsZero {
		e.code.CVTTSD2SI(from, scratch)
	} else {
		e.code.CVTSD2SI(from, scratch)
	}

	e.zeroIfNaN64(from, xmmScratch)
	bound := regs.ScratchXmm()
	e.loadFPConst64(f64MaxS32, scratch, bound)
	e.code.MINSD(bound, from)
	e.loadFPConst64(f64MinS32, scratch, bound)
	e.code.MAXSD(bound, from)

	if roundTowardsZero {
		e.code.CVTTSD2SI(from, scratch)
	} else {
		e.code.CVTSD2SI(from, scratch)
	}
	e.code.MOVDregToXmm(scratch, to)
}

func (e *Emitter) emitFPSingleToS32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.emitFPToS32(regs, block, inst, true)
}

func (e *Emitter) emitFPDoubleToS32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.emitFPToS32(regs, block, inst, false)
}

// emitFPToU32 converts from to an unsigned 32-bit integer lane. SSE2 has no
// unsigned scalar conversion, so the input is shifted into signed range and
// the result shifted back. When rounding to nearest the shift is applied
// unconditionally, which keeps the rounding point intact; otherwise it is
// applied only to inputs above INT32_MAX, under a mask.
func (e *Emitter) emitFPToU32(regs *RegAlloc, block *ir.Block, inst *ir.Inst, single bool) {
	roundTowardsZero := inst.Arg(1).U1()

	from := regs.UseScratchXmm(inst.Arg(0))
	to := regs.DefXmm(inst)
	scratch := regs.Scratch()
	xmmScratch := regs.ScratchXmm()

	roundToNearest := block.Location().FpscrRMode() != rmodeTowardsZero && !roundTowardsZero
	if roundToNearest {
		if block.Location().FpscrFTZ() {
			if single {
				e.denormalsAreZero32(from, scratch)
			} else {
				e.denormalsAreZero64(regs, from, scratch)
			}
		}
		if single {
			e.code.CVTSS2SD(from, from)
		}
		e.zeroIfNaN64(from, xmmScratch)

		bound := regs.ScratchXmm()
		e.loadFPConst64(f64MinS32, scratch, bound)
		e.code.ADDSD(bound, from)
		e.code.CVTSD2SI(from, scratch)
		e.loadFPConst64(f64MaxS32, scratch, bound)
		e.code.MINSD(bound, from)
		e.loadFPConst64(f64MinS32, scratch, bound)
		e.code.MAXSD(bound, from)
		e.code.CVTSD2SI(from, scratch)
		e.code.ADDLconst(0x80000000, scratch)
		e.code.MOVDregToXmm(scratch, to)
	} else {
		xmmMask := regs.ScratchXmm()
		gprMask := regs.Scratch()

		if block.Location().FpscrFTZ() {
			if single {
				e.denormalsAreZero32(from, scratch)
			} else {
				e.denormalsAreZero64(regs, from, scratch)
			}
		}
		if single {
			e.code.CVTSS2SD(from, from)
		}
		e.zeroIfNaN64(from, xmmScratch)

		// All-ones masks exactly when from > INT32_MAX.
		e.loadFPConst64(f64MaxS32, gprMask, xmmMask)
		e.code.CMPSD(1, from, xmmMask) // cmpltsd
		e.code.MOVDxmmToReg(xmmMask, gprMask)
		bound := regs.ScratchXmm()
		e.loadFPConst64(f64MinS32, scratch, bound)
		e.code.PAND(bound, xmmMask)
		e.code.ANDLconst(0x80000000, gprMask)

		e.code.ADDSD(xmmMask, from)
		e.code.CVTTSD2SI(from, scratch)
		e.loadFPConst64(f64MaxS32, scratch, bound)
		e.code.MINSD(bound, from)
		e.code.PXOR(xmmScratch, xmmScratch)
		e.code.MAXSD(xmmScratch, from)
		e.code.CVTTSD2SI(from, scratch)
		e.code.ADDL(gprMask, scratch)
		e.code.MOVDregToXmm(scratch, to)
	}
}

func (e *Emitter) emitFPSingleToU32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.emitFPToU32(regs, block, inst, true)
}

func (e *Emitter) emitFPDoubleToU32(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	e.emitFPToU32(regs, block, inst, false)
}

func (e *Emitter) emitFPS32ToSingle(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if inst.Arg(1).U1() {
		panic(fmt.Errorf("BUG: rounding mode override unimplemented"))
	}
	from := regs.UseXmm(inst.Arg(0))
	to := regs.DefXmm(inst)
	scratch := regs.Scratch()

	e.code.MOVDxmmToReg(from, scratch)
	e.code.CVTSI2SS(scratch, to)
}

func (e *Emitter) emitFPU32ToSingle(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if inst.Arg(1).U1() {
		panic(fmt.Errorf("BUG: rounding mode override unimplemented"))
	}
	from := regs.UseXmm(inst.Arg(0))
	to := regs.DefXmm(inst)
	scratch := regs.Scratch()

	// The 64-bit form keeps the input unsigned.
	e.code.MOVQxmmToReg(from, scratch)
	e.code.CVTSQ2SS(scratch, to)
}

func (e *Emitter) emitFPS32ToDouble(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if inst.Arg(1).U1() {
		panic(fmt.Errorf("BUG: rounding mode override unimplemented"))
	}
	from := regs.UseXmm(inst.Arg(0))
	to := regs.DefXmm(inst)
	scratch := regs.Scratch()

	e.code.MOVDxmmToReg(from, scratch)
	e.code.CVTSI2SD(scratch, to)
}

func (e *Emitter) emitFPU32ToDouble(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if inst.Arg(1).U1() {
		panic(fmt.Errorf("BUG: rounding mode override unimplemented"))
	}
	from := regs.UseXmm(inst.Arg(0))
	to := regs.DefXmm(inst)
	scratch := regs.Scratch()

	// The 64-bit form keeps the input unsigned.
	e.code.MOVQxmmToReg(from, scratch)
	e.code.CVTSQ2SD(scratch, to)
}
