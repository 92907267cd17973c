package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

// CPSR bit assignments.
const (
	cpsrNShift  = 31
	cpsrZShift  = 30
	cpsrCShift  = 29
	cpsrVShift  = 28
	cpsrQShift  = 27
	cpsrGEShift = 16
	cpsrTBit    = uint32(1 << 5)
	cpsrEBit    = uint32(1 << 9)
)

// BlockDescriptor locates a compiled block inside the code cache.
type BlockDescriptor struct {
	EntryPtr uintptr
	Size     int
}

// Emitter turns IR blocks into x86-64 and maintains the descriptor and
// patch bookkeeping that keeps compiled blocks linked to each other.
type Emitter struct {
	code *BlockOfCode
	cfg  *Config

	blockDescriptors map[uint64]BlockDescriptor
	patchInformation map[uint64]*patchInformation
}

func NewEmitter(code *BlockOfCode, cfg *Config) *Emitter {
	return &Emitter{
		code:             code,
		cfg:              cfg,
		blockDescriptors: make(map[uint64]BlockDescriptor),
		patchInformation: make(map[uint64]*patchInformation),
	}
}

// GetBasicBlock returns the compiled block for the location, if any.
func (e *Emitter) GetBasicBlock(loc ir.LocationDescriptor) (BlockDescriptor, bool) {
	bd, ok := e.blockDescriptors[loc.Hash()]
	return bd, ok
}

// ClearCache forgets every compiled block and patch site. The caller must
// also rewind the code cache and poison the guest RSB.
func (e *Emitter) ClearCache() {
	e.blockDescriptors = make(map[uint64]BlockDescriptor)
	e.patchInformation = make(map[uint64]*patchInformation)
}

// Emit compiles one IR block, links it into every pending patch site
// targeting its location, and registers its descriptor.
func (e *Emitter) Emit(block *ir.Block) BlockDescriptor {
	e.code.Align(16)
	start := e.code.Cursor()

	e.emitCondPrelude(block)

	regs := NewRegAlloc(e.code.Assembler)
	for _, inst := range block.Instructions() {
		if inst.Invalid() {
			continue
		}
		e.emitInst(regs, block, inst)
		regs.EndOfAllocScope()
	}
	regs.AssertNoMoreUses()

	e.emitAddCycles(block.CycleCount)
	e.emitTerminal(block.Terminal, block.Location())
	e.code.INT3()

	desc := BlockDescriptor{
		EntryPtr: e.code.Seg().Addr() + uintptr(start),
		Size:     e.code.Cursor() - start,
	}
	loc := block.Location()
	e.patch(loc, desc.EntryPtr)
	e.blockDescriptors[loc.Hash()] = desc
	return desc
}

func (e *Emitter) emitInst(regs *RegAlloc, block *ir.Block, inst *ir.Inst) {
	fn := emitTable[inst.Op()]
	if fn == nil {
		panic(fmt.Errorf("BUG: no emit rule for %s", inst.Op()))
	}
	fn(e, regs, block, inst)
}

type emitFn func(e *Emitter, regs *RegAlloc, block *ir.Block, inst *ir.Inst)

var emitTable [ir.NumOpcodes]emitFn

func registerEmit(op ir.Opcode, fn emitFn) {
	if emitTable[op] != nil {
		panic(fmt.Errorf("BUG: duplicate emit rule for %s", op))
	}
	emitTable[op] = fn
}

func init() {
	registerEmit(ir.OpGetRegister, (*Emitter).emitGetRegister)
	registerEmit(ir.OpSetRegister, (*Emitter).emitSetRegister)
	registerEmit(ir.OpGetExtendedRegister32, (*Emitter).emitGetExtendedRegister32)
	registerEmit(ir.OpSetExtendedRegister32, (*Emitter).emitSetExtendedRegister32)
	registerEmit(ir.OpGetExtendedRegister64, (*Emitter).emitGetExtendedRegister64)
	registerEmit(ir.OpSetExtendedRegister64, (*Emitter).emitSetExtendedRegister64)
	registerEmit(ir.OpGetCpsr, (*Emitter).emitGetCpsr)
	registerEmit(ir.OpSetCpsr, (*Emitter).emitSetCpsr)
	registerEmit(ir.OpBXWritePC, (*Emitter).emitBXWritePC)
	registerEmit(ir.OpGetNFlag, (*Emitter).emitGetNFlag)
	registerEmit(ir.OpSetNFlag, (*Emitter).emitSetNFlag)
	registerEmit(ir.OpGetZFlag, (*Emitter).emitGetZFlag)
	registerEmit(ir.OpSetZFlag, (*Emitter).emitSetZFlag)
	registerEmit(ir.OpGetCFlag, (*Emitter).emitGetCFlag)
	registerEmit(ir.OpSetCFlag, (*Emitter).emitSetCFlag)
	registerEmit(ir.OpGetVFlag, (*Emitter).emitGetVFlag)
	registerEmit(ir.OpSetVFlag, (*Emitter).emitSetVFlag)
	registerEmit(ir.OpOrQFlag, (*Emitter).emitOrQFlag)
	registerEmit(ir.OpGetGEFlags, (*Emitter).emitGetGEFlags)
	registerEmit(ir.OpSetGEFlags, (*Emitter).emitSetGEFlags)
	registerEmit(ir.OpGetFpscrNZCV, (*Emitter).emitGetFpscrNZCV)
	registerEmit(ir.OpSetFpscrNZCV, (*Emitter).emitSetFpscrNZCV)
	registerEmit(ir.OpPushRSB, (*Emitter).emitPushRSB)
	registerEmit(ir.OpCallSupervisor, (*Emitter).emitCallSupervisor)
	registerEmit(ir.OpBreakpoint, (*Emitter).emitBreakpoint)
}

// Guest state operands.

func memReg(r ir.Reg) amd64.Mem { return amd64.M(StateReg, OffsetReg(r)) }

func memCpsr() amd64.Mem { return amd64.M(StateReg, OffsetCpsr) }

func memExtReg(r ir.ExtReg) amd64.Mem {
	if r.IsSingle() {
		return amd64.M(StateReg, OffsetExtReg(r.Index()))
	}
	return amd64.M(StateReg, OffsetExtReg(2*r.Index()))
}

func (e *Emitter) emitAddCycles(cycles int) {
	if cycles < 0 || int64(cycles) > 0x7FFFFFFF {
		panic(fmt.Errorf("BUG: cycle count %d out of range", cycles))
	}
	e.code.SUBQconstFromMem(int32(cycles), amd64.M(StateReg, OffsetCyclesRemaining))
}

// State access.

func (e *Emitter) emitGetRegister(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	reg := inst.Arg(0).Reg()
	result := regs.Def(inst)
	e.code.MOVLload(memReg(reg), result)
}

func (e *Emitter) emitSetRegister(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	reg := inst.Arg(0).Reg()
	arg := inst.Arg(1)
	if arg.IsImmediate() {
		e.code.MOVLstoreconst(arg.U32(), memReg(reg))
	} else {
		e.code.MOVLstore(regs.Use(arg), memReg(reg))
	}
}

func (e *Emitter) emitGetExtendedRegister32(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	reg := inst.Arg(0).ExtReg()
	if !reg.IsSingle() {
		panic(fmt.Errorf("BUG: %s is not a single-precision register", reg))
	}
	result := regs.DefXmm(inst)
	e.code.MOVSSload(memExtReg(reg), result)
}

func (e *Emitter) emitSetExtendedRegister32(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	reg := inst.Arg(0).ExtReg()
	if !reg.IsSingle() {
		panic(fmt.Errorf("BUG: %s is not a single-precision register", reg))
	}
	source := regs.UseXmm(inst.Arg(1))
	e.code.MOVSSstore(source, memExtReg(reg))
}

func (e *Emitter) emitGetExtendedRegister64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	reg := inst.Arg(0).ExtReg()
	if reg.IsSingle() {
		panic(fmt.Errorf("BUG: %s is not a double-precision register", reg))
	}
	result := regs.DefXmm(inst)
	e.code.MOVSDload(memExtReg(reg), result)
}

func (e *Emitter) emitSetExtendedRegister64(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	reg := inst.Arg(0).ExtReg()
	if reg.IsSingle() {
		panic(fmt.Errorf("BUG: %s is not a double-precision register", reg))
	}
	source := regs.UseXmm(inst.Arg(1))
	e.code.MOVSDstore(source, memExtReg(reg))
}

func (e *Emitter) emitGetCpsr(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.Def(inst)
	e.code.MOVLload(memCpsr(), result)
}

func (e *Emitter) emitSetCpsr(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	arg := regs.Use(inst.Arg(0))
	e.code.MOVLstore(arg, memCpsr())
}

// Flag bits.

func (e *Emitter) emitGetFlag(regs *RegAlloc, inst *ir.Inst, shift byte) {
	result := regs.Def(inst)
	e.code.MOVLload(memCpsr(), result)
	e.code.SHRLconst(shift, result)
	if shift != 31 {
		e.code.ANDLconst(1, result)
	}
}

func (e *Emitter) emitSetFlag(regs *RegAlloc, inst *ir.Inst, shift byte) {
	mask := uint32(1) << shift
	arg := inst.Arg(0)
	if arg.IsImmediate() {
		if arg.U1() {
			e.code.ORLconstToMem(mask, memCpsr())
		} else {
			e.code.ANDLconstToMem(^mask, memCpsr())
		}
	} else {
		toStore := regs.UseScratch(arg)
		e.code.SHLLconst(shift, toStore)
		e.code.ANDLconstToMem(^mask, memCpsr())
		e.code.ORLstore(toStore, memCpsr())
	}
}

func (e *Emitter) emitGetNFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitGetFlag(regs, inst, cpsrNShift)
}

func (e *Emitter) emitSetNFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitSetFlag(regs, inst, cpsrNShift)
}

func (e *Emitter) emitGetZFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitGetFlag(regs, inst, cpsrZShift)
}

func (e *Emitter) emitSetZFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitSetFlag(regs, inst, cpsrZShift)
}

func (e *Emitter) emitGetCFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitGetFlag(regs, inst, cpsrCShift)
}

func (e *Emitter) emitSetCFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitSetFlag(regs, inst, cpsrCShift)
}

func (e *Emitter) emitGetVFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitGetFlag(regs, inst, cpsrVShift)
}

func (e *Emitter) emitSetVFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	e.emitSetFlag(regs, inst, cpsrVShift)
}

func (e *Emitter) emitOrQFlag(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	arg := inst.Arg(0)
	if arg.IsImmediate() {
		if arg.U1() {
			e.code.ORLconstToMem(1<<cpsrQShift, memCpsr())
		}
	} else {
		toStore := regs.UseScratch(arg)
		e.code.SHLLconst(cpsrQShift, toStore)
		e.code.ORLstore(toStore, memCpsr())
	}
}

func (e *Emitter) emitGetGEFlags(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.Def(inst)
	e.code.MOVLload(memCpsr(), result)
	e.code.SHRLconst(cpsrGEShift, result)
	e.code.ANDLconst(0xF, result)
}

func (e *Emitter) emitSetGEFlags(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	const mask = uint32(0xF) << cpsrGEShift
	arg := inst.Arg(0)
	if arg.IsImmediate() {
		imm := (arg.U32() << cpsrGEShift) & mask
		e.code.ANDLconstToMem(^mask, memCpsr())
		e.code.ORLconstToMem(imm, memCpsr())
	} else {
		toStore := regs.UseScratch(arg)
		e.code.SHLLconst(cpsrGEShift, toStore)
		e.code.ANDLconst(mask, toStore)
		e.code.ANDLconstToMem(^mask, memCpsr())
		e.code.ORLstore(toStore, memCpsr())
	}
}

func (e *Emitter) emitGetFpscrNZCV(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	result := regs.Def(inst)
	e.code.MOVLload(amd64.M(StateReg, OffsetFpscrNZCV), result)
}

func (e *Emitter) emitSetFpscrNZCV(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	value := regs.Use(inst.Arg(0))
	e.code.MOVLstore(value, amd64.M(StateReg, OffsetFpscrNZCV))
}

func (e *Emitter) emitBXWritePC(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	arg := inst.Arg(0)

	// if (pc & 1) { PC = pc & ~1; T = 1 } else { PC = pc & ~3; T = 0 }

	if arg.IsImmediate() {
		newPC := arg.U32()
		if newPC&1 != 0 {
			e.code.MOVLstoreconst(newPC&0xFFFFFFFE, memReg(ir.PC))
			e.code.ORLconstToMem(cpsrTBit, memCpsr())
		} else {
			e.code.MOVLstoreconst(newPC&0xFFFFFFFC, memReg(ir.PC))
			e.code.ANDLconstToMem(^cpsrTBit, memCpsr())
		}
		return
	}

	newPC := regs.UseScratch(arg)
	tmp1 := regs.Scratch()
	tmp2 := regs.Scratch()

	e.code.MOVLload(memCpsr(), tmp1)
	e.code.MOVL(tmp1, tmp2)
	e.code.ANDLconst(^cpsrTBit, tmp2)
	e.code.ORLconst(cpsrTBit, tmp1)
	e.code.TESTLconst(1, newPC)
	e.code.CMOVL(amd64.CondZ, tmp2, tmp1)
	e.code.MOVLstore(tmp1, memCpsr())
	e.code.LEAQ(amd64.Mem{Base: newPC, Index: newPC, Scale: 0}, tmp2)
	e.code.ORQconst(-4, tmp2) // pc&1 ? ...FFFE : ...FFFC
	e.code.ANDQ(tmp2, newPC)
	e.code.MOVLstore(newPC, memReg(ir.PC))
}

func (e *Emitter) emitCallSupervisor(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	regs.HostCall(nil, inst.Arg(0))

	e.code.SwitchMxcsrOnExit()
	e.code.CallFunction(e.cfg.Callbacks.CallSVC)
	e.code.SwitchMxcsrOnEntry()
}

func (e *Emitter) emitBreakpoint(_ *RegAlloc, _ *ir.Block, _ *ir.Inst) {
	e.code.INT3()
}

func (e *Emitter) emitPushRSB(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	if !inst.Arg(0).IsImmediate() {
		panic(fmt.Errorf("BUG: PushRSB target must be a compile-time hash"))
	}
	targetHash := inst.Arg(0).U64()

	targetPtr := e.code.ReturnFromRunCodeAddress()
	if bd, ok := e.blockDescriptors[targetHash]; ok {
		targetPtr = bd.EntryPtr
	}

	codePtrReg := regs.Scratch(amd64.REG_CX)
	locDescReg := regs.Scratch()
	indexReg := regs.Scratch()

	e.code.MOVLload(amd64.M(StateReg, OffsetRsbPtr), indexReg)
	e.code.ADDLconst(1, indexReg)
	e.code.ANDLconst(RSBSize-1, indexReg)

	e.code.MOVQconst(targetHash, locDescReg)

	pi := e.recordPatch(targetHash)
	pi.movRcx = append(pi.movRcx, e.code.Cursor())
	e.emitPatchMovRcx(targetPtr)

	skip := e.code.NewLabel()
	for i := 0; i < RSBSize; i++ {
		e.code.CMPQload(amd64.M(StateReg, OffsetRsbLocations+int32(i*8)), locDescReg)
		e.code.JccShort(amd64.CondZ, skip)
	}

	e.code.MOVLstore(indexReg, amd64.M(StateReg, OffsetRsbPtr))
	e.code.MOVQstore(locDescReg, amd64.Mem{Base: StateReg, Index: indexReg, Scale: 3, Disp: OffsetRsbLocations})
	e.code.MOVQstore(codePtrReg, amd64.Mem{Base: StateReg, Index: indexReg, Scale: 3, Disp: OffsetRsbCodePtrs})
	e.code.Bind(skip)
}
