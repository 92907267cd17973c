package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

func init() {
	registerEmit(ir.OpCoprocInternalOperation, (*Emitter).emitCoprocInternalOperation)
	registerEmit(ir.OpCoprocSendOneWord, (*Emitter).emitCoprocSendOneWord)
	registerEmit(ir.OpCoprocSendTwoWords, (*Emitter).emitCoprocSendTwoWords)
	registerEmit(ir.OpCoprocGetOneWord, (*Emitter).emitCoprocGetOneWord)
	registerEmit(ir.OpCoprocGetTwoWords, (*Emitter).emitCoprocGetTwoWords)
	registerEmit(ir.OpCoprocLoadWords, (*Emitter).emitCoprocLoadWords)
	registerEmit(ir.OpCoprocStoreWords, (*Emitter).emitCoprocStoreWords)
}

// emitCoprocessorException traps. Accesses to absent coprocessors should be
// rejected by the front-end as undefined instructions before reaching the
// backend.
func (e *Emitter) emitCoprocessorException() {
	e.code.INT3()
}

// callCoprocCallback routes a coprocessor access through a host callback:
// func(userArg uintptr, arg0, arg1 uint32) uint64. The IR arguments land in
// the second and third parameter registers, then the user argument is
// materialised into the first.
func (e *Emitter) callCoprocCallback(regs *RegAlloc, inst *ir.Inst, cb CoprocCallback, arg0, arg1 ir.Value) {
	regs.HostCall(inst, ir.Value{}, arg0, arg1)
	e.code.MOVQconst(uint64(cb.UserArg), amd64.REG_DI)
	e.code.CallFunction(cb.Fn)
}

func (e *Emitter) emitCoprocInternalOperation(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	opc1 := info[2]
	crd := CoprocReg(info[3])
	crn := CoprocReg(info[4])
	crm := CoprocReg(info[5])
	opc2 := info[6]

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileInternalOperation(two, opc1, crd, crn, crm, opc2).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, nil, action.Callback, ir.Value{}, ir.Value{})
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled CDP to %T", num, action))
	}
}

func (e *Emitter) emitCoprocSendOneWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	opc1 := info[2]
	crn := CoprocReg(info[3])
	crm := CoprocReg(info[4])
	opc2 := info[5]
	word := inst.Arg(1)

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileSendOneWord(two, opc1, crn, crm, opc2).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, nil, action.Callback, word, ir.Value{})
	case CoprocActionDirectPtr:
		src := regs.Use(word)
		addr := regs.Scratch()
		e.code.MOVQconst(uint64(action.Ptr), addr)
		e.code.MOVLstore(src, amd64.M(addr, 0))
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled MCR to %T", num, action))
	}
}

func (e *Emitter) emitCoprocSendTwoWords(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	opc := info[2]
	crm := CoprocReg(info[3])
	word1 := inst.Arg(1)
	word2 := inst.Arg(2)

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileSendTwoWords(two, opc, crm).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, nil, action.Callback, word1, word2)
	case CoprocActionDirectPtrPair:
		src1 := regs.Use(word1)
		src2 := regs.Use(word2)
		addr := regs.Scratch()
		e.code.MOVQconst(uint64(action.Ptrs[0]), addr)
		e.code.MOVLstore(src1, amd64.M(addr, 0))
		e.code.MOVQconst(uint64(action.Ptrs[1]), addr)
		e.code.MOVLstore(src2, amd64.M(addr, 0))
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled MCRR to %T", num, action))
	}
}

func (e *Emitter) emitCoprocGetOneWord(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	opc1 := info[2]
	crn := CoprocReg(info[3])
	crm := CoprocReg(info[4])
	opc2 := info[5]

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileGetOneWord(two, opc1, crn, crm, opc2).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, inst, action.Callback, ir.Value{}, ir.Value{})
	case CoprocActionDirectPtr:
		result := regs.Def(inst)
		addr := regs.Scratch()
		e.code.MOVQconst(uint64(action.Ptr), addr)
		e.code.MOVLload(amd64.M(addr, 0), result)
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled MRC to %T", num, action))
	}
}

func (e *Emitter) emitCoprocGetTwoWords(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	opc := info[2]
	crm := CoprocReg(info[3])

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileGetTwoWords(two, opc, crm).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, inst, action.Callback, ir.Value{}, ir.Value{})
	case CoprocActionDirectPtrPair:
		result := regs.Def(inst)
		addr := regs.Scratch()
		tmp := regs.Scratch()
		e.code.MOVQconst(uint64(action.Ptrs[1]), addr)
		e.code.MOVLload(amd64.M(addr, 0), result)
		e.code.SHLQconst(32, result)
		e.code.MOVQconst(uint64(action.Ptrs[0]), addr)
		e.code.MOVLload(amd64.M(addr, 0), tmp)
		e.code.ORQ(tmp, result)
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled MRRC to %T", num, action))
	}
}

func (e *Emitter) emitCoprocLoadWords(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	longTransfer := info[2] != 0
	crd := CoprocReg(info[3])
	hasOption := info[4] != 0
	option := info[5]
	address := inst.Arg(1)

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileLoadWords(two, longTransfer, crd, hasOption, option).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, nil, action.Callback, address, ir.Value{})
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled LDC to %T", num, action))
	}
}

func (e *Emitter) emitCoprocStoreWords(regs *RegAlloc, _ *ir.Block, inst *ir.Inst) {
	info := inst.Arg(0).Coproc()
	num := info[0]
	two := info[1] != 0
	longTransfer := info[2] != 0
	crd := CoprocReg(info[3])
	hasOption := info[4] != 0
	option := info[5]
	address := inst.Arg(1)

	coproc := e.cfg.Coprocessors[num]
	if coproc == nil {
		e.emitCoprocessorException()
		return
	}

	switch action := coproc.CompileStoreWords(two, longTransfer, crd, hasOption, option).(type) {
	case nil:
		e.emitCoprocessorException()
	case CoprocActionCallback:
		e.callCoprocCallback(regs, nil, action.Callback, address, ir.Value{})
	default:
		panic(fmt.Errorf("BUG: coprocessor %d compiled STC to %T", num, action))
	}
}
