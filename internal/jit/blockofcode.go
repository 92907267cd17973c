package jit

import (
	"github.com/dynarec/krait/internal/asm"
	"github.com/dynarec/krait/internal/asm/amd64"
)

// BlockOfCode owns the executable region. The run-code prologue and
// epilogue are generated once at the bottom of the region; block emission
// appends after them and a cache clear rewinds to just past them.
type BlockOfCode struct {
	*amd64.Assembler
	seg *asm.CodeSegment

	runCode                             uintptr
	returnFromRunCode                   uintptr
	returnFromRunCodeWithoutMxcsrSwitch uintptr

	clearCacheCursor int
}

// NewBlockOfCode maps an executable region of the given size and generates
// the entry and exit thunks.
func NewBlockOfCode(size int) (*BlockOfCode, error) {
	seg := &asm.CodeSegment{}
	if err := seg.Map(size); err != nil {
		return nil, err
	}
	b := &BlockOfCode{seg: seg, Assembler: amd64.NewAssembler(seg)}
	b.genRunCode()
	b.clearCacheCursor = b.Cursor()
	return b, nil
}

// Close unmaps the executable region.
func (b *BlockOfCode) Close() error {
	return b.seg.Unmap()
}

// ClearCache rewinds emission to just after the thunks. All previously
// handed out block entry pointers become invalid.
func (b *BlockOfCode) ClearCache() {
	b.SetCursor(b.clearCacheCursor)
}

// SpaceRemaining returns how many bytes are left for block emission.
func (b *BlockOfCode) SpaceRemaining() int {
	return b.seg.Cap() - b.Cursor()
}

// RunCodeAddress is the entry thunk: func(state *State, target uintptr)
// in the System V ABI.
func (b *BlockOfCode) RunCodeAddress() uintptr { return b.runCode }

// ReturnFromRunCodeAddress is where emitted code jumps to hand control back
// to the dispatcher.
func (b *BlockOfCode) ReturnFromRunCodeAddress() uintptr { return b.returnFromRunCode }

// ReturnFromRunCodeWithoutMxcsrSwitchAddress is the exit path for code that
// has already restored the host MXCSR.
func (b *BlockOfCode) ReturnFromRunCodeWithoutMxcsrSwitchAddress() uintptr {
	return b.returnFromRunCodeWithoutMxcsrSwitch
}

// calleeSaved is pushed on entry in this order and popped on exit in
// reverse, so the pinned state register is restored first.
var calleeSaved = []asm.Register{
	amd64.REG_BX, amd64.REG_BP, amd64.REG_R12,
	amd64.REG_R13, amd64.REG_R14, amd64.REG_R15,
}

func (b *BlockOfCode) genRunCode() {
	b.runCode = b.CursorAddr()
	for _, r := range calleeSaved {
		b.PUSHQ(r)
	}
	// Return address plus six pushes leaves the stack 8 mod 16; realign so
	// callbacks may assume the ABI contract.
	b.SUBQconst(8, amd64.REG_SP)
	b.MOVQ(amd64.REG_DI, StateReg)
	b.SwitchMxcsrOnEntry()
	b.JMPreg(amd64.REG_SI)

	b.returnFromRunCode = b.CursorAddr()
	b.SwitchMxcsrOnExit()

	b.returnFromRunCodeWithoutMxcsrSwitch = b.CursorAddr()
	b.ADDQconst(8, amd64.REG_SP)
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		b.POPQ(calleeSaved[i])
	}
	b.RET()
}

// SwitchMxcsrOnEntry saves the host MXCSR and installs the guest's.
func (b *BlockOfCode) SwitchMxcsrOnEntry() {
	b.STMXCSR(amd64.M(StateReg, OffsetSaveHostMXCSR))
	b.LDMXCSR(amd64.M(StateReg, OffsetGuestMXCSR))
}

// SwitchMxcsrOnExit restores the host MXCSR. Must bracket every call out of
// emitted code.
func (b *BlockOfCode) SwitchMxcsrOnExit() {
	b.STMXCSR(amd64.M(StateReg, OffsetGuestMXCSR))
	b.LDMXCSR(amd64.M(StateReg, OffsetSaveHostMXCSR))
}

// CallFunction materialises an absolute target and calls it. RAX is
// clobbered.
func (b *BlockOfCode) CallFunction(fn uintptr) {
	b.MOVQconst(uint64(fn), amd64.REG_AX)
	b.CALLreg(amd64.REG_AX)
}
