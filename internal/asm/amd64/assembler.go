package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/dynarec/krait/internal/asm"
)

// Assembler emits x86-64 machine code directly into a CodeSegment, byte by
// byte, with no intermediate instruction list. The emitter depends on the
// exact byte count of several emitted sequences, so every instruction method
// writes a deterministic encoding.
type Assembler struct {
	seg *asm.CodeSegment
}

// NewAssembler wraps the given code segment.
func NewAssembler(seg *asm.CodeSegment) *Assembler {
	return &Assembler{seg: seg}
}

// Seg returns the underlying code segment.
func (a *Assembler) Seg() *asm.CodeSegment {
	return a.seg
}

// Cursor returns the current emission offset within the segment.
func (a *Assembler) Cursor() int {
	return a.seg.Cursor()
}

// CursorAddr returns the absolute address of the current emission point.
func (a *Assembler) CursorAddr() uintptr {
	return a.seg.CursorAddr()
}

// SetCursor repositions emission, used when rewriting patch sites.
func (a *Assembler) SetCursor(off int) {
	a.seg.SetCursor(off)
}

// Align pads with single-byte NOPs until the cursor is a multiple of n.
func (a *Assembler) Align(n int) {
	for a.seg.Cursor()%n != 0 {
		a.seg.WriteByte(0x90)
	}
}

// EnsurePatchSize verifies that the bytes emitted since start fit the fixed
// patch budget n, NOP-padding any shortfall. Exceeding the budget is a bug:
// a later rewrite would clobber the following instruction.
func (a *Assembler) EnsurePatchSize(start, n int) {
	emitted := a.seg.Cursor() - start
	if emitted > n {
		panic(fmt.Errorf("BUG: emitted %d bytes into a %d byte patch site", emitted, n))
	}
	for ; emitted < n; emitted++ {
		a.seg.WriteByte(0x90)
	}
}

func (a *Assembler) byte(b byte) { a.seg.WriteByte(b) }

func (a *Assembler) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.seg.Write(b[:])
}

func (a *Assembler) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	a.seg.Write(b[:])
}

// Mem is a base+index*scale+displacement memory operand. Scale is the SIB
// shift amount, 0..3. Index asm.NilRegister means no index.
type Mem struct {
	Base  asm.Register
	Index asm.Register
	Scale byte
	Disp  int32
}

// M is shorthand for a base+displacement operand.
func M(base asm.Register, disp int32) Mem {
	return Mem{Base: base, Disp: disp}
}

// rexInfo selects whether the REX.W bit is set and whether a REX prefix must
// be emitted even when all of its bits are zero (needed to reach SPL/DIL and
// friends in byte operations).
type rexInfo byte

const (
	rex32      rexInfo = 0
	rex64      rexInfo = 1
	rexAlways  rexInfo = 2
	rex64Force         = rex64 | rexAlways
)

func (ri rexInfo) emit(a *Assembler, r, rm regEnc) {
	var w byte
	if ri&rex64 != 0 {
		w = 1
	}
	rex := 0x40 | w<<3 | r.rexBit()<<2 | rm.rexBit()
	if rex != 0x40 || ri&rexAlways != 0 {
		a.byte(rex)
	}
}

func (ri rexInfo) emitForIndex(a *Assembler, r, index, base regEnc) {
	var w byte
	if ri&rex64 != 0 {
		w = 1
	}
	rex := 0x40 | w<<3 | r.rexBit()<<2 | index.rexBit()<<1 | base.rexBit()
	if rex != 0x40 || ri&rexAlways != 0 {
		a.byte(rex)
	}
}

func modRM(mod, reg, rm byte) byte {
	return mod<<6 | reg<<3 | rm
}

func sib(shift, index, base byte) byte {
	return shift<<6 | index<<3 | base
}

func lower8willSignExtendTo32(v int32) bool {
	return v == int32(int8(v))
}

// opRegReg emits [legacy prefix] [REX] opcode... modrm(3, r, rm).
func (a *Assembler) opRegReg(prefix byte, opcode []byte, r, rm regEnc, ri rexInfo) {
	if prefix != 0 {
		a.byte(prefix)
	}
	ri.emit(a, r, rm)
	for _, op := range opcode {
		a.byte(op)
	}
	a.byte(modRM(3, r.encoding(), rm.encoding()))
}

// opRegMem emits [legacy prefix] [REX] opcode... modrm/sib/disp for r, m.
func (a *Assembler) opRegMem(prefix byte, opcode []byte, r regEnc, m Mem, ri rexInfo) {
	if prefix != 0 {
		a.byte(prefix)
	}

	const (
		modNoDisp    = 0b00
		modShortDisp = 0b01
		modLongDisp  = 0b10
		useSIB       = 4 // the rm encoding of rsp or r12.
	)

	base := enc(m.Base)
	if m.Index == asm.NilRegister {
		ri.emit(a, r, base)
		for _, op := range opcode {
			a.byte(op)
		}

		// rbp and r13 cannot be encoded without displacement; rsp and r12
		// require a SIB byte.
		const sibNone = 0x24 // sib(0, 4, 4)
		dispZero := m.Disp == 0 && m.Base != REG_BP && m.Base != REG_R13
		needSIB := m.Base == REG_SP || m.Base == REG_R12

		switch {
		case dispZero:
			a.byte(modRM(modNoDisp, r.encoding(), base.encoding()))
			if needSIB {
				a.byte(sibNone)
			}
		case lower8willSignExtendTo32(m.Disp):
			a.byte(modRM(modShortDisp, r.encoding(), base.encoding()))
			if needSIB {
				a.byte(sibNone)
			}
			a.byte(byte(m.Disp))
		default:
			a.byte(modRM(modLongDisp, r.encoding(), base.encoding()))
			if needSIB {
				a.byte(sibNone)
			}
			a.u32(uint32(m.Disp))
		}
		return
	}

	if m.Index == REG_SP {
		panic("BUG: SP can't be used as index of addressing mode")
	}
	index := enc(m.Index)
	ri.emitForIndex(a, r, index, base)
	for _, op := range opcode {
		a.byte(op)
	}

	dispZero := m.Disp == 0 && m.Base != REG_BP && m.Base != REG_R13
	switch {
	case dispZero:
		a.byte(modRM(0b00, r.encoding(), useSIB))
		a.byte(sib(m.Scale, index.encoding(), base.encoding()))
	case lower8willSignExtendTo32(m.Disp):
		a.byte(modRM(0b01, r.encoding(), useSIB))
		a.byte(sib(m.Scale, index.encoding(), base.encoding()))
		a.byte(byte(m.Disp))
	default:
		a.byte(modRM(0b10, r.encoding(), useSIB))
		a.byte(sib(m.Scale, index.encoding(), base.encoding()))
		a.u32(uint32(m.Disp))
	}
}

// Label is a local jump target with forward fixups resolved when bound.
type Label struct {
	bound  bool
	offset int
	fixups []labelFixup
}

type labelFixup struct {
	at    int  // offset of the rel field
	short bool // rel8 instead of rel32
}

// NewLabel returns an unbound label.
func (a *Assembler) NewLabel() *Label {
	return &Label{}
}

// Bind places the label at the current cursor and resolves pending fixups.
func (a *Assembler) Bind(l *Label) {
	if l.bound {
		panic("BUG: label bound twice")
	}
	l.bound = true
	l.offset = a.seg.Cursor()
	code := a.seg.Bytes()
	for _, f := range l.fixups {
		if f.short {
			rel := l.offset - (f.at + 1)
			if rel != int(int8(rel)) {
				panic(fmt.Errorf("BUG: short jump target out of range by %d bytes", rel))
			}
			code[f.at] = byte(rel)
		} else {
			rel := l.offset - (f.at + 4)
			binary.LittleEndian.PutUint32(code[f.at:], uint32(rel))
		}
	}
	l.fixups = nil
}

func (a *Assembler) rel32To(l *Label) {
	if l.bound {
		a.u32(uint32(l.offset - (a.seg.Cursor() + 4)))
	} else {
		l.fixups = append(l.fixups, labelFixup{at: a.seg.Cursor()})
		a.u32(0)
	}
}

func (a *Assembler) rel8To(l *Label) {
	if l.bound {
		rel := l.offset - (a.seg.Cursor() + 1)
		if rel != int(int8(rel)) {
			panic(fmt.Errorf("BUG: short jump target out of range by %d bytes", rel))
		}
		a.byte(byte(rel))
	} else {
		l.fixups = append(l.fixups, labelFixup{at: a.seg.Cursor(), short: true})
		a.byte(0)
	}
}
