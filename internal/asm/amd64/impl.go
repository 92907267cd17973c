package amd64

import "github.com/dynarec/krait/internal/asm"

// General purpose instructions. Operand order is source first, destination
// last, as in Go assembler. Method suffixes follow the compiler's internal
// opcode naming: plain for register-register, const for immediates, load and
// store for memory forms.

// MOVL copies a 32-bit register. Writing a 32-bit register clears the upper
// half on amd64, which the emitter relies on for zero extension.
func (a *Assembler) MOVL(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x89}, enc(src), enc(dst), rex32)
}

func (a *Assembler) MOVQ(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x89}, enc(src), enc(dst), rex64)
}

func (a *Assembler) MOVLconst(imm uint32, dst asm.Register) {
	d := enc(dst)
	rex32.emit(a, 0, d)
	a.byte(0xb8 + d.encoding())
	a.u32(imm)
}

// MOVQconst emits the 10-byte MOV r64, imm64 form unconditionally, since
// patch sites depend on its fixed length.
func (a *Assembler) MOVQconst(imm uint64, dst asm.Register) {
	d := enc(dst)
	rex64.emit(a, 0, d)
	a.byte(0xb8 + d.encoding())
	a.u64(imm)
}

func (a *Assembler) MOVLload(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x8b}, enc(dst), m, rex32)
}

func (a *Assembler) MOVLstore(src asm.Register, m Mem) {
	a.opRegMem(0, []byte{0x89}, enc(src), m, rex32)
}

func (a *Assembler) MOVQload(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x8b}, enc(dst), m, rex64)
}

func (a *Assembler) MOVQstore(src asm.Register, m Mem) {
	a.opRegMem(0, []byte{0x89}, enc(src), m, rex64)
}

func (a *Assembler) MOVBstore(src asm.Register, m Mem) {
	a.opRegMem(0, []byte{0x88}, enc(src), m, rexAlways)
}

func (a *Assembler) MOVWstore(src asm.Register, m Mem) {
	a.opRegMem(0x66, []byte{0x89}, enc(src), m, rex32)
}

func (a *Assembler) MOVLstoreconst(imm uint32, m Mem) {
	a.opRegMem(0, []byte{0xc7}, 0, m, rex32)
	a.u32(imm)
}

func (a *Assembler) MOVBstoreconst(imm uint8, m Mem) {
	a.opRegMem(0, []byte{0xc6}, 0, m, rex32)
	a.byte(imm)
}

func (a *Assembler) MOVBLZX(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xb6}, enc(dst), enc(src), rex32|rexAlways)
}

func (a *Assembler) MOVBLSX(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xbe}, enc(dst), enc(src), rex32|rexAlways)
}

func (a *Assembler) MOVWLZX(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xb7}, enc(dst), enc(src), rex32)
}

func (a *Assembler) MOVWLSX(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xbf}, enc(dst), enc(src), rex32)
}

func (a *Assembler) MOVBLZXload(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x0f, 0xb6}, enc(dst), m, rex32)
}

func (a *Assembler) MOVWLZXload(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x0f, 0xb7}, enc(dst), m, rex32)
}

func (a *Assembler) MOVBLSXload(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x0f, 0xbe}, enc(dst), m, rex32)
}

func (a *Assembler) MOVWLSXload(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x0f, 0xbf}, enc(dst), m, rex32)
}

// MOVLQSX sign extends a 32-bit register into 64 bits.
func (a *Assembler) MOVLQSX(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x63}, enc(dst), enc(src), rex64)
}

// alu32 emits the classic ALU group: op is the /r opcode for the reg,reg
// direction (01=add, 11=adc, 29=sub, 19=sbb, 21=and, 09=or, 31=xor, 39=cmp).
func (a *Assembler) alu32(op byte, src, dst asm.Register) {
	a.opRegReg(0, []byte{op}, enc(src), enc(dst), rex32)
}

func (a *Assembler) alu64(op byte, src, dst asm.Register) {
	a.opRegReg(0, []byte{op}, enc(src), enc(dst), rex64)
}

// aluConst32 emits 81 /ext id, or the sign-extended 83 /ext ib short form.
func (a *Assembler) aluConst32(ext byte, imm uint32, dst asm.Register) {
	if lower8willSignExtendTo32(int32(imm)) {
		a.opRegReg(0, []byte{0x83}, regEnc(ext), enc(dst), rex32)
		a.byte(byte(imm))
	} else {
		a.opRegReg(0, []byte{0x81}, regEnc(ext), enc(dst), rex32)
		a.u32(imm)
	}
}

func (a *Assembler) ADDL(src, dst asm.Register)  { a.alu32(0x01, src, dst) }
func (a *Assembler) ADCL(src, dst asm.Register)  { a.alu32(0x11, src, dst) }
func (a *Assembler) SUBL(src, dst asm.Register)  { a.alu32(0x29, src, dst) }
func (a *Assembler) SBBL(src, dst asm.Register)  { a.alu32(0x19, src, dst) }
func (a *Assembler) ANDL(src, dst asm.Register)  { a.alu32(0x21, src, dst) }
func (a *Assembler) ORL(src, dst asm.Register)   { a.alu32(0x09, src, dst) }
func (a *Assembler) XORL(src, dst asm.Register)  { a.alu32(0x31, src, dst) }
func (a *Assembler) CMPL(src, dst asm.Register)  { a.alu32(0x39, src, dst) }
func (a *Assembler) TESTL(src, dst asm.Register) { a.alu32(0x85, src, dst) }

func (a *Assembler) ADDQ(src, dst asm.Register)  { a.alu64(0x01, src, dst) }
func (a *Assembler) SUBQ(src, dst asm.Register)  { a.alu64(0x29, src, dst) }
func (a *Assembler) ANDQ(src, dst asm.Register)  { a.alu64(0x21, src, dst) }
func (a *Assembler) ORQ(src, dst asm.Register)   { a.alu64(0x09, src, dst) }
func (a *Assembler) XORQ(src, dst asm.Register)  { a.alu64(0x31, src, dst) }
func (a *Assembler) CMPQ(src, dst asm.Register)  { a.alu64(0x39, src, dst) }
func (a *Assembler) TESTQ(src, dst asm.Register) { a.alu64(0x85, src, dst) }

func (a *Assembler) ADDLconst(imm uint32, dst asm.Register)  { a.aluConst32(0, imm, dst) }
func (a *Assembler) ADCLconst(imm uint32, dst asm.Register)  { a.aluConst32(2, imm, dst) }
func (a *Assembler) SUBLconst(imm uint32, dst asm.Register)  { a.aluConst32(5, imm, dst) }
func (a *Assembler) SBBLconst(imm uint32, dst asm.Register)  { a.aluConst32(3, imm, dst) }
func (a *Assembler) ANDLconst(imm uint32, dst asm.Register)  { a.aluConst32(4, imm, dst) }
func (a *Assembler) ORLconst(imm uint32, dst asm.Register)   { a.aluConst32(1, imm, dst) }
func (a *Assembler) XORLconst(imm uint32, dst asm.Register)  { a.aluConst32(6, imm, dst) }
func (a *Assembler) CMPLconst(imm uint32, dst asm.Register)  { a.aluConst32(7, imm, dst) }

func (a *Assembler) TESTLconst(imm uint32, dst asm.Register) {
	a.opRegReg(0, []byte{0xf7}, 0, enc(dst), rex32)
	a.u32(imm)
}

func (a *Assembler) aluConst64(ext byte, imm int32, dst asm.Register) {
	if lower8willSignExtendTo32(imm) {
		a.opRegReg(0, []byte{0x83}, regEnc(ext), enc(dst), rex64)
		a.byte(byte(imm))
	} else {
		a.opRegReg(0, []byte{0x81}, regEnc(ext), enc(dst), rex64)
		a.u32(uint32(imm))
	}
}

func (a *Assembler) ADDQconst(imm int32, dst asm.Register) { a.aluConst64(0, imm, dst) }
func (a *Assembler) SUBQconst(imm int32, dst asm.Register) { a.aluConst64(5, imm, dst) }
func (a *Assembler) ANDQconst(imm int32, dst asm.Register) { a.aluConst64(4, imm, dst) }
func (a *Assembler) ORQconst(imm int32, dst asm.Register)  { a.aluConst64(1, imm, dst) }
func (a *Assembler) CMPQconst(imm int32, dst asm.Register) { a.aluConst64(7, imm, dst) }
func (a *Assembler) SHLQconst(imm byte, dst asm.Register) {
	a.opRegReg(0, []byte{0xc1}, 4, enc(dst), rex64)
	a.byte(imm)
}
func (a *Assembler) SHRQconst(imm byte, dst asm.Register) {
	a.opRegReg(0, []byte{0xc1}, 5, enc(dst), rex64)
	a.byte(imm)
}

// Memory-source ALU forms, used when an operand reads a spill slot directly.

func (a *Assembler) ADDLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x03}, enc(dst), m, rex32) }
func (a *Assembler) SUBLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x2b}, enc(dst), m, rex32) }
func (a *Assembler) ANDLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x23}, enc(dst), m, rex32) }
func (a *Assembler) ORLload(m Mem, dst asm.Register)   { a.opRegMem(0, []byte{0x0b}, enc(dst), m, rex32) }
func (a *Assembler) XORLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x33}, enc(dst), m, rex32) }
func (a *Assembler) CMPLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x3b}, enc(dst), m, rex32) }
func (a *Assembler) CMPQload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x3b}, enc(dst), m, rex64) }
func (a *Assembler) ADCLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x13}, enc(dst), m, rex32) }
func (a *Assembler) SBBLload(m Mem, dst asm.Register)  { a.opRegMem(0, []byte{0x1b}, enc(dst), m, rex32) }
func (a *Assembler) IMULLload(m Mem, dst asm.Register) { a.opRegMem(0, []byte{0x0f, 0xaf}, enc(dst), m, rex32) }
func (a *Assembler) IMULQload(m Mem, dst asm.Register) { a.opRegMem(0, []byte{0x0f, 0xaf}, enc(dst), m, rex64) }

// Memory-destination ALU forms for the guest state fields.

func (a *Assembler) ORLconstToMem(imm uint32, m Mem) {
	if lower8willSignExtendTo32(int32(imm)) {
		a.opRegMem(0, []byte{0x83}, 1, m, rex32)
		a.byte(byte(imm))
	} else {
		a.opRegMem(0, []byte{0x81}, 1, m, rex32)
		a.u32(imm)
	}
}

func (a *Assembler) ANDLconstToMem(imm uint32, m Mem) {
	if lower8willSignExtendTo32(int32(imm)) {
		a.opRegMem(0, []byte{0x83}, 4, m, rex32)
		a.byte(byte(imm))
	} else {
		a.opRegMem(0, []byte{0x81}, 4, m, rex32)
		a.u32(imm)
	}
}

func (a *Assembler) ORLstore(src asm.Register, m Mem) {
	a.opRegMem(0, []byte{0x09}, enc(src), m, rex32)
}

func (a *Assembler) ANDLstore(src asm.Register, m Mem) {
	a.opRegMem(0, []byte{0x21}, enc(src), m, rex32)
}

// SUBQconstFromMem subtracts imm from a 64-bit state field in place.
func (a *Assembler) SUBQconstFromMem(imm int32, m Mem) {
	if lower8willSignExtendTo32(imm) {
		a.opRegMem(0, []byte{0x83}, 5, m, rex64)
		a.byte(byte(imm))
	} else {
		a.opRegMem(0, []byte{0x81}, 5, m, rex64)
		a.u32(uint32(imm))
	}
}

// CMPQconstToMem compares a 64-bit state field against a small immediate.
func (a *Assembler) CMPQconstToMem(imm int8, m Mem) {
	a.opRegMem(0, []byte{0x83}, 7, m, rex64)
	a.byte(byte(imm))
}

// CMPBconstToMem compares a byte state field against an immediate.
func (a *Assembler) CMPBconstToMem(imm uint8, m Mem) {
	a.opRegMem(0, []byte{0x80}, 7, m, rex32)
	a.byte(imm)
}

func (a *Assembler) NOTL(dst asm.Register) { a.opRegReg(0, []byte{0xf7}, 2, enc(dst), rex32) }
func (a *Assembler) NEGL(dst asm.Register) { a.opRegReg(0, []byte{0xf7}, 3, enc(dst), rex32) }

func (a *Assembler) IMULL(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xaf}, enc(dst), enc(src), rex32)
}

func (a *Assembler) IMULQ(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xaf}, enc(dst), enc(src), rex64)
}

// IMULLconst is the three-operand imul dst, src, imm32 form.
func (a *Assembler) IMULLconst(src asm.Register, imm uint32, dst asm.Register) {
	a.opRegReg(0, []byte{0x69}, enc(dst), enc(src), rex32)
	a.u32(imm)
}

// Shifts and rotates. The const forms use C1 /ext, the CL forms D3 /ext.

func (a *Assembler) shiftConst32(ext byte, imm byte, dst asm.Register) {
	if imm == 1 {
		a.opRegReg(0, []byte{0xd1}, regEnc(ext), enc(dst), rex32)
		return
	}
	a.opRegReg(0, []byte{0xc1}, regEnc(ext), enc(dst), rex32)
	a.byte(imm)
}

func (a *Assembler) shiftCL32(ext byte, dst asm.Register) {
	a.opRegReg(0, []byte{0xd3}, regEnc(ext), enc(dst), rex32)
}

func (a *Assembler) SHLLconst(imm byte, dst asm.Register) { a.shiftConst32(4, imm, dst) }
func (a *Assembler) SHRLconst(imm byte, dst asm.Register) { a.shiftConst32(5, imm, dst) }
func (a *Assembler) SARLconst(imm byte, dst asm.Register) { a.shiftConst32(7, imm, dst) }
func (a *Assembler) ROLLconst(imm byte, dst asm.Register) { a.shiftConst32(0, imm, dst) }
func (a *Assembler) RORLconst(imm byte, dst asm.Register) { a.shiftConst32(1, imm, dst) }
func (a *Assembler) RCRLconst(imm byte, dst asm.Register) { a.shiftConst32(3, imm, dst) }
func (a *Assembler) SHLLcl(dst asm.Register)              { a.shiftCL32(4, dst) }
func (a *Assembler) SHRLcl(dst asm.Register)              { a.shiftCL32(5, dst) }
func (a *Assembler) SARLcl(dst asm.Register)              { a.shiftCL32(7, dst) }
func (a *Assembler) RORLcl(dst asm.Register)              { a.shiftCL32(1, dst) }

// ROLWconst rotates the low 16 bits of dst.
func (a *Assembler) ROLWconst(imm byte, dst asm.Register) {
	a.opRegReg(0x66, []byte{0xc1}, 0, enc(dst), rex32)
	a.byte(imm)
}

// SHLDLconst shifts dst left by imm, filling from the top bits of src.
func (a *Assembler) SHLDLconst(src asm.Register, imm byte, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xa4}, enc(src), enc(dst), rex32)
	a.byte(imm)
}

// Bit tests.

func (a *Assembler) BTLconst(bit byte, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xba}, 4, enc(dst), rex32)
	a.byte(bit)
}

func (a *Assembler) BTRLconst(bit byte, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xba}, 6, enc(dst), rex32)
	a.byte(bit)
}

func (a *Assembler) BTSLconst(bit byte, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xba}, 5, enc(dst), rex32)
	a.byte(bit)
}

func (a *Assembler) BSRL(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0xbd}, enc(dst), enc(src), rex32)
}

func (a *Assembler) LZCNTL(src, dst asm.Register) {
	a.opRegReg(0xf3, []byte{0x0f, 0xbd}, enc(dst), enc(src), rex32)
}

func (a *Assembler) BSWAPL(dst asm.Register) {
	d := enc(dst)
	rex32.emit(a, 0, d)
	a.byte(0x0f)
	a.byte(0xc8 + d.encoding())
}

func (a *Assembler) BSWAPQ(dst asm.Register) {
	d := enc(dst)
	rex64.emit(a, 0, d)
	a.byte(0x0f)
	a.byte(0xc8 + d.encoding())
}

// SETcc materialises a condition flag into the low byte of dst, which must
// be zeroed or masked by the caller. REX is always emitted so SPL/DIL-class
// encodings stay unambiguous.
func (a *Assembler) SETcc(c Cond, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0x90 + byte(c)}, 0, enc(dst), rexAlways)
}

func (a *Assembler) CMOVL(c Cond, src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0x40 + byte(c)}, enc(dst), enc(src), rex32)
}

func (a *Assembler) CMOVQ(c Cond, src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0x40 + byte(c)}, enc(dst), enc(src), rex64)
}

func (a *Assembler) CMOVQload(c Cond, m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x0f, 0x40 + byte(c)}, enc(dst), m, rex64)
}

func (a *Assembler) LEAL(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x8d}, enc(dst), m, rex32)
}

func (a *Assembler) LEAQ(m Mem, dst asm.Register) {
	a.opRegMem(0, []byte{0x8d}, enc(dst), m, rex64)
}

// Flag register manipulation.

func (a *Assembler) STC()  { a.byte(0xf9) }
func (a *Assembler) CLC()  { a.byte(0xf8) }
func (a *Assembler) CMC()  { a.byte(0xf5) }
func (a *Assembler) LAHF() { a.byte(0x9f) }

// Stack and control flow.

func (a *Assembler) PUSHQ(r asm.Register) {
	e := enc(r)
	rex32.emit(a, 0, e)
	a.byte(0x50 + e.encoding())
}

func (a *Assembler) POPQ(r asm.Register) {
	e := enc(r)
	rex32.emit(a, 0, e)
	a.byte(0x58 + e.encoding())
}

func (a *Assembler) RET()  { a.byte(0xc3) }
func (a *Assembler) INT3() { a.byte(0xcc) }
func (a *Assembler) NOP()  { a.byte(0x90) }
func (a *Assembler) UD2()  { a.byte(0x0f); a.byte(0x0b) }

func (a *Assembler) CALLreg(r asm.Register) {
	a.opRegReg(0, []byte{0xff}, 2, enc(r), rex32)
}

func (a *Assembler) JMPreg(r asm.Register) {
	a.opRegReg(0, []byte{0xff}, 4, enc(r), rex32)
}

// JMPlabel emits E9 rel32 to a local label.
func (a *Assembler) JMPlabel(l *Label) {
	a.byte(0xe9)
	a.rel32To(l)
}

// JMPShort emits EB rel8 to a nearby local label.
func (a *Assembler) JMPShort(l *Label) {
	a.byte(0xeb)
	a.rel8To(l)
}

// Jcc emits 0F 8x rel32 to a local label.
func (a *Assembler) Jcc(c Cond, l *Label) {
	a.byte(0x0f)
	a.byte(0x80 + byte(c))
	a.rel32To(l)
}

// JccShort emits 7x rel8 to a nearby local label.
func (a *Assembler) JccShort(c Cond, l *Label) {
	a.byte(0x70 + byte(c))
	a.rel8To(l)
}

// JccAddr emits 0F 8x rel32 to an absolute target, always 6 bytes. Patch
// sites depend on this length.
func (a *Assembler) JccAddr(c Cond, target uintptr) {
	a.byte(0x0f)
	a.byte(0x80 + byte(c))
	rel := int64(target) - (int64(a.CursorAddr()) + 4)
	a.u32(uint32(int32(rel)))
}

// JMPAddr emits E9 rel32 to an absolute target, always 5 bytes.
func (a *Assembler) JMPAddr(target uintptr) {
	a.byte(0xe9)
	rel := int64(target) - (int64(a.CursorAddr()) + 4)
	a.u32(uint32(int32(rel)))
}

// MXCSR loads and stores.

func (a *Assembler) LDMXCSR(m Mem) {
	a.opRegMem(0, []byte{0x0f, 0xae}, 2, m, rex32)
}

func (a *Assembler) STMXCSR(m Mem) {
	a.opRegMem(0, []byte{0x0f, 0xae}, 3, m, rex32)
}
