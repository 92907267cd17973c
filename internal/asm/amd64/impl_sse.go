package amd64

import "github.com/dynarec/krait/internal/asm"

// SSE and SSE2 instructions. The packed integer group all share the
// 66 0F xx opcode shape, so they funnel through sse66.

func (a *Assembler) sse66(opcode []byte, src, dst asm.Register) {
	a.opRegReg(0x66, opcode, enc(dst), enc(src), rex32)
}

func (a *Assembler) sseScalar(prefix byte, opcode []byte, src, dst asm.Register) {
	a.opRegReg(prefix, opcode, enc(dst), enc(src), rex32)
}

// MOVDregToXmm moves a 32-bit GPR into the low lane of an XMM register,
// zeroing the rest.
func (a *Assembler) MOVDregToXmm(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x6e}, enc(dst), enc(src), rex32)
}

// MOVDxmmToReg moves the low 32-bit lane of an XMM register into a GPR.
func (a *Assembler) MOVDxmmToReg(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x7e}, enc(src), enc(dst), rex32)
}

func (a *Assembler) MOVQregToXmm(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x6e}, enc(dst), enc(src), rex64)
}

func (a *Assembler) MOVQxmmToReg(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x7e}, enc(src), enc(dst), rex64)
}

func (a *Assembler) MOVAPS(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0x28}, enc(dst), enc(src), rex32)
}

func (a *Assembler) MOVSSload(m Mem, dst asm.Register) {
	a.opRegMem(0xf3, []byte{0x0f, 0x10}, enc(dst), m, rex32)
}

func (a *Assembler) MOVSSstore(src asm.Register, m Mem) {
	a.opRegMem(0xf3, []byte{0x0f, 0x11}, enc(src), m, rex32)
}

func (a *Assembler) MOVSDload(m Mem, dst asm.Register) {
	a.opRegMem(0xf2, []byte{0x0f, 0x10}, enc(dst), m, rex32)
}

func (a *Assembler) MOVSDstore(src asm.Register, m Mem) {
	a.opRegMem(0xf2, []byte{0x0f, 0x11}, enc(src), m, rex32)
}

// Scalar float arithmetic.

func (a *Assembler) ADDSS(src, dst asm.Register)  { a.sseScalar(0xf3, []byte{0x0f, 0x58}, src, dst) }
func (a *Assembler) ADDSD(src, dst asm.Register)  { a.sseScalar(0xf2, []byte{0x0f, 0x58}, src, dst) }
func (a *Assembler) SUBSS(src, dst asm.Register)  { a.sseScalar(0xf3, []byte{0x0f, 0x5c}, src, dst) }
func (a *Assembler) SUBSD(src, dst asm.Register)  { a.sseScalar(0xf2, []byte{0x0f, 0x5c}, src, dst) }
func (a *Assembler) MULSS(src, dst asm.Register)  { a.sseScalar(0xf3, []byte{0x0f, 0x59}, src, dst) }
func (a *Assembler) MULSD(src, dst asm.Register)  { a.sseScalar(0xf2, []byte{0x0f, 0x59}, src, dst) }
func (a *Assembler) DIVSS(src, dst asm.Register)  { a.sseScalar(0xf3, []byte{0x0f, 0x5e}, src, dst) }
func (a *Assembler) DIVSD(src, dst asm.Register)  { a.sseScalar(0xf2, []byte{0x0f, 0x5e}, src, dst) }
func (a *Assembler) SQRTSS(src, dst asm.Register) { a.sseScalar(0xf3, []byte{0x0f, 0x51}, src, dst) }
func (a *Assembler) SQRTSD(src, dst asm.Register) { a.sseScalar(0xf2, []byte{0x0f, 0x51}, src, dst) }
func (a *Assembler) MINSD(src, dst asm.Register)  { a.sseScalar(0xf2, []byte{0x0f, 0x5d}, src, dst) }
func (a *Assembler) MAXSD(src, dst asm.Register)  { a.sseScalar(0xf2, []byte{0x0f, 0x5f}, src, dst) }

func (a *Assembler) UCOMISS(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0x2e}, enc(dst), enc(src), rex32)
}

func (a *Assembler) UCOMISD(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x2e}, enc(dst), enc(src), rex32)
}

func (a *Assembler) COMISS(src, dst asm.Register) {
	a.opRegReg(0, []byte{0x0f, 0x2f}, enc(dst), enc(src), rex32)
}

func (a *Assembler) COMISD(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x2f}, enc(dst), enc(src), rex32)
}

// CMPSD with predicate imm8; predicate 7 (ordered) builds NaN masks.
func (a *Assembler) CMPSD(pred byte, src, dst asm.Register) {
	a.sseScalar(0xf2, []byte{0x0f, 0xc2}, src, dst)
	a.byte(pred)
}

// Conversions. The 64 suffix selects REX.W on the GPR side.

func (a *Assembler) CVTSS2SD(src, dst asm.Register) { a.sseScalar(0xf3, []byte{0x0f, 0x5a}, src, dst) }
func (a *Assembler) CVTSD2SS(src, dst asm.Register) { a.sseScalar(0xf2, []byte{0x0f, 0x5a}, src, dst) }

func (a *Assembler) CVTSI2SS(src, dst asm.Register) {
	a.opRegReg(0xf3, []byte{0x0f, 0x2a}, enc(dst), enc(src), rex32)
}

func (a *Assembler) CVTSI2SD(src, dst asm.Register) {
	a.opRegReg(0xf2, []byte{0x0f, 0x2a}, enc(dst), enc(src), rex32)
}

func (a *Assembler) CVTSQ2SD(src, dst asm.Register) {
	a.opRegReg(0xf2, []byte{0x0f, 0x2a}, enc(dst), enc(src), rex64)
}

func (a *Assembler) CVTSQ2SS(src, dst asm.Register) {
	a.opRegReg(0xf3, []byte{0x0f, 0x2a}, enc(dst), enc(src), rex64)
}

func (a *Assembler) CVTSD2SI(src, dst asm.Register) {
	a.opRegReg(0xf2, []byte{0x0f, 0x2d}, enc(dst), enc(src), rex32)
}

func (a *Assembler) CVTTSD2SI(src, dst asm.Register) {
	a.opRegReg(0xf2, []byte{0x0f, 0x2c}, enc(dst), enc(src), rex32)
}

func (a *Assembler) CVTSD2SQ(src, dst asm.Register) {
	a.opRegReg(0xf2, []byte{0x0f, 0x2d}, enc(dst), enc(src), rex64)
}

func (a *Assembler) CVTTSD2SQ(src, dst asm.Register) {
	a.opRegReg(0xf2, []byte{0x0f, 0x2c}, enc(dst), enc(src), rex64)
}

func (a *Assembler) CVTSS2SI(src, dst asm.Register) {
	a.opRegReg(0xf3, []byte{0x0f, 0x2d}, enc(dst), enc(src), rex32)
}

func (a *Assembler) CVTTSS2SI(src, dst asm.Register) {
	a.opRegReg(0xf3, []byte{0x0f, 0x2c}, enc(dst), enc(src), rex32)
}

// Packed integer arithmetic.

func (a *Assembler) PADDB(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xfc}, src, dst) }
func (a *Assembler) PADDW(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xfd}, src, dst) }
func (a *Assembler) PADDD(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xfe}, src, dst) }
func (a *Assembler) PSUBB(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xf8}, src, dst) }
func (a *Assembler) PSUBW(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xf9}, src, dst) }
func (a *Assembler) PSUBD(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xfa}, src, dst) }
func (a *Assembler) PADDSB(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xec}, src, dst) }
func (a *Assembler) PADDSW(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xed}, src, dst) }
func (a *Assembler) PADDUSB(src, dst asm.Register) { a.sse66([]byte{0x0f, 0xdc}, src, dst) }
func (a *Assembler) PADDUSW(src, dst asm.Register) { a.sse66([]byte{0x0f, 0xdd}, src, dst) }
func (a *Assembler) PSUBSB(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xe8}, src, dst) }
func (a *Assembler) PSUBSW(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xe9}, src, dst) }
func (a *Assembler) PSUBUSB(src, dst asm.Register) { a.sse66([]byte{0x0f, 0xd8}, src, dst) }
func (a *Assembler) PSUBUSW(src, dst asm.Register) { a.sse66([]byte{0x0f, 0xd9}, src, dst) }
func (a *Assembler) PAVGB(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xe0}, src, dst) }
func (a *Assembler) PMAXUB(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xde}, src, dst) }
func (a *Assembler) PMAXUW(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0x38, 0x3e}, src, dst) }
func (a *Assembler) PMINUB(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xda}, src, dst) }
func (a *Assembler) PCMPEQB(src, dst asm.Register) { a.sse66([]byte{0x0f, 0x74}, src, dst) }
func (a *Assembler) PCMPEQW(src, dst asm.Register) { a.sse66([]byte{0x0f, 0x75}, src, dst) }
func (a *Assembler) PCMPGTB(src, dst asm.Register) { a.sse66([]byte{0x0f, 0x64}, src, dst) }
func (a *Assembler) PCMPGTW(src, dst asm.Register) { a.sse66([]byte{0x0f, 0x65}, src, dst) }
func (a *Assembler) PAND(src, dst asm.Register)    { a.sse66([]byte{0x0f, 0xdb}, src, dst) }
func (a *Assembler) PANDN(src, dst asm.Register)   { a.sse66([]byte{0x0f, 0xdf}, src, dst) }
func (a *Assembler) POR(src, dst asm.Register)     { a.sse66([]byte{0x0f, 0xeb}, src, dst) }
func (a *Assembler) PXOR(src, dst asm.Register)    { a.sse66([]byte{0x0f, 0xef}, src, dst) }
func (a *Assembler) PSADBW(src, dst asm.Register)  { a.sse66([]byte{0x0f, 0xf6}, src, dst) }

func (a *Assembler) PSHUFB(src, dst asm.Register) {
	a.sse66([]byte{0x0f, 0x38, 0x00}, src, dst)
}

func (a *Assembler) PMOVMSKB(src, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0xd7}, enc(dst), enc(src), rex32)
}

// Packed shifts by immediate use the /ext group encodings.

func (a *Assembler) PSLLWconst(imm byte, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x71}, 6, enc(dst), rex32)
	a.byte(imm)
}

func (a *Assembler) PSRLWconst(imm byte, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x71}, 2, enc(dst), rex32)
	a.byte(imm)
}

func (a *Assembler) PSLLDconst(imm byte, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x72}, 6, enc(dst), rex32)
	a.byte(imm)
}

func (a *Assembler) PSRLDconst(imm byte, dst asm.Register) {
	a.opRegReg(0x66, []byte{0x0f, 0x72}, 2, enc(dst), rex32)
	a.byte(imm)
}

// PEXTL is the BMI2 parallel bit extract: dst = pext(src1, src2).
// VEX.LZ.F3.0F38.W0 F5 /r, with src1 in the VEX vvvv field.
func (a *Assembler) PEXTL(src1, src2, dst asm.Register) {
	d, s2 := enc(dst), enc(src2)
	a.byte(0xc4)
	a.byte(0xe2 &^ (d.rexBit() << 7) &^ (s2.rexBit() << 5)) // ~R, ~X=1, ~B, mmmmm=0F38
	a.byte(0x02 | (^byte(enc(src1))&0x0f)<<3)               // W=0, ~vvvv, L=0, pp=F3
	a.byte(0xf5)
	a.byte(modRM(3, d.encoding(), s2.encoding()))
}
