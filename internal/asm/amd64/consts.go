package amd64

import "github.com/dynarec/krait/internal/asm"

// AMD64 registers.
//
// Note: naming convension is exactly the same as Go assembler: https://go.dev/doc/asm
const (
	REG_AX asm.Register = asm.NilRegister + 1 + iota
	REG_CX
	REG_DX
	REG_BX
	REG_SP
	REG_BP
	REG_SI
	REG_DI
	REG_R8
	REG_R9
	REG_R10
	REG_R11
	REG_R12
	REG_R13
	REG_R14
	REG_R15

	REG_X0
	REG_X1
	REG_X2
	REG_X3
	REG_X4
	REG_X5
	REG_X6
	REG_X7
	REG_X8
	REG_X9
	REG_X10
	REG_X11
	REG_X12
	REG_X13
	REG_X14
	REG_X15
)

// IsIntRegister returns true if r is a general purpose register.
func IsIntRegister(r asm.Register) bool {
	return REG_AX <= r && r <= REG_R15
}

// IsXmmRegister returns true if r is an XMM register.
func IsXmmRegister(r asm.Register) bool {
	return REG_X0 <= r && r <= REG_X15
}

// regEnc is the hardware encoding of a register, 0..15.
type regEnc byte

func (r regEnc) rexBit() byte {
	return byte(r) >> 3
}

func (r regEnc) encoding() byte {
	return byte(r) & 0x07
}

func enc(r asm.Register) regEnc {
	switch {
	case IsIntRegister(r):
		return regEnc(r - REG_AX)
	case IsXmmRegister(r):
		return regEnc(r - REG_X0)
	default:
		panic("BUG: encoding requested for nil register")
	}
}

// RegisterName returns the Go-assembler name of r for diagnostics.
func RegisterName(r asm.Register) string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return "nil"
}

var registerNames = map[asm.Register]string{
	REG_AX: "AX", REG_CX: "CX", REG_DX: "DX", REG_BX: "BX",
	REG_SP: "SP", REG_BP: "BP", REG_SI: "SI", REG_DI: "DI",
	REG_R8: "R8", REG_R9: "R9", REG_R10: "R10", REG_R11: "R11",
	REG_R12: "R12", REG_R13: "R13", REG_R14: "R14", REG_R15: "R15",
	REG_X0: "X0", REG_X1: "X1", REG_X2: "X2", REG_X3: "X3",
	REG_X4: "X4", REG_X5: "X5", REG_X6: "X6", REG_X7: "X7",
	REG_X8: "X8", REG_X9: "X9", REG_X10: "X10", REG_X11: "X11",
	REG_X12: "X12", REG_X13: "X13", REG_X14: "X14", REG_X15: "X15",
}

// Cond is an x86 condition code, the low nibble of the 0F 8x / 0F 9x / 0F 4x
// opcode families.
// https://www.intel.com/content/dam/www/public/us/en/documents/manuals/64-ia-32-architectures-software-developer-instruction-set-reference-manual-325383.pdf
type Cond byte

const (
	CondO  Cond = 0x0 // OF set
	CondNO Cond = 0x1
	CondB  Cond = 0x2 // CF set (unsigned <)
	CondNB Cond = 0x3 // CF clear (unsigned >=)
	CondZ  Cond = 0x4 // ZF set
	CondNZ Cond = 0x5
	CondBE Cond = 0x6 // CF or ZF (unsigned <=)
	CondA  Cond = 0x7 // unsigned >
	CondS  Cond = 0x8 // SF set
	CondNS Cond = 0x9
	CondP  Cond = 0xa // PF set
	CondNP Cond = 0xb
	CondL  Cond = 0xc // signed <
	CondGE Cond = 0xd
	CondLE Cond = 0xe
	CondG  Cond = 0xf
)

// Invert returns the opposite condition.
func (c Cond) Invert() Cond {
	return c ^ 1
}

func (c Cond) String() string {
	return condNames[c]
}

var condNames = [16]string{
	"O", "NO", "B", "NB", "Z", "NZ", "BE", "A",
	"S", "NS", "P", "NP", "L", "GE", "LE", "G",
}
