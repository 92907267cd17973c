package ir

import "fmt"

// Reg is a guest general purpose register, R0 through R15. R15 is the PC.
type Reg byte

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
)

func (r Reg) String() string {
	switch r {
	case SP:
		return "SP"
	case LR:
		return "LR"
	case PC:
		return "PC"
	default:
		return fmt.Sprintf("R%d", byte(r))
	}
}

// ExtReg is a guest VFP extended register. S0..S31 are the single precision
// views, D0..D31 the double precision views; Dn aliases S2n and S2n+1.
type ExtReg byte

const (
	S0  ExtReg = 0
	S31 ExtReg = 31
	D0  ExtReg = 32
	D31 ExtReg = 63
)

// ExtRegS returns the n'th single precision register.
func ExtRegS(n int) ExtReg { return ExtReg(n) }

// ExtRegD returns the n'th double precision register.
func ExtRegD(n int) ExtReg { return ExtReg(32 + n) }

// IsSingle reports whether e is one of the S registers.
func (e ExtReg) IsSingle() bool { return e < D0 }

// Index returns the register number within its precision class.
func (e ExtReg) Index() int {
	if e.IsSingle() {
		return int(e)
	}
	return int(e - D0)
}

func (e ExtReg) String() string {
	if e.IsSingle() {
		return fmt.Sprintf("S%d", e.Index())
	}
	return fmt.Sprintf("D%d", e.Index())
}
