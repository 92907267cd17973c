// Package asm provides the register-neutral building blocks shared by the
// architecture-specific assemblers: the register handle type and the
// executable code segment generated code is written into.
package asm

// Register represents a host register handle. The zero value is NilRegister
// so that an unset field never aliases a real register.
type Register byte

// NilRegister is the zero value of Register, meaning "no register".
const NilRegister Register = 0
