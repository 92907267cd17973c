package jit

import "unsafe"

// jitEnter transfers control to the run-code thunk with the guest state and
// block entry pointer in the first two System V argument registers.
// Implemented in entry_amd64.s.
//
//go:noescape
func jitEnter(runCode uintptr, state unsafe.Pointer, target uintptr)
