//go:build !amd64

package jit

import (
	"runtime"
	"unsafe"
)

func jitEnter(uintptr, unsafe.Pointer, uintptr) {
	panic(runtime.GOARCH)
}
