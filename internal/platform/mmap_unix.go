//go:build darwin || linux || freebsd

package platform

import "golang.org/x/sys/unix"

// The region must be RWX: RW for writing and patching native code, X for
// executing it while patch sites remain rewritable.
func mmapCodeSegment(size int) ([]byte, error) {
	return unix.Mmap(
		-1,
		0,
		size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
}

func munmapCodeSegment(code []byte) error {
	return unix.Munmap(code)
}
