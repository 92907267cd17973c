package platform

import "github.com/klauspost/cpuid/v2"

// CpuFeatures reports which optional host extensions the emitter may use.
// HasLZCNT, HasBMI2 and HasSSSE3 each gate a faster encoding whose fallback
// is always available.
type CpuFeatures struct {
	// HasLZCNT selects LZCNT for count-leading-zeros over the BSR fallback.
	HasLZCNT bool
	// HasBMI2 selects PEXT for GE-bit compression over the imul idiom.
	HasBMI2 bool
	// HasSSSE3 selects PSHUFB paths for packed byte arithmetic.
	HasSSSE3 bool
	// HasSSE41 reports SSE4.1 support. No emitter consults it; the SSE4.1
	// PMAXUW in the packed unsigned halfword GE sequence is emitted
	// regardless.
	HasSSE41 bool
}

// DetectCpuFeatures probes the host once at startup.
func DetectCpuFeatures() CpuFeatures {
	return CpuFeatures{
		HasLZCNT: cpuid.CPU.Supports(cpuid.LZCNT),
		HasBMI2:  cpuid.CPU.Supports(cpuid.BMI2),
		HasSSSE3: cpuid.CPU.Supports(cpuid.SSSE3),
		HasSSE41: cpuid.CPU.Supports(cpuid.SSE4),
	}
}
