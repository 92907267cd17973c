// Package krait recompiles 32-bit ARM and Thumb guest code to x86-64 at
// runtime. The embedder supplies the guest memory system as callbacks and a
// front-end translator producing IR blocks; krait compiles those blocks into
// a shared code cache, links them to each other, and dispatches guest
// execution through them until a cycle budget runs out or a halt is
// requested.
package krait

import (
	"fmt"

	"github.com/dynarec/krait/internal/ir"
	"github.com/dynarec/krait/internal/jit"
	"github.com/dynarec/krait/internal/platform"
	"github.com/xyproto/env/v2"
)

// PageTableEntries is the slot count of an embedder-provided page table.
// Each slot maps one 4KiB guest page to a host pointer, or zero for pages
// that must go through the memory callbacks.
const PageTableEntries = jit.PageTableEntries

// Guest-visible collaborator types, shared with the backend.
type (
	// State is the guest register file and execution context.
	State = jit.State

	// Callbacks are C ABI function pointers invoked directly by compiled
	// code; see the field comments on jit.Callbacks for their signatures.
	Callbacks = jit.Callbacks

	// Coprocessor decides at compile time how accesses to one coprocessor
	// are emitted.
	Coprocessor = jit.Coprocessor

	// CoprocReg names one of the sixteen coprocessor registers C0..C15.
	CoprocReg = jit.CoprocReg

	// CoprocCallback is a host routine handling a coprocessor access.
	CoprocCallback = jit.CoprocCallback

	// CoprocAction is the compiled form of one coprocessor access.
	CoprocAction              = jit.CoprocAction
	CoprocActionCallback      = jit.CoprocActionCallback
	CoprocActionDirectPtr     = jit.CoprocActionDirectPtr
	CoprocActionDirectPtrPair = jit.CoprocActionDirectPtrPair

	// TranslateFunc is the front-end decoder contract.
	TranslateFunc = jit.TranslateFunc

	// LocationDescriptor identifies a guest execution context precisely
	// enough that one translation is valid for it.
	LocationDescriptor = ir.LocationDescriptor
)

// Config assembles everything a Jit needs from its embedder.
type Config struct {
	// Callbacks service memory accesses, supervisor calls and interpreter
	// fallbacks from compiled code. All fields must be set.
	Callbacks Callbacks

	// Translate builds the IR block for a guest location. Required.
	Translate TranslateFunc

	// PageTable, when non-nil, enables the inline fast path for guest
	// memory accesses. Nil entries fall back to the callbacks.
	PageTable *[PageTableEntries]uintptr

	// Coprocessors occupies slots 0..15; accesses to nil slots emit an
	// INT3 trap.
	Coprocessors [16]Coprocessor

	// CodeCacheSize is the fixed size of the executable region in bytes.
	// Zero selects the default of 128MiB.
	CodeCacheSize int
}

// Environment overrides for debugging the emitter's instruction selection.
// Forcing a fallback path keeps it testable on hosts whose CPUs would
// otherwise always take the fast path.
const (
	// EnvForceSWAR clears the SSSE3 and SSE4.1 feature flags, so the
	// unsigned byte halving add takes its general-purpose-register
	// fallback; the other packed operations emit the same code either way.
	EnvForceSWAR = "KRAIT_FORCE_SWAR"

	// EnvForceBSR disables LZCNT in favour of the BSR fallback.
	EnvForceBSR = "KRAIT_FORCE_BSR"
)

func cpuFeatures() platform.CpuFeatures {
	features := platform.DetectCpuFeatures()
	if env.Bool(EnvForceSWAR) {
		features.HasSSSE3 = false
		features.HasSSE41 = false
	}
	if env.Bool(EnvForceBSR) {
		features.HasLZCNT = false
	}
	return features
}

// Jit is one recompiler instance: a code cache, the state of a single guest
// core and the dispatch loop over them. Instances are independent; one
// instance must only be entered from one goroutine at a time.
type Jit struct {
	backend *jit.Jit
}

// NewJit maps the code cache and prepares a guest state with all registers
// zero and the RSB poisoned.
func NewJit(config Config) (*Jit, error) {
	if config.Translate == nil {
		return nil, fmt.Errorf("krait: config needs a Translate function")
	}
	backend, err := jit.New(&jit.Config{
		Callbacks:     config.Callbacks,
		PageTable:     config.PageTable,
		Coprocessors:  config.Coprocessors,
		CpuFeatures:   cpuFeatures(),
		CodeCacheSize: config.CodeCacheSize,
	}, config.Translate)
	if err != nil {
		return nil, err
	}
	return &Jit{backend: backend}, nil
}

// Run executes guest code until at least the given number of cycles is spent
// or HaltExecution takes effect, and returns the cycles consumed.
func (j *Jit) Run(cycles int64) int64 { return j.backend.Run(cycles) }

// Step executes the single block at the current guest location.
func (j *Jit) Step() int64 { return j.backend.Step() }

// HaltExecution makes the current Run return at the next halt check. It is
// the only method safe to call from another goroutine during a run.
func (j *Jit) HaltExecution() { j.backend.HaltExecution() }

// ClearCache drops every compiled block. Call it after guest code in
// already-translated pages has been modified.
func (j *Jit) ClearCache() { j.backend.ClearCache() }

// Close releases the code cache.
func (j *Jit) Close() error { return j.backend.Close() }

// Regs returns the guest general purpose registers. R15 is the PC.
func (j *Jit) Regs() *[16]uint32 { return &j.backend.State().Regs }

// ExtRegs returns the guest VFP register file viewed as 32-bit slots.
func (j *Jit) ExtRegs() *[64]uint32 { return &j.backend.State().ExtRegs }

// Cpsr returns the guest program status register.
func (j *Jit) Cpsr() uint32 { return j.backend.State().Cpsr }

// SetCpsr replaces the guest program status register.
func (j *Jit) SetCpsr(cpsr uint32) { j.backend.State().Cpsr = cpsr }

// Fpscr reassembles the architectural FPSCR.
func (j *Jit) Fpscr() uint32 { return j.backend.State().Fpscr() }

// SetFpscr installs an architectural FPSCR value, recomputing the rounding
// and flush-to-zero control compiled code runs under.
func (j *Jit) SetFpscr(fpscr uint32) { j.backend.State().SetFpscr(fpscr) }

// State exposes the full guest context for embedders that need direct
// access, such as interpreter fallbacks and savestates.
func (j *Jit) State() *State { return j.backend.State() }

// Location describes the guest execution context the next Run would enter.
func (j *Jit) Location() LocationDescriptor { return j.backend.State().Location() }
