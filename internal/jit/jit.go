package jit

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/dynarec/krait/internal/ir"
)

// TranslateFunc is the front-end: it decodes guest instructions starting at
// the location's PC and returns the IR block to compile. It must honour the
// location's instruction set and endianness bits.
type TranslateFunc func(loc ir.LocationDescriptor) *ir.Block

// minBlockSpace is the emission headroom required before compiling another
// block. Dropping below it clears the whole cache rather than risking an
// overrun mid-block.
const minBlockSpace = 64 * 1024

// Jit owns a code cache, the emitter working into it and one guest state,
// and runs the compile-on-miss dispatch loop over them.
type Jit struct {
	code      *BlockOfCode
	emitter   *Emitter
	state     *State
	translate TranslateFunc
}

// New maps a code cache of cfg.CodeCacheSize bytes and prepares a fresh
// guest state.
func New(cfg *Config, translate TranslateFunc) (*Jit, error) {
	if translate == nil {
		return nil, errors.New("jit: translate function is required")
	}
	size := cfg.CodeCacheSize
	if size == 0 {
		size = DefaultCodeCacheSize
	}
	code, err := NewBlockOfCode(size)
	if err != nil {
		return nil, fmt.Errorf("jit: mapping code cache: %w", err)
	}
	return &Jit{
		code:      code,
		emitter:   NewEmitter(code, cfg),
		state:     NewState(),
		translate: translate,
	}, nil
}

// State returns the guest context. It may be mutated freely between runs,
// never during one.
func (j *Jit) State() *State { return j.state }

// Run executes guest code until the cycle budget is spent or a halt request
// is observed, and returns the number of cycles actually consumed. Blocks
// may overrun their budget by their own length, so the return value can
// exceed cycles.
func (j *Jit) Run(cycles int64) int64 {
	s := j.state
	s.HaltRequested = 0
	s.CyclesToRun = cycles
	s.CyclesRemaining = cycles
	for s.CyclesRemaining > 0 && s.HaltRequested == 0 {
		desc := j.blockFor(s.Location())
		jitEnter(j.code.RunCodeAddress(), unsafe.Pointer(s), desc.EntryPtr)
	}
	return cycles - s.CyclesRemaining
}

// Step executes the single block at the current location with a one-cycle
// budget, so linked successors return to the dispatcher immediately.
func (j *Jit) Step() int64 {
	s := j.state
	s.HaltRequested = 0
	s.CyclesToRun = 1
	s.CyclesRemaining = 1
	desc := j.blockFor(s.Location())
	jitEnter(j.code.RunCodeAddress(), unsafe.Pointer(s), desc.EntryPtr)
	return 1 - s.CyclesRemaining
}

func (j *Jit) blockFor(loc ir.LocationDescriptor) BlockDescriptor {
	if desc, ok := j.emitter.GetBasicBlock(loc); ok {
		return desc
	}
	if j.code.SpaceRemaining() < minBlockSpace {
		j.ClearCache()
	}
	return j.emitter.Emit(j.translate(loc))
}

// HaltExecution requests that the current run stop at the next halt check or
// dispatcher return. Safe to call from another goroutine; the flag only
// transitions from zero to one while a run is in flight.
func (j *Jit) HaltExecution() {
	j.state.HaltRequested = 1
}

// ClearCache invalidates every compiled block, rewinds the code cache and
// poisons the RSB so stale code pointers cannot be reentered.
func (j *Jit) ClearCache() {
	j.emitter.ClearCache()
	j.code.ClearCache()
	j.state.ResetRSB()
}

// Close unmaps the code cache. The Jit must not be used afterwards.
func (j *Jit) Close() error {
	return j.code.Close()
}
