package jit

import (
	"fmt"

	"github.com/dynarec/krait/internal/asm"
	"github.com/dynarec/krait/internal/asm/amd64"
	"github.com/dynarec/krait/internal/ir"
)

// StateReg is pinned to the guest state pointer for the lifetime of emitted
// code and is never handed out by the allocator.
const StateReg = amd64.REG_R15

// hostLoc indexes the flat storage space the allocator manages: the sixteen
// general registers, the sixteen XMM registers, then the spill slots in the
// guest state struct.
type hostLoc int

const (
	hostLocFirstGPR  hostLoc = 0
	hostLocFirstXmm  hostLoc = 16
	hostLocFirstSpill hostLoc = 32
	hostLocCount      = int(hostLocFirstSpill) + SpillCount
)

func (h hostLoc) isGPR() bool   { return h >= hostLocFirstGPR && h < hostLocFirstXmm }
func (h hostLoc) isXmm() bool   { return h >= hostLocFirstXmm && h < hostLocFirstSpill }
func (h hostLoc) isSpill() bool { return h >= hostLocFirstSpill }

func (h hostLoc) reg() asm.Register {
	switch {
	case h.isGPR():
		return amd64.REG_AX + asm.Register(h)
	case h.isXmm():
		return amd64.REG_X0 + asm.Register(h-hostLocFirstXmm)
	default:
		panic(fmt.Errorf("BUG: host location %d is not a register", h))
	}
}

func (h hostLoc) spillMem() amd64.Mem {
	if !h.isSpill() {
		panic(fmt.Errorf("BUG: host location %d is not a spill slot", h))
	}
	return amd64.M(StateReg, OffsetSpillSlot(int(h-hostLocFirstSpill)))
}

func locOfReg(r asm.Register) hostLoc {
	switch {
	case amd64.IsIntRegister(r):
		return hostLoc(r - amd64.REG_AX)
	case amd64.IsXmmRegister(r):
		return hostLocFirstXmm + hostLoc(r-amd64.REG_X0)
	default:
		panic(fmt.Errorf("BUG: %s is not an allocatable register", amd64.RegisterName(r)))
	}
}

// gprAllocOrder excludes RSP and the pinned state register.
var gprAllocOrder = []hostLoc{
	locOfReg(amd64.REG_AX), locOfReg(amd64.REG_BX), locOfReg(amd64.REG_CX),
	locOfReg(amd64.REG_DX), locOfReg(amd64.REG_SI), locOfReg(amd64.REG_DI),
	locOfReg(amd64.REG_BP), locOfReg(amd64.REG_R8), locOfReg(amd64.REG_R9),
	locOfReg(amd64.REG_R10), locOfReg(amd64.REG_R11), locOfReg(amd64.REG_R12),
	locOfReg(amd64.REG_R13), locOfReg(amd64.REG_R14),
}

var xmmAllocOrder = []hostLoc{
	locOfReg(amd64.REG_X0), locOfReg(amd64.REG_X1), locOfReg(amd64.REG_X2),
	locOfReg(amd64.REG_X3), locOfReg(amd64.REG_X4), locOfReg(amd64.REG_X5),
	locOfReg(amd64.REG_X6), locOfReg(amd64.REG_X7), locOfReg(amd64.REG_X8),
	locOfReg(amd64.REG_X9), locOfReg(amd64.REG_X10), locOfReg(amd64.REG_X11),
	locOfReg(amd64.REG_X12), locOfReg(amd64.REG_X13), locOfReg(amd64.REG_X14),
	locOfReg(amd64.REG_X15),
}

// System V argument registers, in order, and the caller-saved set that
// HostCall must not leave live values in.
var (
	hostCallArgRegs = []asm.Register{amd64.REG_DI, amd64.REG_SI, amd64.REG_DX, amd64.REG_CX}

	callerSavedGPRs = []hostLoc{
		locOfReg(amd64.REG_AX), locOfReg(amd64.REG_CX), locOfReg(amd64.REG_DX),
		locOfReg(amd64.REG_SI), locOfReg(amd64.REG_DI), locOfReg(amd64.REG_R8),
		locOfReg(amd64.REG_R9), locOfReg(amd64.REG_R10), locOfReg(amd64.REG_R11),
	}
)

type hostLocInfo struct {
	// values currently resident in this location. More than one entry means
	// RegisterAddDef aliased extra definitions onto the same storage.
	values []*ir.Inst
	// locked marks the location as referenced by the instruction currently
	// being emitted. Locked locations are never moved or reallocated.
	locked bool
	// scratch marks a short-lived allocation with no IR value attached.
	scratch bool
}

// RegAlloc binds IR values to host registers and spill slots while a block
// is emitted. It counts down the remaining uses of every defined value and
// frees storage as counts reach zero at instruction boundaries.
type RegAlloc struct {
	asm       *amd64.Assembler
	locs      [hostLocCount]hostLocInfo
	remaining map[*ir.Inst]int
}

func NewRegAlloc(a *amd64.Assembler) *RegAlloc {
	return &RegAlloc{asm: a, remaining: make(map[*ir.Inst]int)}
}

// Reset discards all bindings.
func (r *RegAlloc) Reset() {
	for i := range r.locs {
		r.locs[i] = hostLocInfo{}
	}
	r.remaining = make(map[*ir.Inst]int)
}

func (r *RegAlloc) totalRemaining(h hostLoc) int {
	n := 0
	for _, v := range r.locs[h].values {
		n += r.remaining[v]
	}
	return n
}

func (r *RegAlloc) findValue(inst *ir.Inst) (hostLoc, bool) {
	for i := range r.locs {
		for _, v := range r.locs[i].values {
			if v == inst {
				return hostLoc(i), true
			}
		}
	}
	return 0, false
}

func (r *RegAlloc) mustFindValue(inst *ir.Inst) hostLoc {
	h, ok := r.findValue(inst)
	if !ok {
		panic(fmt.Errorf("BUG: use of %s before its definition", inst.Op()))
	}
	return h
}

func (r *RegAlloc) decrementUses(inst *ir.Inst) {
	n, ok := r.remaining[inst]
	if !ok || n <= 0 {
		panic(fmt.Errorf("BUG: %s used more often than its use count", inst.Op()))
	}
	r.remaining[inst] = n - 1
}

// Use returns a read-only register binding for v. Immediates are materialised
// into a scratch register. An optional desired register forces the binding
// there, evicting the current occupant.
func (r *RegAlloc) Use(v ir.Value, desired ...asm.Register) asm.Register {
	if v.IsImmediate() {
		reg := r.Scratch(desired...)
		r.loadImmediate(v, reg)
		return reg
	}
	inst := v.Inst()
	h := r.mustFindValue(inst)
	r.decrementUses(inst)
	h = r.settle(h, gprAllocOrder, desired)
	r.locs[h].locked = true
	return h.reg()
}

// UseXmm is Use for values that live in the XMM file.
func (r *RegAlloc) UseXmm(v ir.Value) asm.Register {
	if v.IsImmediate() {
		panic(fmt.Errorf("BUG: immediate used as an XMM value"))
	}
	inst := v.Inst()
	h := r.mustFindValue(inst)
	r.decrementUses(inst)
	h = r.settle(h, xmmAllocOrder, nil)
	r.locs[h].locked = true
	return h.reg()
}

// settle ensures the binding at h lives in a register, honouring a desired
// target, and returns the (possibly new) location of the binding.
func (r *RegAlloc) settle(h hostLoc, order []hostLoc, desired []asm.Register) hostLoc {
	if len(desired) > 0 {
		want := locOfReg(desired[0])
		if h != want {
			r.evict(want, order)
			r.moveBinding(want, h)
			h = want
		}
		return h
	}
	if h.isSpill() {
		dst := r.allocFree(order)
		r.moveBinding(dst, h)
		h = dst
	}
	return h
}

// UseScratch returns v in a register the caller may freely clobber. Other
// pending users of v keep their own copy.
func (r *RegAlloc) UseScratch(v ir.Value, desired ...asm.Register) asm.Register {
	if v.IsImmediate() {
		reg := r.Scratch(desired...)
		r.loadImmediate(v, reg)
		return reg
	}
	return r.useScratchAt(v.Inst(), gprAllocOrder, desired)
}

// UseScratchXmm is UseScratch for XMM values.
func (r *RegAlloc) UseScratchXmm(v ir.Value) asm.Register {
	if v.IsImmediate() {
		panic(fmt.Errorf("BUG: immediate used as an XMM value"))
	}
	return r.useScratchAt(v.Inst(), xmmAllocOrder, nil)
}

func (r *RegAlloc) useScratchAt(inst *ir.Inst, order []hostLoc, desired []asm.Register) asm.Register {
	h := r.mustFindValue(inst)
	info := &r.locs[h]

	// If this is the very last use of everything in the location, take the
	// storage over instead of copying.
	if r.totalRemaining(h) == 1 && r.remaining[inst] == 1 && !info.locked && !h.isSpill() {
		if len(desired) == 0 || locOfReg(desired[0]) == h {
			r.decrementUses(inst)
			info.values = nil
			info.scratch = true
			info.locked = true
			return h.reg()
		}
	}

	var dst hostLoc
	if len(desired) > 0 {
		dst = locOfReg(desired[0])
		r.evict(dst, order)
	} else {
		dst = r.allocFree(order)
	}
	r.emitMove(dst, h)
	r.decrementUses(inst)
	d := &r.locs[dst]
	d.scratch = true
	d.locked = true
	return dst.reg()
}

// Def reserves a register as the definition of inst and begins its use count.
func (r *RegAlloc) Def(inst *ir.Inst, desired ...asm.Register) asm.Register {
	return r.defAt(inst, gprAllocOrder, desired)
}

// DefXmm is Def into the XMM file.
func (r *RegAlloc) DefXmm(inst *ir.Inst) asm.Register {
	return r.defAt(inst, xmmAllocOrder, nil)
}

func (r *RegAlloc) defAt(inst *ir.Inst, order []hostLoc, desired []asm.Register) asm.Register {
	if _, ok := r.remaining[inst]; ok {
		panic(fmt.Errorf("BUG: %s defined twice", inst.Op()))
	}
	var h hostLoc
	if len(desired) > 0 {
		h = locOfReg(desired[0])
		r.evict(h, order)
	} else {
		h = r.allocFree(order)
	}
	info := &r.locs[h]
	info.values = []*ir.Inst{inst}
	info.locked = true
	r.remaining[inst] = inst.UseCount()
	return h.reg()
}

// UseDef returns a register holding v that doubles as the definition of inst.
// When this use is the last reference to v the storage is rebound in place,
// otherwise v is copied first.
func (r *RegAlloc) UseDef(v ir.Value, inst *ir.Inst, desired ...asm.Register) asm.Register {
	if !v.IsImmediate() {
		vi := v.Inst()
		h := r.mustFindValue(vi)
		info := &r.locs[h]
		if r.totalRemaining(h) == 1 && r.remaining[vi] == 1 && !info.locked && !h.isSpill() {
			if len(desired) == 0 || locOfReg(desired[0]) == h {
				r.decrementUses(vi)
				info.values = []*ir.Inst{inst}
				info.locked = true
				r.remaining[inst] = inst.UseCount()
				return h.reg()
			}
		}
	}
	reg := r.UseScratch(v, desired...)
	h := locOfReg(reg)
	info := &r.locs[h]
	info.scratch = false
	info.values = []*ir.Inst{inst}
	r.remaining[inst] = inst.UseCount()
	return reg
}

// UseDefXmm is UseDef in the XMM file.
func (r *RegAlloc) UseDefXmm(v ir.Value, inst *ir.Inst) asm.Register {
	vi := v.Inst()
	h := r.mustFindValue(vi)
	info := &r.locs[h]
	if r.totalRemaining(h) == 1 && r.remaining[vi] == 1 && !info.locked && !h.isSpill() {
		r.decrementUses(vi)
		info.values = []*ir.Inst{inst}
		info.locked = true
		r.remaining[inst] = inst.UseCount()
		return h.reg()
	}
	reg := r.UseScratchXmm(v)
	h = locOfReg(reg)
	info = &r.locs[h]
	info.scratch = false
	info.values = []*ir.Inst{inst}
	r.remaining[inst] = inst.UseCount()
	return reg
}

// Scratch returns a register with no IR value attached, released at the end
// of the current allocation scope.
func (r *RegAlloc) Scratch(desired ...asm.Register) asm.Register {
	var h hostLoc
	if len(desired) > 0 {
		h = locOfReg(desired[0])
		r.evict(h, gprAllocOrder)
	} else {
		h = r.allocFree(gprAllocOrder)
	}
	info := &r.locs[h]
	info.scratch = true
	info.locked = true
	return h.reg()
}

// ScratchXmm is Scratch in the XMM file.
func (r *RegAlloc) ScratchXmm() asm.Register {
	h := r.allocFree(xmmAllocOrder)
	info := &r.locs[h]
	info.scratch = true
	info.locked = true
	return h.reg()
}

// OpArg is either a register binding or a direct memory reference to a spill
// slot, letting emitters fuse the load into the consuming instruction.
type OpArg struct {
	isMem bool
	reg   asm.Register
	mem   amd64.Mem
}

func (o OpArg) IsMem() bool { return o.isMem }

func (o OpArg) Reg() asm.Register {
	if o.isMem {
		panic(fmt.Errorf("BUG: memory operand used as a register"))
	}
	return o.reg
}

func (o OpArg) Mem() amd64.Mem {
	if !o.isMem {
		panic(fmt.Errorf("BUG: register operand used as memory"))
	}
	return o.mem
}

// UseOpArg returns v as either its register binding or its spill slot,
// whichever it currently occupies.
func (r *RegAlloc) UseOpArg(v ir.Value) OpArg {
	if v.IsImmediate() {
		panic(fmt.Errorf("BUG: immediate passed to UseOpArg"))
	}
	inst := v.Inst()
	h := r.mustFindValue(inst)
	r.decrementUses(inst)
	r.locs[h].locked = true
	if h.isSpill() {
		return OpArg{isMem: true, mem: h.spillMem()}
	}
	return OpArg{reg: h.reg()}
}

// DiscardUse consumes one pending use of v without binding it anywhere.
// Emitters call this for arguments they prove dead.
func (r *RegAlloc) DiscardUse(v ir.Value) {
	if v.IsImmediate() {
		return
	}
	r.decrementUses(v.Inst())
}

// HostCall marshals up to four IR values into the System V argument
// registers, reserves RAX for ret (when non-nil), and evicts every
// caller-saved register so the callee can clobber them freely. The caller
// emits the CALL itself.
func (r *RegAlloc) HostCall(ret *ir.Inst, args ...ir.Value) {
	if len(args) > len(hostCallArgRegs) {
		panic(fmt.Errorf("BUG: host call with %d arguments", len(args)))
	}
	if ret != nil {
		r.defAt(ret, gprAllocOrder, []asm.Register{amd64.REG_AX})
	} else {
		r.Scratch(amd64.REG_AX)
	}
	for i, arg := range args {
		if arg.Kind() == ir.ValueVoid {
			continue
		}
		r.UseScratch(arg, hostCallArgRegs[i])
	}
	for _, h := range callerSavedGPRs {
		if !r.locs[h].locked {
			r.evict(h, gprAllocOrder)
			r.locs[h].scratch = true
			r.locs[h].locked = true
		}
	}
	for _, h := range xmmAllocOrder {
		if !r.locs[h].locked {
			r.evict(h, xmmAllocOrder)
			r.locs[h].scratch = true
			r.locs[h].locked = true
		}
	}
}

// RegisterAddDef aliases inst onto the storage already holding v. Immediates
// are materialised first.
func (r *RegAlloc) RegisterAddDef(inst *ir.Inst, v ir.Value) {
	if _, ok := r.remaining[inst]; ok {
		panic(fmt.Errorf("BUG: %s defined twice", inst.Op()))
	}
	if v.IsImmediate() {
		reg := r.defAt(inst, gprAllocOrder, nil)
		r.loadImmediate(v, reg)
		return
	}
	h := r.mustFindValue(v.Inst())
	r.decrementUses(v.Inst())
	r.locs[h].values = append(r.locs[h].values, inst)
	r.remaining[inst] = inst.UseCount()
}

// EndOfAllocScope unlocks every location, discards scratches, and frees
// storage whose values have no remaining uses.
func (r *RegAlloc) EndOfAllocScope() {
	for i := range r.locs {
		info := &r.locs[i]
		info.locked = false
		if info.scratch {
			info.scratch = false
			info.values = nil
			continue
		}
		live := info.values[:0]
		for _, v := range info.values {
			if r.remaining[v] > 0 {
				live = append(live, v)
			} else {
				delete(r.remaining, v)
			}
		}
		if len(live) == 0 {
			info.values = nil
		} else {
			info.values = live
		}
	}
}

// AssertNoMoreUses panics if any defined value still has pending uses once
// the block's terminal has been emitted.
func (r *RegAlloc) AssertNoMoreUses() {
	for i := range r.locs {
		for _, v := range r.locs[i].values {
			if r.remaining[v] > 0 {
				panic(fmt.Errorf("BUG: %s still has %d uses after the terminal", v.Op(), r.remaining[v]))
			}
		}
	}
}

// allocFree returns an unoccupied, unlocked location from order, spilling a
// victim when everything is occupied.
func (r *RegAlloc) allocFree(order []hostLoc) hostLoc {
	for _, h := range order {
		info := &r.locs[h]
		if !info.locked && len(info.values) == 0 && !info.scratch {
			return h
		}
	}
	for _, h := range order {
		if !r.locs[h].locked {
			r.spill(h)
			return h
		}
	}
	panic(fmt.Errorf("BUG: out of host registers"))
}

// evict empties the target location, relocating any live occupant.
func (r *RegAlloc) evict(h hostLoc, order []hostLoc) {
	info := &r.locs[h]
	if info.locked {
		panic(fmt.Errorf("BUG: evicting locked register %s", amd64.RegisterName(h.reg())))
	}
	if info.scratch || r.totalRemaining(h) == 0 {
		info.values = nil
		info.scratch = false
		return
	}
	for _, dst := range order {
		if dst == h {
			continue
		}
		d := &r.locs[dst]
		if !d.locked && len(d.values) == 0 && !d.scratch {
			r.moveBinding(dst, h)
			return
		}
	}
	r.spill(h)
}

// spill relocates the occupant of h into a free spill slot.
func (r *RegAlloc) spill(h hostLoc) {
	if r.totalRemaining(h) == 0 {
		r.locs[h].values = nil
		return
	}
	for i := 0; i < SpillCount; i++ {
		slot := hostLocFirstSpill + hostLoc(i)
		if len(r.locs[slot].values) == 0 {
			r.moveBinding(slot, h)
			return
		}
	}
	panic(fmt.Errorf("BUG: out of spill slots"))
}

// moveBinding emits the move and transfers the occupant of from into to,
// which must be empty.
func (r *RegAlloc) moveBinding(to, from hostLoc) {
	if len(r.locs[to].values) != 0 || r.locs[to].scratch {
		panic(fmt.Errorf("BUG: move into occupied host location %d", to))
	}
	r.emitMove(to, from)
	r.locs[to].values = r.locs[from].values
	r.locs[from] = hostLocInfo{}
}

func (r *RegAlloc) emitMove(to, from hostLoc) {
	a := r.asm
	switch {
	case to.isGPR() && from.isGPR():
		a.MOVQ(from.reg(), to.reg())
	case to.isGPR() && from.isSpill():
		a.MOVQload(from.spillMem(), to.reg())
	case to.isSpill() && from.isGPR():
		a.MOVQstore(from.reg(), to.spillMem())
	case to.isXmm() && from.isXmm():
		a.MOVAPS(from.reg(), to.reg())
	case to.isXmm() && from.isSpill():
		a.MOVSDload(from.spillMem(), to.reg())
	case to.isSpill() && from.isXmm():
		a.MOVSDstore(from.reg(), to.spillMem())
	case to.isXmm() && from.isGPR():
		a.MOVQregToXmm(from.reg(), to.reg())
	case to.isGPR() && from.isXmm():
		a.MOVQxmmToReg(from.reg(), to.reg())
	default:
		panic(fmt.Errorf("BUG: unsupported move %d <- %d", to, from))
	}
}

func (r *RegAlloc) loadImmediate(v ir.Value, reg asm.Register) {
	var imm uint64
	switch v.Kind() {
	case ir.ValueImmU1:
		if v.U1() {
			imm = 1
		}
	case ir.ValueImmU8:
		imm = uint64(v.U8())
	case ir.ValueImmU32:
		imm = uint64(v.U32())
	case ir.ValueImmU64:
		imm = v.U64()
	default:
		panic(fmt.Errorf("BUG: value kind %d is not a loadable immediate", v.Kind()))
	}
	switch {
	case imm == 0:
		r.asm.XORL(reg, reg)
	case imm <= 0xFFFFFFFF:
		r.asm.MOVLconst(uint32(imm), reg)
	default:
		r.asm.MOVQconst(imm, reg)
	}
}
