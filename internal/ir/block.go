package ir

import "fmt"

// Block is a single-entry, single-exit sequence of micro-operations with an
// entry condition and one terminal. The front-end builds it, the backend
// consumes it read-only apart from pseudo-op erasure, then it is discarded.
type Block struct {
	location  LocationDescriptor
	entryCond Cond

	condFailedLocation   LocationDescriptor
	hasCondFailed        bool
	CondFailedCycleCount int

	insts []*Inst

	Terminal   Terminal
	CycleCount int
}

// NewBlock returns an empty unconditional block at the given location.
func NewBlock(loc LocationDescriptor) *Block {
	return &Block{location: loc, entryCond: CondAL}
}

func (b *Block) Location() LocationDescriptor { return b.location }

func (b *Block) EntryCond() Cond { return b.entryCond }

// SetEntryCond makes the whole block conditional; failedLoc is where guest
// execution continues when the condition fails.
func (b *Block) SetEntryCond(c Cond, failedLoc LocationDescriptor) {
	b.entryCond = c
	b.condFailedLocation = failedLoc
	b.hasCondFailed = true
}

// CondFailedLocation returns the fail-path location; ok is false for AL
// blocks.
func (b *Block) CondFailedLocation() (loc LocationDescriptor, ok bool) {
	return b.condFailedLocation, b.hasCondFailed
}

// Instructions returns the instruction arena in emission order. Erased
// entries stay in place flagged invalid.
func (b *Block) Instructions() []*Inst { return b.insts }

// AppendInst creates an instruction, wires use counts of referenced values,
// and attaches pseudo-operations to their producers.
func (b *Block) AppendInst(op Opcode, args ...Value) *Inst {
	if len(args) != op.NumArgs() {
		panic(fmt.Errorf("BUG: %s takes %d args, got %d", op, op.NumArgs(), len(args)))
	}
	inst := &Inst{op: op}
	copy(inst.args[:], args)
	for _, arg := range args {
		if arg.kind == ValueInst {
			arg.inst.useCount++
		}
	}
	if op.IsPseudoOperation() {
		producer := args[0].Inst()
		switch op {
		case OpGetCarryFromOp:
			if producer.carryInst != nil {
				panic(fmt.Errorf("BUG: %s already has a carry pseudo-op", producer.op))
			}
			producer.carryInst = inst
		case OpGetOverflowFromOp:
			if producer.overflowInst != nil {
				panic(fmt.Errorf("BUG: %s already has an overflow pseudo-op", producer.op))
			}
			producer.overflowInst = inst
		case OpGetGEFromOp:
			if producer.geInst != nil {
				panic(fmt.Errorf("BUG: %s already has a GE pseudo-op", producer.op))
			}
			producer.geInst = inst
		}
	}
	b.insts = append(b.insts, inst)
	return inst
}

// EraseInstruction removes a pseudo-operation that its producer has consumed.
// The producer's use count drops by one and the back-link is severed.
func (b *Block) EraseInstruction(i *Inst) {
	if i.invalid {
		panic(fmt.Errorf("BUG: %s erased twice", i.op))
	}
	for n := 0; n < i.op.NumArgs(); n++ {
		if arg := i.args[n]; arg.kind == ValueInst {
			arg.inst.useCount--
		}
	}
	if i.op.IsPseudoOperation() {
		producer := i.args[0].Inst()
		switch i.op {
		case OpGetCarryFromOp:
			producer.carryInst = nil
		case OpGetOverflowFromOp:
			producer.overflowInst = nil
		case OpGetGEFromOp:
			producer.geInst = nil
		}
	}
	i.invalid = true
}
