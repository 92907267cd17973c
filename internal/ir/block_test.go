package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBlockDefaults(t *testing.T) {
	loc := NewLocationDescriptor(0x8000, false, false, 0)
	b := NewBlock(loc)
	require.Equal(t, loc, b.Location())
	require.Equal(t, CondAL, b.EntryCond())
	_, ok := b.CondFailedLocation()
	require.False(t, ok)
	require.Empty(t, b.Instructions())
}

func TestSetEntryCond(t *testing.T) {
	loc := NewLocationDescriptor(0x8000, false, false, 0)
	b := NewBlock(loc)
	failed := loc.SetPC(0x8004)
	b.SetEntryCond(CondNE, failed)
	require.Equal(t, CondNE, b.EntryCond())
	got, ok := b.CondFailedLocation()
	require.True(t, ok)
	require.Equal(t, failed, got)
}

func TestAppendInstArityChecked(t *testing.T) {
	b := NewBlock(NewLocationDescriptor(0, false, false, 0))
	require.Panics(t, func() { b.AppendInst(OpGetRegister) })
	require.Panics(t, func() { b.AppendInst(OpGetCpsr, ImmU32(0)) })
}

func TestAppendInstUseCounts(t *testing.T) {
	b := NewBlock(NewLocationDescriptor(0, false, false, 0))
	get := b.AppendInst(OpGetRegister, RegRef(R0))
	require.Equal(t, 0, get.UseCount())
	require.False(t, get.HasUses())

	b.AppendInst(OpSetRegister, RegRef(R1), InstValue(get))
	require.Equal(t, 1, get.UseCount())

	b.AppendInst(OpSetRegister, RegRef(R2), InstValue(get))
	require.Equal(t, 2, get.UseCount())
	require.True(t, get.HasUses())
}

func TestPseudoOperationAttachment(t *testing.T) {
	b := NewBlock(NewLocationDescriptor(0, false, false, 0))
	add := b.AppendInst(OpAddWithCarry, ImmU32(1), ImmU32(2), ImmU1(false))

	carry := b.AppendInst(OpGetCarryFromOp, InstValue(add))
	overflow := b.AppendInst(OpGetOverflowFromOp, InstValue(add))
	require.Same(t, carry, add.AssociatedPseudoOperation(OpGetCarryFromOp))
	require.Same(t, overflow, add.AssociatedPseudoOperation(OpGetOverflowFromOp))
	require.Nil(t, add.AssociatedPseudoOperation(OpGetGEFromOp))
	require.Equal(t, 2, add.UseCount())

	require.Panics(t, func() { b.AppendInst(OpGetCarryFromOp, InstValue(add)) })
}

func TestEraseInstruction(t *testing.T) {
	b := NewBlock(NewLocationDescriptor(0, false, false, 0))
	add := b.AppendInst(OpAddWithCarry, ImmU32(1), ImmU32(2), ImmU1(false))
	carry := b.AppendInst(OpGetCarryFromOp, InstValue(add))

	b.EraseInstruction(carry)
	require.True(t, carry.Invalid())
	require.Equal(t, 0, add.UseCount())
	require.Nil(t, add.AssociatedPseudoOperation(OpGetCarryFromOp))

	// The arena keeps the slot so emission order is stable.
	require.Len(t, b.Instructions(), 2)

	require.Panics(t, func() { b.EraseInstruction(carry) })
}

func TestAreAllArgsImmediates(t *testing.T) {
	b := NewBlock(NewLocationDescriptor(0, false, false, 0))
	imm := b.AppendInst(OpAddWithCarry, ImmU32(1), ImmU32(2), ImmU1(false))
	require.True(t, imm.AreAllArgsImmediates())

	dep := b.AppendInst(OpAddWithCarry, InstValue(imm), ImmU32(2), ImmU1(false))
	require.False(t, dep.AreAllArgsImmediates())
}

func TestInstArgBounds(t *testing.T) {
	b := NewBlock(NewLocationDescriptor(0, false, false, 0))
	get := b.AppendInst(OpGetRegister, RegRef(R3))
	require.Equal(t, R3, get.Arg(0).Reg())
	require.Panics(t, func() { get.Arg(1) })
}
