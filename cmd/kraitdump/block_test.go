package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dynarec/krait/internal/ir"
)

func writeBlockFile(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "block.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadBlock(t *testing.T) {
	path := writeBlockFile(t, `
pc: 0x8000
thumb: true
cycles: 2
cond: NE
condfailedpc: 0x8004
condfailedcycles: 1
instructions:
  - GetRegister R0
  - LogicalShiftLeft %0, 4u8, false
  - SetRegister R1, %1
terminal:
  kind: linkblock
  pc: 0x9000
`)

	block, err := loadBlock(path)
	require.NoError(t, err)

	loc := ir.NewLocationDescriptor(0x8000, true, false, 0)
	require.Equal(t, loc, block.Location())
	require.Equal(t, 2, block.CycleCount)
	require.Equal(t, ir.CondNE, block.EntryCond())
	require.Equal(t, 1, block.CondFailedCycleCount)
	failed, ok := block.CondFailedLocation()
	require.True(t, ok)
	require.Equal(t, loc.SetPC(0x8004), failed)

	insts := block.Instructions()
	require.Len(t, insts, 3)
	require.Equal(t, ir.OpGetRegister, insts[0].Op())
	require.Equal(t, ir.R0, insts[0].Arg(0).Reg())
	require.Equal(t, ir.OpLogicalShiftLeft, insts[1].Op())
	require.Same(t, insts[0], insts[1].Arg(0).Inst())
	require.Equal(t, uint8(4), insts[1].Arg(1).U8())
	require.False(t, insts[1].Arg(2).U1())
	require.Equal(t, ir.OpSetRegister, insts[2].Op())
	require.Equal(t, ir.R1, insts[2].Arg(0).Reg())
	require.Same(t, insts[1], insts[2].Arg(1).Inst())

	require.Equal(t, ir.TermLinkBlock{Next: loc.SetPC(0x9000)}, block.Terminal)
}

func TestLoadBlockDefaults(t *testing.T) {
	path := writeBlockFile(t, "pc: 0x100\ncycles: 1\n")
	block, err := loadBlock(path)
	require.NoError(t, err)
	require.Equal(t, ir.CondAL, block.EntryCond())
	require.Equal(t, ir.TermReturnToDispatch{}, block.Terminal)
	require.Empty(t, block.Instructions())
}

func TestLoadBlockErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"cond without fallthrough pc", "pc: 0\ncond: EQ\n"},
		{"unknown opcode", "pc: 0\ninstructions: [\"Frobnicate R0\"]\n"},
		{"wrong arity", "pc: 0\ninstructions: [\"GetRegister R0, R1\"]\n"},
		{"unknown condition", "pc: 0\ncond: XX\ncondfailedpc: 4\n"},
		{"bad operand", "pc: 0\ninstructions: [\"GetRegister Q9\"]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadBlock(writeBlockFile(t, tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestParseValue(t *testing.T) {
	b := ir.NewBlock(ir.NewLocationDescriptor(0, false, false, 0))
	made := []*ir.Inst{b.AppendInst(ir.OpGetRegister, ir.RegRef(ir.R0))}

	tests := []struct {
		tok  string
		want ir.Value
	}{
		{"%0", ir.InstValue(made[0])},
		{"true", ir.ImmU1(true)},
		{"False", ir.ImmU1(false)},
		{"R3", ir.RegRef(ir.R3)},
		{"sp", ir.RegRef(ir.SP)},
		{"lr", ir.RegRef(ir.LR)},
		{"PC", ir.RegRef(ir.PC)},
		{"S1", ir.ExtRegRef(ir.ExtRegS(1))},
		{"d20", ir.ExtRegRef(ir.ExtRegD(20))},
		{"cp(15 0 1 2)", ir.CoprocInfo([]byte{15, 0, 1, 2})},
		{"5", ir.ImmU32(5)},
		{"0x10u8", ir.ImmU8(0x10)},
		{"1u64", ir.ImmU64(1)},
		{"0xFFFFFFFF", ir.ImmU32(0xFFFFFFFF)},
	}
	for _, tc := range tests {
		t.Run(tc.tok, func(t *testing.T) {
			got, err := parseValue(tc.tok, made)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	for _, tok := range []string{"", "%1", "%x", "cp(1", "cp(999)", "zzz", "256u8", "0x100000000", "S32", "R16"} {
		t.Run("rejects "+tok, func(t *testing.T) {
			_, err := parseValue(tok, made)
			require.Error(t, err)
		})
	}
}

func TestParseCond(t *testing.T) {
	c, err := parseCond("eq")
	require.NoError(t, err)
	require.Equal(t, ir.CondEQ, c)

	c, err = parseCond("NV")
	require.NoError(t, err)
	require.Equal(t, ir.CondNV, c)

	_, err = parseCond("maybe")
	require.Error(t, err)
}

func TestParseTerminal(t *testing.T) {
	loc := ir.NewLocationDescriptor(0x8000, false, false, 0)

	term, err := parseTerminal(nil, loc)
	require.NoError(t, err)
	require.Equal(t, ir.TermReturnToDispatch{}, term)

	term, err = parseTerminal(&terminalNode{Kind: "poprsbhint"}, loc)
	require.NoError(t, err)
	require.Equal(t, ir.TermPopRSBHint{}, term)

	pc := uint32(0x9000)
	term, err = parseTerminal(&terminalNode{Kind: "interpret", PC: &pc}, loc)
	require.NoError(t, err)
	require.Equal(t, ir.TermInterpret{Next: loc.SetPC(pc)}, term)

	term, err = parseTerminal(&terminalNode{
		Kind: "checkhalt",
		Else: &terminalNode{
			Kind: "if",
			Cond: "GT",
			Then: &terminalNode{Kind: "linkblockfast", PC: &pc},
		},
	}, loc)
	require.NoError(t, err)
	require.Equal(t, ir.TermCheckHalt{
		Else: ir.TermIf{
			Cond: ir.CondGT,
			Then: ir.TermLinkBlockFast{Next: loc.SetPC(pc)},
			Else: ir.TermReturnToDispatch{},
		},
	}, term)

	_, err = parseTerminal(&terminalNode{Kind: "linkblock"}, loc)
	require.Error(t, err)
	_, err = parseTerminal(&terminalNode{Kind: "warp"}, loc)
	require.Error(t, err)
	_, err = parseTerminal(&terminalNode{Kind: "if", Cond: "??"}, loc)
	require.Error(t, err)
}

func TestHexDump(t *testing.T) {
	var buf bytes.Buffer
	hexDump(&buf, []byte{0x41, 0x8b, 0x07, 0xc3}, 0x1000)
	require.Equal(t, "0x0000001000: 41 8b 07 c3\n", buf.String())
}
