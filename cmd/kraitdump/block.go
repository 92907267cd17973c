package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dynarec/krait/internal/ir"
)

// blockFile is the YAML description of one IR block.
//
// Instructions are written one per line as "Opcode operand, operand, ...".
// Operands are %N for the result of the N'th instruction, R0..R12/SP/LR/PC,
// S0..S31, D0..D31, true/false, cp(num two opc ...) for coprocessor field
// bytes, and numbers with an optional u8/u32/u64 width suffix (u32 default).
type blockFile struct {
	PC        uint32 `yaml:"pc"`
	Thumb     bool   `yaml:"thumb"`
	BigEndian bool   `yaml:"bigendian"`
	Fpscr     uint32 `yaml:"fpscr"`
	Cycles    int    `yaml:"cycles"`

	Cond             string  `yaml:"cond"`
	CondFailedPC     *uint32 `yaml:"condfailedpc"`
	CondFailedCycles int     `yaml:"condfailedcycles"`

	Instructions []string      `yaml:"instructions"`
	Terminal     *terminalNode `yaml:"terminal"`
}

type terminalNode struct {
	Kind string        `yaml:"kind"`
	PC   *uint32       `yaml:"pc"`
	Cond string        `yaml:"cond"`
	Then *terminalNode `yaml:"then"`
	Else *terminalNode `yaml:"else"`
}

func loadBlock(path string) (*ir.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bf blockFile
	if err := yaml.Unmarshal(raw, &bf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	loc := ir.NewLocationDescriptor(bf.PC, bf.Thumb, bf.BigEndian, bf.Fpscr)
	block := ir.NewBlock(loc)
	block.CycleCount = bf.Cycles

	if bf.Cond != "" && !strings.EqualFold(bf.Cond, "AL") {
		cond, err := parseCond(bf.Cond)
		if err != nil {
			return nil, err
		}
		if bf.CondFailedPC == nil {
			return nil, fmt.Errorf("cond %s needs a condfailedpc", bf.Cond)
		}
		block.SetEntryCond(cond, loc.SetPC(*bf.CondFailedPC))
		block.CondFailedCycleCount = bf.CondFailedCycles
	}

	var made []*ir.Inst
	for i, line := range bf.Instructions {
		inst, err := appendInst(block, made, line)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		made = append(made, inst)
	}

	term, err := parseTerminal(bf.Terminal, loc)
	if err != nil {
		return nil, err
	}
	block.Terminal = term
	return block, nil
}

var opcodesByName = func() map[string]ir.Opcode {
	m := make(map[string]ir.Opcode, ir.NumOpcodes)
	for op := ir.Opcode(1); int(op) < ir.NumOpcodes; op++ {
		m[strings.ToLower(op.String())] = op
	}
	return m
}()

func appendInst(block *ir.Block, made []*ir.Inst, line string) (*ir.Inst, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	op, ok := opcodesByName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", name)
	}

	var args []ir.Value
	if rest = strings.TrimSpace(rest); rest != "" {
		for _, tok := range strings.Split(rest, ",") {
			v, err := parseValue(tok, made)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}
	if len(args) != op.NumArgs() {
		return nil, fmt.Errorf("%s takes %d operands, got %d", op, op.NumArgs(), len(args))
	}
	return block.AppendInst(op, args...), nil
}

func parseValue(tok string, made []*ir.Inst) (ir.Value, error) {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "":
		return ir.Value{}, fmt.Errorf("empty operand")
	case tok[0] == '%':
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n < 0 || n >= len(made) {
			return ir.Value{}, fmt.Errorf("bad instruction reference %q", tok)
		}
		return ir.InstValue(made[n]), nil
	case strings.EqualFold(tok, "true"):
		return ir.ImmU1(true), nil
	case strings.EqualFold(tok, "false"):
		return ir.ImmU1(false), nil
	}
	if reg, ok := parseReg(tok); ok {
		return ir.RegRef(reg), nil
	}
	if ext, ok := parseExtReg(tok); ok {
		return ir.ExtRegRef(ext), nil
	}
	if inner, ok := strings.CutPrefix(tok, "cp("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return ir.Value{}, fmt.Errorf("unterminated coprocessor operand %q", tok)
		}
		var info []byte
		for _, field := range strings.Fields(inner) {
			n, err := strconv.ParseUint(field, 0, 8)
			if err != nil {
				return ir.Value{}, fmt.Errorf("coprocessor field %q: %w", field, err)
			}
			info = append(info, byte(n))
		}
		return ir.CoprocInfo(info), nil
	}
	return parseImm(tok)
}

func parseImm(tok string) (ir.Value, error) {
	width := "u32"
	body := tok
	for _, w := range []string{"u64", "u32", "u8"} {
		if b, ok := strings.CutSuffix(tok, w); ok {
			width, body = w, b
			break
		}
	}
	n, err := strconv.ParseUint(body, 0, 64)
	if err != nil {
		return ir.Value{}, fmt.Errorf("cannot parse operand %q", tok)
	}
	switch width {
	case "u8":
		if n > 0xFF {
			return ir.Value{}, fmt.Errorf("%q overflows u8", tok)
		}
		return ir.ImmU8(uint8(n)), nil
	case "u64":
		return ir.ImmU64(n), nil
	default:
		if n > 0xFFFFFFFF {
			return ir.Value{}, fmt.Errorf("%q overflows u32", tok)
		}
		return ir.ImmU32(uint32(n)), nil
	}
}

func parseReg(tok string) (ir.Reg, bool) {
	switch upper := strings.ToUpper(tok); upper {
	case "SP":
		return ir.SP, true
	case "LR":
		return ir.LR, true
	case "PC":
		return ir.PC, true
	default:
		if rest, ok := strings.CutPrefix(upper, "R"); ok {
			if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n <= 15 {
				return ir.Reg(n), true
			}
		}
	}
	return 0, false
}

func parseExtReg(tok string) (ir.ExtReg, bool) {
	upper := strings.ToUpper(tok)
	if rest, ok := strings.CutPrefix(upper, "S"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n <= 31 {
			return ir.ExtRegS(n), true
		}
	}
	if rest, ok := strings.CutPrefix(upper, "D"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n <= 31 {
			return ir.ExtRegD(n), true
		}
	}
	return 0, false
}

func parseCond(s string) (ir.Cond, error) {
	for c := ir.CondEQ; c <= ir.CondNV; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}

func parseTerminal(n *terminalNode, loc ir.LocationDescriptor) (ir.Terminal, error) {
	if n == nil {
		return ir.TermReturnToDispatch{}, nil
	}
	next := func() (ir.LocationDescriptor, error) {
		if n.PC == nil {
			return loc, fmt.Errorf("terminal %q needs a pc", n.Kind)
		}
		return loc.SetPC(*n.PC), nil
	}
	switch strings.ToLower(n.Kind) {
	case "", "returntodispatch":
		return ir.TermReturnToDispatch{}, nil
	case "interpret":
		dst, err := next()
		if err != nil {
			return nil, err
		}
		return ir.TermInterpret{Next: dst}, nil
	case "linkblock":
		dst, err := next()
		if err != nil {
			return nil, err
		}
		return ir.TermLinkBlock{Next: dst}, nil
	case "linkblockfast":
		dst, err := next()
		if err != nil {
			return nil, err
		}
		return ir.TermLinkBlockFast{Next: dst}, nil
	case "poprsbhint":
		return ir.TermPopRSBHint{}, nil
	case "if":
		cond, err := parseCond(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := parseTerminal(n.Then, loc)
		if err != nil {
			return nil, err
		}
		els, err := parseTerminal(n.Else, loc)
		if err != nil {
			return nil, err
		}
		return ir.TermIf{Cond: cond, Then: then, Else: els}, nil
	case "checkhalt":
		els, err := parseTerminal(n.Else, loc)
		if err != nil {
			return nil, err
		}
		return ir.TermCheckHalt{Else: els}, nil
	default:
		return nil, fmt.Errorf("unknown terminal %q", n.Kind)
	}
}
