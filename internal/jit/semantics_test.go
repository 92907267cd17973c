package jit

import (
	"fmt"
	"math"
	"math/bits"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"
)

// The mirror functions below model the value and carry behaviour of the
// emitted shift, flag and saturation sequences. The yaml corpora under
// testdata hold the architectural answers.

func lslCarry(value uint32, shift uint8, carryIn uint32) (uint32, uint32) {
	switch {
	case shift == 0:
		return value, carryIn
	case shift < 32:
		return value << shift, (value >> (32 - shift)) & 1
	case shift == 32:
		return 0, value & 1
	default:
		return 0, 0
	}
}

func lsrCarry(value uint32, shift uint8, carryIn uint32) (uint32, uint32) {
	switch {
	case shift == 0:
		return value, carryIn
	case shift < 32:
		return value >> shift, (value >> (shift - 1)) & 1
	case shift == 32:
		return 0, value >> 31
	default:
		return 0, 0
	}
}

func asrCarry(value uint32, shift uint8, carryIn uint32) (uint32, uint32) {
	switch {
	case shift == 0:
		return value, carryIn
	case shift < 32:
		return uint32(int32(value) >> shift), (value >> (shift - 1)) & 1
	default:
		return uint32(int32(value) >> 31), value >> 31
	}
}

func rorCarry(value uint32, shift uint8, carryIn uint32) (uint32, uint32) {
	switch {
	case shift == 0:
		return value, carryIn
	case shift&31 == 0:
		return value, value >> 31
	default:
		r := bits.RotateLeft32(value, -int(shift&31))
		return r, r >> 31
	}
}

func rrxCarry(value, carryIn uint32) (uint32, uint32) {
	return (carryIn << 31) | (value >> 1), value & 1
}

func addWithCarry(a, b, carryIn uint32) (result, carry, overflow uint32) {
	sum := uint64(a) + uint64(b) + uint64(carryIn)
	result = uint32(sum)
	carry = uint32(sum >> 32)
	overflow = ((a ^ result) & (b ^ result)) >> 31
	return
}

// The guest carry into a subtraction is the complement of the host borrow,
// so A - B is computed as A + NOT(B) + carry.
func subWithCarry(a, b, carryIn uint32) (result, carry, overflow uint32) {
	return addWithCarry(a, ^b, carryIn)
}

func signedSaturatedAdd(a, b int32) (int32, bool) {
	s := int64(a) + int64(b)
	switch {
	case s > math.MaxInt32:
		return math.MaxInt32, true
	case s < math.MinInt32:
		return math.MinInt32, true
	default:
		return int32(s), false
	}
}

func signedSaturatedSub(a, b int32) (int32, bool) {
	s := int64(a) - int64(b)
	switch {
	case s > math.MaxInt32:
		return math.MaxInt32, true
	case s < math.MinInt32:
		return math.MinInt32, true
	default:
		return int32(s), false
	}
}

func signedSaturate(value int32, n uint) (int32, bool) {
	if n == 32 {
		return value, false
	}
	max := int32(1)<<(n-1) - 1
	min := -max - 1
	switch {
	case value > max:
		return max, true
	case value < min:
		return min, true
	default:
		return value, false
	}
}

func unsignedSaturate(value int32, n uint) (uint32, bool) {
	max := uint32(1)<<n - 1
	switch {
	case value < 0:
		return 0, true
	case uint32(value) > max:
		return max, true
	default:
		return uint32(value), false
	}
}

type shiftVector struct {
	Value    int64 `yaml:"value"`
	Shift    int64 `yaml:"shift"`
	CarryIn  int64 `yaml:"carry_in"`
	Result   int64 `yaml:"result"`
	CarryOut int64 `yaml:"carry_out"`
}

type shiftCorpus struct {
	Lsl []shiftVector `yaml:"lsl"`
	Lsr []shiftVector `yaml:"lsr"`
	Asr []shiftVector `yaml:"asr"`
	Ror []shiftVector `yaml:"ror"`
	Rrx []shiftVector `yaml:"rrx"`
}

type flagVector struct {
	A        int64 `yaml:"a"`
	B        int64 `yaml:"b"`
	CarryIn  int64 `yaml:"carry_in"`
	Result   int64 `yaml:"result"`
	Carry    int64 `yaml:"carry"`
	Overflow int64 `yaml:"overflow"`
}

type cpsrVector struct {
	Cpsr int64 `yaml:"cpsr"`
	N    int64 `yaml:"n"`
	Z    int64 `yaml:"z"`
	C    int64 `yaml:"c"`
	V    int64 `yaml:"v"`
	Q    int64 `yaml:"q"`
	GE   int64 `yaml:"ge"`
}

type flagCorpus struct {
	Add  []flagVector `yaml:"add"`
	Sub  []flagVector `yaml:"sub"`
	Cpsr []cpsrVector `yaml:"cpsr"`
}

type satPairVector struct {
	A      int64 `yaml:"a"`
	B      int64 `yaml:"b"`
	Result int64 `yaml:"result"`
	Q      int64 `yaml:"q"`
}

type satClampVector struct {
	Value  int64 `yaml:"value"`
	Bits   int64 `yaml:"bits"`
	Result int64 `yaml:"result"`
	Q      int64 `yaml:"q"`
}

type satCorpus struct {
	Qadd []satPairVector  `yaml:"qadd"`
	Qsub []satPairVector  `yaml:"qsub"`
	Ssat []satClampVector `yaml:"ssat"`
	Usat []satClampVector `yaml:"usat"`
}

// mustLoadVectors runs at spec construction time, before gomega assertions
// are usable, so it panics on a broken corpus.
func mustLoadVectors[T any](name string) T {
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		panic(err)
	}
	var out T
	if err := yaml.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func b2u(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

var _ = Describe("barrel shifter", func() {
	corpus := mustLoadVectors[shiftCorpus]("shift_vectors.yaml")

	describeShift := func(name string, vectors []shiftVector, fn func(uint32, uint8, uint32) (uint32, uint32)) {
		Describe(name, func() {
			for _, v := range vectors {
				v := v
				It(fmt.Sprintf("shifts %#x by %d with carry %d", uint32(v.Value), v.Shift, v.CarryIn), func() {
					result, carry := fn(uint32(v.Value), uint8(v.Shift), uint32(v.CarryIn))
					Expect(result).To(Equal(uint32(v.Result)))
					Expect(carry).To(Equal(uint32(v.CarryOut)))
				})
			}
		})
	}

	describeShift("LSL", corpus.Lsl, lslCarry)
	describeShift("LSR", corpus.Lsr, lsrCarry)
	describeShift("ASR", corpus.Asr, asrCarry)
	describeShift("ROR", corpus.Ror, rorCarry)

	Describe("RRX", func() {
		for _, v := range corpus.Rrx {
			v := v
			It(fmt.Sprintf("rotates %#x through carry %d", uint32(v.Value), v.CarryIn), func() {
				result, carry := rrxCarry(uint32(v.Value), uint32(v.CarryIn))
				Expect(result).To(Equal(uint32(v.Result)))
				Expect(carry).To(Equal(uint32(v.CarryOut)))
			})
		}
	})
})

var _ = Describe("add with carry", func() {
	corpus := mustLoadVectors[flagCorpus]("flag_vectors.yaml")

	Describe("addition", func() {
		for _, v := range corpus.Add {
			v := v
			It(fmt.Sprintf("%#x + %#x + %d", uint32(v.A), uint32(v.B), v.CarryIn), func() {
				result, carry, overflow := addWithCarry(uint32(v.A), uint32(v.B), uint32(v.CarryIn))
				Expect(result).To(Equal(uint32(v.Result)))
				Expect(carry).To(Equal(uint32(v.Carry)))
				Expect(overflow).To(Equal(uint32(v.Overflow)))
			})
		}
	})

	Describe("subtraction", func() {
		for _, v := range corpus.Sub {
			v := v
			It(fmt.Sprintf("%#x - %#x with carry %d", uint32(v.A), uint32(v.B), v.CarryIn), func() {
				result, carry, overflow := subWithCarry(uint32(v.A), uint32(v.B), uint32(v.CarryIn))
				Expect(result).To(Equal(uint32(v.Result)))
				Expect(carry).To(Equal(uint32(v.Carry)))
				Expect(overflow).To(Equal(uint32(v.Overflow)))
			})
		}
	})
})

var _ = Describe("CPSR flags", func() {
	corpus := mustLoadVectors[flagCorpus]("flag_vectors.yaml")

	Describe("decomposition", func() {
		for _, v := range corpus.Cpsr {
			v := v
			It(fmt.Sprintf("decomposes %#x", uint32(v.Cpsr)), func() {
				cpsr := uint32(v.Cpsr)
				Expect((cpsr >> cpsrNShift) & 1).To(Equal(uint32(v.N)))
				Expect((cpsr >> cpsrZShift) & 1).To(Equal(uint32(v.Z)))
				Expect((cpsr >> cpsrCShift) & 1).To(Equal(uint32(v.C)))
				Expect((cpsr >> cpsrVShift) & 1).To(Equal(uint32(v.V)))
				Expect((cpsr >> cpsrQShift) & 1).To(Equal(uint32(v.Q)))
				Expect((cpsr >> cpsrGEShift) & 0xF).To(Equal(uint32(v.GE)))
			})
		}
	})

	Describe("set and get round-trips", func() {
		shifts := []struct {
			name  string
			shift uint
		}{
			{"N", cpsrNShift},
			{"Z", cpsrZShift},
			{"C", cpsrCShift},
			{"V", cpsrVShift},
			{"Q", cpsrQShift},
		}
		for _, v := range corpus.Cpsr {
			v := v
			for _, s := range shifts {
				s := s
				It(fmt.Sprintf("sets %s on %#x without touching the rest", s.name, uint32(v.Cpsr)), func() {
					cpsr := uint32(v.Cpsr) | 1<<s.shift
					Expect((cpsr >> s.shift) & 1).To(Equal(uint32(1)))
					Expect(cpsr &^ (1 << s.shift)).To(Equal(uint32(v.Cpsr) &^ (1 << s.shift)))
				})
				It(fmt.Sprintf("clears %s on %#x without touching the rest", s.name, uint32(v.Cpsr)), func() {
					cpsr := uint32(v.Cpsr) &^ (1 << s.shift)
					Expect((cpsr >> s.shift) & 1).To(Equal(uint32(0)))
					Expect(cpsr | 1<<s.shift).To(Equal(uint32(v.Cpsr) | 1<<s.shift))
				})
			}
			It(fmt.Sprintf("replaces GE on %#x without touching the rest", uint32(v.Cpsr)), func() {
				const mask = uint32(0xF) << cpsrGEShift
				cpsr := uint32(v.Cpsr)&^mask | 0xA<<cpsrGEShift
				Expect((cpsr >> cpsrGEShift) & 0xF).To(Equal(uint32(0xA)))
				Expect(cpsr &^ mask).To(Equal(uint32(v.Cpsr) &^ mask))
			})
		}
	})
})

var _ = Describe("saturating arithmetic", func() {
	corpus := mustLoadVectors[satCorpus]("saturation_vectors.yaml")

	Describe("QADD", func() {
		for _, v := range corpus.Qadd {
			v := v
			It(fmt.Sprintf("%d + %d", v.A, v.B), func() {
				result, sat := signedSaturatedAdd(int32(v.A), int32(v.B))
				Expect(result).To(Equal(int32(v.Result)))
				Expect(b2u(sat)).To(Equal(v.Q))
			})
		}
	})

	Describe("QSUB", func() {
		for _, v := range corpus.Qsub {
			v := v
			It(fmt.Sprintf("%d - %d", v.A, v.B), func() {
				result, sat := signedSaturatedSub(int32(v.A), int32(v.B))
				Expect(result).To(Equal(int32(v.Result)))
				Expect(b2u(sat)).To(Equal(v.Q))
			})
		}
	})

	Describe("SSAT", func() {
		for _, v := range corpus.Ssat {
			v := v
			It(fmt.Sprintf("saturates %d to %d bits", v.Value, v.Bits), func() {
				result, sat := signedSaturate(int32(v.Value), uint(v.Bits))
				Expect(result).To(Equal(int32(v.Result)))
				Expect(b2u(sat)).To(Equal(v.Q))
			})
		}
	})

	Describe("USAT", func() {
		for _, v := range corpus.Usat {
			v := v
			It(fmt.Sprintf("saturates %d to %d bits", v.Value, v.Bits), func() {
				result, sat := unsignedSaturate(int32(v.Value), uint(v.Bits))
				Expect(result).To(Equal(uint32(v.Result)))
				Expect(b2u(sat)).To(Equal(v.Q))
			})
		}
	})
})
