package ir

// Opcode enumerates the micro-operations the backend can emit.
type Opcode uint16

const (
	OpVoid Opcode = iota

	// Guest state access.
	OpGetRegister
	OpSetRegister
	OpGetExtendedRegister32
	OpSetExtendedRegister32
	OpGetExtendedRegister64
	OpSetExtendedRegister64
	OpGetCpsr
	OpSetCpsr
	OpBXWritePC

	// Flag access.
	OpGetNFlag
	OpSetNFlag
	OpGetZFlag
	OpSetZFlag
	OpGetCFlag
	OpSetCFlag
	OpGetVFlag
	OpSetVFlag
	OpOrQFlag
	OpGetGEFlags
	OpSetGEFlags
	OpGetFpscrNZCV
	OpSetFpscrNZCV

	// Pseudo-operations, consumed by their producer, never emitted alone.
	OpGetCarryFromOp
	OpGetOverflowFromOp
	OpGetGEFromOp

	// Shifts.
	OpLogicalShiftLeft
	OpLogicalShiftRight
	OpArithmeticShiftRight
	OpRotateRight
	OpRotateRightExtended
	OpLogicalShiftRight64

	// Integer arithmetic and bit manipulation.
	OpAddWithCarry
	OpSubWithCarry
	OpMul
	OpMul64
	OpAnd
	OpEor
	OpOr
	OpNot
	OpSignExtendByteToWord
	OpSignExtendHalfToWord
	OpZeroExtendByteToWord
	OpZeroExtendHalfToWord
	OpByteReverseWord
	OpByteReverseHalf
	OpByteReverseDual
	OpCountLeadingZeros

	// Saturating arithmetic.
	OpSignedSaturatedAdd
	OpSignedSaturatedSub
	OpSignedSaturation
	OpUnsignedSaturation

	// Packed parallel arithmetic.
	OpPackedAddU8
	OpPackedAddS8
	OpPackedAddU16
	OpPackedAddS16
	OpPackedSubU8
	OpPackedSubS8
	OpPackedSubU16
	OpPackedSubS16
	OpPackedHalvingAddU8
	OpPackedHalvingAddS8
	OpPackedHalvingAddU16
	OpPackedHalvingAddS16
	OpPackedHalvingSubU8
	OpPackedHalvingSubS8
	OpPackedHalvingSubU16
	OpPackedHalvingSubS16
	OpPackedHalvingAddSubU16
	OpPackedHalvingAddSubS16
	OpPackedHalvingSubAddU16
	OpPackedHalvingSubAddS16
	OpPackedSaturatedAddU8
	OpPackedSaturatedAddS8
	OpPackedSaturatedAddU16
	OpPackedSaturatedAddS16
	OpPackedSaturatedSubU8
	OpPackedSaturatedSubS8
	OpPackedSaturatedSubU16
	OpPackedSaturatedSubS16
	OpPackedAbsDiffSumS8

	// VFP.
	OpFPAbs32
	OpFPAbs64
	OpFPNeg32
	OpFPNeg64
	OpFPAdd32
	OpFPAdd64
	OpFPSub32
	OpFPSub64
	OpFPMul32
	OpFPMul64
	OpFPDiv32
	OpFPDiv64
	OpFPSqrt32
	OpFPSqrt64
	OpFPCompare32
	OpFPCompare64
	OpFPSingleToDouble
	OpFPDoubleToSingle
	OpFPSingleToS32
	OpFPSingleToU32
	OpFPDoubleToS32
	OpFPDoubleToU32
	OpFPS32ToSingle
	OpFPU32ToSingle
	OpFPS32ToDouble
	OpFPU32ToDouble

	// Memory.
	OpReadMemory8
	OpReadMemory16
	OpReadMemory32
	OpReadMemory64
	OpWriteMemory8
	OpWriteMemory16
	OpWriteMemory32
	OpWriteMemory64
	OpClearExclusive
	OpSetExclusive
	OpExclusiveWriteMemory8
	OpExclusiveWriteMemory16
	OpExclusiveWriteMemory32
	OpExclusiveWriteMemory64

	// Coprocessor.
	OpCoprocInternalOperation
	OpCoprocSendOneWord
	OpCoprocSendTwoWords
	OpCoprocGetOneWord
	OpCoprocGetTwoWords
	OpCoprocLoadWords
	OpCoprocStoreWords

	// Miscellaneous.
	OpPushRSB
	OpCallSupervisor
	OpBreakpoint

	numOpcodes
)

// NumOpcodes sizes opcode-indexed tables.
const NumOpcodes = int(numOpcodes)

// NumArgs returns the argument arity of op.
func (op Opcode) NumArgs() int {
	return int(opcodeArity[op])
}

// IsPseudoOperation reports whether op may only appear attached to a
// producing instruction.
func (op Opcode) IsPseudoOperation() bool {
	switch op {
	case OpGetCarryFromOp, OpGetOverflowFromOp, OpGetGEFromOp:
		return true
	}
	return false
}

var opcodeArity = [numOpcodes]byte{
	OpGetRegister:            1,
	OpSetRegister:            2,
	OpGetExtendedRegister32:  1,
	OpSetExtendedRegister32:  2,
	OpGetExtendedRegister64:  1,
	OpSetExtendedRegister64:  2,
	OpGetCpsr:                0,
	OpSetCpsr:                1,
	OpBXWritePC:              1,
	OpGetNFlag:               0,
	OpSetNFlag:               1,
	OpGetZFlag:               0,
	OpSetZFlag:               1,
	OpGetCFlag:               0,
	OpSetCFlag:               1,
	OpGetVFlag:               0,
	OpSetVFlag:               1,
	OpOrQFlag:                1,
	OpGetGEFlags:             0,
	OpSetGEFlags:             1,
	OpGetFpscrNZCV:           0,
	OpSetFpscrNZCV:           1,
	OpGetCarryFromOp:         1,
	OpGetOverflowFromOp:      1,
	OpGetGEFromOp:            1,
	OpLogicalShiftLeft:       3,
	OpLogicalShiftRight:      3,
	OpArithmeticShiftRight:   3,
	OpRotateRight:            3,
	OpRotateRightExtended:    2,
	OpLogicalShiftRight64:    2,
	OpAddWithCarry:           3,
	OpSubWithCarry:           3,
	OpMul:                    2,
	OpMul64:                  2,
	OpAnd:                    2,
	OpEor:                    2,
	OpOr:                     2,
	OpNot:                    1,
	OpSignExtendByteToWord:   1,
	OpSignExtendHalfToWord:   1,
	OpZeroExtendByteToWord:   1,
	OpZeroExtendHalfToWord:   1,
	OpByteReverseWord:        1,
	OpByteReverseHalf:        1,
	OpByteReverseDual:        1,
	OpCountLeadingZeros:      1,
	OpSignedSaturatedAdd:     2,
	OpSignedSaturatedSub:     2,
	OpSignedSaturation:       2,
	OpUnsignedSaturation:     2,
	OpPackedAddU8:            2,
	OpPackedAddS8:            2,
	OpPackedAddU16:           2,
	OpPackedAddS16:           2,
	OpPackedSubU8:            2,
	OpPackedSubS8:            2,
	OpPackedSubU16:           2,
	OpPackedSubS16:           2,
	OpPackedHalvingAddU8:     2,
	OpPackedHalvingAddS8:     2,
	OpPackedHalvingAddU16:    2,
	OpPackedHalvingAddS16:    2,
	OpPackedHalvingSubU8:     2,
	OpPackedHalvingSubS8:     2,
	OpPackedHalvingSubU16:    2,
	OpPackedHalvingSubS16:    2,
	OpPackedHalvingAddSubU16: 2,
	OpPackedHalvingAddSubS16: 2,
	OpPackedHalvingSubAddU16: 2,
	OpPackedHalvingSubAddS16: 2,
	OpPackedSaturatedAddU8:   2,
	OpPackedSaturatedAddS8:   2,
	OpPackedSaturatedAddU16:  2,
	OpPackedSaturatedAddS16:  2,
	OpPackedSaturatedSubU8:   2,
	OpPackedSaturatedSubS8:   2,
	OpPackedSaturatedSubU16:  2,
	OpPackedSaturatedSubS16:  2,
	OpPackedAbsDiffSumS8:     2,
	OpFPAbs32:                1,
	OpFPAbs64:                1,
	OpFPNeg32:                1,
	OpFPNeg64:                1,
	OpFPAdd32:                2,
	OpFPAdd64:                2,
	OpFPSub32:                2,
	OpFPSub64:                2,
	OpFPMul32:                2,
	OpFPMul64:                2,
	OpFPDiv32:                2,
	OpFPDiv64:                2,
	OpFPSqrt32:               1,
	OpFPSqrt64:               1,
	OpFPCompare32:            3,
	OpFPCompare64:            3,
	OpFPSingleToDouble:       1,
	OpFPDoubleToSingle:       1,
	OpFPSingleToS32:          2,
	OpFPSingleToU32:          2,
	OpFPDoubleToS32:          2,
	OpFPDoubleToU32:          2,
	OpFPS32ToSingle:          2,
	OpFPU32ToSingle:          2,
	OpFPS32ToDouble:          2,
	OpFPU32ToDouble:          2,
	OpReadMemory8:            1,
	OpReadMemory16:           1,
	OpReadMemory32:           1,
	OpReadMemory64:           1,
	OpWriteMemory8:           2,
	OpWriteMemory16:          2,
	OpWriteMemory32:          2,
	OpWriteMemory64:          2,
	OpClearExclusive:         0,
	OpSetExclusive:           2,
	OpExclusiveWriteMemory8:  2,
	OpExclusiveWriteMemory16: 2,
	OpExclusiveWriteMemory32: 2,
	OpExclusiveWriteMemory64: 3,
	OpCoprocInternalOperation: 1,
	OpCoprocSendOneWord:       2,
	OpCoprocSendTwoWords:      3,
	OpCoprocGetOneWord:        1,
	OpCoprocGetTwoWords:       1,
	OpCoprocLoadWords:         2,
	OpCoprocStoreWords:        2,
	OpPushRSB:                 1,
	OpCallSupervisor:          1,
	OpBreakpoint:              0,
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "UnknownOp"
}

var opcodeNames = [numOpcodes]string{
	OpVoid:                   "Void",
	OpGetRegister:            "GetRegister",
	OpSetRegister:            "SetRegister",
	OpGetExtendedRegister32:  "GetExtendedRegister32",
	OpSetExtendedRegister32:  "SetExtendedRegister32",
	OpGetExtendedRegister64:  "GetExtendedRegister64",
	OpSetExtendedRegister64:  "SetExtendedRegister64",
	OpGetCpsr:                "GetCpsr",
	OpSetCpsr:                "SetCpsr",
	OpBXWritePC:              "BXWritePC",
	OpGetNFlag:               "GetNFlag",
	OpSetNFlag:               "SetNFlag",
	OpGetZFlag:               "GetZFlag",
	OpSetZFlag:               "SetZFlag",
	OpGetCFlag:               "GetCFlag",
	OpSetCFlag:               "SetCFlag",
	OpGetVFlag:               "GetVFlag",
	OpSetVFlag:               "SetVFlag",
	OpOrQFlag:                "OrQFlag",
	OpGetGEFlags:             "GetGEFlags",
	OpSetGEFlags:             "SetGEFlags",
	OpGetFpscrNZCV:           "GetFpscrNZCV",
	OpSetFpscrNZCV:           "SetFpscrNZCV",
	OpGetCarryFromOp:         "GetCarryFromOp",
	OpGetOverflowFromOp:      "GetOverflowFromOp",
	OpGetGEFromOp:            "GetGEFromOp",
	OpLogicalShiftLeft:       "LogicalShiftLeft",
	OpLogicalShiftRight:      "LogicalShiftRight",
	OpArithmeticShiftRight:   "ArithmeticShiftRight",
	OpRotateRight:            "RotateRight",
	OpRotateRightExtended:    "RotateRightExtended",
	OpLogicalShiftRight64:    "LogicalShiftRight64",
	OpAddWithCarry:           "AddWithCarry",
	OpSubWithCarry:           "SubWithCarry",
	OpMul:                    "Mul",
	OpMul64:                  "Mul64",
	OpAnd:                    "And",
	OpEor:                    "Eor",
	OpOr:                     "Or",
	OpNot:                    "Not",
	OpSignExtendByteToWord:   "SignExtendByteToWord",
	OpSignExtendHalfToWord:   "SignExtendHalfToWord",
	OpZeroExtendByteToWord:   "ZeroExtendByteToWord",
	OpZeroExtendHalfToWord:   "ZeroExtendHalfToWord",
	OpByteReverseWord:        "ByteReverseWord",
	OpByteReverseHalf:        "ByteReverseHalf",
	OpByteReverseDual:        "ByteReverseDual",
	OpCountLeadingZeros:      "CountLeadingZeros",
	OpSignedSaturatedAdd:     "SignedSaturatedAdd",
	OpSignedSaturatedSub:     "SignedSaturatedSub",
	OpSignedSaturation:       "SignedSaturation",
	OpUnsignedSaturation:     "UnsignedSaturation",
	OpPackedAddU8:            "PackedAddU8",
	OpPackedAddS8:            "PackedAddS8",
	OpPackedAddU16:           "PackedAddU16",
	OpPackedAddS16:           "PackedAddS16",
	OpPackedSubU8:            "PackedSubU8",
	OpPackedSubS8:            "PackedSubS8",
	OpPackedSubU16:           "PackedSubU16",
	OpPackedSubS16:           "PackedSubS16",
	OpPackedHalvingAddU8:     "PackedHalvingAddU8",
	OpPackedHalvingAddS8:     "PackedHalvingAddS8",
	OpPackedHalvingAddU16:    "PackedHalvingAddU16",
	OpPackedHalvingAddS16:    "PackedHalvingAddS16",
	OpPackedHalvingSubU8:     "PackedHalvingSubU8",
	OpPackedHalvingSubS8:     "PackedHalvingSubS8",
	OpPackedHalvingSubU16:    "PackedHalvingSubU16",
	OpPackedHalvingSubS16:    "PackedHalvingSubS16",
	OpPackedHalvingAddSubU16: "PackedHalvingAddSubU16",
	OpPackedHalvingAddSubS16: "PackedHalvingAddSubS16",
	OpPackedHalvingSubAddU16: "PackedHalvingSubAddU16",
	OpPackedHalvingSubAddS16: "PackedHalvingSubAddS16",
	OpPackedSaturatedAddU8:   "PackedSaturatedAddU8",
	OpPackedSaturatedAddS8:   "PackedSaturatedAddS8",
	OpPackedSaturatedAddU16:  "PackedSaturatedAddU16",
	OpPackedSaturatedAddS16:  "PackedSaturatedAddS16",
	OpPackedSaturatedSubU8:   "PackedSaturatedSubU8",
	OpPackedSaturatedSubS8:   "PackedSaturatedSubS8",
	OpPackedSaturatedSubU16:  "PackedSaturatedSubU16",
	OpPackedSaturatedSubS16:  "PackedSaturatedSubS16",
	OpPackedAbsDiffSumS8:     "PackedAbsDiffSumS8",
	OpFPAbs32:                "FPAbs32",
	OpFPAbs64:                "FPAbs64",
	OpFPNeg32:                "FPNeg32",
	OpFPNeg64:                "FPNeg64",
	OpFPAdd32:                "FPAdd32",
	OpFPAdd64:                "FPAdd64",
	OpFPSub32:                "FPSub32",
	OpFPSub64:                "FPSub64",
	OpFPMul32:                "FPMul32",
	OpFPMul64:                "FPMul64",
	OpFPDiv32:                "FPDiv32",
	OpFPDiv64:                "FPDiv64",
	OpFPSqrt32:               "FPSqrt32",
	OpFPSqrt64:               "FPSqrt64",
	OpFPCompare32:            "FPCompare32",
	OpFPCompare64:            "FPCompare64",
	OpFPSingleToDouble:       "FPSingleToDouble",
	OpFPDoubleToSingle:       "FPDoubleToSingle",
	OpFPSingleToS32:          "FPSingleToS32",
	OpFPSingleToU32:          "FPSingleToU32",
	OpFPDoubleToS32:          "FPDoubleToS32",
	OpFPDoubleToU32:          "FPDoubleToU32",
	OpFPS32ToSingle:          "FPS32ToSingle",
	OpFPU32ToSingle:          "FPU32ToSingle",
	OpFPS32ToDouble:          "FPS32ToDouble",
	OpFPU32ToDouble:          "FPU32ToDouble",
	OpReadMemory8:            "ReadMemory8",
	OpReadMemory16:           "ReadMemory16",
	OpReadMemory32:           "ReadMemory32",
	OpReadMemory64:           "ReadMemory64",
	OpWriteMemory8:           "WriteMemory8",
	OpWriteMemory16:          "WriteMemory16",
	OpWriteMemory32:          "WriteMemory32",
	OpWriteMemory64:          "WriteMemory64",
	OpClearExclusive:         "ClearExclusive",
	OpSetExclusive:           "SetExclusive",
	OpExclusiveWriteMemory8:  "ExclusiveWriteMemory8",
	OpExclusiveWriteMemory16: "ExclusiveWriteMemory16",
	OpExclusiveWriteMemory32: "ExclusiveWriteMemory32",
	OpExclusiveWriteMemory64: "ExclusiveWriteMemory64",
	OpCoprocInternalOperation: "CoprocInternalOperation",
	OpCoprocSendOneWord:       "CoprocSendOneWord",
	OpCoprocSendTwoWords:      "CoprocSendTwoWords",
	OpCoprocGetOneWord:        "CoprocGetOneWord",
	OpCoprocGetTwoWords:       "CoprocGetTwoWords",
	OpCoprocLoadWords:         "CoprocLoadWords",
	OpCoprocStoreWords:        "CoprocStoreWords",
	OpPushRSB:                 "PushRSB",
	OpCallSupervisor:          "CallSupervisor",
	OpBreakpoint:              "Breakpoint",
}
