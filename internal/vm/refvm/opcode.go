package refvm

import "fmt"

// Op is a bytecode opcode.
type Op byte

const (
	OpHalt  Op = 0x00
	OpPush  Op = 0x01 // f64
	OpLoad  Op = 0x02 // u16 slot
	OpStore Op = 0x03 // u16 slot
	OpAdd   Op = 0x04
	OpSub   Op = 0x05
	OpMul   Op = 0x06
	OpDiv   Op = 0x07
	OpSin   Op = 0x08
	OpFract Op = 0x09
	OpDup   Op = 0x0a
	OpDrop  Op = 0x0b
	OpSwap  Op = 0x0c

	OpRate  Op = 0x10
	OpPiNyq Op = 0x11
	OpBPM   Op = 0x12
	OpOut   Op = 0x13

	OpCapture Op = 0x20 // u32 scope, u16 dependency
	OpUndef   Op = 0x21 // u32 scope, u16 dependency
	OpNaN     Op = 0x22

	OpSample     Op = 0x30
	OpSliceCount Op = 0x31
	OpSlicePoint Op = 0x32
	OpLength     Op = 0x33
	OpVersion    Op = 0x34
	OpChannels   Op = 0x35
)

// operand layouts
const (
	argNone = iota
	argF64
	argSlot
	argScopeSlot
)

type opInfo struct {
	name string
	args int
	pop  int
	push int
}

var opTable = map[Op]opInfo{
	OpHalt:       {"halt", argNone, 0, 0},
	OpPush:       {"push", argF64, 0, 1},
	OpLoad:       {"load", argSlot, 0, 1},
	OpStore:      {"store", argSlot, 1, 0},
	OpAdd:        {"add", argNone, 2, 1},
	OpSub:        {"sub", argNone, 2, 1},
	OpMul:        {"mul", argNone, 2, 1},
	OpDiv:        {"div", argNone, 2, 1},
	OpSin:        {"sin", argNone, 1, 1},
	OpFract:      {"fract", argNone, 1, 1},
	OpDup:        {"dup", argNone, 1, 2},
	OpDrop:       {"drop", argNone, 1, 0},
	OpSwap:       {"swap", argNone, 2, 2},
	OpRate:       {"rate", argNone, 0, 1},
	OpPiNyq:      {"pinyq", argNone, 0, 1},
	OpBPM:        {"bpm", argNone, 0, 1},
	OpOut:        {"out", argNone, 1, 0},
	OpCapture:    {"capture", argScopeSlot, 1, 0},
	OpUndef:      {"undef", argScopeSlot, 0, 0},
	OpNaN:        {"nan", argNone, 0, 1},
	OpSample:     {"smp", argNone, 3, 1},
	OpSliceCount: {"slcount", argNone, 2, 1},
	OpSlicePoint: {"slpoint", argNone, 3, 1},
	OpLength:     {"len", argNone, 2, 1},
	OpVersion:    {"ver", argNone, 1, 1},
	OpChannels:   {"chans", argNone, 1, 1},
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, len(opTable))
	for op, info := range opTable {
		m[info.name] = op
	}
	return m
}()

func (o Op) String() string {
	if info, ok := opTable[o]; ok {
		return info.name
	}
	return fmt.Sprintf("op(0x%02x)", byte(o))
}

func operandSize(args int) int {
	switch args {
	case argF64:
		return 8
	case argSlot:
		return 2
	case argScopeSlot:
		return 6
	default:
		return 0
	}
}
