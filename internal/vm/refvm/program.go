package refvm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// instr is one decoded instruction.
type instr struct {
	pc    int
	op    Op
	value float64
	slot  int
	scope uint32
}

// DecodeError reports malformed bytecode.
type DecodeError struct {
	PC      int
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at pc %d: %s", e.PC, e.Message)
}

// decode validates program and splits it into instructions.
func decode(program []byte) ([]instr, error) {
	out := make([]instr, 0, len(program)/2)
	for pc := 0; pc < len(program); {
		op := Op(program[pc])
		info, ok := opTable[op]
		if !ok {
			return nil, &DecodeError{PC: pc, Message: fmt.Sprintf("unknown opcode 0x%02x", byte(op))}
		}
		size := operandSize(info.args)
		if pc+1+size > len(program) {
			return nil, &DecodeError{PC: pc, Message: fmt.Sprintf("truncated operand for %s", info.name)}
		}
		arg := program[pc+1 : pc+1+size]
		in := instr{pc: pc, op: op}
		switch info.args {
		case argF64:
			in.value = math.Float64frombits(binary.LittleEndian.Uint64(arg))
		case argSlot:
			in.slot = int(binary.LittleEndian.Uint16(arg))
		case argScopeSlot:
			in.scope = binary.LittleEndian.Uint32(arg[0:4])
			in.slot = int(binary.LittleEndian.Uint16(arg[4:6]))
		}
		out = append(out, in)
		pc += 1 + size
	}
	return out, nil
}

// encode appends one instruction to dst.
func encode(dst []byte, in instr) []byte {
	dst = append(dst, byte(in.op))
	switch opTable[in.op].args {
	case argF64:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(in.value))
	case argSlot:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(in.slot))
	case argScopeSlot:
		dst = binary.LittleEndian.AppendUint32(dst, in.scope)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(in.slot))
	}
	return dst
}

// maxGlobalSlot returns the highest slot loaded or stored, or -1.
func maxGlobalSlot(code []instr) int {
	maxSlot := -1
	for _, in := range code {
		if (in.op == OpLoad || in.op == OpStore) && in.slot > maxSlot {
			maxSlot = in.slot
		}
	}
	return maxSlot
}
