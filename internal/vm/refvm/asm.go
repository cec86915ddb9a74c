package refvm

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AsmError reports an invalid line of assembly.
type AsmError struct {
	Line    int
	Message string
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Assemble translates the text form into bytecode.
func Assemble(src string) ([]byte, error) {
	var out []byte
	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexAny(text, ";#"); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		op, ok := opByName[strings.ToLower(fields[0])]
		if !ok {
			return nil, &AsmError{Line: line, Message: fmt.Sprintf("unknown instruction %q", fields[0])}
		}
		info := opTable[op]
		args := fields[1:]
		in := instr{op: op}

		switch info.args {
		case argNone:
			if len(args) != 0 {
				return nil, &AsmError{Line: line, Message: fmt.Sprintf("%s takes no operands", info.name)}
			}
		case argF64:
			if len(args) != 1 {
				return nil, &AsmError{Line: line, Message: "push takes one number"}
			}
			v, err := parseNumber(args[0])
			if err != nil {
				return nil, &AsmError{Line: line, Message: err.Error()}
			}
			in.value = v
		case argSlot:
			if len(args) != 1 {
				return nil, &AsmError{Line: line, Message: fmt.Sprintf("%s takes one slot", info.name)}
			}
			slot, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return nil, &AsmError{Line: line, Message: fmt.Sprintf("bad slot %q", args[0])}
			}
			in.slot = int(slot)
		case argScopeSlot:
			if len(args) != 2 {
				return nil, &AsmError{Line: line, Message: fmt.Sprintf("%s takes a scope and a dependency", info.name)}
			}
			scope, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return nil, &AsmError{Line: line, Message: fmt.Sprintf("bad scope %q", args[0])}
			}
			slot, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return nil, &AsmError{Line: line, Message: fmt.Sprintf("bad dependency %q", args[1])}
			}
			in.scope = uint32(scope)
			in.slot = int(slot)
		}
		out = encode(out, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MustAssemble is like Assemble but panics on error.
// Use only in tests or with constant programs.
func MustAssemble(src string) []byte {
	b, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return b
}

func parseNumber(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "pi":
		return math.Pi, nil
	case "nan":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// Disassemble renders program in the text form, one instruction per line
// prefixed with its byte offset. Undecodable tails are reported inline.
func Disassemble(program []byte) string {
	var b strings.Builder
	for pc := 0; pc < len(program); {
		op := Op(program[pc])
		info, ok := opTable[op]
		if !ok {
			fmt.Fprintf(&b, "%04d  ??? 0x%02x\n", pc, byte(op))
			pc++
			continue
		}
		size := operandSize(info.args)
		if pc+1+size > len(program) {
			fmt.Fprintf(&b, "%04d  %s <truncated>\n", pc, info.name)
			break
		}
		code, _ := decode(program[pc : pc+1+size])
		in := code[0]
		switch info.args {
		case argF64:
			fmt.Fprintf(&b, "%04d  %s %s\n", pc, info.name, strconv.FormatFloat(in.value, 'g', -1, 64))
		case argSlot:
			fmt.Fprintf(&b, "%04d  %s %d\n", pc, info.name, in.slot)
		case argScopeSlot:
			fmt.Fprintf(&b, "%04d  %s %d %d\n", pc, info.name, in.scope, in.slot)
		default:
			fmt.Fprintf(&b, "%04d  %s\n", pc, info.name)
		}
		pc += 1 + size
	}
	return b.String()
}
