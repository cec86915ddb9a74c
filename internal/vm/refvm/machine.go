package refvm

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/vm"
)

// ExecError reports a failure while executing an instruction.
type ExecError struct {
	PC  int
	Op  Op
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec %s at pc %d: %v", e.Op, e.PC, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ErrStackUnderflow is returned when an instruction pops an empty stack.
var ErrStackUnderflow = errors.New("stack underflow")

// machine executes decoded code against one set of globals.
type machine struct {
	stack     []float64
	globals   *vm.Slots
	transport vm.Transport
	host      vm.Host

	// capture mode
	capture *vm.Slots
	scope   uint32

	out    float64
	outSet bool
	buf    [1]float32
}

func (m *machine) pop() float64 {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *machine) push(v float64) {
	m.stack = append(m.stack, v)
}

func (m *machine) handle(v float64) ir.Handle {
	if v < 0 || v > math.MaxUint32 || math.IsNaN(v) {
		return ir.NoHandle
	}
	return ir.Handle(uint32(v))
}

// run executes code once. The stack is reset on entry.
func (m *machine) run(code []instr) error {
	m.stack = m.stack[:0]
	m.outSet = false
	for _, in := range code {
		info := opTable[in.op]
		if len(m.stack) < info.pop {
			return &ExecError{PC: in.pc, Op: in.op, Err: ErrStackUnderflow}
		}
		if err := m.step(in); err != nil {
			return &ExecError{PC: in.pc, Op: in.op, Err: err}
		}
		if in.op == OpHalt {
			return nil
		}
	}
	return nil
}

func (m *machine) step(in instr) error {
	switch in.op {
	case OpHalt:
	case OpPush:
		m.push(in.value)
	case OpLoad:
		v, defined, err := m.globals.Get(in.slot)
		if err != nil {
			return err
		}
		if !defined {
			v = math.NaN()
		}
		m.push(v)
	case OpStore:
		return m.globals.Set(in.slot, m.pop())
	case OpAdd:
		b, a := m.pop(), m.pop()
		m.push(a + b)
	case OpSub:
		b, a := m.pop(), m.pop()
		m.push(a - b)
	case OpMul:
		b, a := m.pop(), m.pop()
		m.push(a * b)
	case OpDiv:
		b, a := m.pop(), m.pop()
		m.push(a / b)
	case OpSin:
		m.push(math.Sin(m.pop()))
	case OpFract:
		v := m.pop()
		m.push(v - math.Floor(v))
	case OpDup:
		v := m.pop()
		m.push(v)
		m.push(v)
	case OpDrop:
		m.pop()
	case OpSwap:
		b, a := m.pop(), m.pop()
		m.push(b)
		m.push(a)
	case OpRate:
		m.push(m.transport.SampleRate)
	case OpPiNyq:
		m.push(m.transport.PiOverNyquist)
	case OpBPM:
		m.push(m.transport.BPM)
	case OpOut:
		m.out = m.pop()
		m.outSet = true
	case OpCapture:
		v := m.pop()
		if m.capture != nil && in.scope == m.scope {
			return m.capture.Set(in.slot, v)
		}
	case OpUndef:
		if m.capture != nil && in.scope == m.scope {
			return m.capture.SetUndefined(in.slot)
		}
	case OpNaN:
		m.push(math.NaN())
	case OpSample:
		offset, ch, h := m.pop(), m.pop(), m.pop()
		if m.host == nil {
			m.push(0)
			return nil
		}
		m.host.ReadChunk(m.handle(h), int(ch), int(offset), m.buf[:])
		m.push(float64(m.buf[0]))
	case OpSliceCount:
		thr, h := m.pop(), m.pop()
		if m.host == nil {
			m.push(1)
			return nil
		}
		m.push(float64(m.host.SliceCount(m.handle(h), thr)))
	case OpSlicePoint:
		i, thr, h := m.pop(), m.pop(), m.pop()
		if m.host == nil {
			m.push(0)
			return nil
		}
		m.push(float64(m.host.SlicePoint(m.handle(h), thr, int(i))))
	case OpLength:
		ch, h := m.pop(), m.pop()
		if m.host == nil {
			m.push(0)
			return nil
		}
		m.push(float64(m.host.Length(m.handle(h), int(ch))))
	case OpVersion:
		h := m.pop()
		if m.host == nil {
			m.push(0)
			return nil
		}
		m.push(float64(m.host.Version(m.handle(h))))
	case OpChannels:
		h := m.pop()
		if m.host == nil {
			m.push(0)
			return nil
		}
		m.push(float64(m.host.ChannelCount(m.handle(h))))
	default:
		return fmt.Errorf("unhandled opcode 0x%02x", byte(in.op))
	}
	return nil
}
