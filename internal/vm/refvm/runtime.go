package refvm

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/samplerec/internal/vm"
)

var _ vm.Runtime = (*Runtime)(nil)

// ctxCheckInterval is how many loop iterations run between context checks.
const ctxCheckInterval = 4096

// instanceState is the memory owned by one instance until Collect.
type instanceState struct {
	stack  []float64
	output []float32
}

// Runtime is the reference vm.Runtime.
//
// Thread-safety: each method locks the runtime, so instances never execute
// concurrently.
type Runtime struct {
	mu          sync.Mutex
	host        vm.Host
	instances   map[vm.Instance]*instanceState
	collections map[vm.Instance]int
	executions  int
}

// New returns a Runtime that calls back into host. host may be nil, in
// which case sample reads return silence.
func New(host vm.Host) *Runtime {
	return &Runtime{
		host:        host,
		instances:   make(map[vm.Instance]*instanceState),
		collections: make(map[vm.Instance]int),
	}
}

func (r *Runtime) instance(inst vm.Instance) *instanceState {
	st, ok := r.instances[inst]
	if !ok {
		st = &instanceState{stack: make([]float64, 0, 32)}
		r.instances[inst] = st
	}
	return st
}

// Capture runs job.Program once. Only capture/undef instructions for
// job.ScopeID write to job.Store.
func (r *Runtime) Capture(ctx context.Context, inst vm.Instance, job vm.CaptureJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.Store == nil {
		return fmt.Errorf("capture: nil store")
	}
	code, err := decode(job.Program)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions++

	st := r.instance(inst)
	m := &machine{
		stack:     st.stack,
		globals:   vm.NewSlots(maxGlobalSlot(code) + 1),
		transport: job.Transport,
		host:      r.host,
		capture:   job.Store,
		scope:     job.ScopeID,
	}
	err = m.run(code)
	st.stack = m.stack
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Render runs job.Setup once and job.Loop job.NumSamples times. The
// returned channel is owned by inst until the next Render or Collect.
func (r *Runtime) Render(ctx context.Context, inst vm.Instance, job vm.RenderJob) ([][]float32, error) {
	if job.Globals == nil {
		return nil, fmt.Errorf("render: nil globals")
	}
	if job.NumSamples < 0 {
		return nil, fmt.Errorf("render: negative sample count %d", job.NumSamples)
	}
	setup, err := decode(job.Setup)
	if err != nil {
		return nil, fmt.Errorf("render setup: %w", err)
	}
	loop, err := decode(job.Loop)
	if err != nil {
		return nil, fmt.Errorf("render loop: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions++

	st := r.instance(inst)
	if cap(st.output) < job.NumSamples {
		st.output = make([]float32, job.NumSamples)
	}
	out := st.output[:job.NumSamples]

	m := &machine{
		stack:     st.stack,
		globals:   job.Globals,
		transport: job.Transport,
		host:      r.host,
	}
	defer func() { st.stack = m.stack }()

	if err := m.run(setup); err != nil {
		return nil, fmt.Errorf("render setup: %w", err)
	}
	for i := range out {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := m.run(loop); err != nil {
			return nil, fmt.Errorf("render loop sample %d: %w", i, err)
		}
		if m.outSet {
			out[i] = float32(m.out)
		} else {
			out[i] = 0
		}
	}
	return [][]float32{out}, nil
}

// MaxSlot returns the highest global slot program loads or stores, or -1.
func (r *Runtime) MaxSlot(program []byte) (int, error) {
	code, err := decode(program)
	if err != nil {
		return -1, err
	}
	return maxGlobalSlot(code), nil
}

// Collect drops all memory held by inst.
func (r *Runtime) Collect(inst vm.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, inst)
	r.collections[inst]++
}

// Disassemble renders program as text.
func (r *Runtime) Disassemble(program []byte) string {
	return Disassemble(program)
}

// Collections returns how many times inst has been collected.
func (r *Runtime) Collections(inst vm.Instance) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collections[inst]
}

// Executions returns the number of Capture and Render calls that ran
// bytecode.
func (r *Runtime) Executions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executions
}
