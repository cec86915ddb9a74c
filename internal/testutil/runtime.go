package testutil

import (
	"context"
	"sync"

	"github.com/roach88/samplerec/internal/vm"
)

// CountingRuntime wraps a vm.Runtime and records how it is driven: the
// number of captures and renders, the largest number of calls in flight at
// once, and the globals size of the last render.
type CountingRuntime struct {
	vm.Runtime

	mu          sync.Mutex
	active      int
	maxActive   int
	captures    int
	renders     int
	globalsSize int
}

// NewCountingRuntime wraps rt.
func NewCountingRuntime(rt vm.Runtime) *CountingRuntime {
	return &CountingRuntime{Runtime: rt}
}

func (c *CountingRuntime) enter(render bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active++
	c.maxActive = max(c.maxActive, c.active)
	if render {
		c.renders++
	} else {
		c.captures++
	}
}

func (c *CountingRuntime) leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
}

// Capture counts and forwards.
func (c *CountingRuntime) Capture(ctx context.Context, inst vm.Instance, job vm.CaptureJob) error {
	c.enter(false)
	defer c.leave()
	return c.Runtime.Capture(ctx, inst, job)
}

// Render counts and forwards.
func (c *CountingRuntime) Render(ctx context.Context, inst vm.Instance, job vm.RenderJob) ([][]float32, error) {
	c.enter(true)
	defer c.leave()
	c.mu.Lock()
	c.globalsSize = job.Globals.Len()
	c.mu.Unlock()
	return c.Runtime.Render(ctx, inst, job)
}

// Captures returns the number of Capture calls.
func (c *CountingRuntime) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// Renders returns the number of Render calls.
func (c *CountingRuntime) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renders
}

// MaxActive returns the most calls that were ever in flight together.
func (c *CountingRuntime) MaxActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxActive
}

// GlobalsSize returns the globals length of the last render.
func (c *CountingRuntime) GlobalsSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalsSize
}
