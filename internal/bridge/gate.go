package bridge

import (
	"sync"

	"github.com/roach88/samplerec/internal/ir"
)

// VersionGate drops stale publishes. For each handle it remembers the
// highest version applied; anything at or below it is ignored.
//
// Thread-safety: safe for concurrent use.
type VersionGate struct {
	mu      sync.Mutex
	applied map[ir.Handle]ir.Version
}

// NewVersionGate creates an empty gate.
func NewVersionGate() *VersionGate {
	return &VersionGate{applied: make(map[ir.Handle]ir.Version)}
}

// Admit reports whether version v of h is newer than anything applied so
// far, and records it if so.
func (g *VersionGate) Admit(h ir.Handle, v ir.Version) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.applied[h]; ok && v <= last {
		return false
	}
	g.applied[h] = v
	return true
}

// Last returns the last applied version of h.
func (g *VersionGate) Last(h ir.Handle) (ir.Version, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.applied[h]
	return v, ok
}

// Forget drops what the gate knows about h, so its next publish is admitted.
func (g *VersionGate) Forget(h ir.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.applied, h)
}
