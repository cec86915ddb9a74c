package persist

import (
	"context"
	"fmt"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/sample"
)

// SyncMessage builds the SyncRegistrations message that brings a fresh
// sample store up to date with the registry.
func (r *Registry) SyncMessage(ctx context.Context) (bridge.SyncRegistrations, error) {
	invalidated, err := r.Invalidated(ctx)
	if err != nil {
		return bridge.SyncRegistrations{}, fmt.Errorf("sync message: %w", err)
	}
	regs, err := r.Registrations(ctx)
	if err != nil {
		return bridge.SyncRegistrations{}, fmt.Errorf("sync message: %w", err)
	}
	return bridge.SyncRegistrations{Invalidated: invalidated, Registrations: regs}, nil
}

// ReplayStats summarizes a Replay.
type ReplayStats struct {
	Cleared int
	Ensured int

	// Refused lists registrations the store would not create, in message
	// order.
	Refused []sample.Registration
}

// Apply performs msg against store: invalidated handles are cleared first,
// then every registration is ensured. Ensure never clobbers populated
// handles, so applying the same message twice is harmless. Registrations the
// store refuses are skipped and reported in Refused.
func Apply(store *sample.Store, msg bridge.SyncRegistrations) ReplayStats {
	var stats ReplayStats
	for _, h := range msg.Invalidated {
		store.ClearHandle(h)
		stats.Cleared++
	}
	for _, reg := range msg.Registrations {
		if !store.Ensure(reg) {
			stats.Refused = append(stats.Refused, reg)
			continue
		}
		stats.Ensured++
	}
	return stats
}

// Accepted returns the registrations of msg that Apply did not refuse.
func (s ReplayStats) Accepted(msg bridge.SyncRegistrations) []sample.Registration {
	if len(s.Refused) == 0 {
		return msg.Registrations
	}
	refused := make(map[sample.Registration]bool, len(s.Refused))
	for _, reg := range s.Refused {
		refused[reg] = true
	}
	out := make([]sample.Registration, 0, len(msg.Registrations)-len(s.Refused))
	for _, reg := range msg.Registrations {
		if !refused[reg] {
			out = append(out, reg)
		}
	}
	return out
}

// Replay applies the registry to store and resets the invalidation flags.
func (r *Registry) Replay(ctx context.Context, store *sample.Store) (ReplayStats, error) {
	msg, err := r.SyncMessage(ctx)
	if err != nil {
		return ReplayStats{}, err
	}
	stats := Apply(store, msg)
	if err := r.clearInvalidated(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// Snapshot records every registration currently held by store.
func (r *Registry) Snapshot(ctx context.Context, store *sample.Store) error {
	return r.PutAll(ctx, store.Registrations())
}
