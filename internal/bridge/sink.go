package bridge

import (
	"log/slog"

	"github.com/roach88/samplerec/internal/sample"
)

var _ Engine = (*StoreSink)(nil)

// StoreSink is the realtime side of a publish: it applies SetSampleData
// and SetSampleError to the engine's own sample.Store through a
// VersionGate. Unknown handles are created as pending inline samples first,
// since the engine may hear about a handle before it is synced.
type StoreSink struct {
	store  *sample.Store
	gate   *VersionGate
	logger *slog.Logger
}

// NewStoreSink creates a sink writing into store.
func NewStoreSink(store *sample.Store, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{store: store, gate: NewVersionGate(), logger: logger}
}

// SetSampleData swaps in the published channels unless the publish is stale.
// The channels are shared with the publisher and are not copied.
func (s *StoreSink) SetSampleData(msg SetSampleData) {
	if !s.gate.Admit(msg.Handle, msg.Version) {
		s.logger.Debug("dropped stale publish", "handle", msg.Handle, "version", msg.Version)
		return
	}
	if !s.store.EnsureInline(msg.Handle) {
		s.logger.Warn("dropped publish for refused handle", "handle", msg.Handle)
		return
	}
	s.store.SetSampleData(msg.Handle, msg.Channels, msg.SampleRate)
}

// SetSampleError records the failure unless the publish is stale.
func (s *StoreSink) SetSampleError(msg SetSampleError) {
	if !s.gate.Admit(msg.Handle, msg.Version) {
		s.logger.Debug("dropped stale publish", "handle", msg.Handle, "version", msg.Version)
		return
	}
	if !s.store.EnsureInline(msg.Handle) {
		s.logger.Warn("dropped publish for refused handle", "handle", msg.Handle)
		return
	}
	s.store.SetSampleError(msg.Handle, msg.Error)
}

// Store returns the store the sink writes to.
func (s *StoreSink) Store() *sample.Store {
	return s.store
}

// Gate returns the sink's version gate.
func (s *StoreSink) Gate() *VersionGate {
	return s.gate
}
