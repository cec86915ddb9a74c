package sample

import (
	"github.com/roach88/samplerec/internal/ir"
)

// RegisterExternalRef returns the handle for an externally hosted sample,
// issuing a pending one the first time id is seen.
func (s *Store) RegisterExternalRef(id string) ir.Handle {
	origin := ir.ExternalRef(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.byExternal[origin.ExternalID]; ok {
		return h
	}
	h, ok := s.issueLocked()
	if !ok {
		return ir.NoHandle
	}
	s.insertLocked(h, origin, s.pending(h))
	s.logger.Debug("registered sample", "handle", h, "kind", origin.Kind, "external_id", origin.ExternalID)
	return h
}

// RegisterRecordRequest returns the handle for an offline recording of
// callbackID over seconds in projectID. Repeating the exact triple returns
// the same handle.
func (s *Store) RegisterRecordRequest(projectID string, seconds float64, callbackID int64) ir.Handle {
	origin := ir.RecordRequest(projectID, seconds, callbackID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.byRecord[origin.RecordKey()]; ok {
		return h
	}
	h, ok := s.issueLocked()
	if !ok {
		return ir.NoHandle
	}
	s.insertLocked(h, origin, s.pending(h))
	s.logger.Debug("registered sample", "handle", h, "kind", origin.Kind,
		"project_id", origin.ProjectID, "seconds", seconds, "callback_id", callbackID)
	return h
}

// RegisterInline issues a handle holding a deep copy of channels.
// The handle is ready iff channels is non-empty with a non-empty first channel.
func (s *Store) RegisterInline(channels [][]float32, sampleRate int) ir.Handle {
	copied := copyChannels(channels)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.issueLocked()
	if !ok {
		return ir.NoHandle
	}
	e := s.insertLocked(h, ir.Inline(), newSnapshot(h, copied, sampleRate))
	e.version.Add(1)
	return h
}

// RegisterSynthesized issues a pending handle whose audio will be produced
// by a synthesizer and delivered through SetSampleData.
func (s *Store) RegisterSynthesized() ir.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.issueLocked()
	if !ok {
		return ir.NoHandle
	}
	s.insertLocked(h, ir.Synthesized(), s.pending(h))
	return h
}

// EnsureExternalRef creates handle h as a pending external sample unless it
// already exists. Existing data is never touched. It reports whether h is
// registered afterwards; see Ensure.
func (s *Store) EnsureExternalRef(h ir.Handle, id string) bool {
	return s.ensure(h, ir.ExternalRef(id))
}

// EnsureRecordRequest creates handle h as a pending recording unless it
// already exists. Replayed registrations carry no project id.
func (s *Store) EnsureRecordRequest(h ir.Handle, seconds float64, callbackID int64) bool {
	return s.ensure(h, ir.RecordRequest("", seconds, callbackID))
}

// EnsureInline creates handle h as a pending inline sample unless it exists.
func (s *Store) EnsureInline(h ir.Handle) bool {
	return s.ensure(h, ir.Inline())
}

// EnsureSynthesized creates handle h as a pending synthesized sample unless
// it exists.
func (s *Store) EnsureSynthesized(h ir.Handle) bool {
	return s.ensure(h, ir.Synthesized())
}

// Ensure creates h with origin unless it exists. It dispatches on the
// origin kind and is used when replaying persisted registrations.
//
// It returns false, creating nothing, when h is NoHandle, the origin kind is
// unknown, or h lies more than the configured gap (DefaultMaxHandleGap)
// past the next handle the store would issue. Existing handles always
// report true.
func (s *Store) Ensure(r Registration) bool {
	switch r.Origin.Kind {
	case ir.OriginExternal:
		return s.EnsureExternalRef(r.Handle, r.Origin.ExternalID)
	case ir.OriginRecord:
		return s.ensure(r.Handle, r.Origin)
	case ir.OriginInline:
		return s.EnsureInline(r.Handle)
	case ir.OriginSynthesized:
		return s.EnsureSynthesized(r.Handle)
	}
	return false
}

func (s *Store) ensure(h ir.Handle, origin ir.Origin) bool {
	if !h.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(h) != nil {
		return true
	}
	if !s.inWindowLocked(h) {
		s.logger.Warn("refused handle outside registration window", "handle", h, "next", s.next, "max_gap", s.maxGap)
		return false
	}
	s.insertLocked(h, origin, s.pending(h))
	s.logger.Debug("ensured sample", "handle", h, "kind", origin.Kind)
	return true
}

func newSnapshot(h ir.Handle, channels [][]float32, sampleRate int) *Sample {
	length := 0
	if len(channels) > 0 {
		length = len(channels[0])
	}
	return &Sample{
		ID:         h,
		Channels:   channels,
		Length:     length,
		SampleRate: sampleRate,
		Ready:      len(channels) > 0 && length > 0,
	}
}

func copyChannels(channels [][]float32) [][]float32 {
	out := make([][]float32, len(channels))
	for i, ch := range channels {
		out[i] = append([]float32(nil), ch...)
	}
	return out
}
