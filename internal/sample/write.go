package sample

import (
	"github.com/roach88/samplerec/internal/ir"
)

// SetSampleData replaces the audio of h with channels by reference.
// Callers hand over ownership: channels must not be modified afterwards.
// The error is cleared and the version bumped. Returns false if h is unknown.
func (s *Store) SetSampleData(h ir.Handle, channels [][]float32, sampleRate int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return false
	}
	e.snap.Store(newSnapshot(h, channels, sampleRate))
	e.version.Add(1)
	return true
}

// RecordSample stores a deep copy of channels as the audio of h. It has the
// same contract as SetSampleData and is used by the offline record pipeline,
// whose render buffers are reused.
func (s *Store) RecordSample(h ir.Handle, channels [][]float32, sampleRate int) bool {
	return s.SetSampleData(h, copyChannels(channels), sampleRate)
}

// SetSampleError marks h as failed. Any previous audio is dropped so readers
// see silence. Returns false if h is unknown.
func (s *Store) SetSampleError(h ir.Handle, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return false
	}
	prev := e.snap.Load()
	e.snap.Store(&Sample{ID: h, SampleRate: prev.SampleRate, Error: msg})
	e.version.Add(1)
	s.logger.Debug("sample error", "handle", h, "error", msg)
	return true
}

// ClearHandle wipes the audio and cached slices of h but keeps its identity
// and origin, so the same handle can be filled again.
func (s *Store) ClearHandle(h ir.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return
	}
	e.snap.Store(s.pending(h))
	e.version.Add(1)
	e.slices.reset(ir.Version(e.version.Load()))
}

// Clear drops every handle. The next issued handle is 1 again.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetArena()
	s.next = 1
	s.byExternal = make(map[string]ir.Handle)
	s.byRecord = make(map[ir.RecordKey]ir.Handle)
}
