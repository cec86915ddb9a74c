package sample

import (
	"github.com/roach88/samplerec/internal/ir"
)

// Sample returns the current snapshot of h, or nil if h is unknown.
func (s *Store) Sample(h ir.Handle) *Sample {
	e := s.lookup(h)
	if e == nil {
		return nil
	}
	return e.snap.Load()
}

// Version returns the mutation counter of h (0 if unknown or never written).
func (s *Store) Version(h ir.Handle) ir.Version {
	e := s.lookup(h)
	if e == nil {
		return 0
	}
	return ir.Version(e.version.Load())
}

// Origin returns the registration origin of h.
func (s *Store) Origin(h ir.Handle) (ir.Origin, bool) {
	e := s.lookup(h)
	if e == nil {
		return ir.Origin{}, false
	}
	return e.origin, true
}

// ChannelCount returns the number of channels of a ready sample, else 0.
func (s *Store) ChannelCount(h ir.Handle) int {
	snap := s.Sample(h)
	if snap == nil || !snap.Ready {
		return 0
	}
	return len(snap.Channels)
}

// Length returns the length of channel ch of a ready sample, else 0.
func (s *Store) Length(h ir.Handle, ch int) int {
	snap := s.Sample(h)
	if snap == nil || !snap.Ready || ch < 0 || ch >= len(snap.Channels) {
		return 0
	}
	return len(snap.Channels[ch])
}

// ReadChunk returns n samples of channel ch starting at offset. Positions
// outside the sample, and every position of an unready sample, read as 0.
func (s *Store) ReadChunk(h ir.Handle, ch, offset, n int) []float32 {
	if n <= 0 {
		return []float32{}
	}
	dst := make([]float32, n)
	s.ReadChunkInto(h, ch, offset, dst)
	return dst
}

// ReadChunkInto fills dst like ReadChunk without allocating and returns the
// number of samples copied from the sample; the rest of dst is zeroed.
// It never locks and is safe to call from the audio thread.
func (s *Store) ReadChunkInto(h ir.Handle, ch, offset int, dst []float32) int {
	snap := s.Sample(h)
	if snap == nil || !snap.Ready || ch < 0 || ch >= len(snap.Channels) {
		clear(dst)
		return 0
	}
	data := snap.Channels[ch]
	start := min(max(offset, 0), len(data))
	end := max(start, min(start+len(dst), len(data)))
	n := copy(dst, data[start:end])
	clear(dst[n:])
	return n
}

// AllReady reports whether every registered handle holds data.
func (s *Store) AllReady() bool {
	ready := true
	s.each(func(_ ir.Handle, e *entry) {
		if !e.snap.Load().Ready {
			ready = false
		}
	})
	return ready
}

// Pending returns the handles that are not ready, in handle order.
func (s *Store) Pending() []ir.Handle {
	var out []ir.Handle
	s.each(func(h ir.Handle, e *entry) {
		if !e.snap.Load().Ready {
			out = append(out, h)
		}
	})
	return out
}

// Required returns the pending handles with the origin each must be loaded
// or rendered from.
func (s *Store) Required() []Registration {
	var out []Registration
	s.each(func(h ir.Handle, e *entry) {
		if !e.snap.Load().Ready {
			out = append(out, Registration{Handle: h, Origin: e.origin})
		}
	})
	return out
}

// Registrations returns every handle with its origin, in handle order.
func (s *Store) Registrations() []Registration {
	out := []Registration{}
	s.each(func(h ir.Handle, e *entry) {
		out = append(out, Registration{Handle: h, Origin: e.origin})
	})
	return out
}

// MemoryInfo reports the number of handles and the bytes held by their
// channel data.
func (s *Store) MemoryInfo() MemoryInfo {
	var info MemoryInfo
	s.each(func(_ ir.Handle, e *entry) {
		info.HandleCount++
		for _, ch := range e.snap.Load().Channels {
			info.TotalChannelBytes += int64(len(ch)) * 4
		}
	})
	return info
}
