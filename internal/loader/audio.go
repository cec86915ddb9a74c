package loader

import (
	"io"

	"github.com/ik5/audpbx/audio"
	"github.com/tphakala/simd/f32"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
)

// Audio is decoded, deinterleaved sample data.
type Audio struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the length of the longest channel.
func (a *Audio) Frames() int {
	n := 0
	for _, ch := range a.Channels {
		n = max(n, len(ch))
	}
	return n
}

// Message returns the publication that loads this audio into handle h.
func (a *Audio) Message(h ir.Handle) bridge.SetSampleData {
	return bridge.SetSampleData{Handle: h, SampleRate: a.SampleRate, Channels: a.Channels}
}

// source returns the audio as an interleaved audio.Source.
func (a *Audio) source() audio.Source {
	return &bufferSource{
		rate:     a.SampleRate,
		channels: len(a.Channels),
		data:     interleave(a.Channels, a.Frames()),
	}
}

// bufferSource serves interleaved samples held in memory.
type bufferSource struct {
	rate     int
	channels int
	data     []float32
	pos      int
}

func (s *bufferSource) SampleRate() int { return s.rate }
func (s *bufferSource) Channels() int   { return s.channels }
func (s *bufferSource) BufSize() int    { return 4096 - 4096%s.channels }
func (s *bufferSource) Close() error    { return nil }

// ReadSamples reports io.EOF only once nothing is left, so the last frame is
// never dropped by readers that discard data returned alongside io.EOF.
func (s *bufferSource) ReadSamples(dst []float32) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(dst, s.data[s.pos:])
	s.pos += n
	return n, nil
}

// interleave packs channels frame by frame, zero-padding short channels.
func interleave(channels [][]float32, frames int) []float32 {
	out := make([]float32, frames*len(channels))
	if len(channels) == 2 && len(channels[0]) == frames && len(channels[1]) == frames {
		f32.Interleave2(out, channels[0], channels[1])
		return out
	}
	for c, ch := range channels {
		for i, v := range ch {
			out[i*len(channels)+c] = v
		}
	}
	return out
}

func deinterleave(data []float32, channels int) [][]float32 {
	frames := len(data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			out[c][i] = data[i*channels+c]
		}
	}
	return out
}
