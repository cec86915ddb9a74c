package loader

import (
	"errors"
	"io"
	"testing"

	"github.com/ik5/audpbx/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	data []float32
	err  error
}

// scriptedSource replays chunks, then reports io.EOF forever.
type scriptedSource struct {
	rate     int
	channels int
	chunks   []chunk
	closed   bool
}

func (s *scriptedSource) SampleRate() int { return s.rate }
func (s *scriptedSource) Channels() int   { return s.channels }
func (s *scriptedSource) BufSize() int    { return 64 }
func (s *scriptedSource) Close() error    { s.closed = true; return nil }

func (s *scriptedSource) ReadSamples(dst []float32) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return copy(dst, c.data), c.err
}

type scriptedDecoder struct {
	src *scriptedSource
	err error
}

func (d scriptedDecoder) Decode(io.Reader) (audio.Source, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.src, nil
}

func TestBuffered_KeepsSamplesReturnedWithEOF(t *testing.T) {
	src := &scriptedSource{rate: 8000, channels: 2, chunks: []chunk{
		{data: []float32{0.1, 0.2}},
		{},
		{data: []float32{0.3, 0.4}, err: io.EOF},
	}}

	out, err := buffered{name: "mp3", dec: scriptedDecoder{src: src}}.Decode(nil)
	require.NoError(t, err)
	assert.True(t, src.closed)

	a, err := drain(out)
	require.NoError(t, err)
	assert.Equal(t, 8000, a.SampleRate)
	assert.Equal(t, [][]float32{{0.1, 0.3}, {0.2, 0.4}}, a.Channels)
}

func TestBuffered_ResamplerSeesLastFrame(t *testing.T) {
	src := &scriptedSource{rate: 8000, channels: 1, chunks: []chunk{
		{data: constant(6, 0.5)},
		{data: constant(2, 0.5), err: io.EOF},
	}}

	out, err := buffered{name: "ogg", dec: scriptedDecoder{src: src}}.Decode(nil)
	require.NoError(t, err)

	up, err := drain(audio.NewResampler(out, 16000))
	require.NoError(t, err)
	require.Len(t, up.Channels, 1)
	assert.InDelta(t, 16, len(up.Channels[0]), 4)
	for i, v := range up.Channels[0] {
		require.InDelta(t, 0.5, v, 1e-4, "frame %d", i)
	}
}

func TestBuffered_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := buffered{name: "mp3", dec: scriptedDecoder{err: boom}}.Decode(nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "decoding mp3")

	src := &scriptedSource{rate: 8000, channels: 1, chunks: []chunk{{data: []float32{1}, err: boom}}}
	_, err = buffered{name: "ogg", dec: scriptedDecoder{src: src}}.Decode(nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "decoding ogg")

	_, err = buffered{name: "ogg", dec: scriptedDecoder{src: &scriptedSource{rate: 8000}}}.Decode(nil)
	assert.ErrorIs(t, err, ErrNoChannels)
}

func TestCollect_StalledSource(t *testing.T) {
	chunks := make([]chunk, maxIdleReads+1)
	src := &scriptedSource{rate: 8000, channels: 1, chunks: chunks}

	_, err := collect(src)
	assert.ErrorIs(t, err, io.ErrNoProgress)
}

func TestCollect_DropsPartialTrailingFrame(t *testing.T) {
	src := &scriptedSource{rate: 8000, channels: 2, chunks: []chunk{
		{data: []float32{1, 2, 3}, err: io.EOF},
	}}

	data, err := collect(src)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, data)
}
