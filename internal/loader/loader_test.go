package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/aiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
)

func constant(frames int, v float32) []float32 {
	out := make([]float32, frames)
	for i := range out {
		out[i] = v
	}
	return out
}

func writeWAV(t *testing.T, dir, name string, a *Audio, bitDepth int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, WriteWAVFile(path, a, bitDepth))
	return path
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"kick.wav", FormatWAV},
		{"dir/Kick.WAV", FormatWAV},
		{"loop.wave", FormatWAV},
		{"pad.mp3", FormatMP3},
		{"vox.ogg", FormatOgg},
		{"vox.oga", FormatOgg},
		{"hat.aif", FormatAIFF},
		{"hat.aiff", FormatAIFF},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatOf(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatOf("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = FormatOf("noext")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWAV_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Audio{
		SampleRate: 22050,
		Channels: [][]float32{
			{0, 0.5, -0.25, 0.75, -1},
			{0.125, -0.5, 0.25, 0, 0.5},
		},
	}

	for _, depth := range []int{16, 24} {
		path := writeWAV(t, dir, "stereo.wav", in, depth)
		out, err := New().LoadFile(path)
		require.NoError(t, err, "depth %d", depth)
		assert.Equal(t, 22050, out.SampleRate)
		assert.Equal(t, in.Channels, out.Channels, "depth %d", depth)
	}
}

func TestWAV_ClampsOutOfRange(t *testing.T) {
	path := writeWAV(t, t.TempDir(), "hot.wav", &Audio{SampleRate: 8000, Channels: [][]float32{{2, -2}}}, 16)
	out, err := New().LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 32767.0/32768.0, out.Channels[0][0], 1e-9)
	assert.Equal(t, float32(-1), out.Channels[0][1])
}

func TestWAV_PadsShortChannels(t *testing.T) {
	path := writeWAV(t, t.TempDir(), "ragged.wav", &Audio{SampleRate: 8000, Channels: [][]float32{{0.5, 0.5, 0.5}, {0.25}}}, 16)
	out, err := New().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0, 0}, out.Channels[1])
}

func TestWriteWAV_Rejects(t *testing.T) {
	dir := t.TempDir()
	err := WriteWAVFile(filepath.Join(dir, "x.wav"), &Audio{SampleRate: 8000}, 16)
	assert.ErrorIs(t, err, ErrNoChannels)

	err = WriteWAVFile(filepath.Join(dir, "y.wav"), &Audio{SampleRate: 8000, Channels: [][]float32{{0}}}, 12)
	assert.ErrorIs(t, err, ErrUnsupportedBitDepth)
}

func TestLoader_ResamplesToTarget(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, "tone.wav", &Audio{SampleRate: 8000, Channels: [][]float32{constant(800, 0.5)}}, 16)

	up, err := New(WithTargetRate(16000)).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, up.SampleRate)
	require.Len(t, up.Channels, 1)
	assert.InDelta(t, 1600, len(up.Channels[0]), 16)
	for i, v := range up.Channels[0] {
		require.InDelta(t, 0.5, v, 1e-4, "frame %d", i)
	}

	down, err := New(WithTargetRate(4000)).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, down.SampleRate)
	assert.InDelta(t, 400, len(down.Channels[0]), 8)
	for i, v := range down.Channels[0] {
		require.InDelta(t, 0.5, v, 1e-4, "frame %d", i)
	}

	native, err := New(WithTargetRate(8000)).LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, native.Channels[0], 800)
}

func TestResample(t *testing.T) {
	in := &Audio{SampleRate: 8000, Channels: [][]float32{constant(100, 0.25), constant(100, -0.25)}}

	same, err := Resample(in, 8000)
	require.NoError(t, err)
	assert.Equal(t, in.Channels, same.Channels)
	same.Channels[0][0] = 1
	assert.Equal(t, float32(0.25), in.Channels[0][0], "resample returns a copy")

	up, err := Resample(in, 16000)
	require.NoError(t, err)
	require.Len(t, up.Channels, 2)
	assert.Equal(t, len(up.Channels[0]), len(up.Channels[1]))
	assert.InDelta(t, -0.25, up.Channels[1][10], 1e-4)

	_, err = Resample(&Audio{SampleRate: 8000}, 16000)
	assert.ErrorIs(t, err, ErrNoChannels)
}

func TestDecode_AIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hat.aiff")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := aiff.NewEncoder(f, 44100, 16, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           []int{0, 16384, -8192, 32767},
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 44100},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	out, err := New().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, out.SampleRate)
	require.Len(t, out.Channels, 1)
	assert.InDeltaSlice(t, []float32{0, 0.5, -0.25, 32767.0 / 32768.0}, out.Channels[0], 1e-6)
}

func TestDecode_InvalidStreams(t *testing.T) {
	l := New()
	garbage := []byte("this is not audio at all, just some text bytes")

	_, err := l.Decode(bytes.NewReader(garbage), FormatWAV)
	assert.ErrorIs(t, err, ErrInvalidWAV)

	for _, f := range []Format{FormatMP3, FormatOgg, FormatAIFF} {
		_, err := l.Decode(bytes.NewReader(garbage), f)
		assert.Error(t, err, "format %s", f)
	}

	_, err = l.Decode(bytes.NewReader(garbage), Format("flac"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, dir, "kick.wav", &Audio{SampleRate: 8000, Channels: [][]float32{{0}}}, 16)

	path, err := Resolve(dir, "kick.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kick.wav"), path)

	path, err = Resolve(dir, "kick")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kick.wav"), path)

	_, err = Resolve(dir, "snare")
	assert.ErrorIs(t, err, ErrSampleNotFound)
	_, err = Resolve(dir, "snare.wav")
	assert.ErrorIs(t, err, ErrSampleNotFound)
	_, err = Resolve(dir, "../kick.wav")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestLoader_Fulfill(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, dir, "kick.wav", &Audio{SampleRate: 8000, Channels: [][]float32{{0.5, -0.5}}}, 16)

	regs := []sample.Registration{
		{Handle: 1, Origin: ir.ExternalRef("kick")},
		{Handle: 2, Origin: ir.RecordRequest("proj", 1, 0)},
		{Handle: 3, Origin: ir.ExternalRef("missing")},
	}
	msgs := New().Fulfill(dir, regs)
	require.Len(t, msgs, 2)

	data, ok := msgs[0].(bridge.SetSampleData)
	require.True(t, ok)
	assert.Equal(t, ir.Handle(1), data.Handle)
	assert.Equal(t, 8000, data.SampleRate)
	assert.Equal(t, [][]float32{{0.5, -0.5}}, data.Channels)

	failed, ok := msgs[1].(bridge.SetSampleError)
	require.True(t, ok)
	assert.Equal(t, ir.Handle(3), failed.Handle)
	assert.Contains(t, failed.Error, "sample file not found")
}
