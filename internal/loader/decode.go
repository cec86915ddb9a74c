package loader

import (
	"bytes"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/audpbx/audio"
	"github.com/tphakala/simd/f32"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// fullScale is the magnitude of a full-scale signed sample at the given depth.
func fullScale(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128, nil
	case 16:
		return 32768, nil
	case 24:
		return 8388608, nil
	case 32:
		return 2147483648, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
}

// pcmToFloat normalizes integer PCM into [-1, 1). 8-bit WAV is unsigned.
func pcmToFloat(data []int, bitDepth int) ([]float32, error) {
	scale, err := fullScale(bitDepth)
	if err != nil {
		return nil, err
	}
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v - offset)
	}
	f32.Scale(out, out, 1/scale)
	return out, nil
}

func readSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// wavDecoder decodes integer PCM WAV of any common bit depth.
type wavDecoder struct{}

func (wavDecoder) Decode(r io.Reader) (audio.Source, error) {
	rs, err := readSeeker(r)
	if err != nil {
		return nil, fmt.Errorf("reading wav data: %w", err)
	}
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w (format tag %d)", ErrUnsupportedEncoding, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	channels := int(dec.NumChans)
	if channels == 0 {
		return nil, ErrNoChannels
	}
	data, err := pcmToFloat(buf.Data, int(dec.BitDepth))
	if err != nil {
		return nil, err
	}
	return &bufferSource{rate: int(dec.SampleRate), channels: channels, data: data}, nil
}

// buffered decodes a whole stream up front with a streaming audpbx decoder.
// The result never reports io.EOF alongside data, so the resampler and
// drain see every frame.
type buffered struct {
	name string
	dec  audio.Decoder
}

func (b buffered) Decode(r io.Reader) (audio.Source, error) {
	src, err := b.dec.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.name, err)
	}
	defer src.Close()
	if src.Channels() == 0 {
		return nil, ErrNoChannels
	}
	data, err := collect(src)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.name, err)
	}
	return &bufferSource{rate: src.SampleRate(), channels: src.Channels(), data: data}, nil
}

// encodeWAV writes interleaved float samples as integer PCM.
func encodeWAV(w io.WriteSeeker, data []float32, rate, channels, bitDepth int) error {
	scale, err := fullScale(bitDepth)
	if err != nil {
		return err
	}
	scaled := make([]float32, len(data))
	f32.Scale(scaled, data, scale)

	lo, hi := -int(scale), int(scale)-1
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	pcm := make([]int, len(scaled))
	for i, v := range scaled {
		n := int(math.Round(float64(v)))
		n = min(max(n, lo), hi)
		pcm[i] = n + offset
	}

	enc := wav.NewEncoder(w, rate, bitDepth, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Data:           pcm,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing wav: %w", err)
	}
	return nil
}
