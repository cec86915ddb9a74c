package loader

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ik5/audpbx/audio"
	"github.com/ik5/audpbx/formats/aiff"
	"github.com/ik5/audpbx/formats/mp3"
	"github.com/ik5/audpbx/formats/vorbis"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
)

// Format names a container the loader can decode.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOgg  Format = "ogg"
	FormatAIFF Format = "aiff"
)

var extensions = map[string]Format{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".mp3":  FormatMP3,
	".ogg":  FormatOgg,
	".oga":  FormatOgg,
	".aif":  FormatAIFF,
	".aiff": FormatAIFF,
}

// probeOrder is the extension order tried for external ids without one.
var probeOrder = []string{".wav", ".aiff", ".aif", ".ogg", ".mp3"}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Loader decodes sample files and converts them to the engine rate.
type Loader struct {
	codecs *audio.Registry
	rate   int
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithTargetRate resamples decoded audio to rate. Zero keeps the file's rate.
func WithTargetRate(rate int) Option {
	return func(l *Loader) {
		if rate >= 0 {
			l.rate = rate
		}
	}
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a Loader with every supported format registered.
func New(opts ...Option) *Loader {
	l := &Loader{
		codecs: audio.NewRegistry(),
		logger: slog.Default(),
	}
	l.codecs.Register(string(FormatWAV), wavDecoder{})
	l.codecs.Register(string(FormatMP3), buffered{name: "mp3", dec: mp3.Decoder{}})
	l.codecs.Register(string(FormatOgg), buffered{name: "ogg", dec: vorbis.Decoder{}})
	l.codecs.Register(string(FormatAIFF), aiff.Decoder{})
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TargetRate returns the rate decoded audio is converted to, or zero.
func (l *Loader) TargetRate() int {
	return l.rate
}

// Decode reads one stream of the given format.
func (l *Loader) Decode(r io.Reader, format Format) (*Audio, error) {
	dec, ok := l.codecs.Get(string(format))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	src, err := dec.Decode(r)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if src.Channels() == 0 {
		return nil, ErrNoChannels
	}
	if l.rate > 0 && src.SampleRate() != l.rate {
		l.logger.Debug("resampling", "format", format, "from", src.SampleRate(), "to", l.rate)
		src = audio.NewResampler(src, l.rate)
	}
	return drain(src)
}

// LoadFile decodes the file at path, choosing the decoder by extension.
func (l *Loader) LoadFile(path string) (*Audio, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	a, err := l.Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	l.logger.Debug("loaded sample", "path", path, "rate", a.SampleRate, "channels", len(a.Channels), "frames", a.Frames())
	return a, nil
}

// Resolve maps an external id to a file inside dir. Ids without a known
// extension are probed with each supported one.
func Resolve(dir, id string) (string, error) {
	if !filepath.IsLocal(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if _, err := FormatOf(id); err == nil {
		path := filepath.Join(dir, id)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %q", ErrSampleNotFound, id)
		}
		return path, nil
	}
	for _, ext := range probeOrder {
		path := filepath.Join(dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrSampleNotFound, id)
}

// Fulfill loads every external-ref registration from dir and returns the
// publications that settle them, one per external handle: SetSampleData on
// success, SetSampleError otherwise. Other origins are skipped.
func (l *Loader) Fulfill(dir string, regs []sample.Registration) []bridge.Message {
	var out []bridge.Message
	for _, reg := range regs {
		if reg.Origin.Kind != ir.OriginExternal {
			continue
		}
		a, err := l.load(dir, reg.Origin.ExternalID)
		if err != nil {
			l.logger.Warn("sample load failed", "handle", reg.Handle, "id", reg.Origin.ExternalID, "error", err)
			out = append(out, bridge.SetSampleError{Handle: reg.Handle, Error: err.Error()})
			continue
		}
		out = append(out, a.Message(reg.Handle))
	}
	return out
}

func (l *Loader) load(dir, id string) (*Audio, error) {
	path, err := Resolve(dir, id)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}

// Resample converts a to rate with cubic interpolation.
func Resample(a *Audio, rate int) (*Audio, error) {
	if len(a.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if rate <= 0 || rate == a.SampleRate {
		return &Audio{SampleRate: a.SampleRate, Channels: copyChannels(a.Channels)}, nil
	}
	return drain(audio.NewResampler(a.source(), rate))
}

// WriteWAV encodes a as integer PCM WAV at the given bit depth.
func WriteWAV(w io.WriteSeeker, a *Audio, bitDepth int) error {
	if len(a.Channels) == 0 {
		return ErrNoChannels
	}
	return encodeWAV(w, interleave(a.Channels, a.Frames()), a.SampleRate, len(a.Channels), bitDepth)
}

// WriteWAVFile creates path and writes a to it.
func WriteWAVFile(path string, a *Audio, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteWAV(f, a, bitDepth); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// maxIdleReads bounds consecutive empty reads before a source is treated
// as stalled.
const maxIdleReads = 64

// drain reads src to the end and deinterleaves it.
func drain(src audio.Source) (*Audio, error) {
	data, err := collect(src)
	if err != nil {
		return nil, err
	}
	return &Audio{SampleRate: src.SampleRate(), Channels: deinterleave(data, src.Channels())}, nil
}

// collect reads interleaved samples until io.EOF, keeping any returned
// alongside it. Short reads that split a frame are kept too.
func collect(src audio.Source) ([]float32, error) {
	channels := src.Channels()
	size := src.BufSize()
	if size < channels {
		size = 4096
	}
	size -= size % channels
	if size == 0 {
		size = channels
	}
	buf := make([]float32, size)

	var data []float32
	idle := 0
	for {
		n, err := src.ReadSamples(buf)
		data = append(data, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading samples: %w", err)
		}
		if n > 0 {
			idle = 0
			continue
		}
		if idle++; idle >= maxIdleReads {
			return nil, io.ErrNoProgress
		}
	}
	return data[:len(data)-len(data)%channels], nil
}

func copyChannels(channels [][]float32) [][]float32 {
	out := make([][]float32, len(channels))
	for i, ch := range channels {
		out[i] = append([]float32(nil), ch...)
	}
	return out
}
