package vm

import (
	"context"
	"math"

	"github.com/roach88/samplerec/internal/ir"
)

// Instance numbers a runtime instance. Each instance has its own memory.
type Instance int

// Well-known instances. The realtime instance belongs to the audio thread
// and is never used for capture or render.
const (
	RealtimeInstance Instance = iota
	CaptureInstance
	RenderInstance
)

func (i Instance) String() string {
	switch i {
	case RealtimeInstance:
		return "realtime"
	case CaptureInstance:
		return "capture"
	case RenderInstance:
		return "render"
	default:
		return "instance"
	}
}

// Transport carries the timing parameters a program sees.
type Transport struct {
	SampleRate    float64
	Nyquist       float64
	PiOverNyquist float64
	BPM           float64
}

// DefaultBPM is the tempo used when none is given.
const DefaultBPM = 120

// NewTransport derives a Transport from a sample rate and tempo.
func NewTransport(sampleRate int, bpm float64) Transport {
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	sr := float64(sampleRate)
	nyq := sr / 2
	piOverNyq := 0.0
	if nyq > 0 {
		piOverNyq = math.Pi / nyq
	}
	return Transport{SampleRate: sr, Nyquist: nyq, PiOverNyquist: piOverNyq, BPM: bpm}
}

// Dependency is one free variable of a recorded callback: the global slot
// it lives in when rendering, and whether the render program supplies its
// own default for it.
type Dependency struct {
	Slot       int  `json:"slot" yaml:"slot"`
	HasDefault bool `json:"has_default,omitempty" yaml:"has_default,omitempty"`
}

// CaptureJob asks a runtime to run Program once and copy the values of
// ScopeID's dependencies into Store, one slot per dependency ordinal.
type CaptureJob struct {
	Program   []byte
	ScopeID   uint32
	Store     *Slots
	Transport Transport
}

// RenderJob asks a runtime to run Setup once and Loop NumSamples times,
// one output sample per Loop call. Globals is sized before the job starts
// and already holds the captured values.
type RenderJob struct {
	Setup      []byte
	Loop       []byte
	NumSamples int
	Globals    *Slots
	Transport  Transport
}

// Runtime is a bytecode runtime samplerec can drive.
type Runtime interface {
	// Capture runs job.Program once on inst.
	Capture(ctx context.Context, inst Instance, job CaptureJob) error

	// Render runs job on inst and returns the rendered channels.
	Render(ctx context.Context, inst Instance, job RenderJob) ([][]float32, error)

	// MaxSlot returns the highest global slot index program touches, or -1.
	MaxSlot(program []byte) (int, error)

	// Collect releases memory held by inst.
	Collect(inst Instance)

	// Disassemble renders program as text for diagnostics.
	Disassemble(program []byte) string
}

// Host is what a runtime may call back into while executing.
// Implementations must not block; they are called from the audio thread.
type Host interface {
	ReadChunk(h ir.Handle, ch, offset int, dst []float32) int
	ChannelCount(h ir.Handle) int
	Length(h ir.Handle, ch int) int
	Version(h ir.Handle) ir.Version
	SliceCount(h ir.Handle, threshold float64) int
	SlicePoint(h ir.Handle, threshold float64, i int) int
}
