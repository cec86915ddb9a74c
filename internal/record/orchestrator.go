package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/vm"
)

// DefaultSampleRate is used when a request does not name one.
const DefaultSampleRate = 44100

// DefaultMaxSeconds bounds the duration of a single recording.
const DefaultMaxSeconds = 600

// Request is one offline recording.
type Request struct {
	// Handle is the record-origin sample that receives the audio.
	Handle ir.Handle

	// Program is the main program the callback's free variables are
	// captured from.
	Program []byte

	// ScopeID identifies the callback inside Program.
	ScopeID uint32

	// Dependencies lists the callback's free variables in capture order.
	Dependencies []vm.Dependency

	// Setup runs once before rendering; Loop runs once per output sample.
	Setup []byte
	Loop  []byte

	// NumSamples is the output length.
	NumSamples int

	// SampleRate and BPM form the render transport. Zero means the
	// orchestrator's defaults.
	SampleRate int
	BPM        float64
}

// Result describes a finished invocation.
type Result struct {
	Handle   ir.Handle
	Version  ir.Version
	Length   int
	Captured ir.CapturedValueSet
	Memoized bool
	Trail    Trail
}

// Orchestrator runs record invocations one at a time.
//
// Thread-safety: all methods are safe for concurrent use. Record
// serializes callers on an internal mutex.
type Orchestrator struct {
	mu        sync.Mutex
	runtime   vm.Runtime
	store     *sample.Store
	buffers   *bridge.BufferRegistry
	publisher *bridge.Publisher
	memo      *captureMemo
	rate      int
	bpm       float64
	maxSecs   float64
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets where results and failures are delivered.
func WithPublisher(p *bridge.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithBuffers sets the shared buffer registry rendered audio is copied into.
func WithBuffers(r *bridge.BufferRegistry) Option {
	return func(o *Orchestrator) {
		o.buffers = r
	}
}

// WithMemoSize bounds the number of memoized captures.
func WithMemoSize(n int) Option {
	return func(o *Orchestrator) {
		o.memo = newCaptureMemo(n)
	}
}

// WithDefaultSampleRate sets the sample rate for requests that omit one.
func WithDefaultSampleRate(rate int) Option {
	return func(o *Orchestrator) {
		if rate > 0 {
			o.rate = rate
		}
	}
}

// WithMaxSeconds bounds the duration of a single recording. Requests for
// more samples than maxSecs at their sample rate are refused before any
// work is done.
func WithMaxSeconds(maxSecs float64) Option {
	return func(o *Orchestrator) {
		if maxSecs > 0 {
			o.maxSecs = maxSecs
		}
	}
}

// WithDefaultBPM sets the tempo for requests that omit one.
func WithDefaultBPM(bpm float64) Option {
	return func(o *Orchestrator) {
		if bpm > 0 {
			o.bpm = bpm
		}
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer invocations are recorded with.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// New creates an Orchestrator driving rt and writing into store.
func New(rt vm.Runtime, store *sample.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runtime: rt,
		store:   store,
		memo:    newCaptureMemo(defaultMemoSize),
		rate:    DefaultSampleRate,
		bpm:     vm.DefaultBPM,
		maxSecs: DefaultMaxSeconds,
		logger:  slog.Default(),
		tracer:  otel.Tracer("samplerec/record"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.buffers == nil {
		o.buffers = bridge.NewBufferRegistry()
	}
	if o.publisher == nil {
		o.publisher = bridge.NewPublisher(nil, nil, o.logger)
	}
	return o
}

// Buffers returns the shared buffer registry.
func (o *Orchestrator) Buffers() *bridge.BufferRegistry {
	return o.buffers
}

// Reset drops every memoized capture. Call it when the main program's
// runtime state changes without its bytecode changing.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.memo.reset()
}

// MemoLen returns the number of memoized captures.
func (o *Orchestrator) MemoLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.memo.len()
}

// RecordMessage serves a bridge.Record request: it registers (or finds) the
// record-origin handle for the request's project, duration and callback and
// records into it.
func (o *Orchestrator) RecordMessage(ctx context.Context, msg bridge.Record) (bridge.RecordResult, error) {
	rate := msg.SampleRate
	if rate <= 0 {
		rate = o.rate
	}
	origin := ir.RecordRequest(msg.ProjectID, msg.Seconds, msg.CallbackID)
	if err := origin.Validate(); err != nil {
		return bridge.RecordResult{}, newInvalidRequestError(ir.NoHandle, "%v", err)
	}
	if n, limit := origin.NumSamples(rate), o.maxSamples(rate); n > limit {
		return bridge.RecordResult{}, newTooLongError(ir.NoHandle, n, limit)
	}
	h := o.store.RegisterRecordRequest(msg.ProjectID, msg.Seconds, msg.CallbackID)

	res, err := o.Record(ctx, Request{
		Handle:       h,
		Program:      msg.Program,
		ScopeID:      msg.ScopeID,
		Dependencies: msg.Dependencies,
		Setup:        msg.Setup,
		Loop:         msg.Loop,
		NumSamples:   origin.NumSamples(rate),
		SampleRate:   rate,
		BPM:          msg.BPM,
	})
	if err != nil {
		return bridge.RecordResult{}, err
	}
	return bridge.RecordResult{Handle: res.Handle, Version: res.Version, Length: res.Length}, nil
}

// Record runs one invocation. On failure the error is also published for
// req.Handle, and the returned Result still carries the state trail.
func (o *Orchestrator) Record(ctx context.Context, req Request) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := Result{Handle: req.Handle, Trail: Trail{StateIdle}}

	ctx, span := o.tracer.Start(ctx, "record",
		trace.WithAttributes(
			attribute.Int64("sample.handle", int64(req.Handle)),
			attribute.Int("record.num_samples", req.NumSamples),
			attribute.Int("record.dependencies", len(req.Dependencies)),
		))
	defer span.End()

	if err := o.validate(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	defer o.runtime.Collect(vm.RenderInstance)
	defer o.runtime.Collect(vm.CaptureInstance)

	rate := req.SampleRate
	if rate <= 0 {
		rate = o.rate
	}
	bpm := req.BPM
	if bpm <= 0 {
		bpm = o.bpm
	}
	transport := vm.NewTransport(rate, bpm)

	res.Trail = append(res.Trail, StateCapturing)
	set, memoized, err := o.capture(ctx, req, transport)
	if err != nil {
		res.Trail = append(res.Trail, StateCaptureFailed)
		return o.fail(span, res, err)
	}
	res.Trail = append(res.Trail, StateCaptured)
	res.Captured = set
	res.Memoized = memoized

	res.Trail = append(res.Trail, StateRendering)
	channels, err := o.render(ctx, req, set, transport)
	if err != nil {
		res.Trail = append(res.Trail, StateRenderFailed)
		o.logger.Error("record render failed",
			"handle", req.Handle,
			"error", err,
			"program", o.runtime.Disassemble(req.Program))
		return o.fail(span, res, err)
	}
	res.Trail = append(res.Trail, StateRendered, StatePublishing)

	res.Version, res.Length = o.publish(ctx, req.Handle, channels, rate)
	res.Trail = append(res.Trail, StateDone)

	span.SetAttributes(
		attribute.Int64("sample.version", int64(res.Version)),
		attribute.Bool("record.memoized", memoized),
	)
	o.logger.Info("recorded sample",
		"handle", req.Handle,
		"version", res.Version,
		"length", res.Length,
		"memoized", memoized)
	return res, nil
}

// publish moves rendered channels into a shared buffer, stores them and
// sends them to the engine. The channels belong to the render instance until
// Collect, so they are copied first.
func (o *Orchestrator) publish(ctx context.Context, h ir.Handle, channels [][]float32, rate int) (ir.Version, int) {
	_, span := o.tracer.Start(ctx, "record.publish")
	defer span.End()

	buf := o.buffers.Allocate(bridge.SampleKey(h), bridge.CategoryRecord, "record", channels, rate)
	o.store.RecordSample(h, buf.Channels, rate)
	version := o.store.Version(h)
	o.publisher.PublishData(bridge.SetSampleData{
		Handle:     h,
		Version:    version,
		SampleRate: rate,
		Channels:   buf.Channels,
	})
	span.SetAttributes(attribute.Int64("sample.version", int64(version)))
	return version, len(buf.Channels[0])
}

func (o *Orchestrator) validate(req Request) error {
	origin, ok := o.store.Origin(req.Handle)
	if !ok {
		return newInvalidRequestError(req.Handle, "unknown handle %s", req.Handle)
	}
	if origin.Kind != ir.OriginRecord {
		return newInvalidRequestError(req.Handle, "handle %s has %s origin, not record", req.Handle, origin.Kind)
	}
	if req.NumSamples < 0 {
		return newInvalidRequestError(req.Handle, "negative sample count %d", req.NumSamples)
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = o.rate
	}
	if limit := o.maxSamples(rate); req.NumSamples > limit {
		return newTooLongError(req.Handle, req.NumSamples, limit)
	}
	for i, dep := range req.Dependencies {
		if dep.Slot < 0 {
			return newInvalidRequestError(req.Handle, "dependency %d has negative slot %d", i, dep.Slot)
		}
	}
	return nil
}

// maxSamples is the longest recording allowed at rate.
func (o *Orchestrator) maxSamples(rate int) int {
	return ir.Origin{Kind: ir.OriginRecord, Seconds: o.maxSecs}.NumSamples(rate)
}

// fail publishes err for the request's handle and finishes the trail.
func (o *Orchestrator) fail(span trace.Span, res Result, err error) (Result, error) {
	res.Trail = append(res.Trail, StatePublishing)

	msg := err.Error()
	var re *Error
	if errors.As(err, &re) {
		msg = re.Describe()
	}
	o.store.SetSampleError(res.Handle, msg)
	res.Version = o.store.Version(res.Handle)
	o.buffers.Release(bridge.SampleKey(res.Handle))
	o.publisher.PublishError(bridge.SetSampleError{
		Handle:  res.Handle,
		Version: res.Version,
		Error:   msg,
	})
	res.Trail = append(res.Trail, StateDone)

	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	o.logger.Warn("record failed", "handle", res.Handle, "error", err, "trail", res.Trail.String())
	return res, err
}

// Capture returns the captured values of deps, running program on the
// capture instance unless an identical capture is memoized.
func (o *Orchestrator) Capture(ctx context.Context, program []byte, scopeID uint32, deps []vm.Dependency) (ir.CapturedValueSet, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.runtime.Collect(vm.CaptureInstance)

	req := Request{Program: program, ScopeID: scopeID, Dependencies: deps}
	return o.capture(ctx, req, vm.NewTransport(o.rate, o.bpm))
}

func (o *Orchestrator) capture(ctx context.Context, req Request, transport vm.Transport) (ir.CapturedValueSet, bool, error) {
	key := ir.CaptureKey(req.Program, req.ScopeID, len(req.Dependencies))
	if set, ok := o.memo.get(key); ok {
		return set, true, nil
	}

	ctx, span := o.tracer.Start(ctx, "record.capture")
	defer span.End()

	// Unwritten slots stay NaN and fail below.
	slots := vm.NewSlots(len(req.Dependencies))
	slots.Fill(math.NaN())

	err := o.runtime.Capture(ctx, vm.CaptureInstance, vm.CaptureJob{
		Program:   req.Program,
		ScopeID:   req.ScopeID,
		Store:     slots,
		Transport: transport,
	})
	if err != nil {
		span.RecordError(err)
		return ir.CapturedValueSet{}, false, newCaptureRunError(req.Handle, err)
	}

	set := ir.CapturedValueSet{Values: make([]ir.CapturedValue, len(req.Dependencies)), Key: key}
	for i, dep := range req.Dependencies {
		if dep.HasDefault {
			set.Values[i] = ir.CapturedValue{Value: 0}
			continue
		}
		v, defined, err := slots.Get(i)
		if err != nil {
			return ir.CapturedValueSet{}, false, newCaptureRunError(req.Handle, err)
		}
		if !defined {
			set.Values[i] = ir.CapturedValue{Undefined: true}
			continue
		}
		if math.IsNaN(v) {
			span.SetStatus(codes.Error, "not a scalar")
			return ir.CapturedValueSet{}, false, NewNotScalarError(req.Handle, i)
		}
		set.Values[i] = ir.CapturedValue{Value: v}
	}

	o.memo.put(set)
	return set.Clone(), false, nil
}

func (o *Orchestrator) render(ctx context.Context, req Request, set ir.CapturedValueSet, transport vm.Transport) ([][]float32, error) {
	ctx, span := o.tracer.Start(ctx, "record.render",
		trace.WithAttributes(attribute.Int("record.num_samples", req.NumSamples)))
	defer span.End()

	size, err := o.globalsSize(req)
	if err != nil {
		span.RecordError(err)
		return nil, newRenderError(req.Handle, err)
	}
	globals := vm.NewSlots(size)
	for i, dep := range req.Dependencies {
		cv := set.Values[i]
		if cv.Undefined {
			continue
		}
		if err := globals.Set(dep.Slot, cv.Value); err != nil {
			return nil, newRenderError(req.Handle, err)
		}
	}

	channels, err := o.runtime.Render(ctx, vm.RenderInstance, vm.RenderJob{
		Setup:      req.Setup,
		Loop:       req.Loop,
		NumSamples: req.NumSamples,
		Globals:    globals,
		Transport:  transport,
	})
	if err != nil {
		span.RecordError(err)
		return nil, newRenderError(req.Handle, err)
	}
	if len(channels) == 0 {
		return nil, newRenderError(req.Handle, fmt.Errorf("runtime returned no channels"))
	}
	return channels, nil
}

// globalsSize covers every slot the dependencies, setup or loop touch, so
// the render never grows its globals.
func (o *Orchestrator) globalsSize(req Request) (int, error) {
	highest := -1
	for _, dep := range req.Dependencies {
		highest = max(highest, dep.Slot)
	}
	for _, program := range [][]byte{req.Setup, req.Loop} {
		n, err := o.runtime.MaxSlot(program)
		if err != nil {
			return 0, err
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}
