package record

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/testutil"
	"github.com/roach88/samplerec/internal/vm"
	"github.com/roach88/samplerec/internal/vm/refvm"
)

type fixture struct {
	store   *sample.Store
	vm      *refvm.Runtime
	runtime *testutil.CountingRuntime
	events  *bridge.Recorder
	orch    *Orchestrator
	handle  ir.Handle
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := sample.New(sample.WithLogger(logger))
	rvm := refvm.New(sample.NewHost(store))
	rt := testutil.NewCountingRuntime(rvm)
	events := &bridge.Recorder{}

	base := []Option{
		WithLogger(logger),
		WithPublisher(bridge.NewPublisher(events, events, logger)),
	}
	return &fixture{
		store:   store,
		vm:      rvm,
		runtime: rt,
		events:  events,
		orch:    New(rt, store, append(base, opts...)...),
		handle:  store.RegisterRecordRequest("proj-1", 2, 7),
	}
}

// rampRequest captures a step size and renders a ramp with it.
func (f *fixture) rampRequest(n int) Request {
	return Request{
		Handle:       f.handle,
		Program:      refvm.MustAssemble("push 0.25\ncapture 1 0"),
		ScopeID:      1,
		Dependencies: []vm.Dependency{{Slot: 1}},
		Setup:        refvm.MustAssemble("push 0\nstore 0"),
		Loop:         refvm.MustAssemble("load 0\ndup\nout\nload 1\nadd\nstore 0"),
		NumSamples:   n,
		SampleRate:   8000,
	}
}

func TestRecord_Success(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version(f.handle)

	res, err := f.orch.Record(context.Background(), f.rampRequest(5))
	require.NoError(t, err)

	assert.Equal(t, "idle → capturing → captured → rendering → rendered → publishing → done", res.Trail.String())
	assert.Greater(t, res.Version, before)
	assert.Equal(t, 5, res.Length)
	assert.False(t, res.Memoized)
	assert.Equal(t, []ir.CapturedValue{{Value: 0.25}}, res.Captured.Values)

	snap := f.store.Sample(f.handle)
	require.NotNil(t, snap)
	assert.True(t, snap.Ready)
	assert.Equal(t, 8000, snap.SampleRate)
	assert.Equal(t, []float32{0, 0.25, 0.5, 0.75, 1}, f.store.ReadChunk(f.handle, 0, 0, 5))

	msgs := f.events.Messages()
	require.Len(t, msgs, 2, "engine and broadcast each get the publish")
	data, ok := msgs[0].(bridge.SetSampleData)
	require.True(t, ok)
	assert.Equal(t, f.handle, data.Handle)
	assert.Equal(t, res.Version, data.Version)
	assert.Equal(t, 8000, data.SampleRate)
	assert.Equal(t, msgs[0], msgs[1])

	buf, ok := f.orch.Buffers().Get(bridge.SampleKey(f.handle))
	require.True(t, ok)
	assert.Equal(t, data.Channels, buf.Channels)

	assert.Equal(t, 1, f.vm.Collections(vm.CaptureInstance))
	assert.Equal(t, 1, f.vm.Collections(vm.RenderInstance))
	assert.Equal(t, 0, f.vm.Collections(vm.RealtimeInstance))
}

func TestRecord_RefusesOverlongRequests(t *testing.T) {
	f := newFixture(t, WithMaxSeconds(0.01))

	_, err := f.orch.Record(context.Background(), f.rampRequest(81))
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidRequest, re.Code)
	assert.Contains(t, re.Message, "recording of 81 samples exceeds the limit of 80")
	assert.Equal(t, 0, f.runtime.Renders())
	assert.Empty(t, f.events.Messages(), "invalid requests publish nothing")

	_, err = f.orch.Record(context.Background(), f.rampRequest(80))
	assert.NoError(t, err)
}

func TestRecordMessage_RefusesOverlongDurations(t *testing.T) {
	f := newFixture(t)

	for _, seconds := range []float64{1e7, 1e300} {
		_, err := f.orch.RecordMessage(context.Background(), bridge.Record{
			ProjectID:  "proj-1",
			Seconds:    seconds,
			Program:    refvm.MustAssemble("push 0.25\ncapture 1 0"),
			ScopeID:    1,
			Loop:       refvm.MustAssemble("push 0\nout"),
			SampleRate: 44100,
		})
		require.Error(t, err, "seconds=%v", seconds)
		assert.Contains(t, err.Error(), "exceeds the limit of 26460000")
	}
	assert.Equal(t, 0, f.runtime.Captures())
	assert.Len(t, f.store.Registrations(), 1, "no handle is registered for a refused duration")
}

func TestRecord_MemoizesCapture(t *testing.T) {
	f := newFixture(t)
	req := f.rampRequest(4)

	first, err := f.orch.Record(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orch.Record(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.Memoized)
	assert.True(t, second.Memoized)
	assert.Equal(t, first.Captured, second.Captured)
	assert.Equal(t, 1, f.runtime.Captures())
	assert.Equal(t, 2, f.runtime.Renders())
	assert.Greater(t, second.Version, first.Version)

	// A different scope is a different capture.
	req.ScopeID = 2
	req.Program = refvm.MustAssemble("push 0.5\ncapture 2 0")
	_, err = f.orch.Record(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.runtime.Captures())
	assert.Equal(t, 2, f.orch.MemoLen())

	f.orch.Reset()
	assert.Equal(t, 0, f.orch.MemoLen())
	_, err = f.orch.Record(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, f.runtime.Captures())
}

func TestRecord_MemoIsBounded(t *testing.T) {
	f := newFixture(t, WithMemoSize(2))
	for scope := uint32(1); scope <= 3; scope++ {
		_, _, err := f.orch.Capture(context.Background(), refvm.MustAssemble("push 1"), scope, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.orch.MemoLen())
}

func TestRecord_CaptureNotScalar(t *testing.T) {
	f := newFixture(t)
	req := f.rampRequest(4)
	// Slot 1 is never written, slot 2 is NaN.
	req.Program = refvm.MustAssemble("push 1\ncapture 1 0\nnan\ncapture 1 2")
	req.Dependencies = []vm.Dependency{{Slot: 1}, {Slot: 2}, {Slot: 3}}

	res, err := f.orch.Record(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsCaptureError(err))
	assert.False(t, IsRenderError(err))

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Slot)
	assert.Equal(t, "captured variable at slot 1 is not a scalar", re.Message)
	assert.Equal(t, "idle → capturing → capture_failed → publishing → done", res.Trail.String())

	msgs := f.events.Messages()
	require.Len(t, msgs, 2)
	published, ok := msgs[0].(bridge.SetSampleError)
	require.True(t, ok)
	assert.Equal(t, "captured variable at slot 1 is not a scalar", published.Error)
	assert.Equal(t, f.store.Version(f.handle), published.Version)

	snap := f.store.Sample(f.handle)
	assert.False(t, snap.Ready)
	assert.Equal(t, published.Error, snap.Error)
	assert.Equal(t, 0, f.runtime.Renders())
	assert.Equal(t, 1, f.vm.Collections(vm.CaptureInstance))
	assert.Equal(t, 1, f.vm.Collections(vm.RenderInstance))
	assert.Equal(t, 0, f.orch.MemoLen(), "failed captures are not memoized")
}

func TestRecord_DefaultsAndUndefined(t *testing.T) {
	f := newFixture(t)
	req := f.rampRequest(2)
	req.Program = refvm.MustAssemble("nan\ncapture 1 0\nundef 1 1\npush 5\ncapture 1 2")
	req.Dependencies = []vm.Dependency{{Slot: 0, HasDefault: true}, {Slot: 1}, {Slot: 2}}
	req.Setup = nil
	// Emits slot 1 + slot 2; slot 1 stays at its zero value since the
	// captured value was undefined.
	req.Loop = refvm.MustAssemble("load 1\nload 2\nadd\nout")

	res, err := f.orch.Record(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []ir.CapturedValue{
		{Value: 0},
		{Undefined: true},
		{Value: 5},
	}, res.Captured.Values)
	assert.Equal(t, []float32{5, 5}, f.store.ReadChunk(f.handle, 0, 0, 2))
}

func TestRecord_RenderFailure(t *testing.T) {
	f := newFixture(t)
	req := f.rampRequest(3)
	req.Loop = refvm.MustAssemble("add\nout")

	res, err := f.orch.Record(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
	assert.ErrorIs(t, err, refvm.ErrStackUnderflow)
	assert.Equal(t, StateDone, res.Trail.Last())
	assert.Contains(t, res.Trail, StateRenderFailed)

	msgs := f.events.Messages()
	require.Len(t, msgs, 2)
	published := msgs[1].(bridge.SetSampleError)
	assert.Contains(t, published.Error, "render failed")
	assert.Equal(t, 1, f.vm.Collections(vm.RenderInstance))
}

func TestRecord_ReRecordReleasesPreviousBuffer(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Record(context.Background(), f.rampRequest(4))
	require.NoError(t, err)
	first, ok := f.orch.Buffers().Get(bridge.SampleKey(f.handle))
	require.True(t, ok)

	_, err = f.orch.Record(context.Background(), f.rampRequest(8))
	require.NoError(t, err)

	assert.True(t, first.Released())
	assert.Equal(t, 1, f.orch.Buffers().Freed())
	snap := f.orch.Buffers().Snapshot()
	assert.Equal(t, bridge.Usage{Count: 1, Bytes: 32}, snap.Total)
}

func TestRecord_GlobalsCoverEveryProgram(t *testing.T) {
	f := newFixture(t)
	req := f.rampRequest(1)
	req.Program = refvm.MustAssemble("push 2\ncapture 1 0")
	req.Dependencies = []vm.Dependency{{Slot: 7}}
	req.Setup = refvm.MustAssemble("push 1\nstore 3")
	req.Loop = refvm.MustAssemble("load 7\nload 9\nadd\nout")

	_, err := f.orch.Record(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10, f.runtime.GlobalsSize())
	assert.Equal(t, []float32{2}, f.store.ReadChunk(f.handle, 0, 0, 1))
}

func TestRecord_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	external := f.store.RegisterExternalRef("abc")

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown handle", Request{Handle: 99}},
		{"not a record origin", Request{Handle: external}},
		{"negative length", Request{Handle: f.handle, NumSamples: -1}},
		{"negative slot", Request{Handle: f.handle, Dependencies: []vm.Dependency{{Slot: -2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.orch.Record(context.Background(), tt.req)
			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeInvalidRequest, re.Code)
			assert.Equal(t, Trail{StateIdle}, res.Trail)
		})
	}
	assert.Empty(t, f.events.Messages())
	assert.Equal(t, 0, f.runtime.Captures())
}

func TestRecord_SerializesCallers(t *testing.T) {
	f := newFixture(t)
	other := f.store.RegisterRecordRequest("proj-1", 1, 8)

	var wg sync.WaitGroup
	for _, h := range []ir.Handle{f.handle, other, f.handle, other} {
		wg.Add(1)
		go func(h ir.Handle) {
			defer wg.Done()
			req := f.rampRequest(512)
			req.Handle = h
			_, err := f.orch.Record(context.Background(), req)
			assert.NoError(t, err)
		}(h)
	}
	wg.Wait()

	assert.Equal(t, 1, f.runtime.MaxActive())
	assert.Equal(t, 4, f.runtime.Renders())
	assert.True(t, f.store.AllReady())
}

func TestRecordMessage(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.RecordMessage(context.Background(), bridge.Record{
		ProjectID:    "proj-2",
		Seconds:      0.001,
		CallbackID:   3,
		Program:      refvm.MustAssemble("push 0.5\ncapture 4 0"),
		ScopeID:      4,
		Dependencies: []vm.Dependency{{Slot: 0}},
		Loop:         refvm.MustAssemble("load 0\nout"),
		SampleRate:   8000,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Length)

	origin, ok := f.store.Origin(res.Handle)
	require.True(t, ok)
	assert.Equal(t, ir.RecordRequest("proj-2", 0.001, 3), origin)
	assert.Equal(t, res.Handle, f.store.RegisterRecordRequest("proj-2", 0.001, 3))

	_, err = f.orch.RecordMessage(context.Background(), bridge.Record{Seconds: -1})
	assert.Error(t, err)
}

func TestRecord_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracer(tp.Tracer("test")))
	_, err := f.orch.Record(context.Background(), f.rampRequest(2))
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"record.capture", "record.render", "record.publish", "record"}, names)
}
