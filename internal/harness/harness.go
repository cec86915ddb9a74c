package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/engine"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/record"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/testutil"
	"github.com/roach88/samplerec/internal/vm"
	"github.com/roach88/samplerec/internal/vm/refvm"
)

// Harness drives one scenario through a real controller. Publishes land in
// a separate realtime-side store and in a recorder, so the trace shows
// exactly what the audio engine would receive.
type Harness struct {
	control   *sample.Store
	realtime  *sample.Store
	recorder  *bridge.Recorder
	runtime   *testutil.CountingRuntime
	ctrl      *engine.Controller
	clock     *testutil.DeterministicClock
	logger    *slog.Logger
	published int
}

// Run executes a scenario and returns its result. Errors are returned only
// when the scenario cannot be executed at all; failed expectations and
// assertions are reported in the result.
//
// Execution flow:
//  1. Build fresh stores, a reference VM and a controller
//  2. Register the setup handles
//  3. Send each flow step and wait for its reply
//  4. Evaluate assertions against the trace and both stores
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	rate := scenario.SampleRate
	if rate <= 0 {
		rate = sample.DefaultSampleRate
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	control := sample.New(sample.WithDefaultSampleRate(rate), sample.WithLogger(logger))
	realtime := sample.New(sample.WithDefaultSampleRate(rate), sample.WithLogger(logger))
	recorder := &bridge.Recorder{}
	publisher := bridge.NewPublisher(bridge.NewStoreSink(realtime, logger), recorder, logger)

	rt := testutil.NewCountingRuntime(refvm.New(sample.NewHost(control)))
	orch := record.New(rt, control,
		record.WithPublisher(publisher),
		record.WithDefaultSampleRate(rate),
		record.WithLogger(logger))

	h := &Harness{
		control:  control,
		realtime: realtime,
		recorder: recorder,
		runtime:  rt,
		ctrl: engine.NewController(control, orch, publisher,
			engine.WithIDGenerator(bridge.NewSequenceGenerator("req")),
			engine.WithLogger(logger)),
		clock:  testutil.NewDeterministicClock(),
		logger: logger,
	}

	if err := h.executeSetup(scenario.Setup, rate); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = h.ctrl.Run(runCtx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	result.Captures = rt.Captures()
	result.Renders = rt.Renders()

	actx := &AssertionContext{Control: control, Realtime: realtime}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSetup registers handles before the controller starts, so nothing
// else writes the store yet.
func (h *Harness) executeSetup(setup []SetupStep, rate int) error {
	for i, step := range setup {
		var handle ir.Handle
		switch {
		case step.External != "":
			handle = h.control.RegisterExternalRef(step.External)
		case step.Record != nil:
			handle = h.control.RegisterRecordRequest(step.Record.ProjectID, step.Record.Seconds, step.Record.CallbackID)
		case step.Inline != nil:
			r := step.Inline.SampleRate
			if r <= 0 {
				r = rate
			}
			handle = h.control.RegisterInline(step.Inline.Channels, r)
		case step.Synthesized:
			handle = h.control.RegisterSynthesized()
		default:
			return fmt.Errorf("setup step %d: nothing to register", i)
		}
		h.logger.Debug("setup step completed", "step", i, "handle", handle)
	}
	return nil
}

// executeFlow sends each step and traces the request, the publishes it
// caused and the reply. The controller publishes before it replies, so
// every publish of a step is in the recorder once Request returns.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	port := h.ctrl.Port()
	for i, step := range flow {
		msg, err := buildMessage(step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, h.requestEvent(msg))

		reply, err := port.Request(ctx, msg)
		var remote *bridge.RemoteError
		if err != nil && !errors.As(err, &remote) {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		result.Trace = append(result.Trace, h.drainPublishes()...)

		event := TraceEvent{Seq: h.clock.Next(), Type: EventReply}
		if remote != nil {
			event.Error = remote.Message
		} else {
			fillReply(&event, reply)
		}
		result.Trace = append(result.Trace, event)

		for _, msg := range checkExpect(i, step.Expect, event) {
			result.AddError(msg)
		}
		h.logger.Debug("flow step completed", "step", i, "send", step.Send, "error", event.Error)
	}
	return nil
}

func (h *Harness) requestEvent(msg bridge.Message) TraceEvent {
	event := TraceEvent{Seq: h.clock.Next(), Type: EventRequest, Kind: string(msg.Kind())}
	switch m := msg.(type) {
	case bridge.SetSampleData:
		event.Handle = m.Handle
		event.SampleRate = m.SampleRate
	case bridge.SetSampleError:
		event.Handle = m.Handle
		event.Error = m.Error
	case bridge.Record:
		event.SampleRate = m.SampleRate
	}
	return event
}

// drainPublishes turns the recorder's new messages into publish events.
func (h *Harness) drainPublishes() []TraceEvent {
	msgs := h.recorder.Messages()
	var events []TraceEvent
	for _, msg := range msgs[h.published:] {
		event := TraceEvent{Seq: h.clock.Next(), Type: EventPublish, Kind: string(msg.Kind())}
		switch m := msg.(type) {
		case bridge.SetSampleData:
			event.Handle = m.Handle
			event.Version = m.Version
			event.SampleRate = m.SampleRate
			if len(m.Channels) > 0 {
				event.Length = len(m.Channels[0])
			}
			event.Digest = ir.AudioDigest(m.Channels)[:digestLen]
		case bridge.SetSampleError:
			event.Handle = m.Handle
			event.Version = m.Version
			event.Error = m.Error
		}
		events = append(events, event)
	}
	h.published = len(msgs)
	return events
}

func fillReply(event *TraceEvent, reply bridge.Message) {
	if reply == nil {
		return
	}
	event.Kind = string(reply.Kind())
	switch m := reply.(type) {
	case bridge.RecordResult:
		event.Handle = m.Handle
		event.Version = m.Version
		event.Length = m.Length
	case bridge.RequiredList:
		event.Required = make([]ir.Handle, 0, len(m.Samples))
		for _, r := range m.Samples {
			event.Required = append(event.Required, r.Handle)
		}
	case bridge.MemoryReport:
		event.Length = m.Samples.HandleCount
	}
}

// buildMessage converts a flow step to the message it sends, assembling
// any record programs.
func buildMessage(step FlowStep) (bridge.Message, error) {
	switch bridge.Kind(step.Send) {
	case bridge.KindSetSampleData:
		return bridge.SetSampleData{Handle: step.Handle, SampleRate: step.SampleRate, Channels: step.Channels}, nil
	case bridge.KindSetSampleError:
		return bridge.SetSampleError{Handle: step.Handle, Error: step.Error}, nil
	case bridge.KindRecord:
		return buildRecord(step.Record)
	case bridge.KindSyncRegistrations:
		return bridge.SyncRegistrations{Invalidated: step.Invalidated, Registrations: step.Registrations}, nil
	case bridge.KindRequiredSamples:
		return bridge.RequiredSamples{}, nil
	case bridge.KindMemoryInfo:
		return bridge.MemoryInfo{}, nil
	default:
		return nil, fmt.Errorf("unknown send kind %q", step.Send)
	}
}

func buildRecord(r *RecordStep) (bridge.Message, error) {
	if r == nil {
		return nil, fmt.Errorf("record step has no record")
	}
	assemble := func(name, src string) ([]byte, error) {
		if src == "" {
			return nil, nil
		}
		code, err := refvm.Assemble(src)
		if err != nil {
			return nil, fmt.Errorf("assemble %s: %w", name, err)
		}
		return code, nil
	}
	program, err := assemble("program", r.Program)
	if err != nil {
		return nil, err
	}
	setup, err := assemble("setup", r.Setup)
	if err != nil {
		return nil, err
	}
	loop, err := assemble("loop", r.Loop)
	if err != nil {
		return nil, err
	}
	deps := r.Dependencies
	if deps == nil {
		deps = []vm.Dependency{}
	}
	return bridge.Record{
		ProjectID:    r.ProjectID,
		Seconds:      r.Seconds,
		CallbackID:   r.CallbackID,
		Program:      program,
		ScopeID:      r.ScopeID,
		Dependencies: deps,
		Setup:        setup,
		Loop:         loop,
		SampleRate:   r.SampleRate,
		BPM:          r.BPM,
	}, nil
}

// checkExpect compares a reply against the step's expect clause.
func checkExpect(index int, expect *ExpectClause, reply TraceEvent) []string {
	if expect == nil {
		if reply.Error != "" {
			return []string{fmt.Sprintf("flow step %d: unexpected error: %s", index, reply.Error)}
		}
		return nil
	}
	var errs []string
	switch {
	case expect.Error == "" && reply.Error != "":
		errs = append(errs, fmt.Sprintf("flow step %d: unexpected error: %s", index, reply.Error))
	case expect.Error != "" && !strings.Contains(reply.Error, expect.Error):
		errs = append(errs, fmt.Sprintf("flow step %d: expected error containing %q, got %q", index, expect.Error, reply.Error))
	}
	if len(expect.Result) > 0 {
		if diff := matchFields(reply.fields(), expect.Result); diff != "" {
			errs = append(errs, fmt.Sprintf("flow step %d: %s", index, diff))
		}
	}
	return errs
}
