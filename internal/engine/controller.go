package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/persist"
	"github.com/roach88/samplerec/internal/record"
	"github.com/roach88/samplerec/internal/sample"
)

// Controller is the control-thread event loop. It owns the control-side
// sample.Store and, through the record.Orchestrator, both offline VM
// instances.
//
// Thread-safety model:
//   - Enqueue(), Port(), RequestFunc(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Controller struct {
	store     *sample.Store
	orch      *record.Orchestrator
	publisher *bridge.Publisher
	registry  *persist.Registry
	queue     *eventQueue
	clock     *Clock
	ids       bridge.IDGenerator
	logger    *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRegistry persists registrations made through the controller.
func WithRegistry(r *persist.Registry) ControllerOption {
	return func(c *Controller) {
		c.registry = r
	}
}

// WithIDGenerator sets the generator for reply envelope ids.
func WithIDGenerator(ids bridge.IDGenerator) ControllerOption {
	return func(c *Controller) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// WithClock sets the controller's logical clock.
func WithClock(clock *Clock) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a Controller. publisher delivers control-side
// sample writes to the realtime engine; it should be the same publisher
// the orchestrator uses.
func NewController(store *sample.Store, orch *record.Orchestrator, publisher *bridge.Publisher, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:     store,
		orch:      orch,
		publisher: publisher,
		queue:     newEventQueue(),
		clock:     NewClock(),
		ids:       bridge.UUIDv7Generator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.publisher == nil {
		c.publisher = bridge.NewPublisher(nil, nil, c.logger)
	}
	return c
}

// Store returns the control-side sample store.
func (c *Controller) Store() *sample.Store {
	return c.store
}

// Enqueue submits req for processing by the Run loop; reply receives the
// answer. Returns false if the controller has stopped.
func (c *Controller) Enqueue(req bridge.Envelope, reply ReplyFunc) bool {
	return c.queue.Enqueue(Event{Request: req, Reply: reply})
}

// QueueLen returns the number of requests waiting.
func (c *Controller) QueueLen() int {
	return c.queue.Len()
}

// Port returns a request/response port whose requests are served by this
// controller.
func (c *Controller) Port() *bridge.Port {
	var port *bridge.Port
	port = bridge.NewPort(func(env bridge.Envelope) bool {
		return c.Enqueue(env, func(reply bridge.Envelope) { port.Deliver(reply) })
	}, c.ids)
	return port
}

// RequestFunc adapts the controller to a bridge.Hub request handler.
func (c *Controller) RequestFunc() bridge.RequestFunc {
	return func(env bridge.Envelope, reply func(bridge.Envelope)) {
		if !c.Enqueue(env, ReplyFunc(reply)) {
			reply(bridge.Reply(c.ids, env, nil, newStoppedError()))
		}
	}
}

// Run processes requests until ctx is cancelled or Stop is called.
// Requests still queued at that point are answered with a STOPPED error.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// A failed request is answered with an error envelope and logged; the
// loop keeps going.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller starting")
	defer c.failPending()

	for {
		if ev, ok := c.queue.TryDequeue(); ok {
			c.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("controller stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel is closed by Close, so this fires
			// immediately once stopped.
			if c.queue.Closed() && c.queue.Len() == 0 {
				c.logger.Info("controller stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run finishes what is queued and returns.
func (c *Controller) Stop() {
	c.queue.Close()
}

func (c *Controller) failPending() {
	for _, ev := range c.queue.Drain() {
		if ev.Reply != nil {
			ev.Reply(bridge.Reply(c.ids, ev.Request, nil, newStoppedError()))
		}
	}
}

// process answers one event.
// CRITICAL: Called only from Run() goroutine.
func (c *Controller) process(ctx context.Context, ev Event) {
	seq := c.clock.Next()
	kind := ev.Request.Kind()
	c.logger.Debug("processing request", "seq", seq, "id", ev.Request.ID, "kind", kind)

	reply := bridge.Serve(ctx, c.ids, ev.Request, bridge.HandlerFunc(c.handle))
	if reply.Error != "" {
		c.logger.Warn("request failed", "seq", seq, "id", ev.Request.ID, "kind", kind, "error", reply.Error)
	}
	if ev.Reply != nil {
		ev.Reply(reply)
	}
}

// handle dispatches one message by type.
func (c *Controller) handle(ctx context.Context, msg bridge.Message) (bridge.Message, error) {
	switch m := msg.(type) {
	case bridge.Record:
		return c.handleRecord(ctx, m)
	case bridge.SyncRegistrations:
		return c.handleSync(ctx, m)
	case bridge.SetSampleData:
		return c.handleSetData(m)
	case bridge.SetSampleError:
		return c.handleSetError(m)
	case bridge.RequiredSamples:
		return bridge.RequiredList{Samples: c.store.Required()}, nil
	case bridge.MemoryInfo:
		return bridge.MemoryReport{
			Buffers: c.orch.Buffers().Snapshot(),
			Samples: c.store.MemoryInfo(),
		}, nil
	default:
		return nil, NewUnknownMessageError(msg.Kind())
	}
}

func (c *Controller) handleRecord(ctx context.Context, m bridge.Record) (bridge.Message, error) {
	res, err := c.orch.RecordMessage(ctx, m)
	if err != nil {
		return nil, err
	}
	if c.registry != nil {
		if origin, ok := c.store.Origin(res.Handle); ok {
			if _, err := c.registry.Put(ctx, sample.Registration{Handle: res.Handle, Origin: origin}); err != nil {
				c.logger.Error("persist registration failed", "handle", res.Handle, "error", err)
			}
		}
	}
	return res, nil
}

func (c *Controller) handleSync(ctx context.Context, m bridge.SyncRegistrations) (bridge.Message, error) {
	stats := persist.Apply(c.store, m)
	for _, h := range m.Invalidated {
		c.orch.Buffers().Release(bridge.SampleKey(h))
	}
	if c.registry != nil {
		if err := c.registry.PutAll(ctx, stats.Accepted(m)); err != nil {
			return nil, err
		}
	}
	c.logger.Info("registrations synced", "cleared", stats.Cleared, "ensured", stats.Ensured, "refused", len(stats.Refused))
	if len(stats.Refused) > 0 {
		return nil, NewHandleOutOfRangeError(m.Kind(), stats.Refused[0].Handle, len(stats.Refused))
	}
	return bridge.Ack{}, nil
}

// handleSetData stores decoded audio supplied by the UI (an external ref
// that finished loading, say) and forwards it to the realtime engine.
func (c *Controller) handleSetData(m bridge.SetSampleData) (bridge.Message, error) {
	if _, ok := c.store.Origin(m.Handle); !ok {
		return nil, NewUnknownHandleError(m.Kind(), m.Handle)
	}
	buf := c.orch.Buffers().Allocate(bridge.SampleKey(m.Handle), bridge.CategoryDecode, "set_sample_data", m.Channels, m.SampleRate)
	c.store.SetSampleData(m.Handle, buf.Channels, m.SampleRate)
	version := c.store.Version(m.Handle)
	c.publisher.PublishData(bridge.SetSampleData{
		Handle:     m.Handle,
		Version:    version,
		SampleRate: m.SampleRate,
		Channels:   buf.Channels,
	})
	return bridge.Ack{}, nil
}

func (c *Controller) handleSetError(m bridge.SetSampleError) (bridge.Message, error) {
	if !c.store.SetSampleError(m.Handle, m.Error) {
		return nil, NewUnknownHandleError(m.Kind(), m.Handle)
	}
	c.orch.Buffers().Release(bridge.SampleKey(m.Handle))
	c.publisher.PublishError(bridge.SetSampleError{
		Handle:  m.Handle,
		Version: c.store.Version(m.Handle),
		Error:   m.Error,
	})
	return bridge.Ack{}, nil
}
