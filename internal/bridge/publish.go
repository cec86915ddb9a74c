package bridge

import (
	"log/slog"
	"sync"
)

// Engine is the realtime audio engine. Both calls must return without
// blocking on audio work.
type Engine interface {
	SetSampleData(msg SetSampleData)
	SetSampleError(msg SetSampleError)
}

// Broadcaster mirrors publishes to secondary consumers (UI waveforms, other
// workers). Delivery is best effort.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Publisher delivers each publish to the engine and then to the broadcast
// channel, in the same shape.
type Publisher struct {
	engine      Engine
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewPublisher creates a Publisher. Either destination may be nil.
func NewPublisher(engine Engine, broadcaster Broadcaster, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{engine: engine, broadcaster: broadcaster, logger: logger}
}

// PublishData delivers finished audio.
func (p *Publisher) PublishData(msg SetSampleData) {
	if p.engine != nil {
		p.engine.SetSampleData(msg)
	}
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(msg)
	}
	p.logger.Debug("published sample data", "handle", msg.Handle, "version", msg.Version)
}

// PublishError delivers a failure.
func (p *Publisher) PublishError(msg SetSampleError) {
	if p.engine != nil {
		p.engine.SetSampleError(msg)
	}
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(msg)
	}
	p.logger.Debug("published sample error", "handle", msg.Handle, "version", msg.Version, "error", msg.Error)
}

// Fanout broadcasts to several broadcasters in order.
type Fanout []Broadcaster

// Broadcast delivers msg to every member.
func (f Fanout) Broadcast(msg Message) {
	for _, b := range f {
		b.Broadcast(msg)
	}
}

// Recorder is a Broadcaster and Engine that keeps everything it receives.
// It is used by the CLI trace output and by tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Broadcast records msg.
func (r *Recorder) Broadcast(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// SetSampleData records msg.
func (r *Recorder) SetSampleData(msg SetSampleData) { r.Broadcast(msg) }

// SetSampleError records msg.
func (r *Recorder) SetSampleError(msg SetSampleError) { r.Broadcast(msg) }

// Messages returns a copy of what was received, in order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
