package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPortClosed is returned by requests on a closed Port.
var ErrPortClosed = errors.New("port closed")

// RemoteError is a failure reported by the other side of a Port.
type RemoteError struct {
	RequestID string
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("request %s failed: %s", e.RequestID, e.Message)
}

// SendFunc hands an envelope to the other side. It returns false if the
// envelope could not be accepted.
type SendFunc func(Envelope) bool

// Port is the requesting end of a request/response channel. Requests are
// correlated with replies by envelope id.
//
// Thread-safety: all methods are safe for concurrent use.
type Port struct {
	send SendFunc
	ids  IDGenerator

	mu      sync.Mutex
	pending map[string]chan Envelope
	closed  bool
}

// NewPort creates a Port that sends through send and stamps ids from ids.
func NewPort(send SendFunc, ids IDGenerator) *Port {
	return &Port{
		send:    send,
		ids:     ids,
		pending: make(map[string]chan Envelope),
	}
}

// Request sends msg and waits for the correlated reply.
func (p *Port) Request(ctx context.Context, msg Message) (Message, error) {
	env := NewEnvelope(p.ids, msg)
	reply := make(chan Envelope, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPortClosed
	}
	p.pending[env.ID] = reply
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, env.ID)
		p.mu.Unlock()
	}()

	if !p.send(env) {
		return nil, fmt.Errorf("send %s: %w", msg.Kind(), ErrPortClosed)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-reply:
		if !ok {
			return nil, ErrPortClosed
		}
		if r.Error != "" {
			return nil, &RemoteError{RequestID: env.ID, Message: r.Error}
		}
		return r.Message, nil
	}
}

// Notify sends msg without waiting for a reply.
func (p *Port) Notify(msg Message) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || !p.send(NewEnvelope(p.ids, msg)) {
		return ErrPortClosed
	}
	return nil
}

// Deliver routes a reply to its waiting request. It returns false for
// envelopes that answer nothing pending (late replies after a timeout, or
// unsolicited messages).
func (p *Port) Deliver(env Envelope) bool {
	if env.ReplyTo == "" {
		return false
	}
	p.mu.Lock()
	ch, ok := p.pending[env.ReplyTo]
	if ok {
		delete(p.pending, env.ReplyTo)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}

// Close fails every pending request with ErrPortClosed.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}

// Handler answers requests.
type Handler interface {
	Handle(ctx context.Context, msg Message) (Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) (Message, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) (Message, error) {
	return f(ctx, msg)
}

// Serve answers req with h and returns the reply envelope.
func Serve(ctx context.Context, ids IDGenerator, req Envelope, h Handler) Envelope {
	if req.Message == nil {
		return Reply(ids, req, nil, errors.New("empty request"))
	}
	msg, err := h.Handle(ctx, req.Message)
	if err == nil && msg == nil {
		msg = Ack{}
	}
	return Reply(ids, req, msg, err)
}
