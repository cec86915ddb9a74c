package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/samplerec/internal/ir"
)

// loopback wires a Port to a handler running on its own goroutine, the way
// the control loop answers the UI.
func loopback(t *testing.T, h Handler) *Port {
	t.Helper()
	requests := make(chan Envelope, 8)
	ids := NewSequenceGenerator("srv")
	port := NewPort(func(env Envelope) bool {
		requests <- env
		return true
	}, NewSequenceGenerator("cli"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-requests:
				port.Deliver(Serve(ctx, ids, req, h))
			}
		}
	}()
	return port
}

func TestPort_RequestReply(t *testing.T) {
	port := loopback(t, HandlerFunc(func(ctx context.Context, msg Message) (Message, error) {
		rec, ok := msg.(Record)
		if !ok {
			return nil, errors.New("unexpected message")
		}
		return RecordResult{Handle: 1, Version: 1, Length: int(rec.Seconds * 10)}, nil
	}))

	reply, err := port.Request(context.Background(), Record{Seconds: 2})
	require.NoError(t, err)
	assert.Equal(t, RecordResult{Handle: 1, Version: 1, Length: 20}, reply)
}

func TestPort_RemoteError(t *testing.T) {
	port := loopback(t, HandlerFunc(func(ctx context.Context, msg Message) (Message, error) {
		return nil, errors.New("captured variable at slot 2 is not a scalar")
	}))

	_, err := port.Request(context.Background(), Record{})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "cli-1", remote.RequestID)
	assert.Contains(t, err.Error(), "slot 2")
}

func TestPort_NilResultIsAck(t *testing.T) {
	port := loopback(t, HandlerFunc(func(ctx context.Context, msg Message) (Message, error) {
		return nil, nil
	}))

	reply, err := port.Request(context.Background(), SyncRegistrations{Invalidated: []ir.Handle{1}})
	require.NoError(t, err)
	assert.Equal(t, Ack{}, reply)
}

func TestPort_ContextTimeout(t *testing.T) {
	port := NewPort(func(Envelope) bool { return true }, NewSequenceGenerator("cli"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := port.Request(ctx, RequiredSamples{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The late reply finds nobody waiting.
	assert.False(t, port.Deliver(Envelope{ID: "late", ReplyTo: "cli-1", Message: Ack{}}))
}

func TestPort_SendRejected(t *testing.T) {
	port := NewPort(func(Envelope) bool { return false }, NewSequenceGenerator("cli"))
	_, err := port.Request(context.Background(), Ack{})
	assert.ErrorIs(t, err, ErrPortClosed)
	assert.ErrorIs(t, port.Notify(Ack{}), ErrPortClosed)
}

func TestPort_CloseFailsPending(t *testing.T) {
	port := NewPort(func(Envelope) bool { return true }, NewSequenceGenerator("cli"))

	errs := make(chan error, 1)
	go func() {
		_, err := port.Request(context.Background(), RequiredSamples{})
		errs <- err
	}()

	require.Eventually(t, func() bool {
		port.mu.Lock()
		defer port.mu.Unlock()
		return len(port.pending) == 1
	}, time.Second, time.Millisecond)

	port.Close()
	assert.ErrorIs(t, <-errs, ErrPortClosed)

	_, err := port.Request(context.Background(), RequiredSamples{})
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestPort_DeliverIgnoresUnsolicited(t *testing.T) {
	port := NewPort(func(Envelope) bool { return true }, NewSequenceGenerator("cli"))
	assert.False(t, port.Deliver(Envelope{ID: "x", Message: Ack{}}))
}

func TestServe_EmptyRequest(t *testing.T) {
	reply := Serve(context.Background(), NewSequenceGenerator("s"), Envelope{ID: "r"}, HandlerFunc(
		func(context.Context, Message) (Message, error) { return Ack{}, nil }))
	assert.Equal(t, "r", reply.ReplyTo)
	assert.Equal(t, "empty request", reply.Error)
}
