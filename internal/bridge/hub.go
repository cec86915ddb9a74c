package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultClientBuffer = 64
	writeWait           = 10 * time.Second
)

// RequestFunc handles an envelope received from a websocket client. reply
// may be called at most once, from any goroutine.
type RequestFunc func(env Envelope, reply func(Envelope))

// Hub serves bridge envelopes over websockets. It implements Broadcaster:
// every broadcast goes to all connected clients, and a client too slow to
// keep up loses messages rather than stalling the publisher.
type Hub struct {
	ids       IDGenerator
	onRequest RequestFunc
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	buffer    int

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

var _ Broadcaster = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRequestHandler sets the function that answers client requests.
func WithRequestHandler(fn RequestFunc) HubOption {
	return func(h *Hub) {
		h.onRequest = fn
	}
}

// WithClientBuffer sets how many outgoing messages a client may lag behind.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a Hub stamping broadcast ids from ids.
func NewHub(ids IDGenerator, opts ...HubOption) *Hub {
	h := &Hub{
		ids: ids,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  slog.Default(),
		buffer:  defaultClientBuffer,
		clients: make(map[*hubClient]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type hubClient struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

// Broadcast sends msg to every client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(NewEnvelope(h.ids, msg))
	if err != nil {
		h.logger.Error("broadcast marshal failed", "kind", msg.Kind(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (c *hubClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket client lagging, dropping message")
	}
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.hub.remove(c)
	})
}

func (c *hubClient) readPump() {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.hub.logger.Warn("invalid envelope", "error", err)
			c.rejectUndecodable(data, err)
			continue
		}
		if c.hub.onRequest == nil {
			continue
		}
		c.hub.onRequest(env, c.reply)
	}
}

// rejectUndecodable answers an envelope that failed to decode with an
// error reply, provided its id can still be read. Frames without an id
// cannot be correlated and get no answer.
func (c *hubClient) rejectUndecodable(data []byte, err error) {
	var head struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(data, &head) != nil || head.ID == "" {
		return
	}
	c.reply(Reply(c.hub.ids, Envelope{ID: head.ID}, nil, fmt.Errorf("invalid envelope: %w", err)))
}

func (c *hubClient) reply(env Envelope) {
	out, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("reply marshal failed", "error", err)
		return
	}
	c.enqueue(out)
}

func (c *hubClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				c.close()
				return
			}
		}
	}
}
