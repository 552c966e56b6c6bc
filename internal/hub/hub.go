// Package hub fans session events out to connected players.
package hub

import (
	"sync"

	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/metrics"
)

// WebSocket close codes used when the hub drops a client.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseTryAgainLater   = 1013
)

const defaultBufferSize = 32

// Event is anything pushed to a client. Name is the wire message type.
type Event interface {
	Name() string
}

// Client is one player endpoint. The transport drains Events until the
// channel is closed and then closes the connection with CloseStatus.
type Client struct {
	ID       string
	Nickname string

	send        chan Event
	closeCode   int
	closeReason string
}

// Events returns the outbound queue of the client.
func (c *Client) Events() <-chan Event {
	return c.send
}

// CloseStatus is valid once Events has been closed.
func (c *Client) CloseStatus() (int, string) {
	return c.closeCode, c.closeReason
}

type room struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// Hub keeps a room of clients per session code. All sends and closes of a
// client queue happen under its room lock and never block.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*room
	bufferSize int
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

func New(bufferSize int, log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		rooms:      make(map[string]*room),
		bufferSize: bufferSize,
		log:        log,
		metrics:    m,
	}
}

// Register adds a client for nickname to the room of code.
func (h *Hub) Register(code, clientID, nickname string) *Client {
	c := &Client{
		ID:       clientID,
		Nickname: nickname,
		send:     make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	r, ok := h.rooms[code]
	if !ok {
		r = &room{clients: make(map[string]*Client)}
		h.rooms[code] = r
	}
	r.mu.Lock()
	h.mu.Unlock()

	r.clients[c.ID] = c
	r.mu.Unlock()

	h.metrics.ConnectionOpened()
	return c
}

// Unregister removes c and closes its queue if it is still open.
func (h *Hub) Unregister(code string, c *Client) {
	r := h.room(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.clients[c.ID] == c {
		h.dropLocked(r, c, CloseNormal, "")
	}
	empty := len(r.clients) == 0
	r.mu.Unlock()

	if empty {
		h.mu.Lock()
		if h.rooms[code] == r {
			r.mu.Lock()
			if len(r.clients) == 0 {
				delete(h.rooms, code)
			}
			r.mu.Unlock()
		}
		h.mu.Unlock()
	}
}

// Send queues e for c alone. A full queue evicts the client.
func (h *Hub) Send(code string, c *Client, e Event) bool {
	r := h.room(code)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[c.ID] != c {
		return false
	}
	return h.deliverLocked(r, c, e)
}

// Broadcast queues e for every client of code and returns how many accepted
// it. Clients whose queue is full are evicted instead of awaited.
func (h *Hub) Broadcast(code string, e Event) int {
	r := h.room(code)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, c := range r.clients {
		if h.deliverLocked(r, c, e) {
			delivered++
		}
	}
	return delivered
}

// CloseRoom closes every client of code with a normal closure and forgets
// the room. Already queued events are still delivered by the transport.
func (h *Hub) CloseRoom(code, reason string) {
	h.mu.Lock()
	r, ok := h.rooms[code]
	delete(h.rooms, code)
	h.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	for _, c := range r.clients {
		h.dropLocked(r, c, CloseNormal, reason)
	}
	r.mu.Unlock()
}

// Connected returns the number of clients registered for code.
func (h *Hub) Connected(code string) int {
	r := h.room(code)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (h *Hub) room(code string) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[code]
}

func (h *Hub) deliverLocked(r *room, c *Client, e Event) bool {
	select {
	case c.send <- e:
		return true
	default:
		h.log.WithFields(logrus.Fields{
			"nickname": c.Nickname,
			"event":    e.Name(),
		}).Warn("evicting slow consumer")
		h.metrics.SlowConsumer()
		h.dropLocked(r, c, CloseTryAgainLater, "slow consumer")
		return false
	}
}

func (h *Hub) dropLocked(r *room, c *Client, code int, reason string) {
	delete(r.clients, c.ID)
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
	h.metrics.ConnectionClosed()
}
