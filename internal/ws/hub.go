package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// EventType names a websocket event.
type EventType string

const (
	// Client -> Server events
	EventSelectController EventType = "select_controller"
	EventInput            EventType = "input"
	EventPing             EventType = "ping"

	// Server -> Client events
	EventControllerAssigned EventType = "controller_assigned"
	EventControllerStatus   EventType = "controller_status"
	EventClientCount        EventType = "client_count"
	EventPong               EventType = "pong"
	EventError              EventType = "error"
)

// Message is the websocket envelope.
type Message struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope around a JSON-encodable payload.
func NewMessage(event EventType, payload interface{}) (*Message, error) {
	msg := &Message{Event: event}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Data = data
	return msg, nil
}

// SelectPayload is the data of a select_controller event.
// Controller is a JSON number so that overflowing or fractional values still
// decode and get clamped.
type SelectPayload struct {
	Controller float64 `json:"controller"`
}

// ClientCountPayload is the data of a client_count event.
type ClientCountPayload struct {
	Count int `json:"count"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Role distinguishes controller clients from observers.
type Role string

const (
	RoleController Role = "controller"
	RoleObserver   Role = "observer"
)

// ParseRole maps a query value to a Role. Anything but "observer" is a controller.
func ParseRole(s string) Role {
	if s == string(RoleObserver) {
		return RoleObserver
	}
	return RoleController
}

// Client represents a websocket client connection.
type Client struct {
	id         string
	role       Role
	remoteAddr string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	limiter    *rate.Limiter

	// recordID is the persisted session record, empty if none.
	recordID string
	inputs   atomic.Int64

	mu     sync.Mutex
	closed bool

	finish sync.Once
}

// NewClient creates a new websocket client. A nil limiter disables rate limiting.
func NewClient(hub *Hub, conn *websocket.Conn, id string, role Role, limiter *rate.Limiter) *Client {
	return &Client{
		id:      id,
		role:    role,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: limiter,
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string {
	return c.id
}

// Role returns the client's role.
func (c *Client) Role() Role {
	return c.role
}

// RemoteAddr returns the peer address recorded at upgrade time.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Inputs returns how many inputs from this client reached a device.
func (c *Client) Inputs() int64 {
	return c.inputs.Load()
}

// Allow reports whether another inbound event fits the client's rate limit.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// SendMessage encodes and queues a message.
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the client's send queue.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying websocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub is the lobby of connected clients.
type Hub struct {
	clients map[*Client]bool
	closed  bool
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a client to the hub. A closed hub closes the client instead.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		client.Close()
		return
	}
	h.clients[client] = true
}

// Unregister removes a client from the hub and closes it. It reports whether
// the client was registered.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
	return ok
}

// Broadcast sends data to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// BroadcastMessage sends a Message to all connected clients.
func (h *Hub) BroadcastMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CountRole returns the number of connected clients with the given role.
func (h *Hub) CountRole(role Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client.role == role {
			n++
		}
	}
	return n
}

// Clients returns a snapshot of the connected clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.closed = true
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
