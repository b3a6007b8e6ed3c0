package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/metrics"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
)

// Message types pushed to subscribers
const (
	MessageSnapshot = "snapshot"
	MessageStatus   = "status"
)

// Message is the envelope of every pushed frame
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Frame is one message in every wire encoding a client may ask for
type Frame struct {
	JSON []byte
	CBOR []byte

	// retained frames become the replay for clients that register later
	retained bool
}

var cborMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode marshals a typed message as JSON and CBOR. CBOR keys follow the
// json struct tags.
func Encode(msgType string, data any) (Frame, error) {
	msg := Message{Type: msgType, Data: data}
	j, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("json: %w", err)
	}
	c, err := cborMode.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("cbor: %w", err)
	}
	return Frame{JSON: j, CBOR: c}, nil
}

func (f Frame) bytesFor(c *Client) []byte {
	if c.binary {
		return f.CBOR
	}
	return f.JSON
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan Frame

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Last snapshot frame, replayed to clients on connect
	latest *Frame

	// Mutex to protect clients map and latest
	mu sync.RWMutex

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHub creates a new Hub. m may be nil.
func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		metrics:    m,
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			latest := h.latest
			total := len(h.clients)
			if latest != nil {
				h.deliver(client, *latest)
			}
			h.mu.Unlock()
			h.metrics.RecordWebSocketConnect()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			if message.retained {
				h.latest = &message
			}
			for client := range h.clients {
				h.deliver(client, message)
			}
			h.mu.Unlock()
			h.metrics.RecordWebSocketMessage()
		}
	}
}

// deliver queues message for client in its encoding, dropping the client
// when its send buffer is full. h.mu must be held.
func (h *Hub) deliver(client *Client, message Frame) {
	select {
	case client.send <- message.bytesFor(client):
	default:
		h.remove(client)
		h.logger.Warn().
			Str("client_id", client.id).
			Msg("client send buffer full, closing connection")
	}
}

// remove drops a registered client. h.mu must be held.
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.RecordWebSocketDisconnect()
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message Frame) {
	h.broadcast <- message
}

// PublishSnapshot pushes snap to every client and keeps it for clients
// that connect later. The replay frame is swapped by Run in the same step
// that fans it out, so a client sees each snapshot exactly once.
func (h *Hub) PublishSnapshot(snap *pipeline.Snapshot) {
	data, err := Encode(MessageSnapshot, snap)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}
	data.retained = true

	h.Broadcast(data)
	h.logger.Debug().
		Uint64("generation", snap.Generation).
		Int("clients", h.ClientCount()).
		Msg("broadcasted snapshot")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
