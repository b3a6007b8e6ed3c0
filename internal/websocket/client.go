package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/config"
)

// Client is one subscriber connection. The hub writes frames into send;
// the client only reads control frames.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	binary bool

	config *config.Config
	logger zerolog.Logger
}

// NewClient creates a new Client. user identifies the caller in logs and
// binary selects CBOR frames.
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.Config, logger zerolog.Logger, user string, binary bool) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 16),
		binary: binary,
		config: cfg,
		logger: logger.With().Str("client_id", id).Str("user", user).Bool("cbor", binary).Logger(),
	}
}

// Start runs the connection's reader and writer goroutines
func (c *Client) Start() {
	go c.writeLoop()
	go c.readLoop()
}

func (c *Client) frameType() int {
	if c.binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *Client) extendReadDeadline(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
}

// readLoop keeps the read deadline moving on pongs and unregisters the
// client once the connection fails. Data frames from subscribers carry
// no meaning and are dropped.
func (c *Client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	_ = c.extendReadDeadline("")
	c.conn.SetPongHandler(c.extendReadDeadline)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("subscriber connection lost")
			}
			return
		}
		c.logger.Debug().Int("bytes", len(data)).Msg("dropping subscriber frame")
	}
}

// writeLoop is the only writer on the connection. It writes one frame per
// queued message and pings every PingPeriod.
func (c *Client) writeLoop() {
	ping := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, open := <-c.send:
			if !open {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, data = c.frameType(), msg
		case <-ping.C:
			kind, data = websocket.PingMessage, nil
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			c.logger.Debug().Err(err).Msg("write failed, closing subscriber")
			return
		}
	}
}
