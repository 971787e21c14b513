package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the WebSocket dialer.
type WSConfig struct {
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline per send
	BufferSize       int           // Inbound message channel buffer
	Header           http.Header   // Optional extra handshake headers
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// WSDialer dials WebSocket connections to the gateway.
type WSDialer struct {
	cfg    WSConfig
	logger *slog.Logger
}

// NewWSDialer creates a WebSocket dialer.
func NewWSDialer(cfg WSConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultWSConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWSConfig().WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultWSConfig().BufferSize
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial opens a WebSocket connection and starts its read loop.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, d.cfg.Header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		cfg:      d.cfg,
		logger:   d.logger,
		conn:     ws,
		messages: make(chan Message, d.cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		open:     true,
	}

	// Keep the underlying socket's control-frame plumbing alive; the
	// protocol-level health check lives above this layer.
	ws.SetPingHandler(func(data string) error {
		return ws.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go c.readLoop()

	d.logger.Debug("websocket connected", "url", url)
	return c, nil
}

// wsConn implements Conn over gorilla/websocket.
type wsConn struct {
	cfg    WSConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan Message
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu     sync.RWMutex
	open   bool
	closed bool
}

// Send writes raw bytes to the connection.
func (c *wsConn) Send(data []byte) error {
	c.mu.RLock()
	if !c.open {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel.
func (c *wsConn) Messages() <-chan Message {
	return c.messages
}

// Errors returns the connection error channel.
func (c *wsConn) Errors() <-chan error {
	return c.errors
}

// IsOpen reports whether the connection is usable.
func (c *wsConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Close gracefully closes the connection.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// readLoop reads frames from the socket into the messages channel.
func (c *wsConn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
			}
			select {
			case c.errors <- err:
			default:
			}
			return
		}

		msg := Message{Data: data, ReceivedAt: receivedAt}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping message")
		}
	}
}
