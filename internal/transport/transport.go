// Package transport abstracts the message-oriented connection to the
// realtime gateway so the protocol layers never touch a concrete socket.
// Production uses the WebSocket implementation in this package; tests
// substitute an in-memory fake.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by Send on a connection that is not open.
var ErrNotConnected = errors.New("not connected")

// Message wraps raw frame bytes with a receive timestamp.
type Message struct {
	Data       []byte    // Raw frame bytes from the gateway
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Conn is one open connection to the gateway.
type Conn interface {
	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of inbound frames in network-arrival order.
	Messages() <-chan Message

	// Errors returns a channel of connection errors. An error on this
	// channel means the connection is dead.
	Errors() <-chan error

	// Close gracefully closes the connection.
	Close() error

	// IsOpen reports whether the connection is currently usable.
	IsOpen() bool
}

// Dialer opens connections. The URL scheme is owned by the caller; the
// dialer only knows how to establish a transport to it.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
