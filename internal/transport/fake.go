package transport

import (
	"context"
	"sync"
	"time"
)

// FakeDialer is an in-memory Dialer for tests and local development. Each
// Dial returns a FakeConn that records outbound frames and lets the caller
// inject inbound frames and failures.
type FakeDialer struct {
	mu      sync.Mutex
	conns   []*FakeConn
	dialErr error
	dials   int
}

// NewFakeDialer creates a fake dialer.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// FailNext makes subsequent Dial calls return err until cleared with nil.
func (d *FakeDialer) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// Dial returns a new open FakeConn.
func (d *FakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := &FakeConn{
		url:      url,
		messages: make(chan Message, 64),
		errors:   make(chan error, 1),
		open:     true,
	}
	d.conns = append(d.conns, c)
	return c, nil
}

// DialCount returns how many times Dial was called, including failures.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns returns every connection handed out so far.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeConn, len(d.conns))
	copy(out, d.conns)
	return out
}

// LastConn returns the most recently dialed connection, or nil.
func (d *FakeDialer) LastConn() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// FakeConn implements Conn in memory.
type FakeConn struct {
	url string

	mu      sync.Mutex
	open    bool
	sent    [][]byte
	sendErr error

	messages chan Message
	errors   chan error
}

// URL returns the URL this connection was dialed with.
func (c *FakeConn) URL() string { return c.url }

// Send records outbound bytes.
func (c *FakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotConnected
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.sent = append(c.sent, buf)
	return nil
}

// Sent returns a copy of every frame written so far.
func (c *FakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// FailWrites makes subsequent Send calls return err.
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Deliver injects an inbound frame as if it arrived from the network.
func (c *FakeConn) Deliver(data []byte) {
	c.messages <- Message{Data: data, ReceivedAt: time.Now()}
}

// Fail simulates an unexpected transport failure.
func (c *FakeConn) Fail(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	select {
	case c.errors <- err:
	default:
	}
}

// Messages returns the inbound frame channel.
func (c *FakeConn) Messages() <-chan Message { return c.messages }

// Errors returns the error channel.
func (c *FakeConn) Errors() <-chan error { return c.errors }

// Close marks the connection closed.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// IsOpen reports whether the connection is open.
func (c *FakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}
