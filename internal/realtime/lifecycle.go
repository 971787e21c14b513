package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/clanforge/realtime/internal/frame"
	"github.com/clanforge/realtime/internal/transport"
)

// Connection is one live logical channel to the gateway. All timers for a
// connection are owned by the Connection itself, so Disconnect can cancel
// them locally and deterministically.
type Connection struct {
	key     Key
	service string
	params  Params

	// ready is closed once the initial dial settles; dialErr holds the
	// failure, if any. Lets concurrent Connect calls share one dial.
	ready   chan struct{}
	dialErr error

	// gen orders connections by creation. The reconnect loop uses it to
	// tell its own dial apart from one a caller raced in first.
	gen uint64

	mu        sync.Mutex
	state     State
	transport transport.Conn
	failed    bool

	// stop cancels the read and health loops. Closed exactly once via
	// stopOnce, from either teardown or the failure path.
	stop     chan struct{}
	stopOnce sync.Once
}

// Service returns the service this connection multiplexes.
func (c *Connection) Service() string { return c.service }

// Key returns the identity key of the connection slot.
func (c *Connection) Key() Key { return c.key }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// teardown closes the connection intentionally: timers stopped, transport
// closed, no reconnect, no events. Safe to call more than once.
func (c *Connection) teardown() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	tc := c.transport
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })

	if tc != nil {
		tc.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// readLoop delivers inbound frames to the bus in network-arrival order and
// routes transport errors into the failure path.
func (r *Registry) readLoop(c *Connection) {
	c.mu.Lock()
	tc := c.transport
	c.mu.Unlock()

	for {
		select {
		case <-c.stop:
			return

		case err := <-tc.Errors():
			r.handleFailure(c, err)
			return

		case msg, ok := <-tc.Messages():
			if !ok {
				return
			}
			env, err := frame.Decode(msg.Data)
			if err != nil {
				r.logger.Warn("dropping malformed frame",
					"service", c.service,
					"error", err,
				)
				continue
			}
			r.bus.Dispatch(c.service, env, msg.ReceivedAt)
		}
	}
}

// healthLoop pings the gateway on the configured interval. While the
// registry is suspended ticks are skipped, not cancelled. A ping write
// failure is treated exactly like a transport close.
func (r *Registry) healthLoop(c *Connection) {
	ticker := r.clock.Ticker(r.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return

		case <-ticker.C:
			if r.isSuspended() {
				continue
			}

			c.mu.Lock()
			tc := c.transport
			open := c.state == StateOpen
			c.mu.Unlock()

			if !open || tc == nil {
				return
			}

			ping := frame.Ping{Type: frame.KindPing, Timestamp: r.clock.Now().UnixMilli()}
			data, _ := json.Marshal(ping)
			if err := tc.Send(data); err != nil {
				r.handleFailure(c, fmt.Errorf("health check: %w", err))
				return
			}
		}
	}
}

// handleFailure takes a connection through the unexpected-close path:
// remove from the registry, emit disconnected, schedule reconnection. Runs
// at most once per connection; intentional closes never reach it.
func (r *Registry) handleFailure(c *Connection, err error) {
	c.mu.Lock()
	if c.failed || c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.failed = true
	c.state = StateClosed
	tc := c.transport
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	if tc != nil {
		tc.Close()
	}

	r.mu.Lock()
	if r.conns[c.key] == c {
		delete(r.conns, c.key)
	}
	shuttingDown := r.closed
	r.mu.Unlock()

	if shuttingDown {
		return
	}

	r.logger.Warn("connection lost",
		"service", c.service,
		"error", err,
	)
	r.publishLifecycle(c.service, frame.KindDisconnected)

	go r.reconnect(c.service, c.params)
}

// reconnect re-dials with exponential backoff: base * 2^attempt, up to the
// configured cap. After the cap, a terminal reconnection_failed event fires
// exactly once and the slot stays empty until the caller connects again.
func (r *Registry) reconnect(service string, params Params) {
	for attempt := 0; attempt < r.cfg.MaxReconnectAttempts; attempt++ {
		delay := r.cfg.ReconnectBaseDelay * (1 << attempt)

		select {
		case <-r.clock.After(delay):
		case <-r.done:
			return
		}

		if r.isClosed() {
			return
		}

		r.logger.Info("attempting reconnection",
			"service", service,
			"attempt", attempt+1,
			"max", r.cfg.MaxReconnectAttempts,
		)

		before := r.generation()

		c, err := r.Connect(context.Background(), service, params)
		if err != nil {
			r.logger.Warn("reconnection failed",
				"service", service,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		// A caller may have reconnected the slot while this loop was
		// backing off. That connection is not ours to announce.
		if c.gen <= before {
			return
		}

		r.publishLifecycle(service, frame.KindConnected)
		return
	}

	r.logger.Error("reconnection attempts exhausted", "service", service)
	r.publishLifecycle(service, frame.KindReconnectionFailed)
}
