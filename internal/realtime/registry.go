package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/clanforge/realtime/internal/bus"
	"github.com/clanforge/realtime/internal/frame"
	"github.com/clanforge/realtime/internal/transport"
)

// Registry is the single source of truth for live connections. It is an
// explicit instance passed to consumers; there is no package-level pool.
type Registry struct {
	cfg    Config
	dialer transport.Dialer
	bus    *bus.Bus
	clock  clock.Clock
	logger *slog.Logger

	// Process-lifetime tab identity, part of every connection key so two
	// hosting tabs can never collide on the same slot.
	tab string

	done chan struct{}

	mu        sync.Mutex
	conns     map[Key]*Connection
	gen       uint64 // bumped for every connection created
	suspended bool
	closed    bool
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock injects the clock used for health checks and backoff.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// NewRegistry creates a connection registry.
func NewRegistry(cfg Config, dialer transport.Dialer, b *bus.Bus, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	r := &Registry{
		cfg:    cfg,
		dialer: dialer,
		bus:    b,
		clock:  clock.New(),
		logger: logger,
		tab:    uuid.NewString(),
		done:   make(chan struct{}),
		conns:  make(map[Key]*Connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TabID returns this process's tab identity.
func (r *Registry) TabID() string {
	return r.tab
}

// keyFor builds the identity key for a (service, params) pair.
func (r *Registry) keyFor(service string, params Params) Key {
	return Key{Service: service, Params: params.canonical(), Tab: r.tab}
}

// connURL composes the gateway URL for a connection. The scheme belongs to
// the configured base; the dialer is free to ignore it entirely (fakes do).
func (r *Registry) connURL(service string, params Params) string {
	u := strings.TrimSuffix(r.cfg.URL, "/") + "/" + service
	if q := params.query(); q != "" {
		u += "?" + q
	}
	return u
}

// Connect returns the live connection for (service, params), opening one if
// none exists. Concurrent calls for the same key share a single dial; the
// extra callers block until it settles.
func (r *Registry) Connect(ctx context.Context, service string, params Params) (*Connection, error) {
	key := r.keyFor(service, params)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	if existing, ok := r.conns[key]; ok {
		r.mu.Unlock()
		select {
		case <-existing.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if existing.dialErr != nil {
			return nil, existing.dialErr
		}
		return existing, nil
	}

	r.gen++
	c := &Connection{
		key:     key,
		service: service,
		params:  params,
		gen:     r.gen,
		state:   StateConnecting,
		ready:   make(chan struct{}),
		stop:    make(chan struct{}),
	}
	r.conns[key] = c
	r.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	tc, err := r.dialer.Dial(dialCtx, r.connURL(service, params))
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %s", ErrConnectTimeout, service)
		} else {
			err = fmt.Errorf("connect %s: %w", service, err)
		}
		c.dialErr = err
		close(c.ready)

		// A failed dial leaves no registry entry behind.
		r.mu.Lock()
		if r.conns[key] == c {
			delete(r.conns, key)
		}
		r.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.transport = tc
	c.state = StateOpen
	c.mu.Unlock()
	close(c.ready)

	go r.readLoop(c)
	go r.healthLoop(c)

	r.logger.Info("connected", "service", service, "key", key.Params)
	return c, nil
}

// Disconnect tears down the connection for (service, params). Stops all of
// its timers synchronously and removes the registry entry. No-op if no
// matching connection exists.
func (r *Registry) Disconnect(service string, params Params) {
	key := r.keyFor(service, params)

	r.mu.Lock()
	c, ok := r.conns[key]
	if ok {
		delete(r.conns, key)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("disconnect: no connection", "service", service)
		return
	}

	c.teardown()
	r.logger.Info("disconnected", "service", service)
}

// Send serializes and writes a frame on the connection for (service,
// params). Returns false, without error, when the connection is missing,
// not open, or the write fails; callers treat false as "not delivered".
func (r *Registry) Send(service string, params Params, payload any) bool {
	c := r.lookup(service, params)
	if c == nil {
		r.logger.Debug("send: no connection", "service", service)
		return false
	}

	c.mu.Lock()
	open := c.state == StateOpen
	tc := c.transport
	c.mu.Unlock()

	if !open || tc == nil {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("send: marshal failed", "service", service, "error", err)
		return false
	}

	if err := tc.Send(data); err != nil {
		r.logger.Debug("send failed", "service", service, "error", err)
		return false
	}
	return true
}

// Status reports the current state of the slot for (service, params). Pure
// read, never blocks on the network.
func (r *Registry) Status(service string, params Params) Status {
	c := r.lookup(service, params)
	if c == nil {
		return StatusDisconnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnecting:
		return StatusConnecting
	case StateOpen:
		return StatusConnected
	default:
		return StatusDisconnected
	}
}

// Suspend pauses health-check pings on every connection. Timers keep
// running; ticks are skipped until Resume. Mirrors the hosting page going
// hidden.
func (r *Registry) Suspend() {
	r.mu.Lock()
	r.suspended = true
	r.mu.Unlock()
	r.logger.Debug("registry suspended")
}

// Resume re-enables health checks and sweeps out any connection whose
// transport died while suspended. Dead connections take the normal
// failure path, reconnect included.
func (r *Registry) Resume() {
	r.mu.Lock()
	r.suspended = false
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	r.logger.Debug("registry resumed", "connections", len(conns))

	for _, c := range conns {
		c.mu.Lock()
		tc := c.transport
		open := c.state == StateOpen
		c.mu.Unlock()

		if open && (tc == nil || !tc.IsOpen()) {
			r.handleFailure(c, ErrStaleConnection)
		}
	}
}

// Shutdown closes every connection synchronously without triggering
// reconnect logic. The registry is unusable afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[Key]*Connection)
	r.mu.Unlock()

	close(r.done)

	for _, c := range conns {
		c.teardown()
	}

	r.logger.Info("registry shut down", "connections", len(conns))
}

func (r *Registry) lookup(service string, params Params) *Connection {
	key := r.keyFor(service, params)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[key]
}

func (r *Registry) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Registry) isSuspended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// ActiveCount returns the number of registered connections.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// publishLifecycle dispatches a lifecycle event the same way inbound
// frames are dispatched, so generic listeners see it too.
func (r *Registry) publishLifecycle(service string, kind frame.Kind) {
	r.bus.Dispatch(service, frame.Envelope{Type: kind}, r.clock.Now())
}
