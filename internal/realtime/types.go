package realtime

import (
	"errors"
	"net/url"
	"time"
)

// Errors
var (
	ErrConnectTimeout  = errors.New("connect timeout")
	ErrStaleConnection = errors.New("connection stale")
	ErrShutdown        = errors.New("registry shut down")
)

// State is the lifecycle state of a single connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is the caller-facing view of a connection slot.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Params is the opaque parameter bag for a connection (user id, session id,
// etc). It is serialized canonically so key order can never fork identities.
type Params map[string]string

// canonical returns a deterministic serialization of the params.
func (p Params) canonical() string {
	return p.query()
}

// query returns the params as a URL-encoded query string with sorted keys.
func (p Params) query() string {
	if len(p) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode() // Encode sorts by key
}

// Key uniquely identifies a logical connection slot. Structured rather than
// string-concatenated so two slots can never collide through serialization
// quirks.
type Key struct {
	Service string
	Params  string // canonical serialization
	Tab     string // process-lifetime tab identity
}

// Config configures the connection registry.
type Config struct {
	URL                  string        // Gateway base URL (e.g. wss://gateway.clanforge.gg/ws)
	ConnectTimeout       time.Duration // Bound on connection establishment
	PingInterval         time.Duration // Health-check ping cadence
	ReconnectBaseDelay   time.Duration // Backoff base; delay = base * 2^attempt
	MaxReconnectAttempts int           // Reconnects before giving up for good
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       10 * time.Second,
		PingInterval:         30 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
}
