// Package bus implements the typed publish/subscribe dispatcher that
// decouples frame arrival from application logic.
//
// Topics are (service, frame kind) pairs rather than dynamic strings, so a
// typo cannot silently create a dead topic. Every inbound frame is
// dispatched twice: once under its specific topic and once under the
// service's wildcard topic (frame.KindAny). Chat-content frames are the
// exception and are dispatched only under the specific topic. See
// frame.Kind.ChatContent.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/clanforge/realtime/internal/frame"
)

// Topic identifies a stream of events for one service and frame kind.
type Topic struct {
	Service string
	Kind    frame.Kind
}

// Event is what handlers receive.
type Event struct {
	Service    string
	Kind       frame.Kind
	Data       []byte // Raw frame JSON; nil for lifecycle events
	ReceivedAt time.Time
}

// Handler processes one event. Handlers run on the dispatching goroutine;
// a panicking handler is recovered and logged, and never prevents sibling
// handlers from running.
type Handler func(Event)

// entry wraps a handler so unsubscribing removes exactly one registration
// even when the same func is registered twice.
type entry struct {
	fn Handler
}

// Bus is the dispatcher. The zero value is not usable; use New.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Topic][]*entry
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[Topic][]*entry),
	}
}

// Subscribe registers a handler and returns a func that removes exactly
// that registration. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	e := &entry{fn: h}

	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], e)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.handlers[topic]
			for i, cand := range list {
				if cand == e {
					b.handlers[topic] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(b.handlers[topic]) == 0 {
				delete(b.handlers, topic)
			}
		})
	}
}

// Publish delivers an event to every handler of a topic.
func (b *Bus) Publish(topic Topic, evt Event) {
	b.mu.RLock()
	list := b.handlers[topic]
	snapshot := make([]*entry, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, e := range snapshot {
		b.invoke(topic, e.fn, evt)
	}
}

// Dispatch routes an inbound frame: the specific topic always, the
// service wildcard unless the frame carries chat content.
func (b *Bus) Dispatch(service string, env frame.Envelope, receivedAt time.Time) {
	evt := Event{
		Service:    service,
		Kind:       env.Type,
		Data:       env.Data,
		ReceivedAt: receivedAt,
	}

	b.Publish(Topic{Service: service, Kind: env.Type}, evt)

	if !env.Type.ChatContent() {
		b.Publish(Topic{Service: service, Kind: frame.KindAny}, evt)
	}
}

// invoke runs one handler inside its own failure boundary.
func (b *Bus) invoke(topic Topic, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"service", topic.Service,
				"kind", topic.Kind,
				"panic", r,
			)
		}
	}()
	h(evt)
}
