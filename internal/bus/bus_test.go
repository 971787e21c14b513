package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clanforge/realtime/internal/frame"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(nil)
	topic := Topic{Service: "notifications", Kind: frame.KindMessage}

	var got []Event
	b.Subscribe(topic, func(evt Event) {
		got = append(got, evt)
	})

	b.Publish(topic, Event{Service: "notifications", Kind: frame.KindMessage})

	assert.Len(t, got, 1)
	assert.Equal(t, "notifications", got[0].Service)
}

func TestBus_MultipleHandlers(t *testing.T) {
	b := New(nil)
	topic := Topic{Service: "clan-chat", Kind: frame.KindReadReceipt}

	calls := 0
	b.Subscribe(topic, func(Event) { calls++ })
	b.Subscribe(topic, func(Event) { calls++ })

	b.Publish(topic, Event{})

	assert.Equal(t, 2, calls)
}

func TestBus_UnsubscribeRemovesExactlyOne(t *testing.T) {
	b := New(nil)
	topic := Topic{Service: "clan-chat", Kind: frame.KindMessage}

	calls := 0
	h := func(Event) { calls++ }
	unsub := b.Subscribe(topic, h)
	b.Subscribe(topic, h)

	unsub()
	unsub() // second call is a no-op

	b.Publish(topic, Event{})

	assert.Equal(t, 1, calls, "only the other registration should remain")
}

func TestBus_PanickingHandlerDoesNotStarveSiblings(t *testing.T) {
	b := New(nil)
	topic := Topic{Service: "clan-chat", Kind: frame.KindChat}

	second := false
	b.Subscribe(topic, func(Event) { panic("boom") })
	b.Subscribe(topic, func(Event) { second = true })

	assert.NotPanics(t, func() {
		b.Publish(topic, Event{})
	})
	assert.True(t, second, "second handler should still run")
}

func TestBus_DispatchDualTopics(t *testing.T) {
	b := New(nil)

	var specific, generic int
	b.Subscribe(Topic{Service: "gigs", Kind: frame.KindMessageSent}, func(Event) { specific++ })
	b.Subscribe(Topic{Service: "gigs", Kind: frame.KindAny}, func(Event) { generic++ })

	env := frame.Envelope{Type: frame.KindMessageSent, Data: []byte(`{"type":"message_sent"}`)}
	b.Dispatch("gigs", env, time.Now())

	assert.Equal(t, 1, specific)
	assert.Equal(t, 1, generic)
}

func TestBus_DispatchChatContentSkipsWildcard(t *testing.T) {
	b := New(nil)

	var specific, generic int
	b.Subscribe(Topic{Service: "clan-chat", Kind: frame.KindChat}, func(Event) { specific++ })
	b.Subscribe(Topic{Service: "clan-chat", Kind: frame.KindAny}, func(Event) { generic++ })

	env := frame.Envelope{Type: frame.KindChat, Data: []byte(`{"type":"chat"}`)}
	b.Dispatch("clan-chat", env, time.Now())

	assert.Equal(t, 1, specific)
	assert.Equal(t, 0, generic, "chat content must not reach wildcard listeners")
}

func TestBus_ServicesAreIsolated(t *testing.T) {
	b := New(nil)

	calls := 0
	b.Subscribe(Topic{Service: "notifications", Kind: frame.KindMessage}, func(Event) { calls++ })

	env := frame.Envelope{Type: frame.KindMessage, Data: []byte(`{"type":"message"}`)}
	b.Dispatch("clan-chat", env, time.Now())

	assert.Equal(t, 0, calls)
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	b := New(nil)
	topic := Topic{Service: "clan-chat", Kind: frame.KindTypingStarted}

	// A handler that subscribes while dispatch is running must not
	// deadlock or corrupt the handler list.
	b.Subscribe(topic, func(Event) {
		b.Subscribe(topic, func(Event) {})
	})

	assert.NotPanics(t, func() {
		b.Publish(topic, Event{})
	})
}
