package frame

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a frame type on the wire.
type Kind string

// Outbound frame kinds.
const (
	KindChat              Kind = "chat"
	KindTypingIndicator   Kind = "typing_indicator"
	KindReadReceipt       Kind = "read_receipt"
	KindDeleteMessage     Kind = "delete_message"
	KindGetRecentMessages Kind = "get_recent_messages"
	KindGetMoreMessages   Kind = "get_more_messages"
	KindPing              Kind = "ping"
)

// Inbound frame kinds.
const (
	KindMessage           Kind = "message"
	KindMessageSent       Kind = "message_sent"
	KindDeliveryConfirmed Kind = "delivery_confirmed"
	KindMessageDeleted    Kind = "message_deleted"
	KindTypingStarted     Kind = "typing_started"
	KindTypingStopped     Kind = "typing_stopped"
	KindRecentMessages    Kind = "recent_messages"
	KindMoreMessages      Kind = "more_messages"
)

// Lifecycle kinds are never serialized; they are published on the event bus
// by the connection registry.
const (
	KindConnected          Kind = "connected"
	KindDisconnected       Kind = "disconnected"
	KindReconnectionFailed Kind = "reconnection_failed"
)

// KindAny is the wildcard bus topic that receives all inbound traffic for a
// service, except chat-content frames (see ChatContent).
const KindAny Kind = "*"

// ChatContent reports whether k carries a user-visible chat message. These
// frames are dispatched only under their specific topic, never under
// KindAny, so a generic listener cannot process the same message a chat
// listener already handled. This is a deliberate protocol rule.
func (k Kind) ChatContent() bool {
	return k == KindChat || k == KindMessage
}

// ErrMissingType indicates a frame without a "type" discriminator.
var ErrMissingType = errors.New("frame missing type discriminator")

// Envelope is a partially decoded inbound frame.
type Envelope struct {
	Type Kind
	Data json.RawMessage
}

// Decode extracts the type discriminator from raw frame bytes. The full
// payload is retained in Data for kind-specific unmarshaling.
func Decode(data []byte) (Envelope, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if probe.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return Envelope{Type: probe.Type, Data: data}, nil
}
