package frame

// -----------------------------------------------------------------------------
// Outbound frames
// -----------------------------------------------------------------------------

// ChatSend submits a new message to a clan chat.
type ChatSend struct {
	Type            Kind   `json:"type"`
	ClanID          string `json:"clanId"`
	Content         string `json:"content"`
	MessageType     string `json:"messageType"`
	ClientMessageID string `json:"clientMessageId"`
	Timestamp       int64  `json:"timestamp"` // Unix ms
}

// TypingIndicator is a fire-and-forget presence hint.
type TypingIndicator struct {
	Type      Kind   `json:"type"`
	ClanID    string `json:"clanId"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

// ReadReceiptSend marks a message as read by this user.
type ReadReceiptSend struct {
	Type      Kind   `json:"type"`
	ClanID    string `json:"clanId"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// DeleteRequest asks the server to delete a message. The server is
// authoritative for the result; a message_deleted frame confirms it.
type DeleteRequest struct {
	Type      Kind   `json:"type"`
	ClanID    string `json:"clanId"`
	MessageID string `json:"messageId"`
}

// HistoryRequest pulls a page of messages (get_recent_messages or
// get_more_messages).
type HistoryRequest struct {
	Type   Kind   `json:"type"`
	ClanID string `json:"clanId"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit"`
}

// Ping is the liveness probe sent on the health-check interval.
type Ping struct {
	Type      Kind  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Inbound frames
// -----------------------------------------------------------------------------

// Message is a chat message delivered by the server, either live ("message"
// / "chat") or inside a history page.
type Message struct {
	Type        Kind   `json:"type,omitempty"`
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	ClanID      string `json:"clanId,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
	Timestamp   int64  `json:"timestamp"` // server-assigned, Unix ms
}

// MessageSent acknowledges a ChatSend, correlated by clientMessageId.
type MessageSent struct {
	Type            Kind   `json:"type"`
	ClientMessageID string `json:"clientMessageId"`
	ServerID        string `json:"serverId"`
	Content         string `json:"content"`
	Timestamp       int64  `json:"timestamp"`
}

// DeliveryConfirmed reports server-side delivery of a message.
type DeliveryConfirmed struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// ReadReceipt reports that a user has read a message.
type ReadReceipt struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
	Timestamp int64  `json:"timestamp"`
}

// MessageDeleted is the tombstone for a deleted message.
type MessageDeleted struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"messageId"`
}

// Typing reports another user's typing state (typing_started /
// typing_stopped).
type Typing struct {
	Type   Kind   `json:"type"`
	UserID string `json:"userId"`
}

// HistoryPage is a page of messages (recent_messages / more_messages).
type HistoryPage struct {
	Type     Kind      `json:"type"`
	Messages []Message `json:"messages"`
	Page     int       `json:"page,omitempty"`
	HasMore  bool      `json:"hasMore,omitempty"`
}
