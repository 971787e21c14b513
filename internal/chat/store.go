package chat

import (
	"sort"
	"sync"

	"github.com/clanforge/realtime/internal/frame"
)

// DeliveryState is the protocol-level delivery status of a message.
type DeliveryState int

const (
	// StateSending: local send, no server confirmation yet.
	StateSending DeliveryState = iota
	// StateDelivered: confirmed by the server (ack or delivery frame).
	StateDelivered
	// StateRead: at least one reader has been reported.
	StateRead
	// StateExpired: no ack inside the timeout. Delivery is assumed at
	// best, never confirmed.
	StateExpired
)

func (s DeliveryState) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Message is the view-level projection of one chat message.
type Message struct {
	ID        string // Server id; empty for a local send that has no ack yet
	ClientID  string // Client message id; empty for remote messages
	Author    string
	Content   string
	Timestamp int64 // Server-assigned where known, Unix ms
	State     DeliveryState
	ReadBy    []string
	Deleted   bool
}

// receiptStash buffers receipts that arrived before the message they refer
// to, so out-of-order delivery cannot lose them.
type receiptStash struct {
	delivered bool
	readBy    []string
	deleted   bool
}

// Store keeps the message projection for one chat session consistent as
// frames arrive out of order across reconnects. Consumers read messages
// sorted by server timestamp; arrival order is not trusted.
type Store struct {
	mu       sync.Mutex
	byServer map[string]*Message
	byClient map[string]*Message
	all      []*Message
	stash    map[string]*receiptStash // server id → early receipts
}

// NewStore creates an empty projection.
func NewStore() *Store {
	return &Store{
		byServer: make(map[string]*Message),
		byClient: make(map[string]*Message),
		stash:    make(map[string]*receiptStash),
	}
}

// AppendLocal records a message this client just sent, pending ack.
func (st *Store) AppendLocal(clientID, author, content string, ts int64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := &Message{
		ClientID:  clientID,
		Author:    author,
		Content:   content,
		Timestamp: ts,
		State:     StateSending,
	}
	st.byClient[clientID] = m
	st.all = append(st.all, m)
}

// Ack binds a server id to a local message and upgrades it to delivered.
// The server timestamp replaces the local one. Safe to call for unknown
// client ids (late ack after session restart).
func (st *Store) Ack(clientID, serverID string, ts int64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.byClient[clientID]
	if !ok {
		return
	}
	// The room echo of our own message can land before the ack. Fold that
	// entry into the local one so the message is not rendered twice.
	if echo, ok := st.byServer[serverID]; ok && echo != m {
		st.absorbLocked(m, echo)
	}
	m.ID = serverID
	if ts != 0 {
		m.Timestamp = ts
	}
	if m.State == StateSending || m.State == StateExpired {
		m.State = StateDelivered
	}
	st.byServer[serverID] = m
	st.applyStashLocked(m)
}

// Expire marks a local message as never acknowledged.
func (st *Store) Expire(clientID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if m, ok := st.byClient[clientID]; ok && m.State == StateSending {
		m.State = StateExpired
	}
}

// Upsert inserts or refreshes a server-delivered message.
func (st *Store) Upsert(msg frame.Message) {
	if msg.ID == "" {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m, ok := st.byServer[msg.ID]; ok {
		m.Content = msg.Content
		if msg.Timestamp != 0 {
			m.Timestamp = msg.Timestamp
		}
		return
	}

	m := &Message{
		ID:        msg.ID,
		Author:    msg.UserID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		State:     StateDelivered,
	}
	st.byServer[msg.ID] = m
	st.all = append(st.all, m)
	st.applyStashLocked(m)
}

// Merge folds a history page into the projection.
func (st *Store) Merge(msgs []frame.Message) {
	for _, msg := range msgs {
		st.Upsert(msg)
	}
}

// ConfirmDelivery upgrades a message to delivered. Receipts for messages
// not seen yet are stashed and applied on arrival.
func (st *Store) ConfirmDelivery(serverID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.byServer[serverID]
	if !ok {
		st.stashFor(serverID).delivered = true
		return
	}
	if m.State == StateSending || m.State == StateExpired {
		m.State = StateDelivered
	}
}

// MarkRead records a reader for a message. Duplicate receipts for the same
// reader are collapsed.
func (st *Store) MarkRead(serverID, readBy string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.byServer[serverID]
	if !ok {
		s := st.stashFor(serverID)
		s.readBy = appendReader(s.readBy, readBy)
		return
	}
	m.ReadBy = appendReader(m.ReadBy, readBy)
	m.State = StateRead
}

// Tombstone flags a message as deleted. The entry stays so ordering and
// counts remain stable; the view layer decides how to render it.
func (st *Store) Tombstone(serverID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.byServer[serverID]
	if !ok {
		st.stashFor(serverID).deleted = true
		return
	}
	m.Deleted = true
}

// Get returns a snapshot of one message by server id.
func (st *Store) Get(serverID string) (Message, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.byServer[serverID]
	if !ok {
		return Message{}, false
	}
	return snapshot(m), true
}

// GetByClientID returns a snapshot of one message by client id.
func (st *Store) GetByClientID(clientID string) (Message, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.byClient[clientID]
	if !ok {
		return Message{}, false
	}
	return snapshot(m), true
}

// Messages returns the conversation sorted by server timestamp. Ties keep
// insertion order.
func (st *Store) Messages() []Message {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]Message, 0, len(st.all))
	for _, m := range st.all {
		out = append(out, snapshot(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Len returns the number of messages in the projection.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.all)
}

// absorbLocked merges a remote-inserted duplicate into the surviving entry
// and drops it from the projection.
func (st *Store) absorbLocked(dst, src *Message) {
	for _, r := range src.ReadBy {
		dst.ReadBy = appendReader(dst.ReadBy, r)
	}
	if src.Deleted {
		dst.Deleted = true
	}
	switch src.State {
	case StateRead:
		dst.State = StateRead
	case StateDelivered:
		if dst.State == StateSending || dst.State == StateExpired {
			dst.State = StateDelivered
		}
	}
	for i, m := range st.all {
		if m == src {
			st.all = append(st.all[:i], st.all[i+1:]...)
			break
		}
	}
}

func (st *Store) stashFor(serverID string) *receiptStash {
	s, ok := st.stash[serverID]
	if !ok {
		s = &receiptStash{}
		st.stash[serverID] = s
	}
	return s
}

// applyStashLocked replays receipts that arrived before the message did.
func (st *Store) applyStashLocked(m *Message) {
	s, ok := st.stash[m.ID]
	if !ok {
		return
	}
	delete(st.stash, m.ID)

	if s.delivered && (m.State == StateSending || m.State == StateExpired) {
		m.State = StateDelivered
	}
	for _, reader := range s.readBy {
		m.ReadBy = appendReader(m.ReadBy, reader)
	}
	if len(s.readBy) > 0 {
		m.State = StateRead
	}
	if s.deleted {
		m.Deleted = true
	}
}

func appendReader(readers []string, reader string) []string {
	for _, r := range readers {
		if r == reader {
			return readers
		}
	}
	return append(readers, reader)
}

func snapshot(m *Message) Message {
	out := *m
	out.ReadBy = append([]string(nil), m.ReadBy...)
	return out
}
