package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/clanforge/realtime/internal/bus"
	"github.com/clanforge/realtime/internal/frame"
	"github.com/clanforge/realtime/internal/realtime"
)

// Errors
var (
	ErrNotConnected  = errors.New("chat session not connected")
	ErrDuplicateSend = errors.New("duplicate send suppressed")
	ErrSessionClosed = errors.New("chat session closed")
)

// Config configures a chat session.
type Config struct {
	Service string          // Gateway service name (e.g. "clan-chat")
	ClanID  string          // Chat room identity
	UserID  string          // Local author id
	Params  realtime.Params // Connection parameters for the service

	DedupWindow  time.Duration // Identical content inside this window is a double-submit
	AckTimeout   time.Duration // Pending entries evict after this, ack or not
	TypingIdle   time.Duration // Silence before typing_stopped is emitted
	HistoryLimit int           // Page size for history pulls
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Service:      "clan-chat",
		DedupWindow:  5 * time.Second,
		AckTimeout:   10 * time.Second,
		TypingIdle:   1500 * time.Millisecond,
		HistoryLimit: 50,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Service == "" {
		c.Service = def.Service
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = def.DedupWindow
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.TypingIdle == 0 {
		c.TypingIdle = def.TypingIdle
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = def.HistoryLimit
	}
}

// pendingMessage tracks one outbound message awaiting acknowledgment.
type pendingMessage struct {
	clientID  string
	content   string
	createdAt time.Time
	timer     *clock.Timer
}

// Session is the protocol client for one clan chat. It layers delivery
// semantics over the registry's unreliable, reconnecting transport.
type Session struct {
	cfg    Config
	reg    *realtime.Registry
	bus    *bus.Bus
	clock  clock.Clock
	logger *slog.Logger

	store  *Store
	typing *TypingDebouncer

	mu          sync.Mutex
	pending     map[string]*pendingMessage // client message id → entry
	recent      map[string]time.Time       // content → last send time (dedup window)
	typingPeers map[string]struct{}        // user ids currently typing
	closed      bool

	unsubs []func()
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithClock injects the clock used for dedup, expiry and typing timers.
func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// NewSession creates a chat session and registers its frame handlers on
// the bus. Call Close to release them.
func NewSession(cfg Config, reg *realtime.Registry, b *bus.Bus, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:         cfg,
		reg:         reg,
		bus:         b,
		clock:       clock.New(),
		logger:      logger.With("clan", cfg.ClanID),
		store:       NewStore(),
		pending:     make(map[string]*pendingMessage),
		recent:      make(map[string]time.Time),
		typingPeers: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.typing = NewTypingDebouncer(s.SendTypingIndicator, cfg.TypingIdle, s.clock)

	sub := func(kind frame.Kind, h bus.Handler) {
		s.unsubs = append(s.unsubs, b.Subscribe(bus.Topic{Service: cfg.Service, Kind: kind}, h))
	}
	sub(frame.KindMessage, s.handleIncoming)
	sub(frame.KindChat, s.handleIncoming)
	sub(frame.KindMessageSent, s.handleAck)
	sub(frame.KindDeliveryConfirmed, s.handleDelivery)
	sub(frame.KindReadReceipt, s.handleReadReceipt)
	sub(frame.KindMessageDeleted, s.handleDeleted)
	sub(frame.KindRecentMessages, s.handleHistory)
	sub(frame.KindMoreMessages, s.handleHistory)
	sub(frame.KindTypingStarted, s.handleTyping)
	sub(frame.KindTypingStopped, s.handleTyping)
	sub(frame.KindConnected, s.handleReconnected)

	return s
}

// Store returns the message projection for this session.
func (s *Session) Store() *Store {
	return s.store
}

// Close unregisters the session's handlers and stops all pending timers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[string]*pendingMessage)
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	s.typing.Cancel()
	for _, unsub := range unsubs {
		unsub()
	}
}

// SendMessage submits a message. Returns the client message id on success.
// Fails with ErrNotConnected when the connection is not open and with
// ErrDuplicateSend when identical content was sent inside the dedup
// window.
//
// Known limitation, kept deliberately: the dedup table is keyed by content
// alone, so a legitimate rapid repeat of the same short text ("ok" "ok")
// inside the window is indistinguishable from an accidental double-submit
// and is rejected the same way.
func (s *Session) SendMessage(content string) (string, error) {
	if s.reg.Status(s.cfg.Service, s.cfg.Params) != realtime.StatusConnected {
		return "", ErrNotConnected
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}

	now := s.clock.Now()
	if last, ok := s.recent[content]; ok && now.Sub(last) < s.cfg.DedupWindow {
		s.mu.Unlock()
		s.logger.Debug("duplicate send suppressed", "age", now.Sub(last))
		return "", ErrDuplicateSend
	}

	id := uuid.NewString()
	p := &pendingMessage{clientID: id, content: content, createdAt: now}
	p.timer = s.clock.AfterFunc(s.cfg.AckTimeout, func() { s.expire(id) })
	s.pending[id] = p
	s.recent[content] = now
	s.pruneRecentLocked(now)
	s.mu.Unlock()

	f := frame.ChatSend{
		Type:            frame.KindChat,
		ClanID:          s.cfg.ClanID,
		Content:         content,
		MessageType:     "text",
		ClientMessageID: id,
		Timestamp:       now.UnixMilli(),
	}
	if !s.reg.Send(s.cfg.Service, s.cfg.Params, f) {
		s.mu.Lock()
		if cur, ok := s.pending[id]; ok {
			cur.timer.Stop()
			delete(s.pending, id)
		}
		if t, ok := s.recent[content]; ok && t.Equal(now) {
			delete(s.recent, content)
		}
		s.mu.Unlock()
		return "", ErrNotConnected
	}

	s.store.AppendLocal(id, s.cfg.UserID, content, now.UnixMilli())
	return id, nil
}

// pruneRecentLocked drops dedup entries older than the window. Called with
// s.mu held; the map stays small because the window is short.
func (s *Session) pruneRecentLocked(now time.Time) {
	for content, t := range s.recent {
		if now.Sub(t) >= s.cfg.DedupWindow {
			delete(s.recent, content)
		}
	}
}

// expire evicts a pending entry that never got its ack. The projection
// keeps the message, marked expired, so the UI can tell server-confirmed
// delivery from assumed delivery.
func (s *Session) expire(id string) {
	s.mu.Lock()
	_, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.logger.Warn("message not acknowledged", "clientMessageId", id)
	s.store.Expire(id)
}

// PendingCount returns how many messages are awaiting acknowledgment.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SendTypingIndicator emits a fire-and-forget presence hint. Most callers
// should go through Keystroke/StopTyping, which debounce.
func (s *Session) SendTypingIndicator(isTyping bool) bool {
	return s.reg.Send(s.cfg.Service, s.cfg.Params, frame.TypingIndicator{
		Type:      frame.KindTypingIndicator,
		ClanID:    s.cfg.ClanID,
		IsTyping:  isTyping,
		Timestamp: s.clock.Now().UnixMilli(),
	})
}

// Keystroke feeds the typing debouncer: typing_started on the first
// keystroke, typing_stopped after the idle timeout.
func (s *Session) Keystroke() {
	s.typing.Keystroke()
}

// StopTyping flushes the typing state immediately (message sent, input
// blurred).
func (s *Session) StopTyping() {
	s.typing.Flush()
}

// TypingUsers returns the ids of peers currently typing, sorted.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.typingPeers))
	for id := range s.typingPeers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarkMessageAsRead issues a read receipt. Idempotent at this layer;
// recording whether a reader was already counted is the server's job.
func (s *Session) MarkMessageAsRead(messageID string) bool {
	return s.reg.Send(s.cfg.Service, s.cfg.Params, frame.ReadReceiptSend{
		Type:      frame.KindReadReceipt,
		ClanID:    s.cfg.ClanID,
		MessageID: messageID,
		Timestamp: s.clock.Now().UnixMilli(),
	})
}

// DeleteMessage requests deletion. The server is authoritative; the local
// tombstone is applied when message_deleted arrives.
func (s *Session) DeleteMessage(messageID string) bool {
	return s.reg.Send(s.cfg.Service, s.cfg.Params, frame.DeleteRequest{
		Type:      frame.KindDeleteMessage,
		ClanID:    s.cfg.ClanID,
		MessageID: messageID,
	})
}

// RequestRecentMessages pulls the latest history page.
func (s *Session) RequestRecentMessages() bool {
	return s.reg.Send(s.cfg.Service, s.cfg.Params, frame.HistoryRequest{
		Type:   frame.KindGetRecentMessages,
		ClanID: s.cfg.ClanID,
		Limit:  s.cfg.HistoryLimit,
	})
}

// RequestMoreMessages pulls an older history page.
func (s *Session) RequestMoreMessages(page int) bool {
	return s.reg.Send(s.cfg.Service, s.cfg.Params, frame.HistoryRequest{
		Type:   frame.KindGetMoreMessages,
		ClanID: s.cfg.ClanID,
		Page:   page,
		Limit:  s.cfg.HistoryLimit,
	})
}

// -----------------------------------------------------------------------------
// Frame handlers
// -----------------------------------------------------------------------------

func (s *Session) handleIncoming(evt bus.Event) {
	var msg frame.Message
	if err := json.Unmarshal(evt.Data, &msg); err != nil {
		s.logger.Warn("bad message frame", "error", err)
		return
	}
	if msg.ClanID != "" && msg.ClanID != s.cfg.ClanID {
		return
	}
	s.store.Upsert(msg)
}

// handleAck reconciles a message_sent frame with its pending entry,
// correlated strictly by client message id. Two in-flight messages with
// identical text must never match each other's acks.
func (s *Session) handleAck(evt bus.Event) {
	var ack frame.MessageSent
	if err := json.Unmarshal(evt.Data, &ack); err != nil {
		s.logger.Warn("bad ack frame", "error", err)
		return
	}

	s.mu.Lock()
	p, ok := s.pending[ack.ClientMessageID]
	if ok {
		p.timer.Stop()
		delete(s.pending, ack.ClientMessageID)
	}
	s.mu.Unlock()

	if !ok {
		// Ack after expiry: the pending entry is gone but the projection
		// can still be upgraded to delivered.
		s.logger.Debug("ack for unknown pending entry", "clientMessageId", ack.ClientMessageID)
	}
	s.store.Ack(ack.ClientMessageID, ack.ServerID, ack.Timestamp)
}

func (s *Session) handleDelivery(evt bus.Event) {
	var dc frame.DeliveryConfirmed
	if err := json.Unmarshal(evt.Data, &dc); err != nil {
		s.logger.Warn("bad delivery frame", "error", err)
		return
	}
	s.store.ConfirmDelivery(dc.MessageID)
}

func (s *Session) handleReadReceipt(evt bus.Event) {
	var rr frame.ReadReceipt
	if err := json.Unmarshal(evt.Data, &rr); err != nil {
		s.logger.Warn("bad read receipt frame", "error", err)
		return
	}
	s.store.MarkRead(rr.MessageID, rr.ReadBy)
}

func (s *Session) handleDeleted(evt bus.Event) {
	var del frame.MessageDeleted
	if err := json.Unmarshal(evt.Data, &del); err != nil {
		s.logger.Warn("bad tombstone frame", "error", err)
		return
	}
	s.store.Tombstone(del.MessageID)
}

func (s *Session) handleHistory(evt bus.Event) {
	var page frame.HistoryPage
	if err := json.Unmarshal(evt.Data, &page); err != nil {
		s.logger.Warn("bad history frame", "error", err)
		return
	}
	s.store.Merge(page.Messages)
}

// handleTyping tracks which peers are typing. Own frames are ignored; the
// local state lives in the debouncer.
func (s *Session) handleTyping(evt bus.Event) {
	var tp frame.Typing
	if err := json.Unmarshal(evt.Data, &tp); err != nil {
		s.logger.Warn("bad typing frame", "error", err)
		return
	}
	if tp.UserID == "" || tp.UserID == s.cfg.UserID {
		return
	}

	s.mu.Lock()
	if evt.Kind == frame.KindTypingStarted {
		s.typingPeers[tp.UserID] = struct{}{}
	} else {
		delete(s.typingPeers, tp.UserID)
	}
	s.mu.Unlock()
}

// handleReconnected re-requests recent history: frames sent while the
// connection was down are lost, there is no server-side replay buffer.
// Typing presence is dropped too; any typing_stopped we missed is gone.
func (s *Session) handleReconnected(bus.Event) {
	s.mu.Lock()
	s.typingPeers = make(map[string]struct{})
	s.mu.Unlock()

	s.logger.Info("reconnected, refreshing history")
	s.RequestRecentMessages()
}
