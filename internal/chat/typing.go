package chat

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TypingDebouncer owns the typing-indicator policy: typing_started on the
// first keystroke, typing_stopped after a run of silence or an explicit
// flush. Keeping the state here, instead of scattered across UI call
// sites, makes the emission points testable.
type TypingDebouncer struct {
	send  func(isTyping bool) bool
	idle  time.Duration
	clock clock.Clock

	mu     sync.Mutex
	active bool
	stop   *clock.Timer
}

// NewTypingDebouncer creates a debouncer that calls send to emit
// indicator frames.
func NewTypingDebouncer(send func(bool) bool, idle time.Duration, clk clock.Clock) *TypingDebouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &TypingDebouncer{send: send, idle: idle, clock: clk}
}

// Keystroke registers input activity. The first keystroke of a run emits
// typing_started; every keystroke pushes the pending typing_stopped out by
// the idle timeout.
func (d *TypingDebouncer) Keystroke() {
	d.mu.Lock()
	start := !d.active
	d.active = true
	if d.stop != nil {
		d.stop.Stop()
	}
	d.stop = d.clock.AfterFunc(d.idle, d.idleTimeout)
	d.mu.Unlock()

	if start {
		d.send(true)
	}
}

// Flush emits typing_stopped immediately if a run is active. Called when
// the message is sent or the input loses focus.
func (d *TypingDebouncer) Flush() {
	d.mu.Lock()
	wasActive := d.active
	d.active = false
	if d.stop != nil {
		d.stop.Stop()
		d.stop = nil
	}
	d.mu.Unlock()

	if wasActive {
		d.send(false)
	}
}

// Cancel drops the typing state without emitting anything. Used on session
// close, when a trailing typing_stopped frame would go nowhere.
func (d *TypingDebouncer) Cancel() {
	d.mu.Lock()
	d.active = false
	if d.stop != nil {
		d.stop.Stop()
		d.stop = nil
	}
	d.mu.Unlock()
}

func (d *TypingDebouncer) idleTimeout() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.stop = nil
	d.mu.Unlock()

	d.send(false)
}
