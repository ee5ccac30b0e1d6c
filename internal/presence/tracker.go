// Package presence tracks which users are online and who is typing where.
// Everything here is advisory state: it is never persisted and it is
// rebuilt from hub events after a reconnect.
package presence

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultTypingExpiry drops a typing indicator whose "stopped" event never arrived.
	DefaultTypingExpiry = 5 * time.Second
)

type typingKey struct {
	conversationID string
	userID         string
}

type typingEntry struct {
	name  string
	timer *time.Timer
}

// Tracker holds the online set and the typing map.
type Tracker struct {
	mu     sync.Mutex
	selfID string
	online map[string]struct{}
	typing map[typingKey]*typingEntry
	closed bool

	expiry   time.Duration
	onExpire func(conversationID, userID string)
	logger   *slog.Logger
}

// Option is a function that configures a Tracker.
type Option func(*Tracker)

// WithTypingExpiry sets how long a typing indicator lives without a refresh.
// Zero disables expiry.
func WithTypingExpiry(d time.Duration) Option {
	return func(t *Tracker) {
		t.expiry = d
	}
}

// WithExpiryCallback sets the function called after an indicator expires.
func WithExpiryCallback(fn func(conversationID, userID string)) Option {
	return func(t *Tracker) {
		t.onExpire = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates a Tracker for the signed-in user selfID. Typing events
// from selfID are ignored.
func NewTracker(selfID string, opts ...Option) *Tracker {
	t := &Tracker{
		selfID: selfID,
		online: make(map[string]struct{}),
		typing: make(map[typingKey]*typingEntry),
		expiry: DefaultTypingExpiry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("service", "presence")
	return t
}

// SetOnline replaces the online set with a fresh snapshot.
func (t *Tracker) SetOnline(userIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		t.online[id] = struct{}{}
	}
	t.logger.Debug("Online snapshot applied", "count", len(t.online))
}

// MarkOnline adds userID to the online set and reports whether it was absent.
func (t *Tracker) MarkOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.online[userID]; ok {
		return false
	}
	t.online[userID] = struct{}{}
	return true
}

// MarkOffline removes userID from the online set and reports whether it was present.
func (t *Tracker) MarkOffline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.online[userID]; !ok {
		return false
	}
	delete(t.online, userID)
	return true
}

// IsOnline reports whether userID is online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineUsers returns the online user ids, sorted.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// SetTyping records a typing event. A true event inserts or refreshes the
// indicator and reschedules its expiry; a false event removes it. It reports
// whether the visible typing state changed.
func (t *Tracker) SetTyping(conversationID, userID, userName string, typing bool) bool {
	if userID == "" || userID == t.selfID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	key := typingKey{conversationID: conversationID, userID: userID}
	prev, existed := t.typing[key]
	if existed {
		prev.timer.Stop()
		delete(t.typing, key)
	}

	if !typing {
		return existed
	}

	if userName == "" {
		userName = userID
	}
	entry := &typingEntry{name: userName}
	if t.expiry > 0 {
		entry.timer = time.AfterFunc(t.expiry, func() { t.expire(key, entry) })
	} else {
		entry.timer = time.NewTimer(0)
		entry.timer.Stop()
	}
	t.typing[key] = entry
	return !existed || prev.name != userName
}

// expire removes entry if it is still the current indicator for key.
func (t *Tracker) expire(key typingKey, entry *typingEntry) {
	t.mu.Lock()
	if t.closed || t.typing[key] != entry {
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	onExpire := t.onExpire
	t.mu.Unlock()

	t.logger.Debug("Typing indicator expired",
		"conversation_id", key.conversationID,
		"user_id", key.userID)

	if onExpire != nil {
		onExpire(key.conversationID, key.userID)
	}
}

// TypingUsers returns the display names of users typing in conversationID, sorted.
func (t *Tracker) TypingUsers(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var names []string
	for key, entry := range t.typing {
		if key.conversationID == conversationID {
			names = append(names, entry.name)
		}
	}
	slices.Sort(names)
	return names
}

// ClearTyping drops every typing indicator without firing expiry callbacks.
func (t *Tracker) ClearTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearTypingLocked()
}

// Shutdown cancels all timers. The tracker ignores typing events afterwards.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.clearTypingLocked()
}

func (t *Tracker) clearTypingLocked() {
	for key, entry := range t.typing {
		entry.timer.Stop()
		delete(t.typing, key)
	}
}
