// Package chat is the facade the UI talks to. A Session owns the store and
// presence tracker for one signed-in user, routes hub events into them, and
// exposes actions and read-only snapshots.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devpool/chatsync/internal/domain"
	"github.com/devpool/chatsync/internal/presence"
	"github.com/devpool/chatsync/internal/pubsub"
	"github.com/devpool/chatsync/internal/store"
	"github.com/devpool/chatsync/internal/transport"
)

const defaultRequestTimeout = 10 * time.Second

// Session is safe for concurrent use.
type Session struct {
	transport   Transport
	api         API
	publisher   pubsub.Publisher
	credentials CredentialWatcher
	logger      *slog.Logger
	selfID      string
	timeout     time.Duration

	store    *store.Store
	tracker  *presence.Tracker
	notifier *presence.TypingNotifier
	changes  *changeQueue

	alive  atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSession creates a Session. Nothing happens until Start is called.
func NewSession(deps Dependencies) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	s := &Session{
		transport:   deps.Transport,
		api:         deps.API,
		publisher:   deps.Publisher,
		credentials: deps.Credentials,
		logger:      logger.With("component", "chat"),
		selfID:      deps.CurrentUserID,
		timeout:     timeout,
		store:       store.New(),
		changes:     newChangeQueue(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	expiry := deps.TypingExpiry
	if expiry <= 0 {
		expiry = presence.DefaultTypingExpiry
	}
	s.tracker = presence.NewTracker(deps.CurrentUserID,
		presence.WithTypingExpiry(expiry),
		presence.WithLogger(logger),
		presence.WithExpiryCallback(func(conversationID, userID string) {
			if s.alive.Load() {
				s.notify(TopicTyping, Change{ConversationID: conversationID, UserID: userID})
			}
		}),
	)
	s.notifier = presence.NewTypingNotifier(s.sendTyping, deps.TypingIdle)
	return s
}

// Start installs the hub handlers, loads the conversation list and the
// online-user snapshot, then opens the hub connection. Load failures are
// logged; the connection retries on its own.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return errors.New("chat session already stopped")
	}
	if s.alive.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.publisher != nil {
		go s.publishChanges()
	}

	s.transport.SetHandlers(transport.Handlers{
		OnMessage:      s.onMessage,
		OnTyping:       s.onTyping,
		OnReadReceipts: s.onReadReceipts,
		OnUserOnline:   s.onUserOnline,
		OnUserOffline:  s.onUserOffline,
		OnStateChange:  s.onStateChange,
	})

	if err := s.LoadConversations(ctx); err != nil {
		s.logger.Warn("Initial conversation load failed", "error", err)
	}
	s.refreshOnlineUsers(ctx)

	if s.credentials != nil {
		if err := s.credentials.Watch(s.ctx, s.onCredentialsChanged); err != nil {
			s.logger.Warn("Token file watcher not started", "error", err)
		}
	}

	s.transport.Connect(s.ctx)
	s.logger.Info("Chat session started", "user_id", s.selfID)
	return nil
}

// Stop tears the session down. In-flight requests finish without touching
// state. Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	wasAlive := s.alive.Swap(false)
	s.cancel()
	s.mu.Unlock()

	s.notifier.Stop()
	s.transport.Disconnect()
	s.tracker.Shutdown()
	s.wg.Wait()

	if wasAlive {
		s.logger.Info("Chat session stopped", "user_id", s.selfID)
	}
}

// Conversations returns the ordered conversation list.
func (s *Session) Conversations() []domain.Conversation {
	return s.store.Conversations()
}

// ActiveConversation returns the selected conversation.
func (s *Session) ActiveConversation() (domain.Conversation, bool) {
	return s.store.Active()
}

// Messages returns the active conversation's messages, oldest first.
func (s *Session) Messages() []domain.Message {
	return s.store.Messages()
}

// IsConnected reports whether hub invocations are currently possible.
func (s *Session) IsConnected() bool {
	return s.transport.IsConnected()
}

// ConnectionState returns the hub connection state.
func (s *Session) ConnectionState() domain.ConnectionState {
	return s.transport.State()
}

// TypingUsers returns who is typing in conversationID.
func (s *Session) TypingUsers(conversationID string) []string {
	return s.tracker.TypingUsers(conversationID)
}

// OnlineUsers returns the ids of users currently online.
func (s *Session) OnlineUsers() []string {
	return s.tracker.OnlineUsers()
}

// TotalUnreadCount sums unread counts across conversations.
func (s *Session) TotalUnreadCount() int {
	return s.store.TotalUnread()
}

func (s *Session) onMessage(msg domain.Message) {
	if !s.alive.Load() {
		return
	}

	res := s.store.ApplyIncomingMessage(msg)
	if res.NeedsFetch {
		s.goAsync(func(ctx context.Context) { s.fetchConversation(ctx, msg.ConversationID) })
	}
	if !res.Known {
		return
	}

	if s.tracker.SetTyping(msg.ConversationID, msg.SenderID, "", false) {
		s.notify(TopicTyping, Change{ConversationID: msg.ConversationID, UserID: msg.SenderID})
	}
	if res.Appended {
		s.notify(TopicMessages, Change{ConversationID: msg.ConversationID})
		if msg.SenderID != s.selfID {
			s.markReadAsync(msg.ConversationID, msg.ID)
		}
	}
	s.notify(TopicConversations, Change{ConversationID: msg.ConversationID})
}

func (s *Session) onTyping(ev domain.TypingEvent) {
	if !s.alive.Load() {
		return
	}
	if s.tracker.SetTyping(ev.ConversationID, ev.UserID, ev.UserName, ev.IsTyping) {
		s.notify(TopicTyping, Change{ConversationID: ev.ConversationID, UserID: ev.UserID})
	}
}

func (s *Session) onReadReceipts(ev domain.ReadReceiptEvent) {
	if !s.alive.Load() {
		return
	}
	if s.store.ApplyReadReceipts(ev.ConversationID, ev.UserID, ev.MessageIDs) > 0 {
		s.notify(TopicMessages, Change{ConversationID: ev.ConversationID, UserID: ev.UserID})
	}
}

func (s *Session) onUserOnline(ev domain.PresenceEvent) {
	s.applyPresence(ev.UserID, true)
}

func (s *Session) onUserOffline(ev domain.PresenceEvent) {
	s.applyPresence(ev.UserID, false)
}

func (s *Session) applyPresence(userID string, online bool) {
	if !s.alive.Load() || userID == "" {
		return
	}

	var changed bool
	if online {
		changed = s.tracker.MarkOnline(userID)
	} else {
		changed = s.tracker.MarkOffline(userID)
	}
	if s.store.SetParticipantOnline(userID, online) {
		s.notify(TopicConversations, Change{UserID: userID})
	}
	if changed {
		s.notify(TopicPresence, Change{UserID: userID})
	}
}

func (s *Session) onStateChange(state domain.ConnectionState) {
	if !s.alive.Load() {
		return
	}
	s.logger.Info("Hub connection state changed", "state", state.String())
	s.notify(TopicConnection, Change{State: state.String()})

	switch state {
	case domain.Connected:
		// Group membership is per connection, so the active conversation is
		// joined again after every (re)connect.
		if id := s.store.ActiveID(); id != "" {
			s.goAsync(func(ctx context.Context) { s.join(ctx, id) })
		}
		s.goAsync(s.refreshOnlineUsers)
	case domain.Reconnecting, domain.Disconnected:
		s.tracker.ClearTyping()
		s.notify(TopicTyping, Change{})
	}
}

func (s *Session) onCredentialsChanged() {
	if !s.alive.Load() {
		return
	}
	if s.transport.State() == domain.Disconnected {
		s.logger.Info("Token file changed, reconnecting")
		s.transport.Connect(s.ctx)
	}
}

// fetchConversation loads metadata for a conversation first seen in a push.
func (s *Session) fetchConversation(ctx context.Context, id string) {
	conv, err := s.api.GetConversation(ctx, id)
	if !s.alive.Load() {
		return
	}
	if err != nil {
		s.store.DiscardPending(id)
		s.logger.Warn("Failed to fetch new conversation", "conversation_id", id, "error", err)
		return
	}
	if s.store.InsertIfAbsent(*conv) {
		s.notify(TopicConversations, Change{ConversationID: id})
	}
}

func (s *Session) refreshOnlineUsers(ctx context.Context) {
	users, err := s.api.OnlineUsers(ctx)
	if !s.alive.Load() {
		return
	}
	if err != nil {
		s.logger.Warn("Failed to load online users", "error", err)
		return
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	s.tracker.SetOnline(ids)

	changed := false
	for _, id := range ids {
		if s.store.SetParticipantOnline(id, true) {
			changed = true
		}
	}
	if changed {
		s.notify(TopicConversations, Change{})
	}
	s.notify(TopicPresence, Change{})
}

// join subscribes the connection to a conversation's pushes. Best effort.
func (s *Session) join(ctx context.Context, conversationID string) {
	if !s.transport.IsConnected() {
		return
	}
	if err := s.transport.JoinConversation(ctx, conversationID); err != nil {
		s.logger.Warn("Failed to join conversation", "conversation_id", conversationID, "error", err)
	}
}

// markReadAsync reports the conversation as read up to lastMessageID over the
// hub when connected and over REST otherwise. Failures are logged and dropped.
func (s *Session) markReadAsync(conversationID, lastMessageID string) {
	s.goAsync(func(ctx context.Context) {
		var err error
		if s.transport.IsConnected() {
			err = s.transport.MarkAsRead(ctx, conversationID, lastMessageID)
		} else {
			err = s.api.MarkRead(ctx, conversationID, lastMessageID)
		}
		if err != nil {
			s.logger.Debug("Failed to mark conversation read",
				"conversation_id", conversationID,
				"message_id", lastMessageID,
				"error", err)
		}
	})
}

func (s *Session) sendTyping(conversationID string, typing bool) {
	if !s.alive.Load() || !s.transport.IsConnected() {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	if err := s.transport.SendTyping(ctx, conversationID, typing); err != nil {
		s.logger.Debug("Failed to send typing notification", "conversation_id", conversationID, "error", err)
	}
}

// goAsync runs fn in a tracked goroutine bound to the session lifetime.
func (s *Session) goAsync(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// notify queues a change for publishing. It never waits on subscribers, so
// hub handlers can call it from the connection's read loop.
func (s *Session) notify(event pubsub.Event[Change], change Change) {
	if s.publisher == nil {
		return
	}
	s.changes.push(queuedChange{event: event, change: change})
}
