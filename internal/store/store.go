// Package store holds the client-side view of conversations and the active
// conversation's messages, reconciled from REST loads and hub pushes.
package store

import (
	"sync"

	"github.com/devpool/chatsync/internal/domain"
)

// IncomingResult describes what ApplyIncomingMessage did with a pushed message.
type IncomingResult struct {
	// Known is false when the message belongs to a conversation not in the list.
	Known bool

	// NeedsFetch is set on the first message for an unknown conversation. The
	// caller should fetch its metadata and call InsertIfAbsent. Later messages
	// for the same id are counted until then.
	NeedsFetch bool

	// Active reports whether the message's conversation is the selected one.
	Active bool

	// Appended reports whether the message was added to the active list. It is
	// false for ids already present.
	Appended bool
}

type pendingConversation struct {
	count int
	last  domain.Message
}

// Store is safe for concurrent use. Every accessor returns a copy.
type Store struct {
	mu sync.Mutex

	conversations []domain.Conversation
	activeID      string
	messages      []domain.Message

	loadSeq uint64
	pending map[string]*pendingConversation
}

// New returns an empty Store.
func New() *Store {
	return &Store{pending: make(map[string]*pendingConversation)}
}

// BeginLoad registers a new conversation-list request and returns its sequence number.
func (s *Store) BeginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadSeq++
	return s.loadSeq
}

// ReplaceConversations installs a fetched conversation list. Results from a
// request older than the latest one started are discarded and false is returned.
func (s *Store) ReplaceConversations(seq uint64, list []domain.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.loadSeq {
		return false
	}

	next := make([]domain.Conversation, 0, len(list))
	for _, c := range list {
		c = c.Clone()
		if c.ID == s.activeID {
			c.UnreadCount = 0
		}
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		delete(s.pending, c.ID)
		next = append(next, c)
	}
	SortConversations(next)
	s.conversations = next
	return true
}

// SetActive selects conv, inserting it when absent. The unread count is
// zeroed optimistically and the message list cleared. It returns the unread
// count the conversation had before selection.
func (s *Store) SetActive(conv domain.Conversation) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	unread := 0
	if i := s.indexLocked(conv.ID); i >= 0 {
		unread = s.conversations[i].UnreadCount
		s.conversations[i].UnreadCount = 0
	} else {
		c := conv.Clone()
		unread = c.UnreadCount
		c.UnreadCount = 0
		s.conversations = append(s.conversations, c)
		SortConversations(s.conversations)
	}

	s.activeID = conv.ID
	s.messages = nil
	return unread
}

// ReplaceMessages installs a fetched page for conversationID. It is ignored
// and false returned when that conversation is no longer active. Messages
// pushed since selection are kept; the result is ordered with no duplicate ids.
func (s *Store) ReplaceMessages(conversationID string, list []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == "" || conversationID != s.activeID {
		return false
	}

	seen := make(map[string]struct{}, len(list)+len(s.messages))
	merged := make([]domain.Message, 0, len(list)+len(s.messages))
	for _, m := range list {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m.Clone())
	}
	for _, m := range s.messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	sortMessages(merged)
	s.messages = merged
	return true
}

// ApplyIncomingMessage reconciles a pushed message.
func (s *Store) ApplyIncomingMessage(msg domain.Message) IncomingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(msg.ConversationID)
	if i < 0 {
		if p, ok := s.pending[msg.ConversationID]; ok {
			p.count++
			if !msg.CreatedAt.Before(p.last.CreatedAt) {
				p.last = msg.Clone()
			}
			return IncomingResult{}
		}
		s.pending[msg.ConversationID] = &pendingConversation{count: 1, last: msg.Clone()}
		return IncomingResult{NeedsFetch: true}
	}

	res := IncomingResult{Known: true, Active: msg.ConversationID == s.activeID}
	if res.Active {
		if !s.appendLocked(msg) {
			return res
		}
		res.Appended = true
	}

	conv := &s.conversations[i]
	touch(conv, msg)
	if !res.Active {
		conv.UnreadCount++
	}
	SortConversations(s.conversations)
	return res
}

// AppendLocal records a message this client sent through the REST path. It
// shares the dedup rules of pushed messages and never touches unread counts.
func (s *Store) AppendLocal(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	appended := false
	if msg.ConversationID == s.activeID {
		appended = s.appendLocked(msg)
		if !appended {
			return false
		}
	}
	if i := s.indexLocked(msg.ConversationID); i >= 0 {
		touch(&s.conversations[i], msg)
		SortConversations(s.conversations)
	}
	return appended
}

// InsertIfAbsent adds a conversation fetched after a push for an unknown id.
// Nothing happens when the id is already present. Messages counted while the
// fetch was in flight become its unread count and preview.
func (s *Store) InsertIfAbsent(conv domain.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending[conv.ID]
	delete(s.pending, conv.ID)
	if s.indexLocked(conv.ID) >= 0 {
		return false
	}

	c := conv.Clone()
	if p != nil {
		c.UnreadCount = p.count
		touch(&c, p.last)
	}
	if c.ID == s.activeID || c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	s.conversations = append(s.conversations, c)
	SortConversations(s.conversations)
	return true
}

// DiscardPending forgets messages counted for an unknown conversation whose
// metadata fetch failed. The next push for it starts a new fetch.
func (s *Store) DiscardPending(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, conversationID)
}

// ApplyReadReceipts adds userID to the read-by set of the listed messages.
// Only the active conversation's messages are retained, so receipts for other
// conversations are ignored. It returns the number of messages changed.
func (s *Store) ApplyReadReceipts(conversationID, userID string, messageIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID != s.activeID || userID == "" {
		return 0
	}
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	changed := 0
	for i := range s.messages {
		m := &s.messages[i]
		if _, ok := ids[m.ID]; !ok || m.IsReadBy(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		changed++
	}
	return changed
}

// SetParticipantOnline updates the denormalised online flag of userID in
// every conversation. It reports whether any flag changed.
func (s *Store) SetParticipantOnline(userID string, online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range s.conversations {
		parts := s.conversations[i].Participants
		for j := range parts {
			if parts[j].UserID == userID && parts[j].IsOnline != online {
				parts[j].IsOnline = online
				changed = true
			}
		}
	}
	return changed
}

// Conversations returns the ordered conversation list.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Conversation looks up a conversation by id.
func (s *Store) Conversation(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.conversations[i].Clone(), true
	}
	return domain.Conversation{}, false
}

// Active returns the selected conversation, if any.
func (s *Store) Active() (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return domain.Conversation{}, false
	}
	if i := s.indexLocked(s.activeID); i >= 0 {
		return s.conversations[i].Clone(), true
	}
	return domain.Conversation{}, false
}

// ActiveID returns the selected conversation id, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns the active conversation's messages in ascending order.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// LatestMessage returns the newest message in the active conversation.
func (s *Store) LatestMessage() (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return domain.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// TotalUnread sums unread counts across all conversations.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	return total
}

func (s *Store) indexLocked(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// appendLocked inserts msg into the active list in creation order. It
// returns false when the id is already present.
func (s *Store) appendLocked(msg domain.Message) bool {
	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			return false
		}
	}
	at := insertPosition(s.messages, msg)
	s.messages = append(s.messages, domain.Message{})
	copy(s.messages[at+1:], s.messages[at:])
	s.messages[at] = msg.Clone()
	return true
}

// touch moves the conversation's preview forward to msg when it is not older.
func touch(c *domain.Conversation, msg domain.Message) {
	if c.LastMessageAt != nil && msg.CreatedAt.Before(*c.LastMessageAt) {
		return
	}
	at := msg.CreatedAt
	c.LastMessageAt = &at
	c.LastMessagePreview = msg.Preview()
}
