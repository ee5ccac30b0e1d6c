package devhub

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/devpool/chatsync/internal/domain"
)

type conversationRecord struct {
	id           string
	name         *string
	isGroup      bool
	isDefault    bool
	participants []string
	createdAt    time.Time
}

func (r *conversationRecord) has(userID string) bool {
	return slices.Contains(r.participants, userID)
}

// state is the in-memory data behind the dev backend. Text matching folds
// case with a fresh cases.Caser per call since a Caser is not safe for
// concurrent use.
type state struct {
	mu sync.RWMutex

	users    map[string]User
	tokens   map[string]string
	entities []domain.EntitySummary

	conversations map[string]*conversationRecord
	messages      map[string][]domain.Message
	// readUpTo[conversation][user] is the number of leading messages the user has read.
	readUpTo map[string]map[string]int

	now func() time.Time
}

func newState(seed Seed) *state {
	s := &state{
		users:         make(map[string]User, len(seed.Users)),
		tokens:        make(map[string]string, len(seed.Tokens)),
		entities:      slices.Clone(seed.Entities),
		conversations: make(map[string]*conversationRecord),
		messages:      make(map[string][]domain.Message),
		readUpTo:      make(map[string]map[string]int),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, u := range seed.Users {
		s.users[u.ID] = u
	}
	for token, id := range seed.Tokens {
		s.tokens[token] = id
	}

	if seed.DefaultConversation != "" {
		name := seed.DefaultConversation
		ids := make([]string, 0, len(seed.Users))
		for _, u := range seed.Users {
			ids = append(ids, u.ID)
		}
		s.conversations["general"] = &conversationRecord{
			id:           "general",
			name:         &name,
			isGroup:      true,
			isDefault:    true,
			participants: ids,
			createdAt:    s.now(),
		}
	}
	return s
}

func (s *state) resolveToken(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	return id, ok
}

func (s *state) user(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// conversationsFor lists the user's conversations, most recently created first.
func (s *state) conversationsFor(userID string, online func(string) bool) []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*conversationRecord, 0, len(s.conversations))
	for _, r := range s.conversations {
		if r.has(userID) {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b *conversationRecord) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	out := make([]domain.Conversation, 0, len(records))
	for _, r := range records {
		out = append(out, s.viewLocked(r, userID, online))
	}
	return out
}

func (s *state) conversation(id, userID string, online func(string) bool) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.conversations[id]
	if !ok || !r.has(userID) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, id)
	}
	return s.viewLocked(r, userID, online), nil
}

func (s *state) participants(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.conversations[conversationID]; ok {
		return slices.Clone(r.participants)
	}
	return nil
}

func (s *state) isParticipant(conversationID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.conversations[conversationID]
	return ok && r.has(userID)
}

func (s *state) viewLocked(r *conversationRecord, userID string, online func(string) bool) domain.Conversation {
	conv := domain.Conversation{
		ID:        r.id,
		IsGroup:   r.isGroup,
		IsDefault: r.isDefault,
	}
	if r.name != nil {
		name := *r.name
		conv.Name = &name
	}
	for _, id := range r.participants {
		u := s.users[id]
		conv.Participants = append(conv.Participants, domain.Participant{
			UserID:      id,
			DisplayName: u.DisplayName,
			Role:        u.Role,
			IsOnline:    online != nil && online(id),
		})
	}

	msgs := s.messages[r.id]
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		at := last.CreatedAt
		conv.LastMessageAt = &at
		conv.LastMessagePreview = last.Preview()
	}
	for _, m := range msgs[s.readUpTo[r.id][userID]:] {
		if m.SenderID != userID {
			conv.UnreadCount++
		}
	}
	return conv
}

// messagesPage returns page (1-based, newest first) of size n in ascending order.
func (s *state) messagesPage(conversationID, userID string, page, size int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.conversations[conversationID]
	if !ok || !r.has(userID) {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}

	msgs := s.messages[conversationID]
	end := len(msgs) - (page-1)*size
	if end <= 0 {
		return []domain.Message{}, nil
	}
	start := max(0, end-size)

	out := make([]domain.Message, 0, end-start)
	for _, m := range msgs[start:end] {
		out = append(out, m.Clone())
	}
	return out, nil
}

// directConversation returns the direct conversation between a and b,
// creating it when it does not exist yet.
func (s *state) directConversation(a, b string) (*conversationRecord, bool, error) {
	if a == b {
		return nil, false, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[b]; !ok {
		return nil, false, fmt.Errorf("%w: user %s", domain.ErrNotFound, b)
	}
	for _, r := range s.conversations {
		if !r.isGroup && len(r.participants) == 2 && r.has(a) && r.has(b) {
			return r, false, nil
		}
	}

	r := &conversationRecord{
		id:           uuid.NewString(),
		participants: []string{a, b},
		createdAt:    s.now(),
	}
	s.conversations[r.id] = r
	return r, true, nil
}

func (s *state) createGroup(creator, name string, participantIDs []string) (*conversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := []string{creator}
	for _, id := range participantIDs {
		if _, ok := s.users[id]; !ok {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
		}
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	r := &conversationRecord{
		id:           uuid.NewString(),
		name:         &name,
		isGroup:      true,
		participants: members,
		createdAt:    s.now(),
	}
	s.conversations[r.id] = r
	return r, nil
}

func (s *state) appendMessage(senderID, conversationID, content string, linked *domain.LinkedEntity) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.conversations[conversationID]
	if !ok || !r.has(senderID) {
		return domain.Message{}, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}

	sender := s.users[senderID]
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     sender.DisplayName,
		SenderRole:     sender.Role,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if linked != nil {
		le := *linked
		for _, e := range s.entities {
			if e.Type == le.Type && e.ID == le.ID {
				le.Name = e.Name
				break
			}
		}
		msg.LinkedEntity = &le
	}

	s.messages[conversationID] = append(s.messages[conversationID], msg)
	s.setReadLocked(conversationID, senderID, len(s.messages[conversationID]))
	return msg.Clone(), nil
}

// markRead advances the user's read position to lastMessageID, or to the end
// when it is empty. It returns the ids of other users' messages newly read.
func (s *state) markRead(conversationID, userID, lastMessageID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.conversations[conversationID]
	if !ok || !r.has(userID) {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}

	msgs := s.messages[conversationID]
	upTo := len(msgs)
	if lastMessageID != "" {
		i := slices.IndexFunc(msgs, func(m domain.Message) bool { return m.ID == lastMessageID })
		if i < 0 {
			return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, lastMessageID)
		}
		upTo = i + 1
	}

	from := s.readUpTo[conversationID][userID]
	if upTo <= from {
		return nil, nil
	}

	var ids []string
	for i := from; i < upTo; i++ {
		m := &msgs[i]
		if m.SenderID == userID || m.IsReadBy(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		ids = append(ids, m.ID)
	}
	s.setReadLocked(conversationID, userID, upTo)
	return ids, nil
}

func (s *state) setReadLocked(conversationID, userID string, upTo int) {
	byUser, ok := s.readUpTo[conversationID]
	if !ok {
		byUser = make(map[string]int)
		s.readUpTo[conversationID] = byUser
	}
	if upTo > byUser[userID] {
		byUser[userID] = upTo
	}
}

func (s *state) searchUsers(query string, online func(string) bool) []domain.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	out := []domain.UserSummary{}
	for _, u := range s.users {
		if needle != "" &&
			!strings.Contains(fold.String(u.DisplayName), needle) &&
			!strings.Contains(fold.String(u.Email), needle) {
			continue
		}
		out = append(out, summarize(u, online))
	}
	slices.SortFunc(out, func(a, b domain.UserSummary) int { return strings.Compare(a.DisplayName, b.DisplayName) })
	return out
}

func (s *state) usersByID(ids []string, online func(string) bool) []domain.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, summarize(u, online))
		}
	}
	return out
}

func (s *state) searchEntities(entityType, query string) []domain.EntitySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	out := []domain.EntitySummary{}
	for _, e := range s.entities {
		if e.Type != entityType {
			continue
		}
		if strings.Contains(fold.String(e.Name), needle) || strings.Contains(fold.String(e.ID), needle) {
			out = append(out, e)
		}
	}
	return out
}

func summarize(u User, online func(string) bool) domain.UserSummary {
	return domain.UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
		IsOnline:    online != nil && online(u.ID),
	}
}
