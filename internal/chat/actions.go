package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/domain"
	"github.com/devpool/chatsync/internal/transport"
)

// LoadConversations refreshes the conversation list. When several loads
// overlap, only the most recently started one is applied.
func (s *Session) LoadConversations(ctx context.Context) error {
	seq := s.store.BeginLoad()
	list, err := s.api.ListConversations(ctx)
	if !s.alive.Load() {
		return nil
	}
	if err != nil {
		return domain.NewOperationError("load conversations", err)
	}
	if s.store.ReplaceConversations(seq, list) {
		s.notify(TopicConversations, Change{})
	} else {
		s.logger.Debug("Discarded stale conversation list", "seq", seq)
	}
	return nil
}

// LoadMessages fetches one page of the conversation's history. The result is
// dropped when another conversation was selected in the meantime.
func (s *Session) LoadMessages(ctx context.Context, conversationID string, page api.MessagePage) error {
	msgs, err := s.api.ListMessages(ctx, conversationID, page)
	if !s.alive.Load() {
		return nil
	}
	if err != nil {
		return domain.NewOperationError("load messages", err)
	}
	if s.store.ReplaceMessages(conversationID, msgs) {
		s.notify(TopicMessages, Change{ConversationID: conversationID})
	}
	return nil
}

// SelectConversation makes conversationID the active conversation. Its unread
// count is cleared immediately; the server is told afterwards.
func (s *Session) SelectConversation(ctx context.Context, conversationID string) error {
	conv, ok := s.store.Conversation(conversationID)
	if !ok {
		fetched, err := s.api.GetConversation(ctx, conversationID)
		if err != nil {
			return domain.NewOperationError("open conversation", err)
		}
		conv = *fetched
	}
	if !s.alive.Load() {
		return nil
	}

	unread := s.store.SetActive(conv)
	s.notify(TopicConversations, Change{ConversationID: conversationID})
	s.notify(TopicMessages, Change{ConversationID: conversationID})

	s.goAsync(func(ctx context.Context) { s.join(ctx, conversationID) })

	loadErr := s.LoadMessages(ctx, conversationID, api.DefaultMessagePage)

	// The unread count is already zero locally, so the server is told even
	// when the history failed to load.
	if unread > 0 {
		latest := ""
		if m, ok := s.store.LatestMessage(); ok && s.store.ActiveID() == conversationID {
			latest = m.ID
		}
		s.markReadAsync(conversationID, latest)
	}
	return loadErr
}

// SendMessage posts to the active conversation. Over the hub the message
// appears once the hub echoes it back; without a connection it is sent over
// REST and appended locally.
func (s *Session) SendMessage(ctx context.Context, content string, linked *domain.LinkedEntity) error {
	conversationID := s.store.ActiveID()
	if conversationID == "" {
		return domain.NewOperationError("send message", domain.ErrNoActiveConversation)
	}

	content = strings.TrimSpace(content)
	if content == "" && linked == nil {
		return domain.NewOperationError("send message",
			fmt.Errorf("%w: message is empty", domain.ErrInvalidInput))
	}

	if s.transport.IsConnected() {
		args := transport.SendMessageArgs{ConversationID: conversationID, Content: content}
		if linked != nil {
			args.LinkedEntityType = linked.Type
			args.LinkedEntityID = linked.ID
		}
		err := s.transport.SendMessage(ctx, args)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotConnected) {
			return domain.NewOperationError("send message", err)
		}
		s.logger.Debug("Hub dropped before send, using REST", "conversation_id", conversationID)
	}

	req := api.SendMessageRequest{ConversationID: conversationID, Content: content}
	if linked != nil {
		req.LinkedEntityType = linked.Type
		req.LinkedEntityID = linked.ID
	}
	msg, err := s.api.SendMessage(ctx, req)
	if err != nil {
		return domain.NewOperationError("send message", err)
	}
	if !s.alive.Load() {
		return nil
	}

	s.logger.Debug("Message sent over REST fallback", "conversation_id", conversationID, "message_id", msg.ID)
	if s.store.AppendLocal(*msg) {
		s.notify(TopicMessages, Change{ConversationID: conversationID})
	}
	s.notify(TopicConversations, Change{ConversationID: conversationID})
	return nil
}

// HandleTyping records a keystroke in the active conversation.
func (s *Session) HandleTyping() {
	if id := s.store.ActiveID(); id != "" {
		s.notifier.Keystroke(id)
	}
}

// StartDirectConversation opens (creating if needed) the direct conversation
// with userID and selects it.
func (s *Session) StartDirectConversation(ctx context.Context, userID string) (domain.Conversation, error) {
	conv, err := s.api.StartDirect(ctx, userID)
	if err != nil {
		return domain.Conversation{}, domain.NewOperationError("start conversation", err)
	}
	return s.openCreated(ctx, *conv)
}

// CreateGroupConversation creates a group with the given participants and selects it.
func (s *Session) CreateGroupConversation(ctx context.Context, name string, participantIDs []string) (domain.Conversation, error) {
	conv, err := s.api.CreateGroup(ctx, api.CreateGroupRequest{
		Name:           strings.TrimSpace(name),
		ParticipantIDs: participantIDs,
	})
	if err != nil {
		return domain.Conversation{}, domain.NewOperationError("create group", err)
	}
	return s.openCreated(ctx, *conv)
}

func (s *Session) openCreated(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	if !s.alive.Load() {
		return conv, nil
	}
	if s.store.InsertIfAbsent(conv) {
		s.notify(TopicConversations, Change{ConversationID: conv.ID})
	}
	if err := s.SelectConversation(ctx, conv.ID); err != nil {
		return conv, err
	}
	if active, ok := s.store.Active(); ok && active.ID == conv.ID {
		return active, nil
	}
	return conv, nil
}

// SearchUsers finds users to start a conversation with. A blank query
// returns no results without a request.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]domain.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	users, err := s.api.SearchUsers(ctx, query)
	if err != nil {
		return nil, domain.NewOperationError("search users", err)
	}

	out := users[:0]
	for _, u := range users {
		if u.ID == s.selfID {
			continue
		}
		u.IsOnline = u.IsOnline || s.tracker.IsOnline(u.ID)
		out = append(out, u)
	}
	return out, nil
}

// SearchEntities finds records of entityType that a message can link to.
func (s *Session) SearchEntities(ctx context.Context, entityType, query string) ([]domain.EntitySummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	entities, err := s.api.SearchEntities(ctx, api.EntitySearch{Type: entityType, Query: query})
	if err != nil {
		return nil, domain.NewOperationError("search entities", err)
	}
	return entities, nil
}
