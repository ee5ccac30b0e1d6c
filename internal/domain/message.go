package domain

import (
	"strings"
	"time"
)

// LinkedEntity is a typed reference from a message to a business record.
type LinkedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Label is the text shown for the reference. Falls back to the id when the
// backend did not resolve a name.
func (l *LinkedEntity) Label() string {
	if l == nil {
		return ""
	}
	if strings.TrimSpace(l.Name) != "" {
		return l.Name
	}
	return l.ID
}

// Message is a single chat message. Message existence and ordering are
// authoritative; ReadBy is advisory.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	SenderRole     string        `json:"senderRole,omitempty"`
	Content        string        `json:"content"`
	LinkedEntity   *LinkedEntity `json:"linkedEntity,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadBy         []string      `json:"readBy,omitempty"`
}

// Preview is the conversation-list preview text for the message.
func (m *Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	if m.LinkedEntity != nil {
		return m.LinkedEntity.Label()
	}
	return ""
}

// IsReadBy reports whether userID appears in the read-by set.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.LinkedEntity != nil {
		le := *m.LinkedEntity
		out.LinkedEntity = &le
	}
	if m.ReadBy != nil {
		out.ReadBy = make([]string, len(m.ReadBy))
		copy(out.ReadBy, m.ReadBy)
	}
	return out
}
