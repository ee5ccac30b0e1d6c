package domain

import (
	"strings"
	"time"
)

// Participant is a member of a conversation.
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`

	// IsOnline is a denormalised copy of presence for display. Advisory; the
	// presence tracker is the source of truth.
	IsOnline bool `json:"isOnline"`
}

// Conversation is a direct or group chat as seen by the current user.
//
// Authoritative fields: ID, Name, IsGroup, IsDefault, Participants.
// Advisory fields: LastMessageAt, LastMessagePreview, UnreadCount. They are a
// client-local approximation and are not reconciled across sessions.
type Conversation struct {
	ID                 string        `json:"id"`
	Name               *string       `json:"name,omitempty"`
	IsGroup            bool          `json:"isGroup"`
	IsDefault          bool          `json:"isDefault"`
	Participants       []Participant `json:"participants"`
	LastMessageAt      *time.Time    `json:"lastMessageAt,omitempty"`
	LastMessagePreview string        `json:"lastMessagePreview,omitempty"`
	UnreadCount        int           `json:"unreadCount"`
}

// DisplayName returns the conversation's name, deriving one from the
// participants when none is set.
func (c *Conversation) DisplayName(currentUserID string) string {
	if c.Name != nil && strings.TrimSpace(*c.Name) != "" {
		return *c.Name
	}

	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID == currentUserID {
			continue
		}
		if p.DisplayName != "" {
			names = append(names, p.DisplayName)
		} else {
			names = append(names, p.UserID)
		}
	}
	if len(names) == 0 {
		return c.ID
	}
	if !c.IsGroup {
		return names[0]
	}
	return strings.Join(names, ", ")
}

// LastActivity returns the last-message time, or the zero time when the
// conversation has no messages yet.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessageAt == nil {
		return time.Time{}
	}
	return *c.LastMessageAt
}

// Clone returns a deep copy so snapshots never alias store state.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Name != nil {
		name := *c.Name
		out.Name = &name
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	if c.Participants != nil {
		out.Participants = make([]Participant, len(c.Participants))
		copy(out.Participants, c.Participants)
	}
	return out
}
