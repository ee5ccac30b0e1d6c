package domain

// TypingEvent is pushed by the hub when a participant starts or stops typing.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadReceiptEvent is pushed by the hub when a participant reads a batch of messages.
type ReadReceiptEvent struct {
	ConversationID string   `json:"conversationId"`
	UserID         string   `json:"userId"`
	MessageIDs     []string `json:"messageIds"`
}

// PresenceEvent is pushed by the hub when a user comes online or goes offline.
type PresenceEvent struct {
	UserID string `json:"userId"`
}
