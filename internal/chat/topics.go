package chat

import "github.com/devpool/chatsync/internal/pubsub"

// Change is the payload of every session notification. Consumers re-read the
// session's snapshots; the fields only narrow what changed.
type Change struct {
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	State          string `json:"state,omitempty"`
}

var (
	// TopicConversations fires when the conversation list, its order or an unread count changes.
	TopicConversations = pubsub.NewEvent[Change]("chat.conversations")
	// TopicMessages fires when the active conversation's message list changes.
	TopicMessages = pubsub.NewEvent[Change]("chat.messages")
	// TopicTyping fires when a typing indicator appears or disappears.
	TopicTyping = pubsub.NewEvent[Change]("chat.typing")
	// TopicPresence fires when a user goes online or offline.
	TopicPresence = pubsub.NewEvent[Change]("chat.presence")
	// TopicConnection fires on every connection state transition.
	TopicConnection = pubsub.NewEvent[Change]("chat.connection")
)

// Topics lists every notification topic.
var Topics = []pubsub.Event[Change]{
	TopicConversations,
	TopicMessages,
	TopicTyping,
	TopicPresence,
	TopicConnection,
}
