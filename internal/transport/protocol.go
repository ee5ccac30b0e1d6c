package transport

import "encoding/json"

// FrameType identifies the kind of a hub frame.
type FrameType string

const (
	// FrameInvocation is a client-to-hub call that expects a completion.
	FrameInvocation FrameType = "invocation"
	// FrameCompletion acknowledges an invocation, optionally with an error or result.
	FrameCompletion FrameType = "completion"
	// FrameEvent is a hub-to-client push.
	FrameEvent FrameType = "event"
)

// Frame is the JSON envelope exchanged over the hub connection.
type Frame struct {
	Type         FrameType       `json:"type"`
	InvocationID string          `json:"invocationId,omitempty"`
	Target       string          `json:"target,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Inbound event names pushed by the hub.
const (
	EventReceiveMessage = "ReceiveMessage"
	EventUserTyping     = "UserTyping"
	EventMessagesRead   = "MessagesRead"
	EventUserOnline     = "UserOnline"
	EventUserOffline    = "UserOffline"
)

// Outbound operations the client may invoke.
const (
	MethodSendMessage      = "SendMessage"
	MethodJoinConversation = "JoinConversation"
	MethodSendTyping       = "SendTyping"
	MethodMarkAsRead       = "MarkAsRead"
)

// SendMessageArgs is the payload of MethodSendMessage.
type SendMessageArgs struct {
	ConversationID   string `json:"conversationId"`
	Content          string `json:"content"`
	LinkedEntityType string `json:"linkedEntityType,omitempty"`
	LinkedEntityID   string `json:"linkedEntityId,omitempty"`
}

// JoinConversationArgs is the payload of MethodJoinConversation.
type JoinConversationArgs struct {
	ConversationID string `json:"conversationId"`
}

// TypingArgs is the payload of MethodSendTyping.
type TypingArgs struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkAsReadArgs is the payload of MethodMarkAsRead.
type MarkAsReadArgs struct {
	ConversationID string `json:"conversationId"`
	LastMessageID  string `json:"lastMessageId,omitempty"`
}

// NewEventFrame builds an event frame for target with payload marshalled as JSON.
func NewEventFrame(target string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameEvent, Target: target, Payload: raw}, nil
}
