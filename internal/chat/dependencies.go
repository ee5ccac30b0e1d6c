package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/domain"
	"github.com/devpool/chatsync/internal/pubsub"
	"github.com/devpool/chatsync/internal/transport"
)

// Transport is the hub connection the session drives. *transport.Connection
// implements it.
type Transport interface {
	SetHandlers(h transport.Handlers)
	Connect(ctx context.Context)
	Disconnect()
	State() domain.ConnectionState
	IsConnected() bool
	SendMessage(ctx context.Context, args transport.SendMessageArgs) error
	JoinConversation(ctx context.Context, conversationID string) error
	SendTyping(ctx context.Context, conversationID string, typing bool) error
	MarkAsRead(ctx context.Context, conversationID, lastMessageID string) error
}

// API is the REST surface the session uses. *api.Client implements it.
type API interface {
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, page api.MessagePage) ([]domain.Message, error)
	StartDirect(ctx context.Context, userID string) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, req api.CreateGroupRequest) (*domain.Conversation, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*domain.Message, error)
	MarkRead(ctx context.Context, conversationID, lastMessageID string) error
	SearchUsers(ctx context.Context, query string) ([]domain.UserSummary, error)
	OnlineUsers(ctx context.Context) ([]domain.UserSummary, error)
	SearchEntities(ctx context.Context, search api.EntitySearch) ([]domain.EntitySummary, error)
}

// CredentialWatcher reports token file changes. *credentials.Store implements it.
type CredentialWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}

var (
	_ Transport = (*transport.Connection)(nil)
	_ API       = (*api.Client)(nil)
)

// Dependencies holds everything a Session needs. Publisher and Credentials
// are optional.
type Dependencies struct {
	Transport     Transport
	API           API
	Publisher     pubsub.Publisher
	Credentials   CredentialWatcher
	Logger        *slog.Logger
	CurrentUserID string

	// TypingIdle is the inactivity window before a "stopped typing" is sent.
	TypingIdle time.Duration
	// TypingExpiry drops remote typing indicators that were never cleared.
	TypingExpiry time.Duration
	// RequestTimeout bounds background REST calls and hub invocations.
	RequestTimeout time.Duration
}
