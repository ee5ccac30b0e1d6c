package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/domain"
	"github.com/devpool/chatsync/internal/pubsub"
	"github.com/devpool/chatsync/internal/transport"
)

// fakeTransport records invocations and lets tests push hub events.
type fakeTransport struct {
	mu       sync.Mutex
	handlers transport.Handlers
	state    domain.ConnectionState
	connects int
	sent     []transport.SendMessageArgs
	joined   []string
	typing   []string
	markRead []string
	sendErr  error

	// join, when set, runs after the join is recorded.
	join func(ctx context.Context) error
}

func (f *fakeTransport) SetHandlers(h transport.Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
}

func (f *fakeTransport) Connect(context.Context) {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeTransport) Disconnect() {
	f.setState(domain.Disconnected)
}

func (f *fakeTransport) State() domain.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) IsConnected() bool {
	return f.State() == domain.Connected
}

func (f *fakeTransport) SendMessage(_ context.Context, args transport.SendMessageArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != domain.Connected {
		return domain.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, args)
	return nil
}

func (f *fakeTransport) JoinConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	f.joined = append(f.joined, id)
	join := f.join
	f.mu.Unlock()
	if join != nil {
		return join(ctx)
	}
	return nil
}

func (f *fakeTransport) SendTyping(_ context.Context, id string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if typing {
		f.typing = append(f.typing, id+":on")
	} else {
		f.typing = append(f.typing, id+":off")
	}
	return nil
}

func (f *fakeTransport) MarkAsRead(_ context.Context, id, last string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRead = append(f.markRead, id+"/"+last)
	return nil
}

// setState changes the state and reports it the way the connection does.
func (f *fakeTransport) setState(s domain.ConnectionState) {
	f.mu.Lock()
	changed := f.state != s
	f.state = s
	h := f.handlers
	f.mu.Unlock()
	if changed && h.OnStateChange != nil {
		h.OnStateChange(s)
	}
}

func (f *fakeTransport) push(msg domain.Message) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.OnMessage(msg)
}

func (f *fakeTransport) snapshot() (joined, typing, markRead []string, sent []transport.SendMessageArgs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joined...),
		append([]string(nil), f.typing...),
		append([]string(nil), f.markRead...),
		append([]transport.SendMessageArgs(nil), f.sent...)
}

// fakeAPI serves canned data; hooks override single calls.
type fakeAPI struct {
	mu            sync.Mutex
	conversations []domain.Conversation
	messages      map[string][]domain.Message
	online        []domain.UserSummary
	restSent      []api.SendMessageRequest
	restRead      []string
	getCalls      int
	nextID        int
	listErr       error

	getConversation func(ctx context.Context, id string) (*domain.Conversation, error)
}

func (f *fakeAPI) ListConversations(context.Context) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Conversation, len(f.conversations))
	for i, c := range f.conversations {
		out[i] = c.Clone()
	}
	return out, nil
}

func (f *fakeAPI) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	f.getCalls++
	hook := f.getConversation
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.ID == id {
			c := c.Clone()
			return &c, nil
		}
	}
	return nil, &api.Error{Status: 404, Message: "Conversation not found"}
}

func (f *fakeAPI) ListMessages(_ context.Context, id string, _ api.MessagePage) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Message(nil), f.messages[id]...), nil
}

func (f *fakeAPI) StartDirect(_ context.Context, userID string) (*domain.Conversation, error) {
	return &domain.Conversation{ID: "direct-" + userID, Participants: []domain.Participant{{UserID: "me"}, {UserID: userID}}}, nil
}

func (f *fakeAPI) CreateGroup(_ context.Context, req api.CreateGroupRequest) (*domain.Conversation, error) {
	if err := api.Validate(req); err != nil {
		return nil, err
	}
	name := req.Name
	return &domain.Conversation{ID: "group-1", Name: &name, IsGroup: true}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, req api.SendMessageRequest) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restSent = append(f.restSent, req)
	f.nextID++
	return &domain.Message{
		ID:             fmt.Sprintf("rest-%d", f.nextID),
		ConversationID: req.ConversationID,
		SenderID:       "me",
		Content:        req.Content,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, id, last string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restRead = append(f.restRead, id+"/"+last)
	return nil
}

func (f *fakeAPI) SearchUsers(context.Context, string) ([]domain.UserSummary, error) {
	return []domain.UserSummary{{ID: "me"}, {ID: "u2", DisplayName: "Bea"}}, nil
}

func (f *fakeAPI) OnlineUsers(context.Context) ([]domain.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.UserSummary(nil), f.online...), nil
}

func (f *fakeAPI) SearchEntities(_ context.Context, search api.EntitySearch) ([]domain.EntitySummary, error) {
	return []domain.EntitySummary{{Type: search.Type, ID: "e1", Name: "Jane Doe"}}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, msg.Topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func incoming(id, conv, sender string, minute int) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Content:        "hello " + id,
		CreatedAt:      t0.Add(time.Duration(minute) * time.Minute),
	}
}

type harness struct {
	session *Session
	hub     *fakeTransport
	api     *fakeAPI
	pub     *recordingPublisher
}

func newHarness(t *testing.T, convs ...domain.Conversation) *harness {
	t.Helper()
	h := &harness{
		hub: &fakeTransport{},
		api: &fakeAPI{conversations: convs, messages: map[string][]domain.Message{}},
		pub: &recordingPublisher{},
	}
	h.session = NewSession(Dependencies{
		Transport:      h.hub,
		API:            h.api,
		Publisher:      h.pub,
		CurrentUserID:  "me",
		TypingIdle:     time.Hour,
		RequestTimeout: time.Second,
	})
	require.NoError(t, h.session.Start(context.Background()))
	t.Cleanup(h.session.Stop)
	return h
}

func TestSession_StartLoadsAndConnects(t *testing.T) {
	h := &harness{
		hub: &fakeTransport{},
		api: &fakeAPI{
			conversations: []domain.Conversation{
				{ID: "c1", LastMessageAt: &t0, Participants: []domain.Participant{{UserID: "u2"}}},
				{ID: "general", IsDefault: true},
			},
			online: []domain.UserSummary{{ID: "u2"}},
		},
	}
	h.session = NewSession(Dependencies{Transport: h.hub, API: h.api, CurrentUserID: "me"})
	require.NoError(t, h.session.Start(context.Background()))
	defer h.session.Stop()

	convs := h.session.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "general", convs[0].ID)
	assert.True(t, convs[1].Participants[0].IsOnline)
	assert.Equal(t, []string{"u2"}, h.session.OnlineUsers())
	assert.Equal(t, 1, h.hub.connects)
}

func TestSession_SendFallsBackToREST(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	require.NoError(t, h.session.SendMessage(context.Background(), "  offline hello  ", nil))

	h.api.mu.Lock()
	require.Len(t, h.api.restSent, 1)
	assert.Equal(t, "offline hello", h.api.restSent[0].Content)
	h.api.mu.Unlock()

	msgs := h.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "offline hello", msgs[0].Content)

	// A later hub delivery of the same message does not duplicate it.
	h.hub.push(msgs[0])
	assert.Len(t, h.session.Messages(), 1)
	assert.Equal(t, "offline hello", h.session.Conversations()[0].LastMessagePreview)
}

func TestSession_SendOverHub(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	h.hub.setState(domain.Connected)
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	linked := &domain.LinkedEntity{Type: "candidate", ID: "cand-1"}
	require.NoError(t, h.session.SendMessage(context.Background(), "", linked))

	_, _, _, sent := h.hub.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, "cand-1", sent[0].LinkedEntityID)
	assert.Empty(t, h.api.restSent)
	assert.Empty(t, h.session.Messages(), "hub sends wait for the echo")

	h.hub.sendErr = errors.New("hub rejected message")
	err := h.session.SendMessage(context.Background(), "again", nil)
	var opErr *domain.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "send message", opErr.Op)
	assert.Equal(t, "failed to send message: hub rejected message", err.Error())
}

func TestSession_SendFallsBackWhenHubDropsBeforeSend(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	// The hub reports connected, then refuses the invocation as disconnected.
	h.hub.setState(domain.Connected)
	h.hub.sendErr = domain.ErrNotConnected

	require.NoError(t, h.session.SendMessage(context.Background(), "raced", nil))

	h.api.mu.Lock()
	require.Len(t, h.api.restSent, 1)
	assert.Equal(t, "raced", h.api.restSent[0].Content)
	h.api.mu.Unlock()
	assert.Equal(t, []string{"rest-1"}, messageIDs(h.session.Messages()))
}

func TestSession_SendValidation(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})

	err := h.session.SendMessage(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, domain.ErrNoActiveConversation)

	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))
	err = h.session.SendMessage(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSession_UnreadStaysZeroOnActive(t *testing.T) {
	h := newHarness(t,
		domain.Conversation{ID: "c1", UnreadCount: 2},
		domain.Conversation{ID: "c2"},
	)
	h.hub.setState(domain.Connected)
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	h.hub.push(incoming("m1", "c1", "u2", 1))
	h.hub.push(incoming("m2", "c2", "u2", 2))
	h.hub.push(incoming("m3", "c1", "me", 3))

	active, ok := h.session.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, 0, active.UnreadCount)
	assert.Equal(t, 1, h.session.TotalUnreadCount())
	assert.Equal(t, []string{"m1", "m3"}, messageIDs(h.session.Messages()))

	// Selecting cleared two unread messages, and m1 came from someone else.
	// The own message m3 is not marked.
	require.Eventually(t, func() bool {
		_, _, marks, _ := h.hub.snapshot()
		return len(marks) == 2
	}, time.Second, 5*time.Millisecond)
	_, _, marks, _ := h.hub.snapshot()
	assert.ElementsMatch(t, []string{"c1/", "c1/m1"}, marks)
	require.Eventually(t, func() bool {
		joined, _, _, _ := h.hub.snapshot()
		return len(joined) == 1 && joined[0] == "c1"
	}, time.Second, 5*time.Millisecond)
}

func TestSession_SelectMarksReadWhenHistoryFails(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1", UnreadCount: 3})
	h.api.mu.Lock()
	h.api.listErr = errors.New("history unavailable")
	h.api.mu.Unlock()

	err := h.session.SelectConversation(context.Background(), "c1")
	require.ErrorContains(t, err, "history unavailable")

	active, ok := h.session.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, 0, active.UnreadCount)

	require.Eventually(t, func() bool {
		h.api.mu.Lock()
		defer h.api.mu.Unlock()
		return len(h.api.restRead) == 1
	}, time.Second, 5*time.Millisecond)
	h.api.mu.Lock()
	assert.Equal(t, []string{"c1/"}, h.api.restRead)
	h.api.mu.Unlock()
}

func TestSession_SelectDoesNotWaitForJoin(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	h.api.mu.Lock()
	h.api.messages["c1"] = []domain.Message{incoming("m1", "c1", "u2", 1)}
	h.api.mu.Unlock()

	h.hub.mu.Lock()
	h.hub.join = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.hub.mu.Unlock()
	h.hub.setState(domain.Connected)

	done := make(chan error, 1)
	go func() { done <- h.session.SelectConversation(context.Background(), "c1") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("SelectConversation waited for the hub join")
	}
	assert.Equal(t, []string{"m1"}, messageIDs(h.session.Messages()))

	require.Eventually(t, func() bool {
		joined, _, _, _ := h.hub.snapshot()
		return len(joined) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_BlockedSubscriberDoesNotStallHubEvents(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bus.Close() })

	hub := &fakeTransport{}
	session := NewSession(Dependencies{
		Transport:      hub,
		API:            &fakeAPI{conversations: []domain.Conversation{{ID: "c1"}}, messages: map[string][]domain.Message{}},
		Publisher:      bus,
		CurrentUserID:  "me",
		TypingIdle:     time.Hour,
		RequestTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// The subscriber answers the first change with a hub send, but only
	// once released.
	release := make(chan struct{})
	replied := make(chan error, 1)
	var once sync.Once
	require.NoError(t, pubsub.Subscribe(ctx, bus, TopicMessages, func(ctx context.Context, _ Change) error {
		<-release
		once.Do(func() {
			replied <- session.SendMessage(ctx, "on it", nil)
		})
		return nil
	}))

	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Stop)
	hub.setState(domain.Connected)
	require.NoError(t, session.SelectConversation(context.Background(), "c1"))

	pushed := make(chan struct{})
	go func() {
		hub.push(incoming("m1", "c1", "u2", 1))
		hub.push(incoming("m2", "c1", "u2", 2))
		close(pushed)
	}()

	select {
	case <-pushed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("hub event handling waited for a subscriber")
	}
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(session.Messages()))

	close(release)
	select {
	case err := <-replied:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber send did not complete")
	}
	_, _, _, sent := hub.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, "on it", sent[0].Content)
}

func TestSession_NewConversationRace(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})

	release := make(chan struct{})
	h.api.mu.Lock()
	h.api.getConversation = func(ctx context.Context, id string) (*domain.Conversation, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.Conversation{ID: id, Participants: []domain.Participant{{UserID: "u9"}}}, nil
	}
	h.api.mu.Unlock()

	h.hub.push(incoming("m1", "fresh", "u9", 1))
	h.hub.push(incoming("m2", "fresh", "u9", 2))
	h.hub.push(incoming("m3", "fresh", "u9", 3))

	_, known := h.session.store.Conversation("fresh")
	assert.False(t, known)
	close(release)

	require.Eventually(t, func() bool {
		_, ok := h.session.store.Conversation("fresh")
		return ok
	}, time.Second, 5*time.Millisecond)

	h.api.mu.Lock()
	assert.Equal(t, 1, h.api.getCalls)
	h.api.mu.Unlock()

	convs := h.session.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "fresh", convs[0].ID)
	assert.Equal(t, 3, convs[0].UnreadCount)
	assert.Equal(t, "hello m3", convs[0].LastMessagePreview)
}

func TestSession_NewConversationFetchFailureRetriesOnNextPush(t *testing.T) {
	h := newHarness(t)

	h.hub.push(incoming("m1", "ghost", "u9", 1))
	require.Eventually(t, func() bool {
		h.api.mu.Lock()
		defer h.api.mu.Unlock()
		return h.api.getCalls == 1
	}, time.Second, 5*time.Millisecond)

	h.api.mu.Lock()
	h.api.conversations = append(h.api.conversations, domain.Conversation{ID: "ghost"})
	h.api.mu.Unlock()

	require.Eventually(t, func() bool {
		h.hub.push(incoming("m2", "ghost", "u9", 2))
		_, ok := h.session.store.Conversation("ghost")
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, h.session.Conversations(), 1)
}

func TestSession_ReconnectRedeliveryIsIgnored(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	h.hub.setState(domain.Connected)
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	h.hub.push(incoming("m1", "c1", "u2", 1))
	h.hub.push(incoming("m2", "c1", "u2", 2))

	h.hub.setState(domain.Reconnecting)
	h.hub.setState(domain.Connected)

	h.hub.push(incoming("m1", "c1", "u2", 1))
	h.hub.push(incoming("m2", "c1", "u2", 2))
	h.hub.push(incoming("m3", "c1", "u2", 3))

	assert.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(h.session.Messages()))
	assert.Equal(t, 0, h.session.TotalUnreadCount())

	// The active conversation is joined again after the reconnect.
	require.Eventually(t, func() bool {
		joined, _, _, _ := h.hub.snapshot()
		return len(joined) == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.pub.count(TopicConnection.Name()) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestSession_LoadMessagesKeepsPushedMessages(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	h.api.messages["c1"] = []domain.Message{
		incoming("m2", "c1", "u2", 2),
		incoming("m1", "c1", "u2", 1),
	}

	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))
	h.hub.push(incoming("m2", "c1", "u2", 2))
	require.NoError(t, h.session.LoadMessages(context.Background(), "c1", api.DefaultMessagePage))

	assert.Equal(t, []string{"m1", "m2"}, messageIDs(h.session.Messages()))
}

func TestSession_TypingAndPresence(t *testing.T) {
	h := newHarness(t, domain.Conversation{
		ID:           "c1",
		Participants: []domain.Participant{{UserID: "me"}, {UserID: "u2", DisplayName: "Bea"}},
	})
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	h.hub.handlers.OnTyping(domain.TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Bea", IsTyping: true})
	h.hub.handlers.OnTyping(domain.TypingEvent{ConversationID: "c1", UserID: "me", UserName: "Me", IsTyping: true})
	assert.Equal(t, []string{"Bea"}, h.session.TypingUsers("c1"))

	// A message from the typist clears the indicator.
	h.hub.push(incoming("m1", "c1", "u2", 1))
	assert.Empty(t, h.session.TypingUsers("c1"))

	h.hub.handlers.OnUserOnline(domain.PresenceEvent{UserID: "u2"})
	assert.Contains(t, h.session.OnlineUsers(), "u2")
	assert.True(t, h.session.Conversations()[0].Participants[1].IsOnline)

	h.hub.handlers.OnUserOffline(domain.PresenceEvent{UserID: "u2"})
	assert.NotContains(t, h.session.OnlineUsers(), "u2")
	assert.False(t, h.session.Conversations()[0].Participants[1].IsOnline)

	h.hub.setState(domain.Connected)
	h.session.HandleTyping()
	_, typing, _, _ := h.hub.snapshot()
	assert.Equal(t, []string{"c1:on"}, typing)
}

func TestSession_ReadReceipts(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))
	h.hub.push(incoming("m1", "c1", "me", 1))

	h.hub.handlers.OnReadReceipts(domain.ReadReceiptEvent{ConversationID: "c1", UserID: "u2", MessageIDs: []string{"m1"}})
	assert.True(t, h.session.Messages()[0].IsReadBy("u2"))
}

func TestSession_CreateAndStartConversations(t *testing.T) {
	h := newHarness(t)

	conv, err := h.session.StartDirectConversation(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "direct-u2", conv.ID)
	active, _ := h.session.ActiveConversation()
	assert.Equal(t, "direct-u2", active.ID)

	_, err = h.session.CreateGroupConversation(context.Background(), "Team", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	group, err := h.session.CreateGroupConversation(context.Background(), " Team ", []string{"u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, "Team", group.DisplayName("me"))
	assert.Len(t, h.session.Conversations(), 2)
}

func TestSession_Search(t *testing.T) {
	h := newHarness(t)

	users, err := h.session.SearchUsers(context.Background(), "be")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u2", users[0].ID)

	users, err = h.session.SearchUsers(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, users)

	entities, err := h.session.SearchEntities(context.Background(), "candidate", "jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", entities[0].Name)
}

func TestSession_StopIgnoresLateEvents(t *testing.T) {
	h := newHarness(t, domain.Conversation{ID: "c1"})
	require.NoError(t, h.session.SelectConversation(context.Background(), "c1"))

	h.session.Stop()
	h.session.Stop()

	h.hub.push(incoming("late", "c1", "u2", 1))
	assert.Empty(t, h.session.Messages())
	assert.Equal(t, domain.Disconnected, h.session.ConnectionState())
	assert.Error(t, h.session.Start(context.Background()))
}

type fakeWatcher struct {
	onChange func()
}

func (w *fakeWatcher) Watch(_ context.Context, onChange func()) error {
	w.onChange = onChange
	return nil
}

func TestSession_TokenChangeReconnectsWhenDisconnected(t *testing.T) {
	hub := &fakeTransport{}
	watcher := &fakeWatcher{}
	session := NewSession(Dependencies{
		Transport:     hub,
		API:           &fakeAPI{},
		Credentials:   watcher,
		CurrentUserID: "me",
	})
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()
	require.NotNil(t, watcher.onChange)

	watcher.onChange()
	assert.Equal(t, 2, hub.connects)

	hub.setState(domain.Connected)
	watcher.onChange()
	assert.Equal(t, 2, hub.connects)
}

func messageIDs(list []domain.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}
