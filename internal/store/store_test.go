package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpool/chatsync/internal/domain"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	t := base.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func msg(id, conv string, minutes int) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       "other",
		Content:        "body " + id,
		CreatedAt:      *at(minutes),
	}
}

func ids[T any](list []T, id func(T) string) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = id(v)
	}
	return out
}

func convIDs(list []domain.Conversation) []string {
	return ids(list, func(c domain.Conversation) string { return c.ID })
}

func msgIDs(list []domain.Message) []string {
	return ids(list, func(m domain.Message) string { return m.ID })
}

func loaded(t *testing.T, convs ...domain.Conversation) *Store {
	t.Helper()
	s := New()
	require.True(t, s.ReplaceConversations(s.BeginLoad(), convs))
	return s
}

func TestSortConversations(t *testing.T) {
	t.Run("defaults first then most recent", func(t *testing.T) {
		list := []domain.Conversation{
			{ID: "old", LastMessageAt: at(1)},
			{ID: "none"},
			{ID: "default", IsDefault: true},
			{ID: "new", LastMessageAt: at(10)},
		}
		SortConversations(list)
		assert.Equal(t, []string{"default", "new", "old", "none"}, convIDs(list))
	})

	t.Run("stable for equal keys", func(t *testing.T) {
		list := []domain.Conversation{
			{ID: "A", IsDefault: true},
			{ID: "B", IsDefault: true},
			{ID: "C", IsDefault: true},
		}
		SortConversations(list)
		assert.Equal(t, []string{"A", "B", "C"}, convIDs(list))

		list = []domain.Conversation{
			{ID: "A", LastMessageAt: at(5)},
			{ID: "B", LastMessageAt: at(5)},
			{ID: "C", LastMessageAt: at(5)},
		}
		SortConversations(list)
		assert.Equal(t, []string{"A", "B", "C"}, convIDs(list))
	})
}

func TestReplaceConversations_LatestWins(t *testing.T) {
	s := New()
	first := s.BeginLoad()
	second := s.BeginLoad()

	assert.True(t, s.ReplaceConversations(second, []domain.Conversation{{ID: "fresh"}}))
	assert.False(t, s.ReplaceConversations(first, []domain.Conversation{{ID: "stale"}}))
	assert.Equal(t, []string{"fresh"}, convIDs(s.Conversations()))
}

func TestApplyIncomingMessage_OrderedWithoutDuplicates(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"})
	s.SetActive(domain.Conversation{ID: "c1"})

	for _, m := range []domain.Message{
		msg("m2", "c1", 2),
		msg("m1", "c1", 1),
		msg("m3", "c1", 3),
		msg("m2", "c1", 2),
	} {
		s.ApplyIncomingMessage(m)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, msgIDs(s.Messages()))

	res := s.ApplyIncomingMessage(msg("m3", "c1", 3))
	assert.True(t, res.Known)
	assert.False(t, res.Appended)
	assert.Len(t, s.Messages(), 3)
}

func TestApplyIncomingMessage_TiesKeepArrivalOrder(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"})
	s.SetActive(domain.Conversation{ID: "c1"})

	s.ApplyIncomingMessage(msg("x", "c1", 4))
	s.ApplyIncomingMessage(msg("y", "c1", 4))
	s.ApplyIncomingMessage(msg("z", "c1", 4))
	assert.Equal(t, []string{"x", "y", "z"}, msgIDs(s.Messages()))
}

func TestApplyIncomingMessage_UnreadOnlyWhenInactive(t *testing.T) {
	s := loaded(t,
		domain.Conversation{ID: "c1", UnreadCount: 3},
		domain.Conversation{ID: "c2"},
	)

	before := s.SetActive(domain.Conversation{ID: "c1"})
	assert.Equal(t, 3, before)

	res := s.ApplyIncomingMessage(msg("m1", "c1", 1))
	assert.True(t, res.Active)
	assert.True(t, res.Appended)

	res = s.ApplyIncomingMessage(msg("m2", "c2", 2))
	assert.False(t, res.Active)

	c1, _ := s.Conversation("c1")
	c2, _ := s.Conversation("c2")
	assert.Equal(t, 0, c1.UnreadCount)
	assert.Equal(t, 1, c2.UnreadCount)
	assert.Equal(t, "body m2", c2.LastMessagePreview)
	assert.Equal(t, 1, s.TotalUnread())

	// The conversation with the newest message moves to the top.
	assert.Equal(t, []string{"c2", "c1"}, convIDs(s.Conversations()))
}

func TestReplaceConversations_KeepsActiveRead(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"})
	s.SetActive(domain.Conversation{ID: "c1"})

	require.True(t, s.ReplaceConversations(s.BeginLoad(), []domain.Conversation{{ID: "c1", UnreadCount: 4}}))
	c1, _ := s.Conversation("c1")
	assert.Equal(t, 0, c1.UnreadCount)
}

func TestReplaceMessages(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"}, domain.Conversation{ID: "c2"})
	s.SetActive(domain.Conversation{ID: "c1"})
	s.ApplyIncomingMessage(msg("pushed", "c1", 9))

	ok := s.ReplaceMessages("c1", []domain.Message{
		msg("m2", "c1", 2),
		msg("m1", "c1", 1),
		msg("m1", "c1", 1),
	})
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m2", "pushed"}, msgIDs(s.Messages()))

	s.SetActive(domain.Conversation{ID: "c2"})
	assert.False(t, s.ReplaceMessages("c1", []domain.Message{msg("late", "c1", 3)}))
	assert.Empty(t, s.Messages())
}

func TestUnknownConversation_CountsWhileFetching(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"})

	res := s.ApplyIncomingMessage(msg("m1", "new", 1))
	assert.False(t, res.Known)
	assert.True(t, res.NeedsFetch)

	res = s.ApplyIncomingMessage(msg("m2", "new", 2))
	assert.False(t, res.Known)
	assert.False(t, res.NeedsFetch)

	assert.True(t, s.InsertIfAbsent(domain.Conversation{ID: "new"}))
	assert.False(t, s.InsertIfAbsent(domain.Conversation{ID: "new"}))

	got, ok := s.Conversation("new")
	require.True(t, ok)
	assert.Equal(t, 2, got.UnreadCount)
	assert.Equal(t, "body m2", got.LastMessagePreview)
	assert.Equal(t, []string{"new", "c1"}, convIDs(s.Conversations()))
}

func TestInsertIfAbsent_AfterListReload(t *testing.T) {
	s := New()
	s.ApplyIncomingMessage(msg("m1", "c9", 1))
	require.True(t, s.ReplaceConversations(s.BeginLoad(), []domain.Conversation{{ID: "c9", UnreadCount: 1}}))

	assert.False(t, s.InsertIfAbsent(domain.Conversation{ID: "c9"}))
	assert.Len(t, s.Conversations(), 1)
	assert.Equal(t, 1, s.TotalUnread())
}

func TestDiscardPending_RefetchesOnNextPush(t *testing.T) {
	s := New()
	assert.True(t, s.ApplyIncomingMessage(msg("m1", "c9", 1)).NeedsFetch)
	s.DiscardPending("c9")
	assert.True(t, s.ApplyIncomingMessage(msg("m2", "c9", 2)).NeedsFetch)
}

func TestAppendLocal(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"})
	s.SetActive(domain.Conversation{ID: "c1"})

	sent := msg("m1", "c1", 1)
	assert.True(t, s.AppendLocal(sent))
	// The hub echo of the same message is ignored.
	assert.False(t, s.ApplyIncomingMessage(sent).Appended)
	assert.Equal(t, []string{"m1"}, msgIDs(s.Messages()))
	assert.Equal(t, 0, s.TotalUnread())
}

func TestApplyReadReceipts(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1"})
	s.SetActive(domain.Conversation{ID: "c1"})
	s.ApplyIncomingMessage(msg("m1", "c1", 1))
	s.ApplyIncomingMessage(msg("m2", "c1", 2))

	assert.Equal(t, 2, s.ApplyReadReceipts("c1", "u2", []string{"m1", "m2", "missing"}))
	assert.Equal(t, 0, s.ApplyReadReceipts("c1", "u2", []string{"m1"}))
	assert.Equal(t, 0, s.ApplyReadReceipts("other", "u2", []string{"m1"}))

	for _, m := range s.Messages() {
		assert.True(t, m.IsReadBy("u2"))
	}
}

func TestSetParticipantOnline(t *testing.T) {
	s := loaded(t,
		domain.Conversation{ID: "c1", Participants: []domain.Participant{{UserID: "u1"}, {UserID: "u2"}}},
		domain.Conversation{ID: "c2", Participants: []domain.Participant{{UserID: "u2"}}},
	)

	assert.True(t, s.SetParticipantOnline("u2", true))
	assert.False(t, s.SetParticipantOnline("u2", true))

	for _, c := range s.Conversations() {
		for _, p := range c.Participants {
			assert.Equal(t, p.UserID == "u2", p.IsOnline, "conversation %s user %s", c.ID, p.UserID)
		}
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := loaded(t, domain.Conversation{ID: "c1", Participants: []domain.Participant{{UserID: "u1"}}})
	s.SetActive(domain.Conversation{ID: "c1"})
	s.ApplyIncomingMessage(msg("m1", "c1", 1))

	convs := s.Conversations()
	convs[0].Participants[0].DisplayName = "mutated"
	msgs := s.Messages()
	msgs[0].Content = "mutated"

	c1, _ := s.Conversation("c1")
	assert.Empty(t, c1.Participants[0].DisplayName)
	assert.Equal(t, "body m1", s.Messages()[0].Content)
}
