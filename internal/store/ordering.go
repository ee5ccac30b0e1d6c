package store

import (
	"slices"

	"github.com/devpool/chatsync/internal/domain"
)

// SortConversations orders conversations in place: default conversations
// first, then by last message time, most recent first. Conversations without
// messages sort as if their last message were at the zero time. The sort is
// stable so equal keys keep their incoming order.
func SortConversations(list []domain.Conversation) {
	slices.SortStableFunc(list, compareConversations)
}

func compareConversations(a, b domain.Conversation) int {
	if a.IsDefault != b.IsDefault {
		if a.IsDefault {
			return -1
		}
		return 1
	}
	return b.LastActivity().Compare(a.LastActivity())
}

// sortMessages orders messages ascending by creation time. Ties keep arrival order.
func sortMessages(list []domain.Message) {
	slices.SortStableFunc(list, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// insertPosition returns the index after the last message created at or before msg.
func insertPosition(list []domain.Message, msg domain.Message) int {
	i, _ := slices.BinarySearchFunc(list, msg, func(e, target domain.Message) int {
		if e.CreatedAt.After(target.CreatedAt) {
			return 1
		}
		return -1
	})
	return i
}
