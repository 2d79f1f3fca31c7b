package models

import (
	"sort"
	"time"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chat_id"`
	Content        string    `json:"content"`
	FromBot        bool      `json:"is_bot"`
	UserID         *string   `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`

	// Local is set on entries fabricated by the client that the server never returned.
	Local bool `json:"-"`
}

// SortMessages orders messages oldest first. Equal timestamps keep their delivered order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// SameMessages reports whether two lists render identically.
func SameMessages(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Content != b[i].Content || a[i].FromBot != b[i].FromBot {
			return false
		}
	}
	return true
}
