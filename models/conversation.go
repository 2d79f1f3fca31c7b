package models

import (
	"sort"
	"time"
)

// DefaultConversationTitle is used when a conversation is created without a title.
const DefaultConversationTitle = "New Chat"

type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// SortConversations orders conversations most recently updated first.
func SortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
