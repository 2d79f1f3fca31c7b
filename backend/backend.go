// Package backend defines the conversation/message service the client core
// talks to, with a GraphQL implementation and an in-process mock.
package backend

import (
	"context"

	"chatclient/models"
)

type FetchPolicy int

const (
	// CacheFirst may answer from results cached earlier in the session.
	CacheFirst FetchPolicy = iota
	// NetworkOnly always asks the server.
	NetworkOnly
)

type ChatBackend interface {
	ListConversations(ctx context.Context, fetch FetchPolicy) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, title string) (models.Conversation, error)
	RenameConversation(ctx context.Context, conversationID, title string) (models.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error

	LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error)
	InsertMessage(ctx context.Context, conversationID, content string) (models.Message, error)
	SendToBot(ctx context.Context, conversationID, text string) (models.BotReply, error)

	// Subscribe streams the full ordered message list on every change. The
	// channel is closed once ctx is done or the stream ends.
	Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error)
	// WatchConversations streams the full ordered conversation list.
	WatchConversations(ctx context.Context) (<-chan []models.Conversation, error)

	// Reset drops anything cached for the current session.
	Reset()
}
