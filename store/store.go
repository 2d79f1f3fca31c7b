// Package store persists conversations and messages for the in-process mock
// backend and the dev server.
package store

import (
	"context"
	"errors"

	"chatclient/models"
)

var ErrNotFound = errors.New("store: not found")

// Store scopes every read and write to the owning user.
type Store interface {
	ListChats(ctx context.Context, userID string) ([]models.Conversation, error)
	GetChat(ctx context.Context, userID, chatID string) (models.Conversation, error)
	CreateChat(ctx context.Context, userID, title string) (models.Conversation, error)
	UpdateChatTitle(ctx context.Context, userID, chatID, title string) (models.Conversation, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
	Messages(ctx context.Context, userID, chatID string) ([]models.Message, error)
	InsertMessage(ctx context.Context, userID, chatID, content string, fromBot bool) (models.Message, error)
}
