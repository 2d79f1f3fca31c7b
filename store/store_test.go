package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/models"
)

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	alice, mallory := "alice-"+uuid.NewString(), "mallory-"+uuid.NewString()

	chats, err := s.ListChats(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, chats)

	first, err := s.CreateChat(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, first.Title)

	second, err := s.CreateChat(ctx, alice, "Second")
	require.NoError(t, err)

	_, err = s.InsertMessage(ctx, alice, first.ID, "hello", false)
	require.NoError(t, err)
	reply, err := s.InsertMessage(ctx, alice, first.ID, "hi there", true)
	require.NoError(t, err)
	assert.Nil(t, reply.UserID)

	chats, err = s.ListChats(ctx, alice)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID, "chat with newest message sorts first")
	assert.Equal(t, 2, chats[0].MessageCount)
	assert.Equal(t, second.ID, chats[1].ID)

	msgs, err := s.Messages(ctx, alice, first.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	require.NotNil(t, msgs[0].UserID)
	assert.Equal(t, alice, *msgs[0].UserID)
	assert.True(t, msgs[1].FromBot)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))

	// other users see nothing
	_, err = s.Messages(ctx, mallory, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.InsertMessage(ctx, mallory, first.ID, "x", false)
	assert.ErrorIs(t, err, ErrNotFound)
	chats, err = s.ListChats(ctx, mallory)
	require.NoError(t, err)
	assert.Empty(t, chats)

	renamed, err := s.UpdateChatTitle(ctx, alice, second.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)

	require.NoError(t, s.DeleteChat(ctx, alice, first.ID))
	_, err = s.GetChat(ctx, alice, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteChat(ctx, alice, first.ID), ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}
