package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMockBotReplyArrivesThroughSubscription(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	m := NewMock(10*time.Millisecond, nil)

	conv, err := m.CreateConversation(context.Background(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := m.Subscribe(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, receive(t, updates))

	_, err = m.InsertMessage(context.Background(), conv.ID, "hello")
	require.NoError(t, err)
	require.Len(t, receive(t, updates), 1)

	reply, err := m.SendToBot(context.Background(), conv.ID, "hello")
	require.NoError(t, err)
	assert.True(t, reply.Success)

	got := receive(t, updates)
	require.Len(t, got, 2)
	assert.True(t, got[1].FromBot)
	assert.Contains(t, got[1].Content, `"hello"`)

	cancel()
	for range updates {
	}
}

func TestMockNotFound(t *testing.T) {
	m := NewMock(0, nil)
	ctx := context.Background()

	_, err := m.LoadHistory(ctx, "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = m.InsertMessage(ctx, "nope", "x")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, m.DeleteConversation(ctx, "nope"), ErrConversationNotFound)
	_, err = m.Subscribe(ctx, "")
	assert.Error(t, err)
}

func TestMockWatchConversations(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	m := NewMock(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := m.WatchConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, receive(t, updates))

	conv, err := m.CreateConversation(context.Background(), "a")
	require.NoError(t, err)
	got := receive(t, updates)
	require.Len(t, got, 1)
	assert.Equal(t, conv.ID, got[0].ID)

	_, err = m.RenameConversation(context.Background(), conv.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", receive(t, updates)[0].Title)

	cancel()
	for range updates {
	}
}
