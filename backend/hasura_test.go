package backend

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"chatclient/bot"
	"chatclient/controllers"
	"chatclient/graphql"
	"chatclient/models"
	"chatclient/routes"
	"chatclient/store"
)

type staticToken string

// verifyNoLeaks ignores the keep-alive goroutines of the HTTP client's idle
// connections.
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

func (s staticToken) AccessToken() string { return string(s) }

// newHasura starts a dev server and returns a backend signed in to it.
func newHasura(t *testing.T) *Hasura {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	s := store.NewNotifying(store.NewMemory(), store.NewHub())
	accounts := controllers.NewAccounts()
	srv := httptest.NewServer(routes.SetupRouter(routes.Deps{
		Chat: &controllers.ChatController{
			Store:    s,
			Bot:      &bot.Pipeline{Store: s, Replier: bot.EchoReplier{}, Log: log},
			Accounts: accounts,
			Role:     "user",
			Log:      log,
		},
		Auth: &controllers.AuthController{Accounts: accounts, Log: log},
		Role: "user",
		Log:  log,
	}))
	t.Cleanup(srv.Close)

	user, err := accounts.SignUp("hasura-test@example.com", "pw")
	require.NoError(t, err)
	token := staticToken(accounts.Issue(user))

	httpURL := srv.URL + "/v1/graphql"
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http")
	return NewHasura(
		graphql.NewClient(httpURL, "user", token, log),
		graphql.NewSubscriber(wsURL, "user", token, log),
		log,
	)
}

func TestHasuraConversations(t *testing.T) {
	h := newHasura(t)
	ctx := context.Background()

	convs, err := h.ListConversations(ctx, CacheFirst)
	require.NoError(t, err)
	assert.Empty(t, convs)

	conv, err := h.CreateConversation(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)

	// the create cleared the cache, so the new entry shows up
	convs, err = h.ListConversations(ctx, CacheFirst)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	renamed, err := h.RenameConversation(ctx, conv.ID, "Trip plans")
	require.NoError(t, err)
	assert.Equal(t, "Trip plans", renamed.Title)

	_, err = h.RenameConversation(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, h.DeleteConversation(ctx, conv.ID))
	assert.ErrorIs(t, h.DeleteConversation(ctx, conv.ID), ErrConversationNotFound)
}

func TestHasuraMessages(t *testing.T) {
	h := newHasura(t)
	ctx := context.Background()

	conv, err := h.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	msg, err := h.InsertMessage(ctx, conv.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, conv.ID, msg.ConversationID)

	reply, err := h.SendToBot(ctx, conv.ID, "hi")
	require.NoError(t, err)
	assert.True(t, reply.Success)

	history, err := h.LoadHistory(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].FromBot)
	assert.True(t, history[1].FromBot)
	assert.Equal(t, conv.ID, history[1].ConversationID)

	_, err = h.LoadHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHasuraSubscribe(t *testing.T) {
	t.Cleanup(func() { verifyNoLeaks(t) })
	h := newHasura(t)

	conv, err := h.CreateConversation(context.Background(), "chat")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := h.Subscribe(ctx, conv.ID)
	require.NoError(t, err)

	assert.Empty(t, receive(t, updates))

	_, err = h.InsertMessage(context.Background(), conv.ID, "ping")
	require.NoError(t, err)
	got := receive(t, updates)
	require.Len(t, got, 1)
	assert.Equal(t, "ping", got[0].Content)

	cancel()
	for range updates {
	}
}

func TestHasuraWatchConversations(t *testing.T) {
	t.Cleanup(func() { verifyNoLeaks(t) })
	h := newHasura(t)

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := h.WatchConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, receive(t, updates))

	_, err = h.CreateConversation(context.Background(), "first")
	require.NoError(t, err)
	got := receive(t, updates)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Title)

	cancel()
	for range updates {
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed")
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}
