package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, req Request)) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "user", r.Header.Get(RoleHeader))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClientQueryCachesUntilMutation(t *testing.T) {
	srv, hits := newTestServer(t, func(w http.ResponseWriter, req Request) {
		switch req.OperationName {
		case OpGetChats:
			_, _ = w.Write([]byte(`{"data":{"chats":[{"id":"c1","title":"New Chat"}]}}`))
		case OpCreateChat:
			_, _ = w.Write([]byte(`{"data":{"insert_chats_one":{"id":"c2","title":"x"}}}`))
		}
	})
	c := NewClient(srv.URL, "user", staticToken("tok"), nil)
	ctx := context.Background()

	var out struct {
		Chats []ChatRow `json:"chats"`
	}
	require.NoError(t, c.Query(ctx, NewRequest(OpGetChats, nil), &out, CacheFirst))
	require.NoError(t, c.Query(ctx, NewRequest(OpGetChats, nil), &out, CacheFirst))
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	require.Len(t, out.Chats, 1)
	assert.Equal(t, "c1", out.Chats[0].ID)

	require.NoError(t, c.Query(ctx, NewRequest(OpGetChats, nil), &out, NetworkOnly))
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))

	require.NoError(t, c.Mutate(ctx, NewRequest(OpCreateChat, map[string]any{"title": "x"}), nil))
	require.NoError(t, c.Query(ctx, NewRequest(OpGetChats, nil), &out, CacheFirst))
	assert.EqualValues(t, 4, atomic.LoadInt32(hits))
}

func TestClientClearStore(t *testing.T) {
	srv, hits := newTestServer(t, func(w http.ResponseWriter, req Request) {
		_, _ = w.Write([]byte(`{"data":{"chats":[]}}`))
	})
	c := NewClient(srv.URL, "user", staticToken("tok"), nil)

	require.NoError(t, c.Query(context.Background(), NewRequest(OpGetChats, nil), nil, CacheFirst))
	c.ClearStore()
	require.NoError(t, c.Query(context.Background(), NewRequest(OpGetChats, nil), nil, CacheFirst))
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func TestClientDropsResultFetchedBeforeClear(t *testing.T) {
	var owner atomic.Value
	owner.Store("a")
	started := make(chan struct{})
	release := make(chan struct{})
	var first int32
	srv, _ := newTestServer(t, func(w http.ResponseWriter, req Request) {
		id := owner.Load().(string)
		if atomic.CompareAndSwapInt32(&first, 0, 1) {
			close(started)
			<-release
		}
		_, _ = w.Write([]byte(`{"data":{"chats":[{"id":"` + id + `","title":"t"}]}}`))
	})
	c := NewClient(srv.URL, "user", staticToken("tok"), nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- c.Query(ctx, NewRequest(OpGetChats, nil), nil, CacheFirst)
	}()
	<-started
	c.ClearStore()
	owner.Store("b")
	close(release)
	require.NoError(t, <-done)

	var out struct {
		Chats []ChatRow `json:"chats"`
	}
	require.NoError(t, c.Query(ctx, NewRequest(OpGetChats, nil), &out, CacheFirst))
	require.Len(t, out.Chats, 1)
	assert.Equal(t, "b", out.Chats[0].ID)
}

func TestClientErrors(t *testing.T) {
	t.Run("graphql errors", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, req Request) {
			_, _ = w.Write([]byte(`{"errors":[{"message":"field not found"},{"message":"denied"}]}`))
		})
		c := NewClient(srv.URL, "user", staticToken("tok"), nil)

		err := c.Query(context.Background(), NewRequest(OpGetChats, nil), nil, NetworkOnly)
		var gqlErr *Error
		require.ErrorAs(t, err, &gqlErr)
		assert.Equal(t, "graphql: field not found; denied", gqlErr.Error())
	})

	t.Run("http status", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, req Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("nope"))
		})
		c := NewClient(srv.URL, "user", staticToken("tok"), nil)

		err := c.Mutate(context.Background(), NewRequest(OpCreateChat, nil), nil)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	})
}

func TestAuthHeadersOmitsEmptyToken(t *testing.T) {
	h := AuthHeaders(staticToken(""), "user")
	assert.Equal(t, map[string]string{RoleHeader: "user"}, h)

	h = AuthHeaders(staticToken("abc"), "user")
	assert.Equal(t, "Bearer abc", h["Authorization"])
}

func TestChatRowRoundTrip(t *testing.T) {
	row := ChatRow{ID: "c1", Title: "t"}
	row.MessagesAggregate.Aggregate.Count = 3
	conv := row.Conversation()
	assert.Equal(t, 3, conv.MessageCount)
	assert.Equal(t, row.MessagesAggregate, NewChatRow(conv).MessagesAggregate)
}
