package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/backend"
	"chatclient/models"
)

func conv(id string, updated int) models.Conversation {
	ts := time.Date(2024, 1, 1, 0, 0, updated, 0, time.UTC)
	return models.Conversation{ID: id, Title: id, CreatedAt: ts, UpdatedAt: ts}
}

func TestDirectoryCreateOnEmpty(t *testing.T) {
	b := newFakeBackend()
	d := NewDirectory(b, nil)
	ctx := context.Background()

	convs, err := d.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.Empty(t, d.Selected())

	id, err := d.Create(ctx, "New Chat")
	require.NoError(t, err)

	convs = d.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "New Chat", convs[0].Title)
	assert.Equal(t, id, d.Selected())
	assert.Equal(t, []backend.FetchPolicy{backend.CacheFirst, backend.NetworkOnly}, b.fetches)
}

func TestDirectoryCreateDefaultsTitle(t *testing.T) {
	b := newFakeBackend()
	d := NewDirectory(b, nil)
	_, err := d.Create(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, d.Conversations()[0].Title)
}

func TestDirectoryOrdersAndAutoSelects(t *testing.T) {
	b := newFakeBackend()
	b.convs = []models.Conversation{conv("old", 1), conv("newest", 3), conv("mid", 2)}
	d := NewDirectory(b, nil)

	var selections []string
	d.OnSelect(func(id string) { selections = append(selections, id) })

	convs, err := d.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 3)
	for i := 1; i < len(convs); i++ {
		assert.False(t, convs[i].UpdatedAt.After(convs[i-1].UpdatedAt))
	}
	assert.Equal(t, "newest", d.Selected())

	// an explicit choice survives later refreshes
	d.Select("old")
	_, err = d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", d.Selected())
	assert.Equal(t, []string{"newest", "old"}, selections)
}

func TestDirectoryDeleteSelected(t *testing.T) {
	b := newFakeBackend()
	b.convs = []models.Conversation{conv("a", 2), conv("b", 1)}
	d := NewDirectory(b, nil)
	ctx := context.Background()

	_, err := d.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", d.Selected())

	require.NoError(t, d.Delete(ctx, "a"))
	assert.Equal(t, "b", d.Selected())
	assert.Len(t, d.Conversations(), 1)

	assert.ErrorIs(t, d.Delete(ctx, "missing"), backend.ErrConversationNotFound)
}

func TestDirectoryRename(t *testing.T) {
	b := newFakeBackend()
	b.convs = []models.Conversation{conv("a", 1)}
	d := NewDirectory(b, nil)

	require.NoError(t, d.Rename(context.Background(), "a", "Groceries"))
	assert.Equal(t, "Groceries", d.Conversations()[0].Title)
	assert.ErrorIs(t, d.Rename(context.Background(), "zzz", "x"), backend.ErrConversationNotFound)
}

func TestDirectoryReset(t *testing.T) {
	b := newFakeBackend()
	b.convs = []models.Conversation{conv("a", 1)}
	d := NewDirectory(b, nil)
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	last := "unset"
	d.OnSelect(func(id string) { last = id })
	d.Reset()
	assert.Empty(t, d.Conversations())
	assert.Empty(t, d.Selected())
	assert.Equal(t, "", last)
}
