package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatclient/backend"
	"chatclient/models"
)

type Outcome int

const (
	// OutcomeSkipped: nothing to send or no conversation selected.
	OutcomeSkipped Outcome = iota
	OutcomeSent
	// OutcomeFallback: the send pipeline failed and a local placeholder reply
	// was shown instead.
	OutcomeFallback
)

func (o Outcome) String() string {
	return [...]string{"skipped", "sent", "fallback"}[o]
}

const fallbackFormat = `Mock bot response to: "%s". In production, this would come from the n8n workflow.`

// FallbackReply is the placeholder shown when a message could not reach the bot.
func FallbackReply(text string) string {
	return fmt.Sprintf(fallbackFormat, text)
}

// Composer sends user messages: shown locally first, stored, then forwarded
// to the bot. Send failures never surface as errors.
type Composer struct {
	backend       backend.ChatBackend
	feed          *Feed
	dir           *Directory
	fallbackDelay time.Duration
	log           *zap.Logger

	mu    sync.Mutex
	draft string
}

func NewComposer(b backend.ChatBackend, feed *Feed, dir *Directory, fallbackDelay time.Duration, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{backend: b, feed: feed, dir: dir, fallbackDelay: fallbackDelay, log: log}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Submit sends the draft to the selected conversation.
func (c *Composer) Submit(ctx context.Context) Outcome {
	return c.Send(ctx, c.dir.Selected(), c.Draft())
}

func (c *Composer) Send(ctx context.Context, conversationID, text string) Outcome {
	if conversationID == "" || strings.TrimSpace(text) == "" {
		return OutcomeSkipped
	}
	log := c.log.With(zap.String("conversation_id", conversationID))

	local := models.Message{
		ID:             "local-" + uuid.New().String(),
		ConversationID: conversationID,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	c.feed.AppendLocal(conversationID, local)

	saved, err := c.backend.InsertMessage(ctx, conversationID, text)
	c.SetDraft("")
	if err != nil {
		log.Warn("store message failed", zap.Error(err))
		return c.fallback(ctx, conversationID, text)
	}
	c.feed.Confirm(conversationID, local.ID, saved)

	reply, err := c.backend.SendToBot(ctx, conversationID, text)
	if err != nil {
		log.Warn("bot request failed", zap.Error(err))
		return c.fallback(ctx, conversationID, text)
	}
	if !reply.Success {
		log.Warn("bot rejected message", zap.String("message", reply.Message))
		return c.fallback(ctx, conversationID, text)
	}
	return OutcomeSent
}

func (c *Composer) fallback(ctx context.Context, conversationID, text string) Outcome {
	if c.fallbackDelay > 0 {
		t := time.NewTimer(c.fallbackDelay)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	c.feed.AppendLocal(conversationID, models.Message{
		ID:        "local-" + uuid.New().String(),
		Content:   FallbackReply(text),
		FromBot:   true,
		CreatedAt: time.Now().UTC(),
	})
	return OutcomeFallback
}
