// Package bot produces bot replies for the mock backend and the dev server's
// sendMessage action.
package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatclient/models"
	"chatclient/store"
)

// Replier turns the conversation so far into the bot's next message.
type Replier interface {
	Reply(ctx context.Context, history []models.Message, text string) (string, error)
}

type EchoReplier struct{}

func (EchoReplier) Reply(ctx context.Context, history []models.Message, text string) (string, error) {
	return fmt.Sprintf("This is a mock GraphQL response to: \"%s\". In the real application, this would be processed through Hasura Actions → n8n → OpenRouter → back to Hasura.", text), nil
}

// Pipeline answers a user message and stores the reply as a bot message.
type Pipeline struct {
	Store   store.Store
	Replier Replier
	Delay   time.Duration
	Log     *zap.Logger
}

func (p *Pipeline) Respond(ctx context.Context, userID, chatID, text string) (models.BotReply, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	history, err := p.Store.Messages(ctx, userID, chatID)
	if err != nil {
		return models.BotReply{}, fmt.Errorf("load history: %w", err)
	}

	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return models.BotReply{}, ctx.Err()
		case <-t.C:
		}
	}

	content, err := p.Replier.Reply(ctx, history, text)
	if err != nil {
		log.Warn("bot reply failed", zap.String("chat_id", chatID), zap.Error(err))
		return models.BotReply{Success: false, Message: err.Error()}, nil
	}

	if _, err := p.Store.InsertMessage(ctx, userID, chatID, content, true); err != nil {
		return models.BotReply{}, fmt.Errorf("save bot reply: %w", err)
	}
	log.Debug("bot replied", zap.String("chat_id", chatID), zap.Int("length", len(content)))
	return models.BotReply{Success: true, Message: "Message sent successfully", BotResponse: content}, nil
}
