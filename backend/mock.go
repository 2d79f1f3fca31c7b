package backend

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chatclient/bot"
	"chatclient/models"
	"chatclient/store"
)

// MockUserID owns everything in the mock backend.
const MockUserID = "1"

// Mock serves the client from an in-process store. Bot replies come from the
// echo replier after a delay and reach the feed through the subscription,
// the same way a real reply would.
type Mock struct {
	store    *store.Notifying
	pipeline *bot.Pipeline
	log      *zap.Logger
}

func NewMock(delay time.Duration, log *zap.Logger) *Mock {
	if log == nil {
		log = zap.NewNop()
	}
	s := store.NewNotifying(store.NewMemory(), store.NewHub())
	return &Mock{
		store: s,
		pipeline: &bot.Pipeline{
			Store:   s,
			Replier: bot.EchoReplier{},
			Delay:   delay,
			Log:     log,
		},
		log: log,
	}
}

func (m *Mock) ListConversations(ctx context.Context, _ FetchPolicy) ([]models.Conversation, error) {
	return m.store.ListChats(ctx, MockUserID)
}

func (m *Mock) CreateConversation(ctx context.Context, title string) (models.Conversation, error) {
	return m.store.CreateChat(ctx, MockUserID, title)
}

func (m *Mock) RenameConversation(ctx context.Context, conversationID, title string) (models.Conversation, error) {
	conv, err := m.store.UpdateChatTitle(ctx, MockUserID, conversationID, title)
	return conv, notFound(err)
}

func (m *Mock) DeleteConversation(ctx context.Context, conversationID string) error {
	return notFound(m.store.DeleteChat(ctx, MockUserID, conversationID))
}

func (m *Mock) LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := m.store.Messages(ctx, MockUserID, conversationID)
	return msgs, notFound(err)
}

func (m *Mock) InsertMessage(ctx context.Context, conversationID, content string) (models.Message, error) {
	msg, err := m.store.InsertMessage(ctx, MockUserID, conversationID, content, false)
	return msg, notFound(err)
}

func (m *Mock) SendToBot(ctx context.Context, conversationID, text string) (models.BotReply, error) {
	reply, err := m.pipeline.Respond(ctx, MockUserID, conversationID, text)
	return reply, notFound(err)
}

func (m *Mock) Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error) {
	if conversationID == "" {
		return nil, errors.New("subscribe: conversation id is required")
	}
	changes := m.store.Hub.Watch(ctx, store.ChatTopic(conversationID))
	return watch(ctx, changes, func() ([]models.Message, error) {
		return m.store.Messages(ctx, MockUserID, conversationID)
	}, m.log), nil
}

func (m *Mock) WatchConversations(ctx context.Context) (<-chan []models.Conversation, error) {
	changes := m.store.Hub.Watch(ctx, store.ChatsTopic(MockUserID))
	return watch(ctx, changes, func() ([]models.Conversation, error) {
		return m.store.ListChats(ctx, MockUserID)
	}, m.log), nil
}

// Reset is a no-op: the mock has no session cache.
func (m *Mock) Reset() {}

// watch re-reads the full state once up front and after every change.
func watch[T any](ctx context.Context, changes <-chan struct{}, read func() (T, error), log *zap.Logger) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			v, err := read()
			if err != nil {
				log.Debug("mock subscription ended", zap.Error(err))
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
			if _, ok := <-changes; !ok {
				return
			}
		}
	}()
	return out
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}
