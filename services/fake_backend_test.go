package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatclient/backend"
	"chatclient/models"
)

// fakeBackend is a scriptable ChatBackend. Live deliveries are pushed by the
// test through push.
type fakeBackend struct {
	mu sync.Mutex

	convs   []models.Conversation
	history map[string][]models.Message

	historyErr  error
	historyGate chan struct{}
	historyDone chan string

	insertErr error
	botErr    error
	botReply  models.BotReply

	feeders map[string]chan []models.Message
	calls   []string
	fetches []backend.FetchPolicy
	resets  int
	nextID  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history:     make(map[string][]models.Message),
		feeders:     make(map[string]chan []models.Message),
		historyDone: make(chan string, 16),
		botReply:    models.BotReply{Success: true, Message: "Message sent successfully"},
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ListConversations(ctx context.Context, fetch backend.FetchPolicy) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, fetch)
	return append([]models.Conversation(nil), f.convs...), nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, title string) (models.Conversation, error) {
	f.record("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Date(2024, 1, 1, 0, 0, f.nextID, 0, time.UTC)
	conv := models.Conversation{ID: fmt.Sprintf("c%d", f.nextID), Title: title, CreatedAt: now, UpdatedAt: now}
	f.convs = append(f.convs, conv)
	return conv, nil
}

func (f *fakeBackend) RenameConversation(ctx context.Context, id, title string) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.convs {
		if f.convs[i].ID == id {
			f.convs[i].Title = title
			return f.convs[i], nil
		}
	}
	return models.Conversation{}, backend.ErrConversationNotFound
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.convs {
		if f.convs[i].ID == id {
			f.convs = append(f.convs[:i], f.convs[i+1:]...)
			return nil
		}
	}
	return backend.ErrConversationNotFound
}

func (f *fakeBackend) LoadHistory(ctx context.Context, id string) ([]models.Message, error) {
	defer func() { f.historyDone <- id }()
	f.mu.Lock()
	gate := f.historyGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]models.Message(nil), f.history[id]...), nil
}

func (f *fakeBackend) InsertMessage(ctx context.Context, id, content string) (models.Message, error) {
	f.record("insert:" + content)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return models.Message{}, f.insertErr
	}
	f.nextID++
	return models.Message{ID: fmt.Sprintf("m%d", f.nextID), ConversationID: id, Content: content,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, f.nextID, 0, time.UTC)}, nil
}

func (f *fakeBackend) SendToBot(ctx context.Context, id, text string) (models.BotReply, error) {
	f.record("bot:" + text)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.botErr != nil {
		return models.BotReply{}, f.botErr
	}
	return f.botReply, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, id string) (<-chan []models.Message, error) {
	if id == "" {
		return nil, errors.New("missing id")
	}
	in := make(chan []models.Message, 8)
	f.mu.Lock()
	f.feeders[id] = in
	f.mu.Unlock()

	out := make(chan []models.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-in:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// push delivers msgs on the most recent subscription for id.
func (f *fakeBackend) push(id string, msgs ...models.Message) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		in := f.feeders[id]
		f.mu.Unlock()
		if in != nil {
			in <- msgs
			return
		}
		if time.Now().After(deadline) {
			panic("no subscription for " + id)
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeBackend) WatchConversations(ctx context.Context) (<-chan []models.Conversation, error) {
	out := make(chan []models.Conversation)
	close(out)
	return out, nil
}

func (f *fakeBackend) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func msg(id, content string, sec int, fromBot bool) models.Message {
	return models.Message{ID: id, Content: content, FromBot: fromBot,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)}
}
