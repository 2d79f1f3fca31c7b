package store

import (
	"context"
	"sync"

	"chatclient/models"
)

// Hub fans change notifications out to watchers. A notification carries no
// payload; watchers re-read the full state.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[chan struct{}]struct{})}
}

func ChatTopic(chatID string) string  { return "chat:" + chatID }
func ChatsTopic(userID string) string { return "chats:" + userID }

// Watch returns a channel that receives at least one value after every
// Publish on topic. The channel is closed when ctx is done.
func (h *Hub) Watch(ctx context.Context, topic string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.watchers[topic] == nil {
		h.watchers[topic] = make(map[chan struct{}]struct{})
	}
	h.watchers[topic][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.watchers[topic], ch)
		if len(h.watchers[topic]) == 0 {
			delete(h.watchers, topic)
		}
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *Hub) Publish(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watchers[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Notifying wraps a Store and publishes on the hub after every write.
type Notifying struct {
	Store
	Hub *Hub
}

func NewNotifying(s Store, hub *Hub) *Notifying {
	return &Notifying{Store: s, Hub: hub}
}

func (n *Notifying) CreateChat(ctx context.Context, userID, title string) (models.Conversation, error) {
	conv, err := n.Store.CreateChat(ctx, userID, title)
	if err == nil {
		n.Hub.Publish(ChatsTopic(userID))
	}
	return conv, err
}

func (n *Notifying) UpdateChatTitle(ctx context.Context, userID, chatID, title string) (models.Conversation, error) {
	conv, err := n.Store.UpdateChatTitle(ctx, userID, chatID, title)
	if err == nil {
		n.Hub.Publish(ChatsTopic(userID))
	}
	return conv, err
}

func (n *Notifying) DeleteChat(ctx context.Context, userID, chatID string) error {
	err := n.Store.DeleteChat(ctx, userID, chatID)
	if err == nil {
		n.Hub.Publish(ChatsTopic(userID))
		n.Hub.Publish(ChatTopic(chatID))
	}
	return err
}

func (n *Notifying) InsertMessage(ctx context.Context, userID, chatID, content string, fromBot bool) (models.Message, error) {
	msg, err := n.Store.InsertMessage(ctx, userID, chatID, content, fromBot)
	if err == nil {
		n.Hub.Publish(ChatTopic(chatID))
		n.Hub.Publish(ChatsTopic(userID))
	}
	return msg, err
}
