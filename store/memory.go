package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"chatclient/models"
)

type memoryChat struct {
	owner    string
	conv     models.Conversation
	messages []models.Message
}

// Memory keeps everything in process; it backs the mock backend and the
// default dev server.
type Memory struct {
	mu    sync.RWMutex
	chats map[string]*memoryChat
	clock *Clock
}

func NewMemory() *Memory {
	return &Memory{
		chats: make(map[string]*memoryChat),
		clock: NewClock(),
	}
}

func (m *Memory) ListChats(ctx context.Context, userID string) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	convs := make([]models.Conversation, 0)
	for _, c := range m.chats {
		if c.owner == userID {
			convs = append(convs, c.conv)
		}
	}
	models.SortConversations(convs)
	return convs, nil
}

func (m *Memory) GetChat(ctx context.Context, userID, chatID string) (models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.owned(userID, chatID)
	if err != nil {
		return models.Conversation{}, err
	}
	return c.conv, nil
}

func (m *Memory) CreateChat(ctx context.Context, userID, title string) (models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	now := m.clock.Now()
	conv := models.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.chats[conv.ID] = &memoryChat{owner: userID, conv: conv}
	m.mu.Unlock()
	return conv, nil
}

func (m *Memory) UpdateChatTitle(ctx context.Context, userID, chatID, title string) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.owned(userID, chatID)
	if err != nil {
		return models.Conversation{}, err
	}
	c.conv.Title = title
	c.conv.UpdatedAt = m.clock.Now()
	return c.conv, nil
}

func (m *Memory) DeleteChat(ctx context.Context, userID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.owned(userID, chatID); err != nil {
		return err
	}
	delete(m.chats, chatID)
	return nil
}

func (m *Memory) Messages(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.owned(userID, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

func (m *Memory) InsertMessage(ctx context.Context, userID, chatID, content string, fromBot bool) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.owned(userID, chatID)
	if err != nil {
		return models.Message{}, err
	}
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: chatID,
		Content:        content,
		FromBot:        fromBot,
		CreatedAt:      m.clock.Now(),
	}
	if !fromBot {
		author := userID
		msg.UserID = &author
	}
	c.messages = append(c.messages, msg)
	c.conv.UpdatedAt = msg.CreatedAt
	c.conv.MessageCount = len(c.messages)
	return msg, nil
}

func (m *Memory) owned(userID, chatID string) (*memoryChat, error) {
	c, ok := m.chats[chatID]
	if !ok || c.owner != userID {
		return nil, ErrNotFound
	}
	return c, nil
}
