package backend

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"chatclient/graphql"
	"chatclient/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Hasura talks to a Hasura GraphQL endpoint: queries and mutations over
// HTTP, subscriptions over graphql-transport-ws.
type Hasura struct {
	client     *graphql.Client
	subscriber *graphql.Subscriber
	log        *zap.Logger
}

func NewHasura(client *graphql.Client, subscriber *graphql.Subscriber, log *zap.Logger) *Hasura {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hasura{client: client, subscriber: subscriber, log: log}
}

func (h *Hasura) ListConversations(ctx context.Context, fetch FetchPolicy) ([]models.Conversation, error) {
	var out struct {
		Chats []graphql.ChatRow `json:"chats"`
	}
	policy := graphql.CacheFirst
	if fetch == NetworkOnly {
		policy = graphql.NetworkOnly
	}
	if err := h.client.Query(ctx, graphql.NewRequest(graphql.OpGetChats, nil), &out, policy); err != nil {
		return nil, err
	}
	return conversations(out.Chats), nil
}

func (h *Hasura) CreateConversation(ctx context.Context, title string) (models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	var out struct {
		Chat *graphql.ChatRow `json:"insert_chats_one"`
	}
	req := graphql.NewRequest(graphql.OpCreateChat, map[string]any{"title": title})
	if err := h.client.Mutate(ctx, req, &out); err != nil {
		return models.Conversation{}, err
	}
	if out.Chat == nil {
		return models.Conversation{}, errors.New("create conversation: empty response")
	}
	return out.Chat.Conversation(), nil
}

func (h *Hasura) RenameConversation(ctx context.Context, conversationID, title string) (models.Conversation, error) {
	var out struct {
		Chat *graphql.ChatRow `json:"update_chats_by_pk"`
	}
	req := graphql.NewRequest(graphql.OpUpdateChatTitle, map[string]any{"chatId": conversationID, "title": title})
	if err := h.client.Mutate(ctx, req, &out); err != nil {
		return models.Conversation{}, err
	}
	if out.Chat == nil {
		return models.Conversation{}, ErrConversationNotFound
	}
	return out.Chat.Conversation(), nil
}

func (h *Hasura) DeleteConversation(ctx context.Context, conversationID string) error {
	var out struct {
		Chat *struct {
			ID string `json:"id"`
		} `json:"delete_chats_by_pk"`
	}
	req := graphql.NewRequest(graphql.OpDeleteChat, map[string]any{"chatId": conversationID})
	if err := h.client.Mutate(ctx, req, &out); err != nil {
		return err
	}
	if out.Chat == nil {
		return ErrConversationNotFound
	}
	return nil
}

func (h *Hasura) LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out struct {
		Chat *graphql.ChatRow `json:"chats_by_pk"`
	}
	req := graphql.NewRequest(graphql.OpGetChatWithMessages, map[string]any{"chatId": conversationID})
	if err := h.client.Query(ctx, req, &out, graphql.CacheFirst); err != nil {
		return nil, err
	}
	if out.Chat == nil {
		return nil, ErrConversationNotFound
	}
	return messages(conversationID, out.Chat.Messages), nil
}

func (h *Hasura) InsertMessage(ctx context.Context, conversationID, content string) (models.Message, error) {
	var out struct {
		Message *models.Message `json:"insert_messages_one"`
	}
	req := graphql.NewRequest(graphql.OpInsertMessage, map[string]any{"chatId": conversationID, "content": content})
	if err := h.client.Mutate(ctx, req, &out); err != nil {
		return models.Message{}, err
	}
	if out.Message == nil {
		return models.Message{}, errors.New("insert message: empty response")
	}
	msg := *out.Message
	msg.ConversationID = conversationID
	return msg, nil
}

func (h *Hasura) SendToBot(ctx context.Context, conversationID, text string) (models.BotReply, error) {
	var out struct {
		Reply *models.BotReply `json:"sendMessage"`
	}
	req := graphql.NewRequest(graphql.OpSendMessageToBot, map[string]any{"chatId": conversationID, "message": text})
	if err := h.client.Mutate(ctx, req, &out); err != nil {
		return models.BotReply{}, err
	}
	if out.Reply == nil {
		return models.BotReply{}, errors.New("send message: empty response")
	}
	return *out.Reply, nil
}

func (h *Hasura) Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error) {
	if conversationID == "" {
		return nil, errors.New("subscribe: conversation id is required")
	}
	req := graphql.NewRequest(graphql.OpMessagesSubscription, map[string]any{"chatId": conversationID})
	return stream(ctx, h, req, func(data json.RawMessage) ([]models.Message, error) {
		var out struct {
			Messages []models.Message `json:"messages"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return messages(conversationID, out.Messages), nil
	}), nil
}

func (h *Hasura) WatchConversations(ctx context.Context) (<-chan []models.Conversation, error) {
	req := graphql.NewRequest(graphql.OpChatsSubscription, nil)
	return stream(ctx, h, req, func(data json.RawMessage) ([]models.Conversation, error) {
		var out struct {
			Chats []graphql.ChatRow `json:"chats"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return conversations(out.Chats), nil
	}), nil
}

func (h *Hasura) Reset() {
	h.client.ClearStore()
}

// stream runs a subscription on its own goroutine and forwards decoded
// deliveries until ctx is done or the subscription ends.
func stream[T any](ctx context.Context, h *Hasura, req graphql.Request, decode func(json.RawMessage) (T, error)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		err := h.subscriber.Subscribe(ctx, req, func(data json.RawMessage) {
			v, err := decode(data)
			if err != nil {
				h.log.Warn("dropping undecodable delivery", zap.String("operation", req.OperationName), zap.Error(err))
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			h.log.Warn("subscription ended", zap.String("operation", req.OperationName), zap.Error(err))
		}
	}()
	return out
}

func conversations(rows []graphql.ChatRow) []models.Conversation {
	convs := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, row.Conversation())
	}
	models.SortConversations(convs)
	return convs
}

func messages(conversationID string, msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		m.ConversationID = conversationID
		out[i] = m
	}
	models.SortMessages(out)
	return out
}
