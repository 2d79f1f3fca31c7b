package graphql

import (
	"encoding/json"
	"time"

	"chatclient/models"
)

type Request struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// StringVar returns a string variable or "" when absent or mistyped.
func (r Request) StringVar(name string) string {
	s, _ := r.Variables[name].(string)
	return s
}

type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []ErrorEntry    `json:"errors,omitempty"`
}

type ErrorEntry struct {
	Message string `json:"message"`
}

type aggregate struct {
	Aggregate struct {
		Count int `json:"count"`
	} `json:"aggregate"`
}

// ChatRow is the Hasura shape of a conversation.
type ChatRow struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	MessagesAggregate aggregate        `json:"messages_aggregate"`
	Messages          []models.Message `json:"messages,omitempty"`
}

func NewChatRow(c models.Conversation) ChatRow {
	row := ChatRow{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	row.MessagesAggregate.Aggregate.Count = c.MessageCount
	return row
}

func (r ChatRow) Conversation() models.Conversation {
	return models.Conversation{
		ID:           r.ID,
		Title:        r.Title,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		MessageCount: r.MessagesAggregate.Aggregate.Count,
	}
}
