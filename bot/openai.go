package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"chatclient/models"
)

const (
	systemPrompt  = "You are a helpful assistant. Use the earlier messages of the conversation as context."
	recentHistory = 10
)

// OpenAIReplier asks a chat completion model for the reply, sending the most
// recent messages of the conversation as context.
type OpenAIReplier struct {
	client *openai.Client
	model  string
}

func NewOpenAIReplier(apiKey, model string) (*OpenAIReplier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	return &OpenAIReplier{client: openai.NewClient(apiKey), model: model}, nil
}

func (r *OpenAIReplier) Reply(ctx context.Context, history []models.Message, text string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: completionMessages(history, text),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai: no content in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// completionMessages builds the prompt. history already ends with the user's
// message when it was persisted first, in which case text is not repeated.
func completionMessages(history []models.Message, text string) []openai.ChatCompletionMessage {
	if len(history) > recentHistory {
		history = history[len(history)-recentHistory:]
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.FromBot {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	n := len(history)
	if n == 0 || history[n-1].FromBot || history[n-1].Content != text {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
	}
	return messages
}
