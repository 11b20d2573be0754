// Package llm provides the chat-completion provider interface.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one (role, content) pair in a chat prompt.
type Message struct {
	Role    string
	Content string
}

// ChatModel generates a completion for an ordered message sequence.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error)
}

// OpenAIChat calls the OpenAI chat completions API.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// NewOpenAIChat creates a chat provider. Default model: gpt-4o-mini.
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIChat) Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
		TopP:        1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
