package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: 0.4,
	}
}

// Ping checks that the endpoint answers and knows the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model, "available", len(list.Models))
	return nil
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, nil)
}

// CompleteJSON is like Complete but asks the endpoint for a JSON object reply.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (c *Client) complete(ctx context.Context, prompt string, format *openai.ChatCompletionResponseFormat) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: format,
		Temperature:    c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM response", "raw", raw, "tokens", resp.Usage.TotalTokens)
	return raw, nil
}
