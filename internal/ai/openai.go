package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/edgard/shulebot/internal/config"
)

type openAIClient struct {
	client      *gopenai.Client
	model       string
	temperature float32
	log         *slog.Logger
}

func newOpenAIClient(cfg config.AIConfig, log *slog.Logger) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}

	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &openAIClient{
		client:      gopenai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log.With("component", "openai_client"),
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := gopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    make([]gopenai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, gopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	c.log.DebugContext(ctx, "Requesting chat completion", "model", c.model, "message_count", len(messages))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.log.DebugContext(ctx, "Chat completion received", "total_tokens", resp.Usage.TotalTokens)
	return text, nil
}
