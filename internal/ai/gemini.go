package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/shulebot/internal/config"
)

type geminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
	log         *slog.Logger
}

func newGeminiClient(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gc, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiClient{
		client:      gc,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		log:         log.With("component", "gemini_client"),
	}, nil
}

// toGeminiContents moves system messages into the system instruction and maps
// assistant turns to the model role.
func toGeminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}, contents
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	system, contents := toGeminiContents(messages)
	cfg := &genai.GenerateContentConfig{
		Temperature:       &c.temperature,
		SystemInstruction: system,
	}

	resp, err := c.generateWithRetries(ctx, contents, cfg)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *geminiClient) generateWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr genai.APIError
		if !errors.As(err, &apiErr) || (apiErr.Code != 500 && apiErr.Code != 503) {
			return nil, fmt.Errorf("gemini API call failed: %w", err)
		}
		if attempt == c.maxRetries {
			break
		}

		c.log.WarnContext(ctx, "Retrying Gemini API call", "attempt", attempt+1, "code", apiErr.Code, "delay", c.retryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return nil, fmt.Errorf("gemini API call failed after %d retries: %w", c.maxRetries, lastErr)
}
