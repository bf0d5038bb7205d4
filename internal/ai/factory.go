package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/shulebot/internal/config"
)

// NewCompleter creates a Completer for the configured provider.
func NewCompleter(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Completer, error) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("Initializing completion backend", "provider", cfg.Provider, "model", cfg.Model)

	switch cfg.Provider {
	case "openai":
		client, err := newOpenAIClient(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := newGeminiClient(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
