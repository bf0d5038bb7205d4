package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/shulebot/internal/config"
)

// Router answers a chat message on behalf of a sender.
type Router interface {
	Route(ctx context.Context, userID, text string) string
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Router Router
}
