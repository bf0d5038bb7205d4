// Package logger provides structured logging for shulebot on top of log/slog,
// plus request logging middleware for the Telegram and HTTP transports.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id of an HTTP request.
const RequestIDHeader = "X-Request-ID"

// NewLogger creates a new slog Logger with the specified level and format
// and installs it as the process default.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := slog.New(newHandler(os.Stdout, levelStr, jsonOutput))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Used when a component is
// constructed without one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(w io.Writer, levelStr string, jsonOutput bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}
	if jsonOutput {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware creates a logging middleware for the Telegram bot.
// It logs each incoming update before and after the handler chain runs.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			entry := log.With("update_id", update.ID)

			switch {
			case update.Message != nil:
				var userID int64
				if update.Message.From != nil {
					userID = update.Message.From.ID
				}
				entry = entry.With(
					"update_type", "message",
					"message_id", update.Message.ID,
					"chat_id", update.Message.Chat.ID,
					"user_id", userID,
					"text_preview", truncateString(update.Message.Text, 50),
				)
			case update.CallbackQuery != nil:
				entry = entry.With(
					"update_type", "callback_query",
					"callback_query_id", update.CallbackQuery.ID,
					"user_id", update.CallbackQuery.From.ID,
				)
			default:
				entry = entry.With("update_type", "other")
			}

			entry.InfoContext(ctx, "Processing update")
			next(ctx, b, update)
			entry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

// GinMiddleware logs every HTTP request with its status and latency. It also
// assigns a request id, reusing the caller's X-Request-ID when present.
func GinMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(startTime),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.ErrorContext(c.Request.Context(), "HTTP request failed", attrs...)
		case status >= 400:
			log.WarnContext(c.Request.Context(), "HTTP request rejected", attrs...)
		default:
			log.InfoContext(c.Request.Context(), "HTTP request handled", attrs...)
		}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
