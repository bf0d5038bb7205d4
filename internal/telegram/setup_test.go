package telegram

import (
	"context"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/bot/handlers"
	"github.com/edgard/shulebot/internal/logger"
)

func TestApplyMiddlewareOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}
	h := applyMiddleware(func(context.Context, *bot.Bot, *models.Update) {
		order = append(order, "handler")
	}, []bot.Middleware{mark("outer"), mark("inner")})

	h(context.Background(), nil, &models.Update{})
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestNewTelegramBotRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := NewTelegramBot("", logger.Discard())
	require.Error(t, err)
}

func TestRegisterHandlers(t *testing.T) {
	t.Parallel()

	require.Error(t, RegisterHandlers(nil, logger.Discard(), nil))

	b, err := NewTelegramBot("123456:TEST", logger.Discard(), bot.WithSkipGetMe())
	require.NoError(t, err)
	require.NoError(t, RegisterHandlers(b, logger.Discard(), map[string]handlers.RegisteredHandler{
		"/noop": {
			HandlerType: bot.HandlerTypeMessageText,
			Pattern:     "noop",
			MatchType:   bot.MatchTypeCommandStartOnly,
			Handler:     func(context.Context, *bot.Bot, *models.Update) {},
		},
		"/nil": {Pattern: "nil"},
	}))
}
