package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return staticReply{deps: deps, name: "start", text: deps.Config.Bot.Messages.Welcome}.Handle
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return staticReply{deps: deps, name: "help", text: deps.Config.Bot.Messages.Help}.Handle
}

// staticReply answers a command with a fixed configured text.
type staticReply struct {
	deps HandlerDeps
	name string
	text string
}

func (h staticReply) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling command", "chat_id", update.Message.Chat.ID, "user_id", update.Message.From.ID)

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()
	if _, err := b.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: update.Message.Chat.ID, Text: h.text}); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", update.Message.Chat.ID)
	}
}
