package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	sendMessageTimeout = 10 * time.Second
	// maxMessageRunes is Telegram's limit on a single text message.
	maxMessageRunes = 4096
)

type messageHandler struct {
	deps HandlerDeps
}

// NewMessageHandler creates the default handler. It hands every text
// message to the router, keyed by the sender's Telegram user id, and sends
// back the router's reply. In groups it only answers when addressed.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update without message or sender", "update_id", update.ID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		log.DebugContext(ctx, "Ignoring non-text message", "chat_id", msg.Chat.ID, "message_id", msg.ID)
		return
	}

	if msg.Chat.Type != models.ChatTypePrivate {
		if !h.addressed(msg) {
			log.DebugContext(ctx, "Bot not addressed in group, skipping", "chat_id", msg.Chat.ID)
			return
		}
		text = h.stripMention(text)
		if text == "" {
			return
		}
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	log.InfoContext(ctx, "Routing message", "chat_id", msg.Chat.ID, "user_id", userID)

	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: msg.Chat.ID, Action: models.ChatActionTyping}); err != nil {
		log.DebugContext(ctx, "Failed to send typing action", "error", err, "chat_id", msg.Chat.ID)
	}

	reply := h.deps.Router.Route(ctx, userID, text)
	if reply == "" {
		return
	}

	for i, part := range splitMessage(reply, maxMessageRunes) {
		params := &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: part}
		if i == 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: msg.ID}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		_, err := b.SendMessage(sendCtx, params)
		cancel()
		if err != nil {
			log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", msg.Chat.ID, "part", i)
			return
		}
	}
}

// addressed reports whether a group message mentions the bot or replies to it.
func (h messageHandler) addressed(msg *models.Message) bool {
	info := h.deps.Config.Telegram.BotInfo
	if info == nil || info.Username == "" {
		return false
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == info.ID {
		return true
	}

	username := strings.ToLower(info.Username)
	for _, w := range strings.Fields(strings.ToLower(msg.Text)) {
		if strings.TrimFunc(w, unicode.IsPunct) == username {
			return true
		}
	}
	return false
}

// stripMention removes "@botname" words so commands and keywords match as
// they would in a private chat.
func (h messageHandler) stripMention(text string) string {
	info := h.deps.Config.Telegram.BotInfo
	if info == nil || info.Username == "" {
		return text
	}
	mention := "@" + strings.ToLower(info.Username)

	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if strings.ToLower(strings.TrimRightFunc(w, unicode.IsPunct)) == mention {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break at the last newline inside each chunk.
func splitMessage(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := limit
		if nl := strings.LastIndex(string(runes[:limit]), "\n"); nl > 0 {
			cut = utf8.RuneCountInString(string(runes[:limit])[:nl]) + 1
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		text = string(runes[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
