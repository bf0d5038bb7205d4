package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler describes how one handler is matched and wrapped.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// command matches "/<name>" at the start of a text message.
func command(name string, h tgbot.HandlerFunc) RegisteredHandler {
	return RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     name,
		Handler:     h,
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}
}

// RegisterAllCommands returns the Telegram-only commands keyed by their
// slash form. Every other message, /pay, /ban and /history included,
// reaches the router through the default handler so all transports behave
// the same.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	return map[string]RegisteredHandler{
		"/start": command("start", NewStartHandler(deps)),
		"/help":  command("help", NewHelpHandler(deps)),
	}
}
