// Package ai provides interfaces and implementations for the completion
// backends that answer free-form questions.
package ai

import (
	"context"
	"errors"
)

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a completion prompt.
type Message struct {
	Role    Role
	Content string
}

// Completer turns an ordered conversation into a reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ErrEmptyResponse is returned when the backend answers with no text.
var ErrEmptyResponse = errors.New("completion backend returned no content")
