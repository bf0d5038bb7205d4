// Package router decides how to answer an inbound chat message. Matchers run
// in a fixed order and the first one that claims the message produces the
// reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/shulebot/internal/ai"
	"github.com/edgard/shulebot/internal/config"
	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/knowledge"
	"github.com/edgard/shulebot/internal/mpesa"
	"github.com/edgard/shulebot/internal/sanitize"
)

const (
	defaultHistoryLimit   = 20
	defaultGatewayTimeout = 30 * time.Second
	defaultAITimeout      = 2 * time.Minute
)

// ConversationStore is the subset of database.Store the router uses.
type ConversationStore interface {
	AppendEntry(ctx context.Context, entry *database.ConversationEntry) error
	GetHistory(ctx context.Context, userID string, limit int) ([]database.ConversationEntry, error)
	CountEntries(ctx context.Context, userID string) (int, error)
	IsBanned(ctx context.Context, userID string) (bool, error)
	Ban(ctx context.Context, userID string) error
	Unban(ctx context.Context, userID string) error
}

// Gateway initiates STK pushes. *mpesa.Client implements it.
type Gateway interface {
	Initiate(ctx context.Context, phone, amount, reference string) (*mpesa.InitiateResponse, error)
	RegisterInit(ctx context.Context, reg mpesa.Registration) error
}

// PaymentRecorder persists accepted initiations. *payments.Reconciler
// implements it.
type PaymentRecorder interface {
	RecordInitiation(ctx context.Context, reg mpesa.Registration, rawResponse string) (*database.PaymentRecord, error)
}

// Deps holds the router's collaborators. Gateway and Completer may be nil,
// in which case payments fail and the fallback apologizes.
type Deps struct {
	Store     ConversationStore
	Payments  PaymentRecorder
	Knowledge knowledge.Source
	Gateway   Gateway
	Completer ai.Completer
	Logger    *slog.Logger
}

// Settings tunes the router.
type Settings struct {
	Bot            config.BotConfig
	HistoryLimit   int
	GatewayTimeout time.Duration
	AITimeout      time.Duration
}

// Router routes one message at a time. It is safe for concurrent use as long
// as its collaborators are.
type Router struct {
	deps     Deps
	settings Settings
	msgs     config.MessagesConfig
	log      *slog.Logger
	matchers []matcher
	plain    *sanitize.Policy
}

// New creates a Router.
func New(deps Deps, settings Settings) (*Router, error) {
	if deps.Store == nil {
		return nil, errors.New("router requires a conversation store")
	}
	if deps.Knowledge == nil {
		return nil, errors.New("router requires a knowledge source")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if settings.HistoryLimit <= 0 {
		settings.HistoryLimit = defaultHistoryLimit
	}
	if settings.GatewayTimeout <= 0 {
		settings.GatewayTimeout = defaultGatewayTimeout
	}
	if settings.AITimeout <= 0 {
		settings.AITimeout = defaultAITimeout
	}
	if settings.Bot.SaveRetries <= 0 {
		settings.Bot.SaveRetries = 1
	}

	r := &Router{
		deps:     deps,
		settings: settings,
		msgs:     settings.Bot.Messages,
		log:      deps.Logger.With("component", "router"),
		plain:    sanitize.NewPolicy(),
	}
	r.matchers = r.defaultMatchers()
	return r, nil
}

// turn carries one message through the matchers.
type turn struct {
	userID string
	text   string
	lower  string
	fields []string

	kb *knowledge.Knowledge
}

// Route answers text from userID. It always returns a reply; failures are
// logged and mapped to fixed messages.
func (r *Router) Route(ctx context.Context, userID, text string) string {
	trimmed := strings.TrimSpace(text)
	t := &turn{
		userID: userID,
		text:   trimmed,
		lower:  strings.ToLower(trimmed),
		fields: strings.Fields(trimmed),
	}
	log := r.log.With("user_id", userID)

	for _, m := range r.matchers {
		out, ok := m.match(ctx, t)
		if !ok {
			continue
		}
		log.DebugContext(ctx, "Message matched", "matcher", m.name)
		if out.record {
			r.record(ctx, userID, text, out.reply)
		}
		return out.reply
	}

	// The fallback matcher always claims the message.
	log.ErrorContext(ctx, "No matcher claimed message")
	return r.msgs.GeneralError
}

// loadKnowledge loads the snapshot once per turn. A load failure yields an empty
// snapshot so lookups simply miss.
func (r *Router) loadKnowledge(ctx context.Context, t *turn) *knowledge.Knowledge {
	if t.kb != nil {
		return t.kb
	}
	kb, err := r.deps.Knowledge.Load(ctx)
	if err != nil || kb == nil {
		r.log.WarnContext(ctx, "Knowledge unavailable, skipping lookups", "error", err)
		kb = &knowledge.Knowledge{}
	}
	t.kb = kb
	return kb
}

// record appends the inbound then the outbound entry before the reply goes
// out, so the next turn sees both. The two writes and their retries share a
// single db_timeout budget.
func (r *Router) record(ctx context.Context, userID, inbound, outbound string) {
	writeCtx, cancel := r.dbContext(ctx)
	defer cancel()

	r.saveWithRetry(writeCtx, userID, database.DirectionInbound, inbound)
	r.saveWithRetry(writeCtx, userID, database.DirectionOutbound, outbound)
}

// saveWithRetry appends an entry, retrying with a linear back-off until ctx
// is done. Failures are logged only.
func (r *Router) saveWithRetry(ctx context.Context, userID string, dir database.Direction, text string) {
	log := r.log.With("user_id", userID, "direction", dir)
	entry := &database.ConversationEntry{UserID: userID, Direction: dir, Text: text}

	var err error
	for attempt := 1; attempt <= r.settings.Bot.SaveRetries; attempt++ {
		if ctx.Err() != nil {
			log.WarnContext(ctx, "Write budget spent, dropping conversation entry", "error", ctx.Err(), "attempt", attempt)
			return
		}

		err = r.deps.Store.AppendEntry(ctx, entry)
		if err == nil {
			return
		}

		log.ErrorContext(ctx, "Failed to save conversation entry", "error", err, "attempt", attempt)
		if attempt == r.settings.Bot.SaveRetries {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(r.settings.Bot.SaveRetryDelay * time.Duration(attempt)):
		}
	}
	log.ErrorContext(ctx, fmt.Sprintf("Giving up on conversation entry after %d attempts", r.settings.Bot.SaveRetries), "last_error", err)
}

func (r *Router) dbContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.settings.Bot.DBTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.settings.Bot.DBTimeout)
}
