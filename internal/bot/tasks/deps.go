// Package tasks implements the bot's scheduled maintenance jobs.
package tasks

import (
	"log/slog"
	"time"

	"github.com/edgard/shulebot/internal/database"
)

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Ledger database.Ledger
	// StaleAfter is how long an initiation may wait for its callback.
	StaleAfter time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}
