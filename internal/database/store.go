package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jmoiron/sqlx"
)

// Store defines conversation history and ban list operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// AppendEntry inserts a conversation entry and sets its ID.
	AppendEntry(ctx context.Context, entry *ConversationEntry) error

	// GetHistory returns the most recent limit entries for userID, oldest first.
	// A limit of zero or less returns the full history.
	GetHistory(ctx context.Context, userID string, limit int) ([]ConversationEntry, error)

	// CountEntries returns how many entries are stored for userID.
	CountEntries(ctx context.Context, userID string) (int, error)

	IsBanned(ctx context.Context, userID string) (bool, error)
	Ban(ctx context.Context, userID string) error
	Unban(ctx context.Context, userID string) error
	ListBanned(ctx context.Context) ([]string, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) AppendEntry(ctx context.Context, entry *ConversationEntry) error {
	if entry == nil {
		return errors.New("cannot save nil conversation entry")
	}
	if entry.UserID == "" {
		return errors.New("conversation entry must have a user_id")
	}
	if entry.Direction != DirectionInbound && entry.Direction != DirectionOutbound {
		return fmt.Errorf("invalid conversation direction %q", entry.Direction)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = nowUTC()
	}

	const query = `
        INSERT INTO conversation_entries (user_id, direction, text, timestamp)
        VALUES (:user_id, :direction, :text, :timestamp);
    `
	result, err := s.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("failed to append conversation entry for %s: %w", entry.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID for conversation entry", "user_id", entry.UserID, "error", err)
	}
	return nil
}

func (s *sqlxStore) GetHistory(ctx context.Context, userID string, limit int) ([]ConversationEntry, error) {
	if userID == "" {
		return nil, errors.New("user_id cannot be empty")
	}
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as no limit.
	}

	const query = `
        SELECT id, user_id, direction, text, timestamp
        FROM conversation_entries
        WHERE user_id = ?
        ORDER BY id DESC
        LIMIT ?;
    `
	entries := []ConversationEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", userID, err)
	}
	slices.Reverse(entries)
	return entries, nil
}

func (s *sqlxStore) CountEntries(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM conversation_entries WHERE user_id = ?;`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries for %s: %w", userID, err)
	}
	return count, nil
}

func (s *sqlxStore) IsBanned(ctx context.Context, userID string) (bool, error) {
	var banned bool
	err := s.db.GetContext(ctx, &banned, `SELECT EXISTS (SELECT 1 FROM banned_users WHERE user_id = ?);`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check ban for %s: %w", userID, err)
	}
	return banned, nil
}

func (s *sqlxStore) Ban(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user_id cannot be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO banned_users (user_id, created_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING;`,
		userID, nowUTC())
	if err != nil {
		return fmt.Errorf("failed to ban %s: %w", userID, err)
	}
	s.logger.InfoContext(ctx, "User banned", "user_id", userID)
	return nil
}

func (s *sqlxStore) Unban(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM banned_users WHERE user_id = ?;`, userID); err != nil {
		return fmt.Errorf("failed to unban %s: %w", userID, err)
	}
	s.logger.InfoContext(ctx, "User unbanned", "user_id", userID)
	return nil
}

func (s *sqlxStore) ListBanned(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM banned_users ORDER BY created_at, user_id;`); err != nil {
		return nil, fmt.Errorf("failed to list banned users: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance (VACUUM)")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
