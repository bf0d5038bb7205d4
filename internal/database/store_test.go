package database_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/logger"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	return db
}

func TestHistoryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := database.NewStore(newTestDB(t), logger.Discard())

	const pairs = 15
	for i := range pairs {
		require.NoError(t, store.AppendEntry(ctx, &database.ConversationEntry{
			UserID: "254712345678@c.us", Direction: database.DirectionInbound, Text: fmt.Sprintf("question %d", i),
		}))
		require.NoError(t, store.AppendEntry(ctx, &database.ConversationEntry{
			UserID: "254712345678@c.us", Direction: database.DirectionOutbound, Text: fmt.Sprintf("answer %d", i),
		}))
	}
	require.NoError(t, store.AppendEntry(ctx, &database.ConversationEntry{
		UserID: "someone-else", Direction: database.DirectionInbound, Text: "hello",
	}))

	all, err := store.GetHistory(ctx, "254712345678@c.us", 0)
	require.NoError(t, err)
	require.Len(t, all, pairs*2)
	for i := range pairs {
		require.Equal(t, fmt.Sprintf("question %d", i), all[2*i].Text)
		require.Equal(t, database.DirectionInbound, all[2*i].Direction)
		require.Equal(t, fmt.Sprintf("answer %d", i), all[2*i+1].Text)
		require.Equal(t, database.DirectionOutbound, all[2*i+1].Direction)
		require.False(t, all[2*i].Timestamp.IsZero())
	}

	recent, err := store.GetHistory(ctx, "254712345678@c.us", 20)
	require.NoError(t, err)
	require.Len(t, recent, 20)
	require.Equal(t, "question 5", recent[0].Text)
	require.Equal(t, "answer 14", recent[19].Text)

	count, err := store.CountEntries(ctx, "254712345678@c.us")
	require.NoError(t, err)
	require.Equal(t, pairs*2, count)

	empty, err := store.GetHistory(ctx, "nobody", 20)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestAppendEntryValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := database.NewStore(newTestDB(t), logger.Discard())

	require.Error(t, store.AppendEntry(ctx, nil))
	require.Error(t, store.AppendEntry(ctx, &database.ConversationEntry{Direction: database.DirectionInbound, Text: "x"}))
	require.Error(t, store.AppendEntry(ctx, &database.ConversationEntry{UserID: "u", Direction: "sideways", Text: "x"}))
}

func TestBanLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := database.NewStore(newTestDB(t), logger.Discard())

	banned, err := store.IsBanned(ctx, "spammer")
	require.NoError(t, err)
	require.False(t, banned)

	require.NoError(t, store.Ban(ctx, "spammer"))
	require.NoError(t, store.Ban(ctx, "spammer"))

	banned, err = store.IsBanned(ctx, "spammer")
	require.NoError(t, err)
	require.True(t, banned)

	ids, err := store.ListBanned(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"spammer"}, ids)

	require.NoError(t, store.Unban(ctx, "spammer"))
	banned, err = store.IsBanned(ctx, "spammer")
	require.NoError(t, err)
	require.False(t, banned)

	require.NoError(t, store.RunSQLMaintenance(ctx))
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"shulebot.db":                          "shulebot.db",
		"file:shulebot.db?_pragma=foo(1)":      "shulebot.db",
		"/var/lib/shule%20bot/data.db?mode=rw": "/var/lib/shule bot/data.db",
	}
	for in, want := range tests {
		require.Equal(t, want, database.ExtractDBNameFromPath(in), in)
	}
}
