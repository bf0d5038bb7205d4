package tasks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/logger"
)

func newTestDeps(t *testing.T, log *slog.Logger) TaskDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return TaskDeps{
		Logger:     log,
		Store:      database.NewStore(db, logger.Discard()),
		Ledger:     database.NewLedger(db, logger.Discard()),
		StaleAfter: 30 * time.Minute,
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()
	tasks := RegisterAllTasks(newTestDeps(t, logger.Discard()))
	require.Len(t, tasks, 2)
	require.Contains(t, tasks, "sql_maintenance")
	require.Contains(t, tasks, "stale_payments")
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t, logger.Discard())
	require.NoError(t, newSQLMaintenanceTask(deps)(context.Background()))
}

func TestStalePaymentsTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var buf bytes.Buffer
	deps := newTestDeps(t, slog.New(slog.NewTextHandler(&buf, nil)))

	for _, rec := range []database.PaymentRecord{
		{CheckoutRequestID: "C1", Phone: "254712345678", Amount: "100", Status: database.StatusInitiated},
		{CheckoutRequestID: "C2", Phone: "254712345678", Amount: "200", Status: database.StatusInitiated},
		{CheckoutRequestID: "C3", Status: database.StatusSuccess},
	} {
		_, err := deps.Ledger.Upsert(ctx, &rec)
		require.NoError(t, err)
	}

	deps.Now = time.Now
	require.NoError(t, newStalePaymentsTask(deps)(ctx))
	require.NotContains(t, buf.String(), "awaiting callback")
	require.Contains(t, buf.String(), "stale=0")

	buf.Reset()
	deps.Now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, newStalePaymentsTask(deps)(ctx))
	require.Equal(t, 2, strings.Count(buf.String(), "Payment still awaiting callback"))
	require.Contains(t, buf.String(), "pending=2 stale=2")
}

type failingLedger struct {
	database.Ledger
}

func (failingLedger) ListByStatus(context.Context, database.PaymentStatus) ([]database.PaymentRecord, error) {
	return nil, errors.New("database is locked")
}

func TestStalePaymentsTaskLedgerError(t *testing.T) {
	t.Parallel()
	deps := TaskDeps{Logger: logger.Discard(), Ledger: failingLedger{}, Now: time.Now}
	require.Error(t, newStalePaymentsTask(deps)(context.Background()))
}
