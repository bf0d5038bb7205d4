package payments_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/logger"
	"github.com/edgard/shulebot/internal/mpesa"
	"github.com/edgard/shulebot/internal/payments"
)

func newReconciler(t *testing.T) (*payments.Reconciler, database.Ledger) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	ledger := database.NewLedger(db, logger.Discard())
	return payments.NewReconciler(ledger, logger.Discard()), ledger
}

func nestedCallback(checkoutID string, code int) []byte {
	return fmt.Appendf(nil, `{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":%q,
		"ResultCode":%d,"ResultDesc":"done","CallbackMetadata":{"Item":[
		{"Name":"Amount","Value":500},{"Name":"MpesaReceiptNumber","Value":"RCPT1"},
		{"Name":"TransactionDate","Value":20240305140709},{"Name":"PhoneNumber","Value":254712345678}]}}}}`,
		checkoutID, code)
}

func registration(checkoutID string) mpesa.Registration {
	return mpesa.Registration{
		MerchantRequestID: "M1",
		CheckoutRequestID: checkoutID,
		Phone:             "254712345678",
		Amount:            "500",
	}
}

func TestInitiationThenCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, ledger := newReconciler(t)

	initiated, err := rec.RecordInitiation(ctx, registration("C1"), `{"ResponseCode":"0"}`)
	require.NoError(t, err)
	require.Equal(t, database.StatusInitiated, initiated.Status)

	stored, err := rec.Reconcile(ctx, nestedCallback("C1", 0))
	require.NoError(t, err)
	require.Equal(t, initiated.ID, stored.ID)
	require.Equal(t, database.StatusSuccess, stored.Status)
	require.Equal(t, "RCPT1", stored.ReceiptNumber)
	require.Equal(t, "20240305140709", stored.TransactionDate)
	require.False(t, stored.Orphan)

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestReplayedCallbackIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, ledger := newReconciler(t)

	_, err := rec.RecordInitiation(ctx, registration("C1"), "")
	require.NoError(t, err)

	first, err := rec.Reconcile(ctx, nestedCallback("C1", 0))
	require.NoError(t, err)
	second, err := rec.Reconcile(ctx, nestedCallback("C1", 0))
	require.NoError(t, err)
	require.Equal(t, first, second)

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCallbackForUnknownKeyCreatesOrphan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, ledger := newReconciler(t)

	stored, err := rec.Reconcile(ctx, nestedCallback("C2", 1032))
	require.NoError(t, err)
	require.Equal(t, "C2", stored.CheckoutRequestID)
	require.Equal(t, database.StatusFailed, stored.Status)
	require.Equal(t, "1032", stored.ResultCode)
	require.True(t, stored.Orphan)

	// A late initiation must not move the record back to initiated.
	late, err := rec.RecordInitiation(ctx, registration("C2"), `{"ResponseCode":"0"}`)
	require.NoError(t, err)
	require.Equal(t, database.StatusFailed, late.Status)
	require.Equal(t, stored.ID, late.ID)

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCallbackWithoutCheckoutID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, ledger := newReconciler(t)

	stored, err := rec.Reconcile(ctx, []byte(`{"ResultCode":0,"MpesaReceiptNumber":"R9"}`))
	require.NoError(t, err)
	require.Empty(t, stored.CheckoutRequestID)
	require.Equal(t, database.StatusSuccess, stored.Status)
	require.True(t, stored.Orphan)

	malformed, err := rec.Reconcile(ctx, []byte(`{not json`))
	require.NoError(t, err)
	require.Equal(t, database.StatusFailed, malformed.Status)
	require.Equal(t, `{not json`, malformed.RawCallbackPayload)
	require.True(t, malformed.Orphan)

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRecordInitiationValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, _ := newReconciler(t)

	tests := []struct {
		name string
		reg  mpesa.Registration
	}{
		{"missing checkout id", mpesa.Registration{Phone: "254712345678"}},
		{"missing phone", mpesa.Registration{CheckoutRequestID: "C1"}},
	}
	for _, tt := range tests {
		_, err := rec.RecordInitiation(ctx, tt.reg, "")
		require.ErrorIs(t, err, payments.ErrInvalidRegistration, tt.name)
	}
}

func TestConcurrentInitiationAndCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, ledger := newReconciler(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range n {
		id := fmt.Sprintf("C%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := rec.RecordInitiation(ctx, registration(id), "")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := rec.Reconcile(ctx, nestedCallback(id, 0))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)
	for _, p := range all {
		require.Equal(t, database.StatusSuccess, p.Status, p.CheckoutRequestID)
		require.Equal(t, "500", p.Amount)
	}
}
