package database_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/logger"
)

func initiation(checkoutID string) *database.PaymentRecord {
	return &database.PaymentRecord{
		MerchantRequestID:    "M1",
		CheckoutRequestID:    checkoutID,
		Phone:                "254712345678",
		Amount:               "500",
		Status:               database.StatusInitiated,
		RawInitiationPayload: `{"ResponseCode":"0"}`,
	}
}

func successCallback(checkoutID string) *database.PaymentRecord {
	return &database.PaymentRecord{
		MerchantRequestID:  "M1",
		CheckoutRequestID:  checkoutID,
		Phone:              "254799999999",
		Amount:             "1",
		Status:             database.StatusSuccess,
		ResultCode:         "0",
		ResultDesc:         "The service request is processed successfully.",
		ReceiptNumber:      "NLJ7RT61SV",
		TransactionDate:    "20191219102115",
		RawCallbackPayload: `{"Body":{}}`,
	}
}

func TestLedgerInitiationThenCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	rec, err := ledger.Upsert(ctx, initiation("C1"))
	require.NoError(t, err)
	require.Equal(t, database.StatusInitiated, rec.Status)
	require.False(t, rec.Orphan)
	require.NotZero(t, rec.ID)

	updated, err := ledger.Upsert(ctx, successCallback("C1"))
	require.NoError(t, err)
	require.Equal(t, rec.ID, updated.ID)
	require.Equal(t, database.StatusSuccess, updated.Status)
	require.Equal(t, "NLJ7RT61SV", updated.ReceiptNumber)
	require.Equal(t, "254712345678", updated.Phone, "initiation phone is authoritative")
	require.Equal(t, "500", updated.Amount, "initiation amount is authoritative")
	require.Equal(t, `{"ResponseCode":"0"}`, updated.RawInitiationPayload)
	require.False(t, updated.Orphan)

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestLedgerReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	_, err := ledger.Upsert(ctx, initiation("C1"))
	require.NoError(t, err)
	first, err := ledger.Upsert(ctx, successCallback("C1"))
	require.NoError(t, err)
	second, err := ledger.Upsert(ctx, successCallback("C1"))
	require.NoError(t, err)

	require.Equal(t, *first, *second)

	stored, err := ledger.GetPayment(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, first.UpdatedAt.UnixNano(), stored.UpdatedAt.UnixNano())

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestLedgerCallbackBeforeInitiation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	orphan, err := ledger.Upsert(ctx, successCallback("C2"))
	require.NoError(t, err)
	require.True(t, orphan.Orphan)
	require.Equal(t, database.StatusSuccess, orphan.Status)
	require.Equal(t, "254799999999", orphan.Phone)

	late, err := ledger.Upsert(ctx, initiation("C2"))
	require.NoError(t, err)
	require.Equal(t, orphan.ID, late.ID)
	require.Equal(t, database.StatusSuccess, late.Status, "status must not regress")
	require.Equal(t, "254712345678", late.Phone)
	require.Equal(t, "500", late.Amount)
	require.False(t, late.Orphan)
}

func TestLedgerTerminalLastWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	_, err := ledger.Upsert(ctx, successCallback("C3"))
	require.NoError(t, err)

	failed, err := ledger.Upsert(ctx, &database.PaymentRecord{
		CheckoutRequestID: "C3",
		Status:            database.StatusFailed,
		ResultCode:        "1032",
		ResultDesc:        "Request cancelled by user",
	})
	require.NoError(t, err)
	require.Equal(t, database.StatusFailed, failed.Status)
	require.Equal(t, "1032", failed.ResultCode)
	require.Equal(t, "NLJ7RT61SV", failed.ReceiptNumber, "absent fields keep their stored value")
}

func TestLedgerMissingCorrelationID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	for range 2 {
		rec, err := ledger.Upsert(ctx, &database.PaymentRecord{
			Status:             database.StatusFailed,
			RawCallbackPayload: "not json",
		})
		require.NoError(t, err)
		require.Empty(t, rec.CheckoutRequestID)
		require.True(t, rec.Orphan)
	}

	all, err := ledger.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = ledger.GetPayment(ctx, "")
	require.ErrorIs(t, err, database.ErrNotFound)
	_, err = ledger.GetPayment(ctx, "missing")
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestLedgerRejectsInvalidStatus(t *testing.T) {
	t.Parallel()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	_, err := ledger.Upsert(context.Background(), &database.PaymentRecord{CheckoutRequestID: "C9", Status: "pending"})
	require.Error(t, err)
	_, err = ledger.Upsert(context.Background(), nil)
	require.Error(t, err)
}

func TestLedgerConcurrentUpserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := successCallback("C4")
			if i%2 == 0 {
				rec = initiation("C4")
			}
			_, err := ledger.Upsert(ctx, rec)
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
	require.Len(t, all, 1)
	require.Equal(t, database.StatusSuccess, all[0].Status)
	require.Equal(t, "254712345678", all[0].Phone)
}

func TestLedgerListByStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := database.NewLedger(newTestDB(t), logger.Discard())

	_, err := ledger.Upsert(ctx, initiation("A"))
	require.NoError(t, err)
	_, err = ledger.Upsert(ctx, initiation("B"))
	require.NoError(t, err)
	_, err = ledger.Upsert(ctx, successCallback("B"))
	require.NoError(t, err)

	pending, err := ledger.ListByStatus(ctx, database.StatusInitiated)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "A", pending[0].CheckoutRequestID)
}
