package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Ledger defines payment record operations. Upsert is the only write path.
type Ledger interface {
	// Upsert merges rec into the record sharing its CheckoutRequestID, or
	// inserts it when none exists. It returns the stored state.
	Upsert(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, error)

	// GetPayment returns the record for checkoutRequestID or ErrNotFound.
	GetPayment(ctx context.Context, checkoutRequestID string) (*PaymentRecord, error)

	// ListPayments returns the whole ledger, newest first.
	ListPayments(ctx context.Context) ([]PaymentRecord, error)

	// ListByStatus returns records in the given status, oldest first.
	ListByStatus(ctx context.Context, status PaymentStatus) ([]PaymentRecord, error)
}

const paymentColumns = `
    id, merchant_request_id, COALESCE(checkout_request_id, '') AS checkout_request_id,
    phone, amount, status, result_code, result_desc, receipt_number, transaction_date,
    raw_initiation_payload, raw_callback_payload, orphan, created_at, updated_at`

type sqlxLedger struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewLedger creates a new Ledger backed by sqlx.
func NewLedger(db *sqlx.DB, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlxLedger{
		db:     db,
		logger: logger.With("component", "ledger"),
	}
}

func (l *sqlxLedger) Upsert(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, error) {
	if rec == nil {
		return nil, errors.New("cannot upsert nil payment record")
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("invalid payment status %q", rec.Status)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				l.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var stored *PaymentRecord
	if rec.CheckoutRequestID != "" {
		existing := PaymentRecord{}
		err := tx.GetContext(ctx, &existing,
			`SELECT `+paymentColumns+` FROM payments WHERE checkout_request_id = ?;`, rec.CheckoutRequestID)
		switch {
		case err == nil:
			stored = &existing
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, fmt.Errorf("failed to look up payment %s: %w", rec.CheckoutRequestID, err)
		}
	}

	var result PaymentRecord
	if stored == nil {
		result, err = l.insert(ctx, tx, *rec)
	} else {
		merged := mergePayment(*stored, *rec)
		if merged == *stored {
			l.logger.DebugContext(ctx, "Payment unchanged, skipping write", "checkout_request_id", rec.CheckoutRequestID)
			result = merged
		} else {
			result, err = l.update(ctx, tx, merged)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	l.logger.InfoContext(ctx, "Payment upserted",
		"checkout_request_id", result.CheckoutRequestID,
		"status", result.Status,
		"orphan", result.Orphan)
	return &result, nil
}

func (l *sqlxLedger) insert(ctx context.Context, tx *sqlx.Tx, rec PaymentRecord) (PaymentRecord, error) {
	now := nowUTC()
	rec.ID = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	// Only a callback creates a record without a prior initiation.
	rec.Orphan = rec.Status.Terminal()

	const query = `
        INSERT INTO payments (
            merchant_request_id, checkout_request_id, phone, amount, status,
            result_code, result_desc, receipt_number, transaction_date,
            raw_initiation_payload, raw_callback_payload, orphan, created_at, updated_at
        ) VALUES (
            :merchant_request_id, NULLIF(:checkout_request_id, ''), :phone, :amount, :status,
            :result_code, :result_desc, :receipt_number, :transaction_date,
            :raw_initiation_payload, :raw_callback_payload, :orphan, :created_at, :updated_at
        );
    `
	res, err := tx.NamedExecContext(ctx, query, rec)
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("failed to insert payment %q: %w", rec.CheckoutRequestID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("failed to read inserted payment id: %w", err)
	}

	var stored PaymentRecord
	if err := tx.GetContext(ctx, &stored, `SELECT `+paymentColumns+` FROM payments WHERE id = ?;`, id); err != nil {
		return PaymentRecord{}, fmt.Errorf("failed to reload payment %d: %w", id, err)
	}
	return stored, nil
}

func (l *sqlxLedger) update(ctx context.Context, tx *sqlx.Tx, rec PaymentRecord) (PaymentRecord, error) {
	rec.UpdatedAt = nowUTC()

	const query = `
        UPDATE payments SET
            merchant_request_id = :merchant_request_id,
            phone = :phone,
            amount = :amount,
            status = :status,
            result_code = :result_code,
            result_desc = :result_desc,
            receipt_number = :receipt_number,
            transaction_date = :transaction_date,
            raw_initiation_payload = :raw_initiation_payload,
            raw_callback_payload = :raw_callback_payload,
            orphan = :orphan,
            updated_at = :updated_at
        WHERE id = :id;
    `
	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return PaymentRecord{}, fmt.Errorf("failed to update payment %s: %w", rec.CheckoutRequestID, err)
	}

	var stored PaymentRecord
	if err := tx.GetContext(ctx, &stored, `SELECT `+paymentColumns+` FROM payments WHERE id = ?;`, rec.ID); err != nil {
		return PaymentRecord{}, fmt.Errorf("failed to reload payment %d: %w", rec.ID, err)
	}
	return stored, nil
}

// mergePayment overlays the non-empty fields of in onto stored.
//
// An initiation (status initiated) never moves a terminal record back and
// its phone and amount are authoritative. A callback's phone and amount only
// fill blanks; its outcome fields are last-write-wins.
func mergePayment(stored, in PaymentRecord) PaymentRecord {
	out := stored

	setIfPresent(&out.MerchantRequestID, in.MerchantRequestID)

	if in.Status == StatusInitiated {
		setIfPresent(&out.Phone, in.Phone)
		setIfPresent(&out.Amount, in.Amount)
		setIfPresent(&out.RawInitiationPayload, in.RawInitiationPayload)
		out.Orphan = false
		return out
	}

	if out.Phone == "" {
		out.Phone = in.Phone
	}
	if out.Amount == "" {
		out.Amount = in.Amount
	}
	out.Status = in.Status
	setIfPresent(&out.ResultCode, in.ResultCode)
	setIfPresent(&out.ResultDesc, in.ResultDesc)
	setIfPresent(&out.ReceiptNumber, in.ReceiptNumber)
	setIfPresent(&out.TransactionDate, in.TransactionDate)
	setIfPresent(&out.RawCallbackPayload, in.RawCallbackPayload)
	return out
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (l *sqlxLedger) GetPayment(ctx context.Context, checkoutRequestID string) (*PaymentRecord, error) {
	if checkoutRequestID == "" {
		return nil, ErrNotFound
	}
	var rec PaymentRecord
	err := l.db.GetContext(ctx, &rec, `SELECT `+paymentColumns+` FROM payments WHERE checkout_request_id = ?;`, checkoutRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", checkoutRequestID, err)
	}
	return &rec, nil
}

func (l *sqlxLedger) ListPayments(ctx context.Context) ([]PaymentRecord, error) {
	records := []PaymentRecord{}
	if err := l.db.SelectContext(ctx, &records, `SELECT `+paymentColumns+` FROM payments ORDER BY id DESC;`); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return records, nil
}

func (l *sqlxLedger) ListByStatus(ctx context.Context, status PaymentStatus) ([]PaymentRecord, error) {
	records := []PaymentRecord{}
	err := l.db.SelectContext(ctx, &records,
		`SELECT `+paymentColumns+` FROM payments WHERE status = ? ORDER BY id ASC;`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s payments: %w", status, err)
	}
	return records, nil
}
