// Package payments merges STK push initiations and Daraja callbacks into the
// payment ledger.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/mpesa"
)

// ErrInvalidRegistration wraps validation failures of a register-init payload.
var ErrInvalidRegistration = errors.New("invalid registration")

// Reconciler is the single entry point for ledger writes coming from the
// payment flow. It may be called concurrently from the chat path and the
// callback endpoint; the ledger serializes the read-merge-write.
type Reconciler struct {
	ledger   database.Ledger
	validate *validator.Validate
	log      *slog.Logger
}

// NewReconciler creates a Reconciler writing to ledger.
func NewReconciler(ledger database.Ledger, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		ledger:   ledger,
		validate: validator.New(),
		log:      log.With("component", "reconciler"),
	}
}

// Reconcile stores the outcome carried by a raw callback body. Bodies that
// cannot be decoded are still stored, as failed orphans holding the raw text.
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte) (*database.PaymentRecord, error) {
	cb, err := mpesa.ParseCallback(raw)
	if err != nil {
		r.log.WarnContext(ctx, "Storing undecodable callback as orphan", "error", err, "bytes", len(raw))
		return r.ledger.Upsert(ctx, &database.PaymentRecord{
			Status:             database.StatusFailed,
			ResultDesc:         "malformed callback",
			RawCallbackPayload: string(raw),
		})
	}

	rec := &database.PaymentRecord{
		MerchantRequestID:  cb.MerchantRequestID,
		CheckoutRequestID:  cb.CheckoutRequestID,
		Phone:              cb.Phone,
		Amount:             cb.Amount,
		Status:             database.StatusFailed,
		ResultCode:         cb.ResultCode,
		ResultDesc:         cb.ResultDesc,
		ReceiptNumber:      cb.ReceiptNumber,
		TransactionDate:    cb.TransactionDate,
		RawCallbackPayload: string(raw),
	}
	if cb.Succeeded() {
		rec.Status = database.StatusSuccess
	}
	if cb.CheckoutRequestID == "" {
		r.log.WarnContext(ctx, "Callback carries no checkout request id", "shape", cb.Shape, "result_code", cb.ResultCode)
	}

	stored, err := r.ledger.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile callback: %w", err)
	}

	r.log.InfoContext(ctx, "Callback reconciled",
		"checkout_request_id", stored.CheckoutRequestID,
		"status", stored.Status,
		"result_code", stored.ResultCode,
		"orphan", stored.Orphan,
		"shape", cb.Shape)
	return stored, nil
}

// RecordInitiation stores an accepted STK push in the initiated state. A
// callback that already landed for the same id keeps its terminal status.
func (r *Reconciler) RecordInitiation(ctx context.Context, reg mpesa.Registration, rawResponse string) (*database.PaymentRecord, error) {
	if err := r.validate.Struct(reg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}

	stored, err := r.ledger.Upsert(ctx, &database.PaymentRecord{
		MerchantRequestID:    reg.MerchantRequestID,
		CheckoutRequestID:    reg.CheckoutRequestID,
		Phone:                reg.Phone,
		Amount:               reg.Amount,
		Status:               database.StatusInitiated,
		RawInitiationPayload: rawResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record initiation: %w", err)
	}

	r.log.InfoContext(ctx, "Initiation recorded",
		"checkout_request_id", stored.CheckoutRequestID,
		"status", stored.Status)
	return stored, nil
}
