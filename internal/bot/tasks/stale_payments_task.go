package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/shulebot/internal/database"
)

// newStalePaymentsTask creates the task that reports initiations whose
// callback has not arrived within StaleAfter. It only logs; a late callback
// still reconciles normally.
func newStalePaymentsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "stale_payments")

	return func(ctx context.Context) error {
		pending, err := deps.Ledger.ListByStatus(ctx, database.StatusInitiated)
		if err != nil {
			return fmt.Errorf("failed to list initiated payments: %w", err)
		}

		cutoff := deps.Now().Add(-deps.StaleAfter)
		stale := 0
		for _, rec := range pending {
			if !rec.CreatedAt.Before(cutoff) {
				continue
			}
			stale++
			log.WarnContext(ctx, "Payment still awaiting callback",
				"checkout_request_id", rec.CheckoutRequestID,
				"phone", rec.Phone,
				"amount", rec.Amount,
				"age", deps.Now().Sub(rec.CreatedAt).Round(time.Second))
		}

		log.InfoContext(ctx, "Stale payment check completed", "pending", len(pending), "stale", stale)
		return nil
	}
}
