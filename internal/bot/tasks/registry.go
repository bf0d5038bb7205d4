package tasks

import (
	"context"
	"time"
)

// ScheduledTaskFunc is the signature of every scheduled task. It should
// honour ctx cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every task keyed by the name used in the
// scheduler.tasks config section.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	tasks := map[string]ScheduledTaskFunc{
		"sql_maintenance": newSQLMaintenanceTask(deps),
		"stale_payments":  newStalePaymentsTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
