package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/shulebot/internal/bot/tasks"
	"github.com/edgard/shulebot/internal/config"
	"github.com/edgard/shulebot/internal/logger"
)

// Scheduler runs the configured maintenance tasks on cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc

	mu      sync.Mutex
	running bool
	// ctx is handed to every task and cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for the tasks in taskMap. Only tasks
// that are also enabled in cfg get scheduled.
func NewScheduler(log *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}

	s, err := gocron.NewScheduler(gocron.WithLogger(logger.Gocron(log)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    log.With("component", "scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers every enabled task and starts ticking. A task with a bad
// schedule is logged and skipped so it cannot keep the others from running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}

	scheduled := 0
	if s.cfg != nil {
		for name, taskCfg := range s.cfg.Tasks {
			if s.schedule(name, taskCfg) {
				scheduled++
			}
		}
	}
	if scheduled == 0 {
		s.logger.Warn("No scheduler tasks scheduled")
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduled)
	return nil
}

func (s *Scheduler) schedule(name string, taskCfg config.TaskConfig) bool {
	log := s.logger.With("task_name", name)

	if !taskCfg.Enabled {
		log.Info("Skipping disabled task")
		return false
	}
	taskFunc, ok := s.taskMap[name]
	if !ok {
		log.Warn("Task configured but not registered, skipping")
		return false
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(taskCfg.Schedule, true),
		gocron.NewTask(s.runTask, s.ctx, name, taskFunc),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Error("Failed to schedule task", "schedule", taskCfg.Schedule, "error", err)
		return false
	}

	log.Info("Scheduled task", "schedule", taskCfg.Schedule)
	return true
}

func (s *Scheduler) runTask(ctx context.Context, name string, task tasks.ScheduledTaskFunc) {
	start := time.Now()
	s.logger.Debug("Running scheduled task", "task_name", name)
	if err := task(ctx); err != nil {
		s.logger.Error("Scheduled task failed", "task_name", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Finished scheduled task", "task_name", name, "duration", time.Since(start))
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	err := s.scheduler.Shutdown()
	s.running = false
	if err != nil {
		return fmt.Errorf("scheduler shutdown failed: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
