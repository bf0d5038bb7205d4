package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/bot/tasks"
	"github.com/edgard/shulebot/internal/config"
	"github.com/edgard/shulebot/internal/logger"
)

type blockingServer struct {
	fail error
}

func (s blockingServer) Run(ctx context.Context) error {
	if s.fail != nil {
		return s.fail
	}
	<-ctx.Done()
	return nil
}

func newTestScheduler(t *testing.T, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) *Scheduler {
	t.Helper()
	s, err := NewScheduler(logger.Discard(), cfg, taskMap)
	require.NoError(t, err)
	return s
}

func TestBotRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	b := NewBot(logger.Discard(), blockingServer{}, nil, newTestScheduler(t, nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBotRunPropagatesServerError(t *testing.T) {
	t.Parallel()

	failure := errors.New("address already in use")
	sched := newTestScheduler(t, nil, nil)
	b := NewBot(logger.Discard(), blockingServer{fail: failure}, nil, sched)

	err := b.Run(context.Background())
	require.ErrorIs(t, err, failure)
	require.False(t, sched.running)
}

func TestSchedulerRunsEnabledTasks(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"every_second": {Enabled: true, Schedule: "* * * * * *"},
		"disabled":     {Enabled: false, Schedule: "* * * * * *"},
		"unregistered": {Enabled: true, Schedule: "* * * * * *"},
		"bad_schedule": {Enabled: true, Schedule: "not a cron"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"every_second": func(context.Context) error {
			ran.Add(1)
			return nil
		},
		"disabled":     func(context.Context) error { panic("disabled task ran") },
		"bad_schedule": func(context.Context) error { return nil },
	}

	s := newTestScheduler(t, cfg, taskMap)
	require.NoError(t, s.Start())
	require.Error(t, s.Start())
	require.Len(t, s.scheduler.Jobs(), 1)

	require.Eventually(t, func() bool { return ran.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestSchedulerCancelsTasksOnStop(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"slow": {Enabled: true, Schedule: "* * * * * *"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"slow": func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	s := newTestScheduler(t, cfg, taskMap)
	require.NoError(t, s.Start())
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	require.NoError(t, s.Stop())
}
