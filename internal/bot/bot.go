// Package bot wires the long-running components of shulebot together and
// manages their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"
)

// Server is a blocking component that stops when its context is cancelled.
type Server interface {
	Run(ctx context.Context) error
}

// Bot runs the HTTP API, the optional Telegram listener and the scheduler.
type Bot struct {
	logger    *slog.Logger
	server    Server
	tgBot     *tgbot.Bot
	scheduler *Scheduler
}

// NewBot creates the orchestrator. tg may be nil when the Telegram transport
// is disabled.
func NewBot(logger *slog.Logger, server Server, tg *tgbot.Bot, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		server:    server,
		tgBot:     tg,
		scheduler: scheduler,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails, in which case the others are stopped too.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.server.Run(gCtx)
	})

	if b.tgBot != nil {
		g.Go(func() error {
			b.logger.Info("Starting Telegram listener")
			b.tgBot.Start(gCtx)
			if gCtx.Err() == nil {
				return errors.New("telegram listener stopped unexpectedly")
			}
			b.logger.Info("Telegram listener stopped")
			return nil
		})
	}

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully")
	return nil
}
