// Package main contains the entrypoint for the shulebot school assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/edgard/shulebot/internal/ai"
	"github.com/edgard/shulebot/internal/bot"
	"github.com/edgard/shulebot/internal/bot/handlers"
	"github.com/edgard/shulebot/internal/bot/tasks"
	"github.com/edgard/shulebot/internal/config"
	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/httpapi"
	"github.com/edgard/shulebot/internal/knowledge"
	"github.com/edgard/shulebot/internal/logger"
	"github.com/edgard/shulebot/internal/mpesa"
	"github.com/edgard/shulebot/internal/payments"
	"github.com/edgard/shulebot/internal/router"
	"github.com/edgard/shulebot/internal/telegram"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("shulebot failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shulebot",
		Short:         "School chat assistant with M-Pesa fee payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(*cobra.Command, []string) error {
				return migrate(configPath)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Load and validate the configuration, then exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return checkConfig(cmd, configPath)
			},
		},
	)
	return root
}

func migrate(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	database.CloseDB(db)
	slog.Info("Database is up to date", "path", cfg.Database.Path)
	return nil
}

func checkConfig(cmd *cobra.Command, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config ok: ai=%s/%s mpesa=%s(enabled=%t) telegram=%t http=%s\n",
		cfg.AI.Provider, cfg.AI.Model, cfg.MPesa.Environment, cfg.MPesa.Enabled, cfg.Telegram.Enabled, cfg.HTTP.Addr)
	return nil
}

// serve wires every component and blocks until shutdown.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "version", Version)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database %s: %w", cfg.Database.Path, err)
	}
	defer database.CloseDB(db)

	store := database.NewStore(db, log)
	ledger := database.NewLedger(db, log)
	reconciler := payments.NewReconciler(ledger, log)

	completer, err := ai.NewCompleter(ctx, cfg.AI, log)
	if err != nil {
		return fmt.Errorf("failed to initialize completion backend: %w", err)
	}

	var gateway router.Gateway
	if cfg.MPesa.Enabled {
		client, err := mpesa.NewClient(cfg.MPesa, log)
		if err != nil {
			return fmt.Errorf("failed to initialize M-Pesa client: %w", err)
		}
		gateway = client
	} else {
		log.Warn("M-Pesa disabled, /pay will answer with the payment failure message")
	}

	rt, err := router.New(router.Deps{
		Store:     store,
		Payments:  reconciler,
		Knowledge: knowledge.NewFileSource(cfg.Knowledge.Path, log),
		Gateway:   gateway,
		Completer: completer,
		Logger:    log,
	}, router.Settings{
		Bot:            cfg.Bot,
		HistoryLimit:   cfg.Database.HistoryLimit,
		GatewayTimeout: cfg.MPesa.Timeout,
		AITimeout:      cfg.AI.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	server, err := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Router:     rt,
		Reconciler: reconciler,
		Ledger:     ledger,
		Store:      store,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	var tg *tgbot.Bot
	if cfg.Telegram.Enabled {
		if tg, err = newTelegram(ctx, cfg, rt, log); err != nil {
			return fmt.Errorf("failed to start Telegram transport: %w", err)
		}
	} else {
		log.Info("Telegram transport disabled")
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:     log,
		Store:      store,
		Ledger:     ledger,
		StaleAfter: cfg.MPesa.StaleAfter,
	}))
	if err != nil {
		return err
	}

	log.Info("Starting shulebot")
	if err := bot.NewBot(log, server, tg, sched).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		// Let logs flush before exiting.
		time.Sleep(time.Second)
		return err
	}

	log.Info("shulebot stopped gracefully")
	return nil
}

func newTelegram(ctx context.Context, cfg *config.Config, rt handlers.Router, log *slog.Logger) (*tgbot.Bot, error) {
	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Router: rt,
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log), handlers.IgnoreBots(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewMessageHandler(hDeps)),
	)
	if err != nil {
		return nil, err
	}

	// Group mention detection needs the bot's own identity.
	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		return nil, err
	}
	return tg, nil
}
