// Command timesheetd runs the work-hour tracking daemon: the REST API,
// the Telegram bot front end and the background workers over one SQLite
// database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/timesheet-app/timesheet/internal/analytics"
	"github.com/timesheet-app/timesheet/internal/api"
	"github.com/timesheet-app/timesheet/internal/bot"
	"github.com/timesheet-app/timesheet/internal/config"
	"github.com/timesheet-app/timesheet/internal/daemon"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"github.com/timesheet-app/timesheet/internal/mnemonic"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
	"github.com/timesheet-app/timesheet/internal/tracking"
	"github.com/timesheet-app/timesheet/internal/workers"
)

func main() {
	if err := run(); err != nil {
		logger := log.Base()
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("main")

	store, err := sqlite.Open(cfg.DatabasePath, sqlite.DefaultConfig())
	if err != nil {
		return err
	}
	logger.Info().Str("path", cfg.DatabasePath).Msg("database opened")

	trackingSvc := tracking.NewService(store)
	analyticsSvc := analytics.NewService(store)
	mnemonicSvc := mnemonic.NewService(store)

	var (
		notifier workers.Notifier = workers.NopNotifier{}
		runners  []daemon.NamedRunner
	)
	if cfg.BotEnabled {
		dispatcher := bot.NewDispatcher(store, trackingSvc, mnemonicSvc)
		telegram, err := bot.NewTelegram(cfg.TelegramBotToken, dispatcher)
		if err != nil {
			return err
		}
		notifier = telegram
		runners = append(runners, daemon.NamedRunner{Name: "telegram", Runner: telegram})
	}

	coordinator := workers.NewCoordinator(
		workers.NewAutoShutdown(store, notifier, nil),
		workers.NewLunchReminder(store, notifier, nil),
		workers.NewMnemonicSweeper(mnemonicSvc),
	)
	runners = append(runners, daemon.NamedRunner{Name: "workers", Runner: coordinator})

	tokens := api.NewTokenIssuer([]byte(cfg.JWTSecretKey), cfg.JWTExpiration)
	server := api.NewServer(store, trackingSvc, analyticsSvc, mnemonicSvc, tokens, api.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	daemonCfg := daemon.DefaultConfig()
	daemonCfg.ListenAddr = cfg.Listen
	daemonCfg.MetricsAddr = cfg.MetricsListen
	daemonCfg.ShutdownTimeout = cfg.ShutdownGrace

	manager := daemon.NewManager(daemonCfg, server.Router(), metrics.Handler(), runners...)
	manager.RegisterShutdownHook("store", func(context.Context) error {
		return store.Close()
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return manager.Start(ctx)
}
