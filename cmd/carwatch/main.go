package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbot "github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"carwatch/internal/bot"
	"carwatch/internal/config"
	"carwatch/internal/extract"
	"carwatch/internal/fetcher"
	"carwatch/internal/monitor"
	"carwatch/internal/notify"
	"carwatch/internal/storage"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"poll_interval": cfg.PollInterval,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	tg, err := tgbot.New(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	pageFetcher := fetcher.NewRodFetcher(log, cfg.PageTimeout, cfg.FetchPacing)
	engine := extract.NewEngine(log)
	notifier := notify.NewTelegramNotifier(tg, log)

	scheduler := monitor.NewScheduler(repo, pageFetcher, engine, notifier, monitor.Options{
		PollInterval:   cfg.PollInterval,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		BatchLimits: notify.Limits{
			MaxItems: cfg.BatchMaxItems,
			MaxChars: cfg.BatchMaxChars,
		},
		InterBatchDelay:        cfg.InterBatchDelay,
		SeenRetention:          cfg.SeenRetention,
		SubscriptionInactivity: cfg.SubscriptionInactivity,
		OnDemandTimeout:        cfg.OnDemandTimeout,
	}, log)

	botHandler := bot.NewHandler(tg, repo, scheduler, log)

	// --- Application Startup ---
	log.Info("Starting carwatch...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	go botHandler.Start(ctx)

	log.Info("carwatch is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down carwatch...")
	scheduler.Stop()
	stop()

	log.Info("carwatch shut down gracefully.")
}
