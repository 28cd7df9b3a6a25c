package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/canopylabs/canopy/internal/adapters/nats"
	"github.com/canopylabs/canopy/internal/adapters/postgres"
	"github.com/canopylabs/canopy/internal/adapters/push"
	"github.com/canopylabs/canopy/internal/core/usecases"
	"github.com/canopylabs/canopy/internal/pkg/config"
	"github.com/canopylabs/canopy/internal/pkg/logging"
	"github.com/canopylabs/canopy/internal/pkg/metrics"
)

const pollInterval = 30 * time.Second

// The dispatcher polls for due care reminders, pushes them to users, and
// publishes each one so the escalator can watch for acknowledgement.
func main() {
	cfg, err := config.Load("canopy-dispatcher")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// NATS
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer publisher.Close()

	// Push gateway
	notifier := push.New(cfg.Push.Endpoint, cfg.Push.APIKey)

	reminderRepo := postgres.NewReminderRepo(db)
	pinRepo := postgres.NewPinRepo(db)
	reminders := usecases.NewReminderService(reminderRepo, pinRepo, notifier, publisher)

	slog.Info("reminder dispatcher starting", "interval", pollInterval.String())

	dispatch := func() {
		runCtx, runCancel := context.WithTimeout(ctx, pollInterval)
		defer runCancel()

		sent, err := reminders.DispatchDue(runCtx, time.Now(), 100)
		if err != nil {
			slog.Error("dispatch failed", "error", err)
			return
		}
		if sent > 0 {
			metrics.RemindersDispatched.Add(float64(sent))
			slog.Info("reminders dispatched", "count", sent)
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Run once immediately
	dispatch()

	for {
		select {
		case <-ticker.C:
			dispatch()
		case <-ctx.Done():
			return
		case sig := <-quit:
			slog.Info("shutting down dispatcher", "signal", sig.String())
			cancel()
			// Give the in-flight dispatch time to finish
			time.Sleep(2 * time.Second)
			return
		}
	}
}
