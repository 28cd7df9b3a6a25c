package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/canopylabs/canopy/internal/adapters/http"
	natsadapter "github.com/canopylabs/canopy/internal/adapters/nats"
	"github.com/canopylabs/canopy/internal/adapters/postgres"
	"github.com/canopylabs/canopy/internal/adapters/push"
	"github.com/canopylabs/canopy/internal/adapters/storage"
	"github.com/canopylabs/canopy/internal/adapters/valkey"
	"github.com/canopylabs/canopy/internal/core/ports"
	"github.com/canopylabs/canopy/internal/core/usecases"
	"github.com/canopylabs/canopy/internal/pkg/config"
	"github.com/canopylabs/canopy/internal/pkg/logging"
	"github.com/canopylabs/canopy/internal/pkg/metrics"
	"github.com/canopylabs/canopy/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("canopy-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache + device position store
	var location *valkey.LocationProvider
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		location = valkey.NewLocationProvider(cache)
	}

	// NATS
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer publisher.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Photo store and push gateway
	store := storage.New(cfg.Storage.Endpoint, cfg.Storage.Bucket, cfg.Storage.PublicBase, cfg.Storage.Token)
	notifier := push.New(cfg.Push.Endpoint, cfg.Push.APIKey)
	_ = notifier // reminder dispatch runs in cmd/dispatcher

	// Repos
	projectRepo := postgres.NewProjectRepo(db)
	pinRepo := postgres.NewPinRepo(db)
	noteRepo := postgres.NewNoteRepo(db)
	reminderRepo := postgres.NewReminderRepo(db)

	// Use cases
	projectSvc := usecases.NewProjectService(projectRepo, cache)
	pinSvc := usecases.NewPinService(pinRepo, noteRepo, cache, publisher)
	reminderSvc := usecases.NewReminderService(reminderRepo, pinRepo, nil, publisher)
	pipeline := usecases.NewPinPipeline(store, pinRepo, publisher)
	var locPort ports.LocationProvider
	if location != nil {
		locPort = location
	}
	autoCenter := usecases.NewAutoCenterService(pinRepo, locPort)

	deps := &http.Dependencies{
		Projects:   projectSvc,
		Pins:       pinSvc,
		Reminders:  reminderSvc,
		Pipeline:   pipeline,
		AutoCenter: autoCenter,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
		Location:   location,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    32 * 1024 * 1024, // photo uploads ride in the request body
		AppName:      "Canopy API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.canopylabs.app",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Export database pool stats alongside request metrics.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
