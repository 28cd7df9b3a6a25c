package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/canopylabs/canopy/internal/adapters/nats"
	"github.com/canopylabs/canopy/internal/adapters/postgres"
	"github.com/canopylabs/canopy/internal/adapters/push"
	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/pkg/config"
	"github.com/canopylabs/canopy/internal/pkg/logging"
	"github.com/canopylabs/canopy/internal/workflows"
)

// The escalator runs the Temporal worker for reminder escalation and starts
// one workflow per dispatched reminder (consumed from the reminder stream).
func main() {
	cfg, err := config.Load("canopy-escalator")
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

	// Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ReminderEscalationWorkflow)
	w.RegisterActivity(&workflows.EscalationActivities{
		Reminders: postgres.NewReminderRepo(db),
		Pins:      postgres.NewPinRepo(db),
		Projects:  postgres.NewProjectRepo(db),
		Notifier:  push.New(cfg.Push.Endpoint, cfg.Push.APIKey),
	})

	// Start an escalation workflow for every dispatched reminder.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeReminderDue(ctx, func(ctx context.Context, rem *domain.Reminder) error {
		if rem.EscalateAfter <= 0 {
			return nil
		}
		opts := client.StartWorkflowOptions{
			// One escalation per reminder delivery
			ID:        fmt.Sprintf("escalate-%s-%d", rem.ID, rem.DueAt.Unix()),
			TaskQueue: cfg.Temporal.TaskQueue,
		}
		_, err := c.ExecuteWorkflow(ctx, opts, workflows.ReminderEscalationWorkflow, workflows.EscalationInput{
			ReminderID:    rem.ID,
			UserID:        rem.UserID,
			EscalateAfter: rem.EscalateAfter,
		})
		if err != nil {
			slog.Error("start escalation workflow", "reminder", rem.ID, "error", err)
			return err
		}
		slog.Info("escalation scheduled", "reminder", rem.ID, "after", rem.EscalateAfter.String())
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe reminders: %v", err)
	}

	slog.Info("escalator worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
