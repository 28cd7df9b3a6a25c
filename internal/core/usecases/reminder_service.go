package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/ports"
)

// ReminderService handles care-reminder scheduling and dispatch.
type ReminderService struct {
	reminders ports.ReminderRepository
	pins      ports.PinRepository
	notifier  ports.NotificationService
	publisher ports.EventPublisher
}

// NewReminderService creates a new ReminderService.
func NewReminderService(
	reminders ports.ReminderRepository,
	pins ports.PinRepository,
	notifier ports.NotificationService,
	publisher ports.EventPublisher,
) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		pins:      pins,
		notifier:  notifier,
		publisher: publisher,
	}
}

// Create validates and persists a reminder.
func (s *ReminderService) Create(ctx context.Context, r *domain.Reminder) error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("reminder title must not be empty")
	}
	if r.UserID == "" {
		return fmt.Errorf("reminder user is required")
	}
	if r.DueAt.IsZero() {
		return fmt.Errorf("reminder due time is required")
	}
	if r.Interval < 0 || r.EscalateAfter < 0 {
		return fmt.Errorf("interval and escalate_after must not be negative")
	}
	if _, err := s.pins.GetByID(ctx, r.PinID); err != nil {
		return fmt.Errorf("pin %s: %w", r.PinID, err)
	}

	return s.reminders.Create(ctx, r)
}

// ListByPin returns a pin's reminders.
func (s *ReminderService) ListByPin(ctx context.Context, pinID string) ([]domain.Reminder, error) {
	return s.reminders.ListByPin(ctx, pinID)
}

// Acknowledge marks a reminder as handled, stopping any escalation.
func (s *ReminderService) Acknowledge(ctx context.Context, id string) error {
	return s.reminders.Acknowledge(ctx, id, time.Now())
}

// Cancel removes a reminder from the schedule.
func (s *ReminderService) Cancel(ctx context.Context, id string) error {
	return s.reminders.Cancel(ctx, id)
}

// DispatchDue sends notifications for every due reminder and returns how
// many were dispatched. A reminder whose push fails stays unsent so the
// next tick retries it. Recurring reminders are moved to their next slot.
func (s *ReminderService) DispatchDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	due, err := s.reminders.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		pin, err := s.pins.GetByID(ctx, r.PinID)
		if err != nil {
			slog.Warn("reminder references missing pin", "reminder_id", r.ID, "pin_id", r.PinID, "error", err)
			continue
		}

		body := fmt.Sprintf("%s — %s", r.Title, pin.Name)
		if s.notifier != nil {
			if err := s.notifier.SendPush(ctx, r.UserID, "Care reminder", body); err != nil {
				slog.Warn("push failed, will retry next tick", "reminder_id", r.ID, "error", err)
				continue
			}
		}

		if err := s.reminders.MarkSent(ctx, r.ID, now); err != nil {
			slog.Error("mark reminder sent", "reminder_id", r.ID, "error", err)
			continue
		}
		sent++

		if s.publisher != nil {
			_ = s.publisher.PublishReminderDue(ctx, &r)
		}

		if r.Interval > 0 {
			next := r.DueAt.Add(r.Interval)
			for !next.After(now) {
				next = next.Add(r.Interval)
			}
			if err := s.reminders.Reschedule(ctx, r.ID, next); err != nil {
				slog.Error("reschedule reminder", "reminder_id", r.ID, "error", err)
			}
		}
	}

	return sent, nil
}
