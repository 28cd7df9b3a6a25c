package workflows

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/canopylabs/canopy/internal/core/ports"
	"github.com/canopylabs/canopy/internal/pkg/metrics"
)

// EscalationActivities holds the activity implementations for the reminder
// escalation workflow.
type EscalationActivities struct {
	Reminders ports.ReminderRepository
	Pins      ports.PinRepository
	Projects  ports.ProjectRepository
	Notifier  ports.NotificationService
}

// IsAcknowledged reports whether the reminder has been acknowledged.
// A cancelled (deleted) reminder counts as acknowledged.
func (a *EscalationActivities) IsAcknowledged(ctx context.Context, reminderID string) (bool, error) {
	rem, err := a.Reminders.GetByID(ctx, reminderID)
	if err != nil {
		// Reminder was cancelled; nothing left to escalate.
		return true, nil
	}
	return rem.AcknowledgedAt != nil, nil
}

// ReminderSummary describes a reminder for notification text.
type ReminderSummary struct {
	Title     string
	PinName   string
	OwnerID   string
	DueAt     time.Time
	Recurring bool
}

// DescribeReminder loads the reminder and its pin for notification wording.
// The project owner is resolved as the escalation recipient.
func (a *EscalationActivities) DescribeReminder(ctx context.Context, reminderID string) (*ReminderSummary, error) {
	rem, err := a.Reminders.GetByID(ctx, reminderID)
	if err != nil {
		return nil, fmt.Errorf("get reminder %s: %w", reminderID, err)
	}

	summary := &ReminderSummary{
		Title:     rem.Title,
		DueAt:     rem.DueAt,
		Recurring: rem.Interval > 0,
	}

	pin, err := a.Pins.GetByID(ctx, rem.PinID)
	if err != nil {
		return nil, fmt.Errorf("get pin %s: %w", rem.PinID, err)
	}
	summary.PinName = pin.Name

	project, err := a.Projects.GetByID(ctx, pin.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", pin.ProjectID, err)
	}
	summary.OwnerID = project.OwnerID

	return summary, nil
}

// SendEscalation pushes an escalated notification.
func (a *EscalationActivities) SendEscalation(ctx context.Context, userID string, summary *ReminderSummary) error {
	metrics.RemindersEscalated.Inc()
	if a.Notifier == nil {
		log.Printf("PUSH (no notifier) user=%s reminder=%q pin=%q", userID, summary.Title, summary.PinName)
		return nil
	}
	title := "Overdue care reminder"
	body := fmt.Sprintf("%s: %s is still waiting (due %s)",
		summary.Title, summary.PinName, summary.DueAt.Format("Jan 2 15:04"))
	return a.Notifier.SendPush(ctx, userID, title, body)
}

// RescheduleReminder moves a recurring reminder to its next due time.
func (a *EscalationActivities) RescheduleReminder(ctx context.Context, reminderID string) error {
	rem, err := a.Reminders.GetByID(ctx, reminderID)
	if err != nil {
		return fmt.Errorf("get reminder %s: %w", reminderID, err)
	}
	if rem.Interval <= 0 {
		return nil
	}
	next := rem.DueAt.Add(rem.Interval)
	now := time.Now()
	for !next.After(now) {
		next = next.Add(rem.Interval)
	}
	return a.Reminders.Reschedule(ctx, reminderID, next)
}
