package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// EscalationInput is the input for the reminder escalation workflow.
type EscalationInput struct {
	ReminderID    string
	UserID        string
	EscalateAfter time.Duration
}

// ReminderEscalationWorkflow waits out the escalation window after a reminder
// was delivered. If the reminder is still unacknowledged when the window
// closes, the project owner gets an escalated push; recurring reminders are
// then rescheduled for their next occurrence.
func ReminderEscalationWorkflow(ctx workflow.Context, input EscalationInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting reminder escalation", "reminderID", input.ReminderID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Give the user the full escalation window before checking.
	window := input.EscalateAfter
	if window <= 0 {
		window = 24 * time.Hour
	}
	if err := workflow.Sleep(ctx, window); err != nil {
		return err
	}

	var acknowledged bool
	if err := workflow.ExecuteActivity(ctx, "IsAcknowledged", input.ReminderID).Get(ctx, &acknowledged); err != nil {
		return err
	}
	if acknowledged {
		logger.Info("Reminder acknowledged, no escalation", "reminderID", input.ReminderID)
		return nil
	}

	var summary ReminderSummary
	if err := workflow.ExecuteActivity(ctx, "DescribeReminder", input.ReminderID).Get(ctx, &summary); err != nil {
		return err
	}

	recipient := input.UserID
	if summary.OwnerID != "" {
		recipient = summary.OwnerID
	}
	if err := workflow.ExecuteActivity(ctx, "SendEscalation", recipient, &summary).Get(ctx, nil); err != nil {
		return err
	}

	if summary.Recurring {
		if err := workflow.ExecuteActivity(ctx, "RescheduleReminder", input.ReminderID).Get(ctx, nil); err != nil {
			logger.Warn("reschedule after escalation failed", "error", err)
		}
	}

	logger.Info("Escalation sent", "reminderID", input.ReminderID, "recipient", recipient)
	return nil
}
