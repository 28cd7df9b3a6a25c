package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// ReminderRepo implements ports.ReminderRepository with pgx.
// Interval and escalate_after are stored as integral seconds.
type ReminderRepo struct {
	db *DB
}

// NewReminderRepo creates a new ReminderRepo.
func NewReminderRepo(db *DB) *ReminderRepo {
	return &ReminderRepo{db: db}
}

const reminderColumns = `
	id, pin_id, user_id, title, due_at,
	interval_seconds, escalate_after_seconds,
	sent_at, acknowledged_at, COALESCE(metadata, '{}'), created_at`

// Create inserts a reminder and fills in its generated ID.
func (r *ReminderRepo) Create(ctx context.Context, rem *domain.Reminder) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO reminders (pin_id, user_id, title, due_at, interval_seconds, escalate_after_seconds, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, rem.PinID, rem.UserID, rem.Title, rem.DueAt,
		int(rem.Interval.Seconds()), int(rem.EscalateAfter.Seconds()), rem.Metadata,
	).Scan(&rem.ID, &rem.CreatedAt)
}

// GetByID returns a reminder by UUID.
func (r *ReminderRepo) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	return scanReminder(row)
}

// ListByPin returns a pin's reminders, soonest first.
func (r *ReminderRepo) ListByPin(ctx context.Context, pinID string) ([]domain.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE pin_id = $1 ORDER BY due_at`, pinID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *rem)
	}
	return reminders, rows.Err()
}

// ListDue returns unsent reminders due at or before now, oldest first.
func (r *ReminderRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE due_at <= $1 AND sent_at IS NULL
		ORDER BY due_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *rem)
	}
	return reminders, rows.Err()
}

// MarkSent stamps the send time.
func (r *ReminderRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET sent_at = $2 WHERE id = $1`, id, at)
	return err
}

// Acknowledge stamps the acknowledgement time.
func (r *ReminderRepo) Acknowledge(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET acknowledged_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s not found", id)
	}
	return nil
}

// Reschedule moves a recurring reminder forward and clears its state.
func (r *ReminderRepo) Reschedule(ctx context.Context, id string, nextDue time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE reminders
		SET due_at = $2, sent_at = NULL, acknowledged_at = NULL
		WHERE id = $1
	`, id, nextDue)
	return err
}

// Cancel deletes a reminder.
func (r *ReminderRepo) Cancel(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var rem domain.Reminder
	var intervalSec, escalateSec int
	if err := row.Scan(
		&rem.ID, &rem.PinID, &rem.UserID, &rem.Title, &rem.DueAt,
		&intervalSec, &escalateSec,
		&rem.SentAt, &rem.AcknowledgedAt, &rem.Metadata, &rem.CreatedAt,
	); err != nil {
		return nil, err
	}
	rem.Interval = time.Duration(intervalSec) * time.Second
	rem.EscalateAfter = time.Duration(escalateSec) * time.Second
	return &rem, nil
}
