package ports

import (
	"context"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// ProjectRepository persists projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// PinRepository persists pins.
type PinRepository interface {
	Create(ctx context.Context, pin *domain.Pin) error
	Update(ctx context.Context, pin *domain.Pin) error
	UpsertBatch(ctx context.Context, pins []domain.Pin) error
	GetByID(ctx context.Context, id string) (*domain.Pin, error)
	Delete(ctx context.Context, id string) error
	// FindInBounds returns pins inside the box, optionally restricted to a
	// project (empty projectID = all visible projects).
	FindInBounds(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Pin, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Pin, error)
}

// NoteRepository persists append-only pin notes.
type NoteRepository interface {
	Insert(ctx context.Context, note *domain.Note) error
	ListByPin(ctx context.Context, pinID string) ([]domain.Note, error)
}

// ReminderRepository persists care reminders.
type ReminderRepository interface {
	Create(ctx context.Context, reminder *domain.Reminder) error
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	ListByPin(ctx context.Context, pinID string) ([]domain.Reminder, error)
	// ListDue returns unsent reminders whose DueAt is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	Acknowledge(ctx context.Context, id string, at time.Time) error
	// Reschedule moves a recurring reminder to its next due time and clears
	// the sent/acknowledged state.
	Reschedule(ctx context.Context, id string, nextDue time.Time) error
	Cancel(ctx context.Context, id string) error
}
