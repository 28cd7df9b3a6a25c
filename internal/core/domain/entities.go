package domain

import (
	"time"
)

// Project groups a user's pins. Visibility is a simple public/private flag.
type Project struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	PinCount  int       `json:"pin_count,omitempty"` // computed field
	CreatedAt time.Time `json:"created_at"`
}

// Pin is a geo-tagged record (a plant, tree, or other tracked object)
// belonging to exactly one project.
type Pin struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Location  GeoPoint       `json:"location"`
	Tags      []string       `json:"tags,omitempty"`
	Photos    []string       `json:"photos,omitempty"` // public URLs, upload order
	Metadata  map[string]any `json:"metadata,omitempty"`
	Distance  *float64       `json:"distance,omitempty"` // computed field
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Note is an append-only timestamped observation attached to a pin.
type Note struct {
	ID        string    `json:"id"`
	PinID     string    `json:"pin_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Reminder schedules recurring care for a pin. If it is not acknowledged
// within EscalateAfter of being sent, an escalation notification goes out.
type Reminder struct {
	ID             string         `json:"id"`
	PinID          string         `json:"pin_id"`
	UserID         string         `json:"user_id"`
	Title          string         `json:"title"`
	DueAt          time.Time      `json:"due_at"`
	Interval       time.Duration  `json:"interval,omitempty"` // zero = one-shot
	EscalateAfter  time.Duration  `json:"escalate_after,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PinEvent is published on the message bus whenever a pin changes.
type PinEvent struct {
	Type      string    `json:"type"` // "created" | "updated" | "deleted"
	Pin       *Pin      `json:"pin,omitempty"`
	PinID     string    `json:"pin_id"`
	ProjectID string    `json:"project_id"`
	Time      time.Time `json:"time"`
}

// AutoCenterMode selects what an auto-center request should frame.
type AutoCenterMode string

const (
	CenterOnProjectPins  AutoCenterMode = "project-pins"
	CenterOnUserLocation AutoCenterMode = "user-location"
)
