package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/ports"
)

// PinService handles pin queries, notes, and tag extraction.
type PinService struct {
	pins      ports.PinRepository
	notes     ports.NoteRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
}

// NewPinService creates a new PinService.
func NewPinService(pins ports.PinRepository, notes ports.NoteRepository, cache ports.CacheService, publisher ports.EventPublisher) *PinService {
	return &PinService{pins: pins, notes: notes, cache: cache, publisher: publisher}
}

// FindInBounds returns the pins inside a bounding box, optionally restricted
// to a project and filtered by tags (AND semantics, applied after the query).
func (s *PinService) FindInBounds(ctx context.Context, box domain.BoundingBox, projectID string, tags []string, limit int) ([]domain.Pin, error) {
	if box.North <= box.South {
		return nil, fmt.Errorf("invalid bounds: north must exceed south")
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	cacheKey := fmt.Sprintf("pins:bounds:%.4f:%.4f:%.4f:%.4f:%s:%d",
		box.North, box.South, box.East, box.West, projectID, limit)

	var pins []domain.Pin
	cached := false
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			if err := json.Unmarshal(data, &pins); err == nil {
				cached = true
			}
		}
	}

	if !cached {
		var err error
		pins, err = s.pins.FindInBounds(ctx, box, projectID, limit)
		if err != nil {
			return nil, err
		}

		// Cache for 30 seconds; viewport queries repeat heavily while panning
		if s.cache != nil {
			if data, err := json.Marshal(pins); err == nil {
				_ = s.cache.Set(ctx, cacheKey, data, 30)
			}
		}
	}

	return domain.FilterByTags(pins, tags), nil
}

// ListByProject returns every pin in a project.
func (s *PinService) ListByProject(ctx context.Context, projectID string) ([]domain.Pin, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	return s.pins.ListByProject(ctx, projectID)
}

// GetByID returns a single pin.
func (s *PinService) GetByID(ctx context.Context, id string) (*domain.Pin, error) {
	return s.pins.GetByID(ctx, id)
}

// FindNearby returns pins within radiusMeters of the given point.
func (s *PinService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Pin, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.pins.FindNearby(ctx, lat, lon, radiusMeters, limit)
}

// Delete removes a pin and publishes a deletion event.
func (s *PinService) Delete(ctx context.Context, id string) error {
	pin, err := s.pins.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pins.Delete(ctx, id); err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "tags:project:"+pin.ProjectID)
	}
	if s.publisher != nil {
		_ = s.publisher.PublishPinEvent(ctx, &domain.PinEvent{
			Type:      "deleted",
			PinID:     id,
			ProjectID: pin.ProjectID,
			Time:      time.Now(),
		})
	}
	return nil
}

// ProjectTags returns the deduplicated, sorted union of every tag used in a
// project, for populating tag pickers.
func (s *PinService) ProjectTags(ctx context.Context, projectID string) ([]string, error) {
	cacheKey := "tags:project:" + projectID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var tags []string
			if err := json.Unmarshal(data, &tags); err == nil {
				return tags, nil
			}
		}
	}

	pins, err := s.pins.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tags := domain.ExtractUniqueTags(pins)

	if s.cache != nil {
		if data, err := json.Marshal(tags); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 120)
		}
	}

	return tags, nil
}

// AddNote appends a timestamped note to a pin.
func (s *PinService) AddNote(ctx context.Context, pinID, text string) (*domain.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("note text must not be empty")
	}
	if _, err := s.pins.GetByID(ctx, pinID); err != nil {
		return nil, fmt.Errorf("pin %s: %w", pinID, err)
	}

	note := &domain.Note{PinID: pinID, Text: text, CreatedAt: time.Now()}
	if err := s.notes.Insert(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Notes returns a pin's notes in creation order.
func (s *PinService) Notes(ctx context.Context, pinID string) ([]domain.Note, error) {
	return s.notes.ListByPin(ctx, pinID)
}
