package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/ports"
)

// PipelineStage is surfaced to clients for progress display.
type PipelineStage string

const (
	StageIdle      PipelineStage = "idle"
	StageUploading PipelineStage = "uploading"
	StageCreating  PipelineStage = "creating"
	StageUpdating  PipelineStage = "updating"
)

const (
	defaultMaxUploadAttempts = 3
	defaultUploadBackoff     = time.Second
)

// PhotoUpload is one local photo to push to object storage.
type PhotoUpload struct {
	Name string
	Data []byte
}

// CreatePinInput carries the form fields and local photos for a new pin.
type CreatePinInput struct {
	ProjectID string
	Name      string
	Location  domain.GeoPoint
	Tags      []string
	Metadata  map[string]any
	Photos    []PhotoUpload
}

// UpdatePinInput carries changed fields plus any additional photos.
type UpdatePinInput struct {
	PinID    string
	Name     *string
	Location *domain.GeoPoint
	Tags     []string
	Metadata map[string]any
	Photos   []PhotoUpload
}

// PinPipeline runs the staged create/update flow: upload photos one at a
// time, then issue a single record write carrying the resulting public URLs.
//
// Each upload gets a bounded retry with linearly increasing backoff for
// transient failures. If any photo fails after exhausting retries the
// pipeline aborts before the record stage; no partial pin is created.
// Already-uploaded objects are not rolled back on a later failure, so
// orphaned storage objects may remain.
type PinPipeline struct {
	store     ports.ObjectStore
	pins      ports.PinRepository
	publisher ports.EventPublisher

	maxAttempts int
	backoff     time.Duration
	onStage     func(stage PipelineStage)

	mu    sync.Mutex
	stage PipelineStage
}

// PipelineOption customises a PinPipeline.
type PipelineOption func(*PinPipeline)

// WithUploadRetry overrides the per-photo attempt budget and base backoff.
func WithUploadRetry(attempts int, backoff time.Duration) PipelineOption {
	return func(p *PinPipeline) {
		p.maxAttempts = attempts
		p.backoff = backoff
	}
}

// OnStage registers a callback observing stage transitions.
func OnStage(fn func(stage PipelineStage)) PipelineOption {
	return func(p *PinPipeline) { p.onStage = fn }
}

// NewPinPipeline creates a new PinPipeline.
func NewPinPipeline(store ports.ObjectStore, pins ports.PinRepository, publisher ports.EventPublisher, opts ...PipelineOption) *PinPipeline {
	p := &PinPipeline{
		store:       store,
		pins:        pins,
		publisher:   publisher,
		maxAttempts: defaultMaxUploadAttempts,
		backoff:     defaultUploadBackoff,
		stage:       StageIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stage returns the pipeline's current stage.
func (p *PinPipeline) Stage() PipelineStage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

func (p *PinPipeline) setStage(stage PipelineStage) {
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()
	if p.onStage != nil {
		p.onStage(stage)
	}
}

// Create runs the full pipeline for a new pin.
func (p *PinPipeline) Create(ctx context.Context, input CreatePinInput) (*domain.Pin, error) {
	defer p.setStage(StageIdle)

	input.Name = strings.TrimSpace(input.Name)
	if input.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if input.Name == "" {
		return nil, fmt.Errorf("pin name must not be empty")
	}
	if !input.Location.Valid() {
		return nil, fmt.Errorf("location %.4f,%.4f is out of range", input.Location.Lat, input.Location.Lon)
	}

	urls, err := p.uploadAll(ctx, input.ProjectID, input.Photos)
	if err != nil {
		return nil, err
	}

	p.setStage(StageCreating)
	now := time.Now()
	pin := &domain.Pin{
		ProjectID: input.ProjectID,
		Name:      input.Name,
		Location:  input.Location,
		Tags:      input.Tags,
		Photos:    urls,
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.pins.Create(ctx, pin); err != nil {
		// Uploaded photos are deliberately left in place.
		return nil, fmt.Errorf("create pin: %w", err)
	}

	p.publish(ctx, "created", pin)
	return pin, nil
}

// Update runs the pipeline for an existing pin, appending newly uploaded
// photo URLs to the existing sequence.
func (p *PinPipeline) Update(ctx context.Context, input UpdatePinInput) (*domain.Pin, error) {
	defer p.setStage(StageIdle)

	pin, err := p.pins.GetByID(ctx, input.PinID)
	if err != nil {
		return nil, fmt.Errorf("pin %s: %w", input.PinID, err)
	}

	urls, err := p.uploadAll(ctx, pin.ProjectID, input.Photos)
	if err != nil {
		return nil, err
	}

	p.setStage(StageUpdating)
	if input.Name != nil {
		pin.Name = strings.TrimSpace(*input.Name)
	}
	if input.Location != nil {
		if !input.Location.Valid() {
			return nil, fmt.Errorf("location %.4f,%.4f is out of range", input.Location.Lat, input.Location.Lon)
		}
		pin.Location = *input.Location
	}
	if input.Tags != nil {
		pin.Tags = input.Tags
	}
	if input.Metadata != nil {
		pin.Metadata = input.Metadata
	}
	pin.Photos = append(pin.Photos, urls...)
	pin.UpdatedAt = time.Now()

	if err := p.pins.Update(ctx, pin); err != nil {
		return nil, fmt.Errorf("update pin: %w", err)
	}

	p.publish(ctx, "updated", pin)
	return pin, nil
}

// uploadAll pushes photos to the object store one at a time. It keeps going
// past individual failures so the caller gets a single aggregate error
// naming how many of the batch failed.
func (p *PinPipeline) uploadAll(ctx context.Context, projectID string, photos []PhotoUpload) ([]string, error) {
	if len(photos) == 0 {
		return nil, nil
	}

	p.setStage(StageUploading)

	urls := make([]string, 0, len(photos))
	var failed int
	var firstErr error

	for i, photo := range photos {
		path := fmt.Sprintf("%s/%d-%s", projectID, time.Now().UnixNano(), photo.Name)
		url, err := p.uploadOne(ctx, path, photo.Data)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("photo %d (%s): %w", i+1, photo.Name, err)
			}
			continue
		}
		urls = append(urls, url)
	}

	if failed > 0 {
		return nil, fmt.Errorf("%d out of %d photos failed to upload: %w", failed, len(photos), firstErr)
	}
	return urls, nil
}

// uploadOne retries a single upload up to maxAttempts with linear backoff.
// Non-transient failures (permission denied, missing bucket) abort at once.
func (p *PinPipeline) uploadOne(ctx context.Context, path string, data []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		url, err := p.store.Upload(ctx, path, data)
		if err == nil {
			return url, nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return "", err
		}
		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt) * p.backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("upload failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *PinPipeline) publish(ctx context.Context, eventType string, pin *domain.Pin) {
	if p.publisher == nil {
		return
	}
	_ = p.publisher.PublishPinEvent(ctx, &domain.PinEvent{
		Type:      eventType,
		Pin:       pin,
		PinID:     pin.ID,
		ProjectID: pin.ProjectID,
		Time:      time.Now(),
	})
}
