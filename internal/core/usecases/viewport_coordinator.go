package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/pkg/geo"
)

// Debounce windows. The main window gates network fetches; the preview
// window only drives a visual marker and is deliberately much shorter.
const (
	DefaultFetchDebounce   = 500 * time.Millisecond
	DefaultPreviewDebounce = 100 * time.Millisecond
)

// FetchFunc issues one bounded pin query.
type FetchFunc func(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error)

// ViewportCoordinator debounces rapid viewport-change events and turns the
// last one in a burst into exactly one bounded pin fetch (trailing-edge
// debounce). Each connected map session owns one coordinator.
//
// Responses carry a generation stamp: if a newer fetch started while an
// older one was in flight, the older result is discarded instead of
// overwriting fresher data.
type ViewportCoordinator struct {
	fetch FetchFunc

	fetchDebounce   time.Duration
	previewDebounce time.Duration
	limit           int

	onResult  func(pins []domain.Pin, box domain.BoundingBox)
	onError   func(err error)
	onPreview func(p domain.GeoPoint)

	mu           sync.Mutex
	latest       domain.Viewport
	committed    domain.BoundingBox
	projectID    string
	selectedTags []string
	previewMode  bool
	lastPins     []domain.Pin
	timer        *time.Timer
	previewTimer *time.Timer
	fetchSeq     uint64
	closed       bool
}

// CoordinatorOption customises a ViewportCoordinator.
type CoordinatorOption func(*ViewportCoordinator)

// WithFetchDebounce overrides the main debounce window.
func WithFetchDebounce(d time.Duration) CoordinatorOption {
	return func(c *ViewportCoordinator) { c.fetchDebounce = d }
}

// WithPreviewDebounce overrides the preview-marker debounce window.
func WithPreviewDebounce(d time.Duration) CoordinatorOption {
	return func(c *ViewportCoordinator) { c.previewDebounce = d }
}

// WithFetchLimit caps how many pins one viewport query may return.
func WithFetchLimit(n int) CoordinatorOption {
	return func(c *ViewportCoordinator) { c.limit = n }
}

// OnResult registers the callback receiving each committed, tag-filtered
// point set.
func OnResult(fn func(pins []domain.Pin, box domain.BoundingBox)) CoordinatorOption {
	return func(c *ViewportCoordinator) { c.onResult = fn }
}

// OnError registers the callback receiving fetch failures. A failed fetch
// is not retried; the previously fetched point set stays available.
func OnError(fn func(err error)) CoordinatorOption {
	return func(c *ViewportCoordinator) { c.onError = fn }
}

// OnPreview registers the callback receiving debounced preview coordinates.
func OnPreview(fn func(p domain.GeoPoint)) CoordinatorOption {
	return func(c *ViewportCoordinator) { c.onPreview = fn }
}

// NewViewportCoordinator creates a coordinator around the given fetch.
func NewViewportCoordinator(fetch FetchFunc, opts ...CoordinatorOption) *ViewportCoordinator {
	c := &ViewportCoordinator{
		fetch:           fetch,
		fetchDebounce:   DefaultFetchDebounce,
		previewDebounce: DefaultPreviewDebounce,
		limit:           500,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnViewportChanged records the viewport immediately for synchronous readers
// and restarts the debounce timers. Invalid viewports are dropped.
func (c *ViewportCoordinator) OnViewportChanged(ctx context.Context, v domain.Viewport) {
	if !geo.Validate(v) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.latest = v

	if c.previewMode {
		if c.previewTimer != nil {
			c.previewTimer.Stop()
		}
		center := v.Center
		c.previewTimer = time.AfterFunc(c.previewDebounce, func() {
			if c.onPreview != nil {
				c.onPreview(center)
			}
		})
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.fetchDebounce, func() {
		c.fire(ctx)
	})
}

// fire runs on the trailing edge of the debounce window: it commits the
// bounds of the last observed viewport and issues a single fetch.
func (c *ViewportCoordinator) fire(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	box := geo.BoundsOf(c.latest)
	projectID := c.projectID
	tags := append([]string(nil), c.selectedTags...)
	limit := c.limit
	c.committed = box
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	pins, err := c.fetch(ctx, box, projectID, limit)

	c.mu.Lock()
	stale := seq != c.fetchSeq || c.closed
	if !stale && err == nil {
		c.lastPins = pins
	}
	c.mu.Unlock()

	if stale {
		return
	}
	if err != nil {
		if c.onError != nil {
			c.onError(err)
		}
		return
	}
	if c.onResult != nil {
		c.onResult(domain.FilterByTags(pins, tags), box)
	}
}

// SetProject changes the project filter merged into the next committed fetch.
func (c *ViewportCoordinator) SetProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectID = projectID
}

// SetTags changes the client-side tag filter applied to fetched pins.
func (c *ViewportCoordinator) SetTags(tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedTags = append([]string(nil), tags...)
}

// SetPreviewMode toggles pin-placement preview tracking.
func (c *ViewportCoordinator) SetPreviewMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previewMode = on
	if !on && c.previewTimer != nil {
		c.previewTimer.Stop()
		c.previewTimer = nil
	}
}

// Latest returns the most recently observed viewport, which may be ahead of
// the committed bounds while a debounce window is open.
func (c *ViewportCoordinator) Latest() domain.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Committed returns the bounds of the last fetch that was actually issued.
func (c *ViewportCoordinator) Committed() domain.BoundingBox {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Pins returns the last successfully fetched point set (unfiltered). It is
// retained across failed fetches so the session can keep rendering stale
// data alongside the error notice.
func (c *ViewportCoordinator) Pins() []domain.Pin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPins
}

// Close stops pending timers. No fetch fires after Close returns.
func (c *ViewportCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.previewTimer != nil {
		c.previewTimer.Stop()
	}
}
