package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
)

func viewport(lat, lon float64) domain.Viewport {
	return domain.Viewport{
		Center:  domain.GeoPoint{Lat: lat, Lon: lon},
		LatSpan: 1,
		LonSpan: 1,
	}
}

// countingFetch records every issued fetch.
type countingFetch struct {
	mu    sync.Mutex
	boxes []domain.BoundingBox
	pins  []domain.Pin
	err   error
	delay time.Duration
}

func (f *countingFetch) fetch(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.boxes = append(f.boxes, box)
	f.mu.Unlock()
	return f.pins, f.err
}

func (f *countingFetch) calls() []domain.BoundingBox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BoundingBox(nil), f.boxes...)
}

func TestCoordinator_BurstIssuesOneFetchWithLastBounds(t *testing.T) {
	fetch := &countingFetch{}
	done := make(chan struct{}, 1)

	c := usecases.NewViewportCoordinator(fetch.fetch,
		usecases.WithFetchDebounce(20*time.Millisecond),
		usecases.OnResult(func(pins []domain.Pin, box domain.BoundingBox) {
			done <- struct{}{}
		}),
	)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		c.OnViewportChanged(ctx, viewport(float64(i), float64(i)))
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fetch never fired")
	}

	calls := fetch.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 fetch for the burst, got %d", len(calls))
	}
	// Bounds must come from the last viewport in the burst (center 9,9).
	if calls[0].North != 9.5 || calls[0].South != 8.5 {
		t.Errorf("fetch used stale bounds: %+v", calls[0])
	}
	if c.Committed() != calls[0] {
		t.Errorf("committed bounds %+v differ from issued fetch %+v", c.Committed(), calls[0])
	}
}

func TestCoordinator_LatestIsRecordedSynchronously(t *testing.T) {
	c := usecases.NewViewportCoordinator((&countingFetch{}).fetch,
		usecases.WithFetchDebounce(time.Hour))
	defer c.Close()

	v := viewport(12, 34)
	c.OnViewportChanged(context.Background(), v)
	if c.Latest() != v {
		t.Errorf("latest viewport not recorded before the debounce fires")
	}
}

func TestCoordinator_InvalidViewportIgnored(t *testing.T) {
	fetch := &countingFetch{}
	c := usecases.NewViewportCoordinator(fetch.fetch,
		usecases.WithFetchDebounce(10*time.Millisecond))
	defer c.Close()

	c.OnViewportChanged(context.Background(), domain.Viewport{
		Center: domain.GeoPoint{Lat: 200, Lon: 0}, LatSpan: 1, LonSpan: 1,
	})
	time.Sleep(50 * time.Millisecond)

	if len(fetch.calls()) != 0 {
		t.Error("invalid viewport must not trigger a fetch")
	}
}

func TestCoordinator_TagFilterAppliedToResults(t *testing.T) {
	fetch := &countingFetch{pins: []domain.Pin{
		{ID: "1", Tags: []string{"oak"}},
		{ID: "2", Tags: []string{"birch"}},
	}}
	results := make(chan []domain.Pin, 1)

	c := usecases.NewViewportCoordinator(fetch.fetch,
		usecases.WithFetchDebounce(10*time.Millisecond),
		usecases.OnResult(func(pins []domain.Pin, box domain.BoundingBox) {
			results <- pins
		}),
	)
	defer c.Close()

	c.SetTags([]string{"oak"})
	c.OnViewportChanged(context.Background(), viewport(1, 1))

	select {
	case pins := <-results:
		if len(pins) != 1 || pins[0].ID != "1" {
			t.Errorf("expected only the oak pin, got %+v", pins)
		}
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}
}

func TestCoordinator_FetchErrorKeepsPreviousPins(t *testing.T) {
	fetch := &countingFetch{pins: []domain.Pin{{ID: "1"}}}
	results := make(chan struct{}, 1)
	errs := make(chan error, 1)

	c := usecases.NewViewportCoordinator(fetch.fetch,
		usecases.WithFetchDebounce(10*time.Millisecond),
		usecases.OnResult(func(pins []domain.Pin, box domain.BoundingBox) {
			results <- struct{}{}
		}),
		usecases.OnError(func(err error) { errs <- err }),
	)
	defer c.Close()

	ctx := context.Background()
	c.OnViewportChanged(ctx, viewport(1, 1))
	<-results

	fetch.err = errors.New("network is down")
	c.OnViewportChanged(ctx, viewport(2, 2))

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a fetch error")
		}
	case <-time.After(time.Second):
		t.Fatal("error never surfaced")
	}

	if pins := c.Pins(); len(pins) != 1 || pins[0].ID != "1" {
		t.Errorf("previous point set must survive a failed fetch, got %+v", pins)
	}
}

func TestCoordinator_PreviewDebounceIsIndependent(t *testing.T) {
	fetch := &countingFetch{}
	previews := make(chan domain.GeoPoint, 4)

	c := usecases.NewViewportCoordinator(fetch.fetch,
		usecases.WithFetchDebounce(500*time.Millisecond),
		usecases.WithPreviewDebounce(10*time.Millisecond),
		usecases.OnPreview(func(p domain.GeoPoint) { previews <- p }),
	)
	defer c.Close()

	c.SetPreviewMode(true)
	ctx := context.Background()
	c.OnViewportChanged(ctx, viewport(1, 1))
	c.OnViewportChanged(ctx, viewport(2, 2))

	select {
	case p := <-previews:
		if p.Lat != 2 || p.Lon != 2 {
			t.Errorf("preview must track the last viewport center, got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("preview never fired")
	}

	// The main fetch debounce has not elapsed: no fetch yet.
	if len(fetch.calls()) != 0 {
		t.Error("preview debounce must not trigger the main fetch")
	}
}

func TestCoordinator_NoFetchAfterClose(t *testing.T) {
	fetch := &countingFetch{}
	c := usecases.NewViewportCoordinator(fetch.fetch,
		usecases.WithFetchDebounce(10*time.Millisecond))

	c.OnViewportChanged(context.Background(), viewport(1, 1))
	c.Close()
	time.Sleep(50 * time.Millisecond)

	if len(fetch.calls()) != 0 {
		t.Error("fetch fired after Close")
	}
}
