package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
	"github.com/canopylabs/canopy/internal/pkg/geo"
)

// --- Mock PinRepository ---

type mockPinRepo struct {
	listByProjectFn func(ctx context.Context, projectID string) ([]domain.Pin, error)
	findInBoundsFn  func(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error)
	getByIDFn       func(ctx context.Context, id string) (*domain.Pin, error)
	createFn        func(ctx context.Context, pin *domain.Pin) error
	updateFn        func(ctx context.Context, pin *domain.Pin) error
	deleteFn        func(ctx context.Context, id string) error
}

func (m *mockPinRepo) Create(ctx context.Context, pin *domain.Pin) error {
	if m.createFn != nil {
		return m.createFn(ctx, pin)
	}
	return nil
}

func (m *mockPinRepo) Update(ctx context.Context, pin *domain.Pin) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, pin)
	}
	return nil
}

func (m *mockPinRepo) UpsertBatch(ctx context.Context, pins []domain.Pin) error { return nil }

func (m *mockPinRepo) GetByID(ctx context.Context, id string) (*domain.Pin, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &domain.Pin{ID: id}, nil
}

func (m *mockPinRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockPinRepo) FindInBounds(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error) {
	if m.findInBoundsFn != nil {
		return m.findInBoundsFn(ctx, box, projectID, limit)
	}
	return nil, nil
}

func (m *mockPinRepo) ListByProject(ctx context.Context, projectID string) ([]domain.Pin, error) {
	if m.listByProjectFn != nil {
		return m.listByProjectFn(ctx, projectID)
	}
	return nil, nil
}

func (m *mockPinRepo) FindNearby(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Pin, error) {
	return nil, nil
}

// --- Mock LocationProvider ---

type mockLocation struct {
	pos *domain.GeoPoint
	err error
}

func (m *mockLocation) CurrentPosition(ctx context.Context, userID string) (*domain.GeoPoint, error) {
	return m.pos, m.err
}

// --- Tests ---

func TestAutoCenter_FramesProjectPins(t *testing.T) {
	repo := &mockPinRepo{
		listByProjectFn: func(ctx context.Context, projectID string) ([]domain.Pin, error) {
			return []domain.Pin{
				{ID: "1", Location: domain.GeoPoint{Lat: 0, Lon: 0}},
				{ID: "2", Location: domain.GeoPoint{Lat: 10, Lon: 10}},
			}, nil
		},
	}
	svc := usecases.NewAutoCenterService(repo, &mockLocation{})

	res, err := svc.Center(context.Background(), usecases.AutoCenterRequest{
		Mode:      domain.CenterOnProjectPins,
		ProjectID: "p1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != domain.CenterOnProjectPins {
		t.Errorf("expected project-pins mode, got %s", res.Mode)
	}
	if res.Viewport.Center.Lat != 5 || res.Viewport.Center.Lon != 5 {
		t.Errorf("expected center (5,5), got %+v", res.Viewport.Center)
	}
}

func TestAutoCenter_FilteredEmptyFallsBackToUserLocation(t *testing.T) {
	repo := &mockPinRepo{
		listByProjectFn: func(ctx context.Context, projectID string) ([]domain.Pin, error) {
			return []domain.Pin{
				{ID: "1", Tags: []string{"oak"}, Location: domain.GeoPoint{Lat: 1, Lon: 1}},
			}, nil
		},
	}
	loc := &mockLocation{pos: &domain.GeoPoint{Lat: 43.26, Lon: -2.93}}
	svc := usecases.NewAutoCenterService(repo, loc)

	res, err := svc.Center(context.Background(), usecases.AutoCenterRequest{
		Mode:         domain.CenterOnProjectPins,
		ProjectID:    "p1",
		SelectedTags: []string{"birch"}, // matches nothing
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != domain.CenterOnUserLocation {
		t.Errorf("filtered-empty must end in user-location centering, got %s", res.Mode)
	}
	if res.Default {
		t.Error("device location was available, default region must not be used")
	}
	if res.Viewport.Center != *loc.pos {
		t.Errorf("expected viewport centered on device location, got %+v", res.Viewport.Center)
	}
}

func TestAutoCenter_NoPinsNoLocationUsesDefault(t *testing.T) {
	repo := &mockPinRepo{}
	loc := &mockLocation{err: errors.New("location unavailable")}
	svc := usecases.NewAutoCenterService(repo, loc)

	res, err := svc.Center(context.Background(), usecases.AutoCenterRequest{
		Mode:      domain.CenterOnProjectPins,
		ProjectID: "p1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Default {
		t.Error("expected the hard-coded default viewport")
	}
	if res.Viewport != geo.DefaultViewport {
		t.Errorf("expected default viewport, got %+v", res.Viewport)
	}
}

func TestAutoCenter_ExplicitUserLocation(t *testing.T) {
	loc := &mockLocation{pos: &domain.GeoPoint{Lat: 1, Lon: 2}}
	svc := usecases.NewAutoCenterService(&mockPinRepo{}, loc)

	res, err := svc.Center(context.Background(), usecases.AutoCenterRequest{
		Mode: domain.CenterOnUserLocation,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != domain.CenterOnUserLocation || res.Viewport.Center.Lat != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAutoCenter_SupersededByNewerRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	repo := &mockPinRepo{
		listByProjectFn: func(ctx context.Context, projectID string) ([]domain.Pin, error) {
			if projectID == "slow" {
				close(started)
				<-release
			}
			return []domain.Pin{{Location: domain.GeoPoint{Lat: 1, Lon: 1}}}, nil
		},
	}
	svc := usecases.NewAutoCenterService(repo, &mockLocation{})

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Center(context.Background(), usecases.AutoCenterRequest{
			Mode: domain.CenterOnProjectPins, ProjectID: "slow",
		})
		errCh <- err
	}()

	<-started
	// A second request arrives while the first is blocked.
	if _, err := svc.Center(context.Background(), usecases.AutoCenterRequest{
		Mode: domain.CenterOnProjectPins, ProjectID: "fast",
	}); err != nil {
		t.Fatalf("newer request failed: %v", err)
	}
	close(release)

	if err := <-errCh; !errors.Is(err, usecases.ErrSuperseded) {
		t.Errorf("older request must be superseded, got %v", err)
	}

	state, _ := svc.State()
	if state != usecases.CenterIdle {
		t.Errorf("machine must settle back to idle, got %s", state)
	}
}
