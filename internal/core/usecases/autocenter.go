package usecases

import (
	"context"
	"errors"
	"sync"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/ports"
	"github.com/canopylabs/canopy/internal/pkg/geo"
)

// ErrSuperseded is returned when a newer centering request arrived while
// this one was in flight (last-write-wins, no queueing).
var ErrSuperseded = errors.New("centering superseded by a newer request")

// AutoCenterState is the observable state of the machine.
type AutoCenterState string

const (
	CenterIdle      AutoCenterState = "idle"
	CenterCentering AutoCenterState = "centering"
)

// AutoCenterRequest asks the machine to frame the map. Consumed once.
type AutoCenterRequest struct {
	Mode         domain.AutoCenterMode
	ProjectID    string
	UserID       string
	SelectedTags []string
}

// AutoCenterResult carries the viewport to animate to and which mode
// ultimately produced it after the fallback chain ran.
type AutoCenterResult struct {
	Viewport domain.Viewport       `json:"viewport"`
	Mode     domain.AutoCenterMode `json:"mode"`
	Default  bool                  `json:"default"` // true when the hard-coded default region was used
}

// AutoCenterService decides, after a project switch or tag-navigation event,
// what the map should frame. The fallback chain is fixed: project pins →
// tag-filtered pins → user location → default viewport. A tag filter that
// matches nothing is treated exactly like a project with no pins.
type AutoCenterService struct {
	pins     ports.PinRepository
	location ports.LocationProvider

	mu   sync.Mutex
	gen  uint64
	mode domain.AutoCenterMode
	busy bool
}

// NewAutoCenterService creates a new AutoCenterService.
func NewAutoCenterService(pins ports.PinRepository, location ports.LocationProvider) *AutoCenterService {
	return &AutoCenterService{pins: pins, location: location}
}

// State returns the machine's current state and, while centering, the mode.
func (s *AutoCenterService) State() (AutoCenterState, domain.AutoCenterMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return CenterCentering, s.mode
	}
	return CenterIdle, ""
}

// Center resolves one auto-center request. A request arriving while another
// is in flight supersedes it: the older call returns ErrSuperseded.
func (s *AutoCenterService) Center(ctx context.Context, req AutoCenterRequest) (*AutoCenterResult, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.busy = true
	s.mode = req.Mode
	s.mu.Unlock()

	result, err := s.resolve(ctx, req, gen)

	s.mu.Lock()
	if gen == s.gen {
		s.busy = false
	}
	superseded := gen != s.gen
	s.mu.Unlock()

	if superseded {
		return nil, ErrSuperseded
	}
	return result, err
}

func (s *AutoCenterService) resolve(ctx context.Context, req AutoCenterRequest, gen uint64) (*AutoCenterResult, error) {
	if req.Mode == domain.CenterOnProjectPins {
		pins, err := s.pins.ListByProject(ctx, req.ProjectID)
		if err != nil {
			return nil, err
		}

		filtered := domain.FilterByTags(pins, req.SelectedTags)
		if len(filtered) > 0 {
			points := make([]domain.GeoPoint, len(filtered))
			for i, p := range filtered {
				points[i] = p.Location
			}
			if s.superseded(gen) {
				return nil, ErrSuperseded
			}
			return &AutoCenterResult{
				Viewport: geo.Frame(points, geo.DefaultPadding),
				Mode:     domain.CenterOnProjectPins,
			}, nil
		}
		// Nothing to frame: fall through to the user's location.
	}

	if s.location != nil {
		pos, err := s.location.CurrentPosition(ctx, req.UserID)
		if s.superseded(gen) {
			return nil, ErrSuperseded
		}
		if err == nil && pos != nil && pos.Valid() {
			return &AutoCenterResult{
				Viewport: geo.Frame([]domain.GeoPoint{*pos}, geo.DefaultPadding),
				Mode:     domain.CenterOnUserLocation,
			}, nil
		}
	}

	// Location unavailable: give up onto the hard-coded default region.
	return &AutoCenterResult{
		Viewport: geo.DefaultViewport,
		Mode:     domain.CenterOnUserLocation,
		Default:  true,
	}, nil
}

func (s *AutoCenterService) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}
