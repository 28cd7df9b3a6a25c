package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// Device positions are kept for an hour; a stale fix is worse than none
// when deciding where to center a map.
const locationTTLSeconds = 3600

// LocationProvider implements ports.LocationProvider on top of the cache.
// Mobile clients report their position periodically; auto-centering reads
// the last known fix.
type LocationProvider struct {
	cache *Cache
}

// NewLocationProvider creates a LocationProvider sharing a cache client.
func NewLocationProvider(cache *Cache) *LocationProvider {
	return &LocationProvider{cache: cache}
}

func locationKey(userID string) string {
	return "location:user:" + userID
}

// CurrentPosition returns the user's last reported position.
func (l *LocationProvider) CurrentPosition(ctx context.Context, userID string) (*domain.GeoPoint, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	data, err := l.cache.Get(ctx, locationKey(userID))
	if err != nil {
		return nil, fmt.Errorf("no known position for %s: %w", userID, err)
	}
	var p domain.GeoPoint
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReportPosition stores a fresh device position.
func (l *LocationProvider) ReportPosition(ctx context.Context, userID string, p domain.GeoPoint) error {
	if !p.Valid() {
		return fmt.Errorf("invalid position %+v", p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return l.cache.Set(ctx, locationKey(userID), data, locationTTLSeconds)
}
