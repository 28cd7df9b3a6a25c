// Package geo holds the pure viewport/bounds arithmetic used by the map
// session layer. Nothing in here performs I/O or returns errors; degenerate
// input always yields a defined fallback value.
package geo

import (
	"math"

	"github.com/canopylabs/canopy/internal/core/domain"
)

const (
	// MinSpan floors viewport spans so a single point or a degenerate
	// cluster never produces a zero-area viewport.
	MinSpan = 0.005

	// DefaultPadding scales the framed extent so points don't sit on the
	// viewport edge.
	DefaultPadding = 1.2

	earthRadiusKm = 6371.0
)

// DefaultViewport is the hard-coded fallback region shown when there is
// nothing to frame and no device location is available.
var DefaultViewport = domain.Viewport{
	Center:  domain.GeoPoint{Lat: 37.7749, Lon: -122.4194},
	LatSpan: 0.5,
	LonSpan: 0.5,
}

// BoundsOf converts a viewport into its bounding box.
func BoundsOf(v domain.Viewport) domain.BoundingBox {
	return domain.BoundingBox{
		North: v.Center.Lat + v.LatSpan/2,
		South: v.Center.Lat - v.LatSpan/2,
		East:  v.Center.Lon + v.LonSpan/2,
		West:  v.Center.Lon - v.LonSpan/2,
	}
}

// Frame computes a viewport that shows every given point with padding.
// Empty input returns DefaultViewport. A single point returns a viewport
// centered on it at maximum zoom (MinSpan, unpadded).
func Frame(points []domain.GeoPoint, padding float64) domain.Viewport {
	if padding <= 0 {
		padding = DefaultPadding
	}

	switch len(points) {
	case 0:
		return DefaultViewport
	case 1:
		return domain.Viewport{Center: points[0], LatSpan: MinSpan, LonSpan: MinSpan}
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
	}

	return domain.Viewport{
		Center: domain.GeoPoint{
			Lat: (minLat + maxLat) / 2,
			Lon: (minLon + maxLon) / 2,
		},
		LatSpan: math.Max((maxLat-minLat)*padding, MinSpan),
		LonSpan: math.Max((maxLon-minLon)*padding, MinSpan),
	}
}

// Validate reports whether a viewport is usable: finite values, in-range
// center, positive spans.
func Validate(v domain.Viewport) bool {
	for _, f := range []float64{v.Center.Lat, v.Center.Lon, v.LatSpan, v.LonSpan} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return v.Center.Valid() && v.LatSpan > 0 && v.LonSpan > 0
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
