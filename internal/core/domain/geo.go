package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within WGS 84 coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Viewport is a rectangular visible map region described by its center
// and the latitude/longitude span it covers.
type Viewport struct {
	Center  GeoPoint `json:"center"`
	LatSpan float64  `json:"lat_span"`
	LonSpan float64  `json:"lon_span"`
}

// BoundingBox is a rectangular geographic region. Invariant: North > South.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lat <= b.North && p.Lat >= b.South && p.Lon <= b.East && p.Lon >= b.West
}
