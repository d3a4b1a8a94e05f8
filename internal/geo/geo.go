// Package geo computes great-circle distances and evaluates the work-site geofence
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters
const EarthRadiusMeters = 6371000.0

// Default work-site reference point and radius
const (
	DefaultCenterLat    = 37.0778566841938
	DefaultCenterLng    = 126.954553958864
	DefaultRadiusMeters = 1000.0
)

// Point is a latitude/longitude pair in degrees
type Point struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the haversine distance between two points
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a past 1 for near-antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Geofence is a circle around a reference point
type Geofence struct {
	Center       Point
	RadiusMeters float64
}

// DefaultGeofence returns the work-site geofence
func DefaultGeofence() Geofence {
	return Geofence{
		Center:       Point{Lat: DefaultCenterLat, Lng: DefaultCenterLng},
		RadiusMeters: DefaultRadiusMeters,
	}
}

// Distance returns the distance from p to the center
func (g Geofence) Distance(p Point) float64 {
	return DistanceMeters(p.Lat, p.Lng, g.Center.Lat, g.Center.Lng)
}

// Allows reports whether a measured distance is inside the fence. The boundary is inclusive
// and a non-finite distance is never inside.
func (g Geofence) Allows(distance float64) bool {
	if !IsFinite(distance) {
		return false
	}
	return distance <= g.RadiusMeters
}

// Contains returns the distance from p to the center and whether p is inside
func (g Geofence) Contains(p Point) (float64, bool) {
	d := g.Distance(p)
	return d, g.Allows(d)
}

// IsFinite reports whether f is neither NaN nor infinite
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
