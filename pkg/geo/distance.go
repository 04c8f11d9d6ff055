package geo

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by every distance helper.
	EarthRadiusMeters = 6371000.0
	averageSpeedKmh   = 40.0 // city traffic average
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewPoint builds a Point from latitude and longitude.
func NewPoint(lat, lng float64) Point {
	return Point{Latitude: lat, Longitude: lng}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// HaversineMeters returns the great-circle distance between a and b in metres.
func HaversineMeters(a, b Point) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// DistanceToSegmentMeters returns the distance from p to the segment start-end.
//
// The projection parameter is computed treating latitude and longitude as planar
// coordinates, clamped to the segment, and the final distance to the projected
// point is a haversine distance. This is accurate enough for city and country
// scale routes and drifts near the poles.
func DistanceToSegmentMeters(p, start, end Point) float64 {
	dx := end.Latitude - start.Latitude
	dy := end.Longitude - start.Longitude

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return HaversineMeters(p, start)
	}

	t := ((p.Latitude-start.Latitude)*dx + (p.Longitude-start.Longitude)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	projected := Point{
		Latitude:  start.Latitude + t*dx,
		Longitude: start.Longitude + t*dy,
	}
	return HaversineMeters(p, projected)
}

// MinDistanceToPolylineMeters returns the smallest segment distance from p to line.
// A single point line measures the distance to that point; an empty line returns +Inf.
func MinDistanceToPolylineMeters(p Point, line []Point) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return HaversineMeters(p, line[0])
	}

	best := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := DistanceToSegmentMeters(p, line[i], line[i+1]); d < best {
			best = d
		}
	}
	return best
}

// BearingDegrees returns the initial bearing from a to b in [0, 360).
func BearingDegrees(a, b Point) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	deg := math.Atan2(y, x) * 180.0 / math.Pi
	return math.Mod(deg+360, 360)
}

// EstimateDuration returns the estimated travel time in minutes for a given
// distance in kilometres, assuming an average city speed of 40 km/h.
func EstimateDuration(distanceKm float64) int {
	return int(math.Round((distanceKm / averageSpeedKmh) * 60))
}
