package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for great-circle distances.
const earthRadiusMeters = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Verdict is the outcome of a single geofence evaluation.
type Verdict struct {
	DistanceMeters float64 `json:"distance_meters"`
	WithinRadius   bool    `json:"within_radius"`
}

// Distance returns the haversine great-circle distance between two
// coordinates, in meters. Coordinates are taken as given; no range
// validation is performed.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Evaluate decides whether position lies within radiusMeters of center.
// A position at exactly the radius counts as inside.
func Evaluate(position, center Coordinate, radiusMeters float64) Verdict {
	d := Distance(position, center)
	return Verdict{
		DistanceMeters: d,
		WithinRadius:   d <= radiusMeters,
	}
}
