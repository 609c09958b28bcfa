package domain

import "math"

const earthRadiusKm = 6371.0

// Immutable geographic coordinates (latitude, longitude) in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Kind of a point along a route.
type WaypointType string

const (
	WaypointPort      WaypointType = "port"
	WaypointAirport   WaypointType = "airport"
	WaypointHub       WaypointType = "hub"
	WaypointWaterway  WaypointType = "waterway"
	WaypointWaypoint  WaypointType = "waypoint"
	WaypointTransfer  WaypointType = "transfer"
	WaypointDiversion WaypointType = "diversion"
)

// A named point on a route. Code is the port/airport code when known.
type Waypoint struct {
	Name string       `json:"name"`
	Code string       `json:"code,omitempty"`
	Lat  float64      `json:"lat"`
	Lon  float64      `json:"lon"`
	Type WaypointType `json:"type"`
}

func (w Waypoint) Coordinates() Coordinates { return Coordinates{Lat: w.Lat, Lon: w.Lon} }

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// PathKm sums the great-circle legs between consecutive waypoints.
func PathKm(wps []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(wps); i++ {
		total += HaversineKm(wps[i-1].Coordinates(), wps[i].Coordinates())
	}
	return total
}
