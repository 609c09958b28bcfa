package domain

import (
	"math"
	"strings"
)

// Axis-aligned lat/lon rectangle. A box must not span the antimeridian.
type BoundingBox struct {
	MinLat float64 `toml:"min_lat" json:"min_lat"`
	MinLon float64 `toml:"min_lon" json:"min_lon"`
	MaxLat float64 `toml:"max_lat" json:"max_lat"`
	MaxLon float64 `toml:"max_lon" json:"max_lon"`
}

func (b BoundingBox) Contains(c Coordinates) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// IntersectsSegment clips the straight lat/lon segment a->b against the box
// (Liang-Barsky) and reports whether any part of it lies inside. Legs more
// than 180 degrees of longitude apart cross the antimeridian.
func (b BoundingBox) IntersectsSegment(a, c Coordinates) bool {
	if b.Contains(a) || b.Contains(c) {
		return true
	}

	if dx := c.Lon - a.Lon; math.Abs(dx) > 180 {
		shift := 360.0
		if dx > 0 {
			shift = -360
		}
		// Unwrap one end at a time so each half is tested in range.
		return b.clip(a, Coordinates{Lat: c.Lat, Lon: c.Lon + shift}) ||
			b.clip(Coordinates{Lat: a.Lat, Lon: a.Lon - shift}, c)
	}
	return b.clip(a, c)
}

func (b BoundingBox) clip(a, c Coordinates) bool {
	dx := c.Lon - a.Lon
	dy := c.Lat - a.Lat
	t0, t1 := 0.0, 1.0

	edge := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
		return true
	}

	return edge(-dx, a.Lon-b.MinLon) &&
		edge(dx, b.MaxLon-a.Lon) &&
		edge(-dy, a.Lat-b.MinLat) &&
		edge(dy, b.MaxLat-a.Lat) &&
		t0 <= t1
}

// A static geographic area with a baseline risk floor.
type RiskZone struct {
	ID       string      `toml:"id" json:"id"`
	Name     string      `toml:"name" json:"name"`
	Box      BoundingBox `toml:"box" json:"box"`
	Baseline float64     `toml:"baseline" json:"baseline"`
	Category string      `toml:"category" json:"category"`
}

// Touches reports whether any waypoint lies in the zone or any leg crosses it.
func (z RiskZone) Touches(wps []Waypoint) bool {
	for i, wp := range wps {
		if z.Box.Contains(wp.Coordinates()) {
			return true
		}
		if i > 0 && z.Box.IntersectsSegment(wps[i-1].Coordinates(), wp.Coordinates()) {
			return true
		}
	}
	return false
}

// DefaultRiskZones is the built-in zone table used when no reference file is configured.
func DefaultRiskZones() []RiskZone {
	return []RiskZone{
		{ID: "red_sea", Name: "Red Sea", Box: BoundingBox{MinLat: 12, MinLon: 32, MaxLat: 20, MaxLon: 43}, Baseline: 0.8, Category: "geopolitical"},
		{ID: "gulf_of_aden", Name: "Gulf of Aden", Box: BoundingBox{MinLat: 10, MinLon: 43, MaxLat: 15, MaxLon: 52}, Baseline: 0.7, Category: "piracy"},
		{ID: "strait_of_hormuz", Name: "Strait of Hormuz", Box: BoundingBox{MinLat: 24, MinLon: 54, MaxLat: 28, MaxLon: 58}, Baseline: 0.6, Category: "geopolitical"},
		{ID: "south_china_sea", Name: "South China Sea", Box: BoundingBox{MinLat: 5, MinLon: 105, MaxLat: 25, MaxLon: 120}, Baseline: 0.5, Category: "geopolitical"},
		{ID: "strait_of_malacca", Name: "Strait of Malacca", Box: BoundingBox{MinLat: 1, MinLon: 98, MaxLat: 6, MaxLon: 104}, Baseline: 0.4, Category: "piracy"},
		{ID: "eastern_mediterranean", Name: "Eastern Mediterranean", Box: BoundingBox{MinLat: 30, MinLon: 25, MaxLat: 37, MaxLon: 35}, Baseline: 0.5, Category: "geopolitical"},
	}
}

// A named chokepoint with a known diversion.
type Corridor struct {
	ID       string   `toml:"id" json:"id"`
	Keywords []string `toml:"keywords" json:"keywords"`
	Detour   Waypoint `toml:"detour" json:"detour"`

	DistanceFactor  float64 `toml:"distance_factor" json:"distance_factor"`
	DurationFactor  float64 `toml:"duration_factor" json:"duration_factor"`
	CostFactor      float64 `toml:"cost_factor" json:"cost_factor"`
	EmissionsFactor float64 `toml:"emissions_factor" json:"emissions_factor"`
	RiskReduction   float64 `toml:"risk_reduction" json:"risk_reduction"`
}

// Matches reports whether a waypoint name references this corridor.
func (c Corridor) Matches(name string) bool {
	n := strings.ToLower(name)
	for _, k := range c.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(n, k) {
			return true
		}
	}
	return false
}

func DefaultCorridors() []Corridor {
	return []Corridor{
		{
			ID:       "suez_red_sea",
			Keywords: []string{"red sea", "suez", "bab-el-mandeb", "bab el mandeb"},
			Detour: Waypoint{
				Name: "Cape of Good Hope",
				Lat:  -34.3587,
				Lon:  18.4737,
				Type: WaypointDiversion,
			},
			DistanceFactor:  1.20,
			DurationFactor:  1.14,
			CostFactor:      1.10,
			EmissionsFactor: 1.10,
			RiskReduction:   0.15,
		},
	}
}
