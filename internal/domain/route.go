package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type TransportMode string

const (
	ModeSea        TransportMode = "SEA"
	ModeAir        TransportMode = "AIR"
	ModeRoad       TransportMode = "ROAD"
	ModeRail       TransportMode = "RAIL"
	ModeMultimodal TransportMode = "MULTIMODAL"
)

// ParseMode normalizes free-form mode input. Unknown or empty input yields "".
func ParseMode(s string) TransportMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SEA", "OCEAN":
		return ModeSea
	case "AIR":
		return ModeAir
	case "ROAD", "TRUCK", "GROUND":
		return ModeRoad
	case "RAIL", "TRAIN":
		return ModeRail
	case "MULTIMODAL", "ALL", "ANY":
		return ModeMultimodal
	}
	return ""
}

// Specific reports whether m names a single mode (not empty, not MULTIMODAL).
func (m TransportMode) Specific() bool {
	return m == ModeSea || m == ModeAir || m == ModeRoad || m == ModeRail
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// One option for moving a shipment, as returned by a carrier source.
// Values are totals for the whole route.
type RouteCandidate struct {
	Provider      string
	Service       string
	ServiceType   string
	Waypoints     []Waypoint
	DistanceKm    float64
	DurationHours float64
	CostUSD       float64
	EmissionsKg   float64
	Risk          float64
	Confidence    Confidence
	Features      []string
	Modes         []TransportMode
	RiskFactors   []string

	// Estimated marks data not sourced from a live carrier API.
	Estimated   bool
	Synthesized bool

	// Score is the composite score assigned by the scorer.
	Score float64
}

var ErrInvalidCandidate = errors.New("invalid route candidate")

func (c RouteCandidate) Validate() error {
	if len(c.Waypoints) < 2 {
		return fmt.Errorf("%w: need at least 2 waypoints, got %d", ErrInvalidCandidate, len(c.Waypoints))
	}
	if c.Risk < 0 || c.Risk > 1 {
		return fmt.Errorf("%w: risk %.3f outside [0,1]", ErrInvalidCandidate, c.Risk)
	}
	if c.DistanceKm < 0 || c.CostUSD < 0 || c.EmissionsKg < 0 || c.DurationHours < 0 {
		return fmt.Errorf("%w: negative metric", ErrInvalidCandidate)
	}
	return nil
}

func (c RouteCandidate) HasMode(m TransportMode) bool {
	for _, x := range c.Modes {
		if x == m {
			return true
		}
	}
	return false
}

// PrimaryMode returns the first tagged mode, or "" when untagged.
func (c RouteCandidate) PrimaryMode() TransportMode {
	if len(c.Modes) == 0 {
		return ""
	}
	return c.Modes[0]
}

// Name is the display name used for persisted routes.
func (c RouteCandidate) Name() string {
	svc := strings.TrimSpace(c.Service)
	if svc == "" {
		svc = strings.TrimSpace(c.ServiceType)
	}
	if svc == "" {
		return strings.ToUpper(c.Provider)
	}
	return fmt.Sprintf("%s %s", strings.ToUpper(c.Provider), svc)
}

// A persisted route attached to a shipment.
// Invariant: per shipment, exactly one route is current once any routes exist.
type Route struct {
	RouteCandidate

	ID            int64
	ShipmentID    int64
	IsCurrent     bool
	IsRecommended bool
	Metadata      RouteMetadata
	CreatedAt     time.Time
}

// Clone returns a deep copy so callers can derive variants safely.
func (r Route) Clone() Route {
	out := r
	out.Waypoints = append([]Waypoint(nil), r.Waypoints...)
	out.Features = append([]string(nil), r.Features...)
	out.Modes = append([]TransportMode(nil), r.Modes...)
	out.RiskFactors = append([]string(nil), r.RiskFactors...)
	out.Metadata.TransportModes = append([]TransportMode(nil), r.Metadata.TransportModes...)
	return out
}
