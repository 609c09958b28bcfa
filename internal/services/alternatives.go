package services

import (
	"freight-route-service/internal/domain"
	"math"
)

// Multipliers for an alternative when no known corridor is involved.
var genericAlternative = domain.Corridor{
	ID:              "generic",
	DistanceFactor:  1.05,
	DurationFactor:  1.03,
	CostFactor:      0.97,
	EmissionsFactor: 0.98,
	RiskReduction:   0.10,
}

// AlternativeGenerator derives a lower-risk variant of a current route.
// Routes through a known chokepoint are diverted around it; anything else
// gets a generic re-plan.
type AlternativeGenerator struct {
	corridors []domain.Corridor
}

func NewAlternativeGenerator(corridors []domain.Corridor) *AlternativeGenerator {
	return &AlternativeGenerator{corridors: append([]domain.Corridor(nil), corridors...)}
}

// Generate returns an unpersisted recommended route for the shipment.
func (g *AlternativeGenerator) Generate(sh domain.Shipment, current domain.Route) domain.Route {
	alt := current.Clone()
	alt.ID = 0
	alt.ShipmentID = sh.ID
	alt.IsCurrent = false
	alt.IsRecommended = true
	alt.CreatedAt = current.CreatedAt

	corridor, diverted := g.divert(current.Waypoints)
	if diverted != nil {
		alt.Waypoints = diverted
		alt.Service = current.Service + " via " + corridor.Detour.Name
		alt.RiskFactors = append(alt.RiskFactors, "diversion:"+corridor.ID)
	} else {
		corridor = genericAlternative
		alt.Service = current.Service + " Alternative"
		alt.RiskFactors = append(alt.RiskFactors, "replan:"+corridor.ID)
	}

	alt.DistanceKm = round2(current.DistanceKm * corridor.DistanceFactor)
	alt.DurationHours = round2(current.DurationHours * corridor.DurationFactor)
	alt.CostUSD = round2(current.CostUSD * corridor.CostFactor)
	alt.EmissionsKg = round2(current.EmissionsKg * corridor.EmissionsFactor)
	alt.Risk = math.Max(0, current.Risk-corridor.RiskReduction)
	alt.Features = append(alt.Features, "reroute")

	alt.Metadata = domain.MetadataFor(alt.RouteCandidate)
	alt.Metadata.Alternative = true
	return alt
}

// divert replaces every waypoint that names a corridor chokepoint with the
// corridor's detour, inserted once at the first match. Nil when no corridor
// matches.
func (g *AlternativeGenerator) divert(wps []domain.Waypoint) (domain.Corridor, []domain.Waypoint) {
	for _, c := range g.corridors {
		out := make([]domain.Waypoint, 0, len(wps))
		inserted := false
		for _, wp := range wps {
			if !c.Matches(wp.Name) {
				out = append(out, wp)
				continue
			}
			if !inserted {
				d := c.Detour
				if d.Type == "" {
					d.Type = domain.WaypointDiversion
				}
				out = append(out, d)
				inserted = true
			}
		}
		if inserted && len(out) >= 2 {
			return c, out
		}
	}
	return domain.Corridor{}, nil
}
