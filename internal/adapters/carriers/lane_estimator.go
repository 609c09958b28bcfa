package carriers

import (
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// A service a provider sells on a lane.
type ServiceProfile struct {
	Service     string
	ServiceType string
	Mode        domain.TransportMode
	Features    []string
	CostFactor  float64
}

// ProviderProfile describes what an estimated provider can serve.
type ProviderProfile struct {
	ID       string
	General  bool
	Services []ServiceProfile
}

func (p ProviderProfile) Capabilities() ports.CarrierCapabilities {
	seen := map[domain.TransportMode]bool{}
	caps := ports.CarrierCapabilities{General: p.General}
	for _, s := range p.Services {
		if !seen[s.Mode] {
			seen[s.Mode] = true
			caps.Modes = append(caps.Modes, s.Mode)
		}
	}
	return caps
}

// DefaultProviderProfiles is the built-in provider set used without live APIs.
func DefaultProviderProfiles() []ProviderProfile {
	return []ProviderProfile{
		{
			ID: "maersk",
			Services: []ServiceProfile{
				{Service: "Maersk Spot", ServiceType: "ocean", Mode: domain.ModeSea, Features: []string{"port_to_port"}, CostFactor: 1},
				{Service: "Maersk Flex", ServiceType: "ocean", Mode: domain.ModeSea, Features: []string{"flexible_booking"}, CostFactor: 1.08},
			},
		},
		{
			ID: "dhl",
			Services: []ServiceProfile{
				{Service: "DHL Express Worldwide", ServiceType: "express", Mode: domain.ModeAir, Features: []string{"door_to_door", "tracking"}, CostFactor: 1.05},
			},
		},
		{
			ID: "fedex",
			Services: []ServiceProfile{
				{Service: "FedEx International Priority Freight", ServiceType: "express", Mode: domain.ModeAir, Features: []string{"tracking"}, CostFactor: 1},
			},
		},
		{
			ID:      "ups",
			General: true,
			Services: []ServiceProfile{
				{Service: "UPS Ocean Freight", ServiceType: "ocean", Mode: domain.ModeSea, CostFactor: 1.03},
				{Service: "UPS Worldwide Express Freight", ServiceType: "air", Mode: domain.ModeAir, CostFactor: 1.1},
				{Service: "UPS Ground Freight", ServiceType: "ground", Mode: domain.ModeRoad, CostFactor: 1},
			},
		},
	}
}

type modeModel struct {
	routingFactor float64
	speedKmh      float64
	handlingHours float64
	baseUSD       float64
	usdPerTonKm   float64
	co2PerTonKm   float64
	baseRisk      float64
	// maxKm limits great-circle lane length; 0 means unlimited.
	maxKm float64
}

var modeModels = map[domain.TransportMode]modeModel{
	domain.ModeSea:  {routingFactor: 1.25, speedKmh: 35, baseUSD: 1200, usdPerTonKm: 0.015, co2PerTonKm: 0.015, baseRisk: 0.30},
	domain.ModeAir:  {routingFactor: 1.05, speedKmh: 750, handlingHours: 24, baseUSD: 500, usdPerTonKm: 0.9, co2PerTonKm: 0.60, baseRisk: 0.15},
	domain.ModeRoad: {routingFactor: 1.3, speedKmh: 60, baseUSD: 300, usdPerTonKm: 0.12, co2PerTonKm: 0.10, baseRisk: 0.20, maxKm: 3000},
	domain.ModeRail: {routingFactor: 1.2, speedKmh: 45, handlingHours: 12, baseUSD: 600, usdPerTonKm: 0.06, co2PerTonKm: 0.03, baseRisk: 0.25, maxKm: 3000},
}

const (
	transitBuffer   = 1.2
	minTransitHours = 24.0
	jitterSpread    = 0.10
)

// Sea passage between Asia and Europe, listed from the Asian side.
var suezPassage = []domain.Waypoint{
	{Name: "Bab-el-Mandeb Strait", Lat: 12.58, Lon: 43.33, Type: domain.WaypointWaterway},
	{Name: "Red Sea", Lat: 20.0, Lon: 38.5, Type: domain.WaypointWaterway},
	{Name: "Suez Canal", Lat: 30.58, Lon: 32.27, Type: domain.WaypointWaterway},
}

// LaneEstimator produces non-live candidates from lane geometry and
// per-mode cost models. It serves both as an offline carrier source and as
// the fallback for providers that fail softly.
type LaneEstimator struct {
	catalog       *domain.PortCatalog
	profiles      map[string]ProviderProfile
	deterministic bool
}

func NewLaneEstimator(catalog *domain.PortCatalog, profiles []ProviderProfile, deterministic bool) *LaneEstimator {
	m := make(map[string]ProviderProfile, len(profiles))
	for _, p := range profiles {
		m[NormalizeProvider(p.ID)] = p
	}
	return &LaneEstimator{catalog: catalog, profiles: m, deterministic: deterministic}
}

// Estimate returns candidates for every feasible service of provider.
// Unknown providers get a single generic service in the requested mode.
func (e *LaneEstimator) Estimate(_ context.Context, provider string, req ports.FetchRequest) ([]domain.RouteCandidate, error) {
	provider = NormalizeProvider(provider)

	origin, err := e.resolve(req.OriginPort, req.Origin)
	if err != nil {
		return nil, fmt.Errorf("estimate %s: origin: %w", provider, err)
	}
	dest, err := e.resolve(req.DestinationPort, req.Destination)
	if err != nil {
		return nil, fmt.Errorf("estimate %s: destination: %w", provider, err)
	}

	profile, ok := e.profiles[provider]
	if !ok {
		mode := req.Mode
		if !mode.Specific() {
			mode = domain.ModeSea
		}
		profile = ProviderProfile{
			ID:       provider,
			Services: []ServiceProfile{{Service: "Standard", ServiceType: string(mode), Mode: mode, CostFactor: 1}},
		}
	}

	out := make([]domain.RouteCandidate, 0, len(profile.Services))
	for _, svc := range profile.Services {
		c, ok := e.candidate(provider, svc, origin, dest, req)
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *LaneEstimator) resolve(name string, coords domain.Coordinates) (domain.Waypoint, error) {
	if coords.Lat != 0 || coords.Lon != 0 {
		wp := domain.Waypoint{Name: name, Lat: coords.Lat, Lon: coords.Lon, Type: domain.WaypointPort}
		if p, ok := e.catalog.Lookup(name); ok {
			wp.Code = p.Code
		}
		return wp, nil
	}
	p, ok := e.catalog.Lookup(name)
	if !ok {
		return domain.Waypoint{}, fmt.Errorf("unknown port %q", name)
	}
	return p.Waypoint(), nil
}

func (e *LaneEstimator) candidate(provider string, svc ServiceProfile, origin, dest domain.Waypoint, req ports.FetchRequest) (domain.RouteCandidate, bool) {
	model, ok := modeModels[svc.Mode]
	if !ok {
		return domain.RouteCandidate{}, false
	}

	direct := domain.HaversineKm(origin.Coordinates(), dest.Coordinates())
	if model.maxKm > 0 && direct > model.maxKm {
		return domain.RouteCandidate{}, false
	}

	wps := []domain.Waypoint{origin}
	if svc.Mode == domain.ModeSea {
		wps = append(wps, seaPassage(origin, dest)...)
	}
	wps = append(wps, dest)

	distance := domain.PathKm(wps) * model.routingFactor
	tons := math.Max(req.WeightKg/1000, 1)
	costFactor := svc.CostFactor
	if costFactor <= 0 {
		costFactor = 1
	}

	costJitter, timeJitter := 1.0, 1.0
	if !e.deterministic {
		rng := seededRand(provider, svc.Service, origin.Name, dest.Name, req.Departure.Format("2006-01-02"))
		costJitter = 1 - jitterSpread/2 + jitterSpread*rng.Float64()
		timeJitter = 1 - jitterSpread/2 + jitterSpread*rng.Float64()
	}

	hours := math.Max(minTransitHours, distance/model.speedKmh*transitBuffer+model.handlingHours) * timeJitter
	cost := (model.baseUSD + model.usdPerTonKm*tons*distance) * costFactor * costJitter

	return domain.RouteCandidate{
		Provider:      provider,
		Service:       svc.Service,
		ServiceType:   svc.ServiceType,
		Waypoints:     wps,
		DistanceKm:    round2(distance),
		DurationHours: round2(hours),
		CostUSD:       round2(cost),
		EmissionsKg:   round2(model.co2PerTonKm * tons * distance),
		Risk:          model.baseRisk,
		Confidence:    domain.ConfidenceLow,
		Features:      append(append([]string(nil), svc.Features...), "estimated"),
		Modes:         []domain.TransportMode{svc.Mode},
		Estimated:     true,
	}, true
}

// seaPassage returns the canal passage for Asia-Europe lanes, oriented from origin.
func seaPassage(origin, dest domain.Waypoint) []domain.Waypoint {
	isAsia := func(w domain.Waypoint) bool { return w.Lon >= 60 }
	isEurope := func(w domain.Waypoint) bool { return w.Lat >= 30 && w.Lon >= -15 && w.Lon <= 40 }

	switch {
	case isAsia(origin) && isEurope(dest):
		return append([]domain.Waypoint(nil), suezPassage...)
	case isEurope(origin) && isAsia(dest):
		out := make([]domain.Waypoint, 0, len(suezPassage))
		for i := len(suezPassage) - 1; i >= 0; i-- {
			out = append(out, suezPassage[i])
		}
		return out
	}
	return nil
}

func seededRand(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// EstimatedFetcher exposes one provider of a LaneEstimator as a carrier source.
type EstimatedFetcher struct {
	profile   ProviderProfile
	estimator *LaneEstimator
}

func NewEstimatedFetcher(profile ProviderProfile, estimator *LaneEstimator) (*EstimatedFetcher, error) {
	if NormalizeProvider(profile.ID) == "" {
		return nil, errors.New("new estimated fetcher: provider id is required")
	}
	return &EstimatedFetcher{profile: profile, estimator: estimator}, nil
}

func (f *EstimatedFetcher) Provider() string { return NormalizeProvider(f.profile.ID) }

func (f *EstimatedFetcher) Capabilities() ports.CarrierCapabilities { return f.profile.Capabilities() }

func (f *EstimatedFetcher) Fetch(ctx context.Context, req ports.FetchRequest) ports.FetchOutcome {
	c, err := f.estimator.Estimate(ctx, f.Provider(), req)
	if err != nil {
		return ports.FetchSoft(err)
	}
	return ports.FetchOK(c)
}
