package services

import (
	"context"
	"freight-route-service/internal/adapters/repositories"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	wpShanghai   = domain.Waypoint{Name: "Shanghai", Code: "CNSHA", Lat: 31.23, Lon: 121.47, Type: domain.WaypointPort}
	wpLosAngeles = domain.Waypoint{Name: "Los Angeles", Code: "USLAX", Lat: 33.74, Lon: -118.27, Type: domain.WaypointPort}
	wpSingapore  = domain.Waypoint{Name: "Singapore", Code: "SGSIN", Lat: 1.26, Lon: 103.84, Type: domain.WaypointPort}
	wpRotterdam  = domain.Waypoint{Name: "Rotterdam", Code: "NLRTM", Lat: 51.95, Lon: 4.14, Type: domain.WaypointPort}
	wpBabMandeb  = domain.Waypoint{Name: "Bab-el-Mandeb", Lat: 12.58, Lon: 43.33, Type: domain.WaypointWaterway}
	wpRedSea     = domain.Waypoint{Name: "Red Sea", Lat: 18.0, Lon: 39.5, Type: domain.WaypointWaterway}
	wpSuez       = domain.Waypoint{Name: "Suez Canal", Lat: 30.58, Lon: 32.27, Type: domain.WaypointWaterway}
	wpPacific    = domain.Waypoint{Name: "North Pacific", Lat: 40.0, Lon: -170.0, Type: domain.WaypointWaypoint}
)

var testDeparture = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func seaCandidate(provider string, cost, risk float64, wps ...domain.Waypoint) domain.RouteCandidate {
	if len(wps) == 0 {
		wps = []domain.Waypoint{wpShanghai, wpPacific, wpLosAngeles}
	}
	return domain.RouteCandidate{
		Provider:      provider,
		Service:       "Ocean Standard",
		ServiceType:   "SEA",
		Waypoints:     wps,
		DistanceKm:    10500,
		DurationHours: 336,
		CostUSD:       cost,
		EmissionsKg:   20000,
		Risk:          risk,
		Confidence:    domain.ConfidenceHigh,
		Modes:         []domain.TransportMode{domain.ModeSea},
	}
}

func newTestShipment(t *testing.T, store ports.Store, ref, preference string, mode domain.TransportMode) domain.Shipment {
	t.Helper()

	sh := domain.Shipment{
		Reference:          ref,
		OriginPort:         "Shanghai",
		DestinationPort:    "Los Angeles",
		Origin:             wpShanghai.Coordinates(),
		Destination:        wpLosAngeles.Coordinates(),
		CarrierPreference:  preference,
		Mode:               mode,
		Priority:           domain.PriorityNormal,
		WeightKg:           12000,
		DeclaredValueUSD:   250000,
		ScheduledDeparture: testDeparture,
	}
	id, err := store.CreateShipment(context.Background(), sh)
	require.NoError(t, err)
	sh.ID = id
	return sh
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultScoringWeights(), DefaultScoringCaps())
	require.NoError(t, err)
	return s
}

func currentAndRecommended(t *testing.T, routes []domain.Route) (cur, rec []domain.Route) {
	t.Helper()
	for _, r := range routes {
		if r.IsCurrent {
			cur = append(cur, r)
		}
		if r.IsRecommended {
			rec = append(rec, r)
		}
	}
	return cur, rec
}

type publishedEvent struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, payload: payload})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type generatorFunc func(ctx context.Context, req ports.GenerateRequest) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	return f(ctx, req)
}

// newPipeline wires builder, rerouter and selector over a memory store.
func newPipeline(t *testing.T, gen ports.RationaleGenerator, cfg RationaleConfig) (*repositories.MemoryStore, *Selector, *Rerouter, *recordingPublisher) {
	t.Helper()

	store := repositories.NewMemoryStore()
	pub := &recordingPublisher{}
	scorer := newTestScorer(t)

	builder, err := NewRecommendationBuilder(store, gen, scorer, pub, cfg)
	require.NoError(t, err)
	rerouter := NewRerouter(store, NewAlternativeGenerator(domain.DefaultCorridors()), builder, 0.75)

	sel, err := NewSelector(store, scorer, nil, rerouter, pub, 0.75)
	require.NoError(t, err)
	return store, sel, rerouter, pub
}
