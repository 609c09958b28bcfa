package services

import (
	"context"
	"errors"
	"freight-route-service/internal/adapters/carriers"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectShanghaiLosAngelesPreference(t *testing.T) {
	store, sel, _, pub := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-LA-1", "Maersk", domain.ModeSea)
	ctx := context.Background()

	cands := []domain.RouteCandidate{
		seaCandidate("cosco", 70000, 0.4),
		seaCandidate("hapag", 75000, 0.3),
		seaCandidate("maersk", 90000, 0.6),
	}

	n, err := sel.SelectAndPersist(ctx, sh.ID, cands)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	routes, err := store.ListRoutes(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, routes, 3)

	cur, rec := currentAndRecommended(t, routes)
	require.Len(t, cur, 1)
	require.Len(t, rec, 1)
	require.Equal(t, "maersk", cur[0].Provider)
	require.Equal(t, "hapag", rec[0].Provider)
	require.Equal(t, domain.RouteMetadataVersion, rec[0].Metadata.Version)
	require.Greater(t, rec[0].Metadata.CompositeScore, 0.0)

	got, err := store.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.6, got.RiskScore, 1e-9)
	require.NotNil(t, got.ScheduledArrival)
	require.Equal(t, testDeparture.Add(336*time.Hour), got.ScheduledArrival.UTC())

	require.Equal(t, []string{ports.TopicRoutesUpdated}, pub.topics())
	require.Empty(t, mustRecommendations(t, store, sh.ID))
}

func TestSelectFallsBackToFirstCandidate(t *testing.T) {
	store, sel, _, _ := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-2", "Evergreen", domain.ModeSea)
	ctx := context.Background()

	_, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{
		seaCandidate("cosco", 70000, 0.4),
		seaCandidate("hapag", 75000, 0.3),
	})
	require.NoError(t, err)

	routes, _ := store.ListRoutes(ctx, sh.ID)
	cur, _ := currentAndRecommended(t, routes)
	require.Len(t, cur, 1)
	require.Equal(t, "cosco", cur[0].Provider)
}

func TestSelectReplacesWholeSet(t *testing.T) {
	store, sel, _, _ := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-3", "", domain.ModeSea)
	ctx := context.Background()

	_, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{
		seaCandidate("cosco", 70000, 0.4),
		seaCandidate("hapag", 75000, 0.3),
		seaCandidate("one", 76000, 0.3),
	})
	require.NoError(t, err)
	before, _ := store.ListRoutes(ctx, sh.ID)

	n, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{
		seaCandidate("msc", 65000, 0.2),
		seaCandidate("zim", 68000, 0.25),
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	after, _ := store.ListRoutes(ctx, sh.ID)
	require.Len(t, after, 2)
	for _, old := range before {
		for _, r := range after {
			require.NotEqual(t, old.ID, r.ID)
		}
	}
	cur, _ := currentAndRecommended(t, after)
	require.Len(t, cur, 1)
}

func TestSelectRollsBackOnInsertFailure(t *testing.T) {
	store, sel, _, pub := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-4", "", domain.ModeSea)
	ctx := context.Background()

	_, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{seaCandidate("cosco", 70000, 0.4)})
	require.NoError(t, err)
	before, _ := store.ListRoutes(ctx, sh.ID)

	store.BeforeInsertRoute = func(r domain.Route) error {
		if r.Provider == "zim" {
			return errors.New("disk full")
		}
		return nil
	}

	n, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{
		seaCandidate("msc", 65000, 0.2),
		seaCandidate("zim", 68000, 0.25),
	})
	require.Error(t, err)
	require.Zero(t, n)

	after, _ := store.ListRoutes(ctx, sh.ID)
	require.Equal(t, before, after)

	got, _ := store.GetShipment(ctx, sh.ID)
	require.InDelta(t, 0.4, got.RiskScore, 1e-9)
	require.Len(t, pub.topics(), 1)
}

func TestSelectUnknownShipment(t *testing.T) {
	_, sel, _, _ := newPipeline(t, nil, RationaleConfig{Offline: true})

	n, err := sel.SelectAndPersist(context.Background(), 999, []domain.RouteCandidate{seaCandidate("cosco", 1, 0.1)})
	require.ErrorIs(t, err, ports.ErrShipmentNotFound)
	require.Zero(t, n)
}

func TestSelectEmptyKeepsRoutes(t *testing.T) {
	store, sel, _, _ := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-5", "", domain.ModeSea)
	ctx := context.Background()

	_, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{seaCandidate("cosco", 70000, 0.4)})
	require.NoError(t, err)

	n, err := sel.SelectAndPersist(ctx, sh.ID, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	routes, _ := store.ListRoutes(ctx, sh.ID)
	require.Len(t, routes, 1)
}

func TestSelectRejectsInvalidCandidates(t *testing.T) {
	store, sel, _, pub := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-BAD", "", domain.ModeSea)
	ctx := context.Background()

	_, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{seaCandidate("cosco", 70000, 0.4)})
	require.NoError(t, err)

	tooRisky := seaCandidate("msc", 65000, 1.4)
	oneStop := seaCandidate("zim", 68000, 0.2, wpShanghai)

	for _, bad := range []domain.RouteCandidate{tooRisky, oneStop} {
		n, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{seaCandidate("one", 60000, 0.1), bad})
		require.ErrorIs(t, err, domain.ErrInvalidCandidate)
		require.Zero(t, n)
	}

	routes, _ := store.ListRoutes(ctx, sh.ID)
	require.Len(t, routes, 1)
	require.Equal(t, "cosco", routes[0].Provider)
	require.Len(t, pub.topics(), 1)
}

func TestSelectHighRiskRedSeaTriggersRecommendation(t *testing.T) {
	store, sel, _, pub := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-RTM-1", "Maersk", domain.ModeSea)
	ctx := context.Background()

	suez := seaCandidate("maersk", 80000, 0.85, wpShanghai, wpSingapore, wpBabMandeb, wpRedSea, wpSuez, wpRotterdam)
	suez.DistanceKm = 19500
	cape := seaCandidate("msc", 88000, 0.5, wpShanghai, wpSingapore, wpRotterdam)

	n, err := sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{suez, cape})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	recs := mustRecommendations(t, store, sh.ID)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, domain.SeverityHigh, rec.Severity)
	require.Equal(t, domain.StatusPending, rec.Status)
	require.Equal(t, domain.RecommendationReroute, rec.Type)
	require.Equal(t, domain.TierOffline, rec.Rationale.Tier)

	routes, err := store.ListRoutes(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, routes, 3)

	cur, recommended := currentAndRecommended(t, routes)
	require.Len(t, cur, 1)
	require.Equal(t, "maersk", cur[0].Provider)
	require.Len(t, recommended, 1)

	alt := recommended[0]
	require.Equal(t, rec.ProposedRouteID, alt.ID)
	require.True(t, alt.Metadata.Alternative)
	require.LessOrEqual(t, alt.Risk, 0.70+1e-9)
	require.InDelta(t, 1.20, alt.DistanceKm/cur[0].DistanceKm, 1e-3)
	require.Contains(t, rec.Data.Alternatives, alt.ID)
	require.Equal(t, cur[0].ID, rec.Data.CurrentRouteID)

	require.Equal(t, []string{ports.TopicRecommendationsCreated, ports.TopicRoutesUpdated}, pub.topics())

	// a refresh with the same data must not open a second recommendation
	_, err = sel.SelectAndPersist(ctx, sh.ID, []domain.RouteCandidate{suez, cape})
	require.NoError(t, err)
	require.Len(t, mustRecommendations(t, store, sh.ID), 1)
}

func TestSelectSingleHighRiskRouteDoesNotReroute(t *testing.T) {
	store, sel, _, _ := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-6", "", domain.ModeSea)

	_, err := sel.SelectAndPersist(context.Background(), sh.ID, []domain.RouteCandidate{seaCandidate("cosco", 70000, 0.9)})
	require.NoError(t, err)
	require.Empty(t, mustRecommendations(t, store, sh.ID))
}

func TestRefreshShipmentEndToEnd(t *testing.T) {
	store, _, rerouter, pub := newPipeline(t, nil, RationaleConfig{Offline: true})
	sh := newTestShipment(t, store, "SH-7", "Maersk", domain.ModeSea)

	reg := carriers.NewRegistry(
		carriers.NewMockFetcher("maersk", []domain.TransportMode{domain.ModeSea}, seaCandidate("maersk", 90000, 0.6)),
		carriers.NewMockFetcher("hapag", []domain.TransportMode{domain.ModeSea}, seaCandidate("hapag", 75000, 0.3)),
	)
	agg, err := NewAggregator(reg, nil, nil, DefaultAggregationConfig())
	require.NoError(t, err)
	sel, err := NewSelector(store, newTestScorer(t), agg, rerouter, pub, 0.75)
	require.NoError(t, err)

	res, err := sel.RefreshShipment(context.Background(), sh.ID)
	require.NoError(t, err)
	require.Equal(t, 2, res.Stored)
	require.Len(t, res.Providers, 2)

	_, err = sel.RefreshShipment(context.Background(), 404)
	require.ErrorIs(t, err, ports.ErrShipmentNotFound)
}

func mustRecommendations(t *testing.T, store ports.Store, shipmentID int64) []domain.Recommendation {
	t.Helper()
	recs, err := store.ListRecommendations(context.Background(), domain.SubjectShipment, shipmentID)
	require.NoError(t, err)
	return recs
}
