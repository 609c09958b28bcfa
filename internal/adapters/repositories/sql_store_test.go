package repositories

import (
	"context"
	"errors"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/db"
	"freight-route-service/internal/ports"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	conn, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, InitSchema(ctx, conn, db.DialectSQLite))
	return NewSQLStore(conn, db.DialectSQLite)
}

func testShipment(ref string) domain.Shipment {
	return domain.Shipment{
		Reference:          ref,
		OriginPort:         "Shanghai",
		DestinationPort:    "Los Angeles",
		Origin:             domain.Coordinates{Lat: 31.2304, Lon: 121.4737},
		Destination:        domain.Coordinates{Lat: 33.7553, Lon: -118.2769},
		CarrierPreference:  "maersk",
		Mode:               domain.ModeSea,
		WeightKg:           12000,
		ScheduledDeparture: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testRoute(shipmentID int64, provider string, risk float64) domain.Route {
	return domain.Route{
		ShipmentID: shipmentID,
		RouteCandidate: domain.RouteCandidate{
			Provider: provider,
			Service:  "Transpacific",
			Waypoints: []domain.Waypoint{
				{Name: "Shanghai", Lat: 31.2304, Lon: 121.4737, Type: domain.WaypointPort},
				{Name: "Los Angeles", Lat: 33.7553, Lon: -118.2769, Type: domain.WaypointPort},
			},
			DistanceKm:    10500,
			DurationHours: 336,
			CostUSD:       72000,
			EmissionsKg:   8000,
			Risk:          risk,
			Confidence:    domain.ConfidenceHigh,
			Modes:         []domain.TransportMode{domain.ModeSea},
			RiskFactors:   []string{"weather"},
		},
	}
}

func TestSQLStoreShipmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	id, err := s.CreateShipment(ctx, testShipment("SHP-1"))
	require.NoError(t, err)

	got, err := s.GetShipment(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "SHP-1", got.Reference)
	require.Equal(t, domain.ModeSea, got.Mode)
	require.Equal(t, domain.PriorityNormal, got.Priority)
	require.Nil(t, got.ScheduledArrival)
	require.True(t, got.ScheduledDeparture.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	arrival := got.ScheduledDeparture.Add(336 * time.Hour)
	require.NoError(t, s.UpdateShipmentRouting(ctx, id, 0.8, &arrival))

	got, err = s.GetShipment(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 0.8, got.RiskScore)
	require.NotNil(t, got.ScheduledArrival)
	require.True(t, got.ScheduledArrival.Equal(arrival))

	_, err = s.GetShipment(ctx, id+100)
	require.ErrorIs(t, err, ports.ErrShipmentNotFound)
}

func TestSQLStoreTxRollbackKeepsRoutes(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	id, err := s.CreateShipment(ctx, testShipment("SHP-2"))
	require.NoError(t, err)
	_, err = s.InsertRoute(ctx, testRoute(id, "maersk", 0.3))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.InTx(ctx, func(q ports.Queries) error {
		if err := q.DeleteRoutes(ctx, id); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	routes, err := s.ListRoutes(ctx, id)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Equal(t, "maersk", routes[0].Provider)
	require.Equal(t, []domain.TransportMode{domain.ModeSea}, routes[0].Modes)
	require.Equal(t, domain.ConfidenceHigh, routes[0].Confidence)
	require.Len(t, routes[0].Waypoints, 2)
}

func TestSQLStorePendingRecommendationIsUnique(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	id, err := s.CreateShipment(ctx, testShipment("SHP-3"))
	require.NoError(t, err)

	rec := domain.Recommendation{
		Type:        domain.RecommendationReroute,
		SubjectType: domain.SubjectShipment,
		SubjectID:   id,
		Title:       "Reroute",
		Description: "risk",
		Severity:    domain.SeverityHigh,
		Confidence:  0.8,
		Rationale:   domain.Rationale{Text: "avoid zone", Tier: domain.TierFallbackNoAPI},
		CreatedBy:   "reroute-monitor",
	}

	recID, err := s.InsertRecommendation(ctx, rec)
	require.NoError(t, err)
	require.NotZero(t, recID)

	has, err := s.HasPendingRecommendation(ctx, domain.SubjectShipment, id)
	require.NoError(t, err)
	require.True(t, has)

	_, err = s.InsertRecommendation(ctx, rec)
	require.ErrorIs(t, err, ports.ErrRecommendationExists)

	recs, err := s.ListRecommendations(ctx, domain.SubjectShipment, id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.TierFallbackNoAPI, recs[0].Rationale.Tier)
	require.Equal(t, domain.StatusPending, recs[0].Status)
}

func TestSQLStoreListShipmentsAtRisk(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	for i, risk := range []float64{0.2, 0.9, 0.76} {
		sh := testShipment("SHP-R" + string(rune('A'+i)))
		sh.RiskScore = risk
		_, err := s.CreateShipment(ctx, sh)
		require.NoError(t, err)
	}

	got, err := s.ListShipmentsAtRisk(ctx, 0.75, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 0.9, got[0].RiskScore)
	require.Equal(t, 0.76, got[1].RiskScore)

	got, err = s.ListShipmentsAtRisk(ctx, 0.75, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestListShipmentsPagesByID(t *testing.T) {
	ctx := context.Background()
	stores := map[string]ports.Store{"sqlite": newSQLiteStore(t), "memory": NewMemoryStore()}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			var ids []int64
			for _, ref := range []string{"SHP-P1", "SHP-P2", "SHP-P3"} {
				id, err := s.CreateShipment(ctx, testShipment(ref))
				require.NoError(t, err)
				ids = append(ids, id)
			}

			page, err := s.ListShipments(ctx, 0, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			require.Equal(t, ids[0], page[0].ID)

			page, err = s.ListShipments(ctx, page[1].ID, 2)
			require.NoError(t, err)
			require.Len(t, page, 1)
			require.Equal(t, ids[2], page[0].ID)

			page, err = s.ListShipments(ctx, ids[2], 2)
			require.NoError(t, err)
			require.Empty(t, page)
		})
	}
}
