package carriers

import (
	"context"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func laneRequest() ports.FetchRequest {
	return ports.FetchRequest{
		OriginPort:      "Shanghai",
		DestinationPort: "Rotterdam",
		Departure:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Mode:            domain.ModeSea,
		WeightKg:        8000,
	}
}

func TestRegistryUnknownProviderIsNull(t *testing.T) {
	reg := NewRegistry(NewMockFetcher("Maersk", []domain.TransportMode{domain.ModeSea}))

	require.True(t, reg.Has("maersk"))
	require.Equal(t, []string{"maersk"}, reg.Providers())

	f := reg.Get("cosco")
	out := f.Fetch(context.Background(), laneRequest())
	require.Equal(t, ports.OutcomeOK, out.Kind)
	require.Empty(t, out.Candidates)
	require.Equal(t, "cosco", f.Provider())
}

func newTestHTTPFetcher(t *testing.T, h http.HandlerFunc) *HTTPFetcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	f, err := NewHTTPFetcher("DHL", srv.URL, "key", ports.CarrierCapabilities{Modes: []domain.TransportMode{domain.ModeAir}}, time.Second, 0)
	require.NoError(t, err)
	f.client.Backoff = time.Millisecond
	return f
}

func TestHTTPFetcherClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ports.OutcomeKind
	}{
		{"no schedules", http.StatusNotFound, `{}`, ports.OutcomeOK},
		{"forbidden lane", http.StatusForbidden, `{"error":"embargo"}`, ports.OutcomeHard},
		{"bad request", http.StatusBadRequest, `{}`, ports.OutcomeHard},
		{"throttled", http.StatusTooManyRequests, `{}`, ports.OutcomeSoft},
		{"unavailable", http.StatusServiceUnavailable, `{}`, ports.OutcomeSoft},
		{"malformed", http.StatusOK, `{"routes": [`, ports.OutcomeSoft},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			out := f.Fetch(context.Background(), laneRequest())
			require.Equal(t, tc.want, out.Kind, "outcome %s", out.Kind)
			require.Empty(t, out.Candidates)
			if tc.want == ports.OutcomeHard {
				require.Equal(t, tc.status, out.StatusCode)
			}
		})
	}
}

func TestHTTPFetcherParsesRoutesAndDropsInvalid(t *testing.T) {
	f := newTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"routes": [
			{"service": "Express", "service_type": "air", "modes": ["air"],
			 "waypoints": [{"name": "PVG", "lat": 31.14, "lon": 121.8}, {"name": "AMS", "lat": 52.31, "lon": 4.76}],
			 "distance_km": 9000, "transit_hours": 48, "cost_usd": 21000, "emissions_kg": 40000, "risk": 0.2, "confidence": "HIGH"},
			{"service": "Broken", "waypoints": [{"name": "PVG"}], "risk": 0.2}
		]}`))
	})

	out := f.Fetch(context.Background(), laneRequest())
	require.Equal(t, ports.OutcomeOK, out.Kind)
	require.Len(t, out.Candidates, 1)

	c := out.Candidates[0]
	require.Equal(t, "dhl", c.Provider)
	require.Equal(t, []domain.TransportMode{domain.ModeAir}, c.Modes)
	require.Equal(t, domain.ConfidenceHigh, c.Confidence)
	require.Equal(t, 48.0, c.DurationHours)
}

func TestLaneEstimatorDeterministic(t *testing.T) {
	est := NewLaneEstimator(domain.NewPortCatalog(domain.DefaultPorts()), DefaultProviderProfiles(), true)

	a, err := est.Estimate(context.Background(), "maersk", laneRequest())
	require.NoError(t, err)
	b, err := est.Estimate(context.Background(), "maersk", laneRequest())
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 2)

	spot := a[0]
	require.True(t, spot.Estimated)
	require.Equal(t, domain.ConfidenceLow, spot.Confidence)
	require.NoError(t, spot.Validate())
	require.GreaterOrEqual(t, spot.DurationHours, 24.0)

	names := make([]string, 0, len(spot.Waypoints))
	for _, wp := range spot.Waypoints {
		names = append(names, wp.Name)
	}
	require.Equal(t, []string{"Shanghai", "Bab-el-Mandeb Strait", "Red Sea", "Suez Canal", "Rotterdam"}, names)
	require.Greater(t, a[1].CostUSD, spot.CostUSD)
}

func TestLaneEstimatorJitterIsStable(t *testing.T) {
	est := NewLaneEstimator(domain.NewPortCatalog(domain.DefaultPorts()), DefaultProviderProfiles(), false)
	flat := NewLaneEstimator(domain.NewPortCatalog(domain.DefaultPorts()), DefaultProviderProfiles(), true)

	a, err := est.Estimate(context.Background(), "dhl", laneRequest())
	require.NoError(t, err)
	b, err := est.Estimate(context.Background(), "dhl", laneRequest())
	require.NoError(t, err)
	base, err := flat.Estimate(context.Background(), "dhl", laneRequest())
	require.NoError(t, err)

	require.Equal(t, a[0].CostUSD, b[0].CostUSD)
	require.InEpsilon(t, base[0].CostUSD, a[0].CostUSD, jitterSpread)
}

func TestLaneEstimatorSkipsRoadForLongLanes(t *testing.T) {
	est := NewLaneEstimator(domain.NewPortCatalog(domain.DefaultPorts()), DefaultProviderProfiles(), true)

	long, err := est.Estimate(context.Background(), "ups", laneRequest())
	require.NoError(t, err)
	for _, c := range long {
		require.NotEqual(t, domain.ModeRoad, c.PrimaryMode())
	}

	req := laneRequest()
	req.DestinationPort = "Hamburg"
	req.OriginPort = "Rotterdam"
	short, err := est.Estimate(context.Background(), "ups", req)
	require.NoError(t, err)

	var road bool
	for _, c := range short {
		road = road || c.HasMode(domain.ModeRoad)
	}
	require.True(t, road)
}

func TestLaneEstimatorUnknownPort(t *testing.T) {
	est := NewLaneEstimator(domain.NewPortCatalog(domain.DefaultPorts()), nil, true)

	req := laneRequest()
	req.OriginPort = "Atlantis"
	_, err := est.Estimate(context.Background(), "maersk", req)
	require.Error(t, err)

	f, err := NewEstimatedFetcher(ProviderProfile{ID: "maersk"}, est)
	require.NoError(t, err)
	require.Equal(t, ports.OutcomeSoft, f.Fetch(context.Background(), req).Kind)
}
