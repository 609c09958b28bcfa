package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"freight-route-service/internal/adapters/repositories"
	"freight-route-service/internal/api/dto"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"freight-route-service/internal/services"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubRefresher struct {
	calls  []int64
	result services.RefreshResult
	err    error
}

func (s *stubRefresher) RefreshShipment(_ context.Context, id int64) (services.RefreshResult, error) {
	s.calls = append(s.calls, id)
	return s.result, s.err
}

type stubMonitor struct {
	report    services.CycleReport
	err       error
	runs      int
	triggered []int64
	full      bool
}

func (s *stubMonitor) RunCycle(context.Context) (services.CycleReport, error) {
	s.runs++
	return s.report, s.err
}

func (s *stubMonitor) State() services.MonitorState { return services.MonitorIdle }

func (s *stubMonitor) Trigger(id int64) bool {
	if s.full {
		return false
	}
	s.triggered = append(s.triggered, id)
	return true
}

func seedStore(t *testing.T) (*repositories.MemoryStore, int64) {
	t.Helper()
	ctx := context.Background()
	store := repositories.NewMemoryStore()

	id, err := store.CreateShipment(ctx, domain.Shipment{
		Reference:          "SH-API-1",
		OriginPort:         "Shanghai",
		DestinationPort:    "Rotterdam",
		Mode:               domain.ModeSea,
		ScheduledDeparture: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	for _, p := range []struct {
		provider string
		current  bool
		risk     float64
	}{{"maersk", true, 0.85}, {"msc", false, 0.5}} {
		_, err := store.InsertRoute(ctx, domain.Route{
			ShipmentID: id,
			IsCurrent:  p.current,
			RouteCandidate: domain.RouteCandidate{
				Provider:      p.provider,
				Service:       "Asia-Europe Loop",
				DistanceKm:    19500,
				DurationHours: 600,
				CostUSD:       80000,
				EmissionsKg:   30000,
				Risk:          p.risk,
				Confidence:    domain.ConfidenceHigh,
				Modes:         []domain.TransportMode{domain.ModeSea},
			},
		})
		require.NoError(t, err)
	}

	_, err = store.InsertRecommendation(ctx, domain.Recommendation{
		Type:        domain.RecommendationReroute,
		SubjectType: domain.SubjectShipment,
		SubjectID:   id,
		SubjectRef:  "SH-API-1",
		Title:       "Reroute SH-API-1",
		Severity:    domain.SeverityHigh,
		Confidence:  0.85,
	})
	require.NoError(t, err)

	return store, id
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := NewRouter(repositories.NewMemoryStore(), nil, nil, nil)

	rec := do(t, h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/health")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListRoutes(t *testing.T) {
	store, id := seedStore(t)
	h := NewRouter(store, nil, nil, nil)

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/shipments/%d/routes", id))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res dto.ListRoutesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "SH-API-1", res.Reference)
	require.Len(t, res.Routes, 2)
	require.Equal(t, "maersk", res.Routes[0].Provider)
	require.True(t, res.Routes[0].IsCurrent)
	require.NotNil(t, res.Routes[0].Features)
	require.Equal(t, domain.RouteMetadataVersion, res.Routes[1].Metadata.Version)
}

func TestListRoutesErrors(t *testing.T) {
	store, _ := seedStore(t)
	h := NewRouter(store, nil, nil, nil)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/shipments/abc/routes").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/shipments/0/routes").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/shipments/404/routes").Code)
}

func TestListRecommendations(t *testing.T) {
	store, id := seedStore(t)
	h := NewRouter(store, nil, nil, nil)

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/shipments/%d/recommendations", id))
	require.Equal(t, http.StatusOK, rec.Code)

	var res dto.ListRecommendationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Recommendations, 1)
	require.Equal(t, domain.SeverityHigh, res.Recommendations[0].Severity)
	require.Equal(t, domain.StatusPending, res.Recommendations[0].Status)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/shipments/999/recommendations").Code)
}

func TestRefresh(t *testing.T) {
	store, id := seedStore(t)
	ref := &stubRefresher{result: services.RefreshResult{
		Stored: 3,
		Providers: []services.ProviderOutcome{
			{Provider: "maersk", Kind: "ok", Candidates: 2},
			{Provider: "cosco", Kind: "soft_failure", Candidates: 1, Fallback: true, Error: "timeout"},
		},
	}}
	h := NewRouter(store, ref, nil, nil)

	rec := do(t, h, http.MethodPost, fmt.Sprintf("/shipments/%d/routes/refresh", id))
	require.Equal(t, http.StatusOK, rec.Code)

	var res dto.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 3, res.Stored)
	require.Len(t, res.Providers, 2)
	require.Equal(t, "soft_failure", res.Providers[1].Outcome)
	require.True(t, res.Providers[1].Fallback)
	require.Equal(t, []int64{id}, ref.calls)

	ref.err = fmt.Errorf("refresh shipment: %w", ports.ErrShipmentNotFound)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/shipments/77/routes/refresh").Code)

	ref.err = errors.New("db down")
	require.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPost, "/shipments/77/routes/refresh").Code)
}

func TestRefreshNotConfigured(t *testing.T) {
	store, id := seedStore(t)
	h := NewRouter(store, nil, nil, nil)

	rec := do(t, h, http.MethodPost, fmt.Sprintf("/shipments/%d/routes/refresh", id))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitorScan(t *testing.T) {
	mon := &stubMonitor{report: services.CycleReport{Scanned: 4, Created: 1, Skipped: 3, Duration: 1500 * time.Millisecond}}
	h := NewRouter(repositories.NewMemoryStore(), nil, mon, nil)

	rec := do(t, h, http.MethodPost, "/monitor/scan")
	require.Equal(t, http.StatusOK, rec.Code)

	var res dto.CycleReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 4, res.Scanned)
	require.Equal(t, 1, res.Created)
	require.Equal(t, int64(1500), res.DurationMs)
	require.Equal(t, "idle", res.State)
	require.Equal(t, 1, mon.runs)

	rec = do(t, h, http.MethodGet, "/monitor")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"state":"idle"}`, rec.Body.String())

	mon.err = fmt.Errorf("monitor cycle: %w", context.Canceled)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/monitor/scan").Code)

	mon.err = errors.New("monitor cycle: list shipments: boom")
	require.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPost, "/monitor/scan").Code)
}

func TestEvaluateQueuesShipment(t *testing.T) {
	store, id := seedStore(t)
	mon := &stubMonitor{}
	h := NewRouter(store, nil, mon, nil)

	rec := do(t, h, http.MethodPost, fmt.Sprintf("/shipments/%d/evaluate", id))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, fmt.Sprintf(`{"shipment_id":%d,"queued":true}`, id), rec.Body.String())
	require.Equal(t, []int64{id}, mon.triggered)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/shipments/404/evaluate").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/shipments/x/evaluate").Code)

	mon.full = true
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, fmt.Sprintf("/shipments/%d/evaluate", id)).Code)
	require.Len(t, mon.triggered, 1)
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store, id := seedStore(t)
	h := NewRouter(store, nil, nil, zap.New(core))

	do(t, h, http.MethodGet, fmt.Sprintf("/shipments/%d/routes", id))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/shipments/{id}/routes", fields["route"])
	require.EqualValues(t, http.StatusOK, fields["status"])
	require.NotEmpty(t, fields["req_id"])
}
