package signals

import (
	"context"
	"freight-route-service/internal/domain"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPSignals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/geo/risk":
			_, _ = w.Write([]byte(`{"risk": 0.7, "confidence": 0.6, "events": 4, "zones": ["red_sea"]}`))
		case "/v1/ports/SGSIN/congestion":
			_, _ = w.Write([]byte(`{"risk": 0.35}`))
		case "/v1/weather/risk":
			_, _ = w.Write([]byte(`{"risk": 1.4}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := NewHTTPSignals(srv.URL, srv.URL, srv.URL, time.Second)
	ctx := context.Background()

	geo, err := s.GeoRisk(ctx, domain.Waypoint{Name: "A"}, domain.Waypoint{Name: "B"})
	require.NoError(t, err)
	require.Equal(t, 0.7, geo.Risk)
	require.Equal(t, 4, geo.Events)
	require.Equal(t, []string{"red_sea"}, geo.Zones)

	port, err := s.PortCongestion(ctx, "sgsin")
	require.NoError(t, err)
	require.Equal(t, 0.35, port.Risk)

	_, err = s.WeatherRisk(ctx, nil)
	require.ErrorContains(t, err, "outside [0,1]")
}

func TestHTTPSignalsUnconfigured(t *testing.T) {
	s := NewHTTPSignals("", "", "", time.Second)

	_, err := s.WeatherRisk(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.PortCongestion(context.Background(), "SGSIN")
	require.ErrorIs(t, err, ErrNotConfigured)
}
