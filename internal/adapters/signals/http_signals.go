package signals

import (
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/httpx"
	"freight-route-service/internal/ports"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("risk signal source not configured")

type signalResponse struct {
	Risk       float64  `json:"risk"`
	Confidence float64  `json:"confidence"`
	Events     int      `json:"events"`
	Zones      []string `json:"zones"`
	Detail     string   `json:"detail"`
}

func (r signalResponse) reading() (ports.SignalReading, error) {
	if r.Risk < 0 || r.Risk > 1 {
		return ports.SignalReading{}, fmt.Errorf("signal risk %.3f outside [0,1]", r.Risk)
	}
	return ports.SignalReading{
		Risk:       r.Risk,
		Confidence: r.Confidence,
		Events:     r.Events,
		Zones:      r.Zones,
		Detail:     r.Detail,
	}, nil
}

// HTTPSignals reads weather, geopolitical and port-congestion risk from
// three JSON services. An empty base URL leaves that signal unconfigured.
type HTTPSignals struct {
	weather *httpx.Client
	geo     *httpx.Client
	port    *httpx.Client
}

func NewHTTPSignals(weatherURL, geoURL, portURL string, timeout time.Duration) *HTTPSignals {
	mk := func(base string) *httpx.Client {
		if strings.TrimSpace(base) == "" {
			return nil
		}
		c := httpx.NewClient(base, timeout)
		c.MaxAttempts = 2
		return c
	}
	return &HTTPSignals{weather: mk(weatherURL), geo: mk(geoURL), port: mk(portURL)}
}

func (s *HTTPSignals) WeatherRisk(ctx context.Context, wps []domain.Waypoint) (ports.SignalReading, error) {
	if s.weather == nil {
		return ports.SignalReading{}, fmt.Errorf("weather risk: %w", ErrNotConfigured)
	}

	var resp signalResponse
	body := map[string]any{"waypoints": wps}
	if err := s.weather.DoJSON(ctx, http.MethodPost, "/v1/weather/risk", body, &resp); err != nil {
		return ports.SignalReading{}, fmt.Errorf("weather risk: %w", err)
	}
	return resp.reading()
}

func (s *HTTPSignals) GeoRisk(ctx context.Context, from, to domain.Waypoint) (ports.SignalReading, error) {
	if s.geo == nil {
		return ports.SignalReading{}, fmt.Errorf("geo risk: %w", ErrNotConfigured)
	}

	var resp signalResponse
	body := map[string]any{"from": from, "to": to}
	if err := s.geo.DoJSON(ctx, http.MethodPost, "/v1/geo/risk", body, &resp); err != nil {
		return ports.SignalReading{}, fmt.Errorf("geo risk %s->%s: %w", from.Name, to.Name, err)
	}
	return resp.reading()
}

func (s *HTTPSignals) PortCongestion(ctx context.Context, portCode string) (ports.SignalReading, error) {
	if s.port == nil {
		return ports.SignalReading{}, fmt.Errorf("port congestion: %w", ErrNotConfigured)
	}
	code := strings.ToUpper(strings.TrimSpace(portCode))
	if code == "" {
		return ports.SignalReading{}, errors.New("port congestion: port code is required")
	}

	var resp signalResponse
	if err := s.port.DoJSON(ctx, http.MethodGet, "/v1/ports/"+url.PathEscape(code)+"/congestion", nil, &resp); err != nil {
		return ports.SignalReading{}, fmt.Errorf("port congestion %s: %w", code, err)
	}
	return resp.reading()
}
