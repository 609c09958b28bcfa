package ports

import (
	"context"
	"freight-route-service/internal/domain"
)

// One reading from an external risk signal.
type SignalReading struct {
	Risk       float64  `json:"risk"`
	Confidence float64  `json:"confidence"`
	Events     int      `json:"events"`
	Zones      []string `json:"zones,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

// Port: external sources of weather, geopolitical and port-congestion risk.
// Every method may fail independently; callers substitute defaults.
type RiskSignals interface {
	WeatherRisk(ctx context.Context, wps []domain.Waypoint) (SignalReading, error)
	GeoRisk(ctx context.Context, from, to domain.Waypoint) (SignalReading, error)
	PortCongestion(ctx context.Context, portCode string) (SignalReading, error)
}
