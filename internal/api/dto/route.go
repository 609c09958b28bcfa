package dto

import (
	"freight-route-service/internal/domain"
	"time"
)

type RouteResponse struct {
	ID             int64                  `json:"id"`
	Name           string                 `json:"name"`
	Provider       string                 `json:"provider"`
	Service        string                 `json:"service"`
	ServiceType    string                 `json:"service_type,omitempty"`
	TransportModes []domain.TransportMode `json:"transport_modes"`
	Waypoints      []domain.Waypoint      `json:"waypoints"`
	DistanceKm     float64                `json:"distance_km"`
	DurationHours  float64                `json:"duration_hours"`
	CostUSD        float64                `json:"cost_usd"`
	EmissionsKg    float64                `json:"emissions_kg"`
	Risk           float64                `json:"risk"`
	RiskFactors    []string               `json:"risk_factors"`
	Confidence     domain.Confidence      `json:"confidence"`
	Features       []string               `json:"features"`
	CompositeScore float64                `json:"composite_score"`
	IsCurrent      bool                   `json:"is_current"`
	IsRecommended  bool                   `json:"is_recommended"`
	Metadata       domain.RouteMetadata   `json:"metadata"`
	CreatedAt      time.Time              `json:"created_at"`
}

type ListRoutesResponse struct {
	ShipmentID       int64           `json:"shipment_id"`
	Reference        string          `json:"reference"`
	RiskScore        float64         `json:"risk_score"`
	ScheduledArrival *time.Time      `json:"scheduled_arrival"`
	Routes           []RouteResponse `json:"routes"`
}

type RefreshResponse struct {
	ShipmentID int64              `json:"shipment_id"`
	Stored     int                `json:"stored"`
	Providers  []ProviderResponse `json:"providers"`
}

type ProviderResponse struct {
	Provider   string `json:"provider"`
	Outcome    string `json:"outcome"`
	Candidates int    `json:"candidates"`
	Fallback   bool   `json:"fallback,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewRouteResponse(r domain.Route) RouteResponse {
	return RouteResponse{
		ID:             r.ID,
		Name:           r.Metadata.Name,
		Provider:       r.Provider,
		Service:        r.Service,
		ServiceType:    r.ServiceType,
		TransportModes: nonNil(r.Modes),
		Waypoints:      nonNil(r.Waypoints),
		DistanceKm:     r.DistanceKm,
		DurationHours:  r.DurationHours,
		CostUSD:        r.CostUSD,
		EmissionsKg:    r.EmissionsKg,
		Risk:           r.Risk,
		RiskFactors:    nonNil(r.RiskFactors),
		Confidence:     r.Confidence,
		Features:       nonNil(r.Features),
		CompositeScore: r.Metadata.CompositeScore,
		IsCurrent:      r.IsCurrent,
		IsRecommended:  r.IsRecommended,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
	}
}

// Encode empty lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
