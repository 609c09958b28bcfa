package domain

import "time"

const (
	RecommendationReroute = "REROUTE"
	SubjectShipment       = "shipment"
)

type RecommendationStatus string

const (
	StatusPending  RecommendationStatus = "pending"
	StatusApproved RecommendationStatus = "approved"
	StatusRejected RecommendationStatus = "rejected"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Which path produced a rationale.
type RationaleTier string

const (
	TierLLM           RationaleTier = "llm"
	TierOffline       RationaleTier = "offline"
	TierFallbackNoAPI RationaleTier = "fallback-no-api"
	TierFallbackError RationaleTier = "fallback-error"
)

type RouteAnalysis struct {
	CurrentRisk       float64 `json:"current_risk"`
	AlternativeRisk   float64 `json:"alternative_risk"`
	RiskReduction     float64 `json:"risk_reduction"`
	TimeDeltaHours    float64 `json:"time_delta_hours"`
	CostDeltaUSD      float64 `json:"cost_delta_usd"`
	DistanceDeltaKm   float64 `json:"distance_delta_km"`
	EmissionsDeltaKg  float64 `json:"emissions_delta_kg"`
	AlternativesCount int     `json:"alternatives_count"`
}

// Explanation payload attached to a recommendation.
type Rationale struct {
	Text             string        `json:"rationale"`
	Factors          []string      `json:"factors"`
	Improvements     []string      `json:"improvements"`
	RecommendedRoute string        `json:"recommended_route,omitempty"`
	DataSources      []string      `json:"data_sources"`
	Analysis         RouteAnalysis `json:"route_analysis"`
	Model            string        `json:"model"`
	Tier             RationaleTier `json:"tier"`
	Confidence       float64       `json:"confidence"`
}

type RecommendationData struct {
	CurrentRouteID     int64   `json:"current_route_id"`
	RecommendedRouteID int64   `json:"recommended_route_id"`
	Alternatives       []int64 `json:"alternatives"`
}

// A persisted reroute proposal awaiting human review.
// Invariant: at most one pending recommendation per subject.
type Recommendation struct {
	ID              int64
	Type            string
	SubjectType     string
	SubjectID       int64
	SubjectRef      string
	Title           string
	Description     string
	Severity        Severity
	Confidence      float64
	Rationale       Rationale
	Data            RecommendationData
	ProposedRouteID int64
	Status          RecommendationStatus
	CreatedBy       string
	CreatedAt       time.Time
}
