package dto

import (
	"freight-route-service/internal/domain"
	"time"
)

type RecommendationResponse struct {
	ID              int64                       `json:"id"`
	Type            string                      `json:"type"`
	SubjectType     string                      `json:"subject_type"`
	SubjectID       int64                       `json:"subject_id"`
	SubjectRef      string                      `json:"subject_ref"`
	Title           string                      `json:"title"`
	Description     string                      `json:"description"`
	Severity        domain.Severity             `json:"severity"`
	Confidence      float64                     `json:"confidence"`
	Status          domain.RecommendationStatus `json:"status"`
	Rationale       domain.Rationale            `json:"rationale"`
	Data            domain.RecommendationData   `json:"data"`
	ProposedRouteID int64                       `json:"proposed_route_id"`
	CreatedBy       string                      `json:"created_by"`
	CreatedAt       time.Time                   `json:"created_at"`
}

type ListRecommendationsResponse struct {
	ShipmentID      int64                    `json:"shipment_id"`
	Recommendations []RecommendationResponse `json:"recommendations"`
}

type CycleReportResponse struct {
	State      string `json:"state"`
	Refreshed  int    `json:"refreshed"`
	Scanned    int    `json:"scanned"`
	Skipped    int    `json:"skipped"`
	Created    int    `json:"created"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
}

type EvaluateResponse struct {
	ShipmentID int64 `json:"shipment_id"`
	Queued     bool  `json:"queued"`
}

type MonitorStatusResponse struct {
	State string `json:"state"`
}

func NewRecommendationResponse(rec domain.Recommendation) RecommendationResponse {
	return RecommendationResponse{
		ID:              rec.ID,
		Type:            rec.Type,
		SubjectType:     rec.SubjectType,
		SubjectID:       rec.SubjectID,
		SubjectRef:      rec.SubjectRef,
		Title:           rec.Title,
		Description:     rec.Description,
		Severity:        rec.Severity,
		Confidence:      rec.Confidence,
		Status:          rec.Status,
		Rationale:       rec.Rationale,
		Data:            rec.Data,
		ProposedRouteID: rec.ProposedRouteID,
		CreatedBy:       rec.CreatedBy,
		CreatedAt:       rec.CreatedAt,
	}
}
