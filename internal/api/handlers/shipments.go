package handlers

import (
	"context"
	"errors"
	"freight-route-service/internal/api/dto"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"freight-route-service/internal/services"
	"net/http"

	"go.uber.org/zap"
)

// RouteRefresher re-aggregates carrier routes for one shipment.
type RouteRefresher interface {
	RefreshShipment(ctx context.Context, shipmentID int64) (services.RefreshResult, error)
}

// ShipmentHandler exposes per-shipment route and recommendation endpoints.
type ShipmentHandler struct {
	Store     ports.Queries
	Refresher RouteRefresher
}

func (h *ShipmentHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sh, err := h.Store.GetShipment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get shipment", err)
		return
	}
	routes, err := h.Store.ListRoutes(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list routes", err)
		return
	}

	res := dto.ListRoutesResponse{
		ShipmentID:       sh.ID,
		Reference:        sh.Reference,
		RiskScore:        sh.RiskScore,
		ScheduledArrival: sh.ScheduledArrival,
		Routes:           make([]dto.RouteResponse, 0, len(routes)),
	}
	for _, rt := range routes {
		res.Routes = append(res.Routes, dto.NewRouteResponse(rt))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *ShipmentHandler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.Store.GetShipment(r.Context(), id); err != nil {
		h.fail(w, r, "get shipment", err)
		return
	}
	recs, err := h.Store.ListRecommendations(r.Context(), domain.SubjectShipment, id)
	if err != nil {
		h.fail(w, r, "list recommendations", err)
		return
	}

	res := dto.ListRecommendationsResponse{
		ShipmentID:      id,
		Recommendations: make([]dto.RecommendationResponse, 0, len(recs)),
	}
	for _, rec := range recs {
		res.Recommendations = append(res.Recommendations, dto.NewRecommendationResponse(rec))
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Refresh runs aggregation, selection and the reroute check for one shipment.
func (h *ShipmentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if h.Refresher == nil {
		writeError(w, r, http.StatusServiceUnavailable, "route refresh is not configured")
		return
	}

	result, err := h.Refresher.RefreshShipment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "refresh shipment", err)
		return
	}

	res := dto.RefreshResponse{
		ShipmentID: id,
		Stored:     result.Stored,
		Providers:  make([]dto.ProviderResponse, 0, len(result.Providers)),
	}
	for _, p := range result.Providers {
		res.Providers = append(res.Providers, dto.ProviderResponse{
			Provider:   p.Provider,
			Outcome:    p.Kind,
			Candidates: p.Candidates,
			Fallback:   p.Fallback,
			StatusCode: p.StatusCode,
			Error:      p.Error,
		})
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *ShipmentHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ports.ErrShipmentNotFound) {
		writeError(w, r, http.StatusNotFound, "shipment not found")
		return
	}
	obs.FromContext(r.Context()).Error(op+" failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}
