package handlers

import (
	"context"
	"errors"
	"freight-route-service/internal/api/dto"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"freight-route-service/internal/services"
	"net/http"

	"go.uber.org/zap"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) (services.CycleReport, error)
	State() services.MonitorState
	Trigger(shipmentID int64) bool
}

// MonitorHandler lets operators inspect the reroute monitor, force a scan
// or queue one shipment for evaluation.
type MonitorHandler struct {
	Store   ports.Queries
	Monitor CycleRunner
}

func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "monitor is not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, dto.MonitorStatusResponse{State: h.Monitor.State().String()})
}

// Scan runs one monitor cycle synchronously. A cycle already in progress
// is waited for, not duplicated.
func (h *MonitorHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "monitor is not configured")
		return
	}

	report, err := h.Monitor.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, r, http.StatusServiceUnavailable, "scan interrupted")
			return
		}
		obs.FromContext(r.Context()).Error("monitor scan failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, dto.CycleReportResponse{
		State:      h.Monitor.State().String(),
		Refreshed:  report.Refreshed,
		Scanned:    report.Scanned,
		Skipped:    report.Skipped,
		Created:    report.Created,
		Failed:     report.Failed,
		DurationMs: report.Duration.Milliseconds(),
	})
}

// Evaluate queues a reroute evaluation for one shipment; the monitor loop
// picks it up between cycles.
func (h *MonitorHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if h.Monitor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "monitor is not configured")
		return
	}

	if _, err := h.Store.GetShipment(r.Context(), id); err != nil {
		if errors.Is(err, ports.ErrShipmentNotFound) {
			writeError(w, r, http.StatusNotFound, "shipment not found")
			return
		}
		obs.FromContext(r.Context()).Error("get shipment failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	if !h.Monitor.Trigger(id) {
		writeError(w, r, http.StatusServiceUnavailable, "evaluation queue is full")
		return
	}
	writeJSON(w, r, http.StatusAccepted, dto.EvaluateResponse{ShipmentID: id, Queued: true})
}
