package api

import (
	"freight-route-service/internal/api/handlers"
	"freight-route-service/internal/ports"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the ops HTTP handlers with their dependencies.
// Handlers only see ports and small service interfaces.
func NewRouter(store ports.Queries, refresher handlers.RouteRefresher, monitor handlers.CycleRunner, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	shipments := &handlers.ShipmentHandler{Store: store, Refresher: refresher}
	mon := &handlers.MonitorHandler{Store: store, Monitor: monitor}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(loggingMiddleware(logger))

	r.Get("/health", handlers.Health)

	r.Route("/shipments/{id}", func(r chi.Router) {
		r.Get("/routes", shipments.ListRoutes)
		r.Get("/recommendations", shipments.ListRecommendations)
		r.Post("/routes/refresh", shipments.Refresh)
		r.Post("/evaluate", mon.Evaluate)
	})

	r.Get("/monitor", mon.Status)
	r.Post("/monitor/scan", mon.Scan)

	return r
}
