package ports

import (
	"context"
	"errors"
	"freight-route-service/internal/domain"
	"time"
)

var (
	ErrShipmentNotFound     = errors.New("shipment not found")
	ErrNoCurrentRoute       = errors.New("shipment has no current route")
	ErrRecommendationExists = errors.New("pending recommendation already exists")
)

// Queries is the set of persistence operations available both on the store
// and inside a transaction.
type Queries interface {
	GetShipment(ctx context.Context, id int64) (domain.Shipment, error)
	CreateShipment(ctx context.Context, s domain.Shipment) (int64, error)
	// Return shipments with risk >= threshold, highest risk first.
	ListShipmentsAtRisk(ctx context.Context, threshold float64, limit int) ([]domain.Shipment, error)
	// Return up to limit shipments with id > afterID in id order.
	ListShipments(ctx context.Context, afterID int64, limit int) ([]domain.Shipment, error)
	UpdateShipmentRouting(ctx context.Context, id int64, risk float64, arrival *time.Time) error

	// Return a shipment's routes in insertion order.
	ListRoutes(ctx context.Context, shipmentID int64) ([]domain.Route, error)
	DeleteRoutes(ctx context.Context, shipmentID int64) error
	InsertRoute(ctx context.Context, r domain.Route) (int64, error)
	ClearRecommended(ctx context.Context, shipmentID int64) error
	UpdateRouteRisk(ctx context.Context, routeID int64, risk float64, factors []string) error

	HasPendingRecommendation(ctx context.Context, subjectType string, subjectID int64) (bool, error)
	// Return ErrRecommendationExists when a pending one is already stored.
	InsertRecommendation(ctx context.Context, rec domain.Recommendation) (int64, error)
	ListRecommendations(ctx context.Context, subjectType string, subjectID int64) ([]domain.Recommendation, error)
}

// Port: a boundary for shipment, route and recommendation persistence.
type Store interface {
	Queries
	// InTx runs fn in one transaction; a non-nil error rolls everything back.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
