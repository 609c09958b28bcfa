package services

import (
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"time"

	"go.uber.org/zap"
)

type RoutesUpdatedEvent struct {
	ShipmentID int64     `json:"shipment_id"`
	RouteCount int       `json:"route_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RefreshResult struct {
	Stored    int               `json:"stored"`
	Providers []ProviderOutcome `json:"providers"`
}

// Selector persists a candidate set as a shipment's routes and designates
// the current and recommended routes.
type Selector struct {
	store      ports.Store
	scorer     *Scorer
	aggregator *Aggregator
	rerouter   RerouteEvaluator
	events     ports.EventPublisher
	threshold  float64
	now        func() time.Time
}

// NewSelector accepts a nil aggregator (SelectAndPersist only), a nil
// rerouter and a nil publisher.
func NewSelector(
	store ports.Store,
	scorer *Scorer,
	aggregator *Aggregator,
	rerouter RerouteEvaluator,
	events ports.EventPublisher,
	threshold float64,
) (*Selector, error) {
	if store == nil || scorer == nil {
		return nil, errors.New("new selector: store and scorer are required")
	}
	if events == nil {
		events = ports.NopPublisher{}
	}
	return &Selector{
		store:      store,
		scorer:     scorer,
		aggregator: aggregator,
		rerouter:   rerouter,
		events:     events,
		threshold:  threshold,
		now:        time.Now,
	}, nil
}

// RefreshShipment aggregates fresh candidates for a shipment and persists them.
func (s *Selector) RefreshShipment(ctx context.Context, shipmentID int64) (RefreshResult, error) {
	if s.aggregator == nil {
		return RefreshResult{}, errors.New("refresh shipment: no aggregator configured")
	}

	sh, err := s.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh shipment=%d: %w", shipmentID, err)
	}

	agg, err := s.aggregator.Aggregate(ctx, AggregateRequest{Shipment: sh})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh shipment=%d: %w", shipmentID, err)
	}

	n, err := s.SelectAndPersist(ctx, shipmentID, agg.Candidates)
	if err != nil {
		return RefreshResult{Providers: agg.Providers}, fmt.Errorf("refresh shipment=%d: %w", shipmentID, err)
	}
	return RefreshResult{Stored: n, Providers: agg.Providers}, nil
}

// SelectAndPersist replaces the shipment's routes with cands in one
// transaction and returns how many were stored. On failure nothing changes
// and 0 is returned. An empty candidate set leaves existing routes in place;
// any invalid candidate rejects the whole set.
func (s *Selector) SelectAndPersist(ctx context.Context, shipmentID int64, cands []domain.RouteCandidate) (_ int, err error) {
	defer obs.Time(ctx, "select_and_persist")(&err)

	log := obs.FromContext(ctx)
	if len(cands) == 0 {
		log.Info("no candidates; keeping existing routes", zap.Int64("shipment_id", shipmentID))
		return 0, nil
	}

	for i, c := range cands {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("select and persist shipment=%d: candidate %d (%s): %w", shipmentID, i, c.Provider, err)
		}
	}

	scored := append([]domain.RouteCandidate(nil), cands...)
	s.scorer.ScoreAll(scored)

	var current domain.RouteCandidate
	err = s.store.InTx(ctx, func(q ports.Queries) error {
		sh, err := q.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}

		cur := currentIndex(sh, scored)
		rec := s.scorer.Best(scored, sh.Mode, sh.CarrierPreference)
		current = scored[cur]

		if err := q.DeleteRoutes(ctx, shipmentID); err != nil {
			return fmt.Errorf("delete routes: %w", err)
		}
		for i, c := range scored {
			r := domain.Route{
				RouteCandidate: c,
				ShipmentID:     shipmentID,
				IsCurrent:      i == cur,
				IsRecommended:  i == rec,
				Metadata:       domain.MetadataFor(c),
			}
			if _, err := q.InsertRoute(ctx, r); err != nil {
				return fmt.Errorf("insert route %d: %w", i, err)
			}
		}

		var arrival *time.Time
		if !sh.ScheduledDeparture.IsZero() {
			a := sh.ScheduledDeparture.Add(time.Duration(current.DurationHours * float64(time.Hour)))
			arrival = &a
		}
		if err := q.UpdateShipmentRouting(ctx, shipmentID, current.Risk, arrival); err != nil {
			return fmt.Errorf("update shipment: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("select and persist shipment=%d: %w", shipmentID, err)
	}

	log.Info("routes replaced",
		zap.Int64("shipment_id", shipmentID),
		zap.Int("count", len(scored)),
		zap.String("current", current.Name()),
		zap.Float64("current_risk", current.Risk))

	if current.Risk >= s.threshold && len(scored) > 1 && s.rerouter != nil {
		if _, err := s.rerouter.Evaluate(ctx, shipmentID); err != nil {
			if errors.Is(err, ports.ErrRecommendationExists) {
				log.Debug("reroute already pending", zap.Int64("shipment_id", shipmentID))
			} else {
				log.Warn("reroute evaluation failed", zap.Int64("shipment_id", shipmentID), zap.Error(err))
			}
		}
	}

	evt := RoutesUpdatedEvent{ShipmentID: shipmentID, RouteCount: len(scored), UpdatedAt: s.now().UTC()}
	if err := s.events.Publish(ctx, ports.TopicRoutesUpdated, evt); err != nil {
		log.Warn("publish failed", zap.String("topic", ports.TopicRoutesUpdated), zap.Error(err))
	}
	return len(scored), nil
}

// currentIndex picks the first candidate from the preferred carrier, else the first.
func currentIndex(sh domain.Shipment, cands []domain.RouteCandidate) int {
	for i, c := range cands {
		if sh.MatchesProvider(c.Provider) {
			return i
		}
	}
	return 0
}
