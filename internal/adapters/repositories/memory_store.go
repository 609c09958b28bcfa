package repositories

import (
	"context"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"sort"
	"sync"
	"time"
)

// In-memory Store used by tests and offline runs. Transactions operate on a
// copy of the state that replaces the original only on success.
type MemoryStore struct {
	mu  sync.Mutex
	st  *memState
	now func() time.Time

	// BeforeInsertRoute, when set, can fail route inserts to exercise rollback.
	BeforeInsertRoute func(r domain.Route) error
}

type memState struct {
	nextID          int64
	shipments       map[int64]domain.Shipment
	routes          map[int64]domain.Route
	recommendations map[int64]domain.Recommendation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		st: &memState{
			shipments:       map[int64]domain.Shipment{},
			routes:          map[int64]domain.Route{},
			recommendations: map[int64]domain.Recommendation{},
		},
		now: time.Now,
	}
}

func (st *memState) clone() *memState {
	out := &memState{
		nextID:          st.nextID,
		shipments:       make(map[int64]domain.Shipment, len(st.shipments)),
		routes:          make(map[int64]domain.Route, len(st.routes)),
		recommendations: make(map[int64]domain.Recommendation, len(st.recommendations)),
	}
	for k, v := range st.shipments {
		out.shipments[k] = v
	}
	for k, v := range st.routes {
		out.routes[k] = v.Clone()
	}
	for k, v := range st.recommendations {
		out.recommendations[k] = v
	}
	return out
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(q ports.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(s.view(work)); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *MemoryStore) view(st *memState) *memQueries {
	return &memQueries{st: st, now: s.now, beforeInsertRoute: s.BeforeInsertRoute}
}

func (s *MemoryStore) locked() (*memQueries, func()) {
	s.mu.Lock()
	return s.view(s.st), s.mu.Unlock
}

func (s *MemoryStore) GetShipment(ctx context.Context, id int64) (domain.Shipment, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.GetShipment(ctx, id)
}

func (s *MemoryStore) CreateShipment(ctx context.Context, sh domain.Shipment) (int64, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.CreateShipment(ctx, sh)
}

func (s *MemoryStore) ListShipmentsAtRisk(ctx context.Context, threshold float64, limit int) ([]domain.Shipment, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.ListShipmentsAtRisk(ctx, threshold, limit)
}

func (s *MemoryStore) ListShipments(ctx context.Context, afterID int64, limit int) ([]domain.Shipment, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.ListShipments(ctx, afterID, limit)
}

func (s *MemoryStore) UpdateShipmentRouting(ctx context.Context, id int64, risk float64, arrival *time.Time) error {
	q, unlock := s.locked()
	defer unlock()
	return q.UpdateShipmentRouting(ctx, id, risk, arrival)
}

func (s *MemoryStore) ListRoutes(ctx context.Context, shipmentID int64) ([]domain.Route, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.ListRoutes(ctx, shipmentID)
}

func (s *MemoryStore) DeleteRoutes(ctx context.Context, shipmentID int64) error {
	q, unlock := s.locked()
	defer unlock()
	return q.DeleteRoutes(ctx, shipmentID)
}

func (s *MemoryStore) InsertRoute(ctx context.Context, r domain.Route) (int64, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.InsertRoute(ctx, r)
}

func (s *MemoryStore) ClearRecommended(ctx context.Context, shipmentID int64) error {
	q, unlock := s.locked()
	defer unlock()
	return q.ClearRecommended(ctx, shipmentID)
}

func (s *MemoryStore) UpdateRouteRisk(ctx context.Context, routeID int64, risk float64, factors []string) error {
	q, unlock := s.locked()
	defer unlock()
	return q.UpdateRouteRisk(ctx, routeID, risk, factors)
}

func (s *MemoryStore) HasPendingRecommendation(ctx context.Context, subjectType string, subjectID int64) (bool, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.HasPendingRecommendation(ctx, subjectType, subjectID)
}

func (s *MemoryStore) InsertRecommendation(ctx context.Context, rec domain.Recommendation) (int64, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.InsertRecommendation(ctx, rec)
}

func (s *MemoryStore) ListRecommendations(ctx context.Context, subjectType string, subjectID int64) ([]domain.Recommendation, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.ListRecommendations(ctx, subjectType, subjectID)
}

type memQueries struct {
	st                *memState
	now               func() time.Time
	beforeInsertRoute func(domain.Route) error
}

func (q *memQueries) id() int64 {
	q.st.nextID++
	return q.st.nextID
}

func (q *memQueries) GetShipment(_ context.Context, id int64) (domain.Shipment, error) {
	s, ok := q.st.shipments[id]
	if !ok {
		return domain.Shipment{}, fmt.Errorf("get shipment id=%d: %w", id, ports.ErrShipmentNotFound)
	}
	return s, nil
}

func (q *memQueries) CreateShipment(_ context.Context, s domain.Shipment) (int64, error) {
	for _, existing := range q.st.shipments {
		if existing.Reference == s.Reference {
			return 0, fmt.Errorf("create shipment ref=%q: duplicate reference", s.Reference)
		}
	}
	s.ID = q.id()
	if s.Priority == "" {
		s.Priority = domain.PriorityNormal
	}
	q.st.shipments[s.ID] = s
	return s.ID, nil
}

func (q *memQueries) sortedShipments() []domain.Shipment {
	out := make([]domain.Shipment, 0, len(q.st.shipments))
	for _, s := range q.st.shipments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (q *memQueries) ListShipmentsAtRisk(_ context.Context, threshold float64, limit int) ([]domain.Shipment, error) {
	var out []domain.Shipment
	for _, s := range q.sortedShipments() {
		if s.RiskScore >= threshold {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueries) ListShipments(_ context.Context, afterID int64, limit int) ([]domain.Shipment, error) {
	var out []domain.Shipment
	for _, s := range q.sortedShipments() {
		if s.ID > afterID {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueries) UpdateShipmentRouting(_ context.Context, id int64, risk float64, arrival *time.Time) error {
	s, ok := q.st.shipments[id]
	if !ok {
		return fmt.Errorf("update shipment routing id=%d: %w", id, ports.ErrShipmentNotFound)
	}
	s.RiskScore = risk
	if arrival != nil {
		t := *arrival
		s.ScheduledArrival = &t
	} else {
		s.ScheduledArrival = nil
	}
	q.st.shipments[id] = s
	return nil
}

func (q *memQueries) ListRoutes(_ context.Context, shipmentID int64) ([]domain.Route, error) {
	var out []domain.Route
	for _, r := range q.st.routes {
		if r.ShipmentID == shipmentID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQueries) DeleteRoutes(_ context.Context, shipmentID int64) error {
	for id, r := range q.st.routes {
		if r.ShipmentID == shipmentID {
			delete(q.st.routes, id)
		}
	}
	return nil
}

func (q *memQueries) InsertRoute(_ context.Context, r domain.Route) (int64, error) {
	if q.beforeInsertRoute != nil {
		if err := q.beforeInsertRoute(r); err != nil {
			return 0, fmt.Errorf("insert route shipment=%d provider=%q: %w", r.ShipmentID, r.Provider, err)
		}
	}
	if _, ok := q.st.shipments[r.ShipmentID]; !ok {
		return 0, fmt.Errorf("insert route shipment=%d: %w", r.ShipmentID, ports.ErrShipmentNotFound)
	}

	r = r.Clone()
	r.ID = q.id()
	if r.Metadata.Version == 0 {
		r.Metadata = domain.MetadataFor(r.RouteCandidate)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = q.now()
	}
	q.st.routes[r.ID] = r
	return r.ID, nil
}

func (q *memQueries) ClearRecommended(_ context.Context, shipmentID int64) error {
	for id, r := range q.st.routes {
		if r.ShipmentID == shipmentID && r.IsRecommended {
			r.IsRecommended = false
			q.st.routes[id] = r
		}
	}
	return nil
}

func (q *memQueries) UpdateRouteRisk(_ context.Context, routeID int64, risk float64, factors []string) error {
	r, ok := q.st.routes[routeID]
	if !ok {
		return fmt.Errorf("update route risk id=%d: not found", routeID)
	}
	r.Risk = risk
	r.RiskFactors = append([]string(nil), factors...)
	q.st.routes[routeID] = r
	return nil
}

func (q *memQueries) HasPendingRecommendation(_ context.Context, subjectType string, subjectID int64) (bool, error) {
	for _, rec := range q.st.recommendations {
		if rec.SubjectType == subjectType && rec.SubjectID == subjectID && rec.Status == domain.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) InsertRecommendation(ctx context.Context, rec domain.Recommendation) (int64, error) {
	if rec.Status == "" {
		rec.Status = domain.StatusPending
	}
	if rec.Status == domain.StatusPending {
		exists, _ := q.HasPendingRecommendation(ctx, rec.SubjectType, rec.SubjectID)
		if exists {
			return 0, fmt.Errorf("insert recommendation %s=%d: %w", rec.SubjectType, rec.SubjectID, ports.ErrRecommendationExists)
		}
	}
	rec.ID = q.id()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = q.now()
	}
	q.st.recommendations[rec.ID] = rec
	return rec.ID, nil
}

func (q *memQueries) ListRecommendations(_ context.Context, subjectType string, subjectID int64) ([]domain.Recommendation, error) {
	var out []domain.Recommendation
	for _, rec := range q.st.recommendations {
		if rec.SubjectType == subjectType && rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

var _ ports.Store = (*MemoryStore)(nil)
