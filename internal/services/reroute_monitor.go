package services

import (
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RerouteEvaluator proposes an alternative for a shipment's current route.
type RerouteEvaluator interface {
	Evaluate(ctx context.Context, shipmentID int64) (domain.Recommendation, error)
}

// Rerouter is the evaluation path shared by the selector and the monitor:
// load the current route, derive an alternative, build the recommendation.
type Rerouter struct {
	store        ports.Store
	alternatives *AlternativeGenerator
	builder      *RecommendationBuilder
	threshold    float64
}

func NewRerouter(store ports.Store, alternatives *AlternativeGenerator, builder *RecommendationBuilder, threshold float64) *Rerouter {
	return &Rerouter{store: store, alternatives: alternatives, builder: builder, threshold: threshold}
}

func (r *Rerouter) Evaluate(ctx context.Context, shipmentID int64) (domain.Recommendation, error) {
	sh, err := r.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("evaluate reroute shipment=%d: %w", shipmentID, err)
	}
	routes, err := r.store.ListRoutes(ctx, shipmentID)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("evaluate reroute shipment=%d: list routes: %w", shipmentID, err)
	}

	var current *domain.Route
	var others []domain.Route
	for i := range routes {
		if routes[i].IsCurrent {
			current = &routes[i]
		}
	}
	if current == nil {
		return domain.Recommendation{}, fmt.Errorf("evaluate reroute shipment=%d: %w", shipmentID, ports.ErrNoCurrentRoute)
	}
	for _, rt := range routes {
		if !rt.IsCurrent && rt.Risk < current.Risk {
			others = append(others, rt)
		}
	}

	return r.builder.Build(ctx, BuildRequest{
		Shipment:      sh,
		Current:       *current,
		Alternative:   r.alternatives.Generate(sh, *current),
		Others:        others,
		RiskTriggered: current.Risk >= r.threshold,
	})
}

type MonitorState int32

const (
	MonitorIdle MonitorState = iota
	MonitorScanning
	MonitorEvaluating
)

func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "idle"
	case MonitorScanning:
		return "scanning"
	case MonitorEvaluating:
		return "evaluating"
	}
	return "unknown"
}

type MonitorConfig struct {
	Interval    time.Duration
	Threshold   float64
	MaxPerCycle int
	// RefreshRisk re-assesses current routes before scanning.
	RefreshRisk bool
}

type CycleReport struct {
	Refreshed int           `json:"refreshed"`
	Scanned   int           `json:"scanned"`
	Skipped   int           `json:"skipped"`
	Created   int           `json:"created"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// RerouteMonitor periodically looks for shipments whose current route risk
// crossed the threshold and asks the evaluator for an alternative.
type RerouteMonitor struct {
	store     ports.Store
	risk      *RiskAssessor
	evaluator RerouteEvaluator
	cfg       MonitorConfig

	state   atomic.Int32
	cycle   sync.Mutex
	trigger chan int64

	// Last shipment id covered by drift refresh; guarded by cycle.
	riskCursor int64
}

// NewRerouteMonitor accepts a nil risk assessor, which disables drift refresh.
func NewRerouteMonitor(store ports.Store, risk *RiskAssessor, evaluator RerouteEvaluator, cfg MonitorConfig) (*RerouteMonitor, error) {
	if store == nil || evaluator == nil {
		return nil, errors.New("new reroute monitor: store and evaluator are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.MaxPerCycle < 1 {
		cfg.MaxPerCycle = 50
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.75
	}
	return &RerouteMonitor{
		store:     store,
		risk:      risk,
		evaluator: evaluator,
		cfg:       cfg,
		trigger:   make(chan int64, 64),
	}, nil
}

func (m *RerouteMonitor) State() MonitorState { return MonitorState(m.state.Load()) }

func (m *RerouteMonitor) setState(s MonitorState) { m.state.Store(int32(s)) }

// Trigger queues an on-demand evaluation. It reports false when the queue is full.
func (m *RerouteMonitor) Trigger(shipmentID int64) bool {
	select {
	case m.trigger <- shipmentID:
		return true
	default:
		return false
	}
}

// Run executes a cycle immediately, then every interval, and serves
// triggers in between until ctx ends.
func (m *RerouteMonitor) Run(ctx context.Context) {
	log := obs.FromContext(ctx)
	log.Info("reroute monitor started", zap.Duration("interval", m.cfg.Interval))

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("reroute monitor stopped")
			return
		case <-ticker.C:
			m.logCycle(ctx)
		case id := <-m.trigger:
			if _, err := m.EvaluateShipment(ctx, id); err != nil && !errors.Is(err, ports.ErrRecommendationExists) {
				log.Warn("triggered evaluation failed", zap.Int64("shipment_id", id), zap.Error(err))
			}
		}
	}
}

func (m *RerouteMonitor) logCycle(ctx context.Context) {
	report, err := m.RunCycle(ctx)
	fields := []zap.Field{
		zap.Int("refreshed", report.Refreshed),
		zap.Int("scanned", report.Scanned),
		zap.Int("skipped", report.Skipped),
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed),
		zap.Int64("dur_ms", report.Duration.Milliseconds()),
	}
	if err != nil {
		obs.FromContext(ctx).Warn("monitor cycle aborted", append(fields, zap.Error(err))...)
		return
	}
	obs.FromContext(ctx).Info("monitor cycle", fields...)
}

// EvaluateShipment evaluates one shipment if it has no pending recommendation.
func (m *RerouteMonitor) EvaluateShipment(ctx context.Context, shipmentID int64) (domain.Recommendation, error) {
	m.cycle.Lock()
	defer m.cycle.Unlock()
	defer m.setState(MonitorIdle)

	m.setState(MonitorEvaluating)
	return m.evaluator.Evaluate(ctx, shipmentID)
}

// RunCycle performs one scan. Per-shipment failures are counted and logged;
// only listing failures or cancellation end the cycle early.
func (m *RerouteMonitor) RunCycle(ctx context.Context) (report CycleReport, err error) {
	defer obs.Time(ctx, "monitor_cycle")(&err)

	m.cycle.Lock()
	defer m.cycle.Unlock()
	defer m.setState(MonitorIdle)

	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	m.setState(MonitorScanning)
	log := obs.FromContext(ctx)

	if m.cfg.RefreshRisk && m.risk != nil {
		n, failed, err := m.refreshRisk(ctx)
		report.Refreshed = n
		report.Failed += failed
		if err != nil {
			log.Warn("risk refresh stopped", zap.Error(err))
		}
	}

	shipments, err := m.store.ListShipmentsAtRisk(ctx, m.cfg.Threshold, m.cfg.MaxPerCycle)
	if err != nil {
		return report, fmt.Errorf("monitor cycle: list shipments: %w", err)
	}

	for _, sh := range shipments {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("monitor cycle: %w", err)
		}
		report.Scanned++

		pending, err := m.store.HasPendingRecommendation(ctx, domain.SubjectShipment, sh.ID)
		if err != nil {
			report.Failed++
			log.Warn("pending check failed", zap.Int64("shipment_id", sh.ID), zap.Error(err))
			continue
		}
		if pending {
			report.Skipped++
			continue
		}

		m.setState(MonitorEvaluating)
		_, err = m.evaluator.Evaluate(ctx, sh.ID)
		m.setState(MonitorScanning)

		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, ports.ErrRecommendationExists):
			report.Skipped++
		default:
			report.Failed++
			log.Warn("reroute evaluation failed", zap.Int64("shipment_id", sh.ID), zap.Error(err))
		}
	}
	return report, nil
}

// refreshRisk re-assesses current routes and raises stored risk where the
// assessment grew. Lower readings wait for the next full refresh. Each cycle
// covers the next MaxPerCycle shipments after the cursor, wrapping to the
// first id once the end is reached.
func (m *RerouteMonitor) refreshRisk(ctx context.Context) (refreshed, failed int, err error) {
	shipments, err := m.store.ListShipments(ctx, m.riskCursor, m.cfg.MaxPerCycle)
	if err != nil {
		return 0, 0, fmt.Errorf("list shipments: %w", err)
	}
	if len(shipments) < m.cfg.MaxPerCycle {
		m.riskCursor = 0
	} else {
		m.riskCursor = shipments[len(shipments)-1].ID
	}

	log := obs.FromContext(ctx)
	for _, sh := range shipments {
		if err := ctx.Err(); err != nil {
			return refreshed, failed, err
		}

		raised, err := m.refreshShipmentRisk(ctx, sh)
		if err != nil {
			failed++
			log.Warn("risk refresh failed", zap.Int64("shipment_id", sh.ID), zap.Error(err))
			continue
		}
		if raised {
			refreshed++
		}
	}
	return refreshed, failed, nil
}

func (m *RerouteMonitor) refreshShipmentRisk(ctx context.Context, sh domain.Shipment) (bool, error) {
	routes, err := m.store.ListRoutes(ctx, sh.ID)
	if err != nil {
		return false, fmt.Errorf("list routes: %w", err)
	}
	for _, rt := range routes {
		if !rt.IsCurrent {
			continue
		}
		a := m.risk.Score(ctx, rt.Waypoints)
		if a.Risk <= rt.Risk+0.01 {
			return false, nil
		}

		risk := math.Min(1, a.Risk)
		err := m.store.InTx(ctx, func(q ports.Queries) error {
			if err := q.UpdateRouteRisk(ctx, rt.ID, risk, a.FactorStrings()); err != nil {
				return err
			}
			return q.UpdateShipmentRouting(ctx, sh.ID, risk, sh.ScheduledArrival)
		})
		if err != nil {
			return false, fmt.Errorf("update risk: %w", err)
		}
		return true, nil
	}
	return false, nil
}
