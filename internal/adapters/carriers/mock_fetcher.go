package carriers

import (
	"context"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"sync/atomic"
	"time"
)

// MockFetcher returns a fixed outcome. Used by tests.
type MockFetcher struct {
	ID      string
	Caps    ports.CarrierCapabilities
	Outcome ports.FetchOutcome
	// Delay, when set, blocks Fetch until it elapses or ctx ends.
	Delay time.Duration

	calls atomic.Int32
}

func NewMockFetcher(id string, modes []domain.TransportMode, candidates ...domain.RouteCandidate) *MockFetcher {
	return &MockFetcher{
		ID:      id,
		Caps:    ports.CarrierCapabilities{Modes: modes},
		Outcome: ports.FetchOK(candidates),
	}
}

func (m *MockFetcher) Provider() string { return m.ID }
func (m *MockFetcher) Capabilities() ports.CarrierCapabilities { return m.Caps }
func (m *MockFetcher) Calls() int { return int(m.calls.Load()) }

func (m *MockFetcher) Fetch(ctx context.Context, _ ports.FetchRequest) ports.FetchOutcome {
	m.calls.Add(1)

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ports.FetchSoft(ctx.Err())
		case <-timer.C:
		}
	}

	out := m.Outcome
	out.Candidates = append([]domain.RouteCandidate(nil), m.Outcome.Candidates...)
	return out
}
