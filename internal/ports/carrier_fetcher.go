package ports

import (
	"context"
	"freight-route-service/internal/domain"
	"time"
)

// Parameters passed to every carrier source for one shipment lane.
type FetchRequest struct {
	OriginPort        string
	DestinationPort   string
	Origin            domain.Coordinates
	Destination       domain.Coordinates
	Departure         time.Time
	Mode              domain.TransportMode
	Priority          domain.Priority
	WeightKg          float64
	Dimensions        domain.Dimensions
	DeclaredValueUSD  float64
	PreferredProvider string
}

type OutcomeKind int

const (
	// OutcomeOK covers "no data": zero candidates is a successful fetch.
	OutcomeOK OutcomeKind = iota
	// OutcomeSoft is a transient failure: timeout, 5xx, 429, malformed payload.
	OutcomeSoft
	// OutcomeHard is an explicit rejection by the provider.
	OutcomeHard
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSoft:
		return "soft_failure"
	case OutcomeHard:
		return "hard_denial"
	}
	return "unknown"
}

type FetchOutcome struct {
	Kind       OutcomeKind
	Candidates []domain.RouteCandidate
	Err        error
	StatusCode int
}

func FetchOK(c []domain.RouteCandidate) FetchOutcome {
	return FetchOutcome{Kind: OutcomeOK, Candidates: c}
}

func FetchSoft(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSoft, Err: err}
}

func FetchHard(code int, err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeHard, Err: err, StatusCode: code}
}

// What a carrier source can serve.
type CarrierCapabilities struct {
	Modes []domain.TransportMode
	// General sources are always consulted.
	General bool
}

func (c CarrierCapabilities) Serves(m domain.TransportMode) bool {
	for _, x := range c.Modes {
		if x == m {
			return true
		}
	}
	return false
}

// Port: a boundary for retrieving route candidates from one transport provider.
type CarrierFetcher interface {
	Provider() string
	Capabilities() CarrierCapabilities
	// Fetch never returns a Go error; failures are classified in the outcome.
	Fetch(ctx context.Context, req FetchRequest) FetchOutcome
}

// Port: a source of non-live candidates used when a provider fails softly.
type CandidateEstimator interface {
	Estimate(ctx context.Context, provider string, req FetchRequest) ([]domain.RouteCandidate, error)
}
