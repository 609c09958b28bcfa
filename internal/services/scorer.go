package services

import (
	"cmp"
	"fmt"
	"freight-route-service/internal/config"
	"freight-route-service/internal/domain"
	"slices"
)

// Scorer computes the composite score of a candidate: a weighted sum of
// normalized cost, time, emissions and (1 - risk), each clamped to [0,1].
type Scorer struct {
	weights config.ScoringWeights
	caps    config.ScoringCaps
}

func DefaultScoringWeights() config.ScoringWeights {
	return config.ScoringWeights{Cost: 0.28, Time: 0.22, Emissions: 0.15, Risk: 0.35}
}

func DefaultScoringCaps() config.ScoringCaps {
	return config.ScoringCaps{CostUSD: 500000, DurationHours: 720, EmissionsKg: 50000}
}

func NewScorer(weights config.ScoringWeights, caps config.ScoringCaps) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("new scorer: %w", err)
	}
	if caps.CostUSD <= 0 || caps.DurationHours <= 0 || caps.EmissionsKg <= 0 {
		return nil, fmt.Errorf("new scorer: caps must be positive: %+v", caps)
	}
	return &Scorer{weights: weights, caps: caps}, nil
}

func (s *Scorer) Score(c domain.RouteCandidate) float64 {
	cost := clamp01(1 - c.CostUSD/s.caps.CostUSD)
	hours := clamp01(1 - c.DurationHours/s.caps.DurationHours)
	emissions := clamp01(1 - c.EmissionsKg/s.caps.EmissionsKg)
	risk := clamp01(1 - c.Risk)

	return s.weights.Cost*cost +
		s.weights.Time*hours +
		s.weights.Emissions*emissions +
		s.weights.Risk*risk
}

// ScoreAll sets Score on every candidate in place.
func (s *Scorer) ScoreAll(cands []domain.RouteCandidate) {
	for i := range cands {
		cands[i].Score = s.Score(cands[i])
	}
}

// Rank returns a scored copy ordered best first. Ties fall to lower risk,
// then lower cost, then carrier preference.
func (s *Scorer) Rank(cands []domain.RouteCandidate, preferred string) []domain.RouteCandidate {
	out := slices.Clone(cands)
	s.ScoreAll(out)
	slices.SortStableFunc(out, func(a, b domain.RouteCandidate) int {
		return compareRanked(a, b, preferred)
	})
	return out
}

// Best returns the index of the best candidate among those tagged with mode,
// or the best overall when mode is not specific or nothing matches. -1 when
// cands is empty. Candidates must already be scored.
func (s *Scorer) Best(cands []domain.RouteCandidate, mode domain.TransportMode, preferred string) int {
	best := -1
	if mode.Specific() {
		for i, c := range cands {
			if !c.HasMode(mode) {
				continue
			}
			if best < 0 || compareRanked(c, cands[best], preferred) < 0 {
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}

	for i, c := range cands {
		if best < 0 || compareRanked(c, cands[best], preferred) < 0 {
			best = i
		}
	}
	return best
}

// compareRanked orders a before b when a is the better candidate.
func compareRanked(a, b domain.RouteCandidate, preferred string) int {
	if a.Score != b.Score {
		return cmp.Compare(b.Score, a.Score)
	}
	if a.Risk != b.Risk {
		return cmp.Compare(a.Risk, b.Risk)
	}
	if a.CostUSD != b.CostUSD {
		return cmp.Compare(a.CostUSD, b.CostUSD)
	}
	pa := domain.PreferenceMatches(preferred, a.Provider)
	pb := domain.PreferenceMatches(preferred, b.Provider)
	switch {
	case pa && !pb:
		return -1
	case pb && !pa:
		return 1
	}
	return 0
}
