package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CarrierDirectory resolves provider ids to fetchers. Unknown ids must
// resolve to a fetcher that returns an empty OK outcome.
type CarrierDirectory interface {
	Get(id string) ports.CarrierFetcher
	Providers() []string
}

// SynthesisProfile bounds how a missing-mode candidate is derived from an
// existing one of the preferred provider.
type SynthesisProfile struct {
	DurationDivisor  float64
	MinDurationHours float64
	CostMultiplier   float64

	// Cost is capped at min(ModeMaxFactor x max, ModeMedianFactor x median)
	// of the candidates already in the mode.
	ModeMaxFactor    float64
	ModeMedianFactor float64

	// Emissions multiplier = clamp(EmissionsPerCost x applied cost multiplier).
	EmissionsPerCost float64
	MinEmissions     float64
	MaxEmissions     float64

	WaypointType domain.WaypointType
	Feature      string
}

func DefaultSynthesisProfiles() map[domain.TransportMode]SynthesisProfile {
	return map[domain.TransportMode]SynthesisProfile{
		domain.ModeAir: {
			DurationDivisor:  3,
			MinDurationHours: 72,
			CostMultiplier:   1.8,
			ModeMaxFactor:    1.25,
			ModeMedianFactor: 1.8,
			EmissionsPerCost: 3,
			MinEmissions:     3,
			MaxEmissions:     6,
			WaypointType:     domain.WaypointAirport,
			Feature:          "priority_handling",
		},
	}
}

type AggregationConfig struct {
	// ProviderAllowlist, when non-empty, limits which providers are ever called.
	ProviderAllowlist  []string
	ProviderTimeout    time.Duration
	MaxParallelFetches int
	// FallbackOnSoft substitutes estimated candidates for a provider that
	// failed softly. Hard denials are never substituted.
	FallbackOnSoft bool
	Synthesis      map[domain.TransportMode]SynthesisProfile
}

func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		ProviderTimeout:    8 * time.Second,
		MaxParallelFetches: 4,
		FallbackOnSoft:     true,
		Synthesis:          DefaultSynthesisProfiles(),
	}
}

type AggregateRequest struct {
	Shipment domain.Shipment
	// RequestedCarriers overrides the provider policy when set.
	RequestedCarriers []string
}

// ProviderOutcome summarizes what one provider contributed.
type ProviderOutcome struct {
	Provider   string `json:"provider"`
	Kind       string `json:"kind"`
	Candidates int    `json:"candidates"`
	Fallback   bool   `json:"fallback,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type AggregateResult struct {
	Candidates []domain.RouteCandidate
	Providers  []ProviderOutcome
}

type Aggregator struct {
	carriers CarrierDirectory
	fallback ports.CandidateEstimator
	risk     *RiskAssessor
	cfg      AggregationConfig
}

// NewAggregator wires the aggregation pipeline. fallback and risk are optional.
func NewAggregator(carriers CarrierDirectory, fallback ports.CandidateEstimator, risk *RiskAssessor, cfg AggregationConfig) (*Aggregator, error) {
	if carriers == nil {
		return nil, errors.New("new aggregator: carrier directory is required")
	}
	if cfg.MaxParallelFetches < 1 {
		cfg.MaxParallelFetches = 1
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultAggregationConfig().ProviderTimeout
	}
	if cfg.Synthesis == nil {
		cfg.Synthesis = DefaultSynthesisProfiles()
	}
	return &Aggregator{carriers: carriers, fallback: fallback, risk: risk, cfg: cfg}, nil
}

func (a *Aggregator) Aggregate(ctx context.Context, req AggregateRequest) (_ AggregateResult, err error) {
	defer obs.Time(ctx, "aggregate")(&err)

	sh := req.Shipment
	if err := ctx.Err(); err != nil {
		return AggregateResult{}, fmt.Errorf("aggregate shipment=%d: %w", sh.ID, err)
	}

	ids := a.effectiveProviders(req)
	fr := fetchRequestFor(sh)
	outcomes := a.fetchAll(ctx, ids, fr)

	log := obs.FromContext(ctx)
	var res AggregateResult
	for i, id := range ids {
		out := outcomes[i]
		summary := ProviderOutcome{Provider: id, Kind: out.Kind.String(), StatusCode: out.StatusCode}
		if out.Err != nil {
			summary.Error = out.Err.Error()
		}

		cands := out.Candidates
		switch out.Kind {
		case ports.OutcomeHard:
			log.Warn("provider denied request",
				zap.String("provider", id),
				zap.Int("status", out.StatusCode),
				zap.Error(out.Err))
			cands = nil
		case ports.OutcomeSoft:
			log.Warn("provider unavailable", zap.String("provider", id), zap.Error(out.Err))
			cands = nil
			if a.cfg.FallbackOnSoft && a.fallback != nil {
				cands = a.estimate(ctx, id, fr)
				summary.Fallback = true
			}
		}

		caps := a.carriers.Get(id).Capabilities()
		for _, c := range cands {
			n, ok := a.normalize(ctx, id, caps, sh.Mode, c)
			if !ok {
				continue
			}
			res.Candidates = append(res.Candidates, n)
			summary.Candidates++
		}
		res.Providers = append(res.Providers, summary)
	}

	if syn, ok := a.synthesize(sh, res.Candidates); ok {
		res.Candidates = append(res.Candidates, syn)
	}

	if sh.Mode.Specific() {
		res.Candidates = slices.DeleteFunc(res.Candidates, func(c domain.RouteCandidate) bool {
			return !c.HasMode(sh.Mode)
		})
	}

	sortForPresentation(res.Candidates, sh.CarrierPreference)

	log.Info("aggregation complete",
		zap.Int64("shipment_id", sh.ID),
		zap.Strings("providers", ids),
		zap.Int("candidates", len(res.Candidates)))
	return res, nil
}

// effectiveProviders applies the caller override or the mode/urgency policy,
// then the allowlist.
func (a *Aggregator) effectiveProviders(req AggregateRequest) []string {
	var ids []string
	if len(req.RequestedCarriers) > 0 {
		for _, id := range req.RequestedCarriers {
			id = strings.ToLower(strings.TrimSpace(id))
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	} else {
		ids = a.policyProviders(req.Shipment)
	}

	if len(a.cfg.ProviderAllowlist) == 0 {
		return ids
	}
	return slices.DeleteFunc(ids, func(id string) bool {
		return !slices.ContainsFunc(a.cfg.ProviderAllowlist, func(allowed string) bool {
			return strings.EqualFold(strings.TrimSpace(allowed), id)
		})
	})
}

func (a *Aggregator) policyProviders(sh domain.Shipment) []string {
	all := a.carriers.Providers()
	airWanted := sh.Mode == domain.ModeAir || sh.Priority == domain.PriorityUrgent

	var ids []string
	generalOnly := true
	for _, id := range all {
		caps := a.carriers.Get(id).Capabilities()
		switch {
		case caps.General:
			ids = append(ids, id)
		case sh.Mode.Specific() && caps.Serves(sh.Mode),
			sh.MatchesProvider(id),
			airWanted && caps.Serves(domain.ModeAir):
			ids = append(ids, id)
			generalOnly = false
		}
	}

	if generalOnly {
		return all
	}
	return ids
}

func (a *Aggregator) fetchAll(ctx context.Context, ids []string, fr ports.FetchRequest) []ports.FetchOutcome {
	outcomes := make([]ports.FetchOutcome, len(ids))

	var g errgroup.Group
	g.SetLimit(a.cfg.MaxParallelFetches)
	for i, id := range ids {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
			defer cancel()

			out := a.carriers.Get(id).Fetch(fctx, fr)
			if out.Kind == ports.OutcomeOK && fctx.Err() != nil && len(out.Candidates) == 0 {
				out = ports.FetchSoft(fctx.Err())
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (a *Aggregator) estimate(ctx context.Context, id string, fr ports.FetchRequest) []domain.RouteCandidate {
	ectx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	cands, err := a.fallback.Estimate(ectx, id, fr)
	if err != nil {
		obs.FromContext(ctx).Warn("fallback estimate failed", zap.String("provider", id), zap.Error(err))
		return nil
	}
	for i := range cands {
		cands[i].Estimated = true
	}
	return cands
}

// normalize trims labels, tags modes, defaults confidence and raises risk to
// the assessed value. Invalid candidates are dropped.
func (a *Aggregator) normalize(
	ctx context.Context,
	provider string,
	caps ports.CarrierCapabilities,
	requested domain.TransportMode,
	c domain.RouteCandidate,
) (domain.RouteCandidate, bool) {
	c.Provider = strings.TrimSpace(c.Provider)
	if c.Provider == "" {
		c.Provider = provider
	}
	c.Service = strings.TrimSpace(c.Service)
	c.ServiceType = strings.TrimSpace(c.ServiceType)

	if len(c.Modes) == 0 {
		c.Modes = inferModes(c.Service+" "+c.ServiceType+" "+c.Provider, caps, requested)
	}
	if c.Confidence == "" {
		c.Confidence = domain.ConfidenceMedium
	}

	if a.risk != nil && len(c.Waypoints) >= 2 {
		assessed := a.risk.Score(ctx, c.Waypoints)
		if assessed.Risk > c.Risk {
			c.Risk = assessed.Risk
		}
		c.RiskFactors = append(c.RiskFactors, assessed.FactorStrings()...)
	}

	if err := c.Validate(); err != nil {
		obs.FromContext(ctx).Warn("dropping candidate",
			zap.String("provider", provider),
			zap.String("service", c.Service),
			zap.Error(err))
		return c, false
	}
	return c, true
}

var modeKeywords = map[string]domain.TransportMode{
	"ocean":     domain.ModeSea,
	"sea":       domain.ModeSea,
	"vessel":    domain.ModeSea,
	"air":       domain.ModeAir,
	"express":   domain.ModeAir,
	"overnight": domain.ModeAir,
	"ground":    domain.ModeRoad,
	"truck":     domain.ModeRoad,
	"road":      domain.ModeRoad,
	"rail":      domain.ModeRail,
	"train":     domain.ModeRail,
}

// inferModes tags modes from label keywords, then from what the provider
// serves, then SEA.
func inferModes(label string, caps ports.CarrierCapabilities, requested domain.TransportMode) []domain.TransportMode {
	var modes []domain.TransportMode
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if m, ok := modeKeywords[w]; ok && !slices.Contains(modes, m) {
			modes = append(modes, m)
		}
	}
	if len(modes) > 0 {
		return modes
	}

	switch {
	case requested.Specific() && caps.Serves(requested):
		return []domain.TransportMode{requested}
	case len(caps.Modes) > 0:
		return []domain.TransportMode{caps.Modes[0]}
	}
	return []domain.TransportMode{domain.ModeSea}
}

// synthesize derives a candidate in the requested mode when the preferred
// provider answered but offered nothing in that mode.
func (a *Aggregator) synthesize(sh domain.Shipment, cands []domain.RouteCandidate) (domain.RouteCandidate, bool) {
	mode := sh.Mode
	profile, ok := a.cfg.Synthesis[mode]
	if !ok || !mode.Specific() || strings.TrimSpace(sh.CarrierPreference) == "" {
		return domain.RouteCandidate{}, false
	}

	var preferred []domain.RouteCandidate
	var modeCosts []float64
	for _, c := range cands {
		if c.HasMode(mode) {
			modeCosts = append(modeCosts, c.CostUSD)
		}
		if sh.MatchesProvider(c.Provider) {
			if c.HasMode(mode) {
				return domain.RouteCandidate{}, false
			}
			preferred = append(preferred, c)
		}
	}
	if len(preferred) == 0 {
		return domain.RouteCandidate{}, false
	}

	base := slices.MinFunc(preferred, func(x, y domain.RouteCandidate) int {
		return cmp.Compare(x.CostUSD, y.CostUSD)
	})

	cost := base.CostUSD * profile.CostMultiplier
	if len(modeCosts) > 0 {
		ceiling := math.Min(profile.ModeMaxFactor*slices.Max(modeCosts), profile.ModeMedianFactor*median(modeCosts))
		cost = math.Max(base.CostUSD, math.Min(cost, ceiling))
	}
	applied := profile.CostMultiplier
	if base.CostUSD > 0 {
		applied = cost / base.CostUSD
	}
	emissionsFactor := math.Max(profile.MinEmissions, math.Min(profile.MaxEmissions, profile.EmissionsPerCost*applied))

	first, last := base.Waypoints[0], base.Waypoints[len(base.Waypoints)-1]
	if profile.WaypointType != "" {
		first.Type = profile.WaypointType
		last.Type = profile.WaypointType
	}
	wps := []domain.Waypoint{first, last}

	syn := domain.RouteCandidate{
		Provider:      base.Provider,
		Service:       fmt.Sprintf("Priority %s", mode),
		ServiceType:   string(mode),
		Waypoints:     wps,
		DistanceKm:    round2(domain.PathKm(wps)),
		DurationHours: math.Max(profile.MinDurationHours, base.DurationHours/profile.DurationDivisor),
		CostUSD:       round2(cost),
		EmissionsKg:   round2(base.EmissionsKg * emissionsFactor),
		Risk:          base.Risk,
		Confidence:    domain.ConfidenceMedium,
		Features:      append(slices.Clone(base.Features), profile.Feature),
		Modes:         []domain.TransportMode{mode},
		RiskFactors:   slices.Clone(base.RiskFactors),
		Estimated:     base.Estimated,
		Synthesized:   true,
	}
	return syn, true
}

var confidenceRank = map[domain.Confidence]float64{
	domain.ConfidenceHigh:   100,
	domain.ConfidenceMedium: 50,
	domain.ConfidenceLow:    10,
}

func presentationKey(c domain.RouteCandidate, preferred string) float64 {
	k := -c.CostUSD/1000 - (c.DurationHours/24)*10 + confidenceRank[c.Confidence]
	if domain.PreferenceMatches(preferred, c.Provider) {
		k += 1000
	}
	if c.Estimated {
		k -= 50
	}
	return k
}

func sortForPresentation(cands []domain.RouteCandidate, preferred string) {
	slices.SortStableFunc(cands, func(a, b domain.RouteCandidate) int {
		return cmp.Compare(presentationKey(b, preferred), presentationKey(a, preferred))
	})
}

func fetchRequestFor(sh domain.Shipment) ports.FetchRequest {
	return ports.FetchRequest{
		OriginPort:        sh.OriginPort,
		DestinationPort:   sh.DestinationPort,
		Origin:            sh.Origin,
		Destination:       sh.Destination,
		Departure:         sh.ScheduledDeparture,
		Mode:              sh.Mode,
		Priority:          sh.Priority,
		WeightKg:          sh.WeightKg,
		Dimensions:        sh.Dimensions,
		DeclaredValueUSD:  sh.DeclaredValueUSD,
		PreferredProvider: sh.CarrierPreference,
	}
}

func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
