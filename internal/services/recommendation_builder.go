package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Confidence attached to each non-LLM rationale tier.
const (
	offlineConfidence       = 0.85
	fallbackNoAPIConfidence = 0.80
	fallbackErrorConfidence = 0.75
	defaultLLMConfidence    = 0.85

	rationaleTemperature = 0.35
	rationaleMaxTokens   = 400

	recommendationCreator = "reroute-monitor"
)

var requiredRationaleKeys = []string{
	"rationale", "factors", "improvements", "recommended_route", "data_sources", "confidence",
}

type RationaleConfig struct {
	// Offline forces the deterministic rationale and skips the generator.
	Offline bool
	ModelID string
	Timeout time.Duration
}

type BuildRequest struct {
	Shipment domain.Shipment
	Current  domain.Route
	// Alternative is the generated route to persist and propose.
	Alternative domain.Route
	// Others are already stored non-current routes offered as context.
	Others        []domain.Route
	RiskTriggered bool
}

type RecommendationCreatedEvent struct {
	RecommendationID int64                `json:"recommendation_id"`
	ShipmentID       int64                `json:"shipment_id"`
	ProposedRouteID  int64                `json:"proposed_route_id"`
	Severity         domain.Severity      `json:"severity"`
	Confidence       float64              `json:"confidence"`
	Tier             domain.RationaleTier `json:"tier"`
}

// RecommendationBuilder persists a reroute proposal together with its
// alternative route and an explanation. Explanation failures degrade to a
// lower tier and never fail the build.
type RecommendationBuilder struct {
	store     ports.Store
	generator ports.RationaleGenerator
	scorer    *Scorer
	events    ports.EventPublisher
	cfg       RationaleConfig
}

// NewRecommendationBuilder accepts a nil generator (no credentials) and a
// nil publisher.
func NewRecommendationBuilder(
	store ports.Store,
	generator ports.RationaleGenerator,
	scorer *Scorer,
	events ports.EventPublisher,
	cfg RationaleConfig,
) (*RecommendationBuilder, error) {
	if store == nil || scorer == nil {
		return nil, errors.New("new recommendation builder: store and scorer are required")
	}
	if events == nil {
		events = ports.NopPublisher{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &RecommendationBuilder{store: store, generator: generator, scorer: scorer, events: events, cfg: cfg}, nil
}

func (b *RecommendationBuilder) Build(ctx context.Context, req BuildRequest) (_ domain.Recommendation, err error) {
	defer obs.Time(ctx, "build_recommendation")(&err)

	sh := req.Shipment
	exists, err := b.store.HasPendingRecommendation(ctx, domain.SubjectShipment, sh.ID)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("build recommendation shipment=%d: check pending: %w", sh.ID, err)
	}
	if exists {
		return domain.Recommendation{}, fmt.Errorf("build recommendation shipment=%d: %w", sh.ID, ports.ErrRecommendationExists)
	}

	alt := req.Alternative.Clone()
	alt.ShipmentID = sh.ID
	alt.IsCurrent = false
	alt.IsRecommended = true
	alt.Score = b.scorer.Score(alt.RouteCandidate)
	alt.Metadata.CompositeScore = alt.Score
	if alt.Metadata.Version == 0 {
		alt.Metadata = domain.MetadataFor(alt.RouteCandidate)
		alt.Metadata.Alternative = true
	}

	analysis := analyze(req.Current, alt, len(req.Others)+1)
	rationale := b.rationale(ctx, sh, req.Current, alt, req.Others, analysis)

	rec := domain.Recommendation{
		Type:        domain.RecommendationReroute,
		SubjectType: domain.SubjectShipment,
		SubjectID:   sh.ID,
		SubjectRef:  sh.Reference,
		Title:       recommendationTitle(sh, req.Current),
		Description: recommendationDescription(req.Current, alt, analysis),
		Severity:    domain.SeverityMedium,
		Confidence:  rationale.Confidence,
		Rationale:   rationale,
		Status:      domain.StatusPending,
		CreatedBy:   recommendationCreator,
	}
	if req.RiskTriggered {
		rec.Severity = domain.SeverityHigh
	}

	err = b.store.InTx(ctx, func(q ports.Queries) error {
		exists, err := q.HasPendingRecommendation(ctx, domain.SubjectShipment, sh.ID)
		if err != nil {
			return fmt.Errorf("check pending: %w", err)
		}
		if exists {
			return ports.ErrRecommendationExists
		}

		if err := q.ClearRecommended(ctx, sh.ID); err != nil {
			return fmt.Errorf("clear recommended: %w", err)
		}
		altID, err := q.InsertRoute(ctx, alt)
		if err != nil {
			return fmt.Errorf("insert alternative: %w", err)
		}

		others := make([]int64, 0, len(req.Others)+1)
		for _, r := range req.Others {
			others = append(others, r.ID)
		}
		others = append(others, altID)

		rec.ProposedRouteID = altID
		rec.Data = domain.RecommendationData{
			CurrentRouteID:     req.Current.ID,
			RecommendedRouteID: altID,
			Alternatives:       others,
		}

		id, err := q.InsertRecommendation(ctx, rec)
		if err != nil {
			return fmt.Errorf("insert recommendation: %w", err)
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("build recommendation shipment=%d: %w", sh.ID, err)
	}

	obs.FromContext(ctx).Info("recommendation created",
		zap.Int64("recommendation_id", rec.ID),
		zap.Int64("shipment_id", sh.ID),
		zap.String("severity", string(rec.Severity)),
		zap.String("tier", string(rationale.Tier)))

	evt := RecommendationCreatedEvent{
		RecommendationID: rec.ID,
		ShipmentID:       sh.ID,
		ProposedRouteID:  rec.ProposedRouteID,
		Severity:         rec.Severity,
		Confidence:       rec.Confidence,
		Tier:             rationale.Tier,
	}
	if err := b.events.Publish(ctx, ports.TopicRecommendationsCreated, evt); err != nil {
		obs.FromContext(ctx).Warn("publish failed", zap.String("topic", ports.TopicRecommendationsCreated), zap.Error(err))
	}
	return rec, nil
}

func analyze(current, alt domain.Route, count int) domain.RouteAnalysis {
	return domain.RouteAnalysis{
		CurrentRisk:       current.Risk,
		AlternativeRisk:   alt.Risk,
		RiskReduction:     round2(current.Risk - alt.Risk),
		TimeDeltaHours:    round2(alt.DurationHours - current.DurationHours),
		CostDeltaUSD:      round2(alt.CostUSD - current.CostUSD),
		DistanceDeltaKm:   round2(alt.DistanceKm - current.DistanceKm),
		EmissionsDeltaKg:  round2(alt.EmissionsKg - current.EmissionsKg),
		AlternativesCount: count,
	}
}

func recommendationTitle(sh domain.Shipment, current domain.Route) string {
	ref := sh.Reference
	if ref == "" {
		ref = fmt.Sprintf("#%d", sh.ID)
	}
	return fmt.Sprintf("Reroute shipment %s: current route risk %.2f", ref, current.Risk)
}

func recommendationDescription(current, alt domain.Route, a domain.RouteAnalysis) string {
	return fmt.Sprintf("Switch from %s to %s. Risk %.2f -> %.2f, transit %+.1f h, cost %+.0f USD.",
		current.Name(), alt.Name(), a.CurrentRisk, a.AlternativeRisk, a.TimeDeltaHours, a.CostDeltaUSD)
}

// rationale walks the tiers: offline, no generator, generator, generator failure.
func (b *RecommendationBuilder) rationale(
	ctx context.Context,
	sh domain.Shipment,
	current, alt domain.Route,
	others []domain.Route,
	a domain.RouteAnalysis,
) domain.Rationale {
	switch {
	case b.cfg.Offline:
		return ruleRationale(current, alt, a, domain.TierOffline, offlineConfidence)
	case b.generator == nil:
		return ruleRationale(current, alt, a, domain.TierFallbackNoAPI, fallbackNoAPIConfidence)
	}

	gctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	raw, err := b.generator.Generate(gctx, ports.GenerateRequest{
		Prompt:      rationalePrompt(sh, current, alt, others),
		ModelID:     b.cfg.ModelID,
		Temperature: rationaleTemperature,
		MaxTokens:   rationaleMaxTokens,
	})
	if err == nil {
		var r domain.Rationale
		r, err = parseRationale(raw)
		if err == nil {
			r.Analysis = a
			r.Model = b.cfg.ModelID
			r.Tier = domain.TierLLM
			if r.RecommendedRoute == "" {
				r.RecommendedRoute = alt.Name()
			}
			return r
		}
	}

	obs.FromContext(ctx).Warn("rationale generation failed", zap.Int64("shipment_id", sh.ID), zap.Error(err))
	return ruleRationale(current, alt, a, domain.TierFallbackError, fallbackErrorConfidence)
}

func ruleRationale(current, alt domain.Route, a domain.RouteAnalysis, tier domain.RationaleTier, confidence float64) domain.Rationale {
	factors := []string{fmt.Sprintf("current route risk %.2f", current.Risk)}
	for _, f := range current.RiskFactors {
		if len(factors) >= 6 {
			break
		}
		factors = append(factors, f)
	}

	improvements := []string{fmt.Sprintf("risk reduced by %.2f", a.RiskReduction)}
	if a.TimeDeltaHours != 0 {
		improvements = append(improvements, fmt.Sprintf("transit %+.1f h", a.TimeDeltaHours))
	}
	if a.CostDeltaUSD != 0 {
		improvements = append(improvements, fmt.Sprintf("cost %+.0f USD", a.CostDeltaUSD))
	}

	return domain.Rationale{
		Text: fmt.Sprintf("%s carries risk %.2f; %s lowers it to %.2f.",
			current.Name(), current.Risk, alt.Name(), alt.Risk),
		Factors:          factors,
		Improvements:     improvements,
		RecommendedRoute: alt.Name(),
		DataSources:      []string{"carrier_routes", "risk_signals", "risk_zones"},
		Analysis:         a,
		Model:            "rules",
		Tier:             tier,
		Confidence:       confidence,
	}
}

type promptRoute struct {
	Name          string  `json:"name"`
	Risk          float64 `json:"risk"`
	DurationHours float64 `json:"duration_hours"`
	CostUSD       float64 `json:"cost_usd"`
	EmissionsKg   float64 `json:"emissions_kg"`
	DistanceKm    float64 `json:"distance_km"`
}

func toPromptRoute(r domain.Route) promptRoute {
	return promptRoute{
		Name:          r.Name(),
		Risk:          r.Risk,
		DurationHours: r.DurationHours,
		CostUSD:       r.CostUSD,
		EmissionsKg:   r.EmissionsKg,
		DistanceKm:    r.DistanceKm,
	}
}

func rationalePrompt(sh domain.Shipment, current, alt domain.Route, others []domain.Route) string {
	alts := []promptRoute{toPromptRoute(alt)}
	for _, r := range others {
		alts = append(alts, toPromptRoute(r))
	}
	cur, _ := json.Marshal(toPromptRoute(current))
	altJSON, _ := json.Marshal(alts)

	var sb strings.Builder
	sb.WriteString("Given the current freight route metrics and alternatives, produce one JSON object with keys: ")
	sb.WriteString(strings.Join(requiredRationaleKeys, ", "))
	sb.WriteString(". rationale is a string, factors, improvements and data_sources are lists of strings, ")
	sb.WriteString("recommended_route is the route name, confidence is a number between 0 and 1.\n\n")
	fmt.Fprintf(&sb, "Shipment: %s (%s -> %s)\n", sh.Reference, sh.OriginPort, sh.DestinationPort)
	fmt.Fprintf(&sb, "Current route: %s\n", cur)
	fmt.Fprintf(&sb, "Alternatives: %s\n", altJSON)
	sb.WriteString("Respond with JSON only.")
	return sb.String()
}

// parseRationale decodes the first balanced {...} block of raw.
func parseRationale(raw string) (domain.Rationale, error) {
	block, ok := firstJSONObject(raw)
	if !ok {
		return domain.Rationale{}, errors.New("parse rationale: no json object in response")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return domain.Rationale{}, fmt.Errorf("parse rationale: %w", err)
	}
	for _, k := range requiredRationaleKeys {
		if _, ok := fields[k]; !ok {
			return domain.Rationale{}, fmt.Errorf("parse rationale: missing key %q", k)
		}
	}

	var r domain.Rationale
	if err := json.Unmarshal(fields["rationale"], &r.Text); err != nil || strings.TrimSpace(r.Text) == "" {
		return domain.Rationale{}, errors.New("parse rationale: rationale must be a non-empty string")
	}
	r.Factors = stringList(fields["factors"])
	r.Improvements = stringList(fields["improvements"])
	r.DataSources = stringList(fields["data_sources"])
	r.RecommendedRoute = routeName(fields["recommended_route"])

	r.Confidence = defaultLLMConfidence
	var c float64
	if err := json.Unmarshal(fields["confidence"], &c); err == nil && c > 0 {
		r.Confidence = clamp01(c)
	}
	return r, nil
}

func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// stringList accepts a list of strings or an object of metric -> delta.
func stringList(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %v", k, obj[k]))
	}
	return out
}

// routeName accepts a plain name or an object with a name field.
func routeName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}
