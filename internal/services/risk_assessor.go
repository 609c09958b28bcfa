package services

import (
	"context"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults used when a signal source fails or is not configured.
const (
	defaultWeatherRisk = 0.2
	defaultGeoRisk     = 0.1
	defaultPortRisk    = 0.5

	maxAssessmentConfidence = 0.95
)

type RiskWeights struct {
	Weather float64
	Geo     float64
	Port    float64
}

func DefaultRiskWeights() RiskWeights {
	return RiskWeights{Weather: 0.35, Geo: 0.50, Port: 0.15}
}

// RiskFactor is one contribution to an assessment.
type RiskFactor struct {
	Source string  `json:"source"`
	Name   string  `json:"name"`
	Risk   float64 `json:"risk"`
	Live   bool    `json:"live"`
}

func (f RiskFactor) String() string {
	state := "default"
	if f.Live {
		state = "live"
	}
	if f.Source == "zone" {
		state = "floor"
	}
	return fmt.Sprintf("%s:%s=%.2f(%s)", f.Source, f.Name, f.Risk, state)
}

type RiskAssessment struct {
	Risk        float64
	Confidence  float64
	Factors     []RiskFactor
	LiveSignals int
	Events      int
}

func (a RiskAssessment) FactorStrings() []string {
	out := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		out = append(out, f.String())
	}
	return out
}

// RiskAssessor blends weather, geopolitical and port-congestion signals into
// a composite risk, floored by the baseline of every static zone the route
// touches. A nil signals source yields the defaults.
type RiskAssessor struct {
	signals ports.RiskSignals
	zones   []domain.RiskZone
	weights RiskWeights
	timeout time.Duration
}

func NewRiskAssessor(signals ports.RiskSignals, zones []domain.RiskZone, weights RiskWeights, timeout time.Duration) *RiskAssessor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RiskAssessor{
		signals: signals,
		zones:   append([]domain.RiskZone(nil), zones...),
		weights: weights,
		timeout: timeout,
	}
}

func (a *RiskAssessor) Score(ctx context.Context, wps []domain.Waypoint) RiskAssessment {
	var out RiskAssessment

	weather := a.weather(ctx, wps, &out)
	geo := a.geo(ctx, wps, &out)
	port := a.port(ctx, wps, &out)

	risk := weather*a.weights.Weather + geo*a.weights.Geo + port*a.weights.Port

	for _, z := range a.zones {
		if !z.Touches(wps) {
			continue
		}
		out.Factors = append(out.Factors, RiskFactor{Source: "zone", Name: z.ID, Risk: z.Baseline})
		risk = math.Max(risk, z.Baseline)
	}

	out.Risk = clamp01(risk)
	out.Confidence = math.Min(
		maxAssessmentConfidence,
		0.3+0.2*float64(out.LiveSignals)+math.Min(0.05, 0.01*float64(out.Events)),
	)
	return out
}

func (a *RiskAssessor) query(ctx context.Context, name string, fn func(ctx context.Context) (ports.SignalReading, error)) (ports.SignalReading, bool) {
	if a.signals == nil {
		return ports.SignalReading{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	r, err := fn(ctx)
	if err != nil {
		obs.FromContext(ctx).Debug("risk signal unavailable", zap.String("signal", name), zap.Error(err))
		return ports.SignalReading{}, false
	}
	return r, true
}

func (a *RiskAssessor) weather(ctx context.Context, wps []domain.Waypoint, out *RiskAssessment) float64 {
	r, ok := a.query(ctx, "weather", func(ctx context.Context) (ports.SignalReading, error) {
		return a.signals.WeatherRisk(ctx, wps)
	})
	if !ok {
		out.Factors = append(out.Factors, RiskFactor{Source: "weather", Name: "route", Risk: defaultWeatherRisk})
		return defaultWeatherRisk
	}
	out.LiveSignals++
	out.Events += r.Events
	out.Factors = append(out.Factors, RiskFactor{Source: "weather", Name: "route", Risk: r.Risk, Live: true})
	return r.Risk
}

// geo takes the worst segment.
func (a *RiskAssessor) geo(ctx context.Context, wps []domain.Waypoint, out *RiskAssessment) float64 {
	worst := -1.0
	live := false
	for i := 1; i < len(wps); i++ {
		from, to := wps[i-1], wps[i]
		r, ok := a.query(ctx, "geo", func(ctx context.Context) (ports.SignalReading, error) {
			return a.signals.GeoRisk(ctx, from, to)
		})
		risk := defaultGeoRisk
		if ok {
			live = true
			risk = r.Risk
			out.Events += r.Events
		}
		if risk > worst {
			worst = risk
		}
	}

	if worst < 0 {
		worst = defaultGeoRisk
	}
	if live {
		out.LiveSignals++
	}
	out.Factors = append(out.Factors, RiskFactor{Source: "geo", Name: "segments", Risk: worst, Live: live})
	return worst
}

// port averages congestion over port waypoints that carry a code.
func (a *RiskAssessor) port(ctx context.Context, wps []domain.Waypoint, out *RiskAssessment) float64 {
	var sum float64
	var n int
	live := false
	for _, wp := range wps {
		code := strings.TrimSpace(wp.Code)
		if wp.Type != domain.WaypointPort || code == "" {
			continue
		}
		r, ok := a.query(ctx, "port", func(ctx context.Context) (ports.SignalReading, error) {
			return a.signals.PortCongestion(ctx, code)
		})
		risk := defaultPortRisk
		if ok {
			live = true
			risk = r.Risk
			out.Events += r.Events
		}
		sum += risk
		n++
		out.Factors = append(out.Factors, RiskFactor{Source: "port", Name: code, Risk: risk, Live: ok})
	}

	if n == 0 {
		out.Factors = append(out.Factors, RiskFactor{Source: "port", Name: "none", Risk: defaultPortRisk})
		return defaultPortRisk
	}
	if live {
		out.LiveSignals++
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
