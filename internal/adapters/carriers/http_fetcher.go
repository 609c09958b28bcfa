package carriers

import (
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/httpx"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type routeQuery struct {
	Origin           string  `json:"origin"`
	Destination      string  `json:"destination"`
	OriginLat        float64 `json:"origin_lat"`
	OriginLon        float64 `json:"origin_lon"`
	DestinationLat   float64 `json:"destination_lat"`
	DestinationLon   float64 `json:"destination_lon"`
	Departure        string  `json:"departure"`
	Mode             string  `json:"mode,omitempty"`
	WeightKg         float64 `json:"weight_kg"`
	LengthCm         float64 `json:"length_cm,omitempty"`
	WidthCm          float64 `json:"width_cm,omitempty"`
	HeightCm         float64 `json:"height_cm,omitempty"`
	DeclaredValueUSD float64 `json:"declared_value_usd,omitempty"`
	Priority         string  `json:"priority,omitempty"`
}

type routeOption struct {
	Service      string            `json:"service"`
	ServiceType  string            `json:"service_type"`
	Waypoints    []domain.Waypoint `json:"waypoints"`
	DistanceKm   float64           `json:"distance_km"`
	TransitHours float64           `json:"transit_hours"`
	CostUSD      float64           `json:"cost_usd"`
	EmissionsKg  float64           `json:"emissions_kg"`
	Risk         float64           `json:"risk"`
	Confidence   string            `json:"confidence"`
	Features     []string          `json:"features"`
	Modes        []string          `json:"modes"`
}

type routeQueryResponse struct {
	Routes []routeOption `json:"routes"`
}

// HTTPFetcher queries a carrier's route API and classifies failures.
type HTTPFetcher struct {
	provider string
	caps     ports.CarrierCapabilities
	client   *httpx.Client
}

// NewHTTPFetcher builds a fetcher for one carrier endpoint. rps <= 0 disables
// client-side rate limiting.
func NewHTTPFetcher(provider, baseURL, apiKey string, caps ports.CarrierCapabilities, timeout time.Duration, rps float64) (*HTTPFetcher, error) {
	provider = NormalizeProvider(provider)
	if provider == "" {
		return nil, errors.New("new http fetcher: provider is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("new http fetcher %s: base url is required", provider)
	}

	client := httpx.NewClient(baseURL, timeout)
	if apiKey != "" {
		client.Headers["Authorization"] = "Bearer " + apiKey
	}
	if rps > 0 {
		client.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &HTTPFetcher{provider: provider, caps: caps, client: client}, nil
}

func (f *HTTPFetcher) Provider() string { return f.provider }

func (f *HTTPFetcher) Capabilities() ports.CarrierCapabilities { return f.caps }

func (f *HTTPFetcher) Fetch(ctx context.Context, req ports.FetchRequest) ports.FetchOutcome {
	var err error
	defer obs.Time(ctx, "carrier."+f.provider+".fetch")(&err)

	q := routeQuery{
		Origin:           req.OriginPort,
		Destination:      req.DestinationPort,
		OriginLat:        req.Origin.Lat,
		OriginLon:        req.Origin.Lon,
		DestinationLat:   req.Destination.Lat,
		DestinationLon:   req.Destination.Lon,
		Departure:        req.Departure.UTC().Format(time.RFC3339),
		WeightKg:         req.WeightKg,
		LengthCm:         req.Dimensions.LengthCm,
		WidthCm:          req.Dimensions.WidthCm,
		HeightCm:         req.Dimensions.HeightCm,
		DeclaredValueUSD: req.DeclaredValueUSD,
		Priority:         string(req.Priority),
	}
	if req.Mode.Specific() {
		q.Mode = string(req.Mode)
	}

	var resp routeQueryResponse
	err = f.client.DoJSON(ctx, http.MethodPost, "/v1/routes", q, &resp)
	if err != nil {
		return classify(err)
	}

	candidates := make([]domain.RouteCandidate, 0, len(resp.Routes))
	for i, o := range resp.Routes {
		c := o.candidate(f.provider)
		if verr := c.Validate(); verr != nil {
			obs.FromContext(ctx).Warn("dropping invalid carrier route",
				zap.String("provider", f.provider), zap.Int("index", i), zap.Error(verr))
			continue
		}
		candidates = append(candidates, c)
	}
	return ports.FetchOK(candidates)
}

func (o routeOption) candidate(provider string) domain.RouteCandidate {
	modes := make([]domain.TransportMode, 0, len(o.Modes))
	for _, m := range o.Modes {
		if pm := domain.ParseMode(m); pm.Specific() {
			modes = append(modes, pm)
		}
	}

	return domain.RouteCandidate{
		Provider:      provider,
		Service:       o.Service,
		ServiceType:   o.ServiceType,
		Waypoints:     o.Waypoints,
		DistanceKm:    o.DistanceKm,
		DurationHours: o.TransitHours,
		CostUSD:       o.CostUSD,
		EmissionsKg:   o.EmissionsKg,
		Risk:          o.Risk,
		Confidence:    domain.Confidence(strings.ToLower(o.Confidence)),
		Features:      o.Features,
		Modes:         modes,
	}
}

// classify maps transport errors to fetch outcomes. 404 means the carrier
// has no schedule for the lane; other 4xx (except 429) are explicit denials.
func classify(err error) ports.FetchOutcome {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusNotFound:
			return ports.FetchOK(nil)
		case se.Retryable() || se.Code >= 500:
			return ports.FetchSoft(err)
		case se.Code >= 400:
			return ports.FetchHard(se.Code, err)
		}
	}
	return ports.FetchSoft(err)
}
