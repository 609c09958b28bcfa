package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Get returns the environment value for key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func GetFloat(key string, fallback float64) float64 {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func GetInt(key string, fallback int) int {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func GetBool(key string, fallback bool) bool {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// GetList splits a comma-separated value, dropping blanks.
func GetList(key string) []string {
	v := Get(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type ScoringWeights struct {
	Cost      float64
	Time      float64
	Emissions float64
	Risk      float64
}

func (w ScoringWeights) Sum() float64 { return w.Cost + w.Time + w.Emissions + w.Risk }

type ScoringCaps struct {
	CostUSD       float64
	DurationHours float64
	EmissionsKg   float64
}

// Carrier endpoint configured as "provider=baseURL" in CARRIERS.
type CarrierEndpoint struct {
	Provider string
	BaseURL  string
	APIKey   string
}

type Config struct {
	Port        string
	DatabaseURL string
	DBPath      string
	RedisURL    string
	NATSURL     string

	RerouteRiskThreshold float64
	Weights              ScoringWeights
	Caps                 ScoringCaps

	ProviderTimeout    time.Duration
	MaxParallelFetches int
	FallbackOnSoft     bool
	ProviderAllowlist  []string
	Carriers           []CarrierEndpoint
	CarrierRPS         float64

	MonitorInterval      time.Duration
	MaxShipmentsPerCycle int
	MonitorRefreshRisk   bool

	SignalTimeout  time.Duration
	SignalCacheTTL time.Duration
	WeatherURL     string
	GeoURL         string
	PortURL        string

	LLMURL           string
	LLMAPIKey        string
	LLMModelID       string
	LLMTimeout       time.Duration
	RationaleOffline bool

	Deterministic     bool
	ReferenceDataPath string
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:        Get("PORT", "8080"),
		DatabaseURL: Get("DATABASE_URL", ""),
		DBPath:      Get("DB_PATH", "data/freight.db"),
		RedisURL:    Get("REDIS_URL", ""),
		NATSURL:     Get("NATS_URL", ""),

		RerouteRiskThreshold: GetFloat("REROUTE_RISK_THRESHOLD", 0.75),
		Weights: ScoringWeights{
			Cost:      GetFloat("SCORE_WEIGHT_COST", 0.28),
			Time:      GetFloat("SCORE_WEIGHT_TIME", 0.22),
			Emissions: GetFloat("SCORE_WEIGHT_EMISSIONS", 0.15),
			Risk:      GetFloat("SCORE_WEIGHT_RISK", 0.35),
		},
		Caps: ScoringCaps{
			CostUSD:       GetFloat("SCORE_CAP_COST", 500000),
			DurationHours: GetFloat("SCORE_CAP_DURATION_HOURS", 720),
			EmissionsKg:   GetFloat("SCORE_CAP_EMISSIONS", 50000),
		},

		ProviderTimeout:    GetDuration("PROVIDER_TIMEOUT", 8*time.Second),
		MaxParallelFetches: GetInt("MAX_PARALLEL_FETCHES", 4),
		FallbackOnSoft:     GetBool("FALLBACK_ON_SOFT", true),
		ProviderAllowlist:  GetList("PROVIDER_ALLOWLIST"),
		CarrierRPS:         GetFloat("CARRIER_RPS", 5),

		MonitorInterval:      GetDuration("MONITOR_INTERVAL", 10*time.Minute),
		MaxShipmentsPerCycle: GetInt("MONITOR_MAX_SHIPMENTS", 50),
		MonitorRefreshRisk:   GetBool("MONITOR_REFRESH_RISK", true),

		SignalTimeout:  GetDuration("SIGNAL_TIMEOUT", 5*time.Second),
		SignalCacheTTL: GetDuration("SIGNAL_CACHE_TTL", 15*time.Minute),
		WeatherURL:     Get("WEATHER_URL", ""),
		GeoURL:         Get("GEO_URL", ""),
		PortURL:        Get("PORT_URL", ""),

		LLMURL:           Get("LLM_URL", ""),
		LLMAPIKey:        Get("LLM_API_KEY", ""),
		LLMModelID:       Get("LLM_MODEL_ID", "gpt-4o-mini"),
		LLMTimeout:       GetDuration("LLM_TIMEOUT", 20*time.Second),
		RationaleOffline: GetBool("RATIONALE_OFFLINE", false),

		Deterministic:     GetBool("DETERMINISTIC", false),
		ReferenceDataPath: Get("REFERENCE_DATA_PATH", ""),
	}

	carriers, err := parseCarriers(GetList("CARRIERS"))
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.Carriers = carriers

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func parseCarriers(items []string) ([]CarrierEndpoint, error) {
	out := make([]CarrierEndpoint, 0, len(items))
	for _, item := range items {
		name, url, ok := strings.Cut(item, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		url = strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("parse CARRIERS: entry %q must be provider=url", item)
		}
		out = append(out, CarrierEndpoint{
			Provider: name,
			BaseURL:  url,
			APIKey:   Get("CARRIER_API_KEY_"+strings.ToUpper(name), ""),
		})
	}
	return out, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.RerouteRiskThreshold <= 0 || c.RerouteRiskThreshold > 1 {
		errs = append(errs, fmt.Errorf("reroute risk threshold %.3f outside (0,1]", c.RerouteRiskThreshold))
	}
	if err := c.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Caps.CostUSD <= 0 || c.Caps.DurationHours <= 0 || c.Caps.EmissionsKg <= 0 {
		errs = append(errs, errors.New("scoring caps must be positive"))
	}
	if c.MaxParallelFetches < 1 {
		errs = append(errs, errors.New("max parallel fetches must be >= 1"))
	}
	if c.MaxShipmentsPerCycle < 1 {
		errs = append(errs, errors.New("max shipments per cycle must be >= 1"))
	}
	if c.ProviderTimeout <= 0 || c.MonitorInterval <= 0 {
		errs = append(errs, errors.New("timeouts and intervals must be positive"))
	}

	return errors.Join(errs...)
}

func (w ScoringWeights) Validate() error {
	if w.Cost < 0 || w.Time < 0 || w.Emissions < 0 || w.Risk < 0 {
		return errors.New("scoring weights must be non-negative")
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("scoring weights sum to %.6f, want 1", w.Sum())
	}
	return nil
}
