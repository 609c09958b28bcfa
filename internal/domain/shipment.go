package domain

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

type Dimensions struct {
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

// Represents a single freight movement between two ports.
// The routing core only writes RiskScore and ScheduledArrival; everything
// else is owned by whoever created the shipment.
type Shipment struct {
	ID                 int64
	Reference          string
	OriginPort         string
	DestinationPort    string
	Origin             Coordinates
	Destination        Coordinates
	CarrierPreference  string
	Mode               TransportMode
	Priority           Priority
	WeightKg           float64
	Dimensions         Dimensions
	DeclaredValueUSD   float64
	ScheduledDeparture time.Time
	ScheduledArrival   *time.Time
	RiskScore          float64
}

// MatchesProvider reports whether provider satisfies the shipment's carrier
// preference: case-insensitive substring match in either direction.
func (s Shipment) MatchesProvider(provider string) bool {
	return PreferenceMatches(s.CarrierPreference, provider)
}

func PreferenceMatches(preference, provider string) bool {
	pref := strings.ToLower(strings.TrimSpace(preference))
	prov := strings.ToLower(strings.TrimSpace(provider))
	if pref == "" || prov == "" {
		return false
	}
	return strings.Contains(pref, prov) || strings.Contains(prov, pref)
}
