package domain

import (
	"encoding/json"
	"strings"
)

const RouteMetadataVersion = 1

// Side document stored with each route row.
type RouteMetadata struct {
	Version        int             `json:"version"`
	Name           string          `json:"name"`
	Provider       string          `json:"provider"`
	ServiceType    string          `json:"service_type,omitempty"`
	Confidence     Confidence      `json:"confidence"`
	TransportModes []TransportMode `json:"transport_modes"`
	CompositeScore float64         `json:"composite_score"`
	Estimated      bool            `json:"estimated,omitempty"`
	Synthesized    bool            `json:"synthesized,omitempty"`
	Alternative    bool            `json:"alternative,omitempty"`
}

// MetadataFor builds the metadata document for a candidate.
func MetadataFor(c RouteCandidate) RouteMetadata {
	conf := c.Confidence
	if conf == "" {
		conf = ConfidenceMedium
	}
	return RouteMetadata{
		Version:        RouteMetadataVersion,
		Name:           c.Name(),
		Provider:       c.Provider,
		ServiceType:    c.ServiceType,
		Confidence:     conf,
		TransportModes: append([]TransportMode(nil), c.Modes...),
		CompositeScore: c.Score,
		Estimated:      c.Estimated,
		Synthesized:    c.Synthesized,
	}
}

func EncodeRouteMetadata(m RouteMetadata) (string, error) {
	if m.Version == 0 {
		m.Version = RouteMetadataVersion
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeRouteMetadata never fails: unreadable or unknown-version documents
// fall back to a default derived from the route row itself.
func DecodeRouteMetadata(raw string, fallback RouteCandidate) RouteMetadata {
	def := MetadataFor(fallback)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}

	var m RouteMetadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return def
	}
	if m.Version != RouteMetadataVersion {
		return def
	}
	if m.Confidence == "" {
		m.Confidence = def.Confidence
	}
	if m.Provider == "" {
		m.Provider = def.Provider
	}
	if m.Name == "" {
		m.Name = def.Name
	}
	return m
}
