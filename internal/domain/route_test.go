package domain

import "testing"

func sampleCandidate() RouteCandidate {
	return RouteCandidate{
		Provider:    "maersk",
		Service:     "AE7 Asia-Europe",
		ServiceType: "ocean",
		Waypoints: []Waypoint{
			{Name: "Shanghai", Lat: 31.2304, Lon: 121.4737, Type: WaypointPort},
			{Name: "Rotterdam", Lat: 51.9225, Lon: 4.4792, Type: WaypointPort},
		},
		DistanceKm:    19500,
		DurationHours: 820,
		CostUSD:       42000,
		EmissionsKg:   9000,
		Risk:          0.4,
		Modes:         []TransportMode{ModeSea},
	}
}

func TestRouteCandidateValidate(t *testing.T) {
	c := sampleCandidate()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Risk = 1.2
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for risk > 1")
	}

	c = sampleCandidate()
	c.Waypoints = c.Waypoints[:1]
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for single waypoint")
	}

	c = sampleCandidate()
	c.CostUSD = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative cost")
	}
}

func TestDecodeRouteMetadataFallsBack(t *testing.T) {
	c := sampleCandidate()

	for _, raw := range []string{"", "{not json", `{"version": 99, "provider": "x"}`} {
		m := DecodeRouteMetadata(raw, c)
		if m.Provider != "maersk" {
			t.Fatalf("raw=%q provider = %q, want maersk", raw, m.Provider)
		}
		if m.Confidence != ConfidenceMedium {
			t.Fatalf("raw=%q confidence = %q, want medium", raw, m.Confidence)
		}
		if m.Version != RouteMetadataVersion {
			t.Fatalf("raw=%q version = %d, want %d", raw, m.Version, RouteMetadataVersion)
		}
	}
}

func TestEncodeDecodeRouteMetadata(t *testing.T) {
	c := sampleCandidate()
	c.Score = 0.71
	c.Estimated = true

	raw, err := EncodeRouteMetadata(MetadataFor(c))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := DecodeRouteMetadata(raw, RouteCandidate{Provider: "other"})
	if m.Provider != "maersk" || !m.Estimated || m.CompositeScore != 0.71 {
		t.Fatalf("decoded metadata = %+v", m)
	}
	if m.Name != "MAERSK AE7 Asia-Europe" {
		t.Fatalf("name = %q", m.Name)
	}
}

func TestPreferenceMatches(t *testing.T) {
	tests := []struct {
		pref, provider string
		want           bool
	}{
		{"Maersk Line", "maersk", true},
		{"dhl", "DHL Express", true},
		{"", "maersk", false},
		{"fedex", "ups", false},
	}
	for _, tc := range tests {
		if got := PreferenceMatches(tc.pref, tc.provider); got != tc.want {
			t.Fatalf("PreferenceMatches(%q, %q) = %v, want %v", tc.pref, tc.provider, got, tc.want)
		}
	}
}
