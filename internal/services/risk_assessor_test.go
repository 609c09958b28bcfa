package services

import (
	"context"
	"errors"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSignals struct {
	weather    ports.SignalReading
	weatherErr error
	geo        map[string]ports.SignalReading
	geoErr     error
	port       map[string]ports.SignalReading
}

func (f *fakeSignals) WeatherRisk(context.Context, []domain.Waypoint) (ports.SignalReading, error) {
	return f.weather, f.weatherErr
}

func (f *fakeSignals) GeoRisk(_ context.Context, from, _ domain.Waypoint) (ports.SignalReading, error) {
	if f.geoErr != nil {
		return ports.SignalReading{}, f.geoErr
	}
	return f.geo[from.Name], nil
}

func (f *fakeSignals) PortCongestion(_ context.Context, code string) (ports.SignalReading, error) {
	r, ok := f.port[code]
	if !ok {
		return ports.SignalReading{}, errors.New("unknown port")
	}
	return r, nil
}

func TestRiskAssessorDefaultsWithoutSignals(t *testing.T) {
	a := NewRiskAssessor(nil, nil, DefaultRiskWeights(), time.Second)

	got := a.Score(context.Background(), []domain.Waypoint{wpShanghai, wpPacific, wpLosAngeles})

	require.InDelta(t, 0.2*0.35+0.1*0.50+0.5*0.15, got.Risk, 1e-9)
	require.InDelta(t, 0.3, got.Confidence, 1e-9)
	require.Zero(t, got.LiveSignals)
	for _, f := range got.Factors {
		require.False(t, f.Live, f.String())
	}
}

func TestRiskAssessorBlendsLiveSignals(t *testing.T) {
	signals := &fakeSignals{
		weather: ports.SignalReading{Risk: 0.4, Events: 1},
		geo: map[string]ports.SignalReading{
			"Shanghai":      {Risk: 0.2},
			"North Pacific": {Risk: 0.6, Events: 2},
		},
		port: map[string]ports.SignalReading{
			"CNSHA": {Risk: 0.8},
			"USLAX": {Risk: 0.4},
		},
	}
	a := NewRiskAssessor(signals, nil, DefaultRiskWeights(), time.Second)

	got := a.Score(context.Background(), []domain.Waypoint{wpShanghai, wpPacific, wpLosAngeles})

	// geo takes the worst segment, port the mean of both ports.
	require.InDelta(t, 0.4*0.35+0.6*0.50+0.6*0.15, got.Risk, 1e-9)
	require.Equal(t, 3, got.LiveSignals)
	require.Equal(t, 3, got.Events)
	require.InDelta(t, 0.3+0.6+0.03, got.Confidence, 1e-9)
}

func TestRiskAssessorConfidenceCapped(t *testing.T) {
	signals := &fakeSignals{
		weather: ports.SignalReading{Risk: 0.1, Events: 20},
		geo:     map[string]ports.SignalReading{},
		port:    map[string]ports.SignalReading{"CNSHA": {Risk: 0.1}, "USLAX": {Risk: 0.1}},
	}
	a := NewRiskAssessor(signals, nil, DefaultRiskWeights(), time.Second)

	got := a.Score(context.Background(), []domain.Waypoint{wpShanghai, wpLosAngeles})
	require.InDelta(t, 0.95, got.Confidence, 1e-9)
}

func TestRiskAssessorZoneFloor(t *testing.T) {
	signals := &fakeSignals{
		weather: ports.SignalReading{Risk: 0.05},
		geoErr:  errors.New("geo service down"),
		port:    map[string]ports.SignalReading{},
	}
	a := NewRiskAssessor(signals, domain.DefaultRiskZones(), DefaultRiskWeights(), time.Second)

	route := []domain.Waypoint{wpSingapore, wpBabMandeb, wpRedSea, wpSuez, wpRotterdam}
	got := a.Score(context.Background(), route)

	for _, z := range domain.DefaultRiskZones() {
		if z.Touches(route) {
			require.GreaterOrEqual(t, got.Risk, z.Baseline, z.ID)
		}
	}
	require.InDelta(t, 0.8, got.Risk, 1e-9)
	require.Contains(t, got.FactorStrings(), "zone:red_sea=0.80(floor)")
}

func TestRiskAssessorZoneNeverLowers(t *testing.T) {
	signals := &fakeSignals{
		weather: ports.SignalReading{Risk: 1},
		geo:     map[string]ports.SignalReading{"Singapore": {Risk: 1}, "Bab-el-Mandeb": {Risk: 1}, "Red Sea": {Risk: 1}, "Suez Canal": {Risk: 1}},
		port:    map[string]ports.SignalReading{"SGSIN": {Risk: 1}, "NLRTM": {Risk: 1}},
	}
	a := NewRiskAssessor(signals, domain.DefaultRiskZones(), DefaultRiskWeights(), time.Second)

	got := a.Score(context.Background(), []domain.Waypoint{wpSingapore, wpBabMandeb, wpRedSea, wpSuez, wpRotterdam})
	require.InDelta(t, 1.0, got.Risk, 1e-9)
}
