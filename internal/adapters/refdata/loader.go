package refdata

import (
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Static lookup tables used by risk scoring, alternative generation and
// lane estimation.
type ReferenceData struct {
	Zones     []domain.RiskZone `toml:"zones"`
	Corridors []domain.Corridor `toml:"corridors"`
	Ports     []domain.Port     `toml:"ports"`
}

func Defaults() ReferenceData {
	return ReferenceData{
		Zones:     domain.DefaultRiskZones(),
		Corridors: domain.DefaultCorridors(),
		Ports:     domain.DefaultPorts(),
	}
}

// Load reads a TOML reference file. An empty path yields the built-in
// tables; sections absent from the file keep their defaults.
func Load(path string) (ReferenceData, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return ReferenceData{}, fmt.Errorf("load reference data: read %q: %w", path, err)
	}
	return Parse(string(raw))
}

func Parse(doc string) (ReferenceData, error) {
	var data ReferenceData
	md, err := toml.Decode(doc, &data)
	if err != nil {
		return ReferenceData{}, fmt.Errorf("load reference data: parse toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return ReferenceData{}, fmt.Errorf("load reference data: unknown keys %v", undecoded)
	}

	def := Defaults()
	if !md.IsDefined("zones") {
		data.Zones = def.Zones
	}
	if !md.IsDefined("corridors") {
		data.Corridors = def.Corridors
	}
	if !md.IsDefined("ports") {
		data.Ports = def.Ports
	}

	if err := data.Validate(); err != nil {
		return ReferenceData{}, fmt.Errorf("load reference data: %w", err)
	}
	return data, nil
}

func (d ReferenceData) Validate() error {
	var errs []error
	for _, z := range d.Zones {
		if z.Baseline < 0 || z.Baseline > 1 {
			errs = append(errs, fmt.Errorf("zone %q: baseline %.2f outside [0,1]", z.ID, z.Baseline))
		}
		if z.Box.MinLat > z.Box.MaxLat || z.Box.MinLon > z.Box.MaxLon {
			errs = append(errs, fmt.Errorf("zone %q: inverted bounding box", z.ID))
		}
	}
	for _, c := range d.Corridors {
		if len(c.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("corridor %q: keywords are required", c.ID))
		}
		if c.DistanceFactor <= 0 || c.DurationFactor <= 0 || c.CostFactor <= 0 || c.EmissionsFactor <= 0 {
			errs = append(errs, fmt.Errorf("corridor %q: factors must be positive", c.ID))
		}
	}
	for _, p := range d.Ports {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, errors.New("port with empty name"))
		}
	}
	return errors.Join(errs...)
}
