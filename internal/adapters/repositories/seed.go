package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/ports"
	"os"
	"strings"
	"time"
)

type ShipmentSeed struct {
	Reference          string            `json:"reference"`
	OriginPort         string            `json:"origin_port"`
	DestinationPort    string            `json:"destination_port"`
	CarrierPreference  string            `json:"carrier_preference"`
	TransportMode      string            `json:"transport_mode"`
	Priority           string            `json:"priority"`
	WeightKg           float64           `json:"weight_kg"`
	Dimensions         domain.Dimensions `json:"dimensions"`
	DeclaredValueUSD   float64           `json:"declared_value_usd"`
	ScheduledDeparture time.Time         `json:"scheduled_departure"`
}

// Populate the shipments table from a JSON file. Port names or codes are
// resolved through catalog; references already present are skipped.
func SeedShipmentsFromJSON(ctx context.Context, store ports.Store, catalog *domain.PortCatalog, jsonPath string) (int, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("seed shipments: read %q: %w", jsonPath, err)
	}

	var data []ShipmentSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("seed shipments: parse json: %w", err)
	}

	rows := make([]domain.Shipment, 0, len(data))
	for i, item := range data {
		ref := strings.TrimSpace(item.Reference)
		if ref == "" {
			return 0, fmt.Errorf("seed shipments: item at index %d: reference cannot be empty", i+1)
		}

		origin, ok := catalog.Lookup(item.OriginPort)
		if !ok {
			return 0, fmt.Errorf("seed shipments: %s: unknown origin port %q", ref, item.OriginPort)
		}
		dest, ok := catalog.Lookup(item.DestinationPort)
		if !ok {
			return 0, fmt.Errorf("seed shipments: %s: unknown destination port %q", ref, item.DestinationPort)
		}

		departure := item.ScheduledDeparture
		if departure.IsZero() {
			departure = time.Now().UTC().Add(72 * time.Hour)
		}

		prio := domain.Priority(strings.ToLower(strings.TrimSpace(item.Priority)))
		if prio != domain.PriorityUrgent {
			prio = domain.PriorityNormal
		}

		rows = append(rows, domain.Shipment{
			Reference:          ref,
			OriginPort:         origin.Name,
			DestinationPort:    dest.Name,
			Origin:             domain.Coordinates{Lat: origin.Lat, Lon: origin.Lon},
			Destination:        domain.Coordinates{Lat: dest.Lat, Lon: dest.Lon},
			CarrierPreference:  strings.TrimSpace(item.CarrierPreference),
			Mode:               domain.ParseMode(item.TransportMode),
			Priority:           prio,
			WeightKg:           item.WeightKg,
			Dimensions:         item.Dimensions,
			DeclaredValueUSD:   item.DeclaredValueUSD,
			ScheduledDeparture: departure,
		})
	}

	existing := map[string]struct{}{}
	current, err := store.ListShipments(ctx, 0, 100000)
	if err != nil {
		return 0, fmt.Errorf("seed shipments: %w", err)
	}
	for _, s := range current {
		existing[s.Reference] = struct{}{}
	}

	inserted := 0
	err = store.InTx(ctx, func(q ports.Queries) error {
		for _, s := range rows {
			if _, ok := existing[s.Reference]; ok {
				continue
			}
			if _, err := q.CreateShipment(ctx, s); err != nil {
				return err
			}
			existing[s.Reference] = struct{}{}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed shipments: %w", err)
	}

	return inserted, nil
}
