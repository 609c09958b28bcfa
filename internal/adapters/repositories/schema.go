package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"freight-route-service/internal/platform/db"
)

func schemaStatements(d db.Dialect) []string {
	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	boolType := "INTEGER"
	jsonType := "TEXT"
	tsType := "TEXT"
	if d == db.DialectPostgres {
		idCol = "BIGSERIAL PRIMARY KEY"
		boolType = "BOOLEAN"
		jsonType = "JSONB"
		tsType = "TIMESTAMPTZ"
	}

	createShipments := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS shipments (
		id %[1]s,
		reference TEXT NOT NULL UNIQUE,
		origin_port TEXT NOT NULL,
		destination_port TEXT NOT NULL,
		origin_lat REAL NOT NULL,
		origin_lon REAL NOT NULL,
		destination_lat REAL NOT NULL,
		destination_lon REAL NOT NULL,
		carrier_preference TEXT NOT NULL DEFAULT '',
		transport_mode TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT 'normal',
		weight_kg REAL NOT NULL DEFAULT 0,
		length_cm REAL NOT NULL DEFAULT 0,
		width_cm REAL NOT NULL DEFAULT 0,
		height_cm REAL NOT NULL DEFAULT 0,
		declared_value_usd REAL NOT NULL DEFAULT 0,
		scheduled_departure %[2]s NOT NULL,
		scheduled_arrival %[2]s,
		risk_score REAL NOT NULL DEFAULT 0
	);
	`, idCol, tsType)

	createRoutes := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS routes (
		id %[1]s,
		shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		provider TEXT NOT NULL,
		service TEXT NOT NULL DEFAULT '',
		service_type TEXT NOT NULL DEFAULT '',
		waypoints %[3]s NOT NULL,
		distance_km REAL NOT NULL,
		duration_hours REAL NOT NULL,
		cost_usd REAL NOT NULL,
		emissions_kg REAL NOT NULL,
		risk_score REAL NOT NULL,
		risk_factors %[3]s NOT NULL,
		features %[3]s NOT NULL,
		is_current %[2]s NOT NULL,
		is_recommended %[2]s NOT NULL,
		metadata %[3]s NOT NULL,
		created_at %[4]s NOT NULL
	);
	`, idCol, boolType, jsonType, tsType)

	createRecommendations := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS recommendations (
		id %[1]s,
		type TEXT NOT NULL,
		subject_type TEXT NOT NULL,
		subject_id BIGINT NOT NULL,
		subject_ref TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		severity TEXT NOT NULL,
		confidence REAL NOT NULL,
		rationale %[2]s NOT NULL,
		data %[2]s NOT NULL,
		proposed_route_id BIGINT,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at %[3]s NOT NULL
	);
	`, idCol, jsonType, tsType)

	createSignalCache := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS signal_cache (
		cache_key TEXT PRIMARY KEY,
		payload %[1]s NOT NULL,
		expires_at BIGINT NOT NULL
	);
	`, jsonType)

	return []string{
		createShipments,
		createRoutes,
		createRecommendations,
		createSignalCache,
		`CREATE INDEX IF NOT EXISTS idx_routes_shipment ON routes(shipment_id);`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_risk ON shipments(risk_score);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_recommendations_pending
		ON recommendations(subject_type, subject_id) WHERE status = 'pending';`,
	}
}

// Initialize the database schema for the given dialect.
func InitSchema(ctx context.Context, conn *sql.DB, d db.Dialect) error {
	if conn == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schemaStatements(d) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
