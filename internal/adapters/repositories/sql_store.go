package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/db"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQL-backed implementation of the Store port for Postgres (pgx) and SQLite.
type SQLStore struct {
	queries
	DB *sql.DB
}

func NewSQLStore(conn *sql.DB, d db.Dialect) *SQLStore {
	return &SQLStore{
		queries: queries{db: conn, d: d, now: time.Now},
		DB:      conn,
	}
}

// InTx runs fn against a transaction-scoped view of the store.
func (s *SQLStore) InTx(ctx context.Context, fn func(q ports.Queries) error) (err error) {
	defer obs.Time(ctx, "store.tx")(&err)

	if s.DB == nil {
		return errors.New("sql store: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store tx: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{db: tx, d: s.d, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store tx: commit: %w", err)
	}
	return nil
}

type queries struct {
	db  execer
	d   db.Dialect
	now func() time.Time
}

const shipmentColumns = `
	id, reference, origin_port, destination_port,
	origin_lat, origin_lon, destination_lat, destination_lon,
	carrier_preference, transport_mode, priority, weight_kg,
	length_cm, width_cm, height_cm, declared_value_usd,
	scheduled_departure, scheduled_arrival, risk_score`

func (q *queries) GetShipment(ctx context.Context, id int64) (domain.Shipment, error) {
	row := q.db.QueryRowContext(ctx, q.d.Rebind(`SELECT `+shipmentColumns+` FROM shipments WHERE id = ?;`), id)

	s, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Shipment{}, fmt.Errorf("get shipment id=%d: %w", id, ports.ErrShipmentNotFound)
	}
	if err != nil {
		return domain.Shipment{}, fmt.Errorf("get shipment id=%d: %w", id, err)
	}
	return s, nil
}

func (q *queries) CreateShipment(ctx context.Context, s domain.Shipment) (int64, error) {
	if strings.TrimSpace(s.Reference) == "" {
		return 0, errors.New("create shipment: reference must not be empty")
	}

	query := q.d.Rebind(`
	INSERT INTO shipments (
		reference, origin_port, destination_port,
		origin_lat, origin_lon, destination_lat, destination_lon,
		carrier_preference, transport_mode, priority, weight_kg,
		length_cm, width_cm, height_cm, declared_value_usd,
		scheduled_departure, scheduled_arrival, risk_score
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id;
	`)

	prio := s.Priority
	if prio == "" {
		prio = domain.PriorityNormal
	}

	var id int64
	err := q.db.QueryRowContext(ctx, query,
		s.Reference, s.OriginPort, s.DestinationPort,
		s.Origin.Lat, s.Origin.Lon, s.Destination.Lat, s.Destination.Lon,
		s.CarrierPreference, string(s.Mode), string(prio), s.WeightKg,
		s.Dimensions.LengthCm, s.Dimensions.WidthCm, s.Dimensions.HeightCm, s.DeclaredValueUSD,
		dbTime(s.ScheduledDeparture), dbTimePtr(s.ScheduledArrival), s.RiskScore,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create shipment ref=%q: %w", s.Reference, err)
	}
	return id, nil
}

func (q *queries) ListShipmentsAtRisk(ctx context.Context, threshold float64, limit int) ([]domain.Shipment, error) {
	query := q.d.Rebind(`
	SELECT ` + shipmentColumns + `
	FROM shipments
	WHERE risk_score >= ?
	ORDER BY risk_score DESC, id
	LIMIT ?;
	`)
	return q.listShipments(ctx, "list shipments at risk", query, threshold, limit)
}

func (q *queries) ListShipments(ctx context.Context, afterID int64, limit int) ([]domain.Shipment, error) {
	query := q.d.Rebind(`SELECT ` + shipmentColumns + ` FROM shipments WHERE id > ? ORDER BY id LIMIT ?;`)
	return q.listShipments(ctx, "list shipments", query, afterID, limit)
}

func (q *queries) listShipments(ctx context.Context, op, query string, args ...any) ([]domain.Shipment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query shipments table: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.Shipment, 0, 16)
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: row iteration: %w", op, err)
	}
	return out, nil
}

func (q *queries) UpdateShipmentRouting(ctx context.Context, id int64, risk float64, arrival *time.Time) error {
	res, err := q.db.ExecContext(ctx,
		q.d.Rebind(`UPDATE shipments SET risk_score = ?, scheduled_arrival = ? WHERE id = ?;`),
		risk, dbTimePtr(arrival), id,
	)
	if err != nil {
		return fmt.Errorf("update shipment routing id=%d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update shipment routing id=%d: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update shipment routing id=%d: %w", id, ports.ErrShipmentNotFound)
	}
	return nil
}

const routeColumns = `
	id, shipment_id, provider, service, service_type, waypoints,
	distance_km, duration_hours, cost_usd, emissions_kg, risk_score,
	risk_factors, features, is_current, is_recommended, metadata, created_at`

func (q *queries) ListRoutes(ctx context.Context, shipmentID int64) ([]domain.Route, error) {
	rows, err := q.db.QueryContext(ctx,
		q.d.Rebind(`SELECT `+routeColumns+` FROM routes WHERE shipment_id = ? ORDER BY id;`),
		shipmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list routes shipment=%d: query routes table: %w", shipmentID, err)
	}
	defer rows.Close()

	out := make([]domain.Route, 0, 8)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("list routes shipment=%d: scan row: %w", shipmentID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list routes shipment=%d: row iteration: %w", shipmentID, err)
	}
	return out, nil
}

func (q *queries) DeleteRoutes(ctx context.Context, shipmentID int64) error {
	if _, err := q.db.ExecContext(ctx, q.d.Rebind(`DELETE FROM routes WHERE shipment_id = ?;`), shipmentID); err != nil {
		return fmt.Errorf("delete routes shipment=%d: %w", shipmentID, err)
	}
	return nil
}

func (q *queries) InsertRoute(ctx context.Context, r domain.Route) (int64, error) {
	meta := r.Metadata
	if meta.Version == 0 {
		meta = domain.MetadataFor(r.RouteCandidate)
	}
	metaJSON, err := domain.EncodeRouteMetadata(meta)
	if err != nil {
		return 0, fmt.Errorf("insert route: encode metadata: %w", err)
	}

	created := r.CreatedAt
	if created.IsZero() {
		created = q.now()
	}

	query := q.d.Rebind(`
	INSERT INTO routes (
		shipment_id, name, provider, service, service_type, waypoints,
		distance_km, duration_hours, cost_usd, emissions_kg, risk_score,
		risk_factors, features, is_current, is_recommended, metadata, created_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id;
	`)

	var id int64
	err = q.db.QueryRowContext(ctx, query,
		r.ShipmentID, meta.Name, r.Provider, r.Service, r.ServiceType, jsonText(r.Waypoints),
		r.DistanceKm, r.DurationHours, r.CostUSD, r.EmissionsKg, r.Risk,
		jsonText(r.RiskFactors), jsonText(r.Features), r.IsCurrent, r.IsRecommended, metaJSON, dbTime(created),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert route shipment=%d provider=%q: %w", r.ShipmentID, r.Provider, err)
	}
	return id, nil
}

func (q *queries) ClearRecommended(ctx context.Context, shipmentID int64) error {
	_, err := q.db.ExecContext(ctx,
		q.d.Rebind(`UPDATE routes SET is_recommended = ? WHERE shipment_id = ?;`),
		false, shipmentID,
	)
	if err != nil {
		return fmt.Errorf("clear recommended shipment=%d: %w", shipmentID, err)
	}
	return nil
}

func (q *queries) UpdateRouteRisk(ctx context.Context, routeID int64, risk float64, factors []string) error {
	_, err := q.db.ExecContext(ctx,
		q.d.Rebind(`UPDATE routes SET risk_score = ?, risk_factors = ? WHERE id = ?;`),
		risk, jsonText(factors), routeID,
	)
	if err != nil {
		return fmt.Errorf("update route risk id=%d: %w", routeID, err)
	}
	return nil
}

func (q *queries) HasPendingRecommendation(ctx context.Context, subjectType string, subjectID int64) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, q.d.Rebind(`
	SELECT COUNT(*) FROM recommendations
	WHERE subject_type = ? AND subject_id = ? AND status = ?;
	`), subjectType, subjectID, string(domain.StatusPending)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending recommendation %s=%d: %w", subjectType, subjectID, err)
	}
	return n > 0, nil
}

func (q *queries) InsertRecommendation(ctx context.Context, rec domain.Recommendation) (int64, error) {
	created := rec.CreatedAt
	if created.IsZero() {
		created = q.now()
	}
	status := rec.Status
	if status == "" {
		status = domain.StatusPending
	}

	var proposed any
	if rec.ProposedRouteID != 0 {
		proposed = rec.ProposedRouteID
	}

	query := q.d.Rebind(`
	INSERT INTO recommendations (
		type, subject_type, subject_id, subject_ref, title, description,
		severity, confidence, rationale, data, proposed_route_id,
		status, created_by, created_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id;
	`)

	var id int64
	err := q.db.QueryRowContext(ctx, query,
		rec.Type, rec.SubjectType, rec.SubjectID, rec.SubjectRef, rec.Title, rec.Description,
		string(rec.Severity), rec.Confidence, jsonText(rec.Rationale), jsonText(rec.Data), proposed,
		string(status), rec.CreatedBy, dbTime(created),
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert recommendation %s=%d: %w", rec.SubjectType, rec.SubjectID, ports.ErrRecommendationExists)
	}
	if err != nil {
		return 0, fmt.Errorf("insert recommendation %s=%d: %w", rec.SubjectType, rec.SubjectID, err)
	}
	return id, nil
}

func (q *queries) ListRecommendations(ctx context.Context, subjectType string, subjectID int64) ([]domain.Recommendation, error) {
	rows, err := q.db.QueryContext(ctx, q.d.Rebind(`
	SELECT
		id, type, subject_type, subject_id, subject_ref, title, description,
		severity, confidence, rationale, data, proposed_route_id,
		status, created_by, created_at
	FROM recommendations
	WHERE subject_type = ? AND subject_id = ?
	ORDER BY id DESC;
	`), subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list recommendations %s=%d: %w", subjectType, subjectID, err)
	}
	defer rows.Close()

	var out []domain.Recommendation
	for rows.Next() {
		var (
			rec                         domain.Recommendation
			severity, status            string
			rationaleJSON, dataJSON, ts string
			proposed                    sql.NullInt64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Type, &rec.SubjectType, &rec.SubjectID, &rec.SubjectRef, &rec.Title, &rec.Description,
			&severity, &rec.Confidence, &rationaleJSON, &dataJSON, &proposed,
			&status, &rec.CreatedBy, &ts,
		); err != nil {
			return nil, fmt.Errorf("list recommendations: scan row: %w", err)
		}

		rec.Severity = domain.Severity(severity)
		rec.Status = domain.RecommendationStatus(status)
		rec.ProposedRouteID = proposed.Int64
		if err := json.Unmarshal([]byte(rationaleJSON), &rec.Rationale); err != nil {
			return nil, fmt.Errorf("list recommendations id=%d: decode rationale: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
			return nil, fmt.Errorf("list recommendations id=%d: decode data: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = parseDBTime(ts); err != nil {
			return nil, fmt.Errorf("list recommendations id=%d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recommendations: row iteration: %w", err)
	}
	return out, nil
}

func scanShipment(sc scanner) (domain.Shipment, error) {
	var (
		s                  domain.Shipment
		mode, prio, depart string
		arrival            sql.NullString
	)
	err := sc.Scan(
		&s.ID, &s.Reference, &s.OriginPort, &s.DestinationPort,
		&s.Origin.Lat, &s.Origin.Lon, &s.Destination.Lat, &s.Destination.Lon,
		&s.CarrierPreference, &mode, &prio, &s.WeightKg,
		&s.Dimensions.LengthCm, &s.Dimensions.WidthCm, &s.Dimensions.HeightCm, &s.DeclaredValueUSD,
		&depart, &arrival, &s.RiskScore,
	)
	if err != nil {
		return domain.Shipment{}, err
	}

	s.Mode = domain.ParseMode(mode)
	s.Priority = domain.Priority(prio)
	if s.ScheduledDeparture, err = parseDBTime(depart); err != nil {
		return domain.Shipment{}, err
	}
	if arrival.Valid && arrival.String != "" {
		t, err := parseDBTime(arrival.String)
		if err != nil {
			return domain.Shipment{}, err
		}
		s.ScheduledArrival = &t
	}
	return s, nil
}

func scanRoute(sc scanner) (domain.Route, error) {
	var (
		r                                  domain.Route
		waypoints, factors, features, meta string
		created                            string
	)
	err := sc.Scan(
		&r.ID, &r.ShipmentID, &r.Provider, &r.Service, &r.ServiceType, &waypoints,
		&r.DistanceKm, &r.DurationHours, &r.CostUSD, &r.EmissionsKg, &r.Risk,
		&factors, &features, &r.IsCurrent, &r.IsRecommended, &meta, &created,
	)
	if err != nil {
		return domain.Route{}, err
	}

	if err := json.Unmarshal([]byte(waypoints), &r.Waypoints); err != nil {
		return domain.Route{}, fmt.Errorf("decode waypoints route=%d: %w", r.ID, err)
	}
	_ = json.Unmarshal([]byte(factors), &r.RiskFactors)
	_ = json.Unmarshal([]byte(features), &r.Features)

	r.Metadata = domain.DecodeRouteMetadata(meta, r.RouteCandidate)
	r.Modes = append([]domain.TransportMode(nil), r.Metadata.TransportModes...)
	r.Confidence = r.Metadata.Confidence
	r.Estimated = r.Metadata.Estimated
	r.Synthesized = r.Metadata.Synthesized
	r.Score = r.Metadata.CompositeScore

	if r.CreatedAt, err = parseDBTime(created); err != nil {
		return domain.Route{}, err
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func dbTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func dbTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

var dbTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

func parseDBTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

var _ ports.Store = (*SQLStore)(nil)
