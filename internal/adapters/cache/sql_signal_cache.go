package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"freight-route-service/internal/platform/db"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"strings"
	"time"
)

// SQLSignalCache is a SQL-backed cache for risk signal readings, used when
// no Redis is configured.
type SQLSignalCache struct {
	DB      *sql.DB
	Dialect db.Dialect
	now     func() time.Time
}

func NewSQLSignalCache(conn *sql.DB, d db.Dialect) *SQLSignalCache {
	return &SQLSignalCache{DB: conn, Dialect: d, now: time.Now}
}

// Fetch a cached reading. Expired rows count as misses.
func (s *SQLSignalCache) Get(ctx context.Context, key string) (_ ports.SignalReading, _ bool, err error) {
	defer obs.Time(ctx, "signal.cache.sql.Get")(&err)

	if s.DB == nil {
		return ports.SignalReading{}, false, errors.New("signal cache: db is nil")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return ports.SignalReading{}, false, errors.New("get signal cache: key must not be empty")
	}

	q := s.Dialect.Rebind(`
	SELECT payload
	FROM signal_cache
	WHERE cache_key = ?
		AND expires_at > ?;
	`)

	var payload string
	err = s.DB.QueryRowContext(ctx, q, key, s.now().Unix()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.SignalReading{}, false, nil
	}
	if err != nil {
		return ports.SignalReading{}, false, fmt.Errorf("get signal cache key=%q: %w", key, err)
	}

	var r ports.SignalReading
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return ports.SignalReading{}, false, fmt.Errorf("get signal cache key=%q: decode: %w", key, err)
	}
	return r, true, nil
}

// Store a reading with the given time-to-live.
func (s *SQLSignalCache) Put(ctx context.Context, key string, r ports.SignalReading, ttl time.Duration) error {
	if s.DB == nil {
		return errors.New("signal cache: db is nil")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("insert signal cache: key must not be empty")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("insert signal cache key=%q: encode: %w", key, err)
	}

	q := s.Dialect.Rebind(`
	INSERT INTO signal_cache (cache_key, payload, expires_at)
	VALUES (?, ?, ?)
	ON CONFLICT (cache_key) DO UPDATE
	SET payload = EXCLUDED.payload,
		expires_at = EXCLUDED.expires_at;
	`)

	if _, err := s.DB.ExecContext(ctx, q, key, string(payload), s.now().Add(ttl).Unix()); err != nil {
		return fmt.Errorf("insert signal cache key=%q: %w", key, err)
	}
	return nil
}
