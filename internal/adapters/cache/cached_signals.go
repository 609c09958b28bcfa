package cache

import (
	"context"
	"fmt"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SignalCache is the storage contract shared by the Redis and SQL caches.
type SignalCache interface {
	Get(ctx context.Context, key string) (ports.SignalReading, bool, error)
	Put(ctx context.Context, key string, r ports.SignalReading, ttl time.Duration) error
}

// CachedSignals wraps a RiskSignals source with a read-through cache.
// Failed lookups are never cached; cache errors fall through to the source.
type CachedSignals struct {
	next  ports.RiskSignals
	cache SignalCache
	ttl   time.Duration
}

func NewCachedSignals(next ports.RiskSignals, cache SignalCache, ttl time.Duration) *CachedSignals {
	return &CachedSignals{next: next, cache: cache, ttl: ttl}
}

func (c *CachedSignals) WeatherRisk(ctx context.Context, wps []domain.Waypoint) (ports.SignalReading, error) {
	parts := make([]string, 0, len(wps))
	for _, wp := range wps {
		parts = append(parts, coordKey(wp))
	}
	key := "weather:" + strings.Join(parts, ";")

	return c.through(ctx, key, func() (ports.SignalReading, error) {
		return c.next.WeatherRisk(ctx, wps)
	})
}

func (c *CachedSignals) GeoRisk(ctx context.Context, from, to domain.Waypoint) (ports.SignalReading, error) {
	key := "geo:" + coordKey(from) + ">" + coordKey(to)
	return c.through(ctx, key, func() (ports.SignalReading, error) {
		return c.next.GeoRisk(ctx, from, to)
	})
}

func (c *CachedSignals) PortCongestion(ctx context.Context, portCode string) (ports.SignalReading, error) {
	key := "port:" + strings.ToUpper(strings.TrimSpace(portCode))
	return c.through(ctx, key, func() (ports.SignalReading, error) {
		return c.next.PortCongestion(ctx, portCode)
	})
}

func (c *CachedSignals) through(ctx context.Context, key string, load func() (ports.SignalReading, error)) (ports.SignalReading, error) {
	log := obs.FromContext(ctx)

	if r, ok, err := c.cache.Get(ctx, key); err != nil {
		log.Warn("signal cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return r, nil
	}

	r, err := load()
	if err != nil {
		return ports.SignalReading{}, err
	}

	if err := c.cache.Put(ctx, key, r, c.ttl); err != nil {
		log.Warn("signal cache write failed", zap.String("key", key), zap.Error(err))
	}
	return r, nil
}

// coordKey rounds to ~1km so nearby queries share entries.
func coordKey(wp domain.Waypoint) string {
	return fmt.Sprintf("%.2f,%.2f", wp.Lat, wp.Lon)
}
