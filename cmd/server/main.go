package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"freight-route-service/internal/adapters/cache"
	"freight-route-service/internal/adapters/carriers"
	"freight-route-service/internal/adapters/events"
	"freight-route-service/internal/adapters/llm"
	"freight-route-service/internal/adapters/refdata"
	"freight-route-service/internal/adapters/repositories"
	"freight-route-service/internal/adapters/signals"
	"freight-route-service/internal/api"
	"freight-route-service/internal/config"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/db"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"freight-route-service/internal/services"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters behind ports and starts the HTTP server and
// the reroute monitor.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := obs.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	conn, dialect, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := repositories.InitSchema(ctx, conn, dialect); err != nil {
		return err
	}
	store := repositories.NewSQLStore(conn, dialect)

	ref, err := refdata.Load(cfg.ReferenceDataPath)
	if err != nil {
		return err
	}
	catalog := domain.NewPortCatalog(ref.Ports)

	if seedPath := config.Get("SEED_PATH", ""); seedPath != "" {
		n, err := repositories.SeedShipmentsFromJSON(ctx, store, catalog, seedPath)
		if err != nil {
			return err
		}
		logger.Info("shipments seeded", zap.Int("inserted", n), zap.String("path", seedPath))
	}

	estimator := carriers.NewLaneEstimator(catalog, carriers.DefaultProviderProfiles(), cfg.Deterministic)
	registry, err := buildRegistry(cfg, estimator)
	if err != nil {
		return err
	}

	riskSignals, closeSignals, err := buildSignals(ctx, cfg, conn, dialect, logger)
	if err != nil {
		return err
	}
	defer closeSignals()

	var publisher ports.EventPublisher = ports.NopPublisher{}
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("freight-route-service"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()

		pub, err := events.NewNATSPublisher(nc, "freight")
		if err != nil {
			return err
		}
		publisher = pub
	}

	risk := services.NewRiskAssessor(riskSignals, ref.Zones, services.DefaultRiskWeights(), cfg.SignalTimeout)

	aggCfg := services.DefaultAggregationConfig()
	aggCfg.ProviderAllowlist = cfg.ProviderAllowlist
	aggCfg.ProviderTimeout = cfg.ProviderTimeout
	aggCfg.MaxParallelFetches = cfg.MaxParallelFetches
	aggCfg.FallbackOnSoft = cfg.FallbackOnSoft
	aggregator, err := services.NewAggregator(registry, estimator, risk, aggCfg)
	if err != nil {
		return err
	}

	scorer, err := services.NewScorer(cfg.Weights, cfg.Caps)
	if err != nil {
		return err
	}

	var generator ports.RationaleGenerator
	if cfg.LLMAPIKey != "" && cfg.LLMURL != "" {
		client, err := llm.NewChatClient(cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMTimeout)
		if err != nil {
			return err
		}
		generator = client
	}

	builder, err := services.NewRecommendationBuilder(store, generator, scorer, publisher, services.RationaleConfig{
		Offline: cfg.RationaleOffline,
		ModelID: cfg.LLMModelID,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		return err
	}
	rerouter := services.NewRerouter(store, services.NewAlternativeGenerator(ref.Corridors), builder, cfg.RerouteRiskThreshold)

	selector, err := services.NewSelector(store, scorer, aggregator, rerouter, publisher, cfg.RerouteRiskThreshold)
	if err != nil {
		return err
	}

	monitor, err := services.NewRerouteMonitor(store, risk, rerouter, services.MonitorConfig{
		Interval:    cfg.MonitorInterval,
		Threshold:   cfg.RerouteRiskThreshold,
		MaxPerCycle: cfg.MaxShipmentsPerCycle,
		RefreshRisk: cfg.MonitorRefreshRisk,
	})
	if err != nil {
		return err
	}

	if nc != nil {
		handler := &events.ShipmentCreatedHandler{
			Refresh: func(ctx context.Context, id int64) error {
				_, err := selector.RefreshShipment(obs.WithLogger(ctx, logger), id)
				return err
			},
			BaseContext: ctx,
			Timeout:     2 * cfg.ProviderTimeout,
			Log:         logger,
		}
		sub, err := handler.Subscribe(nc, "freight."+ports.TopicShipmentsCreated)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(obs.WithLogger(ctx, logger.Named("monitor")))
	}()

	// Timeouts are tuned for cold-cache aggregation (carrier API latency).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(store, selector, monitor, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("db", dialect.String()),
			zap.Strings("providers", registry.Providers()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-monitorDone
	return nil
}

// openDB prefers Postgres when DATABASE_URL is set and falls back to a local
// SQLite file.
func openDB(ctx context.Context, cfg config.Config) (*sql.DB, db.Dialect, error) {
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		return conn, db.DialectPostgres, err
	}
	conn, err := db.OpenSQLite(ctx, cfg.DBPath)
	return conn, db.DialectSQLite, err
}

// buildRegistry registers live HTTP carriers from CARRIERS, or the estimated
// default providers when none are configured.
func buildRegistry(cfg config.Config, estimator *carriers.LaneEstimator) (*carriers.Registry, error) {
	profiles := map[string]carriers.ProviderProfile{}
	for _, p := range carriers.DefaultProviderProfiles() {
		profiles[carriers.NormalizeProvider(p.ID)] = p
	}

	registry := carriers.NewRegistry()
	if len(cfg.Carriers) > 0 {
		for _, ep := range cfg.Carriers {
			caps := ports.CarrierCapabilities{General: true}
			if p, ok := profiles[carriers.NormalizeProvider(ep.Provider)]; ok {
				caps = p.Capabilities()
			}
			f, err := carriers.NewHTTPFetcher(ep.Provider, ep.BaseURL, ep.APIKey, caps, cfg.ProviderTimeout, cfg.CarrierRPS)
			if err != nil {
				return nil, err
			}
			registry.Register(f)
		}
		return registry, nil
	}

	for _, p := range profiles {
		f, err := carriers.NewEstimatedFetcher(p, estimator)
		if err != nil {
			return nil, err
		}
		registry.Register(f)
	}
	return registry, nil
}

// buildSignals fronts the HTTP risk feeds with Redis when REDIS_URL is set,
// otherwise with the SQL signal cache.
func buildSignals(ctx context.Context, cfg config.Config, conn *sql.DB, dialect db.Dialect, logger *zap.Logger) (ports.RiskSignals, func(), error) {
	live := signals.NewHTTPSignals(cfg.WeatherURL, cfg.GeoURL, cfg.PortURL, cfg.SignalTimeout)

	if cfg.RedisURL == "" {
		return cache.NewCachedSignals(live, cache.NewSQLSignalCache(conn, dialect), cfg.SignalCacheTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, signals cached in database", zap.Error(err))
		client.Close()
		return cache.NewCachedSignals(live, cache.NewSQLSignalCache(conn, dialect), cfg.SignalCacheTTL), func() {}, nil
	}

	closeFn := func() { _ = client.Close() }
	return cache.NewCachedSignals(live, cache.NewRedisSignalCache(client), cfg.SignalCacheTTL), closeFn, nil
}
