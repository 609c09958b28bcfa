package main

import (
	"context"
	"database/sql"
	"freight-route-service/internal/adapters/refdata"
	"freight-route-service/internal/adapters/repositories"
	"freight-route-service/internal/config"
	"freight-route-service/internal/domain"
	"freight-route-service/internal/platform/db"
	"freight-route-service/internal/platform/obs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	logger, err := obs.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = obs.WithLogger(ctx, logger)

	conn, dialect, err := open(ctx)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	ref, err := refdata.Load(config.Get("REFERENCE_DATA_PATH", ""))
	if err != nil {
		logger.Fatal("load reference data", zap.Error(err))
	}

	seedPath := config.Get("SEED_PATH", "data/seeds/shipments.json")
	if err := initAndSeed(ctx, conn, dialect, domain.NewPortCatalog(ref.Ports), seedPath, logger); err != nil {
		logger.Fatal("init and seed", zap.Error(err))
	}
}

func open(ctx context.Context) (*sql.DB, db.Dialect, error) {
	if url := config.Get("DATABASE_URL", ""); url != "" {
		conn, err := db.Open(ctx, url)
		return conn, db.DialectPostgres, err
	}
	conn, err := db.OpenSQLite(ctx, config.Get("DB_PATH", "data/freight.db"))
	return conn, db.DialectSQLite, err
}

func initAndSeed(ctx context.Context, conn *sql.DB, dialect db.Dialect, catalog *domain.PortCatalog, seedPath string, logger *zap.Logger) error {
	logger.Info("initializing database schema", zap.String("dialect", dialect.String()))
	if err := repositories.InitSchema(ctx, conn, dialect); err != nil {
		return err
	}

	logger.Info("seeding shipments", zap.String("path", seedPath))
	n, err := repositories.SeedShipmentsFromJSON(ctx, repositories.NewSQLStore(conn, dialect), catalog, seedPath)
	if err != nil {
		return err
	}
	logger.Info("seeding complete", zap.Int("inserted", n))
	return nil
}
