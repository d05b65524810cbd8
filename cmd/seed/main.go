// Command seed migrates the database and inserts a couple of sample features
// so a fresh environment has something to draw on.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mcraigtyler/map-editor/internal/config"
	"github.com/mcraigtyler/map-editor/internal/geometry"
	"github.com/mcraigtyler/map-editor/internal/repo"
	"github.com/mcraigtyler/map-editor/internal/service"
	"github.com/mcraigtyler/map-editor/migrations"
)

var samples = []service.FeatureInput{
	{
		Kind:     "point",
		Geometry: []byte(`{"type":"Point","coordinates":[0,0]}`),
		Tags:     map[string]string{"name": "Null Island"},
	},
	{
		Kind:     "line",
		Geometry: []byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`),
		Tags:     map[string]string{"name": "Test Line"},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	geometry.UseJSONCodec()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations applied", "count", len(results))

	features := service.NewFeatureService(repo.NewFeatureRepo(pool))
	for _, in := range samples {
		f, err := features.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("create %q: %w", in.Tags["name"], err)
		}
		log.Info("feature seeded", "id", f.ID, "kind", f.Kind, "name", f.Tags["name"])
	}
	return nil
}
