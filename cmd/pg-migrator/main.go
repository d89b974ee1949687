// pg-migrator applies the embedded schema migrations and exits. Deployments
// that must not let the API binary touch the schema run this as a one-shot
// job before rollout.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"ingesthub.systems/ingesthub/internal/application"
	"ingesthub.systems/ingesthub/internal/config"
	"ingesthub.systems/ingesthub/internal/db"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	if err := dbc.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed")
}
