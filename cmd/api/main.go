package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ingesthub.systems/ingesthub/cmd/api/internal/web"
	"ingesthub.systems/ingesthub/internal/application"
	"ingesthub.systems/ingesthub/internal/config"
	"ingesthub.systems/ingesthub/internal/db"
	"ingesthub.systems/ingesthub/internal/ingest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	closeLogs := config.SetupLogger(conf.LogFile, conf.LogLevel)
	defer closeLogs()

	slog.Info("Starting ingest service")

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

	// Packages interrupted by a previous crash must be resolved before the
	// server accepts new runs.
	if err := ingest.RecoverInterrupted(ctx, dbc.Queries(ctx)); err != nil {
		slog.Error("startup recovery sweep failed", "error", err)
		os.Exit(1)
	}

	e, err := web.NewWebserver(ctx, dbc, conf)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
