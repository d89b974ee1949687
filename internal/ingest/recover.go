package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"ingesthub.systems/ingesthub/internal/db"
)

// Recoverer is the database surface the startup sweep needs.
type Recoverer interface {
	RecoverStuckPackages(ctx context.Context) ([]db.StuckPackage, error)
}

// RecoverInterrupted marks packages left in processing status by a previous
// run as failed. Called once at startup, before the server accepts ingest
// requests, so operators see the interrupted runs instead of packages that
// sit in processing forever.
func RecoverInterrupted(ctx context.Context, store Recoverer) error {
	stuck, err := store.RecoverStuckPackages(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted packages: %w", err)
	}
	for _, pkg := range stuck {
		slog.Warn("recovered interrupted package", "id", db.UUIDString(pkg.ID), "name", pkg.Name)
	}
	if len(stuck) > 0 {
		slog.Info("startup recovery sweep complete", "packages", len(stuck))
	}
	return nil
}
