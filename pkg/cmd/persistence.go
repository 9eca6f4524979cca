// Package cmd wires shared infrastructure for the binaries: persistence,
// event bus, and the skill registry.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/persistence/file"
	"github.com/skillweave/skillweave/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres URLs get PostgreSQL, anything else falls back to the
// file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
