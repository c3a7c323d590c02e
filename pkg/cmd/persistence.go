// Package cmd provides shared wiring for the letterflow binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/letterflow/letterflow/pkg/persistence"
	"github.com/letterflow/letterflow/pkg/persistence/memory"
	"github.com/letterflow/letterflow/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence layer from the database URL scheme.
// "memory://" is for local development only; state is lost on restart.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	case strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence()
	default:
		panic("Unsupported database URL: " + databaseURL)
	}
}
