package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/letterflow/letterflow/pkg/dedupe"
)

// NewDedupeStore creates the trigger dedupe store. Without a Redis URL the
// store is process-local, which only suppresses duplicates within one worker.
func NewDedupeStore(ctx context.Context, logger *slog.Logger, redisURL string) dedupe.Store {
	if redisURL == "" {
		logger.WarnContext(ctx, "No Redis URL configured, using in-memory dedupe store")

		return dedupe.NewMemoryStore()
	}

	store, err := dedupe.NewRedisStore(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create Redis dedupe store: %w", err))
	}

	return store
}
