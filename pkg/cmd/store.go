// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/errandlabs/errand/pkg/store"
	"github.com/errandlabs/errand/pkg/store/memory"
	"github.com/errandlabs/errand/pkg/store/postgres"
	"github.com/errandlabs/errand/pkg/store/redis"
)

var supportedStoreProviders = []string{"memory", "redis", "postgres", "postgresql"}

// NewStore creates a workflow store from a database URL. The scheme selects
// the backend; anything unrecognized falls back to the in-memory store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) store.Store {
	switch parseStoreProvider(databaseURL) {
	case "redis":
		st, err := redis.NewStore(ctx, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis store: %w", err))
		}

		return st
	case "postgres", "postgresql":
		st, err := postgres.NewStore(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL store: %w", err))
		}

		return st
	default:
		return memory.NewStore()
	}
}

func parseStoreProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	for _, supported := range supportedStoreProviders {
		if provider == supported {
			return provider
		}
	}

	return "memory"
}
