// Package persistence selects and opens the configured activity store.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/mergington/internal/config"
	"example.com/mergington/internal/domain"
	"example.com/mergington/internal/persistence/memory"
	"example.com/mergington/internal/persistence/postgres"
	"example.com/mergington/internal/persistence/sqlite"
)

// Backend bundles the repository with the resources that must be released on shutdown.
type Backend struct {
	Repo domain.ActivityRepository
	// Pool is set only for the postgres driver; the outbox dispatcher shares it.
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the underlying connections.
func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// Open builds the repository selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return &Backend{Repo: memory.NewRepository()}, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Repo: store, close: func() { _ = store.Close() }}, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Repo: postgres.NewRepository(pool), Pool: pool, close: pool.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
