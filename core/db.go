package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a small pgx pool for db and pings it.
func Connect(ctx context.Context, db DatabaseConfig) (*pgxpool.Pool, error) {
	config, err := db.PoolConfig()
	if err != nil {
		return nil, err
	}
	config.MaxConns = 2
	config.MinConns = 0
	config.MaxConnLifetime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	// Validate connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// ServerVersion asks the server for its version string.
func ServerVersion(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	var v string
	if err := pool.QueryRow(ctx, `SHOW server_version`).Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}
