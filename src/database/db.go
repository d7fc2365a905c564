package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/envie/envie-server/src/logging"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Database holds the PostgreSQL connection pool
type Database struct {
	pool *pgxpool.Pool
}

// New creates a new database connection
func New(ctx context.Context, databaseURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Configure connection pool
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := &Database{pool: pool}

	if err := db.initializeSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// GetPool returns the connection pool
func (db *Database) GetPool() *pgxpool.Pool {
	return db.pool
}

// initializeSchema executes the embedded schema.sql
func (db *Database) initializeSchema(ctx context.Context) error {
	logger := logging.NewLogger("database")

	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := db.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Msg("database schema initialized")
	return nil
}

// runMigrations fixes up rows written by older clients
func (db *Database) runMigrations(ctx context.Context) error {
	logger := logging.NewLogger("database")

	// Migration 1: roles were once stored capitalized ("Owner")
	for _, table := range []string{"organization_users", "team_users"} {
		result, err := db.pool.Exec(ctx, fmt.Sprintf(
			"UPDATE %s SET role = lower(role) WHERE role <> lower(role)", table))
		if err != nil {
			return fmt.Errorf("failed to normalize roles in %s: %w", table, err)
		}
		if result.RowsAffected() > 0 {
			logger.Info().
				Str("table", table).
				Int64("rows", result.RowsAffected()).
				Msg("migration: normalized role case")
		}
	}

	return nil
}

// Health checks if the database is healthy
func (db *Database) Health(ctx context.Context) error {
	if db == nil || db.pool == nil {
		return fmt.Errorf("database connection not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.pool.Ping(ctx)
}
