package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the global database connection pool. Nil when no database is configured.
var Pool *pgxpool.Pool

// ErrNotConfigured is returned by Init when neither a URL nor DB_* variables are set
var ErrNotConfigured = fmt.Errorf("no database configuration")

// ResolveURL returns databaseURL, or one built from DB_HOST, DB_PORT, DB_USER,
// DB_PASSWORD and DB_NAME.
func ResolveURL(databaseURL string) string {
	if databaseURL != "" {
		return databaseURL
	}
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")

	if host == "" || user == "" || dbname == "" {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname)
}

// Init initializes the database connection pool. The audit log is optional, so
// callers treat ErrNotConfigured as "run without it".
func Init(ctx context.Context, databaseURL string) error {
	databaseURL = ResolveURL(databaseURL)
	if databaseURL == "" {
		return ErrNotConfigured
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Audit writes are small and infrequent
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	Pool = pool
	return nil
}

// Close closes the database connection pool
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
