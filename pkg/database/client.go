// Package database opens the worldline runtime's single SQLite file and
// creates its schema if missing, mirroring the connection-pool-and-migrate
// shape this codebase's Postgres client already uses, adapted to a
// cgo-free embedded database instead of a networked one.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed schema.sql
var schemaFS embed.FS

// Config holds SQLite connection settings.
type Config struct {
	// Path is the SQLite file path, or ":memory:" / "file::memory:?cache=shared" for tests.
	Path string

	MaxOpenConns int
	MaxIdleConns int
}

// Client wraps the underlying *sql.DB.
type Client struct {
	db *sql.DB
}

// DB returns the underlying connection pool for repository layers and
// health checks.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens the SQLite file at cfg.Path, enables WAL + foreign keys,
// applies the embedded schema, and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = "worldline.db"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1 // SQLite writers serialize; one connection avoids SQLITE_BUSY storms.
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: set journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: enable foreign_keys: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: apply schema: %w", err)
	}

	return &Client{db: db}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// Health runs a trivial round-trip query used by the HTTP health endpoint.
func Health(ctx context.Context, db *sql.DB) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return "unreachable", err
	}
	return "ok", nil
}
