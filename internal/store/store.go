// Package store holds the satmon catalog data model (satellites, units,
// parameters, parameter types) and its DuckDB persistence.
//
// The in-memory catalog in internal/manager is authoritative at runtime.
// Store persists every catalog mutation (write-through) and rebuilds the
// catalog at startup through LoadCatalog.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the DuckDB database path. Empty means an in-memory database.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides catalog persistence. Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// New opens the database and applies the schema.
func New(cfg Config) (*Store, error) {
	def := DefaultConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:     db,
		config: cfg,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// =============================================================================
// Schema
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS satellites (
		id           VARCHAR PRIMARY KEY,
		name         VARCHAR NOT NULL UNIQUE,
		launch_date  TIMESTAMP,
		status       VARCHAR NOT NULL,
		metadata     VARCHAR,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL,
		activated_at TIMESTAMP,
		disabled_at  TIMESTAMP,
		version      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS units (
		id           VARCHAR PRIMARY KEY,
		satellite_id VARCHAR NOT NULL,
		name         VARCHAR NOT NULL,
		description  VARCHAR,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL,
		version      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS parameters (
		id           VARCHAR PRIMARY KEY,
		unit_id      VARCHAR NOT NULL,
		satellite_id VARCHAR NOT NULL,
		name         VARCHAR NOT NULL,
		type         VARCHAR NOT NULL,
		uom          VARCHAR NOT NULL,
		min_value    DOUBLE NOT NULL,
		max_value    DOUBLE NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL,
		version      INTEGER NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Transaction Support
// =============================================================================

// Transaction executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.QueryTimeout)
	defer cancel()
	return s.TransactionContext(ctx, fn)
}

// TransactionContext executes a function within a database transaction with context.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
