// Package postgres provides Postgres-backed implementations of the monitor
// stores, built on pgxpool and squirrel.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate.
func Schema() string { return schemaSQL }

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// pool is the subset of *pgxpool.Pool the stores use; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB owns the pool and hands out the three stores.
type DB struct {
	pool pool
}

// Open parses cfg and connects a pgxpool.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{pool: p}, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(p pool) (*DB, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &DB{pool: p}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db == nil || db.pool == nil {
		return
	}
	db.pool.Close()
}

// Ping checks connectivity; used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema in one transaction. Every statement is
// idempotent so Migrate can run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(fmt.Errorf("apply schema: %w", err), fmt.Errorf("rollback: %w", rbErr))
		}
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Targets returns the target store.
func (db *DB) Targets() *TargetStore { return &TargetStore{pool: db.pool} }

// Snapshots returns the snapshot store.
func (db *DB) Snapshots() *SnapshotStore { return &SnapshotStore{pool: db.pool} }

// Events returns the change event store.
func (db *DB) Events() *ChangeEventStore { return &ChangeEventStore{pool: db.pool} }

// buildErr wraps a squirrel ToSql failure.
func buildErr(what string, err error) error {
	return fmt.Errorf("build %s query: %w", what, err)
}
