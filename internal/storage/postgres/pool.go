// Package postgres implements the order store on top of a bounded pgx
// connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool size used when PoolConfig leaves the bounds unset.
const (
	DefaultMinConns int32 = 5
	DefaultMaxConns int32 = 10
)

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	URL      string
	MinConns int32
	MaxConns int32
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	return c
}

// Validate reports whether the pool bounds are usable.
func (c PoolConfig) Validate() error {
	c = c.withDefaults()
	if c.URL == "" {
		return errors.New("database URL is required")
	}
	if c.MinConns < 0 || c.MaxConns < 1 {
		return errors.Errorf("invalid pool bounds: min %d, max %d", c.MinConns, c.MaxConns)
	}
	if c.MinConns > c.MaxConns {
		return errors.Errorf("pool min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// NewPool creates a pgxpool.Pool holding at least MinConns and at most
// MaxConns connections, with shopspring/decimal support for FLOAT and
// NUMERIC columns.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConns = cfg.MaxConns

	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}
