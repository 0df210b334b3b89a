// Package postgres implements order and restaurant storage on PostgreSQL.
package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/db"
)

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	URL            string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// NewPool creates a pgxpool.Pool with shopspring/decimal support for NUMERIC
// columns and checks that the database answers before returning.
func NewPool(ctx context.Context, cfg PoolConfig, lg *zap.Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	lg.Info("Connected to PostgreSQL",
		zap.String("host", pcfg.ConnConfig.Host),
		zap.String("database", pcfg.ConnConfig.Database),
		zap.Int32("max_conns", pcfg.MaxConns),
	)
	return pool, nil
}

// RunMigrations applies the embedded schema. Statements are idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}
