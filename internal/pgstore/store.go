// Package pgstore is the PostgreSQL implementation of the booking store.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"resortbook/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	queries
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func Open(ctx context.Context, dsn string, maxConns int32, logger *zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	logger.Info().Msg("Postgres store initialized")

	return &Store{queries: queries{q: pool}, pool: pool, logger: logger}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// goose needs database/sql; closing this handle leaves the pool open.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// InTx runs fn in a SERIALIZABLE transaction holding an advisory lock on
// lockKey. Reads inside the transaction take row locks.
func (s *Store) InTx(ctx context.Context, lockKey string, fn func(tx domain.BookingStore) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("advisory lock %s: %w", lockKey, err)
	}

	if err := fn(queries{q: tx, forUpdate: true}); err != nil {
		return translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction for %s: %w", lockKey, translate(err))
	}
	s.logger.Debug().Str("lock_key", lockKey).Msg("transaction committed")
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// translate maps serialization failures onto the domain's retryable error.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", domain.ErrConcurrentModification, pgErr.Message)
	}
	return err
}
