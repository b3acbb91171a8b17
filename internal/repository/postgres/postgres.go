// Package postgres implements the repository interfaces on PostgreSQL using
// jackc/pgx. It is selected with DB_DRIVER=postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/repository"
)

// compile-time check that *DB is a complete backend
var _ repository.Store = (*DB)(nil)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock.PgxPoolIface
// satisfies it too.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB is a PostgreSQL-backed user store.
type DB struct {
	Pool Pool
}

// New connects to databaseURL and runs migrations.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{Pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         VARCHAR(32) PRIMARY KEY,
		google_id  VARCHAR(255) UNIQUE,
		email      VARCHAR(255) UNIQUE,
		name       VARCHAR(255),
		picture    VARCHAR(500),
		locale     VARCHAR(50),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		last_login TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	// Spotify logins
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS spotify_id VARCHAR(255)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_spotify_id_key ON users(spotify_id)`,
}

// Migrate applies every migration in order. Each one is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("postgres: migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Close releases the pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Users returns a repository bound to the pool (no transaction).
func (db *DB) Users() *UserDB {
	return &UserDB{q: db.Pool}
}

// WithinTx implements repository.Transactor.
func (db *DB) WithinTx(ctx context.Context, fn func(users repository.UserRepository) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("postgres: rolling back: %w", rbErr))
			}
			return
		}
		if cErr := tx.Commit(ctx); cErr != nil {
			err = fmt.Errorf("postgres: committing transaction: %w", uniqueViolation(cErr))
		}
	}()

	return fn(&UserDB{q: tx})
}

// uniqueViolationCode is the SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

// uniqueViolation converts a unique_violation into apperror.Conflict naming
// the column. Constraint names follow the default "users_<column>_key".
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}
	field := strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, "users_"), "_key")
	if field == "" {
		field = "unknown"
	}
	return fmt.Errorf("%w: %w", apperror.Conflict("user", field), err)
}
