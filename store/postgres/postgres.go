// Package postgres provides the PostgreSQL record store, opened through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/warp/building-ledger/store/sqlstore"
)

const (
	uniqueViolation = "23505"

	idempotencyKeyConstraint = "payment_records_idempotency_key_key"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS apartments (
		code TEXT PRIMARY KEY,
		floor INTEGER NOT NULL DEFAULT 0,
		area NUMERIC(12, 2) NOT NULL DEFAULT 0,
		owner_name TEXT NOT NULL DEFAULT '',
		owner_email TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS charge_records (
		id TEXT PRIMARY KEY,
		apartment_code TEXT NOT NULL,
		period TEXT NOT NULL,
		electric NUMERIC(18, 2) NOT NULL DEFAULT 0,
		water NUMERIC(18, 2) NOT NULL DEFAULT 0,
		service NUMERIC(18, 2) NOT NULL DEFAULT 0,
		vehicles NUMERIC(18, 2) NOT NULL DEFAULT 0,
		pre_debt NUMERIC(18, 2) NOT NULL DEFAULT 0,
		total NUMERIC(18, 2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (apartment_code, period)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_records_period ON charge_records (period)`,
	`CREATE TABLE IF NOT EXISTS payment_records (
		id TEXT PRIMARY KEY,
		apartment_code TEXT NOT NULL,
		period TEXT NOT NULL,
		amount NUMERIC(18, 2) NOT NULL,
		paid_at TIMESTAMPTZ NOT NULL,
		method TEXT NOT NULL DEFAULT 'cash',
		idempotency_key TEXT CONSTRAINT payment_records_idempotency_key_key UNIQUE,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_records_apartment ON payment_records (apartment_code, period)`,
}

// Dialect is the PostgreSQL flavour of the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:                      "postgres",
	Schema:                    schema,
	NumberedPlaceholders:      true,
	IsDuplicateIdempotencyKey: isDuplicateIdempotencyKey,
}

// New connects to dsn, verifies the connection and migrates the schema.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	store, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func isDuplicateIdempotencyKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == idempotencyKeyConstraint
}
