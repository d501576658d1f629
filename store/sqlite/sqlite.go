/*
Package sqlite provides the SQLite-backed record store.

PURPOSE:
  Default persistence for a single building office. The SQL itself lives
  in store/sqlstore; this package supplies the SQLite schema and driver
  error classification.

KEY TABLES:
  apartments:      Registry, primary key code
  charge_records:  UNIQUE(apartment_code, period), upserted on re-issue
  payment_records: Append-only, idempotency_key UNIQUE when present

AMOUNTS:
  Stored as TEXT decimal strings so no value ever passes through a float.

CONCURRENCY:
  The pool is limited to one connection. SQLite serializes writers anyway,
  and ":memory:" databases are private to the connection that created
  them, so a second pooled connection would see an empty database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) so readers do
  not block behind the writer.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := billing.NewEngineFromStore(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/building-ledger/store/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS apartments (
		code TEXT PRIMARY KEY,
		floor INTEGER NOT NULL DEFAULT 0,
		area TEXT NOT NULL DEFAULT '0',
		owner_name TEXT NOT NULL DEFAULT '',
		owner_email TEXT NOT NULL DEFAULT ''
	)`,

	// Period is stored as written; legacy rows may hold full dates.
	`CREATE TABLE IF NOT EXISTS charge_records (
		id TEXT PRIMARY KEY,
		apartment_code TEXT NOT NULL,
		period TEXT NOT NULL,
		electric TEXT NOT NULL DEFAULT '0',
		water TEXT NOT NULL DEFAULT '0',
		service TEXT NOT NULL DEFAULT '0',
		vehicles TEXT NOT NULL DEFAULT '0',
		pre_debt TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(apartment_code, period)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_records_period
		ON charge_records(period)`,

	`CREATE TABLE IF NOT EXISTS payment_records (
		id TEXT PRIMARY KEY,
		apartment_code TEXT NOT NULL,
		period TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TIMESTAMP NOT NULL,
		method TEXT NOT NULL DEFAULT 'cash',
		idempotency_key TEXT UNIQUE,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_records_apartment
		ON payment_records(apartment_code, period)`,
}

// Dialect is the SQLite flavour of the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:                      "sqlite",
	Schema:                    schema,
	IsDuplicateIdempotencyKey: isDuplicateIdempotencyKey,
}

// New opens (creating if needed) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*sqlstore.Store, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := sqlstore.New(context.Background(), db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// isDuplicateIdempotencyKey matches "UNIQUE constraint failed:
// payment_records.idempotency_key" and nothing else.
func isDuplicateIdempotencyKey(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(sqliteErr.Error(), "payment_records.idempotency_key")
}
