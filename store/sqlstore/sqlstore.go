/*
Package sqlstore is the database/sql core shared by the SQLite and
PostgreSQL record store adapters.

PURPOSE:
  Implements billing.RecordStore (registry, charge records, payment records)
  once, in portable SQL. A Dialect supplies what differs between engines:
  the schema, placeholder syntax and how a unique violation is reported.

KEY TABLES:
  apartments:      Registry (code, floor, area, owner)
  charge_records:  One bill per (apartment_code, period), upserted
  payment_records: Append-only payments, unique idempotency_key

PERIODS:
  Periods are stored exactly as written. Other tools write to the same
  tables, so legacy values ("2025-01-15", "2025-1") exist and cannot be
  compared in SQL. Period range filters are therefore applied in Go after
  the apartment filter narrows the scan.

ERRORS:
  Every driver error is wrapped in billing.DataAccessError. A duplicate
  payment idempotency key is reported as billing.ErrDuplicatePayment.

SEE ALSO:
  - store/sqlite:   SQLite dialect (default)
  - store/postgres: PostgreSQL dialect
  - billing/store.go: Interface definitions
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/warp/building-ledger/billing"
)

// Dialect captures the engine-specific parts of the adapter.
type Dialect struct {
	Name string

	// Schema is executed statement by statement on New.
	Schema []string

	// Numbered placeholders ($1, $2) instead of '?'.
	NumberedPlaceholders bool

	// IsDuplicateIdempotencyKey reports whether a driver error is a unique
	// violation on payment_records.idempotency_key. Other constraint
	// failures, including a primary key clash, are data access errors.
	IsDuplicateIdempotencyKey func(error) bool
}

// Store implements billing.RecordStore over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ billing.RecordStore = (*Store)(nil)

// New wraps an open database and migrates the schema.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate %s database: %w", d.Name, err)
	}
	return s, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return billing.WrapDataAccess("ping", s.db.PingContext(ctx))
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites '?' placeholders for dialects that number them.
func (s *Store) rebind(query string) string {
	if !s.dialect.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// APARTMENT REGISTRY
// =============================================================================

func (s *Store) SaveApartment(ctx context.Context, a billing.Apartment) error {
	query := s.rebind(`
		INSERT INTO apartments (code, floor, area, owner_name, owner_email)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			floor = excluded.floor,
			area = excluded.area,
			owner_name = excluded.owner_name,
			owner_email = excluded.owner_email
	`)
	_, err := s.db.ExecContext(ctx, query, a.Code, a.Floor, a.Area, a.OwnerName, a.OwnerEmail)
	return billing.WrapDataAccess("save apartment", err)
}

func (s *Store) GetApartment(ctx context.Context, code string) (*billing.Apartment, error) {
	query := s.rebind(`
		SELECT code, floor, area, owner_name, owner_email
		FROM apartments WHERE code = ?
	`)
	var a billing.Apartment
	err := s.db.QueryRowContext(ctx, query, code).Scan(&a.Code, &a.Floor, &a.Area, &a.OwnerName, &a.OwnerEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, billing.WrapDataAccess("get apartment", err)
	}
	return &a, nil
}

func (s *Store) ListApartments(ctx context.Context) ([]billing.Apartment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, floor, area, owner_name, owner_email
		FROM apartments ORDER BY code
	`)
	if err != nil {
		return nil, billing.WrapDataAccess("list apartments", err)
	}
	defer rows.Close()

	var out []billing.Apartment
	for rows.Next() {
		var a billing.Apartment
		if err := rows.Scan(&a.Code, &a.Floor, &a.Area, &a.OwnerName, &a.OwnerEmail); err != nil {
			return nil, billing.WrapDataAccess("scan apartment", err)
		}
		out = append(out, a)
	}
	return out, billing.WrapDataAccess("list apartments", rows.Err())
}

// =============================================================================
// CHARGE RECORDS
// =============================================================================

// UpsertCharge inserts the bill or replaces the fee fields of the existing
// (apartment, period) row. The stored ID and created_at survive.
func (s *Store) UpsertCharge(ctx context.Context, c billing.ChargeRecord) (billing.ChargeRecord, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	query := s.rebind(`
		INSERT INTO charge_records
		(id, apartment_code, period, electric, water, service, vehicles, pre_debt, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (apartment_code, period) DO UPDATE SET
			electric = excluded.electric,
			water = excluded.water,
			service = excluded.service,
			vehicles = excluded.vehicles,
			pre_debt = excluded.pre_debt,
			total = excluded.total,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`)
	err := s.db.QueryRowContext(ctx, query,
		c.ID,
		c.ApartmentCode,
		c.Period,
		c.Electric,
		c.Water,
		c.Service,
		c.Vehicles,
		c.PreDebt,
		c.Total,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return billing.ChargeRecord{}, billing.WrapDataAccess("upsert charge", err)
	}
	return c, nil
}

func (s *Store) QueryCharges(ctx context.Context, f billing.ChargeFilter) ([]billing.ChargeRecord, error) {
	query := `
		SELECT id, apartment_code, period, electric, water, service, vehicles, pre_debt, total, created_at, updated_at
		FROM charge_records
	`
	var args []any
	if f.ApartmentCode != "" {
		query += ` WHERE apartment_code = ?`
		args = append(args, f.ApartmentCode)
	}
	query += ` ORDER BY apartment_code, period`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, billing.WrapDataAccess("query charges", err)
	}
	defer rows.Close()

	var out []billing.ChargeRecord
	for rows.Next() {
		var c billing.ChargeRecord
		err := rows.Scan(&c.ID, &c.ApartmentCode, &c.Period,
			&c.Electric, &c.Water, &c.Service, &c.Vehicles, &c.PreDebt, &c.Total,
			&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, billing.WrapDataAccess("scan charge", err)
		}
		if f.Periods.MatchesRaw(c.Period) {
			out = append(out, c)
		}
	}
	return out, billing.WrapDataAccess("query charges", rows.Err())
}

// =============================================================================
// PAYMENT RECORDS - append-only
// =============================================================================

func (s *Store) InsertPayment(ctx context.Context, p billing.PaymentRecord) error {
	query := s.rebind(`
		INSERT INTO payment_records
		(id, apartment_code, period, amount, paid_at, method, idempotency_key, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.ApartmentCode,
		p.Period,
		p.Amount,
		p.PaidAt.UTC(),
		p.Method,
		nullString(p.IdempotencyKey),
		p.Note,
	)
	if err != nil {
		if p.IdempotencyKey != "" && s.dialect.IsDuplicateIdempotencyKey(err) {
			return billing.ErrDuplicatePayment
		}
		return billing.WrapDataAccess("insert payment", err)
	}
	return nil
}

func (s *Store) QueryPayments(ctx context.Context, f billing.PaymentFilter) ([]billing.PaymentRecord, error) {
	query := `
		SELECT id, apartment_code, period, amount, paid_at, method, idempotency_key, note
		FROM payment_records
	`
	var args []any
	if f.ApartmentCode != "" {
		query += ` WHERE apartment_code = ?`
		args = append(args, f.ApartmentCode)
	}
	query += ` ORDER BY paid_at, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, billing.WrapDataAccess("query payments", err)
	}
	defer rows.Close()

	var out []billing.PaymentRecord
	for rows.Next() {
		var p billing.PaymentRecord
		var key sql.NullString
		err := rows.Scan(&p.ID, &p.ApartmentCode, &p.Period, &p.Amount, &p.PaidAt, &p.Method, &key, &p.Note)
		if err != nil {
			return nil, billing.WrapDataAccess("scan payment", err)
		}
		p.IdempotencyKey = key.String
		if f.Periods.MatchesRaw(p.Period) {
			out = append(out, p)
		}
	}
	return out, billing.WrapDataAccess("query payments", rows.Err())
}

// =============================================================================
// DEMO SUPPORT
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"payment_records", "charge_records", "apartments"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return billing.WrapDataAccess("reset "+table, err)
		}
	}
	return nil
}

// Periods lists the distinct stored period strings, newest first. Used by
// the report command to default to the latest period.
func (s *Store) Periods(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT period FROM charge_records`)
	if err != nil {
		return nil, billing.WrapDataAccess("list periods", err)
	}
	defer rows.Close()

	seen := make(map[billing.Period]bool)
	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, billing.WrapDataAccess("scan period", err)
		}
		p, err := billing.NormalizePeriod(raw)
		if err != nil || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, string(p))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, billing.WrapDataAccess("list periods", rows.Err())
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
