/*
store.go - Repository interfaces consumed by the engine

PURPOSE:
  The engine never holds a shared store handle. It is constructed with three
  injected repositories so every component is a pure function of the
  records it is handed, and unit tests run without a live database.

KEY INTERFACES:
  ApartmentRepository:     registry reads (floor, area, owner)
  ChargeRecordRepository:  upsert + query, unique on (apartment, period)
  PaymentRecordRepository: append-only insert + query

IMPLEMENTATIONS:
  - billing/store/memory.go: In-memory for testing
  - store/sqlite:            SQLite (default)
  - store/postgres:          PostgreSQL

CONSISTENCY:
  The engine issues several independent bulk reads per request and does not
  wrap them in a snapshot. A report computed while a payment is being
  inserted may see the payment in one read and not in another. This is an
  accepted staleness window for a reporting subsystem.
*/
package billing

import "context"

// ChargeFilter narrows a charge query. Zero values match everything.
type ChargeFilter struct {
	ApartmentCode string
	Periods       PeriodRange
}

// PaymentFilter narrows a payment query. Zero values match everything.
type PaymentFilter struct {
	ApartmentCode string
	Periods       PeriodRange
}

// ApartmentRepository is the external registry. GetApartment returns
// (nil, nil) when the apartment does not exist.
type ApartmentRepository interface {
	GetApartment(ctx context.Context, code string) (*Apartment, error)
	ListApartments(ctx context.Context) ([]Apartment, error)
}

// ChargeRecordRepository persists bills keyed by (apartment, period).
type ChargeRecordRepository interface {
	// UpsertCharge inserts or replaces the fee fields of the existing record
	// for the same (apartment, period).
	UpsertCharge(ctx context.Context, c ChargeRecord) (ChargeRecord, error)
	QueryCharges(ctx context.Context, f ChargeFilter) ([]ChargeRecord, error)
}

// PaymentRecordRepository is append-only. No Update, no Delete.
type PaymentRecordRepository interface {
	// InsertPayment fails with ErrDuplicatePayment when a non-empty
	// idempotency key already exists.
	InsertPayment(ctx context.Context, p PaymentRecord) error
	QueryPayments(ctx context.Context, f PaymentFilter) ([]PaymentRecord, error)
}

// Repositories bundles the three interfaces; every store adapter in this
// module satisfies it.
type Repositories interface {
	ApartmentRepository
	ChargeRecordRepository
	PaymentRecordRepository
}

// RecordStore is a Repositories implementation that also accepts registry
// writes and can be wiped. Used by seeding, demo scenarios and the api.
type RecordStore interface {
	Repositories
	SaveApartment(ctx context.Context, a Apartment) error
	Reset(ctx context.Context) error
}
