// Package store provides an in-memory record store for tests and demos.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/building-ledger/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements billing.Repositories. Records are kept exactly as
// written; period normalization is the engine's job.
type Memory struct {
	mu          sync.RWMutex
	apartments  map[string]billing.Apartment
	charges     map[chargeKey]billing.ChargeRecord
	payments    []billing.PaymentRecord
	idempotency map[string]bool

	// Err, when set, is returned by every read. Used to simulate an
	// unavailable store.
	Err error
}

type chargeKey struct {
	ApartmentCode string
	Period        string
}

var _ billing.RecordStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		apartments:  make(map[string]billing.Apartment),
		charges:     make(map[chargeKey]billing.ChargeRecord),
		idempotency: make(map[string]bool),
	}
}

// =============================================================================
// APARTMENT REGISTRY
// =============================================================================

func (m *Memory) SaveApartment(_ context.Context, a billing.Apartment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apartments[a.Code] = a
	return nil
}

func (m *Memory) GetApartment(_ context.Context, code string) (*billing.Apartment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.apartments[code]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListApartments(_ context.Context) ([]billing.Apartment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]billing.Apartment, 0, len(m.apartments))
	for _, a := range m.apartments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// =============================================================================
// CHARGE RECORDS
// =============================================================================

// UpsertCharge replaces the fee fields of an existing (apartment, period)
// record and keeps its ID and CreatedAt.
func (m *Memory) UpsertCharge(_ context.Context, c billing.ChargeRecord) (billing.ChargeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := chargeKey{ApartmentCode: c.ApartmentCode, Period: c.Period}
	if existing, ok := m.charges[k]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	m.charges[k] = c
	return c, nil
}

func (m *Memory) QueryCharges(_ context.Context, f billing.ChargeFilter) ([]billing.ChargeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []billing.ChargeRecord
	for _, c := range m.charges {
		if f.ApartmentCode != "" && c.ApartmentCode != f.ApartmentCode {
			continue
		}
		if !f.Periods.MatchesRaw(c.Period) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ApartmentCode != out[j].ApartmentCode {
			return out[i].ApartmentCode < out[j].ApartmentCode
		}
		return out[i].Period < out[j].Period
	})
	return out, nil
}

// =============================================================================
// PAYMENT RECORDS - append-only
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, p billing.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.payments {
		if existing.ID == p.ID {
			return fmt.Errorf("payment id %q already stored", p.ID)
		}
	}
	if p.IdempotencyKey != "" {
		if m.idempotency[p.IdempotencyKey] {
			return billing.ErrDuplicatePayment
		}
		m.idempotency[p.IdempotencyKey] = true
	}
	m.payments = append(m.payments, p)
	return nil
}

func (m *Memory) QueryPayments(_ context.Context, f billing.PaymentFilter) ([]billing.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []billing.PaymentRecord
	for _, p := range m.payments {
		if f.ApartmentCode != "" && p.ApartmentCode != f.ApartmentCode {
			continue
		}
		if !f.Periods.MatchesRaw(p.Period) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Reset clears every collection.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apartments = make(map[string]billing.Apartment)
	m.charges = make(map[chargeKey]billing.ChargeRecord)
	m.payments = nil
	m.idempotency = make(map[string]bool)
	return nil
}
