package billing

import (
	"context"
	"io"
	"log"
	"sort"
	"time"
)

// =============================================================================
// ENGINE - Request-scoped reads + pure computation
// =============================================================================

// Observer receives one callback per engine operation. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	ObserveOperation(op string, elapsed time.Duration, err error)
}

// Engine answers every reporting query by bulk-reading the record stores
// and computing in memory. It holds no state between calls, so it is safe
// for concurrent use.
type Engine struct {
	apartments ApartmentRepository
	charges    ChargeRecordRepository
	payments   PaymentRecordRepository

	logger   *log.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Engine)

// WithLogger sets the logger used for skipped-record warnings.
func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithObserver attaches an operation observer.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithClock overrides time.Now for write-side defaults.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(apartments ApartmentRepository, charges ChargeRecordRepository, payments PaymentRecordRepository, opts ...Option) *Engine {
	e := &Engine{
		apartments: apartments,
		charges:    charges,
		payments:   payments,
		logger:     log.New(io.Discard, "", 0),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEngineFromStore wires all three repositories from one adapter.
func NewEngineFromStore(store Repositories, opts ...Option) *Engine {
	return NewEngine(store, store, store, opts...)
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	if e.observer == nil {
		return
	}
	e.observer.ObserveOperation(op, time.Since(start), *err)
}

// =============================================================================
// LOADERS - fetch, normalize, skip what cannot be interpreted
// =============================================================================

// loadCharges reads charges and rewrites every Period to canonical form.
// Records whose period cannot be parsed are skipped and logged; the range
// filter is re-applied after normalization.
func (e *Engine) loadCharges(ctx context.Context, f ChargeFilter) ([]ChargeRecord, error) {
	raw, err := e.charges.QueryCharges(ctx, ChargeFilter{ApartmentCode: f.ApartmentCode})
	if err != nil {
		return nil, WrapDataAccess("query charges", err)
	}
	out := make([]ChargeRecord, 0, len(raw))
	for _, c := range raw {
		p, err := NormalizePeriod(c.Period)
		if err != nil {
			e.logger.Printf("billing: skipping charge %s for %s: %v", c.ID, c.ApartmentCode, err)
			continue
		}
		if !f.Periods.Contains(p) {
			continue
		}
		c.Period = string(p)
		out = append(out, c)
	}
	sortCharges(out)
	return out, nil
}

func (e *Engine) loadPayments(ctx context.Context, f PaymentFilter) ([]PaymentRecord, error) {
	raw, err := e.payments.QueryPayments(ctx, PaymentFilter{ApartmentCode: f.ApartmentCode})
	if err != nil {
		return nil, WrapDataAccess("query payments", err)
	}
	out := make([]PaymentRecord, 0, len(raw))
	for _, p := range raw {
		period, err := NormalizePeriod(p.Period)
		if err != nil {
			e.logger.Printf("billing: skipping payment %s for %s: %v", p.ID, p.ApartmentCode, err)
			continue
		}
		if !f.Periods.Contains(period) {
			continue
		}
		p.Period = string(period)
		out = append(out, p)
	}
	sortPayments(out)
	return out, nil
}

func (e *Engine) loadRegistry(ctx context.Context) (Registry, error) {
	apts, err := e.apartments.ListApartments(ctx)
	if err != nil {
		return nil, WrapDataAccess("list apartments", err)
	}
	return NewRegistry(apts), nil
}

// loadPeriodData is the common read for period-scoped reports.
func (e *Engine) loadPeriodData(ctx context.Context, r PeriodRange) ([]ChargeRecord, []PaymentRecord, Registry, error) {
	charges, err := e.loadCharges(ctx, ChargeFilter{Periods: r})
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{Periods: r})
	if err != nil {
		return nil, nil, nil, err
	}
	reg, err := e.loadRegistry(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return charges, payments, reg, nil
}

// Stable input order keeps every output byte-identical across calls.
func sortCharges(cs []ChargeRecord) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Period != cs[j].Period {
			return cs[i].Period < cs[j].Period
		}
		if cs[i].ApartmentCode != cs[j].ApartmentCode {
			return cs[i].ApartmentCode < cs[j].ApartmentCode
		}
		return cs[i].ID < cs[j].ID
	})
}

func sortPayments(ps []PaymentRecord) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Period != ps[j].Period {
			return ps[i].Period < ps[j].Period
		}
		if ps[i].ApartmentCode != ps[j].ApartmentCode {
			return ps[i].ApartmentCode < ps[j].ApartmentCode
		}
		if !ps[i].PaidAt.Equal(ps[j].PaidAt) {
			return ps[i].PaidAt.Before(ps[j].PaidAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// =============================================================================
// REGISTRY VIEW
// =============================================================================

// Registry is an apartment-code index over the registry listing.
type Registry map[string]Apartment

func NewRegistry(apts []Apartment) Registry {
	r := make(Registry, len(apts))
	for _, a := range apts {
		r[a.Code] = a
	}
	return r
}

// Floor resolves the floor of an apartment. The registry is the single
// source of truth; the code-derived floor is used only when the registry
// has no floor (or no entry) for it.
func (r Registry) Floor(code string) int {
	if a, ok := r[code]; ok {
		return a.ResolvedFloor()
	}
	return FloorFromCode(code)
}

func (r Registry) Owner(code string) string {
	return r[code].OwnerName
}
