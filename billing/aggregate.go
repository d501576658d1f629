package billing

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// PERIOD AGGREGATOR
// =============================================================================

// ApartmentIncome is the total paid by one apartment across all periods.
type ApartmentIncome struct {
	ApartmentCode string `json:"apartment_code"`
	Floor         int    `json:"floor"`
	OwnerName     string `json:"owner_name"`
	TotalIncome   Money  `json:"total_income"`
	PaymentCount  int    `json:"payment_count"`
}

// PeriodTotals is one aggregation bucket keyed by period.
type PeriodTotals struct {
	Period       Period `json:"period"`
	TotalIncome  Money  `json:"total_income"`
	TotalCharges Money  `json:"total_charges"`
	TotalDebt    Money  `json:"total_debt"`
	ChargeCount  int    `json:"charge_count"`
	PaymentCount int    `json:"payment_count"`
}

// AggregateIncomeByApartment sums payments per apartment, sorted by amount
// descending with ties broken by apartment code ascending.
func AggregateIncomeByApartment(payments []PaymentRecord, reg Registry) []ApartmentIncome {
	byApt := make(map[string]*ApartmentIncome)
	for _, p := range payments {
		row, ok := byApt[p.ApartmentCode]
		if !ok {
			row = &ApartmentIncome{
				ApartmentCode: p.ApartmentCode,
				Floor:         reg.Floor(p.ApartmentCode),
				OwnerName:     reg.Owner(p.ApartmentCode),
			}
			byApt[p.ApartmentCode] = row
		}
		row.TotalIncome = row.TotalIncome.Add(p.Amount)
		row.PaymentCount++
	}

	out := make([]ApartmentIncome, 0, len(byApt))
	for _, row := range byApt {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalIncome.Cmp(out[j].TotalIncome); c != 0 {
			return c > 0
		}
		return out[i].ApartmentCode < out[j].ApartmentCode
	})
	return out
}

// AggregateByPeriod buckets records by period within r. Periods with no
// records are omitted; callers needing a dense series fill gaps themselves.
// Records must carry canonical periods.
func AggregateByPeriod(charges []ChargeRecord, payments []PaymentRecord, r PeriodRange) []PeriodTotals {
	buckets := make(map[Period]*PeriodTotals)
	bucket := func(p Period) *PeriodTotals {
		b, ok := buckets[p]
		if !ok {
			b = &PeriodTotals{Period: p}
			buckets[p] = b
		}
		return b
	}

	for _, c := range charges {
		p := Period(c.Period)
		if !r.Contains(p) {
			continue
		}
		b := bucket(p)
		b.TotalCharges = b.TotalCharges.Add(c.Billed())
		b.TotalDebt = b.TotalDebt.Add(c.PreDebt)
		b.ChargeCount++
	}
	for _, pay := range payments {
		p := Period(pay.Period)
		if !r.Contains(p) {
			continue
		}
		b := bucket(p)
		b.TotalIncome = b.TotalIncome.Add(pay.Amount)
		b.PaymentCount++
	}

	out := make([]PeriodTotals, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// totalsFor returns the bucket for a single period, zero-valued if absent.
func totalsFor(charges []ChargeRecord, payments []PaymentRecord, p Period) PeriodTotals {
	rows := AggregateByPeriod(charges, payments, SinglePeriod(p))
	if len(rows) == 0 {
		return PeriodTotals{Period: p}
	}
	return rows[0]
}

// =============================================================================
// ENGINE OPERATIONS
// =============================================================================

// IncomeByApartment sums every payment on record per apartment.
func (e *Engine) IncomeByApartment(ctx context.Context) (_ []ApartmentIncome, err error) {
	defer e.observe("income_by_apartment", time.Now(), &err)

	payments, err := e.loadPayments(ctx, PaymentFilter{})
	if err != nil {
		return nil, err
	}
	reg, err := e.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return AggregateIncomeByApartment(payments, reg), nil
}

// AggregateByPeriod returns per-period income, charges and carried debt for
// the inclusive range [start, end]. Empty bounds are open.
func (e *Engine) AggregateByPeriod(ctx context.Context, start, end string) (_ []PeriodTotals, err error) {
	defer e.observe("aggregate_by_period", time.Now(), &err)

	r, err := NewPeriodRange(start, end)
	if err != nil {
		return nil, err
	}
	charges, err := e.loadCharges(ctx, ChargeFilter{Periods: r})
	if err != nil {
		return nil, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{Periods: r})
	if err != nil {
		return nil, err
	}
	return AggregateByPeriod(charges, payments, r), nil
}
