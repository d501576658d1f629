package billing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UNPAID-APARTMENT FILTER
// =============================================================================
//
// A per-period snapshot: unpaid = total_bill - paid for that exact
// (apartment, period). It deliberately ignores the cross-period running
// balance computed by ReconcileDebt.

// Sort keys accepted by UnpaidFilter.SortBy.
const (
	SortByUnpaid    = "unpaid_amount"
	SortByTotalBill = "total_bill"
	SortByPaid      = "paid_amount"
	SortByPreDebt   = "pre_debt"
	SortByApartment = "apartment_code"
	SortByFloor     = "floor"
	SortByPeriod    = "period"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// UnpaidFilter holds the predicates and pagination window. Zero values
// disable a predicate; Limit <= 0 returns every row after Offset.
type UnpaidFilter struct {
	Period  string
	Floor   *int
	MinDebt *Money
	MaxDebt *Money
	SortBy  string
	SortDir string
	Offset  int
	Limit   int
}

type UnpaidApartment struct {
	ApartmentCode string        `json:"apartment_code"`
	Floor         int           `json:"floor"`
	OwnerName     string        `json:"owner_name"`
	Period        Period        `json:"period"`
	TotalBill     Money         `json:"total_bill"`
	PreDebt       Money         `json:"pre_debt"`
	PaidAmount    Money         `json:"paid_amount"`
	UnpaidAmount  Money         `json:"unpaid_amount"`
	Status        PaymentStatus `json:"status"`
	StatusLabel   string        `json:"status_label"`
}

// UnpaidSummary reflects the filter predicates but NOT the pagination
// window: sum(page) need not equal TotalUnpaidAmount.
type UnpaidSummary struct {
	TotalUnpaidApartments int   `json:"total_unpaid_apartments"`
	TotalUnpaidAmount     Money `json:"total_unpaid_amount"`
	TotalPreDebt          Money `json:"total_pre_debt"`
}

type UnpaidResult struct {
	Items   []UnpaidApartment `json:"items"`
	Summary UnpaidSummary     `json:"summary"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
}

// normalize validates the filter and resolves its defaults.
func (f UnpaidFilter) normalize() (UnpaidFilter, PeriodRange, error) {
	var r PeriodRange
	if f.Period != "" {
		p, err := NormalizePeriod(f.Period)
		if err != nil {
			return f, r, err
		}
		f.Period = string(p)
		r = SinglePeriod(p)
	}
	if f.SortBy == "" {
		f.SortBy = SortByUnpaid
	}
	if _, ok := unpaidCompare[f.SortBy]; !ok {
		return f, r, &ValidationError{Field: "sort_by", Value: f.SortBy, Message: "unknown sort key"}
	}
	f.SortDir = strings.ToLower(f.SortDir)
	switch f.SortDir {
	case "":
		f.SortDir = SortDesc
	case SortAsc, SortDesc:
	default:
		return f, r, &ValidationError{Field: "sort_dir", Value: f.SortDir, Message: "expected asc or desc"}
	}
	if f.Offset < 0 {
		return f, r, &ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if f.MinDebt != nil && f.MaxDebt != nil && f.MaxDebt.LessThan(*f.MinDebt) {
		return f, r, &ValidationError{Field: "max_debt", Message: "below min_debt"}
	}
	return f, r, nil
}

// unpaidCompare orders rows by sort key; 0 means equal under that key.
var unpaidCompare = map[string]func(a, b UnpaidApartment) int{
	SortByUnpaid:    func(a, b UnpaidApartment) int { return a.UnpaidAmount.Cmp(b.UnpaidAmount) },
	SortByTotalBill: func(a, b UnpaidApartment) int { return a.TotalBill.Cmp(b.TotalBill) },
	SortByPaid:      func(a, b UnpaidApartment) int { return a.PaidAmount.Cmp(b.PaidAmount) },
	SortByPreDebt:   func(a, b UnpaidApartment) int { return a.PreDebt.Cmp(b.PreDebt) },
	SortByApartment: func(a, b UnpaidApartment) int { return strings.Compare(a.ApartmentCode, b.ApartmentCode) },
	SortByFloor:     func(a, b UnpaidApartment) int { return a.Floor - b.Floor },
	SortByPeriod:    func(a, b UnpaidApartment) int { return strings.Compare(string(a.Period), string(b.Period)) },
}

// FilterUnpaid computes per-(apartment, period) unpaid amounts, applies the
// predicates in memory, sorts and paginates. Ties under the requested key
// fall back to apartment code then period, both ascending, so pages never
// overlap. Records must carry canonical periods.
func FilterUnpaid(charges []ChargeRecord, payments []PaymentRecord, reg Registry, f UnpaidFilter) (UnpaidResult, error) {
	f, r, err := f.normalize()
	if err != nil {
		return UnpaidResult{}, err
	}

	type key struct {
		code   string
		period Period
	}
	paid := make(map[key]Money)
	for _, p := range payments {
		k := key{p.ApartmentCode, Period(p.Period)}
		paid[k] = paid[k].Add(p.Amount)
	}

	rows := []UnpaidApartment{}
	for _, c := range charges {
		p := Period(c.Period)
		if !r.Contains(p) {
			continue
		}
		floor := reg.Floor(c.ApartmentCode)
		if f.Floor != nil && floor != *f.Floor {
			continue
		}
		totalBill := c.Total
		if totalBill.IsZero() {
			totalBill = c.AmountDue()
		}
		paidAmount := paid[key{c.ApartmentCode, p}]
		unpaid := totalBill.Sub(paidAmount)
		if !unpaid.IsPositive() {
			continue
		}
		if f.MinDebt != nil && unpaid.LessThan(*f.MinDebt) {
			continue
		}
		if f.MaxDebt != nil && unpaid.GreaterThan(*f.MaxDebt) {
			continue
		}
		status := ClassifyPayment(totalBill, paidAmount)
		rows = append(rows, UnpaidApartment{
			ApartmentCode: c.ApartmentCode,
			Floor:         floor,
			OwnerName:     reg.Owner(c.ApartmentCode),
			Period:        p,
			TotalBill:     totalBill,
			PreDebt:       c.PreDebt,
			PaidAmount:    paidAmount,
			UnpaidAmount:  unpaid,
			Status:        status,
			StatusLabel:   status.Label(),
		})
	}

	cmp := unpaidCompare[f.SortBy]
	desc := f.SortDir == SortDesc
	sort.SliceStable(rows, func(i, j int) bool {
		if c := cmp(rows[i], rows[j]); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		if rows[i].ApartmentCode != rows[j].ApartmentCode {
			return rows[i].ApartmentCode < rows[j].ApartmentCode
		}
		return rows[i].Period < rows[j].Period
	})

	res := UnpaidResult{
		Offset:  f.Offset,
		Limit:   f.Limit,
		Summary: UnpaidSummary{TotalUnpaidApartments: len(rows), TotalUnpaidAmount: decimal.Zero, TotalPreDebt: decimal.Zero},
	}
	for _, row := range rows {
		res.Summary.TotalUnpaidAmount = res.Summary.TotalUnpaidAmount.Add(row.UnpaidAmount)
		res.Summary.TotalPreDebt = res.Summary.TotalPreDebt.Add(row.PreDebt)
	}

	start := f.Offset
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	res.Items = rows[start:end]
	return res, nil
}

// UnpaidApartments lists (apartment, period) pairs with an outstanding
// per-period amount.
func (e *Engine) UnpaidApartments(ctx context.Context, f UnpaidFilter) (_ UnpaidResult, err error) {
	defer e.observe("unpaid_apartments", time.Now(), &err)

	_, r, err := f.normalize()
	if err != nil {
		return UnpaidResult{}, err
	}
	charges, payments, reg, err := e.loadPeriodData(ctx, r)
	if err != nil {
		return UnpaidResult{}, err
	}
	return FilterUnpaid(charges, payments, reg, f)
}
