package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FLOOR / FEE-TYPE ROLLUP
// =============================================================================
//
// Both groupings are produced by ONE scan over the charge records so that
//   sum(by-floor totals) == sum(by-fee-type totals) == total charges
// holds by construction.

// FloorRevenue is one floor's billed sub-amounts and collection.
type FloorRevenue struct {
	Floor int `json:"floor"`
	FeeAmounts
	TotalBilled    Money  `json:"total_billed"`
	TotalPreDebt   Money  `json:"total_pre_debt"`
	TotalPaid      Money  `json:"total_paid"`
	Unpaid         Money  `json:"unpaid"`
	CollectionRate string `json:"collection_rate"`
	ApartmentCount int    `json:"apartment_count"`
}

// FeeTypeShare is one fee type's share of the grand total.
type FeeTypeShare struct {
	FeeType    FeeType `json:"fee_type"`
	Amount     Money   `json:"amount"`
	Percentage string  `json:"percentage"`
}

// FeeBreakdown splits billed revenue by fee type. Percentages are rounded
// independently and need not sum to exactly 100.
type FeeBreakdown struct {
	Period       Period         `json:"period,omitempty"`
	Items        []FeeTypeShare `json:"items"`
	TotalRevenue Money          `json:"total_revenue"`
}

// AreaBand groups apartments by floor area.
type AreaBand struct {
	Band           string `json:"band"`
	ApartmentCount int    `json:"apartment_count"`
	TotalBilled    Money  `json:"total_billed"`
	TotalPaid      Money  `json:"total_paid"`
	CollectionRate string `json:"collection_rate"`
}

type chargeScan struct {
	byFloor   map[int]*FloorRevenue
	floorApts map[int]map[string]struct{}
	byType    FeeAmounts
	total     Money
}

func scanCharges(charges []ChargeRecord, payments []PaymentRecord, reg Registry) chargeScan {
	s := chargeScan{
		byFloor:   make(map[int]*FloorRevenue),
		floorApts: make(map[int]map[string]struct{}),
	}
	floorRow := func(floor int) *FloorRevenue {
		row, ok := s.byFloor[floor]
		if !ok {
			row = &FloorRevenue{Floor: floor}
			s.byFloor[floor] = row
			s.floorApts[floor] = make(map[string]struct{})
		}
		return row
	}

	for _, c := range charges {
		floor := reg.Floor(c.ApartmentCode)
		row := floorRow(floor)
		row.FeeAmounts = row.FeeAmounts.Add(c.FeeAmounts)
		row.TotalBilled = row.TotalBilled.Add(c.Billed())
		row.TotalPreDebt = row.TotalPreDebt.Add(c.PreDebt)
		s.floorApts[floor][c.ApartmentCode] = struct{}{}

		s.byType = s.byType.Add(c.FeeAmounts)
		s.total = s.total.Add(c.Billed())
	}
	for _, p := range payments {
		row := floorRow(reg.Floor(p.ApartmentCode))
		row.TotalPaid = row.TotalPaid.Add(p.Amount)
	}
	for floor, row := range s.byFloor {
		row.ApartmentCount = len(s.floorApts[floor])
		row.Unpaid = decimal.Max(row.TotalBilled.Sub(row.TotalPaid), decimal.Zero)
		row.CollectionRate = FormatPercent(row.TotalPaid, row.TotalBilled)
	}
	return s
}

func (s chargeScan) floors() []FloorRevenue {
	out := make([]FloorRevenue, 0, len(s.byFloor))
	for _, row := range s.byFloor {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Floor < out[j].Floor })
	return out
}

func (s chargeScan) feeBreakdown(p Period) FeeBreakdown {
	fb := FeeBreakdown{Period: p, Items: make([]FeeTypeShare, 0, len(FeeTypes)), TotalRevenue: s.total}
	for _, t := range FeeTypes {
		amount := s.byType.Get(t)
		fb.Items = append(fb.Items, FeeTypeShare{
			FeeType:    t,
			Amount:     amount,
			Percentage: FormatPercent(amount, s.total),
		})
	}
	return fb
}

// RollupByFloor groups charges by registry floor. Payments of apartments on
// a floor count towards its collection rate; a floor with payments but no
// charges appears with zero billed.
func RollupByFloor(charges []ChargeRecord, payments []PaymentRecord, reg Registry) []FloorRevenue {
	return scanCharges(charges, payments, reg).floors()
}

// RollupByFeeType sums each fee sub-amount across all apartments.
func RollupByFeeType(charges []ChargeRecord, p Period) FeeBreakdown {
	return scanCharges(charges, nil, nil).feeBreakdown(p)
}

// areaBands are the floor-area bands in square metres.
var areaBands = []struct {
	label string
	upTo  decimal.Decimal // exclusive; zero = unbounded
}{
	{"<50", decimal.NewFromInt(50)},
	{"50-80", decimal.NewFromInt(80)},
	{"80-120", decimal.NewFromInt(120)},
	{">=120", decimal.Zero},
}

const areaUnknown = "unknown"

var areaBandOrder = []string{"<50", "50-80", "80-120", ">=120", areaUnknown}

func areaBandOf(a Apartment, ok bool) string {
	if !ok || !a.Area.IsPositive() {
		return areaUnknown
	}
	for _, b := range areaBands {
		if b.upTo.IsZero() || a.Area.LessThan(b.upTo) {
			return b.label
		}
	}
	return areaUnknown
}

// RollupByArea groups billed and paid amounts into floor-area bands.
func RollupByArea(charges []ChargeRecord, payments []PaymentRecord, reg Registry) []AreaBand {
	rows := make(map[string]*AreaBand)
	apts := make(map[string]map[string]struct{})
	row := func(code string) *AreaBand {
		a, ok := reg[code]
		band := areaBandOf(a, ok)
		r, exists := rows[band]
		if !exists {
			r = &AreaBand{Band: band}
			rows[band] = r
			apts[band] = make(map[string]struct{})
		}
		return r
	}
	for _, c := range charges {
		r := row(c.ApartmentCode)
		r.TotalBilled = r.TotalBilled.Add(c.Billed())
		apts[r.Band][c.ApartmentCode] = struct{}{}
	}
	for _, p := range payments {
		r := row(p.ApartmentCode)
		r.TotalPaid = r.TotalPaid.Add(p.Amount)
	}

	out := make([]AreaBand, 0, len(rows))
	for _, label := range areaBandOrder {
		r, ok := rows[label]
		if !ok {
			continue
		}
		r.ApartmentCount = len(apts[label])
		r.CollectionRate = FormatPercent(r.TotalPaid, r.TotalBilled)
		out = append(out, *r)
	}
	return out
}

// =============================================================================
// ENGINE OPERATIONS
// =============================================================================

// optionalPeriod normalizes period, or returns an open range when empty.
func optionalPeriod(period string) (Period, PeriodRange, error) {
	if period == "" {
		return "", PeriodRange{}, nil
	}
	p, err := NormalizePeriod(period)
	if err != nil {
		return "", PeriodRange{}, err
	}
	return p, SinglePeriod(p), nil
}

// RevenueByFloor is the floor rollup for one period, or all periods when
// period is empty.
func (e *Engine) RevenueByFloor(ctx context.Context, period string) (_ []FloorRevenue, err error) {
	defer e.observe("revenue_by_floor", time.Now(), &err)

	_, r, err := optionalPeriod(period)
	if err != nil {
		return nil, err
	}
	charges, payments, reg, err := e.loadPeriodData(ctx, r)
	if err != nil {
		return nil, err
	}
	return RollupByFloor(charges, payments, reg), nil
}

// FinancialsByFloor is RevenueByFloor under the name the presentation layer
// uses for its income/financials-by-floor screen.
func (e *Engine) FinancialsByFloor(ctx context.Context, period string) ([]FloorRevenue, error) {
	return e.RevenueByFloor(ctx, period)
}

// FeeBreakdown is the fee-type rollup for one period, or all periods when
// period is empty. A period with no charges yields all zeros.
func (e *Engine) FeeBreakdown(ctx context.Context, period string) (_ FeeBreakdown, err error) {
	defer e.observe("fee_breakdown", time.Now(), &err)

	p, r, err := optionalPeriod(period)
	if err != nil {
		return FeeBreakdown{}, err
	}
	charges, err := e.loadCharges(ctx, ChargeFilter{Periods: r})
	if err != nil {
		return FeeBreakdown{}, err
	}
	return RollupByFeeType(charges, p), nil
}

// RevenueByFeeType is FeeBreakdown, exposed under its revenue-report name.
func (e *Engine) RevenueByFeeType(ctx context.Context, period string) (FeeBreakdown, error) {
	return e.FeeBreakdown(ctx, period)
}

// RevenueByArea groups revenue into floor-area bands.
func (e *Engine) RevenueByArea(ctx context.Context, period string) (_ []AreaBand, err error) {
	defer e.observe("revenue_by_area", time.Now(), &err)

	_, r, err := optionalPeriod(period)
	if err != nil {
		return nil, err
	}
	charges, payments, reg, err := e.loadPeriodData(ctx, r)
	if err != nil {
		return nil, err
	}
	return RollupByArea(charges, payments, reg), nil
}
