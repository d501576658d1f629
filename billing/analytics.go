package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD SUMMARY / COMPARISON / GROWTH
// =============================================================================

// PeriodSummary is the single-period financial picture.
type PeriodSummary struct {
	Period            Period `json:"period"`
	TotalIncome       Money  `json:"total_income"`
	TotalCharges      Money  `json:"total_charges"`
	TotalDebt         Money  `json:"total_debt"`
	ChargedApartments int    `json:"charged_apartments"`
	PayingApartments  int    `json:"paying_apartments"`
	CollectionRate    string `json:"collection_rate"`
}

func summarize(p Period, charges []ChargeRecord, payments []PaymentRecord) PeriodSummary {
	t := totalsFor(charges, payments, p)
	charged := make(map[string]struct{})
	for _, c := range charges {
		if Period(c.Period) == p {
			charged[c.ApartmentCode] = struct{}{}
		}
	}
	paying := make(map[string]struct{})
	for _, pay := range payments {
		if Period(pay.Period) == p {
			paying[pay.ApartmentCode] = struct{}{}
		}
	}
	return PeriodSummary{
		Period:            p,
		TotalIncome:       t.TotalIncome,
		TotalCharges:      t.TotalCharges,
		TotalDebt:         t.TotalDebt,
		ChargedApartments: len(charged),
		PayingApartments:  len(paying),
		CollectionRate:    FormatPercent(t.TotalIncome, t.TotalCharges),
	}
}

// PeriodComparison reports the change from one period to another.
// Percent changes are relative to the first period; "0%" when it is zero.
type PeriodComparison struct {
	From                 PeriodSummary `json:"from"`
	To                   PeriodSummary `json:"to"`
	IncomeChange         Money         `json:"income_change"`
	IncomeChangePercent  string        `json:"income_change_percent"`
	ChargesChange        Money         `json:"charges_change"`
	ChargesChangePercent string        `json:"charges_change_percent"`
	DebtChange           Money         `json:"debt_change"`
	DebtChangePercent    string        `json:"debt_change_percent"`
}

func ComparePeriods(from, to PeriodSummary) PeriodComparison {
	c := PeriodComparison{
		From:          from,
		To:            to,
		IncomeChange:  to.TotalIncome.Sub(from.TotalIncome),
		ChargesChange: to.TotalCharges.Sub(from.TotalCharges),
		DebtChange:    to.TotalDebt.Sub(from.TotalDebt),
	}
	c.IncomeChangePercent = FormatPercent(c.IncomeChange, from.TotalIncome)
	c.ChargesChangePercent = FormatPercent(c.ChargesChange, from.TotalCharges)
	c.DebtChangePercent = FormatPercent(c.DebtChange, from.TotalDebt)
	return c
}

// GrowthPoint is one present period's income and its change versus the
// previous present period. The first point has zero change.
type GrowthPoint struct {
	Period        Period `json:"period"`
	Income        Money  `json:"income"`
	Charges       Money  `json:"charges"`
	Change        Money  `json:"change"`
	GrowthPercent string `json:"growth_percent"`
}

func RevenueGrowth(totals []PeriodTotals) []GrowthPoint {
	out := make([]GrowthPoint, 0, len(totals))
	for i, t := range totals {
		g := GrowthPoint{Period: t.Period, Income: t.TotalIncome, Charges: t.TotalCharges, Change: decimal.Zero, GrowthPercent: "0%"}
		if i > 0 {
			prev := totals[i-1].TotalIncome
			g.Change = t.TotalIncome.Sub(prev)
			g.GrowthPercent = FormatPercent(g.Change, prev)
		}
		out = append(out, g)
	}
	return out
}

// CollectionPoint is one period's collection rate.
type CollectionPoint struct {
	Period         Period `json:"period"`
	TotalCharges   Money  `json:"total_charges"`
	TotalIncome    Money  `json:"total_income"`
	CollectionRate string `json:"collection_rate"`
}

func CollectionRates(totals []PeriodTotals) []CollectionPoint {
	out := make([]CollectionPoint, 0, len(totals))
	for _, t := range totals {
		out = append(out, CollectionPoint{
			Period:         t.Period,
			TotalCharges:   t.TotalCharges,
			TotalIncome:    t.TotalIncome,
			CollectionRate: FormatPercent(t.TotalIncome, t.TotalCharges),
		})
	}
	return out
}

// =============================================================================
// DEBT-ORIENTED VIEWS
// =============================================================================

type ApartmentDebt struct {
	ApartmentCode string `json:"apartment_code"`
	Floor         int    `json:"floor"`
	OwnerName     string `json:"owner_name"`
	OwnerEmail    string `json:"owner_email"`
	CurrentDebt   Money  `json:"current_debt"`
	TotalBilled   Money  `json:"total_billed"`
	TotalPaid     Money  `json:"total_paid"`
	UnpaidPeriods int    `json:"unpaid_periods"`
}

// ApartmentsWithDebt keeps apartments whose reconciled current debt is
// positive, largest debt first.
func ApartmentsWithDebt(histories []DebtHistory, reg Registry) []ApartmentDebt {
	out := []ApartmentDebt{}
	for _, h := range histories {
		if !h.CurrentDebt.IsPositive() {
			continue
		}
		row := ApartmentDebt{
			ApartmentCode: h.ApartmentCode,
			Floor:         reg.Floor(h.ApartmentCode),
			OwnerName:     reg[h.ApartmentCode].OwnerName,
			OwnerEmail:    reg[h.ApartmentCode].OwnerEmail,
			CurrentDebt:   h.CurrentDebt,
			TotalBilled:   h.TotalBilled,
			TotalPaid:     h.TotalPaid,
		}
		for _, e := range h.History {
			if e.Status != StatusFullyPaid {
				row.UnpaidPeriods++
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CurrentDebt.Cmp(out[j].CurrentDebt); c != 0 {
			return c > 0
		}
		return out[i].ApartmentCode < out[j].ApartmentCode
	})
	return out
}

type OutstandingDebt struct {
	TotalOutstanding Money `json:"total_outstanding"`
	ApartmentsInDebt int   `json:"apartments_in_debt"`
}

func sumOutstanding(histories []DebtHistory) OutstandingDebt {
	o := OutstandingDebt{TotalOutstanding: decimal.Zero}
	for _, h := range histories {
		if h.CurrentDebt.IsPositive() {
			o.TotalOutstanding = o.TotalOutstanding.Add(h.CurrentDebt)
			o.ApartmentsInDebt++
		}
	}
	return o
}

// BuildingSummary is the building-wide picture across all periods.
type BuildingSummary struct {
	TotalApartments  int    `json:"total_apartments"`
	BilledApartments int    `json:"billed_apartments"`
	Periods          int    `json:"periods"`
	TotalBilled      Money  `json:"total_billed"`
	TotalIncome      Money  `json:"total_income"`
	TotalOutstanding Money  `json:"total_outstanding"`
	ApartmentsInDebt int    `json:"apartments_in_debt"`
	CollectionRate   string `json:"collection_rate"`
}

func SummarizeBuilding(charges []ChargeRecord, payments []PaymentRecord, reg Registry) BuildingSummary {
	s := BuildingSummary{TotalApartments: len(reg), TotalBilled: decimal.Zero, TotalIncome: decimal.Zero}
	billed := make(map[string]struct{})
	periods := make(map[string]struct{})
	for _, c := range charges {
		s.TotalBilled = s.TotalBilled.Add(c.Billed())
		billed[c.ApartmentCode] = struct{}{}
		periods[c.Period] = struct{}{}
	}
	for _, p := range payments {
		s.TotalIncome = s.TotalIncome.Add(p.Amount)
		periods[p.Period] = struct{}{}
	}
	s.BilledApartments = len(billed)
	s.Periods = len(periods)
	o := sumOutstanding(debtByApartment(charges, payments))
	s.TotalOutstanding = o.TotalOutstanding
	s.ApartmentsInDebt = o.ApartmentsInDebt
	s.CollectionRate = FormatPercent(s.TotalIncome, s.TotalBilled)
	return s
}

// ApartmentFinancials is the per-apartment financial summary.
type ApartmentFinancials struct {
	Apartment         Apartment     `json:"apartment"`
	Floor             int           `json:"floor"`
	TotalBilled       Money         `json:"total_billed"`
	TotalPaid         Money         `json:"total_paid"`
	CurrentDebt       Money         `json:"current_debt"`
	PeriodsBilled     int           `json:"periods_billed"`
	LatestPeriod      Period        `json:"latest_period,omitempty"`
	LatestStatus      PaymentStatus `json:"latest_status,omitempty"`
	LastPaymentAt     *time.Time    `json:"last_payment_at,omitempty"`
	LastPaymentAmount *Money        `json:"last_payment_amount,omitempty"`
}

// =============================================================================
// ENGINE OPERATIONS
// =============================================================================

// PeriodSummary returns income, charges and carried debt for one period.
func (e *Engine) PeriodSummary(ctx context.Context, period string) (_ PeriodSummary, err error) {
	defer e.observe("period_summary", time.Now(), &err)

	p, err := NormalizePeriod(period)
	if err != nil {
		return PeriodSummary{}, err
	}
	charges, err := e.loadCharges(ctx, ChargeFilter{Periods: SinglePeriod(p)})
	if err != nil {
		return PeriodSummary{}, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{Periods: SinglePeriod(p)})
	if err != nil {
		return PeriodSummary{}, err
	}
	return summarize(p, charges, payments), nil
}

// ComparePeriods compares two periods; from is the baseline.
func (e *Engine) ComparePeriods(ctx context.Context, from, to string) (_ PeriodComparison, err error) {
	defer e.observe("compare_periods", time.Now(), &err)

	a, err := e.PeriodSummary(ctx, from)
	if err != nil {
		return PeriodComparison{}, err
	}
	b, err := e.PeriodSummary(ctx, to)
	if err != nil {
		return PeriodComparison{}, err
	}
	return ComparePeriods(a, b), nil
}

// RevenueGrowth reports period-over-period income growth for [start, end].
func (e *Engine) RevenueGrowth(ctx context.Context, start, end string) (_ []GrowthPoint, err error) {
	defer e.observe("revenue_growth", time.Now(), &err)

	totals, err := e.AggregateByPeriod(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return RevenueGrowth(totals), nil
}

// CollectionRateByPeriod reports income/charges per period in [start, end].
func (e *Engine) CollectionRateByPeriod(ctx context.Context, start, end string) (_ []CollectionPoint, err error) {
	defer e.observe("collection_rate_by_period", time.Now(), &err)

	totals, err := e.AggregateByPeriod(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return CollectionRates(totals), nil
}

// ApartmentsInDebt lists apartments with positive reconciled debt.
func (e *Engine) ApartmentsInDebt(ctx context.Context) (_ []ApartmentDebt, err error) {
	defer e.observe("apartments_in_debt", time.Now(), &err)

	charges, payments, reg, err := e.loadPeriodData(ctx, PeriodRange{})
	if err != nil {
		return nil, err
	}
	return ApartmentsWithDebt(debtByApartment(charges, payments), reg), nil
}

// TotalOutstanding sums every apartment's reconciled current debt.
func (e *Engine) TotalOutstanding(ctx context.Context) (_ OutstandingDebt, err error) {
	defer e.observe("total_outstanding", time.Now(), &err)

	charges, err := e.loadCharges(ctx, ChargeFilter{})
	if err != nil {
		return OutstandingDebt{}, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{})
	if err != nil {
		return OutstandingDebt{}, err
	}
	return sumOutstanding(debtByApartment(charges, payments)), nil
}

// BuildingSummary returns the building-wide totals.
func (e *Engine) BuildingSummary(ctx context.Context) (_ BuildingSummary, err error) {
	defer e.observe("building_summary", time.Now(), &err)

	charges, payments, reg, err := e.loadPeriodData(ctx, PeriodRange{})
	if err != nil {
		return BuildingSummary{}, err
	}
	return SummarizeBuilding(charges, payments, reg), nil
}

// ApartmentSummary returns one apartment's financial summary. Fails with
// NotFoundError when the apartment is not in the registry.
func (e *Engine) ApartmentSummary(ctx context.Context, code string) (_ ApartmentFinancials, err error) {
	defer e.observe("apartment_summary", time.Now(), &err)

	if err = validateApartmentCode(code); err != nil {
		return ApartmentFinancials{}, err
	}
	apt, err := e.apartments.GetApartment(ctx, code)
	if err != nil {
		return ApartmentFinancials{}, WrapDataAccess("get apartment", err)
	}
	if apt == nil {
		return ApartmentFinancials{}, &NotFoundError{Kind: "apartment", Key: code}
	}
	charges, err := e.loadCharges(ctx, ChargeFilter{ApartmentCode: code})
	if err != nil {
		return ApartmentFinancials{}, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{ApartmentCode: code})
	if err != nil {
		return ApartmentFinancials{}, err
	}

	h := ReconcileDebt(code, charges, payments)
	s := ApartmentFinancials{
		Apartment:   *apt,
		Floor:       apt.ResolvedFloor(),
		TotalBilled: h.TotalBilled,
		TotalPaid:   h.TotalPaid,
		CurrentDebt: h.CurrentDebt,
	}
	for _, entry := range h.History {
		if entry.HasCharge {
			s.PeriodsBilled++
		}
	}
	if len(h.History) > 0 {
		s.LatestPeriod = h.History[0].Period
		s.LatestStatus = h.History[0].Status
	}
	for i := range payments {
		p := payments[i]
		if s.LastPaymentAt == nil || p.PaidAt.After(*s.LastPaymentAt) {
			at, amount := p.PaidAt, p.Amount
			s.LastPaymentAt, s.LastPaymentAmount = &at, &amount
		}
	}
	return s, nil
}
