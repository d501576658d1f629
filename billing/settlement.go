/*
settlement.go - Monthly settlement report

PURPOSE:
  Composes, for one period, the period summary, fee-type breakdown, floor
  breakdown and per-apartment detail into one report. This is the one
  output that must be internally self-consistent:

    statistics.total_outstanding == sum(apartments[].balance where > 0)
    sum(apartments[].total_bill)  == summary.total_charges
    sum(floors[].total_billed)    == summary.total_charges
    fee_breakdown.total_revenue   == summary.total_charges

  All sections are derived from the same three reads so they agree with
  each other even when the store is being written concurrently.

DETAIL ROWS:
  total_bill  = fee sub-amounts (excludes pre_debt, same basis as
                summary.total_charges)
  amount_due  = total_bill + pre_debt
  balance     = amount_due - paid against this period
  status      = fully paid when paid >= amount_due
*/
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type SettlementLine struct {
	ApartmentCode string `json:"apartment_code"`
	Floor         int    `json:"floor"`
	OwnerName     string `json:"owner_name"`
	FeeAmounts
	TotalBill   Money         `json:"total_bill"`
	PreDebt     Money         `json:"pre_debt"`
	AmountDue   Money         `json:"amount_due"`
	TotalPaid   Money         `json:"total_paid"`
	Balance     Money         `json:"balance"`
	Status      PaymentStatus `json:"status"`
	StatusLabel string        `json:"status_label"`
}

type SettlementStatistics struct {
	TotalApartments  int   `json:"total_apartments"`
	FullyPaid        int   `json:"fully_paid"`
	PartiallyPaid    int   `json:"partially_paid"`
	Unpaid           int   `json:"unpaid"`
	TotalOutstanding Money `json:"total_outstanding"`
}

type SettlementReport struct {
	Period       Period               `json:"period"`
	Summary      PeriodSummary        `json:"summary"`
	FeeBreakdown FeeBreakdown         `json:"fee_breakdown"`
	Floors       []FloorRevenue       `json:"floors"`
	Apartments   []SettlementLine     `json:"apartments"`
	Statistics   SettlementStatistics `json:"statistics"`
}

// BuildSettlementReport composes the report for p from canonical records.
// Records outside p are ignored.
func BuildSettlementReport(p Period, charges []ChargeRecord, payments []PaymentRecord, reg Registry) SettlementReport {
	r := SinglePeriod(p)
	inCharges := make([]ChargeRecord, 0, len(charges))
	for _, c := range charges {
		if r.Contains(Period(c.Period)) {
			inCharges = append(inCharges, c)
		}
	}
	inPayments := make([]PaymentRecord, 0, len(payments))
	paidBy := make(map[string]Money)
	for _, pay := range payments {
		if r.Contains(Period(pay.Period)) {
			inPayments = append(inPayments, pay)
			paidBy[pay.ApartmentCode] = paidBy[pay.ApartmentCode].Add(pay.Amount)
		}
	}

	scan := scanCharges(inCharges, inPayments, reg)
	report := SettlementReport{
		Period:       p,
		Summary:      summarize(p, inCharges, inPayments),
		FeeBreakdown: scan.feeBreakdown(p),
		Floors:       []FloorRevenue{},
		Apartments:   []SettlementLine{},
		Statistics:   SettlementStatistics{TotalOutstanding: decimal.Zero},
	}
	for _, f := range scan.floors() {
		if f.ApartmentCount > 0 {
			report.Floors = append(report.Floors, f)
		}
	}

	// One line per apartment; duplicate legacy charges merge.
	lines := make(map[string]*SettlementLine)
	for _, c := range inCharges {
		line, ok := lines[c.ApartmentCode]
		if !ok {
			line = &SettlementLine{
				ApartmentCode: c.ApartmentCode,
				Floor:         reg.Floor(c.ApartmentCode),
				OwnerName:     reg.Owner(c.ApartmentCode),
			}
			lines[c.ApartmentCode] = line
		}
		line.FeeAmounts = line.FeeAmounts.Add(c.FeeAmounts)
		line.TotalBill = line.TotalBill.Add(c.Billed())
		line.PreDebt = line.PreDebt.Add(c.PreDebt)
	}

	for _, line := range lines {
		line.AmountDue = line.TotalBill.Add(line.PreDebt)
		line.TotalPaid = paidBy[line.ApartmentCode]
		line.Balance = line.AmountDue.Sub(line.TotalPaid)
		line.Status = ClassifyPayment(line.AmountDue, line.TotalPaid)
		line.StatusLabel = line.Status.Label()

		switch line.Status {
		case StatusFullyPaid:
			report.Statistics.FullyPaid++
		case StatusPartiallyPaid:
			report.Statistics.PartiallyPaid++
		default:
			report.Statistics.Unpaid++
		}
		if line.Balance.IsPositive() {
			report.Statistics.TotalOutstanding = report.Statistics.TotalOutstanding.Add(line.Balance)
		}
		report.Apartments = append(report.Apartments, *line)
	}
	report.Statistics.TotalApartments = len(report.Apartments)

	sort.Slice(report.Apartments, func(i, j int) bool {
		a, b := report.Apartments[i], report.Apartments[j]
		if a.Floor != b.Floor {
			return a.Floor < b.Floor
		}
		return a.ApartmentCode < b.ApartmentCode
	})
	return report
}

// SettlementReport builds the monthly settlement report for period. Any
// failing read fails the whole report.
func (e *Engine) SettlementReport(ctx context.Context, period string) (_ SettlementReport, err error) {
	defer e.observe("settlement_report", time.Now(), &err)

	p, err := NormalizePeriod(period)
	if err != nil {
		return SettlementReport{}, err
	}
	charges, payments, reg, err := e.loadPeriodData(ctx, SinglePeriod(p))
	if err != nil {
		return SettlementReport{}, err
	}
	return BuildSettlementReport(p, charges, payments, reg), nil
}
