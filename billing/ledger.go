/*
ledger.go - Debt reconciliation: per-apartment running balance

PURPOSE:
  There is no stored ledger table. An apartment's debt is reconstructed by
  replaying its charge and payment records period by period, the same way a
  balance is replayed from an append-only transaction log.

ALGORITHM:
  1. Normalize periods of both record sets
  2. Take the UNION of periods present in either set
  3. Walk periods ascending: running += billed - paid
  4. Emit one LedgerEntry per period
  5. current_debt = max(running, 0)
  History is presented most-recent-first.

PRE-DEBT:
  A period's pre_debt SHOULD equal the prior period's closing balance but
  nothing keeps them in sync; issuing the next bill is a manual step.
  billed excludes pre_debt so carried debt is never counted twice. Each
  entry reports the expected pre_debt and the drift between the two; the
  drift is never corrected automatically.

NET CREDIT:
  A negative running balance (overpayment) is clamped to zero in
  current_debt. Per-entry balances are reported unclamped.
*/
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one derived (never persisted) period of an apartment ledger.
type LedgerEntry struct {
	Period          Period        `json:"period"`
	Billed          Money         `json:"billed"`
	PreDebt         Money         `json:"pre_debt"`
	Paid            Money         `json:"paid"`
	Balance         Money         `json:"balance"`
	Status          PaymentStatus `json:"status"`
	StatusLabel     string        `json:"status_label"`
	HasCharge       bool          `json:"has_charge"`
	ExpectedPreDebt Money         `json:"expected_pre_debt"`
	PreDebtDrift    Money         `json:"pre_debt_drift"`
}

// DebtHistory is the reconciled ledger of one apartment.
type DebtHistory struct {
	ApartmentCode string        `json:"apartment_code"`
	CurrentDebt   Money         `json:"current_debt"`
	TotalBilled   Money         `json:"total_billed"`
	TotalPaid     Money         `json:"total_paid"`
	History       []LedgerEntry `json:"history"`
}

// ReconcileDebt replays one apartment's records into a ledger. Records of
// other apartments are ignored. Duplicate charges for one period (possible
// only in legacy data written with different period granularities) are
// summed.
func ReconcileDebt(code string, charges []ChargeRecord, payments []PaymentRecord) DebtHistory {
	type periodData struct {
		billed    Money
		preDebt   Money
		paid      Money
		hasCharge bool
	}
	byPeriod := make(map[Period]*periodData)
	get := func(p Period) *periodData {
		d, ok := byPeriod[p]
		if !ok {
			d = &periodData{}
			byPeriod[p] = d
		}
		return d
	}

	for _, c := range charges {
		if c.ApartmentCode != code {
			continue
		}
		d := get(Period(c.Period))
		d.billed = d.billed.Add(c.Billed())
		d.preDebt = d.preDebt.Add(c.PreDebt)
		d.hasCharge = true
	}
	for _, p := range payments {
		if p.ApartmentCode != code {
			continue
		}
		d := get(Period(p.Period))
		d.paid = d.paid.Add(p.Amount)
	}

	periods := make([]Period, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })

	h := DebtHistory{ApartmentCode: code, History: make([]LedgerEntry, 0, len(periods))}
	running := decimal.Zero
	for _, p := range periods {
		d := byPeriod[p]
		expected := decimal.Max(running, decimal.Zero)
		running = running.Add(d.billed).Sub(d.paid)

		status := ClassifyPayment(d.billed, d.paid)
		entry := LedgerEntry{
			Period:          p,
			Billed:          d.billed,
			PreDebt:         d.preDebt,
			Paid:            d.paid,
			Balance:         running,
			Status:          status,
			StatusLabel:     status.Label(),
			HasCharge:       d.hasCharge,
			ExpectedPreDebt: expected,
		}
		if d.hasCharge {
			entry.PreDebtDrift = d.preDebt.Sub(expected)
		}
		h.History = append(h.History, entry)
		h.TotalBilled = h.TotalBilled.Add(d.billed)
		h.TotalPaid = h.TotalPaid.Add(d.paid)
	}
	h.CurrentDebt = decimal.Max(running, decimal.Zero)

	// Most recent first for presentation.
	for i, j := 0, len(h.History)-1; i < j; i, j = i+1, j-1 {
		h.History[i], h.History[j] = h.History[j], h.History[i]
	}
	return h
}

// DriftEntries returns the entries whose pre_debt disagrees with the prior
// closing balance, most recent first.
func (h DebtHistory) DriftEntries() []LedgerEntry {
	out := []LedgerEntry{}
	for _, e := range h.History {
		if e.HasCharge && !e.PreDebtDrift.IsZero() {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// ENGINE OPERATIONS
// =============================================================================

// DebtHistory reconstructs the ledger of one apartment. An apartment with
// no records yields an empty history and zero debt, not an error.
func (e *Engine) DebtHistory(ctx context.Context, code string) (_ DebtHistory, err error) {
	defer e.observe("debt_history", time.Now(), &err)

	if err = validateApartmentCode(code); err != nil {
		return DebtHistory{}, err
	}
	charges, err := e.loadCharges(ctx, ChargeFilter{ApartmentCode: code})
	if err != nil {
		return DebtHistory{}, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{ApartmentCode: code})
	if err != nil {
		return DebtHistory{}, err
	}
	return ReconcileDebt(code, charges, payments), nil
}

// PreDebtDrift lists the periods where the stored pre_debt diverges from
// the reconciled prior balance.
func (e *Engine) PreDebtDrift(ctx context.Context, code string) (_ []LedgerEntry, err error) {
	defer e.observe("pre_debt_drift", time.Now(), &err)

	h, err := e.DebtHistory(ctx, code)
	if err != nil {
		return nil, err
	}
	return h.DriftEntries(), nil
}

// SuggestPreDebt returns the closing balance of every period strictly
// before p, clamped at zero: the value an operator should carry into the
// bill for p.
func (e *Engine) SuggestPreDebt(ctx context.Context, code, period string) (_ Money, err error) {
	defer e.observe("suggest_pre_debt", time.Now(), &err)

	if err = validateApartmentCode(code); err != nil {
		return decimal.Zero, err
	}
	p, err := NormalizePeriod(period)
	if err != nil {
		return decimal.Zero, err
	}
	prior := PeriodRange{To: p.Prev()}
	charges, err := e.loadCharges(ctx, ChargeFilter{ApartmentCode: code, Periods: prior})
	if err != nil {
		return decimal.Zero, err
	}
	payments, err := e.loadPayments(ctx, PaymentFilter{ApartmentCode: code, Periods: prior})
	if err != nil {
		return decimal.Zero, err
	}
	return ReconcileDebt(code, charges, payments).CurrentDebt, nil
}

// debtByApartment reconciles every apartment appearing in either record set.
func debtByApartment(charges []ChargeRecord, payments []PaymentRecord) []DebtHistory {
	chargesBy := make(map[string][]ChargeRecord)
	paymentsBy := make(map[string][]PaymentRecord)
	codes := make(map[string]struct{})
	for _, c := range charges {
		chargesBy[c.ApartmentCode] = append(chargesBy[c.ApartmentCode], c)
		codes[c.ApartmentCode] = struct{}{}
	}
	for _, p := range payments {
		paymentsBy[p.ApartmentCode] = append(paymentsBy[p.ApartmentCode], p)
		codes[p.ApartmentCode] = struct{}{}
	}

	sorted := make([]string, 0, len(codes))
	for c := range codes {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	out := make([]DebtHistory, 0, len(sorted))
	for _, code := range sorted {
		out = append(out, ReconcileDebt(code, chargesBy[code], paymentsBy[code]))
	}
	return out
}
