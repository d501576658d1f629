package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// WRITE SIDE - ingestion boundary
// =============================================================================
//
// Periods are normalized here, before anything reaches a store, so records
// written through the engine always carry the canonical "YYYY-MM" form.
// The read side still normalizes because other tools write to the same
// tables.

// ChargeInput is an operator's bill for one (apartment, period).
// Total is optional; when set it must equal the computed total.
type ChargeInput struct {
	ApartmentCode string
	Period        string
	FeeAmounts
	PreDebt Money
	Total   *Money
}

// PaymentInput is a cashier's payment record.
type PaymentInput struct {
	ApartmentCode  string
	Period         string
	Amount         Money
	PaidAt         time.Time
	Method         string
	IdempotencyKey string
	Note           string
}

// MaintenanceCompletion is posted by the maintenance workflow when a
// ticket's work is completed and paid for by the apartment.
type MaintenanceCompletion struct {
	TicketID      string
	ApartmentCode string
	Cost          Money
	CompletedAt   time.Time
	Description   string
}

func validateApartmentCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return &ValidationError{Field: "apartment_code", Message: "apartment code is required"}
	}
	return nil
}

// CreateCharge validates and upserts a bill. Re-issuing a bill for the same
// (apartment, period) replaces its fee fields (fee correction).
func (e *Engine) CreateCharge(ctx context.Context, in ChargeInput) (_ ChargeRecord, err error) {
	defer e.observe("create_charge", time.Now(), &err)

	if err = validateApartmentCode(in.ApartmentCode); err != nil {
		return ChargeRecord{}, err
	}
	p, err := NormalizePeriod(in.Period)
	if err != nil {
		return ChargeRecord{}, err
	}
	if in.FeeAmounts.anyNegative() {
		return ChargeRecord{}, &ValidationError{Field: "fees", Message: "fee amounts must not be negative"}
	}
	if in.PreDebt.IsNegative() {
		return ChargeRecord{}, &ValidationError{Field: "pre_debt", Value: in.PreDebt.String(), Message: "must not be negative"}
	}

	now := e.now().UTC()
	c := ChargeRecord{
		ID:            fmt.Sprintf("bill-%s-%s", strings.TrimSpace(in.ApartmentCode), p),
		ApartmentCode: strings.TrimSpace(in.ApartmentCode),
		Period:        string(p),
		FeeAmounts:    in.FeeAmounts,
		PreDebt:       in.PreDebt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c.Total = c.AmountDue()
	if in.Total != nil && !in.Total.Equal(c.Total) {
		return ChargeRecord{}, &ValidationError{
			Field:   "total",
			Value:   in.Total.String(),
			Message: fmt.Sprintf("must equal fees + pre_debt (%s)", c.Total.String()),
		}
	}

	saved, err := e.charges.UpsertCharge(ctx, c)
	if err != nil {
		return ChargeRecord{}, WrapDataAccess("upsert charge", err)
	}
	return saved, nil
}

// RecordPayment appends a payment record.
func (e *Engine) RecordPayment(ctx context.Context, in PaymentInput) (_ PaymentRecord, err error) {
	defer e.observe("record_payment", time.Now(), &err)

	if err = validateApartmentCode(in.ApartmentCode); err != nil {
		return PaymentRecord{}, err
	}
	p, err := NormalizePeriod(in.Period)
	if err != nil {
		return PaymentRecord{}, err
	}
	if !in.Amount.IsPositive() {
		return PaymentRecord{}, &ValidationError{Field: "amount", Value: in.Amount.String(), Message: "must be positive"}
	}

	now := e.now().UTC()
	rec := PaymentRecord{
		ID:             "pay-" + uuid.NewString(),
		ApartmentCode:  strings.TrimSpace(in.ApartmentCode),
		Period:         string(p),
		Amount:         in.Amount,
		PaidAt:         in.PaidAt,
		Method:         in.Method,
		IdempotencyKey: in.IdempotencyKey,
		Note:           in.Note,
	}
	if rec.PaidAt.IsZero() {
		rec.PaidAt = now
	}
	if rec.Method == "" {
		rec.Method = MethodCash
	}
	if err = e.payments.InsertPayment(ctx, rec); err != nil {
		return PaymentRecord{}, WrapDataAccess("insert payment", err)
	}
	return rec, nil
}

// PostMaintenancePayment records the payment derived from a completed
// maintenance ticket, credited to the month of completion. Posting the same
// ticket twice fails with ErrDuplicatePayment.
func (e *Engine) PostMaintenancePayment(ctx context.Context, m MaintenanceCompletion) (PaymentRecord, error) {
	if strings.TrimSpace(m.TicketID) == "" {
		return PaymentRecord{}, &ValidationError{Field: "ticket_id", Message: "ticket id is required"}
	}
	completed := m.CompletedAt
	if completed.IsZero() {
		completed = e.now()
	}
	note := "maintenance ticket " + m.TicketID
	if m.Description != "" {
		note += ": " + m.Description
	}
	return e.RecordPayment(ctx, PaymentInput{
		ApartmentCode:  m.ApartmentCode,
		Period:         string(PeriodOf(completed)),
		Amount:         m.Cost,
		PaidAt:         completed,
		Method:         MethodMaintenance,
		IdempotencyKey: "maintenance:" + m.TicketID,
		Note:           note,
	})
}

// ListCharges returns stored charges for the operator screens, normalized
// and filtered.
func (e *Engine) ListCharges(ctx context.Context, code string, r PeriodRange) ([]ChargeRecord, error) {
	return e.loadCharges(ctx, ChargeFilter{ApartmentCode: code, Periods: r})
}

// ListPayments returns stored payments, normalized and filtered.
func (e *Engine) ListPayments(ctx context.Context, code string, r PeriodRange) ([]PaymentRecord, error) {
	return e.loadPayments(ctx, PaymentFilter{ApartmentCode: code, Periods: r})
}
