package billing_test

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/billing/store"
)

func fees(e, w, s, v int64) billing.FeeAmounts {
	return billing.FeeAmounts{Electric: money(e), Water: money(w), Service: money(s), Vehicles: money(v)}
}

func TestCreateCharge(t *testing.T) {
	f := newFixture(t)

	// WHEN: the operator issues a bill with a legacy period
	c, err := f.engine.CreateCharge(f.ctx, billing.ChargeInput{
		ApartmentCode: " A101 ",
		Period:        "2025-1-15",
		FeeAmounts:    fees(200000, 50000, 150000, 0),
		PreDebt:       money(30000),
	})
	require.NoError(t, err)

	// THEN: stored canonical with a computed total
	assert.Equal(t, "bill-A101-2025-01", c.ID)
	assert.Equal(t, "A101", c.ApartmentCode)
	assert.Equal(t, "2025-01", c.Period)
	assertMoney(t, 430000, c.Total)
	assert.Equal(t, fixedNow, c.CreatedAt)
}

func TestCreateCharge_ReissueReplacesFees(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateCharge(f.ctx, billing.ChargeInput{ApartmentCode: "A101", Period: "2025-01", FeeAmounts: fees(100, 0, 0, 0)})
	require.NoError(t, err)

	_, err = f.engine.CreateCharge(f.ctx, billing.ChargeInput{ApartmentCode: "A101", Period: "2025-01-31", FeeAmounts: fees(250, 0, 0, 0)})
	require.NoError(t, err)

	stored, err := f.engine.ListCharges(f.ctx, "A101", billing.PeriodRange{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assertMoney(t, 250, stored[0].Electric)
	assertMoney(t, 250, stored[0].Total)
}

func TestCreateCharge_Validation(t *testing.T) {
	f := newFixture(t)
	wrongTotal := money(999)

	cases := map[string]billing.ChargeInput{
		"missing apartment": {Period: "2025-01", FeeAmounts: fees(1, 0, 0, 0)},
		"bad period":        {ApartmentCode: "A101", Period: "soon", FeeAmounts: fees(1, 0, 0, 0)},
		"negative fee":      {ApartmentCode: "A101", Period: "2025-01", FeeAmounts: fees(1, -5, 0, 0)},
		"negative pre_debt": {ApartmentCode: "A101", Period: "2025-01", PreDebt: money(-1)},
		"total mismatch":    {ApartmentCode: "A101", Period: "2025-01", FeeAmounts: fees(100, 0, 0, 0), Total: &wrongTotal},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.CreateCharge(f.ctx, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, billing.ErrValidation)
		})
	}

	stored, err := f.engine.ListCharges(f.ctx, "", billing.PeriodRange{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateCharge_MatchingTotalAccepted(t *testing.T) {
	f := newFixture(t)
	total := money(130)

	c, err := f.engine.CreateCharge(f.ctx, billing.ChargeInput{
		ApartmentCode: "A101", Period: "2025-01", FeeAmounts: fees(100, 0, 0, 0), PreDebt: money(30), Total: &total,
	})
	require.NoError(t, err)
	assertMoney(t, 130, c.Total)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)

	a, err := f.engine.RecordPayment(f.ctx, billing.PaymentInput{ApartmentCode: "A101", Period: "03/2025", Amount: money(100)})
	require.NoError(t, err)
	b, err := f.engine.RecordPayment(f.ctx, billing.PaymentInput{ApartmentCode: "A101", Period: "2025-03", Amount: money(50), Method: billing.MethodTransfer})
	require.NoError(t, err)

	assert.Equal(t, "2025-03", a.Period)
	assert.Equal(t, billing.MethodCash, a.Method)
	assert.Equal(t, fixedNow, a.PaidAt)
	assert.Equal(t, billing.MethodTransfer, b.Method)
	assert.NotEqual(t, a.ID, b.ID)

	listed, err := f.engine.ListPayments(f.ctx, "A101", billing.SinglePeriod("2025-03"))
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestRecordPayment_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.RecordPayment(f.ctx, billing.PaymentInput{ApartmentCode: "A101", Period: "2025-03", Amount: money(0)})
	assert.ErrorIs(t, err, billing.ErrValidation)

	_, err = f.engine.RecordPayment(f.ctx, billing.PaymentInput{ApartmentCode: "A101", Period: "2025-03", Amount: money(-10)})
	assert.ErrorIs(t, err, billing.ErrValidation)

	_, err = f.engine.RecordPayment(f.ctx, billing.PaymentInput{ApartmentCode: "", Period: "2025-03", Amount: money(10)})
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestPostMaintenancePayment(t *testing.T) {
	f := newFixture(t)
	done := time.Date(2025, time.April, 2, 15, 30, 0, 0, time.UTC)

	// WHEN: the maintenance workflow posts a completed ticket
	rec, err := f.engine.PostMaintenancePayment(f.ctx, billing.MaintenanceCompletion{
		TicketID:      "T-42",
		ApartmentCode: "A101",
		Cost:          money(350000),
		CompletedAt:   done,
		Description:   "replace water heater",
	})
	require.NoError(t, err)

	// THEN: credited to the month of completion
	assert.Equal(t, "2025-04", rec.Period)
	assert.Equal(t, billing.MethodMaintenance, rec.Method)
	assert.Equal(t, "maintenance:T-42", rec.IdempotencyKey)
	assert.Contains(t, rec.Note, "replace water heater")

	// WHEN: the same ticket is posted again
	_, err = f.engine.PostMaintenancePayment(f.ctx, billing.MaintenanceCompletion{
		TicketID: "T-42", ApartmentCode: "A101", Cost: money(350000), CompletedAt: done,
	})

	// THEN: rejected, and only one payment exists
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrDuplicatePayment)
	assert.True(t, billing.IsClientError(err))

	h, err := f.engine.DebtHistory(f.ctx, "A101")
	require.NoError(t, err)
	assertMoney(t, 350000, h.TotalPaid)

	_, err = f.engine.PostMaintenancePayment(f.ctx, billing.MaintenanceCompletion{ApartmentCode: "A101", Cost: money(1)})
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestPostMaintenancePayment_EarlyMorningOnTheFirst(t *testing.T) {
	// GIVEN: a March bill and a ticket closed at 05:00 building time on 1 March
	f := newFixture(t)
	f.charges(t, charge("A101", "2025-03", 200000, 0, 0, 0, 0))
	hanoi := time.FixedZone("ICT", 7*60*60)

	// WHEN: the workflow posts it with its local timestamp
	rec, err := f.engine.PostMaintenancePayment(f.ctx, billing.MaintenanceCompletion{
		TicketID:      "T-7",
		ApartmentCode: "A101",
		Cost:          money(200000),
		CompletedAt:   time.Date(2025, time.March, 1, 5, 0, 0, 0, hanoi),
	})
	require.NoError(t, err)

	// THEN: credited to March, the same key as the bill
	assert.Equal(t, "2025-03", rec.Period)

	h, err := f.engine.DebtHistory(f.ctx, "A101")
	require.NoError(t, err)
	require.Len(t, h.History, 1)
	assert.Equal(t, billing.Period("2025-03"), h.History[0].Period)
	assert.True(t, h.CurrentDebt.IsZero(), h.CurrentDebt.String())
}

func TestLoaders_NormalizeLegacyAndSkipGarbage(t *testing.T) {
	// GIVEN: records written by another tool with mixed period formats
	var buf bytes.Buffer
	mem := store.NewMemory()
	engine := billing.NewEngineFromStore(mem, billing.WithLogger(log.New(&buf, "", 0)))
	f := &fixture{mem: mem, engine: engine, ctx: context.Background()}

	f.charges(t,
		charge("A101", "2025-01-01 00:00:00", 100, 0, 0, 0, 0),
		charge("A101", "Q1-2025", 999, 0, 0, 0, 0),
	)
	f.payments(t,
		payment("p1", "A101", "2025-01-20T08:00:00Z", 40),
		payment("p2", "A101", "???", 1),
	)

	// WHEN
	h, err := engine.DebtHistory(f.ctx, "A101")
	require.NoError(t, err)

	// THEN: the readable records reconcile, the rest are logged and skipped
	require.Len(t, h.History, 1)
	assert.Equal(t, billing.Period("2025-01"), h.History[0].Period)
	assertMoney(t, 60, h.CurrentDebt)
	assert.Contains(t, buf.String(), "skipping charge")
	assert.Contains(t, buf.String(), "skipping payment p2")

	// range filters apply to the normalized value
	in, err := engine.ListCharges(f.ctx, "A101", billing.SinglePeriod("2025-01"))
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "2025-01", in[0].Period)
}

func TestApartmentValidate(t *testing.T) {
	assert.NoError(t, billing.Apartment{Code: "A101"}.Validate())
	assert.NoError(t, billing.Apartment{Code: "PH", Floor: 30}.Validate())

	for name, apt := range map[string]billing.Apartment{
		"blank code":     {Code: "  "},
		"negative floor": {Code: "A101", Floor: -1},
		"negative area":  {Code: "A101", Area: money(-5)},
		"no floor":       {Code: "PH"},
	} {
		err := apt.Validate()
		assert.ErrorIs(t, err, billing.ErrValidation, name)
	}
}

func TestRecordPayment_EnginesSharingAStoreMintDistinctIDs(t *testing.T) {
	// GIVEN: two engines on one store, both with a frozen clock
	mem := store.NewMemory()
	clock := billing.WithClock(func() time.Time { return fixedNow })
	cashier := billing.NewEngineFromStore(mem, clock)
	seeder := billing.NewEngineFromStore(mem, clock)
	ctx := context.Background()

	// WHEN: each records a payment with its own idempotency key
	a, err := cashier.RecordPayment(ctx, billing.PaymentInput{ApartmentCode: "A101", Period: "2025-01", Amount: money(100), IdempotencyKey: "k1"})
	require.NoError(t, err)
	b, err := seeder.RecordPayment(ctx, billing.PaymentInput{ApartmentCode: "A102", Period: "2025-01", Amount: money(100), IdempotencyKey: "k2"})

	// THEN: both are stored under different ids
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	rows, err := mem.QueryPayments(ctx, billing.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
