// Package storetest holds the behaviour every billing.RecordStore adapter
// must share. Adapter packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) billing.RecordStore

var paidAt = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)

func m(v int64) billing.Money { return decimal.NewFromInt(v) }

func bill(apt, period string, electric int64) billing.ChargeRecord {
	c := billing.ChargeRecord{
		ID:            "bill-" + apt + "-" + period,
		ApartmentCode: apt,
		Period:        period,
		FeeAmounts:    billing.FeeAmounts{Electric: m(electric), Water: m(10), Service: m(20), Vehicles: m(0)},
		PreDebt:       m(5),
		CreatedAt:     paidAt,
		UpdatedAt:     paidAt,
	}
	c.Total = c.AmountDue()
	return c
}

func pay(id, apt, period string, amount int64, key string) billing.PaymentRecord {
	return billing.PaymentRecord{
		ID:             id,
		ApartmentCode:  apt,
		Period:         period,
		Amount:         m(amount),
		PaidAt:         paidAt,
		Method:         billing.MethodTransfer,
		IdempotencyKey: key,
	}
}

// Run exercises registry, charge and payment semantics against a store.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("registry round trip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveApartment(ctx, billing.Apartment{Code: "B1204", Floor: 12, Area: decimal.RequireFromString("87.5"), OwnerName: "giang"}))
		require.NoError(t, s.SaveApartment(ctx, billing.Apartment{Code: "A101", Floor: 1, Area: m(50)}))

		got, err := s.GetApartment(ctx, "B1204")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 12, got.Floor)
		assert.True(t, decimal.RequireFromString("87.5").Equal(got.Area))
		assert.Equal(t, "giang", got.OwnerName)

		missing, err := s.GetApartment(ctx, "Z999")
		require.NoError(t, err)
		assert.Nil(t, missing)

		// saving again updates in place
		require.NoError(t, s.SaveApartment(ctx, billing.Apartment{Code: "A101", Floor: 2, Area: m(50)}))
		all, err := s.ListApartments(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "A101", all[0].Code)
		assert.Equal(t, 2, all[0].Floor)
	})

	t.Run("charge upsert replaces fees and keeps identity", func(t *testing.T) {
		s := newStore(t)
		first, err := s.UpsertCharge(ctx, bill("A101", "2025-01", 100))
		require.NoError(t, err)

		again := bill("A101", "2025-01", 300)
		again.ID = "bill-other"
		again.CreatedAt = paidAt.Add(time.Hour)
		again.UpdatedAt = paidAt.Add(time.Hour)
		second, err := s.UpsertCharge(ctx, again)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		rows, err := s.QueryCharges(ctx, billing.ChargeFilter{ApartmentCode: "A101"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, m(300).Equal(rows[0].Electric))
		assert.True(t, m(335).Equal(rows[0].Total))
		assert.True(t, m(5).Equal(rows[0].PreDebt))
	})

	t.Run("charge filters match legacy periods", func(t *testing.T) {
		s := newStore(t)
		for _, c := range []billing.ChargeRecord{
			bill("A101", "2025-01-15", 1),
			bill("A101", "2025-02", 2),
			bill("A102", "2025-02", 3),
			bill("A102", "garbage", 4),
		} {
			_, err := s.UpsertCharge(ctx, c)
			require.NoError(t, err)
		}

		feb, err := s.QueryCharges(ctx, billing.ChargeFilter{Periods: billing.SinglePeriod("2025-02")})
		require.NoError(t, err)
		assert.Len(t, feb, 2)

		jan, err := s.QueryCharges(ctx, billing.ChargeFilter{Periods: billing.SinglePeriod("2025-01")})
		require.NoError(t, err)
		require.Len(t, jan, 1)
		assert.Equal(t, "2025-01-15", jan[0].Period)

		// an open filter returns everything, unparsable rows included
		all, err := s.QueryCharges(ctx, billing.ChargeFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		a102, err := s.QueryCharges(ctx, billing.ChargeFilter{ApartmentCode: "A102"})
		require.NoError(t, err)
		assert.Len(t, a102, 2)
	})

	t.Run("payments are append-only with idempotency", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InsertPayment(ctx, pay("p1", "A101", "2025-01", 100, "")))
		require.NoError(t, s.InsertPayment(ctx, pay("p2", "A101", "2025-01", 100, "")))
		require.NoError(t, s.InsertPayment(ctx, pay("p3", "A101", "2025-02", 50, "maintenance:T-1")))

		err := s.InsertPayment(ctx, pay("p4", "A101", "2025-02", 50, "maintenance:T-1"))
		assert.ErrorIs(t, err, billing.ErrDuplicatePayment)

		rows, err := s.QueryPayments(ctx, billing.PaymentFilter{ApartmentCode: "A101"})
		require.NoError(t, err)
		require.Len(t, rows, 3)

		byID := map[string]billing.PaymentRecord{}
		for _, p := range rows {
			byID[p.ID] = p
		}
		assert.Equal(t, "maintenance:T-1", byID["p3"].IdempotencyKey)
		assert.Equal(t, "", byID["p1"].IdempotencyKey)
		assert.Equal(t, billing.MethodTransfer, byID["p1"].Method)
		assert.True(t, paidAt.Equal(byID["p1"].PaidAt))
		assert.True(t, m(50).Equal(byID["p3"].Amount))

		feb, err := s.QueryPayments(ctx, billing.PaymentFilter{Periods: billing.SinglePeriod("2025-02")})
		require.NoError(t, err)
		assert.Len(t, feb, 1)
	})

	t.Run("distinct idempotency keys never conflict", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InsertPayment(ctx, pay("p1", "A101", "2025-01", 100, "k1")))
		require.NoError(t, s.InsertPayment(ctx, pay("p2", "B1204", "2025-01", 100, "k2")))

		rows, err := s.QueryPayments(ctx, billing.PaymentFilter{})
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		// an id clash is a store failure, not a duplicate payment
		err = s.InsertPayment(ctx, pay("p1", "A102", "2025-01", 100, "k3"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, billing.ErrDuplicatePayment)
		assert.False(t, billing.IsClientError(err))
	})

	t.Run("reset clears everything", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveApartment(ctx, billing.Apartment{Code: "A101"}))
		_, err := s.UpsertCharge(ctx, bill("A101", "2025-01", 1))
		require.NoError(t, err)
		require.NoError(t, s.InsertPayment(ctx, pay("p1", "A101", "2025-01", 1, "k")))

		require.NoError(t, s.Reset(ctx))

		apts, err := s.ListApartments(ctx)
		require.NoError(t, err)
		assert.Empty(t, apts)
		charges, err := s.QueryCharges(ctx, billing.ChargeFilter{})
		require.NoError(t, err)
		assert.Empty(t, charges)

		// the idempotency key is free again
		require.NoError(t, s.InsertPayment(ctx, pay("p1", "A101", "2025-01", 1, "k")))
	})

	t.Run("engine reports over the store", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveApartment(ctx, billing.Apartment{Code: "A101", Floor: 1, Area: m(60)}))
		engine := billing.NewEngineFromStore(s)

		_, err := engine.CreateCharge(ctx, billing.ChargeInput{
			ApartmentCode: "A101",
			Period:        "2025-01",
			FeeAmounts:    billing.FeeAmounts{Electric: m(200000), Water: m(50000), Service: m(150000), Vehicles: m(0)},
		})
		require.NoError(t, err)
		_, err = engine.RecordPayment(ctx, billing.PaymentInput{ApartmentCode: "A101", Period: "2025-01", Amount: m(150000)})
		require.NoError(t, err)

		h, err := engine.DebtHistory(ctx, "A101")
		require.NoError(t, err)
		assert.True(t, m(250000).Equal(h.CurrentDebt), h.CurrentDebt.String())

		report, err := engine.SettlementReport(ctx, "2025-01")
		require.NoError(t, err)
		require.Len(t, report.Apartments, 1)
		assert.Equal(t, billing.StatusPartiallyPaid, report.Apartments[0].Status)
	})
}
