package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
)

func TestSettlementReport_Sections(t *testing.T) {
	// GIVEN
	f := newFixture(t)
	f.seedBuilding(t)

	// WHEN: the period is given with a full date
	report, err := f.engine.SettlementReport(f.ctx, "2025-03-31")
	require.NoError(t, err)

	// THEN
	assert.Equal(t, billing.Period("2025-03"), report.Period)

	s := report.Summary
	assertMoney(t, 1680000, s.TotalCharges)
	assertMoney(t, 700000, s.TotalIncome)
	assertMoney(t, 120000, s.TotalDebt)
	assert.Equal(t, 3, s.ChargedApartments)
	assert.Equal(t, 2, s.PayingApartments)
	assert.Equal(t, "41.67%", s.CollectionRate)

	require.Len(t, report.Apartments, 3)
	codes := []string{report.Apartments[0].ApartmentCode, report.Apartments[1].ApartmentCode, report.Apartments[2].ApartmentCode}
	assert.Equal(t, []string{"A201", "A202", "A301"}, codes)

	a202 := report.Apartments[1]
	assertMoney(t, 620000, a202.TotalBill)
	assertMoney(t, 120000, a202.PreDebt)
	assertMoney(t, 740000, a202.AmountDue)
	assertMoney(t, 300000, a202.TotalPaid)
	assertMoney(t, 440000, a202.Balance)
	assert.Equal(t, billing.StatusPartiallyPaid, a202.Status)

	st := report.Statistics
	assert.Equal(t, 3, st.TotalApartments)
	assert.Equal(t, 1, st.FullyPaid)
	assert.Equal(t, 1, st.PartiallyPaid)
	assert.Equal(t, 1, st.Unpaid)
	assertMoney(t, 1100000, st.TotalOutstanding)
}

func TestSettlementReport_InternallyConsistent(t *testing.T) {
	// GIVEN: the seeded building plus an overpaying apartment and a payment
	// from an apartment that has no bill this period
	f := newFixture(t)
	f.seedBuilding(t)
	f.apartment(t, "A302", 3, 45, "dao")
	f.charges(t, charge("A302", "2025-03", 100000, 0, 0, 0, 0))
	f.payments(t,
		payment("p4", "A302", "2025-03", 150000),
		payment("p5", "A502", "2025-03", 20000),
	)

	report, err := f.engine.SettlementReport(f.ctx, "2025-03")
	require.NoError(t, err)

	// THEN: every section agrees with the summary
	outstanding := billing.NewMoney(0)
	lineBills := billing.NewMoney(0)
	for _, line := range report.Apartments {
		lineBills = lineBills.Add(line.TotalBill)
		if line.Balance.IsPositive() {
			outstanding = outstanding.Add(line.Balance)
		}
	}
	floorBills := billing.NewMoney(0)
	for _, fl := range report.Floors {
		floorBills = floorBills.Add(fl.TotalBilled)
	}

	total := report.Summary.TotalCharges
	assertMoney(t, 1780000, total)
	assert.True(t, outstanding.Equal(report.Statistics.TotalOutstanding))
	assert.True(t, lineBills.Equal(total))
	assert.True(t, floorBills.Equal(total))
	assert.True(t, report.FeeBreakdown.TotalRevenue.Equal(total))

	// overpayment is not negative outstanding
	assertMoney(t, 1100000, report.Statistics.TotalOutstanding)

	// the payment-only floor is not a settlement floor
	require.Len(t, report.Floors, 2)
	assert.Equal(t, 2, report.Floors[0].Floor)
	assert.Equal(t, 3, report.Floors[1].Floor)
	assert.Equal(t, 4, report.Statistics.TotalApartments)
}

func TestSettlementReport_EmptyPeriod(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)

	report, err := f.engine.SettlementReport(f.ctx, "2031-07")
	require.NoError(t, err)

	assert.Empty(t, report.Apartments)
	assert.Empty(t, report.Floors)
	assertMoney(t, 0, report.Summary.TotalCharges)
	assertMoney(t, 0, report.Statistics.TotalOutstanding)
	assert.Equal(t, "0%", report.Summary.CollectionRate)

	_, err = f.engine.SettlementReport(f.ctx, "")
	assert.ErrorIs(t, err, billing.ErrValidation)
}
