package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
)

func TestRevenueByFloor_FloorEqualsSumOfItsApartments(t *testing.T) {
	// GIVEN: two apartments on floor 2 and one on floor 3, all billed in 2025-03
	f := newFixture(t)
	f.seedBuilding(t)

	// WHEN
	floors, err := f.engine.RevenueByFloor(f.ctx, "2025-03")
	require.NoError(t, err)

	// THEN
	require.Len(t, floors, 2)
	second, third := floors[0], floors[1]
	assert.Equal(t, 2, second.Floor)
	assert.Equal(t, 3, third.Floor)

	assertMoney(t, 500000, second.Electric)
	assertMoney(t, 120000, second.Water)
	assertMoney(t, 300000, second.Service)
	assertMoney(t, 100000, second.Vehicles)
	assertMoney(t, 1020000, second.TotalBilled)
	assertMoney(t, 120000, second.TotalPreDebt)
	assertMoney(t, 700000, second.TotalPaid)
	assertMoney(t, 320000, second.Unpaid)
	assert.Equal(t, "68.63%", second.CollectionRate)
	assert.Equal(t, 2, second.ApartmentCount)

	assertMoney(t, 660000, third.TotalBilled)
	assert.Equal(t, "0.00%", third.CollectionRate)

	// floor rollup, fee rollup and period totals agree exactly
	fees, err := f.engine.FeeBreakdown(f.ctx, "2025-03")
	require.NoError(t, err)
	summary, err := f.engine.PeriodSummary(f.ctx, "2025-03")
	require.NoError(t, err)

	floorSum := second.TotalBilled.Add(third.TotalBilled)
	feeSum := billing.NewMoney(0)
	for _, item := range fees.Items {
		feeSum = feeSum.Add(item.Amount)
	}
	assertMoney(t, 1680000, floorSum)
	assert.True(t, floorSum.Equal(feeSum))
	assert.True(t, floorSum.Equal(fees.TotalRevenue))
	assert.True(t, floorSum.Equal(summary.TotalCharges))
}

func TestRevenueByFloor_RegistryFloorWinsOverCode(t *testing.T) {
	// GIVEN: a penthouse whose code does not encode its floor and an
	// apartment whose registry floor disagrees with its code
	f := newFixture(t)
	f.apartment(t, "PH1", 20, 200, "dung")
	f.apartment(t, "A905", 10, 70, "em")
	f.charges(t,
		charge("PH1", "2025-03", 100, 0, 0, 0, 0),
		charge("A905", "2025-03", 50, 0, 0, 0, 0),
		charge("B701", "2025-03", 10, 0, 0, 0, 0), // not in the registry
	)

	floors, err := f.engine.RevenueByFloor(f.ctx, "2025-03")
	require.NoError(t, err)

	got := map[int]int64{}
	for _, row := range floors {
		got[row.Floor] = row.TotalBilled.IntPart()
	}
	assert.Equal(t, map[int]int64{7: 10, 10: 50, 20: 100}, got)
}

func TestRevenueByFloor_PaymentOnlyFloor(t *testing.T) {
	f := newFixture(t)
	f.payments(t, payment("p1", "A501", "2025-03", 1000))

	floors, err := f.engine.RevenueByFloor(f.ctx, "")
	require.NoError(t, err)

	require.Len(t, floors, 1)
	assert.Equal(t, 5, floors[0].Floor)
	assertMoney(t, 0, floors[0].TotalBilled)
	assertMoney(t, 1000, floors[0].TotalPaid)
	assert.Equal(t, "0%", floors[0].CollectionRate)
	assert.Equal(t, 0, floors[0].ApartmentCount)
}

func TestFeeBreakdown_Percentages(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)

	fees, err := f.engine.FeeBreakdown(f.ctx, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, billing.Period("2025-03"), fees.Period)
	require.Len(t, fees.Items, 4)
	want := []struct {
		fee    billing.FeeType
		amount int64
		pct    string
	}{
		{billing.FeeElectric, 750000, "44.64%"},
		{billing.FeeWater, 180000, "10.71%"},
		{billing.FeeService, 450000, "26.79%"},
		{billing.FeeVehicles, 300000, "17.86%"},
	}
	for i, w := range want {
		assert.Equal(t, w.fee, fees.Items[i].FeeType)
		assertMoney(t, w.amount, fees.Items[i].Amount)
		assert.Equal(t, w.pct, fees.Items[i].Percentage)
	}

	// the RevenueByFeeType name returns the same rollup
	alias, err := f.engine.RevenueByFeeType(f.ctx, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, fees, alias)
}

func TestFeeBreakdown_EmptyPeriodIsAllZeros(t *testing.T) {
	// GIVEN: a building with no bills for 2030-01
	f := newFixture(t)
	f.seedBuilding(t)

	fees, err := f.engine.FeeBreakdown(f.ctx, "2030-01")

	// THEN: zeros, not an error
	require.NoError(t, err)
	assertMoney(t, 0, fees.TotalRevenue)
	require.Len(t, fees.Items, 4)
	for _, item := range fees.Items {
		assertMoney(t, 0, item.Amount)
		assert.Equal(t, "0%", item.Percentage)
	}
}

func TestFeeBreakdown_AllPeriods(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)

	fees, err := f.engine.FeeBreakdown(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, billing.Period(""), fees.Period)
	assertMoney(t, 1680000+370000, fees.TotalRevenue)

	_, err = f.engine.FeeBreakdown(f.ctx, "not-a-period")
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestRevenueByArea(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)
	f.charges(t, charge("Z999", "2025-03", 5000, 0, 0, 0, 0))

	bands, err := f.engine.RevenueByArea(f.ctx, "2025-03")
	require.NoError(t, err)

	labels := make([]string, 0, len(bands))
	for _, b := range bands {
		labels = append(labels, b.Band)
	}
	assert.Equal(t, []string{"50-80", "80-120", ">=120", "unknown"}, labels)

	assertMoney(t, 400000, bands[0].TotalBilled)
	assertMoney(t, 400000, bands[0].TotalPaid)
	assert.Equal(t, "100.00%", bands[0].CollectionRate)
	assert.Equal(t, 1, bands[3].ApartmentCount)
}
