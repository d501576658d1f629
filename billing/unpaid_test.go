package billing_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
)

func intPtr(v int) *int { return &v }

func moneyPtr(v int64) *billing.Money {
	m := money(v)
	return &m
}

func TestUnpaidApartments_UnpaidSecondPeriod(t *testing.T) {
	// GIVEN: A101 paid January in full and nothing for February
	f := newFixture(t)
	f.charges(t,
		charge("A101", "2025-01", 200000, 50000, 150000, 0, 0),
		charge("A101", "2025-02", 220000, 60000, 150000, 100000, 0),
	)
	f.payments(t, payment("p1", "A101", "2025-01", 400000))

	// WHEN
	res, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{Period: "2025-02"})
	require.NoError(t, err)

	// THEN
	require.Len(t, res.Items, 1)
	row := res.Items[0]
	assert.Equal(t, "A101", row.ApartmentCode)
	assert.Equal(t, billing.Period("2025-02"), row.Period)
	assertMoney(t, 530000, row.UnpaidAmount)
	assert.Equal(t, billing.StatusUnpaid, row.Status)
	assert.Equal(t, "Chưa thanh toán", row.StatusLabel)

	// January was settled and never shows up
	jan, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{Period: "2025-01"})
	require.NoError(t, err)
	assert.Empty(t, jan.Items)
	assert.Equal(t, 0, jan.Summary.TotalUnpaidApartments)
}

func TestUnpaidApartments_PerPeriodSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)

	res, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{})
	require.NoError(t, err)

	// A202 owes its bill plus carried pre_debt, minus what it paid
	require.Len(t, res.Items, 2)
	assert.Equal(t, "A301", res.Items[0].ApartmentCode)
	assertMoney(t, 660000, res.Items[0].UnpaidAmount)
	assert.Equal(t, 3, res.Items[0].Floor)
	assert.Equal(t, "chi", res.Items[0].OwnerName)

	assert.Equal(t, "A202", res.Items[1].ApartmentCode)
	assertMoney(t, 740000, res.Items[1].TotalBill)
	assertMoney(t, 300000, res.Items[1].PaidAmount)
	assertMoney(t, 440000, res.Items[1].UnpaidAmount)
	assert.Equal(t, billing.StatusPartiallyPaid, res.Items[1].Status)
	assert.Equal(t, "Thanh toán một phần", res.Items[1].StatusLabel)

	assert.Equal(t, 2, res.Summary.TotalUnpaidApartments)
	assertMoney(t, 1100000, res.Summary.TotalUnpaidAmount)
	assertMoney(t, 120000, res.Summary.TotalPreDebt)
}

func TestUnpaidApartments_Predicates(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)

	floor2, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{Floor: intPtr(2)})
	require.NoError(t, err)
	require.Len(t, floor2.Items, 1)
	assert.Equal(t, "A202", floor2.Items[0].ApartmentCode)

	band, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{
		MinDebt: moneyPtr(500000),
		MaxDebt: moneyPtr(700000),
	})
	require.NoError(t, err)
	require.Len(t, band.Items, 1)
	assert.Equal(t, "A301", band.Items[0].ApartmentCode)

	// bounds are inclusive
	exact, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{
		MinDebt: moneyPtr(440000),
		MaxDebt: moneyPtr(440000),
	})
	require.NoError(t, err)
	require.Len(t, exact.Items, 1)
	assert.Equal(t, "A202", exact.Items[0].ApartmentCode)
}

func TestUnpaidApartments_Sorting(t *testing.T) {
	f := newFixture(t)
	f.seedBuilding(t)

	asc, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{SortBy: billing.SortByUnpaid, SortDir: "ASC"})
	require.NoError(t, err)
	assert.Equal(t, "A202", asc.Items[0].ApartmentCode)

	byCode, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{SortBy: billing.SortByApartment, SortDir: billing.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, "A202", byCode.Items[0].ApartmentCode)
	assert.Equal(t, "A301", byCode.Items[1].ApartmentCode)

	byFloor, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{SortBy: billing.SortByFloor})
	require.NoError(t, err)
	assert.Equal(t, 3, byFloor.Items[0].Floor)
}

func TestUnpaidApartments_PagesAreContiguousAndDisjoint(t *testing.T) {
	// GIVEN: 11 unpaid apartments, several tied on the sort key
	f := newFixture(t)
	for i := 0; i < 11; i++ {
		amount := int64(100000 * (1 + i%3))
		f.charges(t, charge(fmt.Sprintf("A%d01", i+1), "2025-03", amount, 0, 0, 0, 0))
	}

	all, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{Period: "2025-03"})
	require.NoError(t, err)
	require.Len(t, all.Items, 11)

	// WHEN: paging through with limit 4
	var paged []billing.UnpaidApartment
	for offset := 0; offset < 12; offset += 4 {
		page, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{Period: "2025-03", Offset: offset, Limit: 4})
		require.NoError(t, err)

		// THEN: the summary always covers every matching row
		assert.Equal(t, 11, page.Summary.TotalUnpaidApartments)
		assert.True(t, all.Summary.TotalUnpaidAmount.Equal(page.Summary.TotalUnpaidAmount))
		assert.Equal(t, offset, page.Offset)
		assert.Equal(t, 4, page.Limit)
		paged = append(paged, page.Items...)
	}

	require.Len(t, paged, 11)
	seen := map[string]bool{}
	for i, row := range paged {
		assert.Equal(t, all.Items[i].ApartmentCode, row.ApartmentCode)
		assert.False(t, seen[row.ApartmentCode], "duplicate %s", row.ApartmentCode)
		seen[row.ApartmentCode] = true
	}

	past, err := f.engine.UnpaidApartments(f.ctx, billing.UnpaidFilter{Offset: 50, Limit: 4})
	require.NoError(t, err)
	assert.Empty(t, past.Items)
	assert.Equal(t, 11, past.Summary.TotalUnpaidApartments)
}

func TestUnpaidApartments_InvalidFilter(t *testing.T) {
	f := newFixture(t)

	cases := map[string]billing.UnpaidFilter{
		"sort key":  {SortBy: "owner_phone"},
		"sort dir":  {SortDir: "sideways"},
		"offset":    {Offset: -1},
		"min > max": {MinDebt: moneyPtr(10), MaxDebt: moneyPtr(5)},
		"period":    {Period: "last month"},
	}
	for name, filter := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.UnpaidApartments(f.ctx, filter)
			require.Error(t, err)
			assert.ErrorIs(t, err, billing.ErrValidation)
		})
	}
}
