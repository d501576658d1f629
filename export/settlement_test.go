package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/billing/store"
)

func sampleReport(t *testing.T) billing.SettlementReport {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveApartment(ctx, billing.Apartment{Code: "A201", Floor: 2, OwnerName: "Nguyễn Văn An"}))
	require.NoError(t, mem.SaveApartment(ctx, billing.Apartment{Code: "A301", Floor: 3, OwnerName: "Chi"}))

	engine := billing.NewEngineFromStore(mem)
	for _, in := range []billing.ChargeInput{
		{ApartmentCode: "A201", Period: "2025-03", FeeAmounts: billing.FeeAmounts{
			Electric: decimal.NewFromInt(200000), Water: decimal.NewFromInt(50000), Service: decimal.NewFromInt(150000),
		}},
		{ApartmentCode: "A301", Period: "2025-03", FeeAmounts: billing.FeeAmounts{
			Electric: decimal.NewFromInt(250000), Service: decimal.NewFromInt(150000),
		}},
	} {
		_, err := engine.CreateCharge(ctx, in)
		require.NoError(t, err)
	}
	_, err := engine.RecordPayment(ctx, billing.PaymentInput{ApartmentCode: "A201", Period: "2025-03", Amount: decimal.NewFromInt(400000)})
	require.NoError(t, err)

	r, err := engine.SettlementReport(ctx, "2025-03")
	require.NoError(t, err)
	return r
}

func TestSettlementXLSX(t *testing.T) {
	// GIVEN
	r := sampleReport(t)

	// WHEN
	data, err := SettlementXLSX(r)
	require.NoError(t, err)

	// THEN: the workbook reads back with every section
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"summary", "apartments", "floors", "fees"}, f.GetSheetList())

	period, err := f.GetCellValue("summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03", period)

	rows, err := f.GetRows("apartments")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Apartment", rows[0][0])
	assert.Equal(t, "A201", rows[1][0])
	assert.Equal(t, "Nguyễn Văn An", rows[1][2])
	assert.Equal(t, "Đã thanh toán", rows[1][12])
	assert.Equal(t, "Chưa thanh toán", rows[2][12])

	feeRows, err := f.GetRows("fees")
	require.NoError(t, err)
	require.Len(t, feeRows, 6)
	assert.Equal(t, "total", feeRows[5][0])
}

func TestSettlementXLSX_StylesMoneyAndHeaders(t *testing.T) {
	data, err := SettlementXLSX(sampleReport(t))
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	style := func(sheet, ref string) int {
		t.Helper()
		id, err := f.GetCellStyle(sheet, ref)
		require.NoError(t, err)
		return id
	}

	money := style("summary", "B3")
	header := style("apartments", "A1")
	assert.NotZero(t, money)
	assert.NotZero(t, header)
	assert.NotEqual(t, money, header)

	assert.Equal(t, money, style("summary", "B14"))
	assert.Equal(t, money, style("apartments", "L3"))
	assert.Equal(t, header, style("floors", "J1"))
	assert.Equal(t, header, style("fees", "C1"))
	assert.Zero(t, style("apartments", "A2"))
}

func TestSettlementPDF(t *testing.T) {
	r := sampleReport(t)

	data, err := SettlementPDF(r)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Greater(t, len(data), 500)
}

func TestSettlementExports_EmptyReport(t *testing.T) {
	r := billing.BuildSettlementReport("2030-01", nil, nil, billing.NewRegistry(nil))

	_, err := SettlementXLSX(r)
	assert.NoError(t, err)
	_, err = SettlementPDF(r)
	assert.NoError(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "settlement-2025-03.xlsx", Filename("2025-03", FormatXLSX))
}
