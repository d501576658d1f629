// Package export renders settlement reports for the building office:
// XLSX workbooks for accounting and single-file PDFs for owners' notices.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/warp/building-ledger/billing"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

const (
	sheetSummary    = "summary"
	sheetApartments = "apartments"
	sheetFloors     = "floors"
	sheetFees       = "fees"

	moneyFormat = "#,##0"
)

// Filename is the download name for a report in the given format.
func Filename(p billing.Period, format string) string {
	return fmt.Sprintf("settlement-%s.%s", p, format)
}

// cell converts a money value for a spreadsheet cell. Cells are IEEE
// doubles; the exact decimal stays in the ledger.
func cell(m billing.Money) float64 { return m.InexactFloat64() }

// =============================================================================
// XLSX
// =============================================================================

// SettlementXLSX renders the report as a four-sheet workbook.
func SettlementXLSX(r billing.SettlementReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetApartments, sheetFloors, sheetFees} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(moneyFormat)})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	s := r.Summary
	st := r.Statistics
	summary := [][]any{
		{"Settlement Report", string(r.Period)},
		{},
		{"Total charges", cell(s.TotalCharges)},
		{"Total income", cell(s.TotalIncome)},
		{"Carried debt", cell(s.TotalDebt)},
		{"Collection rate", s.CollectionRate},
		{"Charged apartments", s.ChargedApartments},
		{"Paying apartments", s.PayingApartments},
		{},
		{"Apartments", st.TotalApartments},
		{"Fully paid", st.FullyPaid},
		{"Partially paid", st.PartiallyPaid},
		{"Unpaid", st.Unpaid},
		{"Total outstanding", cell(st.TotalOutstanding)},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", "A1", headerStyle); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetSummary, "B3", "B5", moneyStyle); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetSummary, "B14", "B14", moneyStyle); err != nil {
		return nil, err
	}

	apartments := [][]any{{
		"Apartment", "Floor", "Owner", "Electric", "Water", "Service", "Vehicles",
		"Total bill", "Pre-debt", "Amount due", "Paid", "Balance", "Status",
	}}
	for _, l := range r.Apartments {
		apartments = append(apartments, []any{
			l.ApartmentCode, l.Floor, l.OwnerName,
			cell(l.Electric), cell(l.Water), cell(l.Service), cell(l.Vehicles),
			cell(l.TotalBill), cell(l.PreDebt), cell(l.AmountDue), cell(l.TotalPaid), cell(l.Balance),
			l.StatusLabel,
		})
	}
	if err := writeRows(f, sheetApartments, apartments); err != nil {
		return nil, err
	}
	if n := len(r.Apartments); n > 0 {
		if err := f.SetCellStyle(sheetApartments, "D2", "L"+strconv.Itoa(n+1), moneyStyle); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheetApartments, "A1", "M1", headerStyle); err != nil {
		return nil, err
	}

	floors := [][]any{{"Floor", "Apartments", "Electric", "Water", "Service", "Vehicles", "Billed", "Paid", "Unpaid", "Collection rate"}}
	for _, fl := range r.Floors {
		floors = append(floors, []any{
			fl.Floor, fl.ApartmentCount,
			cell(fl.Electric), cell(fl.Water), cell(fl.Service), cell(fl.Vehicles),
			cell(fl.TotalBilled), cell(fl.TotalPaid), cell(fl.Unpaid), fl.CollectionRate,
		})
	}
	if err := writeRows(f, sheetFloors, floors); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetFloors, "A1", "J1", headerStyle); err != nil {
		return nil, err
	}

	fees := [][]any{{"Fee type", "Amount", "Share"}}
	for _, item := range r.FeeBreakdown.Items {
		fees = append(fees, []any{string(item.FeeType), cell(item.Amount), item.Percentage})
	}
	fees = append(fees, []any{"total", cell(r.FeeBreakdown.TotalRevenue), ""})
	if err := writeRows(f, sheetFees, fees); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetFees, "A1", "C1", headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, ref, &values); err != nil {
			return err
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

// =============================================================================
// PDF
// =============================================================================

// SettlementPDF renders the summary and the per-apartment table. Core PDF
// fonts are cp1252 only: statuses use their English codes and owner names
// lose characters outside that code page.
func SettlementPDF(r billing.SettlementReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Settlement Report %s", r.Period))
	pdf.Ln(10)

	s := r.Summary
	st := r.Statistics
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Total charges: %s", s.TotalCharges.StringFixed(0)),
		fmt.Sprintf("Total income: %s", s.TotalIncome.StringFixed(0)),
		fmt.Sprintf("Carried debt: %s", s.TotalDebt.StringFixed(0)),
		fmt.Sprintf("Collection rate: %s", s.CollectionRate),
		fmt.Sprintf("Apartments: %d (fully paid %d, partially paid %d, unpaid %d)",
			st.TotalApartments, st.FullyPaid, st.PartiallyPaid, st.Unpaid),
		fmt.Sprintf("Total outstanding: %s", st.TotalOutstanding.StringFixed(0)),
	} {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(4)

	headers := []string{"Apartment", "Floor", "Owner", "Total bill", "Pre-debt", "Amount due", "Paid", "Balance", "Status"}
	widths := []float64{25, 15, 45, 30, 25, 30, 30, 30, 35}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, l := range r.Apartments {
		cells := []string{
			l.ApartmentCode,
			strconv.Itoa(l.Floor),
			tr(l.OwnerName),
			l.TotalBill.StringFixed(0),
			l.PreDebt.StringFixed(0),
			l.AmountDue.StringFixed(0),
			l.TotalPaid.StringFixed(0),
			l.Balance.StringFixed(0),
			string(l.Status),
		}
		for i, c := range cells {
			align := "R"
			if i == 0 || i == 2 || i == 8 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
