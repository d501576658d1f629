package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/export"
	"github.com/warp/building-ledger/metrics"
)

// =============================================================================
// SETTLEMENT
// =============================================================================

// GetSettlement serves /reports/settlement/{period}. A ".xlsx" or ".pdf"
// suffix on the period selects a file download instead of JSON.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "period")
	format := ""
	for _, f := range []string{export.FormatXLSX, export.FormatPDF} {
		if strings.HasSuffix(raw, "."+f) {
			format = f
			raw = strings.TrimSuffix(raw, "."+f)
			break
		}
	}

	report, err := h.Engine.SettlementReport(r.Context(), raw)
	if err != nil {
		h.writeEngineError(w, "Failed to build settlement report", err)
		return
	}
	if format == "" {
		writeJSON(w, http.StatusOK, report)
		return
	}

	start := time.Now()
	var body []byte
	var contentType string
	switch format {
	case export.FormatXLSX:
		body, err = export.SettlementXLSX(report)
		contentType = export.ContentTypeXLSX
	case export.FormatPDF:
		body, err = export.SettlementPDF(report)
		contentType = export.ContentTypePDF
	}
	metrics.ObserveExport(format, time.Since(start), err)
	if err != nil {
		h.writeEngineError(w, "Failed to render settlement report", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(report.Period, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// =============================================================================
// ROLLUPS (optional ?period=)
// =============================================================================

func (h *Handler) RevenueByFloor(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.RevenueByFloor(r.Context(), r.URL.Query().Get("period"))
	respond(h, w, "Failed to compute revenue by floor", rows, err)
}

func (h *Handler) FinancialsByFloor(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.FinancialsByFloor(r.Context(), r.URL.Query().Get("period"))
	respond(h, w, "Failed to compute floor financials", rows, err)
}

func (h *Handler) FeeBreakdown(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.FeeBreakdown(r.Context(), r.URL.Query().Get("period"))
	respond(h, w, "Failed to compute fee breakdown", b, err)
}

func (h *Handler) RevenueByFeeType(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.RevenueByFeeType(r.Context(), r.URL.Query().Get("period"))
	respond(h, w, "Failed to compute revenue by fee type", b, err)
}

func (h *Handler) RevenueByArea(w http.ResponseWriter, r *http.Request) {
	bands, err := h.Engine.RevenueByArea(r.Context(), r.URL.Query().Get("period"))
	respond(h, w, "Failed to compute revenue by area", bands, err)
}

// =============================================================================
// PERIOD ANALYTICS
// =============================================================================

func (h *Handler) IncomeByApartment(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.IncomeByApartment(r.Context())
	respond(h, w, "Failed to compute income by apartment", rows, err)
}

// AggregateByPeriod takes ?start=&end=; both optional.
func (h *Handler) AggregateByPeriod(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.Engine.AggregateByPeriod(r.Context(), q.Get("start"), q.Get("end"))
	respond(h, w, "Failed to aggregate periods", rows, err)
}

func (h *Handler) CollectionRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.Engine.CollectionRateByPeriod(r.Context(), q.Get("start"), q.Get("end"))
	respond(h, w, "Failed to compute collection rates", rows, err)
}

func (h *Handler) RevenueGrowth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.Engine.RevenueGrowth(r.Context(), q.Get("start"), q.Get("end"))
	respond(h, w, "Failed to compute revenue growth", rows, err)
}

// ComparePeriods takes ?from=&to=; both required.
func (h *Handler) ComparePeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmp, err := h.Engine.ComparePeriods(r.Context(), q.Get("from"), q.Get("to"))
	respond(h, w, "Failed to compare periods", cmp, err)
}

func (h *Handler) PeriodSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.PeriodSummary(r.Context(), chi.URLParam(r, "period"))
	respond(h, w, "Failed to summarize period", s, err)
}

// =============================================================================
// DEBT
// =============================================================================

func (h *Handler) ApartmentsInDebt(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.ApartmentsInDebt(r.Context())
	respond(h, w, "Failed to list debtors", rows, err)
}

func (h *Handler) TotalOutstanding(w http.ResponseWriter, r *http.Request) {
	o, err := h.Engine.TotalOutstanding(r.Context())
	respond(h, w, "Failed to compute outstanding debt", o, err)
}

func (h *Handler) BuildingSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.BuildingSummary(r.Context())
	respond(h, w, "Failed to summarize building", s, err)
}

func (h *Handler) ApartmentSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.ApartmentSummary(r.Context(), chi.URLParam(r, "code"))
	respond(h, w, "Failed to summarize apartment", s, err)
}

func (h *Handler) DebtHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.Engine.DebtHistory(r.Context(), chi.URLParam(r, "code"))
	respond(h, w, "Failed to reconcile debt", hist, err)
}

func (h *Handler) PreDebtDrift(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	entries, err := h.Engine.PreDebtDrift(r.Context(), code)
	respond(h, w, "Failed to compute pre-debt drift", DriftDTO{ApartmentCode: code, Entries: entries}, err)
}

// SuggestPreDebt takes ?period= naming the bill being issued.
func (h *Handler) SuggestPreDebt(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	p, err := billing.NormalizePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.writeEngineError(w, "Invalid period", err)
		return
	}
	amount, err := h.Engine.SuggestPreDebt(r.Context(), code, string(p))
	if err != nil {
		h.writeEngineError(w, "Failed to suggest pre-debt", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestedPreDebtDTO{ApartmentCode: code, Period: string(p), PreDebt: amount})
}

// UnpaidApartments serves the paged per-period unpaid list. Query:
// period, floor, min_debt, max_debt, sort_by, sort_dir, offset, limit.
func (h *Handler) UnpaidApartments(w http.ResponseWriter, r *http.Request) {
	f, err := h.unpaidFilter(r)
	if err != nil {
		h.writeEngineError(w, "Invalid unpaid filter", err)
		return
	}
	res, err := h.Engine.UnpaidApartments(r.Context(), f)
	respond(h, w, "Failed to list unpaid apartments", res, err)
}

func (h *Handler) unpaidFilter(r *http.Request) (billing.UnpaidFilter, error) {
	q := r.URL.Query()
	f := billing.UnpaidFilter{
		Period:  q.Get("period"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
		Limit:   h.DefaultPageSize,
	}
	var err error
	if f.Floor, err = queryInt(r, "floor"); err != nil {
		return f, err
	}
	if f.MinDebt, err = queryMoney(r, "min_debt"); err != nil {
		return f, err
	}
	if f.MaxDebt, err = queryMoney(r, "max_debt"); err != nil {
		return f, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return f, err
	}
	if offset != nil {
		f.Offset = *offset
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return f, err
	}
	if limit != nil {
		if *limit <= 0 {
			return f, &billing.ValidationError{Field: "limit", Message: "must be positive"}
		}
		f.Limit = *limit
	}
	if h.MaxPageSize > 0 && f.Limit > h.MaxPageSize {
		f.Limit = h.MaxPageSize
	}
	return f, nil
}

// respond writes v, or err mapped to its status.
func respond(h *Handler, w http.ResponseWriter, message string, v any, err error) {
	if err != nil {
		h.writeEngineError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
