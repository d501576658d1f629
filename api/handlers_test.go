/*
handlers_test.go - HTTP tests for the registry, record and health handlers

Tests run the full router against an in-memory SQLite store.
*/
package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/metrics"
)

func TestApartments_CreateGetList(t *testing.T) {
	// GIVEN: an empty registry
	s := setupTestServer(t)

	// WHEN: registering an apartment
	rec := s.do(t, http.MethodPost, "/api/apartments", CreateApartmentRequest{
		Code:      "A101",
		Area:      area("65.5"),
		OwnerName: "Nguyễn Văn An",
	})

	// THEN: it is stored with the floor derived from its code
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/apartments/A101", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	apt := decodeJSON[billing.Apartment](t, rec)
	assert.Equal(t, "Nguyễn Văn An", apt.OwnerName)
	assert.Equal(t, 1, apt.ResolvedFloor())
	assert.True(t, apt.Area.Equal(area("65.5")))

	rec = s.do(t, http.MethodGet, "/api/apartments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]billing.Apartment](t, rec), 1)
}

func TestApartments_Errors(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/apartments/Z999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Apartment not found", decodeJSON[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/apartments", CreateApartmentRequest{Code: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/apartments", CreateApartmentRequest{Code: "PH", Floor: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "code without floor digits needs an explicit floor")

	rec = s.do(t, http.MethodPost, "/api/apartments", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeJSON[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/apartments", nil)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCharges_CreateAndList(t *testing.T) {
	// GIVEN: a bill whose caller-supplied total disagrees with its parts
	s := setupTestServer(t)
	bad := CreateChargeRequest{
		ApartmentCode: "A101",
		Period:        "3/2025",
		Electric:      vnd(420000),
		Water:         vnd(90000),
		Service:       vnd(458500),
		Vehicles:      vnd(120000),
		PreDebt:       vnd(100000),
		Total:         vndPtr(1088500),
	}

	// WHEN / THEN: rejected with the expected total in the details
	rec := s.do(t, http.MethodPost, "/api/charges", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON[ErrorResponse](t, rec).Details, "1188500")

	// WHEN: the correct total is supplied
	good := bad
	good.Total = vndPtr(1188500)
	rec = s.do(t, http.MethodPost, "/api/charges", good)

	// THEN: the bill is stored under the canonical period
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	charge := decodeJSON[billing.ChargeRecord](t, rec)
	assert.Equal(t, "2025-03", charge.Period)
	assert.True(t, charge.Total.Equal(vnd(1188500)))
	assert.True(t, charge.Billed().Equal(vnd(1088500)))

	rec = s.do(t, http.MethodGet, "/api/charges?apartment=A101&from=2025-01&to=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]billing.ChargeRecord](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/charges?from=2025-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]billing.ChargeRecord](t, rec))

	rec = s.do(t, http.MethodGet, "/api/charges?from=2025-05&to=2025-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCharges_NegativeFeeRejected(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/charges", CreateChargeRequest{
		ApartmentCode: "A101",
		Period:        "2025-03",
		Water:         vnd(-1),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayments_DuplicateKeyIsConflict(t *testing.T) {
	// GIVEN: a recorded payment with an idempotency key
	s := setupTestServer(t)
	req := RecordPaymentRequest{
		ApartmentCode:  "A101",
		Period:         "2025-03-28",
		Amount:         vnd(500000),
		PaidAt:         "2025-03-28T10:00:00Z",
		IdempotencyKey: "receipt-0042",
	}
	rec := s.do(t, http.MethodPost, "/api/payments", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeJSON[billing.PaymentRecord](t, rec)
	assert.Equal(t, "2025-03", p.Period)
	assert.Equal(t, billing.MethodCash, p.Method)

	// WHEN: the same key is posted again
	rec = s.do(t, http.MethodPost, "/api/payments", req)

	// THEN: 409 and only one payment on record
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/payments?apartment=A101", nil)
	assert.Len(t, decodeJSON[[]billing.PaymentRecord](t, rec), 1)
}

func TestPayments_Validation(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/payments", RecordPaymentRequest{ApartmentCode: "A101", Period: "2025-03", Amount: vnd(0)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/payments", RecordPaymentRequest{ApartmentCode: "A101", Period: "March", Amount: vnd(10)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/payments", RecordPaymentRequest{ApartmentCode: "A101", Period: "2025-03", Amount: vnd(10), PaidAt: "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON[ErrorResponse](t, rec).Details, "paid_at")
}

func TestMaintenancePayments(t *testing.T) {
	// GIVEN: a completed maintenance ticket
	s := setupTestServer(t)
	req := MaintenancePaymentRequest{
		TicketID:      "MT-77",
		ApartmentCode: "B1204",
		Cost:          vnd(350000),
		CompletedAt:   "2025-01-31T23:00:00Z",
		Description:   "replace kitchen faucet",
	}

	// WHEN: the workflow posts it
	rec := s.do(t, http.MethodPost, "/api/maintenance/payments", req)

	// THEN: a maintenance payment credited to the month of completion
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeJSON[billing.PaymentRecord](t, rec)
	assert.Equal(t, billing.MethodMaintenance, p.Method)
	assert.Equal(t, "2025-01", p.Period)
	assert.Equal(t, "maintenance:MT-77", p.IdempotencyKey)

	// AND: re-posting the ticket is a conflict
	rec = s.do(t, http.MethodPost, "/api/maintenance/payments", req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/maintenance/payments", MaintenancePaymentRequest{ApartmentCode: "B1204", Cost: vnd(1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&billing.ValidationError{Field: "period"}))
	assert.Equal(t, http.StatusNotFound, statusFor(&billing.NotFoundError{Kind: "apartment", Key: "A1"}))
	assert.Equal(t, http.StatusConflict, statusFor(billing.WrapDataAccess("insert payment", billing.ErrDuplicatePayment)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(billing.WrapDataAccess("query", errors.New("disk I/O error"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestWriteEngineError_HidesServerDetails(t *testing.T) {
	s := setupTestServer(t)

	rec := httptest.NewRecorder()
	s.handler.writeEngineError(rec, "Failed to list charges", billing.WrapDataAccess("query charges", errors.New("password=hunter2")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = httptest.NewRecorder()
	s.handler.writeEngineError(rec, "Invalid", &billing.ValidationError{Field: "period", Value: "x", Message: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON[ErrorResponse](t, rec).Details, "period")
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.store.Close())
	rec = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/charges", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	// GIVEN: a router with metrics enabled
	metrics.Init(nil, nil)
	s := setupTestServer(t)
	router := NewRouter(s.handler, RouterOptions{MetricsEnabled: true})

	// WHEN: a request has been served
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apartments/A101", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	// THEN: it shows up under its route pattern
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `building_ledger_http_requests_total{method="GET",route="/api/apartments/{code}",status="404"}`), body)
}
