/*
handlers.go - HTTP API handlers for the building ledger

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine. Handlers hold no
  financial logic of their own.

ENDPOINTS:
  Registry:
    GET    /api/apartments             List apartments
    POST   /api/apartments             Register or update an apartment
    GET    /api/apartments/{code}      Get one apartment

  Records:
    POST   /api/charges                Issue (upsert) a bill
    GET    /api/charges                ?apartment=&from=&to=
    POST   /api/payments               Record a payment
    GET    /api/payments               ?apartment=&from=&to=
    POST   /api/maintenance/payments   Post a completed maintenance ticket

  Reports: see reports.go

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Apartment not found
  - 409: Duplicate payment (idempotency key reuse)
  - 500: Data access and internal errors

SECURITY NOTE:
  No authentication or authorization. Put the service behind the building
  office's gateway.

SEE ALSO:
  - dto.go: Request data structures
  - reports.go: Read-only report handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/building-ledger/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *billing.Engine
	Store  billing.RecordStore

	// Unpaid-apartment pagination window.
	DefaultPageSize int
	MaxPageSize     int

	Logger *log.Logger

	// Optional; serves /api/audit/drift when set.
	Auditor *DriftAuditor

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler over the store. The engine must read from
// the same store.
func NewHandler(engine *billing.Engine, store billing.RecordStore) *Handler {
	return &Handler{
		Engine:          engine,
		Store:           store,
		DefaultPageSize: 20,
		MaxPageSize:     200,
		Logger:          log.Default(),
	}
}

// =============================================================================
// REGISTRY HANDLERS
// =============================================================================

// ListApartments returns the registry ordered by code.
func (h *Handler) ListApartments(w http.ResponseWriter, r *http.Request) {
	apts, err := h.Store.ListApartments(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to list apartments", billing.WrapDataAccess("list apartments", err))
		return
	}
	if apts == nil {
		apts = []billing.Apartment{}
	}
	writeJSON(w, http.StatusOK, apts)
}

// GetApartment returns a single registry entry.
func (h *Handler) GetApartment(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	apt, err := h.Store.GetApartment(r.Context(), code)
	if err != nil {
		h.writeEngineError(w, "Failed to get apartment", billing.WrapDataAccess("get apartment", err))
		return
	}
	if apt == nil {
		writeError(w, http.StatusNotFound, "Apartment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, apt)
}

// CreateApartment registers an apartment, replacing an existing entry with
// the same code.
func (h *Handler) CreateApartment(w http.ResponseWriter, r *http.Request) {
	var req CreateApartmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	apt := req.toApartment()
	if err := apt.Validate(); err != nil {
		h.writeEngineError(w, "Invalid apartment", err)
		return
	}
	if err := h.Store.SaveApartment(r.Context(), apt); err != nil {
		h.writeEngineError(w, "Failed to save apartment", billing.WrapDataAccess("save apartment", err))
		return
	}
	writeJSON(w, http.StatusCreated, apt)
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// CreateCharge issues the bill for (apartment, period). Re-issuing replaces
// the fee fields.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	charge, err := h.Engine.CreateCharge(r.Context(), req.toInput())
	if err != nil {
		h.writeEngineError(w, "Failed to create charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, charge)
}

// ListCharges returns charges filtered by ?apartment=&from=&to=.
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := billing.NewPeriodRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeEngineError(w, "Invalid period range", err)
		return
	}

	charges, err := h.Engine.ListCharges(r.Context(), q.Get("apartment"), rng)
	if err != nil {
		h.writeEngineError(w, "Failed to list charges", err)
		return
	}
	if charges == nil {
		charges = []billing.ChargeRecord{}
	}
	writeJSON(w, http.StatusOK, charges)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment appends a payment. A reused idempotency key is a 409.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	paidAt, err := parseOptionalTime("paid_at", req.PaidAt)
	if err != nil {
		h.writeEngineError(w, "Invalid payment", err)
		return
	}

	payment, err := h.Engine.RecordPayment(r.Context(), billing.PaymentInput{
		ApartmentCode:  req.ApartmentCode,
		Period:         req.Period,
		Amount:         req.Amount,
		PaidAt:         paidAt,
		Method:         req.Method,
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Note,
	})
	if err != nil {
		h.writeEngineError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// ListPayments returns payments filtered by ?apartment=&from=&to=.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := billing.NewPeriodRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeEngineError(w, "Invalid period range", err)
		return
	}

	payments, err := h.Engine.ListPayments(r.Context(), q.Get("apartment"), rng)
	if err != nil {
		h.writeEngineError(w, "Failed to list payments", err)
		return
	}
	if payments == nil {
		payments = []billing.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// PostMaintenancePayment records the payment for a completed maintenance
// ticket. Posting the same ticket twice is a 409.
func (h *Handler) PostMaintenancePayment(w http.ResponseWriter, r *http.Request) {
	var req MaintenancePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	completedAt, err := parseOptionalTime("completed_at", req.CompletedAt)
	if err != nil {
		h.writeEngineError(w, "Invalid maintenance payment", err)
		return
	}

	payment, err := h.Engine.PostMaintenancePayment(r.Context(), billing.MaintenanceCompletion{
		TicketID:      req.TicketID,
		ApartmentCode: req.ApartmentCode,
		Cost:          req.Cost,
		CompletedAt:   completedAt,
		Description:   req.Description,
	})
	if err != nil {
		h.writeEngineError(w, "Failed to post maintenance payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	switch {
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrDuplicatePayment):
		return http.StatusConflict
	case billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with the status it maps to. Server-side
// failures are logged and their details withheld from the client.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		if h.Logger != nil {
			h.Logger.Printf("%s: %v", message, err)
		}
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &billing.ValidationError{Field: name, Value: raw, Message: "expected an integer"}
	}
	return &v, nil
}

// queryMoney parses an optional decimal query parameter.
func queryMoney(r *http.Request, name string) (*billing.Money, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, &billing.ValidationError{Field: name, Value: raw, Message: "expected a decimal amount"}
	}
	return &v, nil
}
