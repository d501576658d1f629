/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON bodies accepted by the write endpoints. Report
  endpoints return the billing result types directly; their json tags are
  the API contract.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types that have no billing counterpart

MONEY:
  Amounts decode from either a JSON number or a quoted string and encode
  as bare numbers (see init in server.go).

VALIDATION:
  Validation is done by the billing engine, not in DTOs. DTOs are pure data
  carriers; handlers only parse timestamps.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/records.go: ChargeInput, PaymentInput, MaintenanceCompletion
*/
package api

import (
	"time"

	"github.com/warp/building-ledger/billing"
)

// =============================================================================
// REGISTRY
// =============================================================================

// CreateApartmentRequest registers or updates an apartment.
type CreateApartmentRequest struct {
	Code       string        `json:"code"`
	Floor      int           `json:"floor"`
	Area       billing.Money `json:"area"`
	OwnerName  string        `json:"owner_name"`
	OwnerEmail string        `json:"owner_email"`
}

func (req CreateApartmentRequest) toApartment() billing.Apartment {
	return billing.Apartment{
		Code:       req.Code,
		Floor:      req.Floor,
		Area:       req.Area,
		OwnerName:  req.OwnerName,
		OwnerEmail: req.OwnerEmail,
	}
}

// =============================================================================
// CHARGES AND PAYMENTS
// =============================================================================

// CreateChargeRequest issues (or re-issues) the bill for one period.
type CreateChargeRequest struct {
	ApartmentCode string         `json:"apartment_code"`
	Period        string         `json:"period"`
	Electric      billing.Money  `json:"electric"`
	Water         billing.Money  `json:"water"`
	Service       billing.Money  `json:"service"`
	Vehicles      billing.Money  `json:"vehicles"`
	PreDebt       billing.Money  `json:"pre_debt"`
	Total         *billing.Money `json:"total,omitempty"`
}

func (req CreateChargeRequest) toInput() billing.ChargeInput {
	return billing.ChargeInput{
		ApartmentCode: req.ApartmentCode,
		Period:        req.Period,
		FeeAmounts: billing.FeeAmounts{
			Electric: req.Electric,
			Water:    req.Water,
			Service:  req.Service,
			Vehicles: req.Vehicles,
		},
		PreDebt: req.PreDebt,
		Total:   req.Total,
	}
}

// RecordPaymentRequest is a cashier's payment. PaidAt is RFC3339 and
// defaults to now.
type RecordPaymentRequest struct {
	ApartmentCode  string        `json:"apartment_code"`
	Period         string        `json:"period"`
	Amount         billing.Money `json:"amount"`
	PaidAt         string        `json:"paid_at,omitempty"`
	Method         string        `json:"method,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Note           string        `json:"note,omitempty"`
}

// MaintenancePaymentRequest is posted by the maintenance workflow when a
// ticket is completed.
type MaintenancePaymentRequest struct {
	TicketID      string        `json:"ticket_id"`
	ApartmentCode string        `json:"apartment_code"`
	Cost          billing.Money `json:"cost"`
	CompletedAt   string        `json:"completed_at,omitempty"`
	Description   string        `json:"description,omitempty"`
}

// parseOptionalTime accepts an empty string (zero time) or RFC3339.
func parseOptionalTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &billing.ValidationError{Field: field, Value: value, Message: "expected RFC3339 timestamp"}
	}
	return t, nil
}

// =============================================================================
// REPORTS
// =============================================================================

// SuggestedPreDebtDTO is the advisory carry-over for the next bill.
type SuggestedPreDebtDTO struct {
	ApartmentCode string        `json:"apartment_code"`
	Period        string        `json:"period"`
	PreDebt       billing.Money `json:"pre_debt"`
}

// DriftDTO lists the diverging ledger periods of one apartment.
type DriftDTO struct {
	ApartmentCode string                `json:"apartment_code"`
	Entries       []billing.LedgerEntry `json:"entries"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
