/*
Package billing provides the building's financial reconciliation engine.

PURPOSE:
  Turns two independently written record streams, charge records ("bills")
  and payment records, into a consistent financial picture of the building:
  per-apartment debt ledgers, per-floor and per-fee-type revenue breakdowns,
  collection-rate analytics and monthly settlement reports.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amount in the smallest currency unit
  - Apartment: registry entry consulted for floor/owner display fields
  - ChargeRecord: amount owed by one apartment for one period
  - PaymentRecord: one payment event credited against (apartment, period)
  - PaymentStatus: fully paid / partially paid / unpaid classification

DESIGN PRINCIPLES:
  1. No stored ledger: every balance is re-derived from source records
  2. Precision: all currency arithmetic uses decimal.Decimal
  3. Pure computation: aggregation functions take records, return results
  4. Fail-fast: a storage error aborts the whole computation

SEE ALSO:
  - period.go: Period key normalization
  - ledger.go: Debt reconciliation (running balance per apartment)
  - settlement.go: Monthly settlement report
  - store.go: Repository interfaces
*/
package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is an exact amount in the smallest currency unit understood by the
// caller (e.g. VND). Never a float.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// NewMoney builds a Money value from an integer amount.
func NewMoney(v int64) Money { return decimal.NewFromInt(v) }

// MustParseMoney parses a decimal string, returning zero on failure.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatPercent renders num/den as a percentage with two decimals.
// A zero denominator yields "0%".
func FormatPercent(num, den Money) string {
	if den.IsZero() {
		return "0%"
	}
	return num.Div(den).Mul(hundred).StringFixed(2) + "%"
}

// =============================================================================
// FEE TYPES
// =============================================================================

type FeeType string

const (
	FeeElectric FeeType = "electric"
	FeeWater    FeeType = "water"
	FeeService  FeeType = "service"
	FeeVehicles FeeType = "vehicles"
)

// FeeTypes lists the fee types in presentation order.
var FeeTypes = []FeeType{FeeElectric, FeeWater, FeeService, FeeVehicles}

// FeeAmounts holds the four fee-type sub-amounts of a charge.
type FeeAmounts struct {
	Electric Money `json:"electric"`
	Water    Money `json:"water"`
	Service  Money `json:"service"`
	Vehicles Money `json:"vehicles"`
}

// Sum is the sum of the four sub-amounts.
func (f FeeAmounts) Sum() Money {
	return f.Electric.Add(f.Water).Add(f.Service).Add(f.Vehicles)
}

func (f FeeAmounts) Add(o FeeAmounts) FeeAmounts {
	return FeeAmounts{
		Electric: f.Electric.Add(o.Electric),
		Water:    f.Water.Add(o.Water),
		Service:  f.Service.Add(o.Service),
		Vehicles: f.Vehicles.Add(o.Vehicles),
	}
}

// Get returns the sub-amount for a fee type.
func (f FeeAmounts) Get(t FeeType) Money {
	switch t {
	case FeeElectric:
		return f.Electric
	case FeeWater:
		return f.Water
	case FeeService:
		return f.Service
	case FeeVehicles:
		return f.Vehicles
	}
	return decimal.Zero
}

func (f FeeAmounts) anyNegative() bool {
	return f.Electric.IsNegative() || f.Water.IsNegative() ||
		f.Service.IsNegative() || f.Vehicles.IsNegative()
}

// =============================================================================
// APARTMENT REGISTRY ENTRY
// =============================================================================

// Apartment is read-only to the engine; the registry owns its lifecycle.
type Apartment struct {
	Code       string `json:"code"`
	Floor      int    `json:"floor"`
	Area       Money  `json:"area"`
	OwnerName  string `json:"owner_name"`
	OwnerEmail string `json:"owner_email"`
}

// ResolvedFloor returns the registry floor, falling back to the floor
// encoded in the apartment code when the registry leaves it unset.
func (a Apartment) ResolvedFloor() int {
	if a.Floor > 0 {
		return a.Floor
	}
	return FloorFromCode(a.Code)
}

// Validate checks a registry entry before it is saved.
func (a Apartment) Validate() error {
	if err := validateApartmentCode(a.Code); err != nil {
		return err
	}
	if a.Floor < 0 {
		return &ValidationError{Field: "floor", Value: strconv.Itoa(a.Floor), Message: "must not be negative"}
	}
	if a.Area.IsNegative() {
		return &ValidationError{Field: "area", Value: a.Area.String(), Message: "must not be negative"}
	}
	if a.ResolvedFloor() == 0 {
		return &ValidationError{Field: "floor", Value: a.Code, Message: "floor is required when the code carries none"}
	}
	return nil
}

// FloorFromCode derives the floor from an apartment code by dropping the
// two trailing unit digits: "A101" -> 1, "B1204" -> 12. Returns 0 when the
// code carries fewer than three digits.
func FloorFromCode(code string) int {
	var digits strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 3 {
		return 0
	}
	floor, err := strconv.Atoi(d[:len(d)-2])
	if err != nil {
		return 0
	}
	return floor
}

// =============================================================================
// CHARGE RECORD ("bill")
// =============================================================================

// ChargeRecord is the amount owed by one apartment for one period.
// At most one exists per (ApartmentCode, Period); writes upsert.
type ChargeRecord struct {
	ID            string `json:"id"`
	ApartmentCode string `json:"apartment_code"`
	Period        string `json:"period"`
	FeeAmounts
	PreDebt   Money     `json:"pre_debt"`
	Total     Money     `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Billed is the sum of the fee sub-amounts, excluding PreDebt so that
// carried debt is not counted twice across periods.
func (c ChargeRecord) Billed() Money { return c.Sum() }

// AmountDue is Billed plus PreDebt, i.e. what Total should hold.
func (c ChargeRecord) AmountDue() Money { return c.Billed().Add(c.PreDebt) }

// =============================================================================
// PAYMENT RECORD
// =============================================================================

const (
	MethodCash        = "cash"
	MethodTransfer    = "transfer"
	MethodMaintenance = "maintenance"
)

// PaymentRecord is one payment event. Append-only.
// Period is the period credited, not necessarily the month of PaidAt.
type PaymentRecord struct {
	ID             string    `json:"id"`
	ApartmentCode  string    `json:"apartment_code"`
	Period         string    `json:"period"`
	Amount         Money     `json:"amount"`
	PaidAt         time.Time `json:"paid_at"`
	Method         string    `json:"method"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Note           string    `json:"note,omitempty"`
}

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	StatusFullyPaid     PaymentStatus = "fully_paid"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
	StatusUnpaid        PaymentStatus = "unpaid"
)

// Label is the operator-facing label shown by the building office.
func (s PaymentStatus) Label() string {
	switch s {
	case StatusFullyPaid:
		return "Đã thanh toán"
	case StatusPartiallyPaid:
		return "Thanh toán một phần"
	default:
		return "Chưa thanh toán"
	}
}

// ClassifyPayment applies: paid >= owed -> fully paid, paid > 0 -> partial,
// otherwise unpaid.
func ClassifyPayment(owed, paid Money) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(owed):
		return StatusFullyPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}
