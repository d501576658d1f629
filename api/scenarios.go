/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built buildings that populate the store with realistic
	billing data for demos and integration tests. Each scenario registers
	apartments, issues bills and records payments through the engine, so
	every record passes the same validation as operator input.

AVAILABLE SCENARIOS:

	small-building:   Eight apartments on four floors, three billing months,
	                  pre_debt carried forward correctly
	debt-carryover:   Same building, but the operator stopped carrying
	                  pre_debt forward; shows ledger drift and an overpayment
	legacy-periods:   Records written by older tools with non-canonical
	                  period strings; reports must still line up
	maintenance:      Payments posted by the maintenance workflow

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Register apartments
 3. Issue bills month by month; pre_debt comes from SuggestPreDebt
 4. Record payments according to each apartment's habit

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-building"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - cmd/server/main.go: seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/building-ledger/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-building",
		Name:        "Small Building",
		Description: "Eight apartments, three months, pre-debt carried forward",
	},
	{
		ID:          "debt-carryover",
		Name:        "Debt Carry-over Drift",
		Description: "Bills issued without carrying pre-debt; shows drift and overpayment",
	},
	{
		ID:          "legacy-periods",
		Name:        "Legacy Periods",
		Description: "Records with non-canonical period strings from older tools",
	},
	{
		ID:          "maintenance",
		Name:        "Maintenance Payments",
		Description: "Payments posted by completed maintenance tickets",
	},
}

// Scenarios returns the available scenario descriptions.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = ""

	if err := SeedScenario(r.Context(), h.Engine, h.Store, req.ScenarioID); err != nil {
		h.writeEngineError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeEngineError(w, "Failed to reset database", billing.WrapDataAccess("reset", err))
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SeedScenario resets store and loads the scenario with the given ID.
// engine must read and write through store.
func SeedScenario(ctx context.Context, engine *billing.Engine, store billing.RecordStore, id string) error {
	var load func(context.Context, seeder) error
	switch id {
	case "small-building":
		load = loadSmallBuilding
	case "debt-carryover":
		load = loadDebtCarryover
	case "legacy-periods":
		load = loadLegacyPeriods
	case "maintenance":
		load = loadMaintenance
	default:
		return &billing.ValidationError{Field: "scenario_id", Value: id, Message: "unknown scenario"}
	}

	if err := store.Reset(ctx); err != nil {
		return billing.WrapDataAccess("reset", err)
	}
	if err := load(ctx, seeder{engine: engine, store: store}); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// BUILDING FIXTURE
// =============================================================================

type payHabit int

const (
	payFull payHabit = iota // pays the full amount due every month
	payHalf                 // pays half, rounded to the dong
	payNone                 // never pays
	payOver                 // pays 100,000 more than due
)

type resident struct {
	apt   billing.Apartment
	fees  billing.FeeAmounts // first month; electric rises 10,000 a month
	habit payHabit
}

var scenarioMonths = []string{"2025-01", "2025-02", "2025-03"}

func vnd(v int64) billing.Money { return decimal.NewFromInt(v) }

func area(s string) billing.Money { return decimal.RequireFromString(s) }

// serviceFee is the building's 7,000 per m2 management fee.
func serviceFee(a billing.Money) billing.Money { return a.Mul(vnd(7000)).Round(0) }

func buildingResidents() []resident {
	type row struct {
		code, owner, email, m2 string
		electric, water        int64
		vehicles               int64
		habit                  payHabit
	}
	rows := []row{
		{"A101", "Nguyễn Văn An", "an.nguyen@example.com", "65.5", 420000, 90000, 120000, payFull},
		{"A102", "Trần Thị Bình", "binh.tran@example.com", "48", 150000, 60000, 0, payNone},
		{"A201", "Lê Văn Cường", "cuong.le@example.com", "82", 510000, 110000, 1200000, payFull},
		{"A202", "Phạm Thị Dung", "dung.pham@example.com", "75", 380000, 95000, 120000, payHalf},
		{"A301", "Hoàng Văn Em", "em.hoang@example.com", "110", 640000, 140000, 1320000, payFull},
		{"A302", "Vũ Thị Phương", "phuong.vu@example.com", "125", 700000, 150000, 240000, payHalf},
		{"A401", "Đặng Văn Giang", "giang.dang@example.com", "95", 460000, 120000, 120000, payNone},
		{"A402", "Bùi Thị Hoa", "hoa.bui@example.com", "55", 210000, 70000, 0, payFull},
	}
	out := make([]resident, len(rows))
	for i, r := range rows {
		a := area(r.m2)
		out[i] = resident{
			apt: billing.Apartment{
				Code:       r.code,
				Floor:      billing.FloorFromCode(r.code),
				Area:       a,
				OwnerName:  r.owner,
				OwnerEmail: r.email,
			},
			fees: billing.FeeAmounts{
				Electric: vnd(r.electric),
				Water:    vnd(r.water),
				Service:  serviceFee(a),
				Vehicles: vnd(r.vehicles),
			},
			habit: r.habit,
		}
	}
	return out
}

func (r resident) feesFor(month int) billing.FeeAmounts {
	f := r.fees
	f.Electric = f.Electric.Add(vnd(int64(month) * 10000))
	return f
}

// =============================================================================
// SEEDER
// =============================================================================

type seeder struct {
	engine *billing.Engine
	store  billing.RecordStore
}

func (s seeder) register(ctx context.Context, residents []resident) error {
	for _, r := range residents {
		if err := r.apt.Validate(); err != nil {
			return err
		}
		if err := s.store.SaveApartment(ctx, r.apt); err != nil {
			return billing.WrapDataAccess("save apartment", err)
		}
	}
	return nil
}

// bill issues the month's charge. When carry is set, pre_debt is the
// reconciled prior balance; otherwise it is left at zero.
func (s seeder) bill(ctx context.Context, r resident, month int, carry bool) (billing.ChargeRecord, error) {
	period := scenarioMonths[month]
	preDebt := decimal.Zero
	if carry {
		var err error
		if preDebt, err = s.engine.SuggestPreDebt(ctx, r.apt.Code, period); err != nil {
			return billing.ChargeRecord{}, err
		}
	}
	return s.engine.CreateCharge(ctx, billing.ChargeInput{
		ApartmentCode: r.apt.Code,
		Period:        period,
		FeeAmounts:    r.feesFor(month),
		PreDebt:       preDebt,
	})
}

// pay records the resident's payment against the month's bill. The amount
// is measured against the month's fees, not the carried pre_debt.
func (s seeder) pay(ctx context.Context, r resident, month int, c billing.ChargeRecord) error {
	var amount billing.Money
	switch r.habit {
	case payFull:
		amount = c.Billed()
	case payHalf:
		amount = c.Billed().Div(vnd(2)).Round(0)
	case payOver:
		amount = c.Billed().Add(vnd(100000))
	default:
		return nil
	}
	paidAt := time.Date(2025, time.Month(month+1), 25, 9, 30, 0, 0, time.UTC)
	_, err := s.engine.RecordPayment(ctx, billing.PaymentInput{
		ApartmentCode:  r.apt.Code,
		Period:         c.Period,
		Amount:         amount,
		PaidAt:         paidAt,
		Method:         billing.MethodTransfer,
		IdempotencyKey: fmt.Sprintf("seed:%s:%s", r.apt.Code, c.Period),
	})
	return err
}

func (s seeder) run(ctx context.Context, residents []resident, carry bool) error {
	if err := s.register(ctx, residents); err != nil {
		return err
	}
	for month := range scenarioMonths {
		for _, r := range residents {
			c, err := s.bill(ctx, r, month, carry)
			if err != nil {
				return err
			}
			if err := s.pay(ctx, r, month, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadSmallBuilding(ctx context.Context, s seeder) error {
	return s.run(ctx, buildingResidents(), true)
}

// loadDebtCarryover bills every month with pre_debt left at zero, so each
// debtor's ledger drifts, and turns A101 into an overpayer.
func loadDebtCarryover(ctx context.Context, s seeder) error {
	residents := buildingResidents()
	for i := range residents {
		if residents[i].apt.Code == "A101" {
			residents[i].habit = payOver
		}
	}
	return s.run(ctx, residents, false)
}

// loadLegacyPeriods writes records straight to the store the way the old
// spreadsheet importer did: month/year charge periods and payment periods
// carrying the full payment timestamp.
func loadLegacyPeriods(ctx context.Context, s seeder) error {
	residents := buildingResidents()[:4]
	if err := s.register(ctx, residents); err != nil {
		return err
	}

	legacyCharge := []string{"1/2025", "2025-2", "03/2025"}
	legacyPayment := []string{"2025-01-28", "2025-02-27 18:45:00", "2025-03-29T08:00:00"}
	created := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)

	for month := range scenarioMonths {
		for _, r := range residents {
			fees := r.feesFor(month)
			c := billing.ChargeRecord{
				ID:            fmt.Sprintf("legacy-bill-%s-%d", r.apt.Code, month+1),
				ApartmentCode: r.apt.Code,
				Period:        legacyCharge[month],
				FeeAmounts:    fees,
				Total:         fees.Sum(),
				CreatedAt:     created.AddDate(0, month, 0),
				UpdatedAt:     created.AddDate(0, month, 0),
			}
			if _, err := s.store.UpsertCharge(ctx, c); err != nil {
				return billing.WrapDataAccess("upsert charge", err)
			}
			if r.habit == payNone {
				continue
			}
			p := billing.PaymentRecord{
				ID:            fmt.Sprintf("legacy-pay-%s-%d", r.apt.Code, month+1),
				ApartmentCode: r.apt.Code,
				Period:        legacyPayment[month],
				Amount:        fees.Sum(),
				PaidAt:        time.Date(2025, time.Month(month+1), 28, 10, 0, 0, 0, time.UTC),
				Method:        billing.MethodCash,
			}
			if err := s.store.InsertPayment(ctx, p); err != nil {
				return billing.WrapDataAccess("insert payment", err)
			}
		}
	}
	return nil
}

// loadMaintenance bills the building for January and posts three completed
// maintenance tickets as payments.
func loadMaintenance(ctx context.Context, s seeder) error {
	residents := buildingResidents()
	if err := s.register(ctx, residents); err != nil {
		return err
	}
	for _, r := range residents {
		if _, err := s.bill(ctx, r, 0, false); err != nil {
			return err
		}
	}

	tickets := []billing.MaintenanceCompletion{
		{TicketID: "MT-1001", ApartmentCode: "A102", Cost: vnd(350000), Description: "replace water heater valve"},
		{TicketID: "MT-1002", ApartmentCode: "A202", Cost: vnd(180000), Description: "repair balcony door lock"},
		{TicketID: "MT-1003", ApartmentCode: "A401", Cost: vnd(520000), Description: "air conditioner service"},
	}
	for i, t := range tickets {
		t.CompletedAt = time.Date(2025, 1, 10+i*5, 15, 0, 0, 0, time.UTC)
		if _, err := s.engine.PostMaintenancePayment(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
