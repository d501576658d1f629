/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters by route pattern
  5. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS:
  /api/apartments/*     Apartment registry
  /api/charges          Bills
  /api/payments         Payments
  /api/maintenance/*    Maintenance workflow write interface
  /api/reports/*        Read-only reports and exports
  /api/audit/*          Pre-debt drift audit
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint
  /healthz              Store health

SEE ALSO:
  - handlers.go, reports.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/warp/building-ledger/metrics"
)

func init() {
	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	AllowedOrigins []string
	MetricsEnabled bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if opts.MetricsEnabled {
		r.Use(metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Registry routes
		r.Route("/apartments", func(r chi.Router) {
			r.Get("/", h.ListApartments)
			r.Post("/", h.CreateApartment)
			r.Get("/{code}", h.GetApartment)
		})

		// Record routes
		r.Route("/charges", func(r chi.Router) {
			r.Get("/", h.ListCharges)
			r.Post("/", h.CreateCharge)
		})
		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.RecordPayment)
		})
		r.Post("/maintenance/payments", h.PostMaintenancePayment)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/settlement/{period}", h.GetSettlement)

			r.Get("/by-floor", h.RevenueByFloor)
			r.Get("/financials-by-floor", h.FinancialsByFloor)
			r.Get("/fee-breakdown", h.FeeBreakdown)
			r.Get("/revenue-by-fee-type", h.RevenueByFeeType)
			r.Get("/revenue-by-area", h.RevenueByArea)

			r.Get("/income-by-apartment", h.IncomeByApartment)
			r.Get("/aggregate", h.AggregateByPeriod)
			r.Get("/collection-rates", h.CollectionRates)
			r.Get("/growth", h.RevenueGrowth)
			r.Get("/compare", h.ComparePeriods)
			r.Get("/period-summary/{period}", h.PeriodSummary)

			r.Get("/debtors", h.ApartmentsInDebt)
			r.Get("/outstanding", h.TotalOutstanding)
			r.Get("/building-summary", h.BuildingSummary)
			r.Get("/unpaid", h.UnpaidApartments)

			r.Route("/apartments/{code}", func(r chi.Router) {
				r.Get("/summary", h.ApartmentSummary)
				r.Get("/debt-history", h.DebtHistory)
				r.Get("/drift", h.PreDebtDrift)
				r.Get("/suggest-pre-debt", h.SuggestPreDebt)
			})
		})

		// Audit routes
		r.Route("/audit", func(r chi.Router) {
			r.Get("/drift", h.GetDriftAudit)
			r.Post("/drift", h.TriggerDriftAudit)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
