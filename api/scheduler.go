/*
scheduler.go - Periodic pre-debt drift audit

PURPOSE:
  Periodically reconciles every registered apartment and records the
  billing periods whose stored pre_debt disagrees with the reconciled
  prior balance. Nothing is corrected; the run is logged and kept for the
  office to review.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Audits immediately on start, then on every tick
  - Keeps the most recent run in memory for GET /api/audit/drift

CONFIGURATION:
  - CheckInterval: How often to audit (default: 1 hour)
  - Enabled: Whether the auditor is active (default: true)

USAGE:
  auditor := NewDriftAuditor(engine, store)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - billing/ledger.go: DebtHistory, DriftEntries
*/
package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/warp/building-ledger/billing"
)

const (
	AuditCompleted = "completed"
	AuditFailed    = "failed"
)

// DriftAuditRun is the outcome of one audit pass.
type DriftAuditRun struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Status      string     `json:"status"`
	Apartments  int        `json:"apartments"`
	Drifting    []DriftDTO `json:"drifting"`
	Error       string     `json:"error,omitempty"`
}

// DriftAuditor audits every apartment's ledger on a ticker.
type DriftAuditor struct {
	Engine        *billing.Engine
	Registry      billing.ApartmentRepository
	CheckInterval time.Duration
	Enabled       bool
	Logger        *log.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.RWMutex
	lastRun *DriftAuditRun
}

// NewDriftAuditor creates an auditor with a one hour interval.
func NewDriftAuditor(engine *billing.Engine, registry billing.ApartmentRepository) *DriftAuditor {
	return &DriftAuditor{
		Engine:        engine,
		Registry:      registry,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Logger:        log.Default(),
	}
}

// Start begins the audit loop.
func (a *DriftAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		a.Logger.Println("[DriftAudit] Disabled, not starting")
		return
	}
	if a.ticker != nil {
		return
	}

	a.ticker = time.NewTicker(a.CheckInterval)
	a.stop = make(chan struct{})
	a.wg.Add(1)

	go a.run(a.ticker, a.stop)

	a.Logger.Printf("[DriftAudit] Started with check interval: %v", a.CheckInterval)
}

// Stop ends the audit loop and waits for an in-flight pass to finish.
func (a *DriftAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.ticker = nil
		a.Logger.Println("[DriftAudit] Stopped")
	}
}

// run owns the ticker and stop channel of one Start; a later Start never
// shares them.
func (a *DriftAuditor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	a.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			a.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow audits every registered apartment and stores the result as the
// last run.
func (a *DriftAuditor) RunNow(ctx context.Context) DriftAuditRun {
	run := DriftAuditRun{StartedAt: time.Now().UTC(), Drifting: []DriftDTO{}}

	apts, err := a.Registry.ListApartments(ctx)
	if err != nil {
		a.finish(&run, billing.WrapDataAccess("list apartments", err))
		return run
	}
	run.Apartments = len(apts)

	for _, apt := range apts {
		entries, err := a.Engine.PreDebtDrift(ctx, apt.Code)
		if err != nil {
			a.finish(&run, err)
			return run
		}
		if len(entries) == 0 {
			continue
		}
		run.Drifting = append(run.Drifting, DriftDTO{ApartmentCode: apt.Code, Entries: entries})
		for _, e := range entries {
			a.Logger.Printf("[DriftAudit] %s %s: pre_debt=%s expected=%s drift=%s",
				apt.Code, e.Period, e.PreDebt, e.ExpectedPreDebt, e.PreDebtDrift)
		}
	}

	a.finish(&run, nil)
	return run
}

func (a *DriftAuditor) finish(run *DriftAuditRun, err error) {
	run.CompletedAt = time.Now().UTC()
	run.Status = AuditCompleted
	if err != nil {
		run.Status = AuditFailed
		run.Error = err.Error()
		a.Logger.Printf("[DriftAudit] Failed: %v", err)
	} else if len(run.Drifting) > 0 {
		a.Logger.Printf("[DriftAudit] Completed: %d of %d apartments drifting", len(run.Drifting), run.Apartments)
	}

	a.lastMu.Lock()
	a.lastRun = run
	a.lastMu.Unlock()
}

// LastRun returns the most recent audit, or nil before the first one.
func (a *DriftAuditor) LastRun() *DriftAuditRun {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	return a.lastRun
}

// =============================================================================
// HANDLERS
// =============================================================================

// GetDriftAudit returns the last audit run, or 404 before the first.
func (h *Handler) GetDriftAudit(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		writeError(w, http.StatusNotFound, "Drift audit not configured", nil)
		return
	}
	run := h.Auditor.LastRun()
	if run == nil {
		writeError(w, http.StatusNotFound, "No drift audit has run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// TriggerDriftAudit runs an audit synchronously.
func (h *Handler) TriggerDriftAudit(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		writeError(w, http.StatusNotFound, "Drift audit not configured", nil)
		return
	}
	run := h.Auditor.RunNow(r.Context())
	if run.Status == AuditFailed {
		writeError(w, http.StatusInternalServerError, "Drift audit failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
