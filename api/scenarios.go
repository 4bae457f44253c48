/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a calendar slice,
	clients, enrollments and obligations that demonstrate specific features.

AVAILABLE SCENARIOS:

	quarter-campaign: A filing window in flight, obligations freshly generated
	overdue-backlog:  A closed window with unfiled obligations, swept to OVERDUE
	year-end-close:   Completed quarters, annual summaries, calendar cloned

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the calendar around the handler clock
 3. Seed clients and enrollments
 4. Run the generator (and sweeper where the scenario calls for it)

Windows are built relative to h.Now() so a loaded scenario always shows
live data, whatever the actual date.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "quarter-campaign"}

ADDING NEW SCENARIOS:
 1. Add to the 'scenarios' slice with ID, name, description
 2. Create a loader: loadXxxScenario(ctx, now)
 3. Add a case to the LoadScenario switch

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: The regular API surface these scenarios feed
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestora/fiscal-engine/fiscal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "quarter-campaign",
		Name:        "Quarterly Campaign",
		Description: "An open VAT/withholding window with obligations generated for every enrolled client",
		Category:    "generation",
	},
	{
		ID:          "overdue-backlog",
		Name:        "Overdue Backlog",
		Description: "A closed window left unfiled, swept to OVERDUE, alongside the current open window",
		Category:    "sweep",
	},
	{
		ID:          "year-end-close",
		Name:        "Year-End Close",
		Description: "Completed quarters with amounts, annual summaries pending, calendar cloned into next year",
		Category:    "calendar",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	now := h.Now()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "quarter-campaign":
		err = h.loadQuarterCampaignScenario(ctx, now)
	case "overdue-backlog":
		err = h.loadOverdueBacklogScenario(ctx, now)
	case "year-end-close":
		err = h.loadYearEndCloseScenario(ctx, now)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info().Str("scenario", req.ScenarioID).Msg("demo scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadQuarterCampaignScenario seeds a filing window that contains now, a
// small client portfolio, and generates their obligations.
func (h *Handler) loadQuarterCampaignScenario(ctx context.Context, now time.Time) error {
	start := now.AddDate(0, 0, -10)
	end := fiscal.EndOfDay(now.AddDate(0, 0, 10))
	label := quarterLabel(now)

	for _, model := range []string{"303", "111", "130"} {
		if err := h.seedPeriod(ctx, now, model, label, now.Year(), start, end); err != nil {
			return err
		}
	}
	if err := h.seedPortfolio(ctx, now); err != nil {
		return err
	}

	_, err := h.Generator.GenerateForAllOpenPeriods(ctx, now)
	return err
}

// loadOverdueBacklogScenario seeds a closed window whose obligations were
// never filed, sweeps them, and leaves the current window open with fresh
// PENDING rows.
func (h *Handler) loadOverdueBacklogScenario(ctx context.Context, now time.Time) error {
	closedStart := now.AddDate(0, 0, -100)
	closedEnd := fiscal.EndOfDay(now.AddDate(0, 0, -80))
	closedLabel := quarterLabel(closedStart)
	if err := h.seedPeriod(ctx, now, "303", closedLabel, closedStart.Year(), closedStart, closedEnd); err != nil {
		return err
	}

	openStart := now.AddDate(0, 0, -10)
	openEnd := fiscal.EndOfDay(now.AddDate(0, 0, 10))
	if err := h.seedPeriod(ctx, now, "303", quarterLabel(now), now.Year(), openStart, openEnd); err != nil {
		return err
	}
	if err := h.seedPortfolio(ctx, now); err != nil {
		return err
	}

	// The closed window predates the engine: materialize its obligations by
	// hand, settle one, and leave the other for the sweeper.
	closedPeriodID := periodSeedID("303", closedLabel, closedStart.Year())
	stale := fiscal.Obligation{
		ID:          "obl-backlog-juan",
		ClientID:    "client-juan",
		ModelCode:   "303",
		PeriodID:    fiscal.PeriodID(closedPeriodID),
		PeriodLabel: closedLabel,
		Year:        closedStart.Year(),
		DueDate:     closedEnd,
		Status:      fiscal.ObligationPending,
		CreatedAt:   closedStart,
		UpdatedAt:   closedStart,
	}
	settled := stale
	settled.ID = "obl-backlog-acme"
	settled.ClientID = "client-acme"
	for _, o := range []fiscal.Obligation{stale, settled} {
		if _, err := h.Store.InsertIfAbsent(ctx, o); err != nil {
			return err
		}
	}
	amount := decimal.NewFromFloat(3420.75)
	if _, err := h.Store.CompleteObligation(ctx, settled.ID, "laura", &amount, closedEnd.AddDate(0, 0, -2)); err != nil {
		return err
	}

	if _, err := h.Sweeper.Sweep(ctx, now); err != nil {
		return err
	}
	_, err := h.Generator.GenerateForAllOpenPeriods(ctx, now)
	return err
}

// loadYearEndCloseScenario seeds a full quarterly VAT calendar, completes
// the past quarters with amounts, adds the annual summaries, and clones
// the calendar into the next year.
func (h *Handler) loadYearEndCloseScenario(ctx context.Context, now time.Time) error {
	year := now.Year()

	quarters := []struct {
		label      string
		start, end time.Time
	}{
		{"1T", fiscal.Date(year, time.April, 1), fiscal.EndOfDay(fiscal.Date(year, time.April, 20))},
		{"2T", fiscal.Date(year, time.July, 1), fiscal.EndOfDay(fiscal.Date(year, time.July, 20))},
		{"3T", fiscal.Date(year, time.October, 1), fiscal.EndOfDay(fiscal.Date(year, time.October, 20))},
		{"4T", fiscal.Date(year+1, time.January, 1), fiscal.EndOfDay(fiscal.Date(year+1, time.January, 30))},
	}
	for _, q := range quarters {
		if err := h.seedPeriod(ctx, now, "303", q.label, year, q.start, q.end); err != nil {
			return err
		}
	}
	// Annual summaries are presented early the following year.
	if err := h.seedPeriod(ctx, now, "390", "Anual", year,
		fiscal.Date(year+1, time.January, 1), fiscal.EndOfDay(fiscal.Date(year+1, time.January, 30))); err != nil {
		return err
	}
	if err := h.seedPeriod(ctx, now, "347", "Anual", year,
		fiscal.Date(year+1, time.February, 1), fiscal.EndOfDay(fiscal.Date(year+1, time.February, 28))); err != nil {
		return err
	}
	if err := h.seedPortfolio(ctx, now); err != nil {
		return err
	}

	// Past quarters were filed on time.
	amounts := []float64{1840.20, 2105.00, 1738.55}
	for i, q := range quarters[:3] {
		if now.Before(q.end) {
			continue
		}
		o := fiscal.Obligation{
			ID:          fiscal.ObligationID(fmt.Sprintf("obl-acme-%s", q.label)),
			ClientID:    "client-acme",
			ModelCode:   "303",
			PeriodID:    fiscal.PeriodID(periodSeedID("303", q.label, year)),
			PeriodLabel: q.label,
			Year:        year,
			DueDate:     q.end,
			Status:      fiscal.ObligationPending,
			CreatedAt:   q.start,
			UpdatedAt:   q.start,
		}
		if _, err := h.Store.InsertIfAbsent(ctx, o); err != nil {
			return err
		}
		amount := decimal.NewFromFloat(amounts[i])
		if _, err := h.Store.CompleteObligation(ctx, o.ID, "laura", &amount, q.end.AddDate(0, 0, -1)); err != nil {
			return err
		}
	}

	if _, err := h.Generator.GenerateForAllOpenPeriods(ctx, now); err != nil {
		return err
	}
	_, err := h.Store.CloneYear(ctx, now, year)
	return err
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seedPortfolio creates the shared demo clients and their enrollments. All
// enrollments started a year ago so every seeded window is eligible.
func (h *Handler) seedPortfolio(ctx context.Context, now time.Time) error {
	clients := []fiscal.Client{
		{
			ID: "client-juan", Name: "Juan García Ruiz", TaxID: "12345678Z",
			Category: fiscal.CategorySelfEmployed, ResponsibleID: "resp-laura", ResponsibleName: "Laura",
		},
		{
			ID: "client-acme", Name: "Acme Ibérica SL", TaxID: "B12345678",
			Category: fiscal.CategoryCompany, ResponsibleID: "resp-laura", ResponsibleName: "Laura",
		},
		{
			ID: "client-maria", Name: "María López Sanz", TaxID: "87654321X",
			Category: fiscal.CategoryIndividual, ResponsibleID: "resp-carlos", ResponsibleName: "Carlos",
		},
	}
	for _, c := range clients {
		if err := h.Store.SaveClient(ctx, c); err != nil {
			return err
		}
	}

	enrollStart := now.AddDate(-1, 0, 0)
	subs := []fiscal.Subscription{
		{ID: "sub-juan-303", ClientID: "client-juan", ModelCode: "303", Periodicity: fiscal.Quarterly},
		{ID: "sub-juan-130", ClientID: "client-juan", ModelCode: "130", Periodicity: fiscal.Quarterly},
		{ID: "sub-acme-303", ClientID: "client-acme", ModelCode: "303", Periodicity: fiscal.Quarterly},
		{ID: "sub-acme-111", ClientID: "client-acme", ModelCode: "111", Periodicity: fiscal.Quarterly},
		{ID: "sub-acme-390", ClientID: "client-acme", ModelCode: "390", Periodicity: fiscal.Annual},
		{ID: "sub-maria-100", ClientID: "client-maria", ModelCode: "100", Periodicity: fiscal.Annual},
	}
	for _, sub := range subs {
		sub.StartDate = enrollStart
		sub.ActiveFlag = true
		if err := h.Store.CreateSubscription(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedPeriod(ctx context.Context, now time.Time, model, label string, year int, start, end time.Time) error {
	return h.Store.CreatePeriod(ctx, fiscal.FiscalPeriod{
		ID:         fiscal.PeriodID(periodSeedID(model, label, year)),
		ModelCode:  model,
		Label:      label,
		Year:       year,
		StartDate:  start,
		EndDate:    end,
		PeriodType: periodTypeForLabel(label),
		Status:     fiscal.DeriveStatus(now, start, end),
		Active:     true,
	})
}

func periodSeedID(model, label string, year int) string {
	return fmt.Sprintf("cal-%s-%s-%d", model, label, year)
}

func periodTypeForLabel(label string) fiscal.PeriodType {
	if label == "Anual" {
		return fiscal.PeriodAnnual
	}
	return fiscal.PeriodQuarterly
}

// quarterLabel returns the Spanish quarter label for a date: "1T".."4T".
func quarterLabel(t time.Time) string {
	return fmt.Sprintf("%dT", (int(t.Month())-1)/3+1)
}
