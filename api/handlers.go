/*
handlers.go - HTTP API handlers for the fiscal obligation engine

PURPOSE:
  Exposes the fiscal engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Periods:
    GET    /api/periods                 List periods (filters: year, model, status, active)
    POST   /api/periods                 Create calendar window
    GET    /api/periods/open            List currently open windows
    GET    /api/periods/{id}            Get period details
    PATCH  /api/periods/{id}            Partial update (locked periods only unlock)
    DELETE /api/periods/{id}            Soft delete (active=false)
    POST   /api/periods/{year}/clone    Clone a year's calendar into year+1

  Subscriptions:
    POST   /api/subscriptions                Enroll a client in a model
    GET    /api/subscriptions/{id}           Get subscription
    PATCH  /api/subscriptions/{id}/toggle    Flip active flag (+backfill on activation)
    GET    /api/clients/{id}/subscriptions   List a client's subscriptions

  Obligations:
    GET    /api/obligations                  List (filters: clientId, status, model, year)
    GET    /api/obligations/open             Obligations inside open windows
    GET    /api/obligations/stats            Per-status counts
    POST   /api/obligations/generate-auto                Generate for all open windows
    POST   /api/obligations/generate-period/{periodId}   Generate for one period
    POST   /api/obligations/generate-client/{clientId}   Backfill one client
    POST   /api/obligations/mark-overdue     Sweep stale PENDING to OVERDUE
    GET    /api/obligations/{id}             Get obligation
    PATCH  /api/obligations/{id}             Partial edit (status/amount/notes)
    POST   /api/obligations/{id}/complete    Mark COMPLETED (actor from X-Actor)
    DELETE /api/obligations/{id}             Remove obligation

  Matrix:
    GET    /api/tax-control-matrix      Client x model status grid

  Clients:
    GET    /api/clients                 List directory projections
    GET    /api/clients/{id}            Get one client
    PUT    /api/clients/{id}            Upsert projection

  Scenarios (demo/dev only):
    GET    /api/scenarios               List available demo scenarios
    GET    /api/scenarios/current       Currently loaded scenario
    POST   /api/scenarios/load          Reset and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate period/subscription)
  - 422: Rejected state change (locked period, completed obligation)
  - 500: Internal errors

CLOCK:
  Every handler resolves "now" once via h.Now and threads it through the
  domain calls, so tests can pin the clock.

SECURITY NOTE:
  Currently NO authentication. The X-Actor header is trusted as-is; the
  reverse proxy in front is expected to set it from the session.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gestora/fiscal-engine/fiscal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store bundles the persistence interfaces the API needs. Both the SQLite
// store and the in-memory store satisfy it.
type Store interface {
	fiscal.CalendarStore
	fiscal.SubscriptionStore
	fiscal.ObligationStore
	fiscal.ClientDirectory

	// Reset clears all data. Used by the demo scenario loader only.
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Generator *fiscal.Generator
	Sweeper   *fiscal.Sweeper
	Matrix    *fiscal.MatrixBuilder
	Log       zerolog.Logger

	// Now is the clock; overridden in tests.
	Now func() time.Time

	currentScenario string
}

// NewHandler wires a handler over the given store and rule table.
// A nil rules table selects the built-in AEAT defaults.
func NewHandler(store Store, rules fiscal.RuleTable, log zerolog.Logger) *Handler {
	matcher := fiscal.NewMatcher(rules)
	return &Handler{
		Store:     store,
		Generator: fiscal.NewGenerator(store, store, store, store, matcher, log),
		Sweeper:   fiscal.NewSweeper(store, log),
		Matrix:    fiscal.NewMatrixBuilder(store, store, store, store),
		Log:       log,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListPeriods returns periods matching the query filters.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	filter := fiscal.PeriodFilter{
		ModelCode: r.URL.Query().Get("model"),
	}
	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		filter.Year = year
	}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = fiscal.PeriodStatus(s)
	}
	if r.URL.Query().Get("active") == "true" {
		filter.ActiveOnly = true
	}

	periods, err := h.Store.ListPeriods(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(now, p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriod creates a calendar window.
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ModelCode == "" || req.Label == "" || req.Year == 0 {
		writeError(w, http.StatusBadRequest, "modelCode, label and year are required", nil)
		return
	}
	pType := fiscal.PeriodType(req.PeriodType)
	if !pType.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid periodType", fmt.Errorf("unknown period type %q", req.PeriodType))
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid startDate", err)
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid endDate", err)
		return
	}

	now := h.Now()
	period := fiscal.FiscalPeriod{
		ModelCode:  req.ModelCode,
		Label:      req.Label,
		Year:       req.Year,
		StartDate:  start,
		EndDate:    fiscal.EndOfDay(end), // closing day is inside the window
		PeriodType: pType,
		Active:     true,
	}
	if req.Active != nil {
		period.Active = *req.Active
	}
	period.Status = fiscal.DeriveStatus(now, period.StartDate, period.EndDate)

	if err := h.Store.CreatePeriod(r.Context(), period); err != nil {
		h.writeDomainError(w, "Failed to create period", err)
		return
	}

	h.Log.Info().
		Str("model", period.ModelCode).
		Str("label", period.Label).
		Int("year", period.Year).
		Msg("period created")

	created, err := h.Store.ListPeriods(r.Context(), fiscal.PeriodFilter{
		Year: period.Year, ModelCode: period.ModelCode,
	})
	if err == nil {
		for _, p := range created {
			if p.Label == period.Label {
				writeJSON(w, http.StatusCreated, toPeriodDTO(now, p))
				return
			}
		}
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(now, period))
}

// GetPeriod returns a single period.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	id := fiscal.PeriodID(chi.URLParam(r, "id"))
	period, err := h.Store.GetPeriod(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(h.Now(), *period))
}

// UpdatePeriod applies a partial update.
func (h *Handler) UpdatePeriod(w http.ResponseWriter, r *http.Request) {
	id := fiscal.PeriodID(chi.URLParam(r, "id"))

	var req UpdatePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := fiscal.PeriodPatch{
		Label:  req.Label,
		Active: req.Active,
		Locked: req.Locked,
	}
	if req.StartDate != nil {
		t, err := parseDate(*req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid startDate", err)
			return
		}
		patch.StartDate = &t
	}
	if req.EndDate != nil {
		t, err := parseDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endDate", err)
			return
		}
		eod := fiscal.EndOfDay(t)
		patch.EndDate = &eod
	}
	if req.Status != nil {
		s := fiscal.PeriodStatus(*req.Status)
		if s != fiscal.StatusPending && s != fiscal.StatusOpen && s != fiscal.StatusClosed {
			writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown period status %q", *req.Status))
			return
		}
		patch.Status = &s
	}

	updated, err := h.Store.UpdatePeriod(r.Context(), id, patch)
	if err != nil {
		h.writeDomainError(w, "Failed to update period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(h.Now(), *updated))
}

// DeletePeriod soft-deletes a period.
func (h *Handler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	id := fiscal.PeriodID(chi.URLParam(r, "id"))
	if err := h.Store.SoftDeletePeriod(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete period", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ListOpenPeriods returns currently open windows, optionally per model.
func (h *Handler) ListOpenPeriods(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	periods, err := h.Store.ListOpenPeriods(r.Context(), now, r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list open periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(now, p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CloneYear copies a year's calendar into the next year.
func (h *Handler) CloneYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	created, err := h.Store.CloneYear(r.Context(), h.Now(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clone year", err)
		return
	}

	h.Log.Info().Int("sourceYear", year).Int("created", created).Msg("calendar cloned")
	writeJSON(w, http.StatusOK, CloneYearResponse{
		SourceYear:   year,
		TargetYear:   year + 1,
		CreatedCount: created,
	})
}

// =============================================================================
// SUBSCRIPTION HANDLERS
// =============================================================================

// CreateSubscription enrolls a client in a tax model.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ClientID == "" || req.ModelCode == "" {
		writeError(w, http.StatusBadRequest, "clientId and modelCode are required", nil)
		return
	}
	periodicity := fiscal.Periodicity(req.Periodicity)
	if !periodicity.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid periodicity", fmt.Errorf("unknown periodicity %q", req.Periodicity))
		return
	}

	now := h.Now()
	start := now
	if req.StartDate != "" {
		t, err := parseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid startDate", err)
			return
		}
		start = t
	}

	sub := fiscal.Subscription{
		ClientID:    fiscal.ClientID(req.ClientID),
		ModelCode:   req.ModelCode,
		Periodicity: periodicity,
		StartDate:   start,
		ActiveFlag:  true,
		Notes:       req.Notes,
	}
	if err := h.Store.CreateSubscription(r.Context(), sub); err != nil {
		h.writeDomainError(w, "Failed to create subscription", err)
		return
	}

	// A fresh enrollment behaves like an activation: materialize anything
	// the client now owes in currently open windows.
	backfill, err := h.Generator.GenerateForClient(r.Context(), now, sub.ClientID)
	if err != nil {
		h.Log.Warn().Err(err).Str("client", req.ClientID).Msg("backfill after enrollment failed")
	}

	subs, err := h.Store.ListByClient(r.Context(), sub.ClientID)
	if err == nil {
		for _, s := range subs {
			if s.ModelCode == sub.ModelCode && s.ActiveFlag && s.EndDate == nil {
				writeJSON(w, http.StatusCreated, SubscriptionResponse{
					Subscription: toSubscriptionDTO(s),
					Backfill:     &backfill,
				})
				return
			}
		}
	}
	writeJSON(w, http.StatusCreated, SubscriptionResponse{
		Subscription: toSubscriptionDTO(sub),
		Backfill:     &backfill,
	})
}

// GetSubscription returns a single subscription.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := fiscal.SubscriptionID(chi.URLParam(r, "id"))
	sub, err := h.Store.GetSubscription(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(*sub))
}

// ToggleSubscription flips the active flag. Activation backfills the
// client's obligations for currently open windows.
func (h *Handler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	id := fiscal.SubscriptionID(chi.URLParam(r, "id"))

	var req ToggleSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sub, activated, err := h.Store.ToggleSubscription(r.Context(), id, req.Active)
	if err != nil {
		h.writeDomainError(w, "Failed to toggle subscription", err)
		return
	}

	resp := SubscriptionResponse{Subscription: toSubscriptionDTO(*sub)}
	if activated {
		result, err := h.Generator.GenerateForClient(r.Context(), h.Now(), sub.ClientID)
		if err != nil {
			h.Log.Warn().Err(err).Str("client", string(sub.ClientID)).Msg("backfill after activation failed")
		} else {
			resp.Backfill = &result
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListClientSubscriptions returns a client's subscriptions. With
// ?active=true only the effective-active ones are returned.
func (h *Handler) ListClientSubscriptions(w http.ResponseWriter, r *http.Request) {
	clientID := fiscal.ClientID(chi.URLParam(r, "id"))

	var subs []fiscal.Subscription
	var err error
	if r.URL.Query().Get("active") == "true" {
		subs, err = h.Store.ListActiveForClient(r.Context(), h.Now(), clientID)
	} else {
		subs, err = h.Store.ListByClient(r.Context(), clientID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions", err)
		return
	}

	dtos := make([]SubscriptionDTO, len(subs))
	for i, s := range subs {
		dtos[i] = toSubscriptionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OBLIGATION HANDLERS
// =============================================================================

// ListObligations returns obligations matching the query filters.
func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	filter := fiscal.ObligationFilter{
		ClientID:  fiscal.ClientID(r.URL.Query().Get("clientId")),
		ModelCode: r.URL.Query().Get("model"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = fiscal.ObligationStatus(s)
	}
	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		filter.Year = year
	}
	if s := r.URL.Query().Get("dueDateFrom"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid dueDateFrom", err)
			return
		}
		filter.DueFrom = &t
	}
	if s := r.URL.Query().Get("dueDateTo"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid dueDateTo", err)
			return
		}
		// Due dates sit at end of day; treat the bound as inclusive of it.
		end := fiscal.EndOfDay(t)
		filter.DueTo = &end
	}

	obls, err := h.Store.ListObligations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list obligations", err)
		return
	}

	dtos := make([]ObligationDTO, len(obls))
	for i, o := range obls {
		dtos[i] = toObligationDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListOpenObligations returns obligations inside currently open windows,
// with day counters.
func (h *Handler) ListOpenObligations(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	clientID := fiscal.ClientID(r.URL.Query().Get("clientId"))

	open, err := h.Store.ListForOpenPeriods(r.Context(), now, clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list open obligations", err)
		return
	}

	dtos := make([]OpenObligationDTO, len(open))
	for i, oo := range open {
		dtos[i] = toOpenObligationDTO(now, oo)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ObligationStats returns per-status counts.
func (h *Handler) ObligationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context(), fiscal.ClientID(r.URL.Query().Get("clientId")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get obligation stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// GetObligation returns a single obligation.
func (h *Handler) GetObligation(w http.ResponseWriter, r *http.Request) {
	id := fiscal.ObligationID(chi.URLParam(r, "id"))
	obl, err := h.Store.GetObligation(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get obligation", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(*obl))
}

// UpdateObligation applies a user-driven partial edit.
func (h *Handler) UpdateObligation(w http.ResponseWriter, r *http.Request) {
	id := fiscal.ObligationID(chi.URLParam(r, "id"))

	var req UpdateObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := fiscal.ObligationPatch{Notes: req.Notes}
	if req.Status != nil {
		s := fiscal.ObligationStatus(*req.Status)
		if !s.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown obligation status %q", *req.Status))
			return
		}
		patch.Status = &s
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		patch.Amount = &amount
	}

	updated, err := h.Store.UpdateObligation(r.Context(), id, patch, h.Now())
	if err != nil {
		h.writeDomainError(w, "Failed to update obligation", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(*updated))
}

// CompleteObligation marks an obligation COMPLETED. The actor comes from
// the X-Actor header.
func (h *Handler) CompleteObligation(w http.ResponseWriter, r *http.Request) {
	id := fiscal.ObligationID(chi.URLParam(r, "id"))
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "system"
	}

	var req CompleteObligationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		d, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		amount = &d
	}

	completed, err := h.Store.CompleteObligation(r.Context(), id, actor, amount, h.Now())
	if err != nil {
		h.writeDomainError(w, "Failed to complete obligation", err)
		return
	}

	h.Log.Info().Str("obligation", string(id)).Str("actor", actor).Msg("obligation completed")
	writeJSON(w, http.StatusOK, toObligationDTO(*completed))
}

// DeleteObligation removes an obligation.
func (h *Handler) DeleteObligation(w http.ResponseWriter, r *http.Request) {
	id := fiscal.ObligationID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteObligation(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete obligation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// GenerateAuto materializes obligations for every currently open window.
func (h *Handler) GenerateAuto(w http.ResponseWriter, r *http.Request) {
	result, err := h.Generator.GenerateForAllOpenPeriods(r.Context(), h.Now())
	if err != nil {
		h.writeDomainError(w, "Generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GeneratePeriod materializes obligations for one period.
func (h *Handler) GeneratePeriod(w http.ResponseWriter, r *http.Request) {
	periodID := fiscal.PeriodID(chi.URLParam(r, "periodId"))
	result, err := h.Generator.GenerateForPeriod(r.Context(), h.Now(), periodID)
	if err != nil {
		h.writeDomainError(w, "Generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GenerateClient backfills one client's obligations for open windows.
func (h *Handler) GenerateClient(w http.ResponseWriter, r *http.Request) {
	clientID := fiscal.ClientID(chi.URLParam(r, "clientId"))
	result, err := h.Generator.GenerateForClient(r.Context(), h.Now(), clientID)
	if err != nil {
		h.writeDomainError(w, "Generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MarkOverdue sweeps stale PENDING obligations to OVERDUE.
func (h *Handler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	count, err := h.Sweeper.Sweep(r.Context(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{
		MarkedOverdue: count,
		SweptAt:       now.Format(time.RFC3339),
	})
}

// =============================================================================
// MATRIX HANDLER
// =============================================================================

// TaxControlMatrix returns the client x model status grid.
func (h *Handler) TaxControlMatrix(w http.ResponseWriter, r *http.Request) {
	q := fiscal.MatrixQuery{
		Category:      fiscal.ClientCategory(r.URL.Query().Get("category")),
		ResponsibleID: r.URL.Query().Get("responsible"),
		Search:        r.URL.Query().Get("search"),
		Model:         r.URL.Query().Get("model"),
		Periodicity:   fiscal.Periodicity(r.URL.Query().Get("periodicity")),
	}
	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		q.Year = year
	}
	if qt := r.URL.Query().Get("quarter"); qt != "" {
		quarter, err := strconv.Atoi(qt)
		if err != nil || quarter < 1 || quarter > 4 {
			writeError(w, http.StatusBadRequest, "Invalid quarter", err)
			return
		}
		q.Quarter = quarter
	}

	matrix, err := h.Matrix.Build(r.Context(), h.Now(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build matrix", err)
		return
	}
	writeJSON(w, http.StatusOK, toMatrixResponse(matrix))
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns the client directory.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client projection.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := fiscal.ClientID(chi.URLParam(r, "id"))
	client, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

// SaveClient upserts a client projection.
func (h *Handler) SaveClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SaveClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	client := fiscal.Client{
		ID:              fiscal.ClientID(id),
		Name:            req.Name,
		TaxID:           req.TaxID,
		Category:        fiscal.ClientCategory(req.Category),
		ResponsibleID:   req.ResponsibleID,
		ResponsibleName: req.ResponsibleName,
		Email:           req.Email,
	}
	if err := h.Store.SaveClient(r.Context(), client); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health returns service health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   h.Now().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case fiscal.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case fiscal.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case fiscal.IsInvalidTransition(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, fiscal.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	return time.Parse(dateLayout, s)
}

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
