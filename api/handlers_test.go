/*
handlers_test.go - HTTP-level tests for the API handlers

Runs requests through the real chi router against the in-memory store,
with the handler clock pinned so window calculations are deterministic.
Covers the calendar CRUD guards, enrollment backfill, generation and
sweep endpoints, and the error-status mapping.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestora/fiscal-engine/fiscal"
	"github.com/gestora/fiscal-engine/fiscal/store"
)

// testNow falls inside the 1T VAT filing window (April 1-20).
var testNow = time.Date(2025, time.April, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	h := NewHandler(store.NewMemory(), nil, zerolog.Nop())
	h.Now = func() time.Time { return testNow }
	return h, NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func seedOpenPeriod(t *testing.T, h *Handler, id, model string) {
	t.Helper()
	err := h.Store.CreatePeriod(context.Background(), fiscal.FiscalPeriod{
		ID:         fiscal.PeriodID(id),
		ModelCode:  model,
		Label:      "1T",
		Year:       2025,
		StartDate:  fiscal.Date(2025, time.April, 1),
		EndDate:    fiscal.EndOfDay(fiscal.Date(2025, time.April, 20)),
		PeriodType: fiscal.PeriodQuarterly,
		Status:     fiscal.StatusOpen,
		Active:     true,
	})
	require.NoError(t, err)
}

func seedClient(t *testing.T, h *Handler, id, name string, category fiscal.ClientCategory) {
	t.Helper()
	err := h.Store.SaveClient(context.Background(), fiscal.Client{
		ID:       fiscal.ClientID(id),
		Name:     name,
		Category: category,
	})
	require.NoError(t, err)
}

// =============================================================================
// PERIODS
// =============================================================================

func TestCreatePeriod_HTTP(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/periods", CreatePeriodRequest{
		ModelCode:  "303",
		Label:      "1T",
		Year:       2025,
		StartDate:  "2025-04-01",
		EndDate:    "2025-04-20",
		PeriodType: "QUARTERLY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[PeriodDTO](t, rec)
	assert.Equal(t, "303", got.ModelCode)
	assert.Equal(t, "OPEN", got.Status, "window contains the pinned clock")
	assert.Equal(t, "2025-04-20", got.EndDate)
	require.NotNil(t, got.DaysToEnd)
	assert.Equal(t, 11, *got.DaysToEnd, "partial days round up")
}

func TestCreatePeriod_Duplicate_Returns409(t *testing.T) {
	_, router := newTestServer(t)

	req := CreatePeriodRequest{
		ModelCode: "303", Label: "1T", Year: 2025,
		StartDate: "2025-04-01", EndDate: "2025-04-20",
		PeriodType: "QUARTERLY",
	}
	rec := doJSON(t, router, http.MethodPost, "/api/periods", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/periods", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
}

func TestCreatePeriod_Validation_Returns400(t *testing.T) {
	_, router := newTestServer(t)

	cases := []struct {
		name string
		req  CreatePeriodRequest
	}{
		{"missing model", CreatePeriodRequest{Label: "1T", Year: 2025, StartDate: "2025-04-01", EndDate: "2025-04-20", PeriodType: "QUARTERLY"}},
		{"bad period type", CreatePeriodRequest{ModelCode: "303", Label: "1T", Year: 2025, StartDate: "2025-04-01", EndDate: "2025-04-20", PeriodType: "WEEKLY"}},
		{"bad date", CreatePeriodRequest{ModelCode: "303", Label: "1T", Year: 2025, StartDate: "01/04/2025", EndDate: "2025-04-20", PeriodType: "QUARTERLY"}},
		{"end before start", CreatePeriodRequest{ModelCode: "303", Label: "1T", Year: 2025, StartDate: "2025-04-20", EndDate: "2025-04-01", PeriodType: "QUARTERLY"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/periods", tc.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestUpdatePeriod_Locked_Returns422(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")

	locked := true
	rec := doJSON(t, router, http.MethodPatch, "/api/periods/p1", UpdatePeriodRequest{Locked: &locked})
	require.Equal(t, http.StatusOK, rec.Code)

	label := "1T-bis"
	rec = doJSON(t, router, http.MethodPatch, "/api/periods/p1", UpdatePeriodRequest{Label: &label})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unlock is the one accepted patch.
	unlocked := false
	rec = doJSON(t, router, http.MethodPatch, "/api/periods/p1", UpdatePeriodRequest{Locked: &unlocked})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPeriod_Missing_Returns404(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/periods/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePeriod_SoftDeletes(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")

	rec := doJSON(t, router, http.MethodDelete, "/api/periods/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/periods/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[PeriodDTO](t, rec).Active)

	// Inactive windows drop out of the open list.
	rec = doJSON(t, router, http.MethodGet, "/api/periods/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]PeriodDTO](t, rec))
}

func TestCloneYear_HTTP(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")

	rec := doJSON(t, router, http.MethodPost, "/api/periods/2025/clone", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[CloneYearResponse](t, rec)
	assert.Equal(t, 2026, got.TargetYear)
	assert.Equal(t, 1, got.CreatedCount)

	rec = doJSON(t, router, http.MethodPost, "/api/periods/2025/clone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[CloneYearResponse](t, rec).CreatedCount, "re-clone is a no-op")
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func TestCreateSubscription_BackfillsOpenWindow(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedClient(t, h, "client-1", "Acme SL", fiscal.CategoryCompany)

	rec := doJSON(t, router, http.MethodPost, "/api/subscriptions", CreateSubscriptionRequest{
		ClientID:    "client-1",
		ModelCode:   "303",
		Periodicity: "QUARTERLY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[SubscriptionResponse](t, rec)
	assert.True(t, got.Subscription.Active)
	require.NotNil(t, got.Backfill)
	assert.Equal(t, 1, got.Backfill.Generated, "the open 1T window should be materialized")

	// The obligation is visible immediately.
	rec = doJSON(t, router, http.MethodGet, "/api/obligations?clientId=client-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obls := decode[[]ObligationDTO](t, rec)
	require.Len(t, obls, 1)
	assert.Equal(t, "PENDING", obls[0].Status)
	assert.Equal(t, "2025-04-20", obls[0].DueDate)
}

func TestCreateSubscription_Duplicate_Returns409(t *testing.T) {
	h, router := newTestServer(t)
	seedClient(t, h, "client-1", "Acme SL", fiscal.CategoryCompany)

	req := CreateSubscriptionRequest{ClientID: "client-1", ModelCode: "303", Periodicity: "QUARTERLY"}
	rec := doJSON(t, router, http.MethodPost, "/api/subscriptions", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/subscriptions", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestToggleSubscription_ActivationBackfills(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedClient(t, h, "client-1", "Acme SL", fiscal.CategoryCompany)

	sub := fiscal.Subscription{
		ID:          "s1",
		ClientID:    "client-1",
		ModelCode:   "303",
		Periodicity: fiscal.Quarterly,
		StartDate:   fiscal.Date(2025, time.January, 1),
		ActiveFlag:  false,
	}
	require.NoError(t, h.Store.CreateSubscription(context.Background(), sub))

	rec := doJSON(t, router, http.MethodPatch, "/api/subscriptions/s1/toggle", ToggleSubscriptionRequest{Active: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[SubscriptionResponse](t, rec)
	require.NotNil(t, got.Backfill, "activation triggers a backfill")
	assert.Equal(t, 1, got.Backfill.Generated)

	// Deactivation does not.
	rec = doJSON(t, router, http.MethodPatch, "/api/subscriptions/s1/toggle", ToggleSubscriptionRequest{Active: false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[SubscriptionResponse](t, rec).Backfill)
}

func TestListClientSubscriptions_ActiveFilter(t *testing.T) {
	h, router := newTestServer(t)
	seedClient(t, h, "client-1", "Acme SL", fiscal.CategoryCompany)

	active := fiscal.Subscription{
		ID: "s1", ClientID: "client-1", ModelCode: "303",
		Periodicity: fiscal.Quarterly,
		StartDate:   fiscal.Date(2025, time.January, 1),
		ActiveFlag:  true,
	}
	dormant := fiscal.Subscription{
		ID: "s2", ClientID: "client-1", ModelCode: "111",
		Periodicity: fiscal.Quarterly,
		StartDate:   fiscal.Date(2025, time.January, 1),
		ActiveFlag:  false,
	}
	require.NoError(t, h.Store.CreateSubscription(context.Background(), active))
	require.NoError(t, h.Store.CreateSubscription(context.Background(), dormant))

	rec := doJSON(t, router, http.MethodGet, "/api/clients/client-1/subscriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SubscriptionDTO](t, rec), 2)

	rec = doJSON(t, router, http.MethodGet, "/api/clients/client-1/subscriptions?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]SubscriptionDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "303", got[0].ModelCode)
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

// seedObligationVia enrolls the client and generates, returning the obligation ID.
func seedObligationVia(t *testing.T, h *Handler, router http.Handler, clientID string) string {
	t.Helper()
	seedClient(t, h, clientID, "Cliente "+clientID, fiscal.CategoryCompany)
	rec := doJSON(t, router, http.MethodPost, "/api/subscriptions", CreateSubscriptionRequest{
		ClientID: clientID, ModelCode: "303", Periodicity: "QUARTERLY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/obligations?clientId="+clientID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	obls := decode[[]ObligationDTO](t, rec)
	require.Len(t, obls, 1)
	return obls[0].ID
}

func TestGenerate_AllOpenPeriods_Idempotent(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedClient(t, h, "client-1", "Acme SL", fiscal.CategoryCompany)
	require.NoError(t, h.Store.CreateSubscription(context.Background(), fiscal.Subscription{
		ID: "s1", ClientID: "client-1", ModelCode: "303",
		Periodicity: fiscal.Quarterly,
		StartDate:   fiscal.Date(2025, time.January, 1),
		ActiveFlag:  true,
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/obligations/generate-auto", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[fiscal.Result](t, rec)
	assert.Equal(t, 1, first.Generated)

	rec = doJSON(t, router, http.MethodPost, "/api/obligations/generate-auto", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[fiscal.Result](t, rec)
	assert.Equal(t, 0, second.Generated)
	assert.Equal(t, 1, second.Skipped)

	// Scoping to the period gives the same skip.
	rec = doJSON(t, router, http.MethodPost, "/api/obligations/generate-period/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[fiscal.Result](t, rec).Generated)

	// So does scoping to the client.
	rec = doJSON(t, router, http.MethodPost, "/api/obligations/generate-client/client-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[fiscal.Result](t, rec).Generated)
}

func TestGeneratePeriod_Unknown_Returns404(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/obligations/generate-period/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteObligation_ActorFromHeader(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	oblID := seedObligationVia(t, h, router, "client-1")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(CompleteObligationRequest{Amount: strPtr("1250.50")}))
	req := httptest.NewRequest(http.MethodPost, "/api/obligations/"+oblID+"/complete", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "maria")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[ObligationDTO](t, rec)
	assert.Equal(t, "COMPLETED", got.Status)
	assert.Equal(t, "maria", got.CompletedBy)
	require.NotNil(t, got.Amount)
	assert.Equal(t, "1250.5", *got.Amount)

	// Completing twice is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/obligations/"+oblID+"/complete", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateObligation_StatusOffCompleted_Returns422(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	oblID := seedObligationVia(t, h, router, "client-1")

	rec := doJSON(t, router, http.MethodPost, "/api/obligations/"+oblID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/obligations/"+oblID, UpdateObligationRequest{Status: strPtr("PENDING")})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/obligations/"+oblID, UpdateObligationRequest{Status: strPtr("FILED")})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown status is a validation error")
}

func TestMarkOverdue_HTTP(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedObligationVia(t, h, router, "client-1")

	// Nothing is overdue while the window is open.
	rec := doJSON(t, router, http.MethodPost, "/api/obligations/mark-overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[SweepResponse](t, rec).MarkedOverdue)

	// Move the clock past the due date.
	h.Now = func() time.Time { return time.Date(2025, time.May, 1, 2, 0, 0, 0, time.UTC) }
	rec = doJSON(t, router, http.MethodPost, "/api/obligations/mark-overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SweepResponse](t, rec)
	assert.Equal(t, 1, got.MarkedOverdue)
	assert.NotEmpty(t, got.SweptAt)

	rec = doJSON(t, router, http.MethodGet, "/api/obligations?status=OVERDUE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ObligationDTO](t, rec), 1)
}

func TestListObligations_DueDateRange(t *testing.T) {
	// GIVEN: Two obligations due in different quarters
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedClient(t, h, "client-1", "Acme SL", fiscal.CategoryCompany)
	for _, o := range []fiscal.Obligation{
		{ID: "obl-1t", ClientID: "client-1", ModelCode: "303", PeriodID: "p1",
			PeriodLabel: "1T", Year: 2025, Status: fiscal.ObligationPending,
			DueDate: fiscal.EndOfDay(fiscal.Date(2025, time.April, 20))},
		{ID: "obl-2t", ClientID: "client-1", ModelCode: "303", PeriodID: "p2",
			PeriodLabel: "2T", Year: 2025, Status: fiscal.ObligationPending,
			DueDate: fiscal.EndOfDay(fiscal.Date(2025, time.July, 20))},
	} {
		created, err := h.Store.InsertIfAbsent(context.Background(), o)
		require.NoError(t, err)
		require.True(t, created)
	}

	// WHEN/THEN: The range narrows to the April due date, inclusive of the
	// end-of-day due timestamp on the upper bound
	rec := doJSON(t, router, http.MethodGet, "/api/obligations?dueDateFrom=2025-04-01&dueDateTo=2025-04-20", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[[]ObligationDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "obl-1t", got[0].ID)

	// An open lower bound keeps only the later obligation.
	rec = doJSON(t, router, http.MethodGet, "/api/obligations?dueDateFrom=2025-05-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[[]ObligationDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "obl-2t", got[0].ID)

	rec = doJSON(t, router, http.MethodGet, "/api/obligations?dueDateFrom=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObligationStats_HTTP(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	oblID := seedObligationVia(t, h, router, "client-1")
	seedObligationVia(t, h, router, "client-2")

	rec := doJSON(t, router, http.MethodPost, "/api/obligations/"+oblID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/obligations/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[StatsDTO](t, rec)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Pending)
	assert.Equal(t, 1, got.Completed)
}

func TestListOpenObligations_HTTP(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedObligationVia(t, h, router, "client-1")

	rec := doJSON(t, router, http.MethodGet, "/api/obligations/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]OpenObligationDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-04-20", got[0].PeriodEndDate)
	require.NotNil(t, got[0].DaysToEnd)
	assert.Equal(t, 11, *got[0].DaysToEnd)
	assert.Equal(t, "ends in 11 days", got[0].WindowMessage)
}

// =============================================================================
// MATRIX
// =============================================================================

func TestTaxControlMatrix_HTTP(t *testing.T) {
	h, router := newTestServer(t)
	seedOpenPeriod(t, h, "p1", "303")
	seedObligationVia(t, h, router, "client-1")

	rec := doJSON(t, router, http.MethodGet, "/api/tax-control-matrix?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[MatrixResponse](t, rec)
	assert.Equal(t, 2025, got.Metadata.Year)
	assert.Equal(t, fiscal.ControlledModels(), got.Models)
	require.Len(t, got.Rows, 1)

	cell, ok := got.Rows[0].Cells["303"]
	require.True(t, ok, "subscribed model should have a cell")
	assert.True(t, cell.Active)
	assert.Equal(t, "PENDING", cell.Status)
}

func TestTaxControlMatrix_BadQuarter_Returns400(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/tax-control-matrix?quarter=5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CLIENTS & HEALTH
// =============================================================================

func TestSaveAndGetClient_HTTP(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/clients/client-1", SaveClientRequest{
		Name:     "Acme SL",
		TaxID:    "B12345678",
		Category: "EMPRESA",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/clients/client-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ClientDTO](t, rec)
	assert.Equal(t, "Acme SL", got.Name)
	assert.Equal(t, "B12345678", got.TaxID)

	rec = doJSON(t, router, http.MethodGet, "/api/clients/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/clients/client-2", SaveClientRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")
}

func TestHealth_HTTP(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
}

func strPtr(s string) *string { return &s }
