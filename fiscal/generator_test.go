package fiscal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gestora/fiscal-engine/fiscal"
	"github.com/gestora/fiscal-engine/fiscal/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestGenerator(m *store.Memory) *fiscal.Generator {
	return fiscal.NewGenerator(m, m, m, m, fiscal.NewMatcher(nil), zerolog.Nop())
}

// seedPeriod creates the Q1 VAT window for model 303: Apr 1 - Apr 20 2025.
func seedPeriod(t *testing.T, m *store.Memory) fiscal.FiscalPeriod {
	t.Helper()
	p := fiscal.FiscalPeriod{
		ID:         "p-303-1T",
		ModelCode:  "303",
		Label:      "1T",
		Year:       2025,
		StartDate:  fiscal.Date(2025, time.April, 1),
		EndDate:    fiscal.EndOfDay(fiscal.Date(2025, time.April, 20)),
		PeriodType: fiscal.PeriodQuarterly,
		Status:     fiscal.StatusOpen,
		Active:     true,
	}
	if err := m.CreatePeriod(context.Background(), p); err != nil {
		t.Fatalf("failed to seed period: %v", err)
	}
	return p
}

func seedSubscription(t *testing.T, m *store.Memory, id, clientID, model string, periodicity fiscal.Periodicity) {
	t.Helper()
	err := m.CreateSubscription(context.Background(), fiscal.Subscription{
		ID:          fiscal.SubscriptionID(id),
		ClientID:    fiscal.ClientID(clientID),
		ModelCode:   model,
		Periodicity: periodicity,
		StartDate:   fiscal.Date(2024, time.January, 1),
		ActiveFlag:  true,
	})
	if err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
}

func seedClient(t *testing.T, m *store.Memory, id string, category fiscal.ClientCategory) {
	t.Helper()
	err := m.SaveClient(context.Background(), fiscal.Client{
		ID:       fiscal.ClientID(id),
		Name:     "Client " + id,
		Category: category,
	})
	if err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}
}

// =============================================================================
// GENERATION TESTS
// =============================================================================

func TestGenerate_OpenPeriod_CreatesPendingObligations(t *testing.T) {
	// GIVEN: An open 303 window and two eligible subscribed clients
	ctx := context.Background()
	m := store.NewMemory()
	period := seedPeriod(t, m)
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedClient(t, m, "c2", fiscal.CategoryCompany)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)
	seedSubscription(t, m, "s2", "c2", "303", fiscal.Quarterly)

	gen := newTestGenerator(m)
	now := fiscal.Date(2025, time.April, 10)

	// WHEN: Generating for the period
	res, err := gen.GenerateForPeriod(ctx, now, period.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Two PENDING obligations due at the window end
	if res.Generated != 2 || res.Skipped != 0 {
		t.Fatalf("expected {2, 0}, got {%d, %d}", res.Generated, res.Skipped)
	}

	obls, err := m.ListObligations(ctx, fiscal.ObligationFilter{ModelCode: "303"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obls) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(obls))
	}
	for _, o := range obls {
		if o.Status != fiscal.ObligationPending {
			t.Errorf("expected PENDING, got %s", o.Status)
		}
		if !o.DueDate.Equal(period.EndDate) {
			t.Errorf("expected due date %v, got %v", period.EndDate, o.DueDate)
		}
	}
}

func TestGenerate_Repeated_Idempotent(t *testing.T) {
	// GIVEN: A completed generation run
	ctx := context.Background()
	m := store.NewMemory()
	period := seedPeriod(t, m)
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)

	gen := newTestGenerator(m)
	now := fiscal.Date(2025, time.April, 10)

	first, err := gen.GenerateForPeriod(ctx, now, period.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Generated != 1 {
		t.Fatalf("expected 1 generated on first run, got %d", first.Generated)
	}

	// WHEN: Running again over unchanged state
	second, err := gen.GenerateForPeriod(ctx, now, period.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Nothing new; the existing triple counts as skipped
	if second.Generated != 0 || second.Skipped != 1 {
		t.Fatalf("expected {0, 1}, got {%d, %d}", second.Generated, second.Skipped)
	}

	obls, _ := m.ListObligations(ctx, fiscal.ObligationFilter{})
	if len(obls) != 1 {
		t.Fatalf("expected exactly 1 obligation after re-run, got %d", len(obls))
	}
}

func TestGenerate_IneligibleSubscriptions_SkippedSilently(t *testing.T) {
	// GIVEN: One eligible and two ineligible subscriptions
	ctx := context.Background()
	m := store.NewMemory()
	period := seedPeriod(t, m)
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedClient(t, m, "c2", fiscal.CategoryCompany)
	seedClient(t, m, "c3", fiscal.CategoryIndividual)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)
	seedSubscription(t, m, "s2", "c2", "303", fiscal.Annual)      // wrong periodicity
	seedSubscription(t, m, "s3", "c3", "303", fiscal.Quarterly)   // PARTICULAR not allowed for 303

	gen := newTestGenerator(m)
	now := fiscal.Date(2025, time.April, 10)

	res, err := gen.GenerateForPeriod(ctx, now, period.ID)
	if err != nil {
		t.Fatalf("skips must never surface as errors: %v", err)
	}
	if res.Generated != 1 || res.Skipped != 2 {
		t.Fatalf("expected {1, 2}, got {%d, %d}", res.Generated, res.Skipped)
	}
}

func TestGenerate_ClosedPeriod_EmptyResultNoError(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	period := seedPeriod(t, m)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)

	gen := newTestGenerator(m)
	now := fiscal.Date(2025, time.June, 1) // window long closed

	res, err := gen.GenerateForPeriod(ctx, now, period.ID)
	if err != nil {
		t.Fatalf("closed period must not be an error: %v", err)
	}
	if res.Generated != 0 || res.Skipped != 0 {
		t.Fatalf("expected empty result, got {%d, %d}", res.Generated, res.Skipped)
	}
}

func TestGenerate_UnknownPeriod_NotFound(t *testing.T) {
	m := store.NewMemory()
	gen := newTestGenerator(m)

	_, err := gen.GenerateForPeriod(context.Background(), fiscal.Date(2025, time.April, 10), "no-such-period")
	if !fiscal.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestGenerate_ClientMissingFromDirectory_Unrestricted(t *testing.T) {
	// A subscription whose client has no directory entry still generates;
	// category rules only apply to a known category.
	ctx := context.Background()
	m := store.NewMemory()
	period := seedPeriod(t, m)
	seedSubscription(t, m, "s1", "ghost", "303", fiscal.Quarterly)

	gen := newTestGenerator(m)
	res, err := gen.GenerateForPeriod(ctx, fiscal.Date(2025, time.April, 10), period.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Generated != 1 {
		t.Fatalf("expected 1 generated for unlisted client, got %d", res.Generated)
	}
}

func TestGenerateForAllOpenPeriods_AggregatesAcrossModels(t *testing.T) {
	// GIVEN: Open windows for 303 and 111, one client subscribed to both
	ctx := context.Background()
	m := store.NewMemory()
	seedPeriod(t, m)
	p111 := fiscal.FiscalPeriod{
		ID:         "p-111-1T",
		ModelCode:  "111",
		Label:      "1T",
		Year:       2025,
		StartDate:  fiscal.Date(2025, time.April, 1),
		EndDate:    fiscal.EndOfDay(fiscal.Date(2025, time.April, 20)),
		PeriodType: fiscal.PeriodQuarterly,
		Active:     true,
	}
	if err := m.CreatePeriod(ctx, p111); err != nil {
		t.Fatalf("failed to seed period: %v", err)
	}
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)
	seedSubscription(t, m, "s2", "c1", "111", fiscal.Quarterly)

	gen := newTestGenerator(m)
	res, err := gen.GenerateForAllOpenPeriods(ctx, fiscal.Date(2025, time.April, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Generated != 2 {
		t.Fatalf("expected 2 generated across models, got %d", res.Generated)
	}
}

func TestGenerateForClient_BackfillsOnlyOpenWindows(t *testing.T) {
	// GIVEN: An open 303 window, a closed 111 window, client subscribed to both
	ctx := context.Background()
	m := store.NewMemory()
	seedPeriod(t, m)
	closed := fiscal.FiscalPeriod{
		ID:         "p-111-old",
		ModelCode:  "111",
		Label:      "4T",
		Year:       2024,
		StartDate:  fiscal.Date(2025, time.January, 1),
		EndDate:    fiscal.EndOfDay(fiscal.Date(2025, time.January, 20)),
		PeriodType: fiscal.PeriodQuarterly,
		Active:     true,
	}
	if err := m.CreatePeriod(ctx, closed); err != nil {
		t.Fatalf("failed to seed period: %v", err)
	}
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)
	seedSubscription(t, m, "s2", "c1", "111", fiscal.Quarterly)

	gen := newTestGenerator(m)

	// WHEN: Backfilling the client in April
	res, err := gen.GenerateForClient(ctx, fiscal.Date(2025, time.April, 10), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Only the open 303 window materializes
	if res.Generated != 1 {
		t.Fatalf("expected 1 generated, got %d", res.Generated)
	}
	obls, _ := m.ListObligations(ctx, fiscal.ObligationFilter{ClientID: "c1"})
	if len(obls) != 1 || obls[0].ModelCode != "303" {
		t.Fatalf("expected a single 303 obligation, got %+v", obls)
	}
}

func TestGenerateForClient_LockedClosedPeriod_NotGenerated(t *testing.T) {
	// GIVEN: A period locked to CLOSED while its dates still contain now,
	// and an eligible subscribed client
	ctx := context.Background()
	m := store.NewMemory()
	locked := fiscal.FiscalPeriod{
		ID:         "p-303-locked",
		ModelCode:  "303",
		Label:      "1T",
		Year:       2025,
		StartDate:  fiscal.Date(2025, time.April, 1),
		EndDate:    fiscal.EndOfDay(fiscal.Date(2025, time.April, 20)),
		PeriodType: fiscal.PeriodQuarterly,
		Status:     fiscal.StatusClosed,
		Locked:     true,
		Active:     true,
	}
	if err := m.CreatePeriod(ctx, locked); err != nil {
		t.Fatalf("failed to seed period: %v", err)
	}
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)

	gen := newTestGenerator(m)
	now := fiscal.Date(2025, time.April, 10)

	// WHEN: Backfilling the client
	res, err := gen.GenerateForClient(ctx, now, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The locked override wins on the per-client path too
	if res.Generated != 0 {
		t.Fatalf("expected nothing generated for the locked period, got %d", res.Generated)
	}
	obls, _ := m.ListObligations(ctx, fiscal.ObligationFilter{ClientID: "c1"})
	if len(obls) != 0 {
		t.Fatalf("expected no obligations, got %d", len(obls))
	}

	// AND: The per-period path agrees
	perPeriod, err := gen.GenerateForPeriod(ctx, now, locked.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perPeriod.Generated != 0 || perPeriod.Skipped != 0 {
		t.Fatalf("expected empty result, got {%d, %d}", perPeriod.Generated, perPeriod.Skipped)
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestGenerate_ConcurrentRuns_ExactlyOneObligation(t *testing.T) {
	// GIVEN: Ten generators racing over the same (client, model, period)
	ctx := context.Background()
	m := store.NewMemory()
	period := seedPeriod(t, m)
	seedClient(t, m, "c1", fiscal.CategorySelfEmployed)
	seedSubscription(t, m, "s1", "c1", "303", fiscal.Quarterly)

	gen := newTestGenerator(m)
	now := fiscal.Date(2025, time.April, 10)

	var wg sync.WaitGroup
	results := make([]fiscal.Result, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := gen.GenerateForPeriod(ctx, now, period.ID)
			if err != nil {
				t.Errorf("run %d failed: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one run created the row, the rest skipped it
	totalGenerated := 0
	for _, r := range results {
		totalGenerated += r.Generated
	}
	if totalGenerated != 1 {
		t.Errorf("expected exactly 1 creation across all runs, got %d", totalGenerated)
	}

	obls, _ := m.ListObligations(ctx, fiscal.ObligationFilter{})
	if len(obls) != 1 {
		t.Errorf("expected exactly 1 obligation, got %d", len(obls))
	}
}
