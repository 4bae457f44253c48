/*
generator.go - Idempotent obligation generation

PURPOSE:
  Orchestrates the three generation entry points: global (all open
  periods), per-period, and per-client. All three are idempotent under
  repeated invocation; re-running over unchanged state generates nothing.

COUNTED OUTCOMES, NOT ERRORS:
  "No eligible matches" and "already exists" are reported through the
  Result counters. Only store-level failures propagate as errors.

CONCURRENCY:
  Creation goes through ObligationStore.InsertIfAbsent, which is atomic
  at the storage layer. Two overlapping runs over the same triple produce
  exactly one obligation; the loser counts it as skipped.
*/
package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Result aggregates the outcome of a generation run.
type Result struct {
	Generated int `json:"generatedCount"`
	Skipped   int `json:"skippedCount"`
}

func (r *Result) add(other Result) {
	r.Generated += other.Generated
	r.Skipped += other.Skipped
}

// Generator materializes obligations from open periods and effective-active
// subscriptions. It only ever creates PENDING obligations and never reads
// or writes OVERDUE rows, so it may run concurrently with the Sweeper.
type Generator struct {
	Calendar      CalendarStore
	Subscriptions SubscriptionStore
	Obligations   ObligationStore
	Clients       ClientDirectory
	Matcher       Matcher
	Log           zerolog.Logger
}

// NewGenerator wires a generator over the given stores.
func NewGenerator(cal CalendarStore, subs SubscriptionStore, obl ObligationStore, clients ClientDirectory, matcher Matcher, log zerolog.Logger) *Generator {
	return &Generator{
		Calendar:      cal,
		Subscriptions: subs,
		Obligations:   obl,
		Clients:       clients,
		Matcher:       matcher,
		Log:           log,
	}
}

// GenerateForAllOpenPeriods runs GenerateForPeriod for every currently open
// period and aggregates the counts.
func (g *Generator) GenerateForAllOpenPeriods(ctx context.Context, now time.Time) (Result, error) {
	var total Result

	periods, err := g.Calendar.ListOpenPeriods(ctx, now, "")
	if err != nil {
		return total, fmt.Errorf("listing open periods: %w", err)
	}
	if len(periods) == 0 {
		g.Log.Debug().Msg("no open periods in the fiscal calendar")
		return total, nil
	}

	for _, p := range periods {
		res, err := g.GenerateForPeriod(ctx, now, p.ID)
		if err != nil {
			return total, err
		}
		total.add(res)
	}

	g.Log.Info().
		Int("generated", total.Generated).
		Int("skipped", total.Skipped).
		Int("periods", len(periods)).
		Msg("automatic obligation generation complete")

	return total, nil
}

// GenerateForPeriod materializes obligations for one period. The period is
// re-validated as open by date even when the caller already filtered; a
// period outside its window yields an empty result, not an error.
func (g *Generator) GenerateForPeriod(ctx context.Context, now time.Time, periodID PeriodID) (Result, error) {
	var res Result

	period, err := g.Calendar.GetPeriod(ctx, periodID)
	if err != nil {
		return res, err
	}
	if !IsOpen(now, *period) {
		g.Log.Debug().
			Str("period", string(period.ID)).
			Str("model", period.ModelCode).
			Msg("period not open by date, nothing to generate")
		return res, nil
	}

	subs, err := g.Subscriptions.ListEffectiveActive(ctx, now, period.ModelCode)
	if err != nil {
		return res, fmt.Errorf("listing subscriptions for model %s: %w", period.ModelCode, err)
	}

	for _, sub := range subs {
		category, err := g.clientCategory(ctx, sub.ClientID)
		if err != nil {
			return res, err
		}
		if !g.Matcher.Matches(now, *period, sub, category) {
			res.Skipped++
			continue
		}

		created, err := g.Obligations.InsertIfAbsent(ctx, newObligation(*period, sub.ClientID, now))
		if err != nil {
			return res, fmt.Errorf("creating obligation for client %s: %w", sub.ClientID, err)
		}
		if created {
			res.Generated++
		} else {
			res.Skipped++
		}
	}

	return res, nil
}

// GenerateForClient backfills obligations for one client across the open
// periods of every model the client is effectively subscribed to. Called
// after a subscription activation.
func (g *Generator) GenerateForClient(ctx context.Context, now time.Time, clientID ClientID) (Result, error) {
	var res Result

	subs, err := g.Subscriptions.ListActiveForClient(ctx, now, clientID)
	if err != nil {
		return res, fmt.Errorf("listing subscriptions for client %s: %w", clientID, err)
	}
	if len(subs) == 0 {
		return res, nil
	}

	category, err := g.clientCategory(ctx, clientID)
	if err != nil {
		return res, err
	}

	for _, sub := range subs {
		periods, err := g.Calendar.ListOpenPeriods(ctx, now, sub.ModelCode)
		if err != nil {
			return res, fmt.Errorf("listing open periods for model %s: %w", sub.ModelCode, err)
		}

		for _, period := range periods {
			// ListOpenPeriods is date-derived; a locked period can sit
			// inside its window with an overriding CLOSED status.
			if !IsOpen(now, period) {
				continue
			}
			if !g.Matcher.Matches(now, period, sub, category) {
				res.Skipped++
				continue
			}

			created, err := g.Obligations.InsertIfAbsent(ctx, newObligation(period, clientID, now))
			if err != nil {
				return res, fmt.Errorf("creating obligation for period %s: %w", period.ID, err)
			}
			if created {
				res.Generated++
			} else {
				res.Skipped++
			}
		}
	}

	g.Log.Info().
		Str("client", string(clientID)).
		Int("generated", res.Generated).
		Int("skipped", res.Skipped).
		Msg("client obligation backfill complete")

	return res, nil
}

// clientCategory resolves the category used by the eligibility rules.
// A client missing from the directory matches without category restriction,
// mirroring the behavior for models outside the rule table.
func (g *Generator) clientCategory(ctx context.Context, clientID ClientID) (ClientCategory, error) {
	client, err := g.Clients.GetClient(ctx, clientID)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolving client %s: %w", clientID, err)
	}
	return client.Category, nil
}

func newObligation(period FiscalPeriod, clientID ClientID, now time.Time) Obligation {
	return Obligation{
		ClientID:    clientID,
		ModelCode:   period.ModelCode,
		PeriodID:    period.ID,
		PeriodLabel: period.Label,
		Year:        period.Year,
		DueDate:     period.EndDate,
		Status:      ObligationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
