/*
store.go - Persistence interfaces for the fiscal engine

PURPOSE:
  Defines the contract between the engine and the database. The engine
  assumes an ACID relational store; implementations exist for SQLite
  (store/sqlite) and in-memory (fiscal/store, for tests).

IDEMPOTENT CREATION:
  ObligationStore.InsertIfAbsent is the one write the generator performs.
  It must be a single atomic insert-if-not-exists at the storage layer:
  two concurrent generators racing on the same (client, model, period)
  triple must produce exactly one row, with the loser reported as
  "not created", never as an error.

EVERY "NOW" IS A PARAMETER:
  Queries that depend on the current time (open periods, effective-active
  subscriptions, overdue promotion) take now explicitly so the engine
  stays deterministic under test.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - fiscal/store/memory.go: In-memory for testing
*/
package fiscal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CALENDAR STORE
// =============================================================================

// PeriodFilter narrows ListPeriods. Zero values mean "no filter".
// Status filters on the persisted column, not the derived state.
type PeriodFilter struct {
	Year       int
	ModelCode  string
	Status     PeriodStatus
	ActiveOnly bool
}

// PeriodPatch is a partial update; nil fields are left untouched.
type PeriodPatch struct {
	Label     *string
	StartDate *time.Time
	EndDate   *time.Time
	Status    *PeriodStatus
	Active    *bool
	Locked    *bool
}

// OnlyUnlocks reports whether the patch does nothing but clear the lock.
// This is the single mutation a locked period accepts.
func (p PeriodPatch) OnlyUnlocks() bool {
	return p.Locked != nil && !*p.Locked &&
		p.Label == nil && p.StartDate == nil && p.EndDate == nil &&
		p.Status == nil && p.Active == nil
}

// CalendarStore is the repository of fiscal periods.
type CalendarStore interface {
	// ListPeriods returns periods matching the filter, ordered by
	// year desc, model code asc, label asc.
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]FiscalPeriod, error)

	// GetPeriod returns a period or ErrPeriodNotFound.
	GetPeriod(ctx context.Context, id PeriodID) (*FiscalPeriod, error)

	// CreatePeriod persists a new period. Returns ErrDuplicatePeriod if
	// (modelCode, label, year) already exists, ErrInvalidPeriod if the
	// window is malformed.
	CreatePeriod(ctx context.Context, p FiscalPeriod) error

	// UpdatePeriod applies a partial update. Locked periods reject every
	// patch except an explicit unlock, with ErrPeriodLocked.
	UpdatePeriod(ctx context.Context, id PeriodID, patch PeriodPatch) (*FiscalPeriod, error)

	// SoftDeletePeriod sets active=false. Periods are never hard-deleted
	// while obligations reference them.
	SoftDeletePeriod(ctx context.Context, id PeriodID) error

	// ListOpenPeriods returns active periods whose derived status at now
	// is OPEN, optionally filtered by model code.
	ListOpenPeriods(ctx context.Context, now time.Time, modelCode string) ([]FiscalPeriod, error)

	// CloneYear duplicates every period of year into year+1, shifting the
	// window by one year. Idempotent per (modelCode, label, year+1):
	// already-cloned periods are left alone. Returns the number created.
	CloneYear(ctx context.Context, now time.Time, year int) (int, error)
}

// =============================================================================
// SUBSCRIPTION STORE
// =============================================================================

// SubscriptionStore is the repository of client tax-model subscriptions.
type SubscriptionStore interface {
	// ListEffectiveActive returns subscriptions to modelCode that are in
	// force as of now: activeFlag, nil endDate, startDate <= now.
	ListEffectiveActive(ctx context.Context, now time.Time, modelCode string) ([]Subscription, error)

	// ListActiveForClient returns the client's effective-active
	// subscriptions across all models.
	ListActiveForClient(ctx context.Context, now time.Time, clientID ClientID) ([]Subscription, error)

	// ListByClient returns every subscription of the client, historical
	// included. Used by the status matrix.
	ListByClient(ctx context.Context, clientID ClientID) ([]Subscription, error)

	// GetSubscription returns a subscription or ErrSubscriptionNotFound.
	GetSubscription(ctx context.Context, id SubscriptionID) (*Subscription, error)

	// CreateSubscription persists a new subscription. Returns
	// ErrDuplicateSubscription if the client already has an active one
	// for the same model.
	CreateSubscription(ctx context.Context, s Subscription) error

	// ToggleSubscription flips the active flag. The second return reports
	// whether this call activated a previously inactive subscription --
	// the trigger point at which callers must backfill obligations.
	ToggleSubscription(ctx context.Context, id SubscriptionID, active bool) (*Subscription, bool, error)
}

// =============================================================================
// OBLIGATION STORE
// =============================================================================

// ObligationFilter narrows ListObligations. Zero values mean "no filter".
type ObligationFilter struct {
	ClientID  ClientID
	Status    ObligationStatus
	ModelCode string
	Year      int
	DueFrom   *time.Time
	DueTo     *time.Time
}

// ObligationPatch is a partial update for user-driven edits.
type ObligationPatch struct {
	Status *ObligationStatus
	Amount *decimal.Decimal
	Notes  *string
}

// OpenObligation pairs an obligation with its (currently open) period so
// callers can derive day counters without a second lookup.
type OpenObligation struct {
	Obligation Obligation
	Period     FiscalPeriod
}

// ObligationStore is the repository of materialized obligations.
type ObligationStore interface {
	// ListObligations returns obligations matching the filter, ordered by
	// due date asc, model code asc.
	ListObligations(ctx context.Context, filter ObligationFilter) ([]Obligation, error)

	// GetObligation returns an obligation or ErrObligationNotFound.
	GetObligation(ctx context.Context, id ObligationID) (*Obligation, error)

	// InsertIfAbsent atomically creates the obligation unless one already
	// exists for (ClientID, ModelCode, PeriodID). Returns whether a row
	// was created. An existing triple is NOT an error.
	InsertIfAbsent(ctx context.Context, o Obligation) (bool, error)

	// UpdateObligation applies a user-driven partial update. Moving a
	// COMPLETED obligation back through UpdateObligation is allowed only
	// for notes/amount; a status change off COMPLETED returns
	// ErrInvalidTransition.
	UpdateObligation(ctx context.Context, id ObligationID, patch ObligationPatch, now time.Time) (*Obligation, error)

	// CompleteObligation marks the obligation COMPLETED, stamping actor,
	// timestamp and optional amount. Completing an already-completed
	// obligation returns ErrInvalidTransition.
	CompleteObligation(ctx context.Context, id ObligationID, actor string, amount *decimal.Decimal, now time.Time) (*Obligation, error)

	// MarkOverdue promotes every PENDING obligation with dueDate < now to
	// OVERDUE in one bulk update and returns the number changed.
	// Idempotent; never errors on nothing-to-sweep.
	MarkOverdue(ctx context.Context, now time.Time) (int, error)

	// ListForOpenPeriods returns obligations whose period is currently
	// open by date, optionally restricted to one client.
	ListForOpenPeriods(ctx context.Context, now time.Time, clientID ClientID) ([]OpenObligation, error)

	// Stats returns per-status counts, optionally for one client.
	Stats(ctx context.Context, clientID ClientID) (ObligationStats, error)

	// DeleteObligation removes an obligation (admin surface).
	DeleteObligation(ctx context.Context, id ObligationID) error
}

// =============================================================================
// CLIENT DIRECTORY
// =============================================================================

// ClientDirectory is the read-mostly projection of the external client
// registry.
type ClientDirectory interface {
	// GetClient returns a client or ErrClientNotFound.
	GetClient(ctx context.Context, id ClientID) (*Client, error)

	// ListClients returns all clients ordered by name.
	ListClients(ctx context.Context) ([]Client, error)

	// SaveClient upserts the directory projection for a client.
	SaveClient(ctx context.Context, c Client) error
}
