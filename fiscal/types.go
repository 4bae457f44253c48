/*
Package fiscal provides the core obligation scheduling engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  recurring regulatory filing windows ("fiscal periods"), matching them
  against each client's active tax-model subscriptions, and materializing
  per-client obligation records exactly once.

KEY CONCEPTS IN THIS FILE (types.go):
  - FiscalPeriod: A dated filing window for a regulatory form/model
  - Subscription: A client's enrollment in a tax model (periodicity, window)
  - Obligation: A materialized "client X must file model M for period P"
  - Client: The minimal directory projection needed for matching/reporting

DESIGN PRINCIPLES:
  1. Determinism: every "now" comparison takes an injected time parameter
  2. Idempotency: obligation creation is insert-if-not-exists, never upsert
  3. Type Safety: strong ID types prevent mixing period/client/obligation IDs
  4. Precision: uses decimal.Decimal for filed amounts (money)

SEE ALSO:
  - clock.go: Pure period lifecycle derivation
  - rules.go: Eligibility rule table and matcher
  - generator.go: Idempotent obligation generation
*/
package fiscal

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PeriodID string
type ClientID string
type SubscriptionID string
type ObligationID string

// =============================================================================
// ENUMS
// =============================================================================

// PeriodType classifies a calendar window.
type PeriodType string

const (
	PeriodMonthly   PeriodType = "MONTHLY"
	PeriodQuarterly PeriodType = "QUARTERLY"
	PeriodAnnual    PeriodType = "ANNUAL"
	PeriodSpecial   PeriodType = "SPECIAL"
)

// Valid reports whether the value is a known period type.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodAnnual, PeriodSpecial:
		return true
	}
	return false
}

// Periodicity classifies how often a subscription obliges the client to file.
type Periodicity string

const (
	Monthly            Periodicity = "MONTHLY"
	Quarterly          Periodicity = "QUARTERLY"
	Annual             Periodicity = "ANNUAL"
	SpecialInstallment Periodicity = "SPECIAL_INSTALLMENT"
)

// MatchesPeriodType reports whether a subscription of this periodicity can
// file against a period of the given type. Installment subscriptions file
// against SPECIAL periods; label restrictions are applied by the Matcher.
func (p Periodicity) MatchesPeriodType(pt PeriodType) bool {
	switch p {
	case Monthly:
		return pt == PeriodMonthly
	case Quarterly:
		return pt == PeriodQuarterly
	case Annual:
		return pt == PeriodAnnual
	case SpecialInstallment:
		return pt == PeriodSpecial
	default:
		return false
	}
}

// Valid reports whether the value is a known periodicity.
func (p Periodicity) Valid() bool {
	switch p {
	case Monthly, Quarterly, Annual, SpecialInstallment:
		return true
	}
	return false
}

// PeriodStatus is the lifecycle state of a filing window.
type PeriodStatus string

const (
	StatusPending PeriodStatus = "PENDING"
	StatusOpen    PeriodStatus = "OPEN"
	StatusClosed  PeriodStatus = "CLOSED"
)

// ObligationStatus is the lifecycle state of a materialized obligation.
// CALCULATED and PRESENTED appear on historical filings imported from the
// previous system; the generator only ever creates PENDING.
type ObligationStatus string

const (
	ObligationPending    ObligationStatus = "PENDING"
	ObligationInProgress ObligationStatus = "IN_PROGRESS"
	ObligationCompleted  ObligationStatus = "COMPLETED"
	ObligationOverdue    ObligationStatus = "OVERDUE"
	ObligationCalculated ObligationStatus = "CALCULATED"
	ObligationPresented  ObligationStatus = "PRESENTED"
)

// Valid reports whether the value is a known obligation status.
func (s ObligationStatus) Valid() bool {
	switch s {
	case ObligationPending, ObligationInProgress, ObligationCompleted,
		ObligationOverdue, ObligationCalculated, ObligationPresented:
		return true
	}
	return false
}

// ClientCategory is the client classification used by eligibility rules.
// Values match the AEAT registry codes.
type ClientCategory string

const (
	CategorySelfEmployed ClientCategory = "AUTONOMO"
	CategoryCompany      ClientCategory = "EMPRESA"
	CategoryIndividual   ClientCategory = "PARTICULAR"
)

// =============================================================================
// FISCAL PERIOD - A dated filing window for a model
// =============================================================================

// FiscalPeriod is one filing window of the regulatory calendar.
// Status is derived from the dates unless Locked, in which case the stored
// value is authoritative (see EffectiveStatus in clock.go).
type FiscalPeriod struct {
	ID         PeriodID
	ModelCode  string // form number, e.g. "303"
	Label      string // period name, e.g. "1T", "M07", "ANUAL"
	Year       int
	StartDate  time.Time // inclusive
	EndDate    time.Time // inclusive
	PeriodType PeriodType
	Status     PeriodStatus // persisted; authoritative only when Locked
	Active     bool         // soft-delete flag
	Locked     bool         // freeze flag; rejects further mutation
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// SUBSCRIPTION - A client's enrollment in a tax model
// =============================================================================

// Subscription records that a client must file a given model.
// A non-nil EndDate makes the subscription historical regardless of
// ActiveFlag; "effective active" additionally requires an activation date
// in the past.
type Subscription struct {
	ID          SubscriptionID
	ClientID    ClientID
	ModelCode   string
	Periodicity Periodicity
	StartDate   time.Time
	EndDate     *time.Time // nil = open-ended/current
	ActiveFlag  bool
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveActive reports whether the subscription is in force as of now.
func (s Subscription) EffectiveActive(now time.Time) bool {
	return s.ActiveFlag && s.EndDate == nil && !s.StartDate.After(now)
}

// =============================================================================
// OBLIGATION - Materialized filing requirement
// =============================================================================

// Obligation is one client's requirement to file one model for one period.
// Uniqueness on (ClientID, ModelCode, PeriodID) is enforced at the store.
type Obligation struct {
	ID          ObligationID
	ClientID    ClientID
	ModelCode   string
	PeriodID    PeriodID
	PeriodLabel string
	Year        int
	DueDate     time.Time // copied from the period's end at creation
	Status      ObligationStatus
	Amount      *decimal.Decimal // filled on completion
	Notes       string
	CompletedAt *time.Time
	CompletedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ObligationStats summarizes obligation counts per status.
type ObligationStats struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Overdue    int
}

// =============================================================================
// CLIENT - Directory projection (externally owned)
// =============================================================================

// Client is the minimal projection of the external client registry that
// eligibility matching and the status matrix need. The registry itself is
// an external collaborator; this engine never mutates client master data
// beyond refreshing this projection.
type Client struct {
	ID              ClientID
	Name            string
	TaxID           string
	Category        ClientCategory
	ResponsibleID   string
	ResponsibleName string
	Email           string
	CreatedAt       time.Time
}
