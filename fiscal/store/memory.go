// Package store provides in-memory implementations of the fiscal
// persistence interfaces, for testing and development.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gestora/fiscal-engine/fiscal"
)

// =============================================================================
// MEMORY STORE - Implements every fiscal store interface
// =============================================================================

// Memory holds all records behind one mutex, so insert-if-not-exists is
// atomic exactly like the SQLite unique index makes it in production.
type Memory struct {
	mu            sync.RWMutex
	periods       map[fiscal.PeriodID]fiscal.FiscalPeriod
	subscriptions map[fiscal.SubscriptionID]fiscal.Subscription
	obligations   map[fiscal.ObligationID]fiscal.Obligation
	clients       map[fiscal.ClientID]fiscal.Client

	// obligationKeys guards the (client, model, period) uniqueness triple.
	obligationKeys map[string]fiscal.ObligationID
}

func NewMemory() *Memory {
	return &Memory{
		periods:        make(map[fiscal.PeriodID]fiscal.FiscalPeriod),
		subscriptions:  make(map[fiscal.SubscriptionID]fiscal.Subscription),
		obligations:    make(map[fiscal.ObligationID]fiscal.Obligation),
		clients:        make(map[fiscal.ClientID]fiscal.Client),
		obligationKeys: make(map[string]fiscal.ObligationID),
	}
}

func obligationKey(clientID fiscal.ClientID, modelCode string, periodID fiscal.PeriodID) string {
	return string(clientID) + "|" + modelCode + "|" + string(periodID)
}

func periodKey(modelCode, label string, year int) string {
	return modelCode + "|" + label + "|" + strconv.Itoa(year)
}

// =============================================================================
// CALENDAR STORE
// =============================================================================

func (m *Memory) ListPeriods(_ context.Context, filter fiscal.PeriodFilter) ([]fiscal.FiscalPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.FiscalPeriod
	for _, p := range m.periods {
		if filter.Year != 0 && p.Year != filter.Year {
			continue
		}
		if filter.ModelCode != "" && p.ModelCode != filter.ModelCode {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].ModelCode != out[j].ModelCode {
			return out[i].ModelCode < out[j].ModelCode
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func (m *Memory) GetPeriod(_ context.Context, id fiscal.PeriodID) (*fiscal.FiscalPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.periods[id]
	if !ok {
		return nil, fiscal.ErrPeriodNotFound
	}
	return &p, nil
}

func (m *Memory) CreatePeriod(_ context.Context, p fiscal.FiscalPeriod) error {
	if p.EndDate.Before(p.StartDate) {
		return fiscal.ErrInvalidPeriod
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := periodKey(p.ModelCode, p.Label, p.Year)
	for _, existing := range m.periods {
		if periodKey(existing.ModelCode, existing.Label, existing.Year) == key {
			return &fiscal.DuplicatePeriodError{ModelCode: p.ModelCode, Label: p.Label, Year: p.Year}
		}
	}

	if p.ID == "" {
		p.ID = fiscal.PeriodID(uuid.NewString())
	}
	m.periods[p.ID] = p
	return nil
}

func (m *Memory) UpdatePeriod(_ context.Context, id fiscal.PeriodID, patch fiscal.PeriodPatch) (*fiscal.FiscalPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return nil, fiscal.ErrPeriodNotFound
	}
	if p.Locked && !patch.OnlyUnlocks() {
		return nil, fiscal.ErrPeriodLocked
	}

	if patch.Label != nil {
		key := periodKey(p.ModelCode, *patch.Label, p.Year)
		for otherID, other := range m.periods {
			if otherID != id && periodKey(other.ModelCode, other.Label, other.Year) == key {
				return nil, &fiscal.DuplicatePeriodError{ModelCode: p.ModelCode, Label: *patch.Label, Year: p.Year}
			}
		}
		p.Label = *patch.Label
	}
	if patch.StartDate != nil {
		p.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		p.EndDate = *patch.EndDate
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.Locked != nil {
		p.Locked = *patch.Locked
	}
	if p.EndDate.Before(p.StartDate) {
		return nil, fiscal.ErrInvalidPeriod
	}

	m.periods[id] = p
	return &p, nil
}

func (m *Memory) SoftDeletePeriod(ctx context.Context, id fiscal.PeriodID) error {
	inactive := false
	_, err := m.UpdatePeriod(ctx, id, fiscal.PeriodPatch{Active: &inactive})
	return err
}

func (m *Memory) ListOpenPeriods(_ context.Context, now time.Time, modelCode string) ([]fiscal.FiscalPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.FiscalPeriod
	for _, p := range m.periods {
		if modelCode != "" && p.ModelCode != modelCode {
			continue
		}
		if p.Active && fiscal.DeriveStatus(now, p.StartDate, p.EndDate) == fiscal.StatusOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) CloneYear(_ context.Context, now time.Time, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[string]bool)
	var toClone []fiscal.FiscalPeriod
	for _, p := range m.periods {
		switch p.Year {
		case year:
			toClone = append(toClone, p)
		case year + 1:
			existing[periodKey(p.ModelCode, p.Label, year+1)] = true
		}
	}

	created := 0
	for _, p := range toClone {
		if existing[periodKey(p.ModelCode, p.Label, year+1)] {
			continue
		}
		clone := p
		clone.ID = fiscal.PeriodID(uuid.NewString())
		clone.Year = year + 1
		clone.StartDate = p.StartDate.AddDate(1, 0, 0)
		clone.EndDate = p.EndDate.AddDate(1, 0, 0)
		clone.Status = fiscal.DeriveStatus(now, clone.StartDate, clone.EndDate)
		clone.Locked = false
		clone.CreatedAt = now
		clone.UpdatedAt = now
		m.periods[clone.ID] = clone
		created++
	}
	return created, nil
}

// =============================================================================
// SUBSCRIPTION STORE
// =============================================================================

func (m *Memory) ListEffectiveActive(_ context.Context, now time.Time, modelCode string) ([]fiscal.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.Subscription
	for _, s := range m.subscriptions {
		if s.ModelCode == modelCode && s.EffectiveActive(now) {
			out = append(out, s)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func (m *Memory) ListActiveForClient(_ context.Context, now time.Time, clientID fiscal.ClientID) ([]fiscal.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.Subscription
	for _, s := range m.subscriptions {
		if s.ClientID == clientID && s.EffectiveActive(now) {
			out = append(out, s)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func (m *Memory) ListByClient(_ context.Context, clientID fiscal.ClientID) ([]fiscal.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.Subscription
	for _, s := range m.subscriptions {
		if s.ClientID == clientID {
			out = append(out, s)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func (m *Memory) GetSubscription(_ context.Context, id fiscal.SubscriptionID) (*fiscal.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscriptions[id]
	if !ok {
		return nil, fiscal.ErrSubscriptionNotFound
	}
	return &s, nil
}

func (m *Memory) CreateSubscription(_ context.Context, s fiscal.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subscriptions {
		if existing.ClientID == s.ClientID && existing.ModelCode == s.ModelCode &&
			existing.ActiveFlag && existing.EndDate == nil {
			return &fiscal.DuplicateSubscriptionError{ClientID: s.ClientID, ModelCode: s.ModelCode}
		}
	}

	if s.ID == "" {
		s.ID = fiscal.SubscriptionID(uuid.NewString())
	}
	m.subscriptions[s.ID] = s
	return nil
}

func (m *Memory) ToggleSubscription(_ context.Context, id fiscal.SubscriptionID, active bool) (*fiscal.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subscriptions[id]
	if !ok {
		return nil, false, fiscal.ErrSubscriptionNotFound
	}

	activated := active && !s.ActiveFlag
	s.ActiveFlag = active
	m.subscriptions[id] = s
	return &s, activated, nil
}

func sortSubscriptions(subs []fiscal.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].ModelCode != subs[j].ModelCode {
			return subs[i].ModelCode < subs[j].ModelCode
		}
		return subs[i].ID < subs[j].ID
	})
}

// =============================================================================
// OBLIGATION STORE
// =============================================================================

func (m *Memory) ListObligations(_ context.Context, filter fiscal.ObligationFilter) ([]fiscal.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.Obligation
	for _, o := range m.obligations {
		if filter.ClientID != "" && o.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.ModelCode != "" && o.ModelCode != filter.ModelCode {
			continue
		}
		if filter.Year != 0 && o.Year != filter.Year {
			continue
		}
		if filter.DueFrom != nil && o.DueDate.Before(*filter.DueFrom) {
			continue
		}
		if filter.DueTo != nil && o.DueDate.After(*filter.DueTo) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ModelCode < out[j].ModelCode
	})
	return out, nil
}

func (m *Memory) GetObligation(_ context.Context, id fiscal.ObligationID) (*fiscal.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.obligations[id]
	if !ok {
		return nil, fiscal.ErrObligationNotFound
	}
	return &o, nil
}

func (m *Memory) InsertIfAbsent(_ context.Context, o fiscal.Obligation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := obligationKey(o.ClientID, o.ModelCode, o.PeriodID)
	if _, exists := m.obligationKeys[key]; exists {
		return false, nil
	}

	if o.ID == "" {
		o.ID = fiscal.ObligationID(uuid.NewString())
	}
	m.obligations[o.ID] = o
	m.obligationKeys[key] = o.ID
	return true, nil
}

func (m *Memory) UpdateObligation(_ context.Context, id fiscal.ObligationID, patch fiscal.ObligationPatch, now time.Time) (*fiscal.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[id]
	if !ok {
		return nil, fiscal.ErrObligationNotFound
	}

	if patch.Status != nil && o.Status == fiscal.ObligationCompleted && *patch.Status != fiscal.ObligationCompleted {
		return nil, &fiscal.InvalidTransitionError{ObligationID: id, From: o.Status, To: *patch.Status}
	}

	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Amount != nil {
		o.Amount = patch.Amount
	}
	if patch.Notes != nil {
		o.Notes = *patch.Notes
	}
	o.UpdatedAt = now
	m.obligations[id] = o
	return &o, nil
}

func (m *Memory) CompleteObligation(_ context.Context, id fiscal.ObligationID, actor string, amount *decimal.Decimal, now time.Time) (*fiscal.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[id]
	if !ok {
		return nil, fiscal.ErrObligationNotFound
	}
	if o.Status == fiscal.ObligationCompleted {
		return nil, &fiscal.InvalidTransitionError{ObligationID: id, From: o.Status, To: fiscal.ObligationCompleted}
	}

	o.Status = fiscal.ObligationCompleted
	o.CompletedAt = &now
	o.CompletedBy = actor
	if amount != nil {
		o.Amount = amount
	}
	o.UpdatedAt = now
	m.obligations[id] = o
	return &o, nil
}

func (m *Memory) MarkOverdue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := 0
	for id, o := range m.obligations {
		if o.Status == fiscal.ObligationPending && o.DueDate.Before(now) {
			o.Status = fiscal.ObligationOverdue
			o.UpdatedAt = now
			m.obligations[id] = o
			updated++
		}
	}
	return updated, nil
}

func (m *Memory) ListForOpenPeriods(_ context.Context, now time.Time, clientID fiscal.ClientID) ([]fiscal.OpenObligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fiscal.OpenObligation
	for _, o := range m.obligations {
		if clientID != "" && o.ClientID != clientID {
			continue
		}
		p, ok := m.periods[o.PeriodID]
		if !ok || !p.Active || fiscal.DeriveStatus(now, p.StartDate, p.EndDate) != fiscal.StatusOpen {
			continue
		}
		out = append(out, fiscal.OpenObligation{Obligation: o, Period: p})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Obligation.DueDate.Before(out[j].Obligation.DueDate)
	})
	return out, nil
}

func (m *Memory) Stats(_ context.Context, clientID fiscal.ClientID) (fiscal.ObligationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats fiscal.ObligationStats
	for _, o := range m.obligations {
		if clientID != "" && o.ClientID != clientID {
			continue
		}
		stats.Total++
		switch o.Status {
		case fiscal.ObligationPending:
			stats.Pending++
		case fiscal.ObligationInProgress:
			stats.InProgress++
		case fiscal.ObligationCompleted:
			stats.Completed++
		case fiscal.ObligationOverdue:
			stats.Overdue++
		}
	}
	return stats, nil
}

func (m *Memory) DeleteObligation(_ context.Context, id fiscal.ObligationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[id]
	if !ok {
		return fiscal.ErrObligationNotFound
	}
	delete(m.obligations, id)
	delete(m.obligationKeys, obligationKey(o.ClientID, o.ModelCode, o.PeriodID))
	return nil
}

// =============================================================================
// CLIENT DIRECTORY
// =============================================================================

func (m *Memory) GetClient(_ context.Context, id fiscal.ClientID) (*fiscal.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, fiscal.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) ListClients(_ context.Context) ([]fiscal.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]fiscal.Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveClient(_ context.Context, c fiscal.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = fiscal.ClientID(uuid.NewString())
	}
	m.clients[c.ID] = c
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.periods = make(map[fiscal.PeriodID]fiscal.FiscalPeriod)
	m.subscriptions = make(map[fiscal.SubscriptionID]fiscal.Subscription)
	m.obligations = make(map[fiscal.ObligationID]fiscal.Obligation)
	m.clients = make(map[fiscal.ClientID]fiscal.Client)
	m.obligationKeys = make(map[string]fiscal.ObligationID)
	return nil
}
