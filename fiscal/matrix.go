/*
matrix.go - Status matrix read model

PURPOSE:
  Builds the per-client x per-model control grid for reporting: which
  models each client is subscribed to in the requested window, and the
  most advanced obligation status per cell. Pure read-side projection;
  never mutates calendar or obligation state.

STATUS RESOLUTION:
  When a (client, model) pair has several historical obligations, the
  displayed one wins by priority rank; ties go to the obligation whose
  period ends latest. Rank table:
    PRESENTED, COMPLETED  6
    CALCULATED            5
    IN_PROGRESS           4
    PENDING, OVERDUE      2
    unset                 0
*/
package fiscal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// QUERY AND RESULT TYPES
// =============================================================================

// MatrixQuery selects the reporting window and row filters.
// Zero Year means the current year; zero Quarter means the whole year.
type MatrixQuery struct {
	Year          int
	Quarter       int // 1-4, 0 = whole year
	Category      ClientCategory
	ResponsibleID string
	Search        string
	Model         string
	Periodicity   Periodicity
}

// MatrixCell is the resolved state of one (client, model) pair.
// Derived, never stored.
type MatrixCell struct {
	SubscriptionID  SubscriptionID
	Active          bool
	Periodicity     Periodicity
	StartDate       *time.Time
	EndDate         *time.Time
	Status          ObligationStatus // empty when neither active nor filed
	StatusUpdatedAt *time.Time
	ObligationID    ObligationID
	PeriodID        PeriodID
	PeriodLabel     string
}

// MatrixRow is one client's cells across all tracked models.
type MatrixRow struct {
	ClientID        ClientID
	ClientName      string
	TaxID           string
	Category        ClientCategory
	ResponsibleID   string
	ResponsibleName string
	Cells           map[string]MatrixCell
}

// MatrixMetadata echoes the applied filters back to the caller.
type MatrixMetadata struct {
	Year          int
	Quarter       int
	TotalClients  int
	Category      ClientCategory
	ResponsibleID string
	Search        string
}

// Matrix is the full control grid.
type Matrix struct {
	Rows     []MatrixRow
	Models   []string
	Metadata MatrixMetadata
}

// =============================================================================
// BUILDER
// =============================================================================

// MatrixBuilder assembles the control grid from the stores. Read-only; may
// run concurrently with generation and sweeping.
type MatrixBuilder struct {
	Calendar      CalendarStore
	Subscriptions SubscriptionStore
	Obligations   ObligationStore
	Clients       ClientDirectory
	Models        []string // defaults to ControlledModels()
}

// NewMatrixBuilder wires a builder over the given stores.
func NewMatrixBuilder(cal CalendarStore, subs SubscriptionStore, obl ObligationStore, clients ClientDirectory) *MatrixBuilder {
	return &MatrixBuilder{
		Calendar:      cal,
		Subscriptions: subs,
		Obligations:   obl,
		Clients:       clients,
		Models:        ControlledModels(),
	}
}

func statusRank(s ObligationStatus) int {
	switch s {
	case ObligationPresented, ObligationCompleted:
		return 6
	case ObligationCalculated:
		return 5
	case ObligationInProgress:
		return 4
	case ObligationPending, ObligationOverdue:
		return 2
	default:
		return 0
	}
}

type rankedObligation struct {
	obligation Obligation
	rank       int
	periodEnd  time.Time
}

// Build assembles the matrix for the requested window. Rows with no active
// cell in the window are excluded.
func (b *MatrixBuilder) Build(ctx context.Context, now time.Time, q MatrixQuery) (*Matrix, error) {
	year := q.Year
	if year == 0 {
		year = now.Year()
	}
	windowStart, windowEnd := reportingWindow(year, q.Quarter)

	periods, err := b.Calendar.ListPeriods(ctx, PeriodFilter{Year: year})
	if err != nil {
		return nil, fmt.Errorf("listing periods for %d: %w", year, err)
	}
	periodByID := make(map[PeriodID]FiscalPeriod, len(periods))
	inWindow := make(map[PeriodID]bool, len(periods))
	for _, p := range periods {
		periodByID[p.ID] = p
		inWindow[p.ID] = !p.StartDate.After(windowEnd) && !p.EndDate.Before(windowStart)
	}

	obligations, err := b.Obligations.ListObligations(ctx, ObligationFilter{Year: year})
	if err != nil {
		return nil, fmt.Errorf("listing obligations for %d: %w", year, err)
	}

	// Best obligation per (client, model): highest rank, then latest period end.
	best := make(map[string]rankedObligation)
	for _, o := range obligations {
		if !inWindow[o.PeriodID] {
			continue
		}
		candidate := rankedObligation{
			obligation: o,
			rank:       statusRank(o.Status),
			periodEnd:  periodByID[o.PeriodID].EndDate,
		}
		key := string(o.ClientID) + "|" + o.ModelCode
		existing, ok := best[key]
		if !ok || candidate.rank > existing.rank ||
			(candidate.rank == existing.rank && candidate.periodEnd.After(existing.periodEnd)) {
			best[key] = candidate
		}
	}

	clients, err := b.Clients.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}

	models := b.Models
	if len(models) == 0 {
		models = ControlledModels()
	}

	var rows []MatrixRow
	for _, client := range clients {
		if q.Category != "" && client.Category != q.Category {
			continue
		}
		if q.ResponsibleID != "" && client.ResponsibleID != q.ResponsibleID {
			continue
		}

		row, err := b.buildRow(ctx, client, models, q, best, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		rows = append(rows, *row)
	}

	return &Matrix{
		Rows:   rows,
		Models: models,
		Metadata: MatrixMetadata{
			Year:          year,
			Quarter:       q.Quarter,
			TotalClients:  len(rows),
			Category:      q.Category,
			ResponsibleID: q.ResponsibleID,
			Search:        strings.TrimSpace(q.Search),
		},
	}, nil
}

func (b *MatrixBuilder) buildRow(ctx context.Context, client Client, models []string, q MatrixQuery, best map[string]rankedObligation, windowStart, windowEnd time.Time) (*MatrixRow, error) {
	cells := make(map[string]MatrixCell, len(models))
	for _, code := range models {
		cells[code] = MatrixCell{}
	}

	subs, err := b.Subscriptions.ListByClient(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions for client %s: %w", client.ID, err)
	}

	for _, sub := range subs {
		code := sub.ModelCode
		if _, tracked := cells[code]; !tracked {
			continue
		}
		if q.Model != "" && code != q.Model {
			continue
		}
		if q.Periodicity != "" && sub.Periodicity != q.Periodicity {
			continue
		}

		// Active for the window when the subscription's life overlaps it.
		activeForWindow := sub.ActiveFlag &&
			!sub.StartDate.After(windowEnd) &&
			(sub.EndDate == nil || !sub.EndDate.Before(windowStart))

		cell := MatrixCell{
			SubscriptionID: sub.ID,
			Active:         activeForWindow,
			Periodicity:    sub.Periodicity,
			StartDate:      timePtr(sub.StartDate),
			EndDate:        sub.EndDate,
		}

		if entry, ok := best[string(client.ID)+"|"+code]; ok {
			o := entry.obligation
			cell.Status = o.Status
			cell.ObligationID = o.ID
			cell.PeriodID = o.PeriodID
			cell.PeriodLabel = o.PeriodLabel
			if o.CompletedAt != nil {
				cell.StatusUpdatedAt = o.CompletedAt
			} else {
				cell.StatusUpdatedAt = timePtr(entry.periodEnd)
			}
		} else if activeForWindow {
			cell.Status = ObligationPending
		}

		cells[code] = cell
	}

	if !matchesSearch(client, cells, q.Search) {
		return nil, nil
	}

	// Only clients with at least one active model appear in the grid.
	anyActive := false
	for _, c := range cells {
		if c.Active {
			anyActive = true
			break
		}
	}
	if !anyActive {
		return nil, nil
	}

	return &MatrixRow{
		ClientID:        client.ID,
		ClientName:      client.Name,
		TaxID:           client.TaxID,
		Category:        client.Category,
		ResponsibleID:   client.ResponsibleID,
		ResponsibleName: client.ResponsibleName,
		Cells:           cells,
	}, nil
}

func matchesSearch(client Client, cells map[string]MatrixCell, search string) bool {
	search = strings.TrimSpace(search)
	if search == "" {
		return true
	}
	lower := strings.ToLower(search)
	if strings.Contains(strings.ToLower(client.Name), lower) ||
		strings.Contains(strings.ToLower(client.TaxID), lower) {
		return true
	}

	// A search term can also hit a model code with any recorded state.
	upper := strings.ToUpper(search)
	for code, cell := range cells {
		if strings.Contains(code, upper) && (cell.SubscriptionID != "" || cell.Active || cell.Status != "") {
			return true
		}
	}
	return false
}

// reportingWindow returns the inclusive bounds of the requested year or
// quarter, in UTC.
func reportingWindow(year, quarter int) (time.Time, time.Time) {
	if quarter >= 1 && quarter <= 4 {
		startMonth := time.Month(3*quarter - 2)
		start := Date(year, startMonth, 1)
		end := start.AddDate(0, 3, 0).Add(-time.Second)
		return start, end
	}
	return Date(year, time.January, 1), EndOfDay(Date(year, time.December, 31))
}

func timePtr(t time.Time) *time.Time { return &t }
