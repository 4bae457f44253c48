/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATE HANDLING:
  Calendar dates travel as "YYYY-MM-DD"; timestamps as RFC3339. Period end
  dates are stored at end-of-day so the closing day is inside the window.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - fiscal/types.go: Domain model
*/
package api

import (
	"fmt"
	"time"

	"github.com/gestora/fiscal-engine/fiscal"
)

const dateLayout = "2006-01-02"

// =============================================================================
// PERIOD TYPES
// =============================================================================

// PeriodDTO represents a fiscal period in API responses. Status is the
// effective status: locked periods report their stored state, unlocked
// periods report the date-derived state.
type PeriodDTO struct {
	ID          string `json:"id"`
	ModelCode   string `json:"modelCode"`
	Label       string `json:"label"`
	Year        int    `json:"year"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	PeriodType  string `json:"periodType"`
	Status      string `json:"status"`
	Active      bool   `json:"active"`
	Locked      bool   `json:"locked"`
	DaysToStart *int   `json:"daysToStart,omitempty"`
	DaysToEnd   *int   `json:"daysToEnd,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// CreatePeriodRequest is the request to create a calendar window.
type CreatePeriodRequest struct {
	ModelCode  string `json:"modelCode"`
	Label      string `json:"label"`
	Year       int    `json:"year"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	PeriodType string `json:"periodType"`
	Active     *bool  `json:"active,omitempty"`
}

// UpdatePeriodRequest is a partial period update. Omitted fields are left
// untouched.
type UpdatePeriodRequest struct {
	Label     *string `json:"label,omitempty"`
	StartDate *string `json:"startDate,omitempty"`
	EndDate   *string `json:"endDate,omitempty"`
	Status    *string `json:"status,omitempty"`
	Active    *bool   `json:"active,omitempty"`
	Locked    *bool   `json:"locked,omitempty"`
}

// CloneYearResponse reports how many windows a year clone created.
type CloneYearResponse struct {
	SourceYear   int `json:"sourceYear"`
	TargetYear   int `json:"targetYear"`
	CreatedCount int `json:"createdCount"`
}

// =============================================================================
// SUBSCRIPTION TYPES
// =============================================================================

// SubscriptionDTO represents a client tax-model subscription.
type SubscriptionDTO struct {
	ID          string  `json:"id"`
	ClientID    string  `json:"clientId"`
	ModelCode   string  `json:"modelCode"`
	Periodicity string  `json:"periodicity"`
	StartDate   string  `json:"startDate"`
	EndDate     *string `json:"endDate,omitempty"`
	Active      bool    `json:"active"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

// CreateSubscriptionRequest is the request to enroll a client in a model.
type CreateSubscriptionRequest struct {
	ClientID    string `json:"clientId"`
	ModelCode   string `json:"modelCode"`
	Periodicity string `json:"periodicity"`
	StartDate   string `json:"startDate,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// ToggleSubscriptionRequest flips a subscription's active flag.
type ToggleSubscriptionRequest struct {
	Active bool `json:"active"`
}

// SubscriptionResponse returns a subscription plus the result of the
// backfill that an enrollment or activation triggers.
type SubscriptionResponse struct {
	Subscription SubscriptionDTO `json:"subscription"`
	Backfill     *fiscal.Result  `json:"backfill,omitempty"`
}

// =============================================================================
// OBLIGATION TYPES
// =============================================================================

// ObligationDTO represents a materialized obligation.
type ObligationDTO struct {
	ID          string  `json:"id"`
	ClientID    string  `json:"clientId"`
	ModelCode   string  `json:"modelCode"`
	PeriodID    string  `json:"periodId"`
	PeriodLabel string  `json:"periodLabel"`
	Year        int     `json:"year"`
	DueDate     string  `json:"dueDate"`
	Status      string  `json:"status"`
	Amount      *string `json:"amount,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CompletedAt *string `json:"completedAt,omitempty"`
	CompletedBy string  `json:"completedBy,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
	UpdatedAt   string  `json:"updatedAt,omitempty"`
}

// OpenObligationDTO is an obligation inside a currently open window, with
// day counters derived from the window.
type OpenObligationDTO struct {
	ObligationDTO
	PeriodStartDate string `json:"periodStartDate"`
	PeriodEndDate   string `json:"periodEndDate"`
	DaysToEnd       *int   `json:"daysToEnd,omitempty"`
	WindowMessage   string `json:"windowMessage,omitempty"`
}

// UpdateObligationRequest is a user-driven partial edit.
type UpdateObligationRequest struct {
	Status *string `json:"status,omitempty"`
	Amount *string `json:"amount,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// CompleteObligationRequest carries the optional settlement amount.
type CompleteObligationRequest struct {
	Amount *string `json:"amount,omitempty"`
}

// StatsDTO summarizes obligation counts per status.
type StatsDTO struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
}

// SweepResponse reports the outcome of an overdue sweep.
type SweepResponse struct {
	MarkedOverdue int    `json:"markedOverdue"`
	SweptAt       string `json:"sweptAt"`
}

// =============================================================================
// CLIENT TYPES
// =============================================================================

// ClientDTO is the directory projection of a client.
type ClientDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TaxID           string `json:"taxId,omitempty"`
	Category        string `json:"category,omitempty"`
	ResponsibleID   string `json:"responsibleId,omitempty"`
	ResponsibleName string `json:"responsibleName,omitempty"`
	Email           string `json:"email,omitempty"`
}

// SaveClientRequest upserts a client projection.
type SaveClientRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TaxID           string `json:"taxId,omitempty"`
	Category        string `json:"category,omitempty"`
	ResponsibleID   string `json:"responsibleId,omitempty"`
	ResponsibleName string `json:"responsibleName,omitempty"`
	Email           string `json:"email,omitempty"`
}

// =============================================================================
// MATRIX TYPES
// =============================================================================

// MatrixCellDTO is the resolved state of one (client, model) pair.
type MatrixCellDTO struct {
	SubscriptionID  string  `json:"subscriptionId,omitempty"`
	Active          bool    `json:"active"`
	Periodicity     string  `json:"periodicity,omitempty"`
	StartDate       *string `json:"startDate,omitempty"`
	EndDate         *string `json:"endDate,omitempty"`
	Status          string  `json:"status,omitempty"`
	StatusUpdatedAt *string `json:"statusUpdatedAt,omitempty"`
	ObligationID    string  `json:"obligationId,omitempty"`
	PeriodID        string  `json:"periodId,omitempty"`
	PeriodLabel     string  `json:"periodLabel,omitempty"`
}

// MatrixRowDTO is one client's cells keyed by model code.
type MatrixRowDTO struct {
	ClientID        string                   `json:"clientId"`
	ClientName      string                   `json:"clientName"`
	TaxID           string                   `json:"taxId,omitempty"`
	Category        string                   `json:"category,omitempty"`
	ResponsibleID   string                   `json:"responsibleId,omitempty"`
	ResponsibleName string                   `json:"responsibleName,omitempty"`
	Cells           map[string]MatrixCellDTO `json:"cells"`
}

// MatrixMetadataDTO echoes the applied filters.
type MatrixMetadataDTO struct {
	Year          int    `json:"year"`
	Quarter       int    `json:"quarter,omitempty"`
	TotalClients  int    `json:"totalClients"`
	Category      string `json:"category,omitempty"`
	ResponsibleID string `json:"responsibleId,omitempty"`
	Search        string `json:"search,omitempty"`
}

// MatrixResponse is the full control grid.
type MatrixResponse struct {
	Rows     []MatrixRowDTO    `json:"rows"`
	Models   []string          `json:"models"`
	Metadata MatrixMetadataDTO `json:"metadata"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// =============================================================================
// COMMON TYPES
// =============================================================================

// ErrorResponse is the standard error format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPeriodDTO(now time.Time, p fiscal.FiscalPeriod) PeriodDTO {
	w := fiscal.PeriodWindow(now, p)
	return PeriodDTO{
		ID:          string(p.ID),
		ModelCode:   p.ModelCode,
		Label:       p.Label,
		Year:        p.Year,
		StartDate:   p.StartDate.Format(dateLayout),
		EndDate:     p.EndDate.Format(dateLayout),
		PeriodType:  string(p.PeriodType),
		Status:      string(fiscal.EffectiveStatus(now, p)),
		Active:      p.Active,
		Locked:      p.Locked,
		DaysToStart: w.DaysToStart,
		DaysToEnd:   w.DaysToEnd,
		CreatedAt:   formatTimestamp(p.CreatedAt),
		UpdatedAt:   formatTimestamp(p.UpdatedAt),
	}
}

func toSubscriptionDTO(s fiscal.Subscription) SubscriptionDTO {
	dto := SubscriptionDTO{
		ID:          string(s.ID),
		ClientID:    string(s.ClientID),
		ModelCode:   s.ModelCode,
		Periodicity: string(s.Periodicity),
		StartDate:   s.StartDate.Format(dateLayout),
		Active:      s.ActiveFlag,
		Notes:       s.Notes,
		CreatedAt:   formatTimestamp(s.CreatedAt),
	}
	if s.EndDate != nil {
		v := s.EndDate.Format(dateLayout)
		dto.EndDate = &v
	}
	return dto
}

func toObligationDTO(o fiscal.Obligation) ObligationDTO {
	dto := ObligationDTO{
		ID:          string(o.ID),
		ClientID:    string(o.ClientID),
		ModelCode:   o.ModelCode,
		PeriodID:    string(o.PeriodID),
		PeriodLabel: o.PeriodLabel,
		Year:        o.Year,
		DueDate:     o.DueDate.Format(dateLayout),
		Status:      string(o.Status),
		Notes:       o.Notes,
		CompletedBy: o.CompletedBy,
		CreatedAt:   formatTimestamp(o.CreatedAt),
		UpdatedAt:   formatTimestamp(o.UpdatedAt),
	}
	if o.Amount != nil {
		v := o.Amount.String()
		dto.Amount = &v
	}
	if o.CompletedAt != nil {
		v := o.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &v
	}
	return dto
}

func toOpenObligationDTO(now time.Time, oo fiscal.OpenObligation) OpenObligationDTO {
	w := fiscal.PeriodWindow(now, oo.Period)
	return OpenObligationDTO{
		ObligationDTO:   toObligationDTO(oo.Obligation),
		PeriodStartDate: oo.Period.StartDate.Format(dateLayout),
		PeriodEndDate:   oo.Period.EndDate.Format(dateLayout),
		DaysToEnd:       w.DaysToEnd,
		WindowMessage:   windowMessage(w),
	}
}

// windowMessage renders the day counters the way advisors read them.
func windowMessage(w fiscal.Window) string {
	switch {
	case w.DaysToStart != nil:
		if *w.DaysToStart == 1 {
			return "starts tomorrow"
		}
		return fmt.Sprintf("starts in %d days", *w.DaysToStart)
	case w.DaysToEnd != nil:
		if *w.DaysToEnd <= 1 {
			return "ends today"
		}
		return fmt.Sprintf("ends in %d days", *w.DaysToEnd)
	default:
		return ""
	}
}

func toClientDTO(c fiscal.Client) ClientDTO {
	return ClientDTO{
		ID:              string(c.ID),
		Name:            c.Name,
		TaxID:           c.TaxID,
		Category:        string(c.Category),
		ResponsibleID:   c.ResponsibleID,
		ResponsibleName: c.ResponsibleName,
		Email:           c.Email,
	}
}

func toMatrixResponse(m *fiscal.Matrix) MatrixResponse {
	rows := make([]MatrixRowDTO, len(m.Rows))
	for i, row := range m.Rows {
		cells := make(map[string]MatrixCellDTO, len(row.Cells))
		for model, cell := range row.Cells {
			cells[model] = toMatrixCellDTO(cell)
		}
		rows[i] = MatrixRowDTO{
			ClientID:        string(row.ClientID),
			ClientName:      row.ClientName,
			TaxID:           row.TaxID,
			Category:        string(row.Category),
			ResponsibleID:   row.ResponsibleID,
			ResponsibleName: row.ResponsibleName,
			Cells:           cells,
		}
	}
	return MatrixResponse{
		Rows:   rows,
		Models: m.Models,
		Metadata: MatrixMetadataDTO{
			Year:          m.Metadata.Year,
			Quarter:       m.Metadata.Quarter,
			TotalClients:  m.Metadata.TotalClients,
			Category:      string(m.Metadata.Category),
			ResponsibleID: m.Metadata.ResponsibleID,
			Search:        m.Metadata.Search,
		},
	}
}

func toMatrixCellDTO(c fiscal.MatrixCell) MatrixCellDTO {
	dto := MatrixCellDTO{
		SubscriptionID: string(c.SubscriptionID),
		Active:         c.Active,
		Periodicity:    string(c.Periodicity),
		Status:         string(c.Status),
		ObligationID:   string(c.ObligationID),
		PeriodID:       string(c.PeriodID),
		PeriodLabel:    c.PeriodLabel,
	}
	if c.StartDate != nil {
		v := c.StartDate.Format(dateLayout)
		dto.StartDate = &v
	}
	if c.EndDate != nil {
		v := c.EndDate.Format(dateLayout)
		dto.EndDate = &v
	}
	if c.StatusUpdatedAt != nil {
		v := c.StatusUpdatedAt.Format(time.RFC3339)
		dto.StatusUpdatedAt = &v
	}
	return dto
}

func toStatsDTO(s fiscal.ObligationStats) StatsDTO {
	return StatsDTO{
		Total:      s.Total,
		Pending:    s.Pending,
		InProgress: s.InProgress,
		Completed:  s.Completed,
		Overdue:    s.Overdue,
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
