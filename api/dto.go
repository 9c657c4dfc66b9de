/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"strings"
	"time"

	"github.com/warp/obligation-engine/engine"
)

// =============================================================================
// WORKS
// =============================================================================

type WorkDTO struct {
	ID            string `json:"id"`
	CustomerID    string `json:"customer_id"`
	ServiceID     string `json:"service_id,omitempty"`
	Title         string `json:"title"`
	IsRecurring   bool   `json:"is_recurring"`
	Pattern       string `json:"recurrence_pattern"`
	PeriodType    string `json:"period_type"`
	StartDate     string `json:"start_date,omitempty"`
	BillingAmount string `json:"billing_amount,omitempty"`
	AutoBill      bool   `json:"auto_bill"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type CreateWorkRequest struct {
	CustomerID    string `json:"customer_id"`
	ServiceID     string `json:"service_id,omitempty"`
	Title         string `json:"title"`
	IsRecurring   bool   `json:"is_recurring"`
	Pattern       string `json:"recurrence_pattern,omitempty"`
	PeriodType    string `json:"period_type,omitempty"`
	StartDate     string `json:"start_date,omitempty"` // YYYY-MM-DD
	BillingAmount string `json:"billing_amount,omitempty"`
	AutoBill      bool   `json:"auto_bill"`
}

func toWorkDTO(w engine.Work) WorkDTO {
	dto := WorkDTO{
		ID:          w.ID,
		CustomerID:  w.CustomerID,
		ServiceID:   w.ServiceID,
		Title:       w.Title,
		IsRecurring: w.IsRecurring,
		Pattern:     string(w.Pattern),
		PeriodType:  string(w.Shift),
		AutoBill:    w.AutoBill,
		Status:      string(w.Status),
		CreatedAt:   w.CreatedAt.Format(time.RFC3339),
	}
	if !w.StartDate.IsZero() {
		dto.StartDate = w.StartDate.String()
	}
	if w.BillingAmount != nil {
		dto.BillingAmount = w.BillingAmount.String()
	}
	return dto
}

// =============================================================================
// SERVICES AND TEMPLATES
// =============================================================================

type ServiceDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DefaultPrice string `json:"default_price,omitempty"`
	TaxRate      string `json:"tax_rate"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toServiceDTO(svc engine.Service) ServiceDTO {
	dto := ServiceDTO{
		ID:        svc.ID,
		Name:      svc.Name,
		TaxRate:   svc.TaxRate.String(),
		CreatedAt: svc.CreatedAt.Format(time.RFC3339),
	}
	if svc.DefaultPrice != nil {
		dto.DefaultPrice = svc.DefaultPrice.String()
	}
	return dto
}

// TemplateDTO mirrors the catalog JSON task shape so clients see the same
// due-rule vocabulary they seed with.
type TemplateDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SortOrder   int    `json:"sort_order"`
	ExactDate   string `json:"exact_date,omitempty"`
	DueMonth    string `json:"due_month,omitempty"`
	DueDay      int    `json:"due_day,omitempty"`
	Weekday     string `json:"weekday,omitempty"`
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	OffsetValue int    `json:"offset_value,omitempty"`
	OffsetUnit  string `json:"offset_unit,omitempty"`
}

func toTemplateDTO(t engine.TaskTemplate) TemplateDTO {
	dto := TemplateDTO{
		ID:         t.ID,
		Title:      t.Title,
		SortOrder:  t.SortOrder,
		DueDay:     t.Rule.DueDay,
		DayOfMonth: t.Rule.DayOfMonth,
	}
	if t.Rule.ExactDate != nil {
		dto.ExactDate = t.Rule.ExactDate.String()
	}
	if t.Rule.DueMonth != nil {
		dto.DueMonth = strings.ToLower(t.Rule.DueMonth.String())
	}
	if t.Rule.Weekday != nil {
		dto.Weekday = strings.ToLower(t.Rule.Weekday.String())
	}
	if t.Rule.Offset.Value != 0 {
		dto.OffsetValue = t.Rule.Offset.Value
		dto.OffsetUnit = string(t.Rule.Offset.Unit)
		if dto.OffsetUnit == "" {
			dto.OffsetUnit = string(engine.OffsetDays)
		}
	}
	return dto
}

// =============================================================================
// PERIODS AND TASKS
// =============================================================================

type PeriodDTO struct {
	ID                string `json:"id"`
	WorkID            string `json:"work_id"`
	Name              string `json:"period_name"`
	Start             string `json:"period_start_date"`
	End               string `json:"period_end_date"`
	Status            string `json:"status"`
	TotalTasks        int    `json:"total_tasks"`
	CompletedTasks    int    `json:"completed_tasks"`
	AllTasksCompleted bool   `json:"all_tasks_completed"`
	IsBilled          bool   `json:"is_billed"`
	InvoiceID         string `json:"invoice_id,omitempty"`
	CompletedAt       string `json:"completed_at,omitempty"`
}

func toPeriodDTO(p engine.Period) PeriodDTO {
	dto := PeriodDTO{
		ID:                p.ID,
		WorkID:            p.WorkID,
		Name:              p.Name,
		Start:             p.Start.String(),
		End:               p.End.String(),
		Status:            string(p.Status),
		TotalTasks:        p.TotalTasks,
		CompletedTasks:    p.CompletedTasks,
		AllTasksCompleted: p.AllTasksCompleted,
		IsBilled:          p.IsBilled,
	}
	if p.InvoiceID != nil {
		dto.InvoiceID = *p.InvoiceID
	}
	if p.CompletedAt != nil {
		dto.CompletedAt = p.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

type TaskDTO struct {
	ID         string `json:"id"`
	PeriodID   string `json:"period_id"`
	TemplateID string `json:"template_id,omitempty"`
	Title      string `json:"title"`
	DueDate    string `json:"due_date,omitempty"`
	Status     string `json:"status"`
	SortOrder  int    `json:"sort_order"`
	IsOverdue  bool   `json:"is_overdue"`
}

func toTaskDTO(t engine.TaskInstance) TaskDTO {
	dto := TaskDTO{
		ID:        t.ID,
		PeriodID:  t.PeriodID,
		Title:     t.Title,
		Status:    string(t.Status),
		SortOrder: t.SortOrder,
		IsOverdue: t.IsOverdue,
	}
	if t.TemplateID != nil {
		dto.TemplateID = *t.TemplateID
	}
	if t.DueDate != nil {
		dto.DueDate = t.DueDate.String()
	}
	return dto
}

type SetWorkStatusRequest struct {
	Status string `json:"status"` // active | on_hold | completed | overdue
}

type SetTaskStatusRequest struct {
	Status string `json:"status"` // pending | completed
}

type AddTaskRequest struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty"` // YYYY-MM-DD
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceDTO struct {
	ID         string `json:"id"`
	Number     string `json:"invoice_number"`
	PeriodID   string `json:"period_id"`
	WorkID     string `json:"work_id"`
	CustomerID string `json:"customer_id"`
	Amount     string `json:"amount"`
	Tax        string `json:"tax"`
	Total      string `json:"total"`
	Status     string `json:"status"`
	IssuedAt   string `json:"issued_at"`
}

func toInvoiceDTO(inv engine.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:         inv.ID,
		Number:     inv.Number,
		PeriodID:   inv.PeriodID,
		WorkID:     inv.WorkID,
		CustomerID: inv.CustomerID,
		Amount:     inv.Amount.String(),
		Tax:        inv.Tax.String(),
		Total:      inv.Total.String(),
		Status:     string(inv.Status),
		IssuedAt:   inv.IssuedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ADMIN
// =============================================================================

type BackfillResponse struct {
	WorkID         string `json:"work_id,omitempty"`
	WorksProcessed int    `json:"works_processed,omitempty"`
	PeriodsCreated int    `json:"periods_created"`
}

type OverdueResponse struct {
	TasksFlagged int `json:"tasks_flagged"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
