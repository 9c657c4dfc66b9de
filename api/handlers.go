/*
handlers.go - HTTP API handlers for the obligation engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response and JSON
  serialization, then delegates to the obligation.Engine orchestration
  functions - handlers never reach around the engine into the store for
  writes.

ENDPOINTS:
  Works:
    GET    /api/works                   List works
    POST   /api/works                   Create work (seeds first period)
    GET    /api/works/{id}              Get work
    DELETE /api/works/{id}              Delete work (cascades)
    GET    /api/works/{id}/periods      List the work's periods
    POST   /api/works/{id}/backfill     Generate elapsed periods

  Periods and tasks:
    GET    /api/periods/{id}/tasks      List a period's tasks
    POST   /api/periods/{id}/tasks      Add ad-hoc task
    POST   /api/tasks/{id}/status       Set task status (runs tracker+billing)
    DELETE /api/tasks/{id}              Remove task

  Invoices:
    GET    /api/invoices                List invoices
    DELETE /api/invoices/{id}           Delete invoice (resets period billing)

  Admin:
    POST   /api/admin/backfill          Backfill all active recurring works
    POST   /api/admin/overdue           Flag overdue tasks

ERROR HANDLING:
  - 400: validation errors, invalid input
  - 404: missing rows (engine.IsNotFound)
  - 500: everything else

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/obligation"
)

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	Engine *obligation.Engine
}

// NewHandler creates a handler around the engine.
func NewHandler(eng *obligation.Engine) *Handler {
	return &Handler{Engine: eng}
}

// =============================================================================
// WORK HANDLERS
// =============================================================================

// ListWorks returns all works.
func (h *Handler) ListWorks(w http.ResponseWriter, r *http.Request) {
	works, err := h.Engine.Store.ListWorks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list works", err)
		return
	}
	dtos := make([]WorkDTO, len(works))
	for i, wk := range works {
		dtos[i] = toWorkDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWork returns a single work.
func (h *Handler) GetWork(w http.ResponseWriter, r *http.Request) {
	work, err := h.Engine.Store.GetWork(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeNotFoundOr500(w, "Failed to get work", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkDTO(*work))
}

// CreateWork creates a work and seeds its first period.
func (h *Handler) CreateWork(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CustomerID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "customer_id and title are required", nil)
		return
	}

	work := engine.Work{
		CustomerID:  req.CustomerID,
		ServiceID:   req.ServiceID,
		Title:       req.Title,
		IsRecurring: req.IsRecurring,
		Pattern:     engine.RecurrencePattern(req.Pattern),
		Shift:       engine.PeriodShift(req.PeriodType),
		AutoBill:    req.AutoBill,
	}
	if req.StartDate != "" {
		d, err := engine.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		work.StartDate = d
	}
	if req.BillingAmount != "" {
		amount, err := decimal.NewFromString(req.BillingAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid billing_amount", err)
			return
		}
		work.BillingAmount = &amount
	}

	created, err := h.Engine.CreateWork(r.Context(), work)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create work", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkDTO(*created))
}

// DeleteWork removes a work and all owned periods, tasks and invoices.
func (h *Handler) DeleteWork(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteWork(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeNotFoundOr500(w, "Failed to delete work", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateWorkStatus applies an administrative status change (hold, reactivate,
// close) to a work.
func (h *Handler) UpdateWorkStatus(w http.ResponseWriter, r *http.Request) {
	var req SetWorkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status := engine.WorkStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be one of 'active', 'on_hold', 'completed', 'overdue'", nil)
		return
	}

	if err := h.Engine.SetWorkStatus(r.Context(), chi.URLParam(r, "id"), status); err != nil {
		writeNotFoundOr500(w, "Failed to update work", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWorkPeriods returns the work's periods, oldest first.
func (h *Handler) ListWorkPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Engine.Store.ListPeriods(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// BackfillWork generates all elapsed periods for one work.
func (h *Handler) BackfillWork(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "id")
	created, err := h.Engine.Backfill(r.Context(), workID)
	if err != nil {
		writeNotFoundOr500(w, "Backfill failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BackfillResponse{WorkID: workID, PeriodsCreated: created})
}

// =============================================================================
// PERIOD AND TASK HANDLERS
// =============================================================================

// ListPeriodTasks returns a period's task instances.
func (h *Handler) ListPeriodTasks(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	if _, err := h.Engine.Store.GetPeriod(r.Context(), periodID); err != nil {
		writeNotFoundOr500(w, "Failed to get period", err)
		return
	}
	tasks, err := h.Engine.Store.ListTasks(r.Context(), periodID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddTask attaches an ad-hoc task to a period.
func (h *Handler) AddTask(w http.ResponseWriter, r *http.Request) {
	var req AddTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	var due *engine.Date
	if req.DueDate != "" {
		d, err := engine.ParseDate(req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
			return
		}
		due = &d
	}

	task, err := h.Engine.AddTask(r.Context(), chi.URLParam(r, "id"), req.Title, due)
	if err != nil {
		writeNotFoundOr500(w, "Failed to add task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(*task))
}

// SetTaskStatus updates one task; the completion tracker and billing
// trigger run before this returns.
func (h *Handler) SetTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req SetTaskStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status := engine.TaskStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be 'pending' or 'completed'", nil)
		return
	}

	period, err := h.Engine.SetTaskStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeNotFoundOr500(w, "Failed to update task", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*period))
}

// RemoveTask deletes a task and recomputes its period.
func (h *Handler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeNotFoundOr500(w, "Failed to remove task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SERVICE HANDLERS
// =============================================================================

// ListServices returns the service catalog.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Engine.Store.ListServices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list services", err)
		return
	}
	dtos := make([]ServiceDTO, len(services))
	for i, svc := range services {
		dtos[i] = toServiceDTO(svc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetService returns one service.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.Engine.Store.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeNotFoundOr500(w, "Failed to load service", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceDTO(*svc))
}

// ListServiceTemplates returns a service's active task templates in sort
// order.
func (h *Handler) ListServiceTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Engine.Store.ListServiceTemplates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, len(templates))
	for i, tpl := range templates {
		dtos[i] = toTemplateDTO(tpl)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns all invoices.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Engine.Store.ListInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteInvoice removes an invoice and resets the period's billing state.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeNotFoundOr500(w, "Failed to delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// BackfillAll runs backfill for every active recurring work.
func (h *Handler) BackfillAll(w http.ResponseWriter, r *http.Request) {
	works, periods, err := h.Engine.BackfillAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Backfill failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BackfillResponse{WorksProcessed: works, PeriodsCreated: periods})
}

// UpdateOverdue flags overdue tasks.
func (h *Handler) UpdateOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.Engine.UpdateOverdueStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, OverdueResponse{TasksFlagged: n})
}

// =============================================================================
// HELPERS
// =============================================================================

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

func writeNotFoundOr500(w http.ResponseWriter, message string, err error) {
	if engine.IsNotFound(err) {
		writeError(w, http.StatusNotFound, message, err)
		return
	}
	writeError(w, http.StatusInternalServerError, message, err)
}
