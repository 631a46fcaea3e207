/*
handlers.go - HTTP API handlers for the obligation engine

PURPOSE:
  Exposes generation, payments, statistics, history and definition
  administration via REST. Handles HTTP request/response and JSON
  serialization; every rule lives in the obligation package.

ENDPOINTS:
  Generation:
    POST   /api/generate                              Generate all definitions of a kind
    POST   /api/definitions/{id}/generate             Generate one definition

  Entries:
    GET    /api/entries                               Filtered list
    GET    /api/entries/{id}                          One entry
    PUT    /api/entries/{id}/channels/{channel}/pay   Mark a channel paid
    PUT    /api/entries/{id}/pending-amount           Edit a pending amount
    DELETE /api/entries/{id}                          Delete an open entry

  Reads:
    GET    /api/stats                                 Totals over the entry filter
    GET    /api/definitions/{id}/history              Payment history

  Definitions:
    GET    /api/definitions                           List
    POST   /api/definitions                           Create from factory JSON
    GET    /api/definitions/{id}                      Get
    PUT    /api/definitions/{id}                      Update terms
    PUT    /api/definitions/{id}/status               Activate, pause, deactivate
    DELETE /api/definitions/{id}                      Delete if it has no entries
    POST   /api/salaries                              Set employee salary
    POST   /api/expenses                              Add recurring expense
    GET    /api/kinds                                 Registered kinds

  Admin:
    POST   /api/admin/autopay/run                     Generate + auto-pay now

ENTRY FILTER (query string, GET /api/entries and /api/stats):
  period, from, to      YYYY-MM
  category, kind, definition_id, party_id
  status                pending, partial, paid, overdue, unpaid

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid channel
  - 404: Definition or entry not found
  - 409: State conflict; the body carries the entry's current state
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/expense"
	"github.com/warp/obligation-engine/factory"
	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/salary"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       obligation.Store
	Generator   *obligation.Generator
	Ledger      *obligation.Ledger
	Stats       *obligation.Aggregator
	History     *obligation.HistoryReader
	Salaries    *salary.Service
	Expenses    *expense.Service
	Definitions *factory.DefinitionFactory

	clock    obligation.Clock
	validate *validator.Validate
	log      *logging.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the services over store. notifier may be nil.
func NewHandler(store obligation.Store, notifier obligation.Notifier, logger *logging.Logger) *Handler {
	return &Handler{
		Store:       store,
		Generator:   obligation.NewGenerator(store, logger),
		Ledger:      obligation.NewLedger(store, notifier, logger),
		Stats:       obligation.NewAggregator(store),
		History:     obligation.NewHistoryReader(store),
		Salaries:    salary.NewService(store, logger),
		Expenses:    expense.NewService(store, logger),
		Definitions: factory.NewDefinitionFactory(),
		validate:    newValidator(),
		log:         logger.WithComponent(logging.ComponentHTTP),
	}
}

// SetClock points every service at clock. Used by tests and demos.
func (h *Handler) SetClock(clock obligation.Clock) {
	h.clock = clock
	h.Generator.Clock = clock
	h.Ledger.Clock = clock
	h.Stats.Clock = clock
	h.History.Clock = clock
	h.Salaries.Clock = clock
	h.Expenses.Clock = clock
	h.Definitions.Clock = clock
}

// =============================================================================
// GENERATION HANDLERS
// =============================================================================

// GenerateAll generates every active definition of a kind.
func (h *Handler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Kind != "" && obligation.LookupKind(req.Kind) == nil {
		h.writeServiceError(w, r, &obligation.ValidationError{Field: "kind", Message: "unknown kind"})
		return
	}

	res, err := h.Generator.GenerateAll(r.Context(), req.Kind, obligation.MustParsePeriod(req.Period))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateDefinition generates one definition.
func (h *Handler) GenerateDefinition(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	id := obligation.DefinitionID(chi.URLParam(r, "id"))
	res, err := h.Generator.GenerateDefinition(r.Context(), id, obligation.MustParsePeriod(req.Period))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns entries matching the query filter.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEntryFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entries, err := h.Stats.Entries(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries, h.clock.Now()))
}

// GetEntry returns a single entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Store.GetEntry(r.Context(), obligation.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry, h.clock.Now()))
}

// MarkPaid pays one channel of an entry.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	ch, err := obligation.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req PayRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entry, err := h.Ledger.MarkPaid(r.Context(), obligation.EntryID(chi.URLParam(r, "id")), ch, obligation.PaymentDetails{
		Method:    req.Method,
		Reference: req.Reference,
		Remarks:   req.Remarks,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry, h.clock.Now()))
}

// EditPendingAmount changes the amount of a pending channel.
func (h *Handler) EditPendingAmount(w http.ResponseWriter, r *http.Request) {
	var req PendingAmountRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	ch := obligation.ChannelBase
	if req.Channel != "" {
		ch = obligation.Channel(req.Channel)
	}

	entry, err := h.Ledger.EditPending(r.Context(), obligation.EntryID(chi.URLParam(r, "id")), ch, decimal.RequireFromString(req.Amount))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry, h.clock.Now()))
}

// DeleteEntry removes an open entry.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteEntry(r.Context(), obligation.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// GetStats returns totals over the query filter.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEntryFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	stats, err := h.Stats.Aggregate(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetHistory returns the payment history of a definition.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.History.History(r.Context(), obligation.DefinitionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(items))
}

// =============================================================================
// DEFINITION HANDLERS
// =============================================================================

// ListDefinitions returns definitions filtered by kind, status, category, party_id.
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := obligation.DefinitionFilter{
		KindID:   q.Get("kind"),
		Status:   obligation.DefinitionStatus(q.Get("status")),
		Category: q.Get("category"),
		PartyID:  q.Get("party_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeServiceError(w, r, &obligation.ValidationError{Field: "status", Message: "must be one of active, inactive, paused"})
		return
	}

	defs, err := h.Store.ListDefinitions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]factory.DefinitionJSON, len(defs))
	for i, d := range defs {
		dtos[i] = h.Definitions.ToJSON(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDefinition creates a definition of any registered kind.
func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	def, err := h.Definitions.ParseDefinition(body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetDefinition(ctx, def.ID); err == nil {
		h.writeServiceError(w, r, obligation.ErrDefinitionExists)
		return
	} else if !errors.Is(err, obligation.ErrDefinitionNotFound) {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.Store.SaveDefinition(ctx, *def); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Definitions.ToJSON(*def))
}

// GetDefinition returns a single definition.
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.Store.GetDefinition(r.Context(), obligation.DefinitionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Definitions.ToJSON(*def))
}

// UpdateDefinition replaces a definition's terms. Entries already generated
// keep the amounts they were created with; only future generation sees the
// new terms.
func (h *Handler) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := obligation.DefinitionID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetDefinition(ctx, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var dj factory.DefinitionJSON
	if err := h.decodeRequest(r, &dj); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dj.ID = string(id)
	if dj.Kind == "" {
		dj.Kind = existing.KindID()
	}
	if dj.Kind != existing.KindID() {
		h.writeServiceError(w, r, &obligation.ValidationError{Field: "kind", Message: "cannot change the kind of a definition"})
		return
	}
	if dj.Status == "" {
		dj.Status = string(existing.Status)
	}

	def, err := h.Definitions.FromJSON(dj)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	def.CreatedAt = existing.CreatedAt

	if err := h.Store.SaveDefinition(ctx, *def); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.log.InfoContext(ctx, "definition updated", logging.FieldDefinitionID, id)
	writeJSON(w, http.StatusOK, h.Definitions.ToJSON(*def))
}

// SetDefinitionStatus activates, pauses or deactivates a definition.
func (h *Handler) SetDefinitionStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	def, err := h.Store.GetDefinition(ctx, obligation.DefinitionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	def.Status = obligation.DefinitionStatus(req.Status)
	def.UpdatedAt = h.clock.Now()
	if err := h.Store.SaveDefinition(ctx, *def); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Definitions.ToJSON(*def))
}

// DeleteDefinition removes a definition that has no entries.
func (h *Handler) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteDefinition(r.Context(), obligation.DefinitionID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSalary creates or updates an employee's salary definition.
func (h *Handler) SetSalary(w http.ResponseWriter, r *http.Request) {
	var req SalaryRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	emp := salary.Employee{
		ID:         req.EmployeeID,
		Name:       req.Name,
		Department: req.Department,
		JoinDate:   optionalDate(req.JoinDate),
	}
	terms := salary.Terms{
		FixedSalary: decimal.RequireFromString(req.FixedSalary),
		Incentive:   optionalDecimal(req.Incentive),
		Reward:      optionalDecimal(req.Reward),
		AnchorDay:   req.AnchorDay,
		StartDate:   *optionalDate(req.StartDate),
		EndDate:     optionalDate(req.EndDate),
		AutoPay:     req.AutoPay,
	}

	def, err := h.Salaries.SetEmployeeSalary(r.Context(), emp, terms)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Definitions.ToJSON(*def))
}

// AddExpense adds a recurring expense definition.
func (h *Handler) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	def, err := h.Expenses.AddRecurringExpense(r.Context(), expense.Expense{
		Subject:   req.Subject,
		Name:      req.Name,
		Category:  req.Category,
		Amount:    decimal.RequireFromString(req.Amount),
		Frequency: obligation.Frequency(req.Frequency),
		AnchorDay: req.AnchorDay,
		StartDate: *optionalDate(req.StartDate),
		EndDate:   optionalDate(req.EndDate),
		AutoPay:   req.AutoPay,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Definitions.ToJSON(*def))
}

// ListKinds returns the registered kinds and their channels.
func (h *Handler) ListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := obligation.ListKinds()
	dtos := make([]KindDTO, len(kinds))
	for i, k := range kinds {
		dto := KindDTO{ID: k.KindID()}
		for _, ch := range k.Channels() {
			dto.Channels = append(dto.Channels, string(ch))
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunAutoPay generates auto-pay definitions up to the current period and
// pays whatever is due.
func (h *Handler) RunAutoPay(ctx context.Context) (AutoPayRunDTO, error) {
	now := h.clock.Now()
	current := obligation.PeriodOf(now)
	run := AutoPayRunDTO{Period: current.Key(), RanAt: now.Format(time.RFC3339)}

	generated, err := h.Generator.GenerateMatching(ctx, obligation.DefinitionFilter{AutoPayOnly: true}, current)
	if err != nil {
		return run, err
	}
	run.Generated = generated

	sweep, err := h.Ledger.SweepAutoPay(ctx)
	if err != nil {
		return run, err
	}
	run.Sweep = sweep
	return run, nil
}

// TriggerAutoPay runs auto-pay immediately.
func (h *Handler) TriggerAutoPay(w http.ResponseWriter, r *http.Request) {
	run, err := h.RunAutoPay(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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

// writeServiceError maps domain errors to HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *obligation.ValidationError
		conflict *obligation.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: verr.Message, Field: verr.Field})
	case obligation.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.As(err, &conflict):
		resp := ConflictResponse{ErrorResponse: ErrorResponse{Error: conflict.Err.Error(), Details: err.Error()}}
		if conflict.Entry != nil {
			dto := toEntryDTO(*conflict.Entry, h.clock.Now())
			resp.Entry = &dto
		}
		writeJSON(w, http.StatusConflict, resp)
	case obligation.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case obligation.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			logging.FieldPath, r.URL.Path,
			logging.FieldError, err,
		)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

// parseEntryFilter reads the entry filter from the query string.
func parseEntryFilter(r *http.Request) (obligation.EntryFilter, error) {
	q := r.URL.Query()
	filter := obligation.EntryFilter{
		Category:     q.Get("category"),
		KindID:       q.Get("kind"),
		DefinitionID: obligation.DefinitionID(q.Get("definition_id")),
		PartyID:      q.Get("party_id"),
	}

	periods := []struct {
		name string
		dst  **obligation.Period
	}{
		{"period", &filter.Period},
		{"from", &filter.From},
		{"to", &filter.To},
	}
	for _, p := range periods {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		parsed, err := obligation.ParsePeriod(raw)
		if err != nil {
			return filter, &obligation.ValidationError{Field: p.name, Message: "expected YYYY-MM"}
		}
		*p.dst = &parsed
	}

	status, err := obligation.ParseStatusFilter(q.Get("status"))
	if err != nil {
		return filter, err
	}
	filter.Status = status
	return filter, nil
}

// optionalDate parses a date that already passed request validation.
func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := obligation.ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

func optionalDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}
