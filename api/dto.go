/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the obligation model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags. decodeRequest runs them
  and turns the first failure into an *obligation.ValidationError named by
  the JSON field, so clients see the same error shape as domain validation.
  Custom tags:
    decimal   parses as a decimal number
    period    YYYY-MM
    date      YYYY-MM-DD

  Amounts are decimal strings on the wire, in both directions.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/definition.go: DefinitionJSON type
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest generates entries up to a period.
type GenerateRequest struct {
	Kind   string `json:"kind"`
	Period string `json:"period" validate:"required,period"`
}

// PayRequest marks one channel paid.
type PayRequest struct {
	Method    string `json:"method" validate:"required,max=64"`
	Reference string `json:"reference" validate:"max=128"`
	Remarks   string `json:"remarks" validate:"max=512"`
}

// PendingAmountRequest edits a pending channel's amount.
type PendingAmountRequest struct {
	Channel string `json:"channel" validate:"omitempty,oneof=base incentive reward"`
	Amount  string `json:"amount" validate:"required,decimal"`
}

// StatusRequest changes a definition's status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive paused"`
}

// SalaryRequest sets an employee's salary terms.
type SalaryRequest struct {
	EmployeeID  string `json:"employee_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Department  string `json:"department"`
	JoinDate    string `json:"join_date" validate:"omitempty,date"`
	FixedSalary string `json:"fixed_salary" validate:"required,decimal"`
	Incentive   string `json:"incentive" validate:"omitempty,decimal"`
	Reward      string `json:"reward" validate:"omitempty,decimal"`
	AnchorDay   int    `json:"anchor_day" validate:"min=0,max=31"`
	StartDate   string `json:"start_date" validate:"required,date"`
	EndDate     string `json:"end_date" validate:"omitempty,date"`
	AutoPay     bool   `json:"auto_pay"`
}

// ExpenseRequest adds a recurring expense.
type ExpenseRequest struct {
	Subject   string `json:"subject"`
	Name      string `json:"name" validate:"required"`
	Category  string `json:"category"`
	Amount    string `json:"amount" validate:"required,decimal"`
	Frequency string `json:"frequency" validate:"omitempty,oneof=monthly quarterly yearly"`
	AnchorDay int    `json:"anchor_day" validate:"required,min=1,max=31"`
	StartDate string `json:"start_date" validate:"required,date"`
	EndDate   string `json:"end_date" validate:"omitempty,date"`
	AutoPay   bool   `json:"auto_pay"`
}

// LoadScenarioRequest loads a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChannelDTO is one channel of an entry.
type ChannelDTO struct {
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaidDate      string          `json:"paid_date,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
	Overdue       bool            `json:"overdue"`
}

// EntryDTO represents an entry in API responses. Channels holds only the
// channels the entry's kind supports.
type EntryDTO struct {
	ID            string                `json:"id"`
	DefinitionID  string                `json:"definition_id"`
	Kind          string                `json:"kind"`
	PartyID       string                `json:"party_id"`
	PartyName     string                `json:"party_name"`
	Category      string                `json:"category"`
	Period        string                `json:"period"`
	DueDate       string                `json:"due_date"`
	Status        string                `json:"status"`
	Overdue       bool                  `json:"overdue"`
	Total         decimal.Decimal       `json:"total"`
	PaidAmount    decimal.Decimal       `json:"paid_amount"`
	PendingAmount decimal.Decimal       `json:"pending_amount"`
	Channels      map[string]ChannelDTO `json:"channels"`
	UpdatedAt     string                `json:"updated_at"`
}

// HistoryItemDTO is one paid channel.
type HistoryItemDTO struct {
	EntryID       string          `json:"entry_id"`
	Period        string          `json:"period"`
	DueDate       string          `json:"due_date"`
	Channel       string          `json:"channel"`
	Amount        decimal.Decimal `json:"amount"`
	PaidDate      string          `json:"paid_date,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
}

// KindDTO lists a registered kind.
type KindDTO struct {
	ID       string   `json:"id"`
	Channels []string `json:"channels"`
}

// AutoPayRunDTO reports one auto-pay run.
type AutoPayRunDTO struct {
	Period    string                    `json:"period"`
	Generated obligation.GenerateResult `json:"generated"`
	Sweep     obligation.SweepResult    `json:"sweep"`
	RanAt     string                    `json:"ran_at"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// ConflictResponse carries the entry's current state with a 409.
type ConflictResponse struct {
	ErrorResponse
	Entry *EntryDTO `json:"entry,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func toEntryDTO(e obligation.Entry, now time.Time) EntryDTO {
	dto := EntryDTO{
		ID:            string(e.ID),
		DefinitionID:  string(e.DefinitionID),
		Kind:          e.KindID,
		PartyID:       e.PartyID,
		PartyName:     e.PartyName,
		Category:      e.Category,
		Period:        e.Period.Key(),
		DueDate:       e.DueDate.Format(obligation.DateLayout),
		Status:        string(e.Status()),
		Overdue:       e.Overdue(now),
		Total:         e.Total(),
		PaidAmount:    e.PaidAmount(),
		PendingAmount: e.PendingAmount(),
		Channels:      make(map[string]ChannelDTO),
		UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, ch := range e.Kind().Channels() {
		rec := e.Channel(ch)
		c := ChannelDTO{
			Amount:        rec.Amount,
			Status:        string(rec.Status),
			PaymentMethod: rec.PaymentMethod,
			Reference:     rec.Reference,
			Remarks:       rec.Remarks,
			Overdue:       e.ChannelOverdue(ch, now),
		}
		if rec.PaidDate != nil {
			c.PaidDate = rec.PaidDate.UTC().Format(time.RFC3339)
		}
		dto.Channels[string(ch)] = c
	}
	return dto
}

func toEntryDTOs(entries []obligation.Entry, now time.Time) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e, now)
	}
	return dtos
}

func toHistoryDTOs(items []obligation.HistoryItem) []HistoryItemDTO {
	dtos := make([]HistoryItemDTO, len(items))
	for i, it := range items {
		dtos[i] = HistoryItemDTO{
			EntryID:       string(it.EntryID),
			Period:        it.Period.Key(),
			DueDate:       it.DueDate.Format(obligation.DateLayout),
			Channel:       string(it.Channel),
			Amount:        it.Amount,
			PaymentMethod: it.PaymentMethod,
			Reference:     it.Reference,
			Remarks:       it.Remarks,
		}
		if it.PaidDate != nil {
			dtos[i].PaidDate = it.PaidDate.UTC().Format(time.RFC3339)
		}
	}
	return dtos
}

// =============================================================================
// REQUEST DECODING
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		_, err := obligation.ParsePeriod(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(obligation.DateLayout, fl.Field().String())
		return err == nil
	})
	return v
}

// decodeRequest decodes the JSON body into dst and validates it.
func (h *Handler) decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &obligation.ValidationError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return h.validateRequest(dst)
}

// validateRequest runs struct tags and converts the first failure.
func (h *Handler) validateRequest(dst any) error {
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &obligation.ValidationError{Message: err.Error()}
	}
	e := verrs[0]
	var msg string
	switch e.Tag() {
	case "required":
		msg = "required"
	case "oneof":
		msg = "must be one of: " + e.Param()
	case "min":
		msg = "must be at least " + e.Param()
	case "max":
		msg = "must be at most " + e.Param()
	case "decimal":
		msg = "must be a decimal number"
	case "period":
		msg = "expected YYYY-MM"
	case "date":
		msg = "expected YYYY-MM-DD"
	default:
		msg = "failed " + e.Tag()
	}
	return &obligation.ValidationError{Field: e.Field(), Message: msg}
}
