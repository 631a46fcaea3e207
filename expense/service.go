package expense

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
)

// Expense describes a recurring organizational cost, e.g. office rent.
type Expense struct {
	Subject   string // payee or cost-center slug
	Name      string
	Category  string
	Amount    decimal.Decimal
	Frequency obligation.Frequency
	AnchorDay int
	StartDate time.Time
	EndDate   *time.Time
	AutoPay   bool
}

// NewDefinition builds an active expense definition with a fresh ID.
func NewDefinition(e Expense) obligation.Definition {
	freq := e.Frequency
	if freq == "" {
		freq = obligation.FrequencyMonthly
	}
	subject := e.Subject
	if subject == "" {
		subject = slug(e.Name)
	}
	return obligation.Definition{
		ID:        obligation.DefinitionID("expense-" + uuid.NewString()),
		Kind:      KindRecurring,
		PartyID:   subject,
		PartyName: e.Name,
		Category:  e.Category,
		Amount:    e.Amount,
		Frequency: freq,
		AnchorDay: e.AnchorDay,
		StartDate: e.StartDate,
		EndDate:   e.EndDate,
		Status:    obligation.StatusActive,
		AutoPay:   e.AutoPay,
	}
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Service implements the expense admin actions.
type Service struct {
	store obligation.DefinitionStore
	log   *logging.Logger
	Clock obligation.Clock
}

func NewService(store obligation.DefinitionStore, logger *logging.Logger) *Service {
	return &Service{store: store, log: logger.WithComponent(logging.ComponentExpense)}
}

// AddRecurringExpense validates and stores a new expense definition.
func (s *Service) AddRecurringExpense(ctx context.Context, e Expense) (*obligation.Definition, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, &obligation.ValidationError{Field: "name", Message: "required"}
	}
	def := NewDefinition(e)
	now := s.Clock.Now()
	def.CreatedAt, def.UpdatedAt = now, now

	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("save expense %q: %w", e.Name, err)
	}

	s.log.InfoContext(ctx, "recurring expense added",
		logging.FieldDefinitionID, def.ID,
		logging.FieldAmount, def.Amount.String(),
		"frequency", def.Frequency,
	)
	return &def, nil
}
