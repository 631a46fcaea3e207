package salary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
)

// Employee is the party a salary is owed to.
type Employee struct {
	ID         string
	Name       string
	Department string
	JoinDate   *time.Time
}

// Terms are the pay terms of a salary definition.
type Terms struct {
	FixedSalary decimal.Decimal
	Incentive   decimal.Decimal // sales only
	Reward      decimal.Decimal
	AnchorDay   int // pay day of month, defaults to the last day
	StartDate   time.Time
	EndDate     *time.Time
	AutoPay     bool
}

// DefaultAnchorDay pays on the last day of each month.
const DefaultAnchorDay = 31

// DefinitionID is the salary definition ID of an employee.
func DefinitionID(employeeID string) obligation.DefinitionID {
	return obligation.DefinitionID("salary-" + employeeID)
}

// NewDefinition builds an active monthly salary definition.
func NewDefinition(emp Employee, terms Terms) obligation.Definition {
	anchor := terms.AnchorDay
	if anchor == 0 {
		anchor = DefaultAnchorDay
	}
	return obligation.Definition{
		ID:        DefinitionID(emp.ID),
		Kind:      KindFor(emp.Department),
		PartyID:   emp.ID,
		PartyName: emp.Name,
		Category:  emp.Department,
		Amount:    terms.FixedSalary,
		Incentive: terms.Incentive,
		Reward:    terms.Reward,
		Frequency: obligation.FrequencyMonthly,
		AnchorDay: anchor,
		StartDate: terms.StartDate,
		EndDate:   terms.EndDate,
		JoinDate:  emp.JoinDate,
		Status:    obligation.StatusActive,
		AutoPay:   terms.AutoPay,
	}
}

// Service implements the salary admin actions.
type Service struct {
	store obligation.DefinitionStore
	log   *logging.Logger
	Clock obligation.Clock
}

func NewService(store obligation.DefinitionStore, logger *logging.Logger) *Service {
	return &Service{store: store, log: logger.WithComponent(logging.ComponentSalary)}
}

// SetEmployeeSalary creates or replaces the employee's salary definition.
// Replacing keeps the definition's ID, status and creation time; entries
// generated earlier keep their amounts.
func (s *Service) SetEmployeeSalary(ctx context.Context, emp Employee, terms Terms) (*obligation.Definition, error) {
	if emp.ID == "" {
		return nil, &obligation.ValidationError{Field: "employee_id", Message: "required"}
	}
	if emp.Name == "" {
		return nil, &obligation.ValidationError{Field: "name", Message: "required"}
	}

	now := s.Clock.Now()
	def := NewDefinition(emp, terms)
	def.CreatedAt, def.UpdatedAt = now, now

	existing, err := s.store.GetDefinition(ctx, def.ID)
	switch {
	case err == nil:
		def.CreatedAt = existing.CreatedAt
		def.Status = existing.Status
	case !errors.Is(err, obligation.ErrDefinitionNotFound):
		return nil, fmt.Errorf("load salary of %s: %w", emp.ID, err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("save salary of %s: %w", emp.ID, err)
	}

	s.log.InfoContext(ctx, "salary set",
		logging.FieldDefinitionID, def.ID,
		logging.FieldKind, def.KindID(),
		logging.FieldAmount, def.Amount.String(),
		"replaced", existing != nil,
	)
	return &def, nil
}
