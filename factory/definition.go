/*
Package factory provides JSON to Go definition conversion.

PURPOSE:
  Converts JSON obligation definitions into obligation.Definition values
  and back. Admin tools and the HTTP API create definitions of any
  registered kind through this one format, so a new kind needs no new
  endpoint.

JSON SCHEMA:
  {
    "id": "salary-emp-001",
    "kind": "salary_sales",
    "party_id": "emp-001",
    "party_name": "Ana Lima",
    "category": "sales",
    "amount": "50000",
    "incentive": "5000",
    "reward": "0",
    "frequency": "monthly",
    "anchor_day": 31,
    "start_date": "2025-01-01",
    "end_date": "2025-12-31",
    "join_date": "2024-11-15",
    "status": "active",
    "auto_pay": false
  }

  Amounts are decimal strings. Optional fields may be omitted.

KEY FEATURES:
  - Resolves the kind through the registry (unknown kinds are rejected)
  - Defaults: status active, frequency monthly, fresh UUID when id is empty
  - Runs Definition.Validate before returning

USAGE:
  f := factory.NewDefinitionFactory()
  def, err := f.ParseDefinition(body)
  if err != nil {
      return err // *obligation.ValidationError for bad input
  }
  store.SaveDefinition(ctx, *def)

SEE ALSO:
  - obligation/types.go: Definition type
  - obligation/kind.go: Kind registry
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// DefinitionJSON is the JSON representation of a definition.
type DefinitionJSON struct {
	ID        string `json:"id,omitempty"`
	Kind      string `json:"kind"`
	PartyID   string `json:"party_id"`
	PartyName string `json:"party_name,omitempty"`
	Category  string `json:"category,omitempty"`

	Amount    string `json:"amount"`
	Incentive string `json:"incentive,omitempty"`
	Reward    string `json:"reward,omitempty"`

	Frequency string `json:"frequency,omitempty"` // monthly, quarterly, yearly
	AnchorDay int    `json:"anchor_day"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	JoinDate  string `json:"join_date,omitempty"`

	Status  string `json:"status,omitempty"`
	AutoPay bool   `json:"auto_pay"`

	CreatedAt string `json:"created_at,omitempty"` // output only
	UpdatedAt string `json:"updated_at,omitempty"` // output only
}

// =============================================================================
// DEFINITION FACTORY
// =============================================================================

// DefinitionFactory converts JSON definitions to Go structs.
type DefinitionFactory struct {
	Clock obligation.Clock
}

// NewDefinitionFactory creates a new definition factory.
func NewDefinitionFactory() *DefinitionFactory {
	return &DefinitionFactory{}
}

// ParseDefinition parses a JSON document into a validated Definition.
func (f *DefinitionFactory) ParseDefinition(data []byte) (*obligation.Definition, error) {
	var dj DefinitionJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return nil, &obligation.ValidationError{Message: fmt.Sprintf("malformed definition JSON: %v", err)}
	}
	return f.FromJSON(dj)
}

// FromJSON converts DefinitionJSON to a validated Definition.
func (f *DefinitionFactory) FromJSON(dj DefinitionJSON) (*obligation.Definition, error) {
	kind := obligation.LookupKind(dj.Kind)
	if kind == nil {
		return nil, &obligation.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", dj.Kind)}
	}

	now := f.Clock.Now()
	def := &obligation.Definition{
		ID:        obligation.DefinitionID(strings.TrimSpace(dj.ID)),
		Kind:      kind,
		PartyID:   strings.TrimSpace(dj.PartyID),
		PartyName: strings.TrimSpace(dj.PartyName),
		Category:  strings.TrimSpace(dj.Category),
		Frequency: obligation.Frequency(dj.Frequency),
		AnchorDay: dj.AnchorDay,
		Status:    obligation.DefinitionStatus(dj.Status),
		AutoPay:   dj.AutoPay,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if def.ID == "" {
		def.ID = obligation.DefinitionID(uuid.NewString())
	}
	if def.Frequency == "" {
		def.Frequency = obligation.FrequencyMonthly
	}
	if def.Status == "" {
		def.Status = obligation.StatusActive
	}

	var err error
	if def.Amount, err = parseAmount("amount", dj.Amount, true); err != nil {
		return nil, err
	}
	if def.Incentive, err = parseAmount("incentive", dj.Incentive, false); err != nil {
		return nil, err
	}
	if def.Reward, err = parseAmount("reward", dj.Reward, false); err != nil {
		return nil, err
	}

	if def.StartDate, err = parseDateField("start_date", dj.StartDate); err != nil {
		return nil, err
	}
	if def.EndDate, err = parseOptionalDate("end_date", dj.EndDate); err != nil {
		return nil, err
	}
	if def.JoinDate, err = parseOptionalDate("join_date", dj.JoinDate); err != nil {
		return nil, err
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// ToJSON converts a Definition to DefinitionJSON.
func (f *DefinitionFactory) ToJSON(def obligation.Definition) DefinitionJSON {
	dj := DefinitionJSON{
		ID:        string(def.ID),
		Kind:      def.KindID(),
		PartyID:   def.PartyID,
		PartyName: def.PartyName,
		Category:  def.Category,
		Amount:    def.Amount.String(),
		Incentive: def.Incentive.String(),
		Reward:    def.Reward.String(),
		Frequency: string(def.Frequency),
		AnchorDay: def.AnchorDay,
		StartDate: def.StartDate.Format(obligation.DateLayout),
		Status:    string(def.Status),
		AutoPay:   def.AutoPay,
	}
	if def.EndDate != nil {
		dj.EndDate = def.EndDate.Format(obligation.DateLayout)
	}
	if def.JoinDate != nil {
		dj.JoinDate = def.JoinDate.Format(obligation.DateLayout)
	}
	if !def.CreatedAt.IsZero() {
		dj.CreatedAt = def.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !def.UpdatedAt.IsZero() {
		dj.UpdatedAt = def.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAmount(field, s string, required bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if required {
			return decimal.Zero, &obligation.ValidationError{Field: field, Message: "required"}
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &obligation.ValidationError{Field: field, Message: fmt.Sprintf("not a decimal: %q", s)}
	}
	return d, nil
}

func parseDateField(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, &obligation.ValidationError{Field: field, Message: "required"}
	}
	t, err := obligation.ParseDate(s)
	if err != nil {
		return time.Time{}, &obligation.ValidationError{Field: field, Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return t, nil
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDateField(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
