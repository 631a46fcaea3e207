package notify

import (
	"encoding/json"
	"time"

	"github.com/warp/obligation-engine/obligation"
)

// PaymentMessage is the body published for each recorded payment.
// Amounts travel as decimal strings.
type PaymentMessage struct {
	EntryID      string    `json:"entry_id"`
	DefinitionID string    `json:"definition_id"`
	Kind         string    `json:"kind"`
	PartyID      string    `json:"party_id"`
	PartyName    string    `json:"party_name,omitempty"`
	Category     string    `json:"category,omitempty"`
	Period       string    `json:"period"`
	Channel      string    `json:"channel"`
	Amount       string    `json:"amount"`
	PaidAt       time.Time `json:"paid_at"`
	Method       string    `json:"method"`
	Reference    string    `json:"reference,omitempty"`
	Auto         bool      `json:"auto"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewPaymentMessage builds the message for a payment event.
func NewPaymentMessage(event obligation.PaymentEvent, now time.Time) *PaymentMessage {
	return &PaymentMessage{
		EntryID:      string(event.EntryID),
		DefinitionID: string(event.DefinitionID),
		Kind:         event.KindID,
		PartyID:      event.PartyID,
		PartyName:    event.PartyName,
		Category:     event.Category,
		Period:       event.Period.Key(),
		Channel:      string(event.Channel),
		Amount:       event.Amount.String(),
		PaidAt:       event.PaidAt.UTC(),
		Method:       event.Method,
		Reference:    event.Reference,
		Auto:         event.Auto,
		Timestamp:    now.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentMessageFromJSON decodes a published message.
func PaymentMessageFromJSON(data []byte) (*PaymentMessage, error) {
	var msg PaymentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
