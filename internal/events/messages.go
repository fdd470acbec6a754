package events

import (
	"encoding/json"
	"time"

	"github.com/mmynk/settleup/internal/money"
)

// Type names a domain event. It doubles as the AMQP routing key.
type Type string

const (
	ExpenseCreated     Type = "expense.created"
	ExpenseDeleted     Type = "expense.deleted"
	SettlementRecorded Type = "settlement.recorded"
)

// Message is a lightweight notification; consumers fetch full records from
// the API when they need more than the IDs and amount.
type Message struct {
	Type         Type        `json:"type"`
	GroupID      string      `json:"group_id"`
	ExpenseID    string      `json:"expense_id,omitempty"`
	SettlementID string      `json:"settlement_id,omitempty"`
	From         string      `json:"from,omitempty"`
	To           string      `json:"to,omitempty"`
	Amount       money.Money `json:"amount"`
	Timestamp    time.Time   `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes a message published by Publish.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
