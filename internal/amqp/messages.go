package amqp

import (
	"encoding/json"
	"time"
)

const (
	KindCommitted = "committed"
	KindReversed  = "reversed"
)

// TransactionEvent is a lightweight notification that a transaction was
// committed or reversed. Consumers fetch the full record from the
// database by ID.
type TransactionEvent struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BudgetAlertMessage carries a crossed budget threshold. Amounts travel
// as decimal strings to avoid float rounding on the wire.
type BudgetAlertMessage struct {
	UserID    string    `json:"user_id"`
	Period    string    `json:"period"`
	Threshold int       `json:"threshold"`
	Spent     string    `json:"spent"`
	Limit     string    `json:"limit"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
