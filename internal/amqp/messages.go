package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event types.
const (
	EventSavingsRecorded  = "savings_recorded"
	EventActivityRecorded = "activity_recorded"
	EventMonthProcessed   = "month_processed"
)

// ScoreMonthMessage asks the worker to run month-end processing.
// A nil Month means the month before the current one.
type ScoreMonthMessage struct {
	RunID     string    `json:"run_id"`
	Month     *int      `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewScoreMonthMessage creates a processing request for month (nil for the default).
func NewScoreMonthMessage(runID string, month *int) *ScoreMonthMessage {
	return &ScoreMonthMessage{
		RunID:     runID,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ScoreMonthMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ScoreMonthMessageFromJSON(data []byte) (*ScoreMonthMessage, error) {
	var msg ScoreMonthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// LedgerEventMessage announces a change to a user's ledger or a completed
// processing run. UserID is empty for run-level events.
type LedgerEventMessage struct {
	Type            string    `json:"type"`
	UserID          string    `json:"user_id,omitempty"`
	Month           string    `json:"month"`
	AmountCents     int64     `json:"amount_cents,omitempty"`
	ComplianceScore int       `json:"compliance_score,omitempty"`
	Processed       int       `json:"processed,omitempty"`
	Failures        int       `json:"failures,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(eventType, userID, month string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Type:      eventType,
		UserID:    userID,
		Month:     month,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
