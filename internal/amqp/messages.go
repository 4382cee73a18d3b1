package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEvent names what happened to a ledger entry.
type LedgerEvent string

const (
	EventCreated LedgerEvent = "created"
	EventCharged LedgerEvent = "charged"
	EventDeleted LedgerEvent = "deleted"
)

// LedgerEventMessage is a lightweight notification about a ledger entry.
// It carries only identifiers; consumers load the entry from the database.
type LedgerEventMessage struct {
	EntryID   string      `json:"entry_id"`
	UserID    string      `json:"user_id"`
	Event     LedgerEvent `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewLedgerEventMessage(entryID, userID string, event LedgerEvent) *LedgerEventMessage {
	return &LedgerEventMessage{
		EntryID:   entryID,
		UserID:    userID,
		Event:     event,
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
