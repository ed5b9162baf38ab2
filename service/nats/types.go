package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/mintify/service/ledger"
)

// RecordEvent is a ledger record as published to NATS.
// This is published to the subject "ops.{type}.{status}" in JetStream.
type RecordEvent struct {
	ID        string `json:"id"`
	Signature string `json:"signature"`

	Kind   string `json:"type"`
	Status string `json:"status"`

	Mint   string  `json:"mint_address"`
	From   string  `json:"from"`
	To     string  `json:"to,omitempty"`
	Amount float64 `json:"amount"`
	Error  string  `json:"error,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a ledger record to a RecordEvent for publishing.
func FromRecord(rec ledger.Record) *RecordEvent {
	return &RecordEvent{
		ID:          rec.ID,
		Signature:   rec.Signature,
		Kind:        string(rec.Kind),
		Status:      string(rec.Status),
		Mint:        rec.Mint,
		From:        rec.From,
		To:          rec.To,
		Amount:      rec.Amount,
		Error:       rec.Error,
		Timestamp:   rec.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// Record converts the event back into a ledger record.
func (e *RecordEvent) Record() ledger.Record {
	return ledger.Record{
		ID:        e.ID,
		Signature: e.Signature,
		Mint:      e.Mint,
		From:      e.From,
		To:        e.To,
		Amount:    e.Amount,
		Timestamp: e.Timestamp,
		Status:    ledger.Status(e.Status),
		Kind:      ledger.Kind(e.Kind),
		Error:     e.Error,
	}
}

// Subject returns the JetStream subject the event is published to. It never
// contains wildcards; a missing type or status is published as "unknown".
func (e *RecordEvent) Subject() string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, orUnknown(e.Kind), orUnknown(e.Status))
}

func orUnknown(part string) string {
	if part == "" {
		return "unknown"
	}
	return part
}

// SubjectFor builds a subscription filter from an operation type and status.
// Empty parts become the "*" wildcard, so SubjectFor("", "") matches every
// operation.
func SubjectFor(kind, status string) string {
	if kind == "" {
		kind = "*"
	}
	if status == "" {
		status = "*"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, kind, status)
}
