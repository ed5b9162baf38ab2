// Package ledger keeps the in-process history of token operations.
package ledger

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/brojonat/mintify/service/metrics"
	"github.com/google/uuid"
)

// Kind identifies which token operation produced a record.
type Kind string

const (
	KindCreate   Kind = "create"
	KindMint     Kind = "mint"
	KindTransfer Kind = "transfer"
)

// Status is the terminal outcome of an operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is one attempted token operation. Records are never mutated once
// they have been handed to a Store.
type Record struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"` // empty if the transaction was never submitted
	Mint      string    `json:"mint_address"`
	From      string    `json:"from"`
	To        string    `json:"to"` // empty for create
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Kind      Kind      `json:"type"`
	Error     string    `json:"error,omitempty"`
}

// Store is the ledger contract used by token operations and the view layer.
type Store interface {
	// Record inserts rec at the front of the ledger and returns it with ID
	// and Timestamp filled in when they were empty.
	Record(ctx context.Context, rec Record) Record
	// List returns a most-recent-first snapshot.
	List(ctx context.Context) []Record
}

// Observer is notified after every record lands in the ledger.
type Observer func(ctx context.Context, rec Record)

// Option configures a Memory ledger.
type Option func(*Memory)

// WithObserver registers an observer called synchronously after each Record.
func WithObserver(o Observer) Option {
	return func(m *Memory) {
		m.observers = append(m.observers, o)
	}
}

// WithClock overrides the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// Memory is an append-only, unbounded, in-memory Store.
// Order is insertion order, so concurrent writers land in completion order.
type Memory struct {
	mu        sync.RWMutex
	records   []Record
	observers []Observer
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty ledger. If metrics is nil, no metrics will be recorded.
func NewMemory(m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Memory {
	mem := &Memory{
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(mem)
	}
	return mem
}

// Record implements Store. It never fails and performs no validation or deduplication.
func (m *Memory) Record(ctx context.Context, rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}

	m.mu.Lock()
	m.records = slices.Insert(m.records, 0, rec)
	size := len(m.records)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetLedgerRecords(size)
	}

	m.logger.DebugContext(ctx, "recorded operation",
		"id", rec.ID,
		"kind", rec.Kind,
		"status", rec.Status,
		"signature", rec.Signature,
		"ledger_size", size,
	)

	for _, o := range m.observers {
		o(ctx, rec)
	}

	return rec
}

// List implements Store.
func (m *Memory) List(ctx context.Context) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
