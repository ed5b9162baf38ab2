package nats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "ops.transfer.failed", SubjectFor("transfer", "failed"))
	assert.Equal(t, "ops.mint.*", SubjectFor("mint", ""))
	assert.Equal(t, "ops.*.*", SubjectFor("", ""))
}

func TestRecordEventSubjectHasNoWildcards(t *testing.T) {
	tests := []struct {
		event RecordEvent
		want  string
	}{
		{event: RecordEvent{Kind: "transfer", Status: "failed"}, want: "ops.transfer.failed"},
		{event: RecordEvent{Kind: "mint"}, want: "ops.mint.unknown"},
		{event: RecordEvent{Status: "success"}, want: "ops.unknown.success"},
		{event: RecordEvent{}, want: "ops.unknown.unknown"},
	}
	for _, tt := range tests {
		got := tt.event.Subject()
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "*")
		assert.NotContains(t, got, ">")
	}
}

func TestFromRecord(t *testing.T) {
	ts := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	rec := ledger.Record{
		ID:        "id-1",
		Signature: "sig",
		Mint:      "mint",
		From:      "alice",
		To:        "bob",
		Amount:    2,
		Timestamp: ts,
		Status:    ledger.StatusFailed,
		Kind:      ledger.KindTransfer,
		Error:     "boom",
	}

	event := FromRecord(rec)
	assert.Equal(t, "transfer", event.Kind)
	assert.Equal(t, "failed", event.Status)
	assert.Equal(t, "ops.transfer.failed", event.Subject())
	assert.False(t, event.PublishedAt.IsZero())
	assert.Equal(t, rec, event.Record())
}

func TestLedgerObserver_PublishesEveryRecord(t *testing.T) {
	pub := NewMockPublisher()
	store := ledger.NewMemory(nil, testLogger(), ledger.WithObserver(LedgerObserver(pub, testLogger())))
	ctx := context.Background()

	store.Record(ctx, ledger.Record{Kind: ledger.KindCreate, Status: ledger.StatusSuccess})
	store.Record(ctx, ledger.Record{Kind: ledger.KindMint, Status: ledger.StatusSuccess})
	store.Record(ctx, ledger.Record{Kind: ledger.KindTransfer, Status: ledger.StatusFailed})

	events := pub.Events("")
	require.Len(t, events, 3)
	assert.Equal(t, "create", events[0].Kind)
	assert.NotEmpty(t, events[0].ID, "ledger assigns the id before observers run")
	assert.Len(t, pub.Events("ops.transfer.failed"), 1)
}

func TestLedgerObserver_SurvivesCancelledContext(t *testing.T) {
	pub := NewMockPublisher()
	observe := LedgerObserver(pub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	observe(ctx, ledger.Record{ID: "x", Kind: ledger.KindMint, Status: ledger.StatusSuccess})

	assert.Len(t, pub.Events(""), 1)
}

func TestLedgerObserver_PublishErrorDoesNotAffectLedger(t *testing.T) {
	pub := NewMockPublisher()
	pub.FailWith(assert.AnError)
	store := ledger.NewMemory(nil, testLogger(), ledger.WithObserver(LedgerObserver(pub, testLogger())))

	store.Record(context.Background(), ledger.Record{Kind: ledger.KindCreate})

	assert.Equal(t, 1, store.Len())
	assert.Empty(t, pub.Events(""))

	pub.FailWith(nil)
	store.Record(context.Background(), ledger.Record{Kind: ledger.KindMint})
	assert.Len(t, pub.Events("ops.mint.unknown"), 1)
	assert.Len(t, pub.Events(""), 1)
}

func TestMockPublisher_Close(t *testing.T) {
	pub := NewMockPublisher()
	require.NoError(t, pub.PublishRecord(context.Background(), &RecordEvent{Kind: "mint", Status: "success"}))
	require.NoError(t, pub.Close())
	assert.True(t, pub.Closed())
	assert.Len(t, pub.Events("ops.mint.success"), 1)
}

func TestStreamConfig_InMemory(t *testing.T) {
	cfg := streamConfig()
	assert.Equal(t, StreamName, cfg.Name)
	assert.Equal(t, []string{"ops.>"}, cfg.Subjects)
	assert.Equal(t, jetstream.MemoryStorage, cfg.Storage)
	assert.LessOrEqual(t, cfg.MaxAge, time.Hour)
	assert.Positive(t, cfg.MaxAge)
}
