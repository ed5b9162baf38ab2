package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing ledger records to NATS.
type Publisher interface {
	// PublishRecord publishes a single record event to JetStream.
	// The event is published to the subject "ops.{type}.{status}".
	PublishRecord(ctx context.Context, event *RecordEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes record events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for token operations.
	StreamName = "MINTIFY_OPS"

	// SubjectPrefix is the first token of every operation subject.
	SubjectPrefix = "ops"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + ".>"

	// StreamRetention bounds how long a record stays in the in-memory stream.
	// Subscribers only receive records published after they connect.
	StreamRetention = 10 * time.Minute

	// publishTimeout bounds a publish made on behalf of the ledger.
	publishTimeout = 5 * time.Second
)

// Connect dials NATS with the reconnect settings shared by publishers and
// SSE subscribers.
func Connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
// If metrics is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, js, err := Connect(natsURL, "mintify-publisher")
	if err != nil {
		return nil, err
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, streamConfig())
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// streamConfig keeps operation events in server memory only.
func streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Token create, mint and transfer operations",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	}
}

// PublishRecord publishes a single record event. The record ID is used as
// the JetStream message ID so a retried publish is deduplicated.
func (p *JetStreamPublisher) PublishRecord(ctx context.Context, event *RecordEvent) error {
	subject := event.Subject()
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal record event: %w", err)
	}

	var opts []jetstream.PublishOpt
	if event.ID != "" {
		opts = append(opts, jetstream.WithMsgID(event.ID))
	}

	_, err = p.js.Publish(ctx, subject, data, opts...)
	p.observe(subject, start, err)
	if err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}

	p.logger.DebugContext(ctx, "published record event",
		"subject", subject,
		"id", event.ID,
		"signature", event.Signature,
	)

	return nil
}

func (p *JetStreamPublisher) observe(subject string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// LedgerObserver returns a ledger observer that publishes every record.
// Publish failures are logged and never affect the ledger. The publish
// outlives a cancelled request context but is bounded by a short timeout.
func LedgerObserver(p Publisher, logger *slog.Logger) ledger.Observer {
	return func(ctx context.Context, rec ledger.Record) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := p.PublishRecord(ctx, FromRecord(rec)); err != nil {
			logger.ErrorContext(ctx, "failed to publish record",
				"id", rec.ID,
				"type", rec.Kind,
				"signature", rec.Signature,
				"error", err,
			)
		}
	}
}

var _ Publisher = (*JetStreamPublisher)(nil)
