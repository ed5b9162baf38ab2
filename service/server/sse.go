package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/metrics"
	natspkg "github.com/brojonat/mintify/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const sseKeepaliveInterval = 10 * time.Second

// SSEPublisher fans ledger records from the JetStream stream out to
// Server-Sent Events clients.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher connects to NATS; each streaming client gets its own
// ephemeral consumer.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, js, err := natspkg.Connect(natsURL, "mintify-sse")
	if err != nil {
		return nil, err
	}

	logger.Info("SSE streaming enabled", "nats_url", natsURL)
	return &SSEPublisher{nc: nc, js: js, logger: logger}, nil
}

// Close closes the NATS connection, ending every open stream.
func (p *SSEPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	p.nc.Close()
	p.logger.Info("SSE streaming stopped")
	return nil
}

// subscribe delivers records published after the call whose subject matches
// filter. Delivery stops when ctx ends.
func (p *SSEPublisher) subscribe(ctx context.Context, filter string) (<-chan ledger.Record, error) {
	cons, err := p.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", filter, err)
	}

	out := make(chan ledger.Record, 16)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var event natspkg.RecordEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			p.logger.WarnContext(ctx, "dropping malformed record event",
				"subject", msg.Subject(),
				"error", err,
			)
			return
		}
		select {
		case out <- event.Record():
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", filter, err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return out, nil
}

// sseStream writes text/event-stream frames.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	return &sseStream{w: w, flusher: flusher}
}

func (s *sseStream) send(event string, data []byte) {
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flush()
}

func (s *sseStream) comment(text string) {
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flush()
}

func (s *sseStream) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// handleStreamHistory streams ledger records as they are recorded.
// GET /api/v1/stream/history?type={kind}&status={status}
func handleStreamHistory(publisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("type")
		status := r.URL.Query().Get("status")
		if err := validateKind(kind); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateStatus(status); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		subject := natspkg.SubjectFor(kind, status)
		ctx := r.Context()

		// The stream outlives the server write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		stream := newSSEStream(w)
		records, err := publisher.subscribe(ctx, subject)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to records", "subject", subject, "error", err)
			stream.send("error", []byte(`{"error": "failed to subscribe"}`))
			return
		}

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}
		logger.DebugContext(ctx, "stream opened", "subject", subject, "remote_addr", r.RemoteAddr)

		hello, _ := json.Marshal(map[string]string{"subject": subject})
		stream.send("connected", hello)

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				stream.comment("keepalive")

			case <-ctx.Done():
				logger.DebugContext(ctx, "stream closed", "subject", subject, "remote_addr", r.RemoteAddr)
				return

			case rec := <-records:
				data, err := json.Marshal(rec)
				if err != nil {
					logger.WarnContext(ctx, "failed to encode record", "id", rec.ID, "error", err)
					continue
				}
				stream.send("record", data)
				if m != nil {
					m.RecordSSEEventSent("record")
				}
			}
		}
	})
}
