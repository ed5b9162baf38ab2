package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/metrics"
	"github.com/brojonat/mintify/service/solana"
	"github.com/brojonat/mintify/service/tokens"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// writeTimeout must exceed the confirmation timeout since token operation
// requests block until the transaction is confirmed.
const writeTimeout = 2 * time.Minute

// TokenService is the view-facing API. *tokens.Service implements it.
type TokenService interface {
	CreateAsset(ctx context.Context) (string, error)
	MintAsset(ctx context.Context, mint string, amount float64) (string, error)
	TransferAsset(ctx context.Context, mint, recipient string, amount float64) (ledger.Record, error)
	ListHistory(ctx context.Context) []ledger.Record
	Status(ctx context.Context) (*tokens.Status, error)
	Holdings(ctx context.Context, owner string) ([]solana.TokenHolding, error)
	ExplorerURL(signature string) string
}

var _ TokenService = (*tokens.Service)(nil)

// Server represents the HTTP server for the token service.
type Server struct {
	addr         string
	tokens       TokenService
	ssePublisher *SSEPublisher
	renderer     *TemplateRenderer
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, svc TokenService, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		tokens:       svc,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Read side
	mux.Handle("GET /api/v1/status", s.instrument("/api/v1/status", handleStatus(s.tokens, s.logger)))
	mux.Handle("GET /api/v1/holdings", s.instrument("/api/v1/holdings", handleHoldings(s.tokens, s.logger)))
	mux.Handle("GET /api/v1/history", s.instrument("/api/v1/history", handleListHistory(s.tokens, s.logger)))

	// Token operations
	mux.Handle("POST /api/v1/tokens", s.instrument("/api/v1/tokens", handleCreateToken(s.tokens, s.logger)))
	mux.Handle("POST /api/v1/tokens/{mint}/mint", s.instrument("/api/v1/tokens/{mint}/mint", handleMintToken(s.tokens, s.logger)))
	mux.Handle("POST /api/v1/tokens/{mint}/transfer", s.instrument("/api/v1/tokens/{mint}/transfer", handleTransferToken(s.tokens, s.logger)))

	// SSE streaming endpoint (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/history", s.instrument("/api/v1/stream/history", handleStreamHistory(s.ssePublisher, s.metrics, s.logger)))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoint disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /{$}", handleIndexPage(s.renderer, s.tokens, s.ssePublisher != nil))
		mux.HandleFunc("GET /favicon.ico", handleFavicon())
		mux.HandleFunc("GET /favicon.svg", handleFavicon())
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
