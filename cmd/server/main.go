package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/mintify/service/config"
	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/metrics"
	natspkg "github.com/brojonat/mintify/service/nats"
	"github.com/brojonat/mintify/service/server"
	"github.com/brojonat/mintify/service/solana"
	"github.com/brojonat/mintify/service/tokens"
	"github.com/brojonat/mintify/service/wallet"
)

func main() {
	// Local development convenience; real environment variables win
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.SolanaNetwork,
	)

	// Registered on the default registry so promhttp.Handler serves them
	m := metrics.NewMetrics(nil)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(solanaRPC, cfg.SolanaNetwork, m, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Without a keypair the service stays up but every operation reports
	// wallet not connected
	var signer wallet.Signer = wallet.Disconnected{}
	if cfg.KeypairPath != "" {
		kp, err := wallet.LoadKeypairSigner(cfg.KeypairPath, solanaRPC, logger)
		if err != nil {
			logger.Error("failed to load keypair", "path", cfg.KeypairPath, "error", err)
			os.Exit(1)
		}
		signer = kp
	} else {
		logger.Warn("no keypair configured, wallet not connected")
	}

	// NATS is optional: it backs ledger events and SSE streaming
	var ledgerOpts []ledger.Option
	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithObserver(natspkg.LedgerObserver(publisher, logger)))

		ssePublisher, err = server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize SSE publisher", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("NATS not configured, event publishing and streaming disabled")
	}

	history := ledger.NewMemory(m, logger, ledgerOpts...)

	svc := tokens.NewService(signer, solanaClient, history, m, logger,
		tokens.WithWaitOptions(solana.WaitOptions{
			Timeout:      cfg.ConfirmTimeout,
			PollInterval: cfg.ConfirmPollInterval,
		}),
		tokens.WithMaxRetries(cfg.SubmitMaxRetries),
		tokens.WithNetwork(cfg.SolanaNetwork),
		tokens.WithExplorerCluster(cfg.ExplorerCluster()),
	)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, svc, ssePublisher, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"nats_enabled", cfg.NATSURL != "",
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
