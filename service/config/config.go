package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	SolanaRPCURL  string
	SolanaNetwork string // "devnet", "testnet" or "mainnet"

	// KeypairPath points at a Solana CLI keypair file (JSON array of 64 bytes).
	// When empty the service runs without a connected wallet and every
	// token operation fails with a wallet-not-connected error.
	KeypairPath string

	// NATS configuration. Empty disables event publishing and SSE streaming.
	NATSURL string

	// Confirmation polling
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// SubmitMaxRetries is forwarded to the RPC node as maxRetries on sendTransaction.
	SubmitMaxRetries uint
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error listing every problem found.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "devnet")
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", defaultRPCURL(cfg.SolanaNetwork))

	cfg.KeypairPath = os.Getenv("KEYPAIR_PATH")
	if cfg.KeypairPath != "" {
		if _, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath); err != nil {
			errs = append(errs, fmt.Errorf("KEYPAIR_PATH: %w", err))
		}
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	timeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = timeout
	}

	interval, err := parseDuration("CONFIRM_POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = interval
	}

	retries, err := parseInt("SUBMIT_MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, err)
	} else if retries < 0 {
		errs = append(errs, fmt.Errorf("SUBMIT_MAX_RETRIES cannot be negative"))
	} else {
		cfg.SubmitMaxRetries = uint(retries)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if defaultRPCURL(c.SolanaNetwork) == "" {
		errs = append(errs, fmt.Errorf("invalid SolanaNetwork %q: must be 'devnet', 'testnet' or 'mainnet'", c.SolanaNetwork))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}

	if c.ConfirmTimeout < c.ConfirmPollInterval {
		errs = append(errs, fmt.Errorf("ConfirmTimeout (%v) cannot be less than ConfirmPollInterval (%v)",
			c.ConfirmTimeout, c.ConfirmPollInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ExplorerCluster returns the cluster query value used by explorer links.
// Mainnet links carry no cluster parameter.
func (c *Config) ExplorerCluster() string {
	if c.SolanaNetwork == "mainnet" {
		return ""
	}
	return c.SolanaNetwork
}

// defaultRPCURL returns the public endpoint for a network, or "" if unknown.
func defaultRPCURL(network string) string {
	switch network {
	case "devnet":
		return rpc.DevNet_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "mainnet":
		return rpc.MainNetBeta_RPC
	default:
		return ""
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
