package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintify/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client provides the read side of the Solana cluster: signature status
// polling, balances, token holdings and account lookups.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "devnet", rpc host)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// RPC exposes the underlying RPC client, e.g. for a signer that submits transactions.
func (c *Client) RPC() RPCClient {
	return c.rpc
}

// SignatureStatus returns the current status of a signature, or nil if the
// cluster does not know about it yet.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	c.observe("GetSignatureStatuses", start, err)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// WaitForConfirmation polls the signature status every opts.PollInterval until
// the transaction is confirmed (nil), the cluster reports an error
// (*OperationFailedError), opts.Timeout has elapsed (*TimeoutError) or ctx is
// done (ctx.Err()).
//
// The elapsed time is only checked before each poll, so a wait is never cut
// off in the middle of an interval. Errors from the status query itself are
// treated the same as "still pending". A transaction that landed with an
// error is reported as failed even though the cluster marks it confirmed.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature, opts WaitOptions) error {
	opts = opts.withDefaults()
	start := c.now()
	polls := 0

	for c.now().Sub(start) < opts.Timeout {
		if err := ctx.Err(); err != nil {
			c.recordWait("cancelled", start)
			return err
		}

		polls++
		status, err := c.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			c.recordPoll("error")
			c.logger.WarnContext(ctx, "signature status query failed, will retry",
				"signature", sig.String(),
				"poll", polls,
				"error", err,
			)
		case status == nil:
			c.recordPoll("pending")
		case status.Err != nil:
			c.recordPoll("failed")
			c.recordWait("failed", start)
			return &OperationFailedError{
				Signature: sig.String(),
				Details:   errPayload(status.Err),
			}
		case status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed,
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
			c.recordPoll("confirmed")
			c.recordWait("confirmed", start)
			c.logger.DebugContext(ctx, "transaction confirmed",
				"signature", sig.String(),
				"status", status.ConfirmationStatus,
				"polls", polls,
			)
			return nil
		default:
			c.recordPoll("pending")
		}

		if err := c.sleep(ctx, opts.PollInterval); err != nil {
			c.recordWait("cancelled", start)
			return err
		}
	}

	c.recordWait("timeout", start)
	c.logger.WarnContext(ctx, "transaction not confirmed before timeout",
		"signature", sig.String(),
		"timeout", opts.Timeout,
		"polls", polls,
	)
	return &TimeoutError{Signature: sig.String(), Timeout: opts.Timeout}
}

// Balance returns the native SOL balance of an address.
func (c *Client) Balance(ctx context.Context, address solana.PublicKey) (*Balance, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, address, rpc.CommitmentConfirmed)
	c.observe("GetBalance", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return NewBalance(address, out.Value), nil
}

// TokenHoldings returns the SPL token accounts owned by owner under the token program.
// Accounts whose data cannot be parsed are logged and skipped.
func (c *Client) TokenHoldings(ctx context.Context, owner solana.PublicKey) ([]TokenHolding, error) {
	programID := solana.TokenProgramID
	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingJSONParsed,
		},
	)
	c.observe("GetTokenAccountsByOwner", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts: %w", err)
	}

	holdings := make([]TokenHolding, 0, len(out.Value))
	for _, acct := range out.Value {
		if acct == nil || acct.Account.Data == nil {
			continue
		}
		holding, err := parseHolding(acct.Pubkey.String(), acct.Account.Data.GetRawJSON())
		if err != nil {
			c.logger.WarnContext(ctx, "skipping unparseable token account",
				"account", acct.Pubkey.String(),
				"error", err,
			)
			continue
		}
		holdings = append(holdings, *holding)
	}

	c.logger.DebugContext(ctx, "fetched token holdings",
		"owner", owner.String(),
		"count", len(holdings),
	)

	return holdings, nil
}

// AccountExists reports whether an account has been created on chain.
func (c *Client) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	start := time.Now()
	_, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		c.observe("GetAccountInfo", start, nil)
		return false, nil
	}
	c.observe("GetAccountInfo", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to get account info for %s: %w", address, err)
	}
	return true, nil
}

// MinimumBalanceForRentExemption returns the lamports needed to make an account of dataSize rent exempt.
func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	start := time.Now()
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentConfirmed)
	c.observe("GetMinimumBalanceForRentExemption", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption minimum: %w", err)
	}
	return lamports, nil
}

func (c *Client) observe(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

func (c *Client) recordPoll(result string) {
	if c.metrics != nil {
		c.metrics.RecordConfirmationPoll(result)
	}
}

func (c *Client) recordWait(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordConfirmationWait(outcome, c.now().Sub(start).Seconds())
	}
}

// errPayload renders the cluster's error value the way it appears in RPC JSON.
func errPayload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
