// Package tokens implements the create, mint and transfer operations on SPL
// tokens for the connected wallet, and the read-side queries the view layer needs.
package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/metrics"
	"github.com/brojonat/mintify/service/solana"
	"github.com/brojonat/mintify/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultMaxRetries is the submit retry count passed to the RPC node.
const DefaultMaxRetries uint = 3

// Chain is the read side of the cluster used by token operations.
// *solana.Client implements it.
type Chain interface {
	WaitForConfirmation(ctx context.Context, sig solanago.Signature, opts solana.WaitOptions) error
	AccountExists(ctx context.Context, address solanago.PublicKey) (bool, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	Balance(ctx context.Context, address solanago.PublicKey) (*solana.Balance, error)
	TokenHoldings(ctx context.Context, owner solanago.PublicKey) ([]solana.TokenHolding, error)
}

var _ Chain = (*solana.Client)(nil)

// Service runs token operations and records every outcome in the ledger.
type Service struct {
	signer  wallet.Signer
	chain   Chain
	ledger  ledger.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	wait       solana.WaitOptions
	maxRetries uint
	network    string
	cluster    string
	newMintKey func() (solanago.PrivateKey, error)
}

// Option configures a Service.
type Option func(*Service)

// WithWaitOptions sets the confirmation timeout and poll interval.
func WithWaitOptions(opts solana.WaitOptions) Option {
	return func(s *Service) { s.wait = opts }
}

// WithMaxRetries sets the submit retry count passed to the RPC node.
func WithMaxRetries(n uint) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithNetwork sets the network name reported by Status.
func WithNetwork(network string) Option {
	return func(s *Service) { s.network = network }
}

// WithExplorerCluster sets the cluster query parameter of explorer links.
// An empty cluster produces mainnet links.
func WithExplorerCluster(cluster string) Option {
	return func(s *Service) { s.cluster = cluster }
}

// NewService creates a token service. A nil signer behaves as a disconnected wallet.
func NewService(signer wallet.Signer, chain Chain, store ledger.Store, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	if signer == nil {
		signer = wallet.Disconnected{}
	}
	s := &Service{
		signer:     signer,
		chain:      chain,
		ledger:     store,
		metrics:    m,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		network:    "devnet",
		cluster:    "devnet",
		newMintKey: solanago.NewRandomPrivateKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListHistory returns the ledger, most recent first.
func (s *Service) ListHistory(ctx context.Context) []ledger.Record {
	return s.ledger.List(ctx)
}

// ExplorerURL links to a transaction on the Solana explorer for the configured cluster.
func (s *Service) ExplorerURL(signature string) string {
	return ExplorerURL(signature, s.cluster)
}

// ExplorerURL links to a transaction on the Solana explorer.
func ExplorerURL(signature, cluster string) string {
	url := "https://explorer.solana.com/tx/" + signature
	if cluster != "" {
		url += "?cluster=" + cluster
	}
	return url
}

func (s *Service) sendOptions() wallet.SendOptions {
	retries := s.maxRetries
	return wallet.SendOptions{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &retries,
	}
}

// submitAndWait signs, submits and waits for confirmation. The returned
// signature is set whenever the transaction was signed.
func (s *Service) submitAndWait(ctx context.Context, instructions []solanago.Instruction, extraSigners []solanago.PrivateKey) (string, error) {
	sig, err := s.signer.SignAndSend(ctx, instructions, extraSigners, s.sendOptions())
	if err != nil {
		return TxSignature(err), err
	}
	if err := s.chain.WaitForConfirmation(ctx, sig, s.wait); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// succeed records a successful operation.
func (s *Service) succeed(ctx context.Context, rec ledger.Record, start time.Time) ledger.Record {
	rec.Status = ledger.StatusSuccess
	stored := s.ledger.Record(ctx, rec)
	s.observe(rec.Kind, rec.Status, start)

	s.logger.InfoContext(ctx, "token operation succeeded",
		"kind", rec.Kind,
		"mint", rec.Mint,
		"signature", rec.Signature,
		"amount", rec.Amount,
		"duration", time.Since(start),
	)
	return stored
}

// fail classifies err, records a failed operation and returns the error to
// hand back to the caller.
func (s *Service) fail(ctx context.Context, rec ledger.Record, start time.Time, err error) error {
	err = classify(err)
	if rec.Signature == "" {
		rec.Signature = TxSignature(err)
	}
	// Transfer errors may only mention the signature in their text.
	if rec.Signature == "" && rec.Kind == ledger.KindTransfer {
		rec.Signature = SignatureFromError(err)
	}

	err = fmt.Errorf("%s: %w", failurePrefix(rec.Kind), err)
	if rec.Signature != "" {
		err = &signedError{
			err:       fmt.Errorf("%w\n\nCheck transaction: %s", err, s.ExplorerURL(rec.Signature)),
			signature: rec.Signature,
		}
	}

	rec.Status = ledger.StatusFailed
	rec.Error = err.Error()
	s.ledger.Record(ctx, rec)
	s.observe(rec.Kind, rec.Status, start)

	s.logger.ErrorContext(ctx, "token operation failed",
		"kind", rec.Kind,
		"mint", rec.Mint,
		"signature", rec.Signature,
		"error", err,
	)
	return err
}

func (s *Service) observe(kind ledger.Kind, status ledger.Status, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordTokenOperation(string(kind), string(status), time.Since(start).Seconds())
	}
}

func failurePrefix(kind ledger.Kind) string {
	switch kind {
	case ledger.KindCreate:
		return "failed to confirm token creation"
	case ledger.KindMint:
		return "failed to confirm minting"
	default:
		return "failed to transfer tokens"
	}
}

func parseAddress(field, value string) (solanago.PublicKey, error) {
	if value == "" {
		return solanago.PublicKey{}, invalidInput("%s is required", field)
	}
	pk, err := solanago.PublicKeyFromBase58(value)
	if err != nil {
		return solanago.PublicKey{}, invalidInput("%s %q is not a valid address: %v", field, value, err)
	}
	return pk, nil
}
