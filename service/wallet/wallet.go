// Package wallet holds the signing side of Mintify: the keypair that pays for
// and authorizes token operations.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNotConnected is returned by a Signer that has no keypair.
var ErrNotConnected = errors.New("wallet not connected")

// SendOptions are the submission options forwarded to the RPC node.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
	MaxRetries          *uint
}

// Signer signs and submits transactions on behalf of the connected wallet.
type Signer interface {
	// PublicKey returns the wallet address, or false if no wallet is connected.
	PublicKey() (solana.PublicKey, bool)

	// SignAndSend builds a transaction from instructions with the wallet as fee
	// payer, signs it with the wallet and any extraSigners, and submits it.
	// The returned signature is set whenever the transaction was signed, even
	// if submission failed.
	SignAndSend(ctx context.Context, instructions []solana.Instruction, extraSigners []solana.PrivateKey, opts SendOptions) (solana.Signature, error)
}

// Submitter is the subset of RPC operations needed to submit a transaction.
type Submitter interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// SubmitError wraps a failure that happened after the transaction was signed.
type SubmitError struct {
	Signature string
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("failed to submit transaction: %v: signature %s", e.Err, e.Signature)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// TxSignature returns the signature of the transaction that failed to submit.
func (e *SubmitError) TxSignature() string { return e.Signature }

// KeypairSigner signs with a local keypair.
type KeypairSigner struct {
	key    solana.PrivateKey
	rpc    Submitter
	logger *slog.Logger
}

// NewKeypairSigner creates a signer for key that submits through rpcClient.
func NewKeypairSigner(key solana.PrivateKey, rpcClient Submitter, logger *slog.Logger) *KeypairSigner {
	return &KeypairSigner{key: key, rpc: rpcClient, logger: logger}
}

// LoadKeypairSigner reads a solana-keygen JSON file and returns a signer for it.
func LoadKeypairSigner(path string, rpcClient Submitter, logger *slog.Logger) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return NewKeypairSigner(key, rpcClient, logger), nil
}

// PublicKey returns the keypair's public key.
func (s *KeypairSigner) PublicKey() (solana.PublicKey, bool) {
	return s.key.PublicKey(), true
}

// SignAndSend implements Signer.
func (s *KeypairSigner) SignAndSend(ctx context.Context, instructions []solana.Instruction, extraSigners []solana.PrivateKey, opts SendOptions) (solana.Signature, error) {
	payer := s.key.PublicKey()

	recent, err := s.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &s.key
		}
		for i := range extraSigners {
			if extraSigners[i].PublicKey().Equals(key) {
				return &extraSigners[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig := tx.Signatures[0]

	_, err = s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
		MaxRetries:          opts.MaxRetries,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "transaction submission failed",
			"signature", sig.String(),
			"error", err,
		)
		return sig, &SubmitError{Signature: sig.String(), Err: err}
	}

	s.logger.DebugContext(ctx, "transaction submitted",
		"signature", sig.String(),
		"instructions", len(instructions),
		"signers", 1+len(extraSigners),
	)

	return sig, nil
}

// Disconnected is a Signer with no wallet attached.
type Disconnected struct{}

// PublicKey always reports no wallet.
func (Disconnected) PublicKey() (solana.PublicKey, bool) {
	return solana.PublicKey{}, false
}

// SignAndSend always fails with ErrNotConnected.
func (Disconnected) SignAndSend(context.Context, []solana.Instruction, []solana.PrivateKey, SendOptions) (solana.Signature, error) {
	return solana.Signature{}, ErrNotConnected
}

var (
	_ Signer = (*KeypairSigner)(nil)
	_ Signer = Disconnected{}
)
