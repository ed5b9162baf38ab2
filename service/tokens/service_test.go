package tokens

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/solana"
	"github.com/brojonat/mintify/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mintToCheckedIndex   = 14
	transferCheckedIndex = 12
)

type signCall struct {
	instructions []solanago.Instruction
	extraSigners []solanago.PrivateKey
	opts         wallet.SendOptions
}

// fakeSigner records what it was asked to sign and returns a canned result.
type fakeSigner struct {
	key   solanago.PrivateKey
	sig   solanago.Signature
	err   error
	calls []signCall
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{
		key: solanago.NewWallet().PrivateKey,
		sig: solanago.Signature{7, 7, 7},
	}
}

func (f *fakeSigner) PublicKey() (solanago.PublicKey, bool) {
	return f.key.PublicKey(), true
}

func (f *fakeSigner) SignAndSend(ctx context.Context, instructions []solanago.Instruction, extraSigners []solanago.PrivateKey, opts wallet.SendOptions) (solanago.Signature, error) {
	f.calls = append(f.calls, signCall{instructions: instructions, extraSigners: extraSigners, opts: opts})
	if f.err != nil {
		return solanago.Signature{}, f.err
	}
	return f.sig, nil
}

// fakeChain is a behavior-focused stand-in for *solana.Client.
type fakeChain struct {
	waitErr   error
	existing  map[solanago.PublicKey]bool
	existsErr error
	rent      uint64
	rentErr   error
	balance   *solana.Balance
	holdings  []solana.TokenHolding
	err       error

	waited []solanago.Signature
	owners []solanago.PublicKey
}

func (f *fakeChain) WaitForConfirmation(ctx context.Context, sig solanago.Signature, _ solana.WaitOptions) error {
	f.waited = append(f.waited, sig)
	return f.waitErr
}

func (f *fakeChain) AccountExists(ctx context.Context, address solanago.PublicKey) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[address], nil
}

func (f *fakeChain) MinimumBalanceForRentExemption(ctx context.Context, _ uint64) (uint64, error) {
	return f.rent, f.rentErr
}

func (f *fakeChain) Balance(ctx context.Context, address solanago.PublicKey) (*solana.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balance, nil
}

func (f *fakeChain) TokenHoldings(ctx context.Context, owner solanago.PublicKey) ([]solana.TokenHolding, error) {
	f.owners = append(f.owners, owner)
	if f.err != nil {
		return nil, f.err
	}
	return f.holdings, nil
}

type fixture struct {
	svc    *Service
	signer *fakeSigner
	chain  *fakeChain
	ledger *ledger.Memory
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		signer: newFakeSigner(),
		chain:  &fakeChain{rent: 1461600, existing: map[solanago.PublicKey]bool{}},
		ledger: ledger.NewMemory(nil, logger),
	}
	f.svc = NewService(f.signer, f.chain, f.ledger, nil, logger, opts...)
	return f
}

func (f *fixture) owner() solanago.PublicKey {
	return f.signer.key.PublicKey()
}

func newAddress() string {
	return solanago.NewWallet().PublicKey().String()
}

func instructionData(t *testing.T, instr solanago.Instruction) []byte {
	t.Helper()
	data, err := instr.Data()
	require.NoError(t, err)
	return data
}

func assertSendOptions(t *testing.T, opts wallet.SendOptions) {
	t.Helper()
	assert.False(t, opts.SkipPreflight)
	assert.Equal(t, rpc.CommitmentConfirmed, opts.PreflightCommitment)
	require.NotNil(t, opts.MaxRetries)
	assert.Equal(t, DefaultMaxRetries, *opts.MaxRetries)
}

func TestCreateAsset_Success(t *testing.T) {
	f := newFixture(t)
	mintKey := solanago.NewWallet().PrivateKey
	f.svc.newMintKey = func() (solanago.PrivateKey, error) { return mintKey, nil }

	mint, err := f.svc.CreateAsset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mintKey.PublicKey().String(), mint)

	require.Len(t, f.signer.calls, 1)
	call := f.signer.calls[0]
	require.Len(t, call.instructions, 2)
	assert.Equal(t, solanago.SystemProgramID, call.instructions[0].ProgramID())
	assert.Equal(t, solanago.TokenProgramID, call.instructions[1].ProgramID())
	require.Len(t, call.extraSigners, 1)
	assert.Equal(t, mintKey.PublicKey(), call.extraSigners[0].PublicKey())
	assertSendOptions(t, call.opts)

	assert.Equal(t, []solanago.Signature{f.signer.sig}, f.chain.waited)

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	rec := history[0]
	assert.Equal(t, ledger.KindCreate, rec.Kind)
	assert.Equal(t, ledger.StatusSuccess, rec.Status)
	assert.Equal(t, mint, rec.Mint)
	assert.Equal(t, f.owner().String(), rec.From)
	assert.Empty(t, rec.To)
	assert.Zero(t, rec.Amount)
	assert.Equal(t, f.signer.sig.String(), rec.Signature)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestOperations_WalletNotConnected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.NewMemory(nil, logger)
	svc := NewService(nil, &fakeChain{}, store, nil, logger)
	ctx := context.Background()

	_, err := svc.CreateAsset(ctx)
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	_, err = svc.MintAsset(ctx, newAddress(), 1)
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	_, err = svc.TransferAsset(ctx, newAddress(), newAddress(), 1)
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	_, err = svc.Holdings(ctx, "")
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	assert.Empty(t, svc.ListHistory(ctx), "a missing wallet is never recorded")
}

func TestCreateAsset_ConfirmationTimeout(t *testing.T) {
	f := newFixture(t)
	f.chain.waitErr = &solana.TimeoutError{Signature: f.signer.sig.String(), Timeout: solana.DefaultConfirmTimeout}

	mint, err := f.svc.CreateAsset(context.Background())
	require.Error(t, err)
	assert.Empty(t, mint)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Contains(t, err.Error(), "failed to confirm token creation")
	assert.Contains(t, err.Error(), "Check transaction: https://explorer.solana.com/tx/"+f.signer.sig.String()+"?cluster=devnet")

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, ledger.StatusFailed, history[0].Status)
	assert.Equal(t, ledger.KindCreate, history[0].Kind)
	assert.Equal(t, f.signer.sig.String(), history[0].Signature)
	assert.Equal(t, err.Error(), history[0].Error)
}

func TestCreateAsset_RentQueryFailure(t *testing.T) {
	f := newFixture(t)
	f.chain.rentErr = errors.New("node unavailable")

	_, err := f.svc.CreateAsset(context.Background())
	require.Error(t, err)

	var unknown *UnknownFailureError
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, f.signer.calls)

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, ledger.StatusFailed, history[0].Status)
	assert.Empty(t, history[0].Signature)
	assert.NotContains(t, err.Error(), "Check transaction")
}

func TestMintAsset_CreatesTokenAccountWhenMissing(t *testing.T) {
	f := newFixture(t)
	mint := newAddress()

	sig, err := f.svc.MintAsset(context.Background(), mint, 2)
	require.NoError(t, err)
	assert.Equal(t, f.signer.sig.String(), sig)

	require.Len(t, f.signer.calls, 1)
	call := f.signer.calls[0]
	require.Len(t, call.instructions, 2)
	assert.Equal(t, solanago.SPLAssociatedTokenAccountProgramID, call.instructions[0].ProgramID())
	assert.Equal(t, solanago.TokenProgramID, call.instructions[1].ProgramID())
	assert.Empty(t, call.extraSigners)
	assertSendOptions(t, call.opts)

	data := instructionData(t, call.instructions[1])
	require.Len(t, data, 10)
	assert.Equal(t, byte(mintToCheckedIndex), data[0])
	assert.Equal(t, uint64(2_000_000_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, Decimals, data[9])
}

func TestMintAsset_ExistingTokenAccount(t *testing.T) {
	f := newFixture(t)
	mint := solanago.NewWallet().PublicKey()
	ata, _, err := solanago.FindAssociatedTokenAddress(f.owner(), mint)
	require.NoError(t, err)
	f.chain.existing[ata] = true

	_, err = f.svc.MintAsset(context.Background(), mint.String(), 1.5)
	require.NoError(t, err)

	require.Len(t, f.signer.calls, 1)
	require.Len(t, f.signer.calls[0].instructions, 1)
	data := instructionData(t, f.signer.calls[0].instructions[0])
	assert.Equal(t, uint64(1_500_000_000), binary.LittleEndian.Uint64(data[1:9]))
}

func TestMintAsset_RecordsMintToSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []float64{1, 10, 0.25} {
		_, err := f.svc.MintAsset(ctx, newAddress(), amount)
		require.NoError(t, err)
	}

	history := f.svc.ListHistory(ctx)
	require.Len(t, history, 3)
	assert.InDelta(t, 0.25, history[0].Amount, 1e-9, "most recent first")
	for _, rec := range history {
		assert.Equal(t, ledger.KindMint, rec.Kind)
		assert.Equal(t, rec.From, rec.To)
		assert.Equal(t, f.owner().String(), rec.To)
	}
}

func TestMintAsset_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mint   string
		amount float64
	}{
		{name: "missing mint", mint: "", amount: 1},
		{name: "malformed mint", mint: "not-a-key", amount: 1},
		{name: "zero amount", mint: newAddress(), amount: 0},
		{name: "negative amount", mint: newAddress(), amount: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.MintAsset(context.Background(), tt.mint, tt.amount)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, f.signer.calls)

			history := f.svc.ListHistory(context.Background())
			require.Len(t, history, 1)
			assert.Equal(t, ledger.StatusFailed, history[0].Status)
		})
	}
}

func TestMintAsset_OperationFailed(t *testing.T) {
	f := newFixture(t)
	f.chain.waitErr = &solana.OperationFailedError{Signature: f.signer.sig.String(), Details: `{"InstructionError":[1,{"Custom":4}]}`}

	_, err := f.svc.MintAsset(context.Background(), newAddress(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "failed to confirm minting")
	assert.Contains(t, err.Error(), "Check transaction:")

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, ledger.KindMint, history[0].Kind)
	assert.Equal(t, ledger.StatusFailed, history[0].Status)
	assert.Equal(t, f.signer.sig.String(), history[0].Signature)
}

func TestTransferAsset_Success(t *testing.T) {
	f := newFixture(t)
	mint := solanago.NewWallet().PublicKey()
	recipient := solanago.NewWallet().PublicKey()

	rec, err := f.svc.TransferAsset(context.Background(), mint.String(), recipient.String(), 2)
	require.NoError(t, err)

	assert.Equal(t, ledger.KindTransfer, rec.Kind)
	assert.Equal(t, ledger.StatusSuccess, rec.Status)
	assert.Equal(t, mint.String(), rec.Mint)
	assert.Equal(t, f.owner().String(), rec.From)
	assert.Equal(t, recipient.String(), rec.To)
	assert.Equal(t, 2.0, rec.Amount)
	assert.Equal(t, f.signer.sig.String(), rec.Signature)
	assert.NotEmpty(t, rec.ID)

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, rec, history[0])

	require.Len(t, f.signer.calls, 1)
	call := f.signer.calls[0]
	require.Len(t, call.instructions, 2)

	create := call.instructions[0]
	assert.Equal(t, solanago.SPLAssociatedTokenAccountProgramID, create.ProgramID())
	accounts := create.Accounts()
	require.NotEmpty(t, accounts)
	assert.Equal(t, f.owner(), accounts[0].PublicKey, "sender pays for the recipient token account")

	data := instructionData(t, call.instructions[1])
	assert.Equal(t, byte(transferCheckedIndex), data[0])
	assert.Equal(t, uint64(2_000_000_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, Decimals, data[9])
}

func TestTransferAsset_ExistingRecipientAccount(t *testing.T) {
	f := newFixture(t)
	mint := solanago.NewWallet().PublicKey()
	recipient := solanago.NewWallet().PublicKey()
	dest, _, err := solanago.FindAssociatedTokenAddress(recipient, mint)
	require.NoError(t, err)
	f.chain.existing[dest] = true

	_, err = f.svc.TransferAsset(context.Background(), mint.String(), recipient.String(), 1)
	require.NoError(t, err)
	require.Len(t, f.signer.calls[0].instructions, 1)
}

func TestTransferAsset_SignatureRecoveredFromErrorText(t *testing.T) {
	f := newFixture(t)
	f.signer.err = errors.New("Transaction simulation failed: blockhash not found for signature abc123")
	mint := newAddress()
	recipient := newAddress()

	rec, err := f.svc.TransferAsset(context.Background(), mint, recipient, 2)
	require.Error(t, err)
	assert.Equal(t, ledger.Record{}, rec)

	var unknown *UnknownFailureError
	assert.ErrorAs(t, err, &unknown)

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	failed := history[0]
	assert.Equal(t, ledger.StatusFailed, failed.Status)
	assert.Equal(t, ledger.KindTransfer, failed.Kind)
	assert.Equal(t, "abc123", failed.Signature)
	assert.Equal(t, mint, failed.Mint)
	assert.Equal(t, recipient, failed.To)
	assert.Equal(t, 2.0, failed.Amount)
}

func TestTransferAsset_SignatureFromSubmitError(t *testing.T) {
	f := newFixture(t)
	f.signer.err = &wallet.SubmitError{Signature: "5xSig", Err: errors.New("node is behind")}

	_, err := f.svc.TransferAsset(context.Background(), newAddress(), newAddress(), 1)
	require.Error(t, err)

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, "5xSig", history[0].Signature)
}

func TestTransferAsset_InvalidRecipientRecordsFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TransferAsset(context.Background(), newAddress(), "", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	history := f.svc.ListHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, ledger.StatusFailed, history[0].Status)
	assert.Empty(t, history[0].Signature)
}

func TestTransferAsset_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.chain.waitErr = context.Canceled

	_, err := f.svc.TransferAsset(context.Background(), newAddress(), newAddress(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var unknown *UnknownFailureError
	assert.False(t, errors.As(err, &unknown))
}

func TestLedgerGrowsByOnePerOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAsset(ctx)
	require.NoError(t, err)
	assert.Len(t, f.svc.ListHistory(ctx), 1)

	_, err = f.svc.MintAsset(ctx, newAddress(), 5)
	require.NoError(t, err)
	assert.Len(t, f.svc.ListHistory(ctx), 2)

	f.chain.waitErr = &solana.TimeoutError{Signature: "x"}
	_, err = f.svc.TransferAsset(ctx, newAddress(), newAddress(), 1)
	require.Error(t, err)

	history := f.svc.ListHistory(ctx)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.KindTransfer, history[0].Kind)
	assert.Equal(t, ledger.KindMint, history[1].Kind)
	assert.Equal(t, ledger.KindCreate, history[2].Kind)
}

func TestWithMaxRetries(t *testing.T) {
	f := newFixture(t, WithMaxRetries(7))

	_, err := f.svc.MintAsset(context.Background(), newAddress(), 1)
	require.NoError(t, err)
	require.NotNil(t, f.signer.calls[0].opts.MaxRetries)
	assert.Equal(t, uint(7), *f.signer.calls[0].opts.MaxRetries)
}

func TestCreateAndMint_IgnoreSignatureWordInErrorText(t *testing.T) {
	ops := map[string]func(*fixture) error{
		"create": func(f *fixture) error {
			_, err := f.svc.CreateAsset(context.Background())
			return err
		},
		"mint": func(f *fixture) error {
			_, err := f.svc.MintAsset(context.Background(), newAddress(), 1)
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.signer.err = errors.New("Transaction simulation failed: signature verification failure")

			err := op(f)
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "Check transaction")
			assert.Empty(t, TxSignature(err))

			history := f.svc.ListHistory(context.Background())
			require.Len(t, history, 1)
			assert.Empty(t, history[0].Signature)
		})
	}
}

func TestTransferAsset_RecoveredSignatureIsTyped(t *testing.T) {
	f := newFixture(t)
	f.signer.err = errors.New("blockhash not found for signature abc123")

	_, err := f.svc.TransferAsset(context.Background(), newAddress(), newAddress(), 1)
	require.Error(t, err)
	assert.Equal(t, "abc123", TxSignature(err))
	assert.Contains(t, err.Error(), "Check transaction: https://explorer.solana.com/tx/abc123?cluster=devnet")
}
