package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	blockhashErr error
	sendErr      error

	sent *solana.Transaction
	opts rpc.TransactionOpts
}

func (f *fakeSubmitter) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if f.blockhashErr != nil {
		return nil, f.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{9, 9, 9}},
	}, nil
}

func (f *fakeSubmitter) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.sent = tx
	f.opts = opts
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return tx.Signatures[0], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func transferInstruction(from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(1000, from, to).Build()
}

func TestKeypairSigner_SignAndSend(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	sub := &fakeSubmitter{}
	signer := NewKeypairSigner(key, sub, testLogger())

	pk, ok := signer.PublicKey()
	require.True(t, ok)
	assert.Equal(t, key.PublicKey(), pk)

	retries := uint(3)
	sig, err := signer.SignAndSend(context.Background(),
		[]solana.Instruction{transferInstruction(pk, solana.NewWallet().PublicKey())},
		nil,
		SendOptions{PreflightCommitment: rpc.CommitmentConfirmed, MaxRetries: &retries},
	)
	require.NoError(t, err)
	require.NotNil(t, sub.sent)

	assert.Equal(t, sub.sent.Signatures[0], sig)
	assert.Equal(t, pk, sub.sent.Message.AccountKeys[0], "wallet pays the fee")
	assert.Equal(t, solana.Hash{9, 9, 9}, sub.sent.Message.RecentBlockhash)
	assert.False(t, sub.opts.SkipPreflight)
	assert.Equal(t, rpc.CommitmentConfirmed, sub.opts.PreflightCommitment)
	require.NotNil(t, sub.opts.MaxRetries)
	assert.Equal(t, uint(3), *sub.opts.MaxRetries)
}

func TestKeypairSigner_ExtraSigners(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	mint := solana.NewWallet().PrivateKey
	sub := &fakeSubmitter{}
	signer := NewKeypairSigner(key, sub, testLogger())

	instr := system.NewCreateAccountInstruction(1461600, 82, solana.TokenProgramID, key.PublicKey(), mint.PublicKey()).Build()

	_, err := signer.SignAndSend(context.Background(), []solana.Instruction{instr}, []solana.PrivateKey{mint}, SendOptions{})
	require.NoError(t, err)

	require.Len(t, sub.sent.Signatures, 2)
	assert.NotEqual(t, solana.Signature{}, sub.sent.Signatures[0])
	assert.NotEqual(t, solana.Signature{}, sub.sent.Signatures[1])
}

func TestKeypairSigner_MissingSigner(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	mint := solana.NewWallet().PrivateKey
	sub := &fakeSubmitter{}
	signer := NewKeypairSigner(key, sub, testLogger())

	instr := system.NewCreateAccountInstruction(1461600, 82, solana.TokenProgramID, key.PublicKey(), mint.PublicKey()).Build()

	_, err := signer.SignAndSend(context.Background(), []solana.Instruction{instr}, nil, SendOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to sign transaction")
	assert.Nil(t, sub.sent)
}

func TestKeypairSigner_BlockhashError(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	sub := &fakeSubmitter{blockhashErr: assert.AnError}
	signer := NewKeypairSigner(key, sub, testLogger())

	sig, err := signer.SignAndSend(context.Background(),
		[]solana.Instruction{transferInstruction(key.PublicKey(), solana.NewWallet().PublicKey())},
		nil, SendOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, solana.Signature{}, sig)

	var submitErr *SubmitError
	assert.False(t, errors.As(err, &submitErr), "no signature exists before signing")
}

func TestKeypairSigner_SendErrorKeepsSignature(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	sub := &fakeSubmitter{sendErr: assert.AnError}
	signer := NewKeypairSigner(key, sub, testLogger())

	sig, err := signer.SignAndSend(context.Background(),
		[]solana.Instruction{transferInstruction(key.PublicKey(), solana.NewWallet().PublicKey())},
		nil, SendOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotEqual(t, solana.Signature{}, sig)

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, sig.String(), submitErr.TxSignature())
	assert.Contains(t, err.Error(), "signature "+sig.String())
}

func TestDisconnected(t *testing.T) {
	var signer Signer = Disconnected{}

	_, ok := signer.PublicKey()
	assert.False(t, ok)

	_, err := signer.SignAndSend(context.Background(), nil, nil, SendOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestLoadKeypairSigner(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	signer, err := LoadKeypairSigner(path, &fakeSubmitter{}, testLogger())
	require.NoError(t, err)

	pk, ok := signer.PublicKey()
	require.True(t, ok)
	assert.Equal(t, key.PublicKey(), pk)
}

func TestLoadKeypairSigner_MissingFile(t *testing.T) {
	_, err := LoadKeypairSigner(filepath.Join(t.TempDir(), "missing.json"), &fakeSubmitter{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load keypair")
}
