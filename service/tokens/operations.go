package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/mintify/service/ledger"
	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// CreateAsset creates a new mint with the connected wallet as mint and freeze
// authority and returns its address.
func (s *Service) CreateAsset(ctx context.Context) (string, error) {
	owner, ok := s.signer.PublicKey()
	if !ok {
		return "", ErrWalletNotConnected
	}

	start := time.Now()
	rec := ledger.Record{Kind: ledger.KindCreate, From: owner.String()}

	mintKey, err := s.newMintKey()
	if err != nil {
		return "", s.fail(ctx, rec, start, fmt.Errorf("failed to generate mint keypair: %w", err))
	}
	mint := mintKey.PublicKey()
	rec.Mint = mint.String()

	lamports, err := s.chain.MinimumBalanceForRentExemption(ctx, MintAccountSize)
	if err != nil {
		return "", s.fail(ctx, rec, start, err)
	}

	instructions := []solanago.Instruction{
		system.NewCreateAccountInstruction(lamports, MintAccountSize, solanago.TokenProgramID, owner, mint).Build(),
		token.NewInitializeMintInstruction(Decimals, owner, owner, mint, solanago.SysVarRentPubkey).Build(),
	}

	rec.Signature, err = s.submitAndWait(ctx, instructions, []solanago.PrivateKey{mintKey})
	if err != nil {
		return "", s.fail(ctx, rec, start, err)
	}

	s.succeed(ctx, rec, start)
	return rec.Mint, nil
}

// MintAsset mints amount whole tokens of mintAddress to the connected wallet,
// creating its associated token account if needed, and returns the signature.
func (s *Service) MintAsset(ctx context.Context, mintAddress string, amount float64) (string, error) {
	owner, ok := s.signer.PublicKey()
	if !ok {
		return "", ErrWalletNotConnected
	}

	start := time.Now()
	rec := ledger.Record{
		Kind:   ledger.KindMint,
		Mint:   mintAddress,
		From:   owner.String(),
		To:     owner.String(),
		Amount: amount,
	}

	mint, err := parseAddress("mint address", mintAddress)
	if err != nil {
		return "", s.fail(ctx, rec, start, err)
	}
	baseUnits, err := ToBaseUnits(amount)
	if err != nil {
		return "", s.fail(ctx, rec, start, err)
	}

	ata, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", s.fail(ctx, rec, start, fmt.Errorf("failed to derive token account: %w", err))
	}

	instructions, err := s.tokenAccountInstructions(ctx, owner, owner, mint, ata)
	if err != nil {
		return "", s.fail(ctx, rec, start, err)
	}
	instructions = append(instructions,
		token.NewMintToCheckedInstruction(baseUnits, Decimals, mint, ata, owner, nil).Build(),
	)

	rec.Signature, err = s.submitAndWait(ctx, instructions, nil)
	if err != nil {
		return "", s.fail(ctx, rec, start, err)
	}

	s.succeed(ctx, rec, start)
	return rec.Signature, nil
}

// TransferAsset sends amount whole tokens of mintAddress from the connected
// wallet to recipient, creating the recipient's associated token account
// (paid by the sender) if needed.
func (s *Service) TransferAsset(ctx context.Context, mintAddress, recipient string, amount float64) (ledger.Record, error) {
	owner, ok := s.signer.PublicKey()
	if !ok {
		return ledger.Record{}, ErrWalletNotConnected
	}

	start := time.Now()
	rec := ledger.Record{
		Kind:   ledger.KindTransfer,
		Mint:   mintAddress,
		From:   owner.String(),
		To:     recipient,
		Amount: amount,
	}

	mint, err := parseAddress("mint address", mintAddress)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, err)
	}
	to, err := parseAddress("recipient", recipient)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, err)
	}
	baseUnits, err := ToBaseUnits(amount)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, err)
	}

	source, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, fmt.Errorf("failed to derive sender token account: %w", err))
	}
	dest, _, err := solanago.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, fmt.Errorf("failed to derive recipient token account: %w", err))
	}

	instructions, err := s.tokenAccountInstructions(ctx, owner, to, mint, dest)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, err)
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(baseUnits, Decimals, source, mint, dest, owner, nil).Build(),
	)

	rec.Signature, err = s.submitAndWait(ctx, instructions, nil)
	if err != nil {
		return ledger.Record{}, s.fail(ctx, rec, start, err)
	}

	return s.succeed(ctx, rec, start), nil
}

// tokenAccountInstructions returns a create-associated-token-account
// instruction for (walletAddr, mint) paid by payer when ata does not exist yet.
func (s *Service) tokenAccountInstructions(ctx context.Context, payer, walletAddr, mint, ata solanago.PublicKey) ([]solanago.Instruction, error) {
	exists, err := s.chain.AccountExists(ctx, ata)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	s.logger.DebugContext(ctx, "creating associated token account",
		"wallet", walletAddr.String(),
		"mint", mint.String(),
		"account", ata.String(),
	)
	return []solanago.Instruction{
		associatedtokenaccount.NewCreateInstruction(payer, walletAddr, mint).Build(),
	}, nil
}
