package tokens

import (
	"context"
	"fmt"

	"github.com/brojonat/mintify/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Status describes the connected wallet.
type Status struct {
	Connected bool            `json:"connected"`
	Address   string          `json:"address,omitempty"`
	Network   string          `json:"network"`
	Balance   *solana.Balance `json:"balance,omitempty"`
}

// Status returns the connected identity, the network and its SOL balance.
// A disconnected wallet is not an error.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{Network: s.network}

	owner, ok := s.signer.PublicKey()
	if !ok {
		return st, nil
	}
	st.Connected = true
	st.Address = owner.String()

	bal, err := s.chain.Balance(ctx, owner)
	if err != nil {
		return nil, classify(err)
	}
	st.Balance = bal
	return st, nil
}

// Holdings returns the SPL token accounts of owner, or of the connected
// wallet when owner is empty.
func (s *Service) Holdings(ctx context.Context, owner string) ([]solana.TokenHolding, error) {
	var (
		pk  solanago.PublicKey
		err error
	)
	if owner == "" {
		var ok bool
		if pk, ok = s.signer.PublicKey(); !ok {
			return nil, ErrWalletNotConnected
		}
	} else if pk, err = parseAddress("owner", owner); err != nil {
		return nil, err
	}

	holdings, err := s.chain.TokenHoldings(ctx, pk)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list holdings for %s: %w", pk, err))
	}
	return holdings, nil
}
