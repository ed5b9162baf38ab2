package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Default confirmation polling parameters.
const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// WaitOptions controls WaitForConfirmation. Zero values fall back to the defaults.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultConfirmTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Balance is a native SOL balance.
type Balance struct {
	Address  string  `json:"address"`
	Lamports uint64  `json:"lamports"`
	SOL      float64 `json:"sol"`
}

// NewBalance converts lamports into a Balance.
func NewBalance(address solana.PublicKey, lamports uint64) *Balance {
	return &Balance{
		Address:  address.String(),
		Lamports: lamports,
		SOL:      float64(lamports) / float64(solana.LAMPORTS_PER_SOL),
	}
}

// TokenHolding is one SPL token account owned by a wallet.
// This is our domain model, independent of the jsonParsed RPC format.
type TokenHolding struct {
	Account  string  `json:"account"`
	Mint     string  `json:"mint"`
	Owner    string  `json:"owner"`
	Amount   uint64  `json:"amount"` // raw base units
	Decimals uint8   `json:"decimals"`
	UIAmount float64 `json:"ui_amount"`
}
