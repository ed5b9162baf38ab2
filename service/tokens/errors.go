package tokens

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/brojonat/mintify/service/solana"
	"github.com/brojonat/mintify/service/wallet"
)

var (
	// ErrWalletNotConnected is returned when no signer is available.
	ErrWalletNotConnected = wallet.ErrNotConnected

	// ErrInvalidInput is returned for a missing or malformed address or a non-positive amount.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfirmationTimeout and ErrOperationFailed come from the confirmation waiter.
	ErrConfirmationTimeout = solana.ErrConfirmationTimeout
	ErrOperationFailed     = solana.ErrOperationFailed
)

// UnknownFailureError wraps any RPC or SDK failure outside the known taxonomy.
type UnknownFailureError struct {
	Err error
}

func (e *UnknownFailureError) Error() string {
	return fmt.Sprintf("unknown failure: %v", e.Err)
}

func (e *UnknownFailureError) Unwrap() error { return e.Err }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// classify leaves known errors untouched and wraps everything else in an
// UnknownFailureError.
func classify(err error) error {
	var unknown *UnknownFailureError
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrWalletNotConnected),
		errors.Is(err, ErrConfirmationTimeout),
		errors.Is(err, ErrOperationFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &unknown):
		return err
	}
	return &UnknownFailureError{Err: err}
}

// signaturePattern recovers a signature embedded in free-form error text.
var signaturePattern = regexp.MustCompile(`signature\s([\w\d]+)`)

// TxSignature returns the transaction signature carried by a typed error in
// err's chain, or "" if there is none.
func TxSignature(err error) string {
	var typed interface{ TxSignature() string }
	if errors.As(err, &typed) {
		return typed.TxSignature()
	}
	return ""
}

// SignatureFromError returns the transaction signature carried by err.
// Typed errors exposing TxSignature are preferred; otherwise the error text
// is searched for "signature <sig>". Returns "" if none is found.
func SignatureFromError(err error) string {
	if err == nil {
		return ""
	}
	if sig := TxSignature(err); sig != "" {
		return sig
	}
	if m := signaturePattern.FindStringSubmatch(err.Error()); len(m) > 1 {
		return m[1]
	}
	return ""
}

// signedError attaches the signature of a failed operation's transaction.
type signedError struct {
	err       error
	signature string
}

func (e *signedError) Error() string { return e.err.Error() }

func (e *signedError) Unwrap() error { return e.err }

func (e *signedError) TxSignature() string { return e.signature }
