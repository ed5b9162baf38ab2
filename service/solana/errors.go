package solana

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfirmationTimeout is matched by *TimeoutError.
	ErrConfirmationTimeout = errors.New("transaction not confirmed before timeout")

	// ErrOperationFailed is matched by *OperationFailedError.
	ErrOperationFailed = errors.New("transaction failed")
)

// TimeoutError is returned when a signature never reached a terminal state
// within the configured timeout.
type TimeoutError struct {
	Signature string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction not confirmed within %v seconds: signature %s", e.Timeout.Seconds(), e.Signature)
}

func (e *TimeoutError) Unwrap() error { return ErrConfirmationTimeout }

// TxSignature returns the signature that timed out.
func (e *TimeoutError) TxSignature() string { return e.Signature }

// OperationFailedError is returned when the cluster reports an error payload
// for a submitted transaction.
type OperationFailedError struct {
	Signature string
	Details   string
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("transaction failed: %s: signature %s", e.Details, e.Signature)
}

func (e *OperationFailedError) Unwrap() error { return ErrOperationFailed }

// TxSignature returns the signature of the failed transaction.
func (e *OperationFailedError) TxSignature() string { return e.Signature }
