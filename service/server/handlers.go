package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/tokens"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a token request
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleStatus returns a handler that reports the connected wallet.
// GET /api/v1/status
func handleStatus(svc TokenService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Status(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get status", "error", err)
			writeServiceError(w, svc, err)
			return
		}
		writeJSON(w, st, http.StatusOK)
	})
}

// handleHoldings returns a handler that lists SPL token holdings.
// GET /api/v1/holdings?owner={address}
// Without owner, the connected wallet's holdings are returned.
func handleHoldings(svc TokenService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		if owner != "" {
			if err := validateAddress(owner); err != nil {
				logger.DebugContext(r.Context(), "invalid owner", "owner", owner, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		holdings, err := svc.Holdings(r.Context(), owner)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list holdings", "owner", owner, "error", err)
			writeServiceError(w, svc, err)
			return
		}

		writeJSON(w, map[string]any{
			"holdings": holdings,
			"count":    len(holdings),
		}, http.StatusOK)
	})
}

// handleCreateToken returns a handler that creates a new mint.
// POST /api/v1/tokens
func handleCreateToken(svc TokenService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint, err := svc.CreateAsset(r.Context())
		if err != nil {
			writeServiceError(w, svc, err)
			return
		}

		logger.InfoContext(r.Context(), "token created", "mint", mint)
		writeJSON(w, map[string]string{"mint": mint}, http.StatusCreated)
	})
}

// handleMintToken returns a handler that mints tokens to the connected wallet.
// POST /api/v1/tokens/{mint}/mint
func handleMintToken(svc TokenService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")

		var req struct {
			Amount *float64 `json:"amount"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if req.Amount == nil {
			writeError(w, "amount is required", http.StatusBadRequest)
			return
		}

		sig, err := svc.MintAsset(r.Context(), mint, *req.Amount)
		if err != nil {
			writeServiceError(w, svc, err)
			return
		}

		writeJSON(w, map[string]any{
			"signature":    sig,
			"mint":         mint,
			"amount":       *req.Amount,
			"explorer_url": svc.ExplorerURL(sig),
		}, http.StatusOK)
	})
}

// handleTransferToken returns a handler that transfers tokens to a recipient.
// POST /api/v1/tokens/{mint}/transfer
func handleTransferToken(svc TokenService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")

		var req struct {
			Recipient string   `json:"recipient"`
			Amount    *float64 `json:"amount"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if req.Amount == nil {
			writeError(w, "amount is required", http.StatusBadRequest)
			return
		}

		rec, err := svc.TransferAsset(r.Context(), mint, req.Recipient, *req.Amount)
		if err != nil {
			writeServiceError(w, svc, err)
			return
		}

		writeJSON(w, rec, http.StatusOK)
	})
}

// handleListHistory returns a handler that lists the operation ledger.
// GET /api/v1/history?type={create|mint|transfer}&status={success|failed}
func handleListHistory(svc TokenService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		kind := query.Get("type")
		status := query.Get("status")

		if err := validateKind(kind); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateStatus(status); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		records := filterRecords(svc.ListHistory(r.Context()), kind, status)
		logger.DebugContext(r.Context(), "history listed", "count", len(records))

		writeJSON(w, map[string]any{
			"records": records,
			"count":   len(records),
		}, http.StatusOK)
	})
}

func filterRecords(records []ledger.Record, kind, status string) []ledger.Record {
	if kind == "" && status == "" {
		return records
	}
	out := make([]ledger.Record, 0, len(records))
	for _, rec := range records {
		if kind != "" && string(rec.Kind) != kind {
			continue
		}
		if status != "" && string(rec.Status) != status {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// decodeBody decodes a size-limited JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.DebugContext(r.Context(), "failed to decode request", "error", err)
		if strings.Contains(err.Error(), "http: request body too large") {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// statusForError maps the token error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, tokens.ErrWalletNotConnected):
		return http.StatusConflict
	case errors.Is(err, tokens.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, tokens.ErrConfirmationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, tokens.ErrOperationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// writeServiceError writes a token service error, including the transaction
// signature and explorer link when one is known.
func writeServiceError(w http.ResponseWriter, svc TokenService, err error) {
	body := map[string]string{"error": err.Error()}
	if sig := tokens.TxSignature(err); sig != "" {
		body["signature"] = sig
		body["explorer_url"] = svc.ExplorerURL(sig)
	}
	writeJSON(w, body, statusForError(err))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}

// validateAddress validates an address for safety and base58 format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

func validateKind(kind string) error {
	switch ledger.Kind(kind) {
	case "", ledger.KindCreate, ledger.KindMint, ledger.KindTransfer:
		return nil
	}
	return errorf("invalid type: must be 'create', 'mint' or 'transfer'")
}

func validateStatus(status string) error {
	switch ledger.Status(status) {
	case "", ledger.StatusSuccess, ledger.StatusFailed:
		return nil
	}
	return errorf("invalid status: must be 'success' or 'failed'")
}

// errorf is a helper to format error strings.
func errorf(format string, args ...any) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
