package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Balance is a native SOL balance.
type Balance struct {
	Address  string  `json:"address"`
	Lamports uint64  `json:"lamports"`
	SOL      float64 `json:"sol"`
}

// Status describes the wallet the server is signing with.
type Status struct {
	Connected bool     `json:"connected"`
	Address   string   `json:"address,omitempty"`
	Network   string   `json:"network"`
	Balance   *Balance `json:"balance,omitempty"`
}

// Holding is one SPL token account owned by a wallet.
type Holding struct {
	Account  string  `json:"account"`
	Mint     string  `json:"mint"`
	Owner    string  `json:"owner"`
	Amount   uint64  `json:"amount"`
	Decimals uint8   `json:"decimals"`
	UIAmount float64 `json:"ui_amount"`
}

// Record is one entry of the server's operation history.
type Record struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	Mint      string    `json:"mint_address"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"` // success, failed
	Type      string    `json:"type"`   // create, mint, transfer
	Error     string    `json:"error,omitempty"`
}

// MintResult is returned after tokens are minted to the server's wallet.
type MintResult struct {
	Signature   string  `json:"signature"`
	Mint        string  `json:"mint"`
	Amount      float64 `json:"amount"`
	ExplorerURL string  `json:"explorer_url"`
}

// APIError is a non-2xx response from the server. Signature and ExplorerURL
// are set when the failed operation reached the chain.
type APIError struct {
	StatusCode  int
	Message     string
	Signature   string
	ExplorerURL string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the mintify server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new mintify client. Token operations block until the
// server has confirmed the transaction, so the default timeout is generous.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, "GET", "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Status reports the server's wallet, network and SOL balance.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Holdings lists SPL token holdings for owner, or for the server's wallet
// when owner is empty.
func (c *Client) Holdings(ctx context.Context, owner string) ([]Holding, error) {
	path := "/api/v1/holdings"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}

	var response struct {
		Holdings []Holding `json:"holdings"`
	}
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Holdings, nil
}

// CreateToken creates a new mint and returns its address.
func (c *Client) CreateToken(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "POST", "/api/v1/tokens", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", c.parseErrorResponse(resp)
	}

	var response struct {
		Mint string `json:"mint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("token created", "mint", response.Mint)
	return response.Mint, nil
}

// MintToken mints amount whole tokens of mint to the server's wallet.
func (c *Client) MintToken(ctx context.Context, mint string, amount float64) (*MintResult, error) {
	path := fmt.Sprintf("/api/v1/tokens/%s/mint", url.PathEscape(mint))
	resp, err := c.do(ctx, "POST", path, map[string]any{"amount": amount})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result MintResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("tokens minted", "mint", mint, "amount", amount, "signature", result.Signature)
	return &result, nil
}

// TransferToken transfers amount whole tokens of mint to recipient.
func (c *Client) TransferToken(ctx context.Context, mint, recipient string, amount float64) (*Record, error) {
	path := fmt.Sprintf("/api/v1/tokens/%s/transfer", url.PathEscape(mint))
	resp, err := c.do(ctx, "POST", path, map[string]any{
		"recipient": recipient,
		"amount":    amount,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("tokens transferred", "mint", mint, "recipient", recipient, "signature", rec.Signature)
	return &rec, nil
}

// History lists the operation history, newest first. Empty filters match all.
func (c *Client) History(ctx context.Context, opType, status string) ([]Record, error) {
	params := url.Values{}
	if opType != "" {
		params.Set("type", opType)
	}
	if status != "" {
		params.Set("status", status)
	}
	path := "/api/v1/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response struct {
		Records []Record `json:"records"`
	}
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Records, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error       string `json:"error"`
		Signature   string `json:"signature"`
		ExplorerURL string `json:"explorer_url"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Message:     errResp.Error,
		Signature:   errResp.Signature,
		ExplorerURL: errResp.ExplorerURL,
	}
}
