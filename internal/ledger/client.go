package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPClient is a Client over a Horizon-compatible REST API.
type HTTPClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL, secret string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) Pay(ctx context.Context, address string, amount decimal.Decimal, memo string) (string, error) {
	payload := map[string]string{
		"destination": address,
		"amount":      amount.String(),
		"memo":        memo,
		"memo_type":   MemoTypeText,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send payment: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment rejected: status %d: %s", resp.StatusCode, data)
	}

	var result struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("payment response missing hash")
	}
	return result.Hash, nil
}

func (c *HTTPClient) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+hash+"?join=operations", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotYetIndexed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch transaction: status %d", resp.StatusCode)
	}

	tx := &Transaction{}
	if err := json.NewDecoder(resp.Body).Decode(tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return tx, nil
}
