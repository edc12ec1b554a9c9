// Package payments wraps the payment provider's REST API for recipient
// creation and outbound transfers.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tallyhq/tally/internal/transfer"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling payments api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payments api returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding payments response: %w", err)
		}
	}

	return nil
}

// CreateRecipient registers a beneficiary with the provider and returns the
// provider's recipient id.
func (c *Client) CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}

	err := c.do(ctx, http.MethodPost, "/recipients", map[string]string{
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
	}, &out)
	if err != nil {
		return "", err
	}

	return out.ID, nil
}

// InitiateTransfer starts an outbound transfer and returns the provider's
// reference for it.
func (c *Client) InitiateTransfer(ctx context.Context, providerRecipientID string, amount int64, currency, narration string) (string, error) {
	var out struct {
		Reference string `json:"reference"`
	}

	err := c.do(ctx, http.MethodPost, "/transfers", map[string]any{
		"recipient": providerRecipientID,
		"amount":    amount,
		"currency":  currency,
		"narration": narration,
	}, &out)
	if err != nil {
		return "", err
	}

	return out.Reference, nil
}

// VerifyTransfer asks the provider for a transfer's current status.
func (c *Client) VerifyTransfer(ctx context.Context, reference string) (transfer.Outcome, error) {
	var out struct {
		Status string `json:"status"`
	}

	if err := c.do(ctx, http.MethodGet, "/transfers/"+reference, nil, &out); err != nil {
		return "", err
	}

	switch out.Status {
	case "success", "completed":
		return transfer.OutcomeSuccess, nil
	case "failed", "reversed":
		return transfer.OutcomeFailed, nil
	default:
		return transfer.OutcomePending, nil
	}
}
