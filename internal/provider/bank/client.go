// Package bank wraps the bank-aggregation collaborator's REST API behind the
// interfaces the sync and reconciliation services consume.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/reconcile"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling bank api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bank api returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding bank response: %w", err)
	}

	return nil
}

// ListTransactions satisfies banksync.BankClient.
func (c *Client) ListTransactions(ctx context.Context, providerAccountID string, from, to time.Time) ([]normalize.BankRecord, error) {
	q := url.Values{}
	q.Set("account_id", providerAccountID)
	q.Set("start_date", from.Format(time.DateOnly))
	q.Set("end_date", to.Format(time.DateOnly))

	var out struct {
		Transactions []normalize.BankRecord `json:"transactions"`
	}

	if err := c.get(ctx, "/transactions", q, &out); err != nil {
		return nil, err
	}

	return out.Transactions, nil
}

// ReconcileClient adapts the same API to the reconciliation service, which
// wants amounts in minor units rather than the provider's decimal strings.
type ReconcileClient struct {
	*Client
}

func (c *ReconcileClient) ListTransactions(ctx context.Context, providerAccountID string, from, to time.Time) ([]reconcile.ProviderTransaction, error) {
	records, err := c.Client.ListTransactions(ctx, providerAccountID, from, to)
	if err != nil {
		return nil, err
	}

	txs := make([]reconcile.ProviderTransaction, 0, len(records))

	for _, rec := range records {
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			return nil, fmt.Errorf("bank amount %q: %w", rec.Amount, err)
		}

		minor := amount.Shift(2)
		if !minor.IsInteger() {
			return nil, fmt.Errorf("bank amount %q has sub-cent precision", rec.Amount)
		}

		txs = append(txs, reconcile.ProviderTransaction{
			ExternalID:  rec.TransactionID,
			Amount:      minor.IntPart(),
			Currency:    rec.Currency,
			Description: rec.Name,
			Date:        rec.Date,
			Pending:     rec.Pending,
		})
	}

	return txs, nil
}

// Balance returns the provider-reported balance in minor units.
func (c *Client) Balance(ctx context.Context, providerAccountID string) (int64, error) {
	q := url.Values{}
	q.Set("account_id", providerAccountID)

	var out struct {
		Balance  json.Number `json:"balance"`
		Currency string      `json:"currency"`
	}

	if err := c.get(ctx, "/balance", q, &out); err != nil {
		return 0, err
	}

	balance, err := decimal.NewFromString(out.Balance.String())
	if err != nil {
		return 0, fmt.Errorf("bank balance %q: %w", out.Balance, err)
	}

	minor := balance.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("bank balance %q has sub-cent precision", out.Balance)
	}

	return minor.IntPart(), nil
}
