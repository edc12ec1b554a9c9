// Package normalize maps provider-specific payloads (bank-sync records,
// payment-processor webhook bodies) into canonical ledger events.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/ledger"
)

var (
	// ErrMalformedPayload means the input is unusable: required fields are
	// absent or the amount is non-numeric. Not retryable.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnresolvedAccount means the provider account reference has no
	// internal account yet. Retryable; the link may complete later.
	ErrUnresolvedAccount = errors.New("unresolved account")
)

// AccountResolver maps a provider-side account reference to the internal
// account. Injected so resolution strategy (and its failure mode) stays out
// of the mapping logic.
type AccountResolver interface {
	Resolve(ctx context.Context, provider, accountRef string) (*ledger.Account, error)
}

type Normalizer struct {
	resolver AccountResolver
}

func New(resolver AccountResolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// minorUnits parses a decimal amount string exactly into integer minor
// units. Floating-point arithmetic never touches balance-affecting values.
func minorUnits(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not numeric", ErrMalformedPayload, s)
	}

	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: amount %q has sub-cent precision", ErrMalformedPayload, s)
	}

	return minor.IntPart(), nil
}

// BankRecord is the normalized shape the bank-sync collaborator supplies per
// linked account. TransactionID doubles as the idempotency key.
type BankRecord struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Date          time.Time `json:"date"`
	Name          string    `json:"name"`
	Pending       bool      `json:"pending"`
}

// BankEvent maps one bank-sync record into a canonical event. Amount sign
// convention: positive = credit to the account, negative = debit.
func (n *Normalizer) BankEvent(ctx context.Context, provider string, rec BankRecord) (ledger.Event, error) {
	if rec.TransactionID == "" || rec.AccountID == "" {
		return ledger.Event{}, fmt.Errorf("%w: missing transaction or account id", ErrMalformedPayload)
	}

	amount, err := minorUnits(rec.Amount)
	if err != nil {
		return ledger.Event{}, err
	}

	acct, err := n.resolver.Resolve(ctx, provider, rec.AccountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Event{}, fmt.Errorf("%w: %s/%s", ErrUnresolvedAccount, provider, rec.AccountID)
		}

		return ledger.Event{}, fmt.Errorf("resolving account: %w", err)
	}

	typ := ledger.TypeIncome
	if amount < 0 {
		typ = ledger.TypeExpense
	}

	raw, _ := json.Marshal(rec)

	return ledger.Event{
		Provider:    provider,
		ExternalID:  rec.TransactionID,
		UserID:      acct.UserID,
		AccountID:   acct.ID,
		Amount:      amount,
		Currency:    rec.Currency,
		Type:        typ,
		Description: rec.Name,
		Pending:     rec.Pending,
		OccurredAt:  rec.Date,
		Raw:         raw,
	}, nil
}

// Settlement is a webhook notification about a transfer this system
// initiated: the provider confirming success or failure.
type Settlement struct {
	Provider  string
	Reference string
	Succeeded bool
}

// Result is the outcome of normalizing a webhook body: either a fresh event
// to apply, or a settlement of an existing transfer. Exactly one is set.
type Result struct {
	Event      *ledger.Event
	Settlement *Settlement
}

// webhookPayload is the normalized event contract payment providers must
// produce. Unknown extra fields are ignored for forward compatibility.
type webhookPayload struct {
	EventType string      `json:"event_type"`
	Reference string      `json:"reference"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	Status    string      `json:"status"`
	Account   string      `json:"account"`
	Narration string      `json:"narration"`
}

// WebhookEvent maps a verified payment-processor webhook body. Transfer
// status notifications become settlements; credit notifications become
// events applied through the normal path.
func (n *Normalizer) WebhookEvent(ctx context.Context, provider string, body []byte) (Result, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.EventType == "" || p.Reference == "" {
		return Result{}, fmt.Errorf("%w: missing event_type or reference", ErrMalformedPayload)
	}

	switch p.EventType {
	case "transfer.completed", "transfer.failed", "transfer.reversed":
		return Result{Settlement: &Settlement{
			Provider:  provider,
			Reference: p.Reference,
			Succeeded: p.EventType == "transfer.completed",
		}}, nil

	case "charge.completed", "payment.received":
		amount, err := minorUnits(p.Amount.String())
		if err != nil {
			return Result{}, err
		}

		acct, err := n.resolver.Resolve(ctx, provider, p.Account)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return Result{}, fmt.Errorf("%w: %s/%s", ErrUnresolvedAccount, provider, p.Account)
			}

			return Result{}, fmt.Errorf("resolving account: %w", err)
		}

		return Result{Event: &ledger.Event{
			Provider:    provider,
			ExternalID:  p.Reference,
			UserID:      acct.UserID,
			AccountID:   acct.ID,
			Amount:      amount,
			Currency:    p.Currency,
			Type:        ledger.TypePayment,
			Description: p.Narration,
			Pending:     p.Status == "pending",
			Raw:         body,
		}}, nil

	default:
		return Result{}, fmt.Errorf("%w: unknown event type %q", ErrMalformedPayload, p.EventType)
	}
}
