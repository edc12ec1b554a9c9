// Package transfer orchestrates outbound payments: initiate with the payment
// provider, debit through the ledger engine, and settle (or reverse) when the
// provider confirms the outcome.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/recipient"
)

// Outcome is the provider's verdict on an initiated transfer.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

//go:generate mockgen -source=service.go -destination=provider_mock.go -package=transfer
type ProviderClient interface {
	// InitiateTransfer starts an outbound transfer and returns the
	// provider's reference, which becomes the transaction's external id.
	InitiateTransfer(ctx context.Context, providerRecipientID string, amount int64, currency, narration string) (string, error)
	// VerifyTransfer asks the provider for the current status of a
	// previously initiated transfer.
	VerifyTransfer(ctx context.Context, reference string) (Outcome, error)
}

type Service struct {
	engine     *ledger.Engine
	recipients *recipient.Service
	provider   ProviderClient
	// providerTag keys the transfer transactions in the ledger.
	providerTag string
}

func NewService(engine *ledger.Engine, recipients *recipient.Service, provider ProviderClient, providerTag string) *Service {
	return &Service{
		engine:      engine,
		recipients:  recipients,
		provider:    provider,
		providerTag: providerTag,
	}
}

type InitiateParams struct {
	UserID      uuid.UUID
	AccountID   uuid.UUID
	RecipientID uuid.UUID
	Amount      int64 // minor units, positive
	Narration   string
}

// Initiate starts an outbound transfer: the account is debited immediately
// as a pending hold, and settlement later confirms or reverses it.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*ledger.Transaction, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}

	acct, err := s.engine.Account(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}

	// Reject before touching the provider. The engine re-checks under the
	// account lock, so a concurrent debit still cannot overdraw.
	if acct.Balance < params.Amount {
		return nil, ledger.ErrInsufficientBalance
	}

	rcp, err := s.recipients.Get(ctx, params.RecipientID)
	if err != nil {
		return nil, err
	}

	reference, err := s.provider.InitiateTransfer(ctx, rcp.ProviderRecipientID, params.Amount, acct.Currency, params.Narration)
	if err != nil {
		return nil, fmt.Errorf("initiating transfer: %w", err)
	}

	tx, _, err := s.engine.ApplyEvent(ctx, ledger.Event{
		Provider:    s.providerTag,
		ExternalID:  reference,
		UserID:      params.UserID,
		AccountID:   params.AccountID,
		Amount:      -params.Amount,
		Currency:    acct.Currency,
		Type:        ledger.TypeTransfer,
		Description: params.Narration,
		Pending:     true,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recipients.MarkUsed(ctx, rcp.ID); err != nil {
		slog.Error("marking recipient used", "recipient", rcp.ID, "error", err)
	}

	return tx, nil
}

// Settle records the provider's verdict for a transfer. A failure triggers
// the compensating reversal before the transaction goes terminal, so a failed
// transfer never leaves the account debited. Settling the same outcome twice
// is a no-op.
func (s *Service) Settle(ctx context.Context, provider, reference string, succeeded bool) error {
	tx, err := s.engine.TransactionByExternalID(ctx, provider, reference)
	if err != nil {
		return fmt.Errorf("looking up transfer %s/%s: %w", provider, reference, err)
	}

	if succeeded {
		switch tx.Status {
		case ledger.StatusCompleted:
			return nil // already settled
		case ledger.StatusPending:
			return s.engine.TransitionStatus(ctx, tx.ID, ledger.StatusCompleted)
		default:
			return fmt.Errorf("%w: cannot complete transfer in status %s", ledger.ErrInvalidTransition, tx.Status)
		}
	}

	switch tx.Status {
	case ledger.StatusFailed, ledger.StatusReversed:
		return nil // already reversed; repeated failure notifications are no-ops
	case ledger.StatusPending, ledger.StatusCompleted:
	default:
		return fmt.Errorf("%w: cannot fail transfer in status %s", ledger.ErrInvalidTransition, tx.Status)
	}

	// The reversal runs through the idempotent apply path keyed on
	// "<reference>:reversal", so even a crash between the reversal and the
	// status write cannot double-credit on redelivery.
	if _, err := s.engine.Reverse(ctx, tx, "transfer failed: "+reference); err != nil {
		return fmt.Errorf("reversing transfer: %w", err)
	}

	to := ledger.StatusFailed
	if tx.Status == ledger.StatusCompleted {
		to = ledger.StatusReversed
	}

	return s.engine.TransitionStatus(ctx, tx.ID, to)
}

// VerifyPending polls the provider for transfers that have been pending
// longer than the grace period, covering webhooks that never arrived.
func (s *Service) VerifyPending(ctx context.Context, grace time.Duration) error {
	txs, err := s.engine.PendingTransfers(ctx, time.Now().Add(-grace))
	if err != nil {
		return err
	}

	var errs []error

	for _, tx := range txs {
		outcome, err := s.provider.VerifyTransfer(ctx, tx.ExternalID)
		if err != nil {
			errs = append(errs, fmt.Errorf("verifying %s: %w", tx.ExternalID, err))
			continue
		}

		switch outcome {
		case OutcomeSuccess:
			err = s.Settle(ctx, tx.Provider, tx.ExternalID, true)
		case OutcomeFailed:
			err = s.Settle(ctx, tx.Provider, tx.ExternalID, false)
		case OutcomePending:
			continue
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
