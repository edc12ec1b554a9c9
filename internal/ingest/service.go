// Package ingest is the pipeline between raw provider payloads and the
// ledger: normalize, then apply or settle. It is the queue consumer's
// processor and the replay path for bank sync and reconciliation.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/queue"
	"github.com/tallyhq/tally/internal/transfer"
)

type Service struct {
	normalizer *normalize.Normalizer
	engine     *ledger.Engine
	transfers  *transfer.Service
}

func NewService(normalizer *normalize.Normalizer, engine *ledger.Engine, transfers *transfer.Service) *Service {
	return &Service{normalizer: normalizer, engine: engine, transfers: transfers}
}

// Process handles one queued webhook delivery. Malformed payloads are
// permanent failures; an unresolved account is retryable because the account
// link may still be completing.
func (s *Service) Process(ctx context.Context, d *queue.Delivery) error {
	res, err := s.normalizer.WebhookEvent(ctx, d.Provider, d.Payload)
	if err != nil {
		if errors.Is(err, normalize.ErrMalformedPayload) {
			return queue.Permanent(err)
		}

		return err
	}

	if res.Settlement != nil {
		err := s.transfers.Settle(ctx, res.Settlement.Provider, res.Settlement.Reference, res.Settlement.Succeeded)
		if err != nil && errors.Is(err, ledger.ErrInvalidTransition) {
			// The transfer is already terminal in a conflicting state; a
			// retry cannot change that.
			return queue.Permanent(err)
		}

		return err
	}

	if _, _, err := s.engine.ApplyEvent(ctx, *res.Event); err != nil {
		return fmt.Errorf("applying event: %w", err)
	}

	return nil
}

// IngestBank normalizes and applies one bank-sync record. Duplicate records
// resolve to the existing transaction without side effects and report
// applied == false.
func (s *Service) IngestBank(ctx context.Context, provider string, rec normalize.BankRecord) (*ledger.Transaction, bool, error) {
	ev, err := s.normalizer.BankEvent(ctx, provider, rec)
	if err != nil {
		return nil, false, err
	}

	return s.engine.ApplyEvent(ctx, ev)
}
