// Package banksync pulls transactions from the bank-aggregation collaborator
// for each linked account and feeds them through the ingest pipeline.
package banksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/normalize"
)

// BankClient is the bank-sync collaborator boundary: per linked account, a
// list of normalized records for a date range.
type BankClient interface {
	ListTransactions(ctx context.Context, providerAccountID string, from, to time.Time) ([]normalize.BankRecord, error)
}

type Ingestor interface {
	IngestBank(ctx context.Context, provider string, rec normalize.BankRecord) (*ledger.Transaction, bool, error)
}

type Service struct {
	engine   *ledger.Engine
	bank     BankClient
	ingestor Ingestor
	// overlap re-polls a window before last sync; overlapping pulls are
	// harmless because application is idempotent.
	overlap time.Duration
}

func NewService(engine *ledger.Engine, bank BankClient, ingestor Ingestor, overlap time.Duration) *Service {
	if overlap <= 0 {
		overlap = 24 * time.Hour
	}

	return &Service{engine: engine, bank: bank, ingestor: ingestor, overlap: overlap}
}

// SyncAccount pulls the provider's records since the last sync (minus the
// overlap window) and applies them. Unresolved-account errors abort the pull;
// everything else is applied record by record.
func (s *Service) SyncAccount(ctx context.Context, accountID uuid.UUID) error {
	acct, err := s.engine.Account(ctx, accountID)
	if err != nil {
		return err
	}

	if acct.Provider == ledger.ProviderManual || acct.ProviderAccountID == "" {
		return fmt.Errorf("account %s is not provider-linked", accountID)
	}

	now := time.Now()

	from := now.AddDate(0, -3, 0)
	if acct.LastSyncedAt != nil {
		from = acct.LastSyncedAt.Add(-s.overlap)
	}

	records, err := s.bank.ListTransactions(ctx, acct.ProviderAccountID, from, now)
	if err != nil {
		return fmt.Errorf("fetching bank transactions: %w", err)
	}

	var errs []error

	for _, rec := range records {
		if _, _, err := s.ingestor.IngestBank(ctx, acct.Provider, rec); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", rec.TransactionID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	return s.engine.SetLastSynced(ctx, accountID, now)
}

// SyncAll walks every active linked account for a user. One failing account
// does not stop the others.
func (s *Service) SyncAll(ctx context.Context, userID uuid.UUID) error {
	accts, err := s.engine.Accounts(ctx, userID)
	if err != nil {
		return err
	}

	var errs []error

	for _, acct := range accts {
		if !acct.Active || acct.Provider == ledger.ProviderManual {
			continue
		}

		if err := s.SyncAccount(ctx, acct.ID); err != nil {
			slog.Error("syncing account", "account", acct.ID, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
