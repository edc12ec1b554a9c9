package reconcile

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

// ProviderTransaction is one record from the provider's authoritative list,
// already normalized to minor units by the provider client wrapper.
type ProviderTransaction struct {
	ExternalID  string
	Amount      int64
	Currency    string
	Description string
	Date        time.Time
	Pending     bool
}

//go:generate mockgen -source=service.go -destination=provider_mock.go -package=reconcile
type ProviderClient interface {
	ListTransactions(ctx context.Context, providerAccountID string, from, to time.Time) ([]ProviderTransaction, error)
	Balance(ctx context.Context, providerAccountID string) (int64, error)
}

// Ingestor replays a provider record the ledger is missing through the
// normal idempotent apply path.
type Ingestor interface {
	IngestBank(ctx context.Context, provider string, rec normalize.BankRecord) (*ledger.Transaction, bool, error)
}

type Service struct {
	engine   *ledger.Engine
	provider ProviderClient
	ingestor Ingestor
	// fetchTimeout bounds provider API calls so one slow account cannot
	// stall the whole pass.
	fetchTimeout time.Duration
}

func NewService(engine *ledger.Engine, provider ProviderClient, ingestor Ingestor, fetchTimeout time.Duration) *Service {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}

	return &Service{
		engine:       engine,
		provider:     provider,
		ingestor:     ingestor,
		fetchTimeout: fetchTimeout,
	}
}

// Reconcile compares the ledger against the provider's record for one
// account over a window. It only reads ledger state (plus additive ingestion
// of missing transactions); a reconciliation pass never blocks the engine's
// writers for long, and never edits existing entries.
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID, from, to time.Time) (*Report, error) {
	acct, err := s.engine.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if acct.Provider == ledger.ProviderManual || acct.ProviderAccountID == "" {
		return nil, fmt.Errorf("account %s has no provider to reconcile against", accountID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	providerTxs, err := s.provider.ListTransactions(fetchCtx, acct.ProviderAccountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetching provider transactions: %w", err)
	}

	report := &Report{
		AccountID:   accountID,
		From:        from,
		To:          to,
		Total:       len(providerTxs),
		GeneratedAt: time.Now(),
	}

	now := time.Now()

	for _, ptx := range providerTxs {
		tx, err := s.engine.TransactionByExternalID(ctx, acct.Provider, ptx.ExternalID)

		switch {
		case errors.Is(err, ledger.ErrNotFound):
			report.Unreconciled++
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Kind:           KindMissing,
				ExternalID:     ptx.ExternalID,
				ProviderAmount: ptx.Amount,
				Detail:         "provider transaction not in ledger; ingestion scheduled",
			})
			s.ingestMissing(ctx, acct, ptx)

		case err != nil:
			return nil, fmt.Errorf("looking up %s: %w", ptx.ExternalID, err)

		case tx.Amount != ptx.Amount:
			report.Disputed++
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Kind:           KindAmountMismatch,
				ExternalID:     ptx.ExternalID,
				TransactionID:  &tx.ID,
				ProviderAmount: ptx.Amount,
				LedgerAmount:   tx.Amount,
				Detail:         "amounts disagree; flagged for manual review",
			})

		default:
			report.Reconciled++

			if err := s.engine.MarkReconciled(ctx, tx.ID, now); err != nil {
				slog.Error("marking transaction reconciled", "transaction", tx.ID, "error", err)
			}
		}
	}

	providerBalance, err := s.provider.Balance(fetchCtx, acct.ProviderAccountID)
	if err != nil {
		return nil, fmt.Errorf("fetching provider balance: %w", err)
	}

	derived, err := s.engine.DerivedBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report.ProviderBalance = providerBalance
	report.LedgerBalance = derived

	// A persistent balance gap with every known transaction reconciled
	// means an event the provider applied out-of-band (a fee, an
	// adjustment). Surface it; never invent a correcting entry here.
	if providerBalance != derived {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:           KindBalanceDrift,
			ProviderAmount: providerBalance,
			LedgerAmount:   derived,
			Detail:         "provider and ledger balances disagree after reconciling all known transactions",
		})
	}

	return report, nil
}

// ingestMissing replays a provider record through the normal apply path.
// Idempotency makes this safe even if a concurrent sync ingests it first.
func (s *Service) ingestMissing(ctx context.Context, acct *ledger.Account, ptx ProviderTransaction) {
	if s.ingestor == nil {
		return
	}

	_, _, err := s.ingestor.IngestBank(ctx, acct.Provider, normalize.BankRecord{
		TransactionID: ptx.ExternalID,
		AccountID:     acct.ProviderAccountID,
		Amount:        minorToDecimalString(ptx.Amount),
		Currency:      ptx.Currency,
		Date:          ptx.Date,
		Name:          ptx.Description,
		Pending:       ptx.Pending,
	})
	if err != nil {
		slog.Error("ingesting missing transaction", "external_id", ptx.ExternalID, "error", err)
	}
}

func minorToDecimalString(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
