package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	CreateAccount(ctx context.Context, acct *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	FindAccountByProviderRef(ctx context.Context, provider, providerAccountID string) (*Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*Account, error)
	DeactivateAccount(ctx context.Context, id uuid.UUID) error
	SetLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error

	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindTransactionByExternalID(ctx context.Context, provider, externalID string) (*Transaction, error)
	ListPendingTransfers(ctx context.Context, olderThan time.Time) ([]*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status Status) error
	MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error
	ListEntries(ctx context.Context, accountID uuid.UUID) ([]*Entry, error)
	SumEntries(ctx context.Context, accountID uuid.UUID) (int64, error)

	BeginApply(ctx context.Context, accountID uuid.UUID) (ApplyTx, error)
}

// ApplyTx is one atomic unit of work over the ledger tables. All writes made
// through it become visible together on Commit or not at all; the idempotency
// reservation is part of the same database transaction, so a crash between
// the reservation and the balance update cannot leave either half behind.
type ApplyTx interface {
	// LockAccount reads the account row under an exclusive row lock, held
	// until Commit or Rollback. This serializes balance mutation per account.
	LockAccount(ctx context.Context, accountID uuid.UUID) (*Account, error)
	// ReserveEvent records the (provider, external id) pair. Returns
	// ErrDuplicateEvent if another transaction already holds it.
	ReserveEvent(ctx context.Context, provider, externalID string, transactionID uuid.UUID) error
	CreateTransaction(ctx context.Context, tx *Transaction) error
	UpdateBalance(ctx context.Context, accountID uuid.UUID, balance int64) error
	CreateEntry(ctx context.Context, entry *Entry) error
	Commit() error
	Rollback() error
}

// Engine is the only component permitted to mutate account balances.
type Engine struct {
	repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

func validateEvent(ev Event) error {
	if ev.Provider == "" || ev.ExternalID == "" {
		return fmt.Errorf("event missing provider or external id")
	}

	if ev.AccountID == uuid.Nil {
		return fmt.Errorf("event missing account id")
	}

	if !ev.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, ev.Type)
	}

	return nil
}

// ApplyEvent applies one canonical event to the ledger. Re-applying an event
// with the same (provider, external id) is a no-op that returns the
// previously created transaction with applied == false.
func (e *Engine) ApplyEvent(ctx context.Context, ev Event) (tx *Transaction, applied bool, err error) {
	if err := validateEvent(ev); err != nil {
		return nil, false, err
	}

	atx, err := e.repo.BeginApply(ctx, ev.AccountID)
	if err != nil {
		return nil, false, fmt.Errorf("begin apply: %w", err)
	}
	defer atx.Rollback()

	acct, err := atx.LockAccount(ctx, ev.AccountID)
	if err != nil {
		return nil, false, fmt.Errorf("locking account: %w", err)
	}

	if !acct.Active {
		return nil, false, ErrAccountInactive
	}

	if ev.Currency != "" && ev.Currency != acct.Currency {
		return nil, false, ErrCurrencyMismatch
	}

	// Outbound transfers and payments must not overdraw. Bank-reported
	// movements are applied as-is; the bank is the source of truth there.
	outbound := ev.Type == TypeTransfer || ev.Type == TypePayment
	if outbound && ev.Amount < 0 && acct.Balance+ev.Amount < 0 {
		return nil, false, ErrInsufficientBalance
	}

	tx = &Transaction{
		ID:          uuid.New(),
		ExternalID:  ev.ExternalID,
		UserID:      ev.UserID,
		AccountID:   ev.AccountID,
		Amount:      ev.Amount,
		Currency:    acct.Currency,
		Type:        ev.Type,
		Status:      StatusCompleted,
		Description: ev.Description,
		Provider:    ev.Provider,
		Raw:         ev.Raw,
	}
	if ev.Pending {
		tx.Status = StatusPending
	}

	if err := atx.ReserveEvent(ctx, ev.Provider, ev.ExternalID, tx.ID); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			atx.Rollback()

			existing, err := e.repo.FindTransactionByExternalID(ctx, ev.Provider, ev.ExternalID)
			if err != nil {
				return nil, false, err
			}

			// A record first delivered as pending settles when the provider
			// re-reports it posted. The balance already moved when the hold
			// applied, so only the status changes. Transfers are excluded;
			// settlement owns their lifecycle.
			if !ev.Pending && existing.Status == StatusPending && existing.Type != TypeTransfer {
				if err := e.repo.UpdateTransactionStatus(ctx, existing.ID, StatusCompleted); err != nil {
					return nil, false, fmt.Errorf("settling pending duplicate: %w", err)
				}

				existing.Status = StatusCompleted
			}

			return existing, false, nil
		}

		return nil, false, fmt.Errorf("reserving event: %w", err)
	}

	if err := atx.CreateTransaction(ctx, tx); err != nil {
		return nil, false, fmt.Errorf("creating transaction: %w", err)
	}

	balance := acct.Balance + ev.Amount

	if err := atx.UpdateBalance(ctx, ev.AccountID, balance); err != nil {
		return nil, false, fmt.Errorf("updating balance: %w", err)
	}

	entry := &Entry{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		AccountID:     ev.AccountID,
		UserID:        ev.UserID,
		Amount:        ev.Amount,
		BalanceAfter:  balance,
		Debit:         ev.Amount < 0,
		Description:   ev.Description,
		Reference:     ev.ExternalID,
	}

	if err := atx.CreateEntry(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("creating entry: %w", err)
	}

	if err := atx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing apply: %w", err)
	}

	return tx, true, nil
}

// TransitionStatus moves a transaction to a new status, enforcing the
// append-only state machine.
func (e *Engine) TransitionStatus(ctx context.Context, id uuid.UUID, to Status) error {
	tx, err := e.repo.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	if !CanTransition(tx.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tx.Status, to)
	}

	return e.repo.UpdateTransactionStatus(ctx, id, to)
}

// ReversalExternalID derives the synthetic idempotency key used for
// compensating entries, so repeated failure notifications cannot reverse a
// transaction twice.
func ReversalExternalID(externalID string) string {
	return externalID + ":reversal"
}

// Reverse appends a compensating event that re-credits the account by the
// exact negation of the original amount. It runs through ApplyEvent and is
// therefore idempotent per original transaction.
func (e *Engine) Reverse(ctx context.Context, original *Transaction, reason string) (*Transaction, error) {
	tx, _, err := e.ApplyEvent(ctx, Event{
		Provider:    original.Provider,
		ExternalID:  ReversalExternalID(original.ExternalID),
		UserID:      original.UserID,
		AccountID:   original.AccountID,
		Amount:      -original.Amount,
		Currency:    original.Currency,
		Type:        TypeRefund,
		Description: reason,
	})

	return tx, err
}

func (e *Engine) CreateAccount(ctx context.Context, acct *Account) error {
	if acct.Provider == "" {
		acct.Provider = ProviderManual
	}

	acct.Active = true

	return e.repo.CreateAccount(ctx, acct)
}

func (e *Engine) Account(ctx context.Context, id uuid.UUID) (*Account, error) {
	return e.repo.GetAccount(ctx, id)
}

// Resolve maps a provider-side account reference to the internal account.
// Satisfies the normalizer's resolver interface.
func (e *Engine) Resolve(ctx context.Context, provider, accountRef string) (*Account, error) {
	return e.repo.FindAccountByProviderRef(ctx, provider, accountRef)
}

func (e *Engine) Accounts(ctx context.Context, userID uuid.UUID) ([]*Account, error) {
	return e.repo.ListAccounts(ctx, userID)
}

func (e *Engine) DeactivateAccount(ctx context.Context, id uuid.UUID) error {
	return e.repo.DeactivateAccount(ctx, id)
}

func (e *Engine) SetLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return e.repo.SetLastSynced(ctx, id, at)
}

func (e *Engine) Transaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return e.repo.GetTransaction(ctx, id)
}

func (e *Engine) TransactionByExternalID(ctx context.Context, provider, externalID string) (*Transaction, error) {
	return e.repo.FindTransactionByExternalID(ctx, provider, externalID)
}

func (e *Engine) PendingTransfers(ctx context.Context, olderThan time.Time) ([]*Transaction, error) {
	return e.repo.ListPendingTransfers(ctx, olderThan)
}

func (e *Engine) Entries(ctx context.Context, accountID uuid.UUID) ([]*Entry, error) {
	return e.repo.ListEntries(ctx, accountID)
}

// MarkReconciled stamps a transaction as last verified against the
// provider's record.
func (e *Engine) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return e.repo.MarkReconciled(ctx, id, at)
}

// DerivedBalance recomputes the balance from the entry history. Used by
// reconciliation to cross-check the stored balance.
func (e *Engine) DerivedBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return e.repo.SumEntries(ctx, accountID)
}
