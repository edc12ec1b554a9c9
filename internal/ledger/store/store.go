package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tallyhq/tally/internal/ledger"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const selectAccountColumns = `
	id, user_id, name, type, currency, balance, provider, provider_account_id,
	active, last_synced_at, created_at, updated_at
`

func scanAccount(s scanner) (*ledger.Account, error) {
	var acct ledger.Account

	var typeStr string

	var providerAccountID sql.NullString

	if err := s.Scan(
		&acct.ID, &acct.UserID, &acct.Name, &typeStr, &acct.Currency, &acct.Balance,
		&acct.Provider, &providerAccountID, &acct.Active, &acct.LastSyncedAt,
		&acct.CreatedAt, &acct.UpdatedAt,
	); err != nil {
		return nil, err
	}

	acct.Type = ledger.AccountType(typeStr)
	acct.ProviderAccountID = providerAccountID.String

	return &acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *ledger.Account) error {
	query := `
		INSERT INTO accounts (user_id, name, type, currency, balance, provider, provider_account_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		acct.UserID,
		acct.Name,
		acct.Type,
		acct.Currency,
		acct.Balance,
		acct.Provider,
		acct.ProviderAccountID,
		acct.Active,
	).Scan(&acct.ID, &acct.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE id = $1`

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting account: %w", err)
	}

	return acct, nil
}

func (s *Store) FindAccountByProviderRef(ctx context.Context, provider, providerAccountID string) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts
		WHERE provider = $1 AND provider_account_id = $2`

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, provider, providerAccountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("finding account: %w", err)
	}

	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accts []*ledger.Account

	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}

		accts = append(accts, acct)
	}

	return accts, rows.Err()
}

// DeactivateAccount soft-deactivates; accounts are never physically removed
// while entries reference them.
func (s *Store) DeactivateAccount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE accounts SET active = FALSE, updated_at = NOW() WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivating account: %w", err)
	}

	return nil
}

func (s *Store) SetLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE accounts SET last_synced_at = $1, updated_at = NOW() WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("updating last synced: %w", err)
	}

	return nil
}

const selectTransactionColumns = `
	id, external_id, user_id, account_id, amount, currency, type, status,
	description, provider, raw, metadata, created_at, updated_at, processed_at, reconciled_at
`

func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction

	var typeStr, statusStr string

	var raw, metadata []byte

	if err := s.Scan(
		&tx.ID, &tx.ExternalID, &tx.UserID, &tx.AccountID, &tx.Amount, &tx.Currency,
		&typeStr, &statusStr, &tx.Description, &tx.Provider, &raw, &metadata,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.ProcessedAt, &tx.ReconciledAt,
	); err != nil {
		return nil, err
	}

	tx.Type = ledger.Type(typeStr)
	tx.Status = ledger.Status(statusStr)
	tx.Raw = raw

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

// FindTransactionByExternalID is an exact indexed lookup on the
// (provider, external_id) unique pair.
func (s *Store) FindTransactionByExternalID(ctx context.Context, provider, externalID string) (*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions
		WHERE provider = $1 AND external_id = $2`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, provider, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("finding transaction: %w", err)
	}

	return tx, nil
}

// ListPendingTransfers returns locally initiated transfers still awaiting
// provider settlement, used by the verify poll.
func (s *Store) ListPendingTransfers(ctx context.Context, olderThan time.Time) ([]*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions
		WHERE type = 'transfer' AND status = 'pending' AND created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("listing pending transfers: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status ledger.Status) error {
	query := `
		UPDATE transactions
		SET status = $1, updated_at = NOW(),
		    processed_at = CASE WHEN $1 IN ('completed', 'failed') THEN NOW() ELSE processed_at END
		WHERE id = $2
	`

	res, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func (s *Store) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE transactions SET reconciled_at = $1, updated_at = NOW() WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("marking reconciled: %w", err)
	}

	return nil
}

func (s *Store) ListEntries(ctx context.Context, accountID uuid.UUID) ([]*ledger.Entry, error) {
	query := `
		SELECT id, transaction_id, account_id, user_id, amount, balance_after,
		       debit, description, reference, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry

	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(
			&e.ID, &e.TransactionID, &e.AccountID, &e.UserID, &e.Amount,
			&e.BalanceAfter, &e.Debit, &e.Description, &e.Reference, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func (s *Store) SumEntries(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`

	var sum int64
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing entries: %w", err)
	}

	return sum, nil
}

type applyTx struct {
	tx *sql.Tx
}

// BeginApply opens the atomic unit of work for one event application. The
// idempotency reservation, transaction row, balance update and entry all ride
// the same database transaction.
func (s *Store) BeginApply(ctx context.Context, _ uuid.UUID) (ledger.ApplyTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning apply tx: %w", err)
	}

	return &applyTx{tx: dbTx}, nil
}

func (a *applyTx) Commit() error   { return a.tx.Commit() }
func (a *applyTx) Rollback() error { return a.tx.Rollback() }

// LockAccount takes a row-level lock on the account for the duration of the
// unit of work, serializing concurrent balance read-modify-writes.
func (a *applyTx) LockAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	acct, err := scanAccount(a.tx.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("locking account: %w", err)
	}

	return acct, nil
}

func (a *applyTx) ReserveEvent(ctx context.Context, provider, externalID string, transactionID uuid.UUID) error {
	query := `
		INSERT INTO idempotency_records (provider, external_id, transaction_id, first_seen_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := a.tx.ExecContext(ctx, query, provider, externalID, transactionID); err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateEvent
		}

		return fmt.Errorf("reserving event: %w", err)
	}

	return nil
}

func (a *applyTx) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (id, external_id, user_id, account_id, amount, currency,
			type, status, description, provider, raw, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at
	`

	err = a.tx.QueryRowContext(ctx, query,
		tx.ID,
		tx.ExternalID,
		tx.UserID,
		tx.AccountID,
		tx.Amount,
		tx.Currency,
		tx.Type,
		tx.Status,
		tx.Description,
		tx.Provider,
		nullableJSON(tx.Raw),
		metadata,
	).Scan(&tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateEvent
		}

		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (a *applyTx) UpdateBalance(ctx context.Context, accountID uuid.UUID, balance int64) error {
	query := `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`

	if _, err := a.tx.ExecContext(ctx, query, balance, accountID); err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	return nil
}

func (a *applyTx) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, transaction_id, account_id, user_id, amount,
			balance_after, debit, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`

	err := a.tx.QueryRowContext(ctx, query,
		entry.ID,
		entry.TransactionID,
		entry.AccountID,
		entry.UserID,
		entry.Amount,
		entry.BalanceAfter,
		entry.Debit,
		entry.Description,
		entry.Reference,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating entry: %w", err)
	}

	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}
