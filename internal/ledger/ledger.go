package ledger

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ProviderManual marks accounts that are maintained by hand rather than
// linked to an external provider.
const ProviderManual = "manual"

// AccountType classifies what kind of holding an account is.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
	AccountCash       AccountType = "cash"
	AccountCrypto     AccountType = "crypto"
)

// Type represents the kind of money movement a transaction records.
type Type string

const (
	TypeIncome   Type = "income"
	TypeExpense  Type = "expense"
	TypeTransfer Type = "transfer"
	TypePayment  Type = "payment"
	TypeRefund   Type = "refund"
)

// Valid reports whether t is one of the known transaction types.
func (t Type) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer, TypePayment, TypeRefund:
		return true
	}

	return false
}

// Status represents the lifecycle state of a transaction.
//
// Transitions are append-only and enforced at the write path:
//
//	pending   -> completed | failed | cancelled
//	completed -> reversed
//
// failed, cancelled and reversed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {StatusReversed},
}

// CanTransition reports whether a transaction may move from one status to
// another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrDuplicateEvent      = errors.New("event already applied")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCurrencyMismatch    = errors.New("event currency does not match account")
	ErrInvalidType         = errors.New("unknown transaction type")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// Account is a holding of funds under one user, one currency, one provider.
// Balance is in minor units (cents) and always equals the sum of the
// account's ledger entries; only the engine mutates it.
type Account struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Name              string
	Type              AccountType
	Currency          string
	Balance           int64
	Provider          string
	ProviderAccountID string
	Active            bool
	LastSyncedAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// Transaction is one money-movement intent. ExternalID is the provider's own
// id and, together with Provider, forms the idempotency key.
type Transaction struct {
	ID           uuid.UUID
	ExternalID   string
	UserID       uuid.UUID
	AccountID    uuid.UUID
	Amount       int64 // minor units, signed: positive credits the account
	Currency     string
	Type         Type
	Status       Status
	Description  string
	Provider     string
	Raw          json.RawMessage
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	ProcessedAt  *time.Time
	ReconciledAt *time.Time
}

// Entry is the immutable, balance-affecting record written alongside a
// transaction. Corrections append a reversing entry; history is never edited.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	UserID        uuid.UUID
	Amount        int64
	BalanceAfter  int64
	Debit         bool
	Description   string
	Reference     string
	CreatedAt     time.Time
}

// Event is a canonical, already-resolved money movement ready to be applied
// to the ledger. Amount sign convention: positive = credit to the account,
// negative = debit.
type Event struct {
	Provider    string
	ExternalID  string
	UserID      uuid.UUID
	AccountID   uuid.UUID
	Amount      int64
	Currency    string
	Type        Type
	Description string
	Pending     bool
	OccurredAt  time.Time
	Raw         json.RawMessage
}
