package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
)

type transactionResponse struct {
	ID          uuid.UUID     `json:"id"`
	ExternalID  string        `json:"external_id"`
	AccountID   uuid.UUID     `json:"account_id"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Type        ledger.Type   `json:"type"`
	Status      ledger.Status `json:"status"`
	Description string        `json:"description,omitempty"`
	Provider    string        `json:"provider"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}

func toTransactionResponse(tx *ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		ExternalID:  tx.ExternalID,
		AccountID:   tx.AccountID,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Type:        tx.Type,
		Status:      tx.Status,
		Description: tx.Description,
		Provider:    tx.Provider,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
		ProcessedAt: tx.ProcessedAt,
	}
}

type accountResponse struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	Type         ledger.AccountType `json:"type"`
	Currency     string             `json:"currency"`
	Balance      int64              `json:"balance"`
	Provider     string             `json:"provider"`
	Active       bool               `json:"active"`
	LastSyncedAt *time.Time         `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func toAccountResponse(acct *ledger.Account) accountResponse {
	return accountResponse{
		ID:           acct.ID,
		Name:         acct.Name,
		Type:         acct.Type,
		Currency:     acct.Currency,
		Balance:      acct.Balance,
		Provider:     acct.Provider,
		Active:       acct.Active,
		LastSyncedAt: acct.LastSyncedAt,
		CreatedAt:    acct.CreatedAt,
	}
}

type balanceResponse struct {
	AccountID    uuid.UUID  `json:"account_id"`
	Balance      int64      `json:"balance"`
	Currency     string     `json:"currency"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}
