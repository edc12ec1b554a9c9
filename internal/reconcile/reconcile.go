// Package reconcile audits the ledger against the provider's authoritative
// record and classifies drift. Repairs are additive or advisory only: it
// never edits or deletes ledger entries.
package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// DiscrepancyKind classifies one provider-vs-ledger mismatch.
type DiscrepancyKind string

const (
	// KindMissing: the provider knows the transaction, the ledger does not.
	// Safe to repair by ingesting through the normal idempotent path.
	KindMissing DiscrepancyKind = "missing"
	// KindAmountMismatch: both sides know the transaction but disagree on
	// the amount. Never auto-repaired; silently overwriting a completed
	// entry could mask fraud or a provider-side error.
	KindAmountMismatch DiscrepancyKind = "amount_mismatch"
	// KindBalanceDrift: per-transaction reconciliation finished clean but
	// the balances still disagree, indicating an out-of-band event such as
	// a provider fee. Reported, not corrected.
	KindBalanceDrift DiscrepancyKind = "balance_drift"
)

type Discrepancy struct {
	Kind           DiscrepancyKind `json:"kind"`
	ExternalID     string          `json:"external_id,omitempty"`
	TransactionID  *uuid.UUID      `json:"transaction_id,omitempty"`
	ProviderAmount int64           `json:"provider_amount,omitempty"`
	LedgerAmount   int64           `json:"ledger_amount,omitempty"`
	Detail         string          `json:"detail,omitempty"`
}

// Report is the derived, non-authoritative output of one reconciliation pass
// over a time window. Regenerated on demand.
type Report struct {
	AccountID       uuid.UUID     `json:"account_id"`
	From            time.Time     `json:"from"`
	To              time.Time     `json:"to"`
	Total           int           `json:"total"`
	Reconciled      int           `json:"reconciled"`
	Unreconciled    int           `json:"unreconciled"`
	Disputed        int           `json:"disputed"`
	ProviderBalance int64         `json:"provider_balance"`
	LedgerBalance   int64         `json:"ledger_balance"`
	Discrepancies   []Discrepancy `json:"discrepancies,omitempty"`
	GeneratedAt     time.Time     `json:"generated_at"`
}
