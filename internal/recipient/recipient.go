package recipient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("recipient not found")

// Recipient is a saved payee for outbound transfers. A recipient that has
// been used in a transfer is deactivated rather than deleted, so transfer
// history keeps its reference.
type Recipient struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	ProviderRecipientID string
	Name                string
	AccountNumber       string
	BankCode            string
	BankName            string
	Active              bool
	LastUsedAt          *time.Time
	CreatedAt           time.Time
}
