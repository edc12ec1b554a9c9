package recipient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateRecipient(ctx context.Context, r *Recipient) error
	GetRecipient(ctx context.Context, id uuid.UUID) (*Recipient, error)
	ListRecipients(ctx context.Context, userID uuid.UUID) ([]*Recipient, error)
	DeactivateRecipient(ctx context.Context, id uuid.UUID) error
	TouchRecipient(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

// ProviderClient registers payees with the payment processor before they can
// receive transfers.
type ProviderClient interface {
	CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error)
}

type Service struct {
	repo     Repository
	provider ProviderClient
}

func NewService(repo Repository, provider ProviderClient) *Service {
	return &Service{repo: repo, provider: provider}
}

type CreateParams struct {
	UserID        uuid.UUID
	Name          string
	AccountNumber string
	BankCode      string
	BankName      string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Recipient, error) {
	providerID, err := s.provider.CreateRecipient(ctx, params.Name, params.AccountNumber, params.BankCode)
	if err != nil {
		return nil, fmt.Errorf("registering recipient with provider: %w", err)
	}

	r := &Recipient{
		UserID:              params.UserID,
		ProviderRecipientID: providerID,
		Name:                params.Name,
		AccountNumber:       params.AccountNumber,
		BankCode:            params.BankCode,
		BankName:            params.BankName,
		Active:              true,
	}

	if err := s.repo.CreateRecipient(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Recipient, error) {
	return s.repo.GetRecipient(ctx, id)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*Recipient, error) {
	return s.repo.ListRecipients(ctx, userID)
}

// Deactivate retires a payee without removing it; transfers keep their
// reference.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateRecipient(ctx, id)
}

// MarkUsed records that the recipient just received a transfer.
func (s *Service) MarkUsed(ctx context.Context, id uuid.UUID) error {
	return s.repo.TouchRecipient(ctx, id, time.Now())
}
