package transfer_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/recipient"
	"github.com/tallyhq/tally/internal/transfer"
)

type memRecipients struct {
	recipients map[uuid.UUID]*recipient.Recipient
	touched    []uuid.UUID
}

func (r *memRecipients) CreateRecipient(_ context.Context, rcp *recipient.Recipient) error {
	if rcp.ID == uuid.Nil {
		rcp.ID = uuid.New()
	}

	r.recipients[rcp.ID] = rcp

	return nil
}

func (r *memRecipients) GetRecipient(_ context.Context, id uuid.UUID) (*recipient.Recipient, error) {
	rcp, ok := r.recipients[id]
	if !ok {
		return nil, recipient.ErrNotFound
	}

	return rcp, nil
}

func (r *memRecipients) ListRecipients(_ context.Context, _ uuid.UUID) ([]*recipient.Recipient, error) {
	return nil, nil
}

func (r *memRecipients) DeactivateRecipient(_ context.Context, _ uuid.UUID) error { return nil }

func (r *memRecipients) TouchRecipient(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.touched = append(r.touched, id)
	return nil
}

type staticRegistrar struct{}

func (staticRegistrar) CreateRecipient(_ context.Context, _, _, _ string) (string, error) {
	return "prcp-1", nil
}

func seedRecipient(t *testing.T) (*recipient.Service, *memRecipients, *recipient.Recipient) {
	t.Helper()

	repo := &memRecipients{recipients: make(map[uuid.UUID]*recipient.Recipient)}
	svc := recipient.NewService(repo, staticRegistrar{})

	rcp, err := svc.Create(context.Background(), recipient.CreateParams{
		UserID:        uuid.New(),
		Name:          "Landlord",
		AccountNumber: "0001112223",
		BankCode:      "044",
	})
	require.NoError(t, err)

	return svc, repo, rcp
}

func TestService_Initiate(t *testing.T) {
	accountID := uuid.New()
	userID := uuid.New()

	account := func(balance int64) *ledger.Account {
		return &ledger.Account{
			ID:       accountID,
			UserID:   userID,
			Currency: "USD",
			Balance:  balance,
			Active:   true,
		}
	}

	t.Run("DebitsAsPendingHold", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		atx := ledger.NewMockApplyTx(ctrl)
		provider := transfer.NewMockProviderClient(ctrl)

		recipients, recipientRepo, rcp := seedRecipient(t)

		repo.EXPECT().GetAccount(gomock.Any(), accountID).Return(account(1000), nil)
		provider.EXPECT().
			InitiateTransfer(gomock.Any(), "prcp-1", int64(300), "USD", "rent").
			Return("tr-55", nil)

		repo.EXPECT().BeginApply(gomock.Any(), accountID).Return(atx, nil)
		atx.EXPECT().Rollback().Return(nil).AnyTimes()

		gomock.InOrder(
			atx.EXPECT().LockAccount(gomock.Any(), accountID).Return(account(1000), nil),
			atx.EXPECT().ReserveEvent(gomock.Any(), "payments", "tr-55", gomock.Any()).Return(nil),
			atx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, tx *ledger.Transaction) error {
					assert.Equal(t, ledger.StatusPending, tx.Status)
					assert.Equal(t, ledger.TypeTransfer, tx.Type)
					assert.Equal(t, int64(-300), tx.Amount)
					return nil
				}),
			atx.EXPECT().UpdateBalance(gomock.Any(), accountID, int64(700)).Return(nil),
			atx.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).Return(nil),
			atx.EXPECT().Commit().Return(nil),
		)

		svc := transfer.NewService(ledger.NewEngine(repo), recipients, provider, "payments")

		tx, err := svc.Initiate(context.Background(), transfer.InitiateParams{
			UserID:      userID,
			AccountID:   accountID,
			RecipientID: rcp.ID,
			Amount:      300,
			Narration:   "rent",
		})
		require.NoError(t, err)
		assert.Equal(t, "tr-55", tx.ExternalID)
		assert.Equal(t, []uuid.UUID{rcp.ID}, recipientRepo.touched)
	})

	t.Run("InsufficientBalanceNeverReachesProvider", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := transfer.NewMockProviderClient(ctrl)

		recipients, _, rcp := seedRecipient(t)

		repo.EXPECT().GetAccount(gomock.Any(), accountID).Return(account(100), nil)

		svc := transfer.NewService(ledger.NewEngine(repo), recipients, provider, "payments")

		_, err := svc.Initiate(context.Background(), transfer.InitiateParams{
			UserID:      userID,
			AccountID:   accountID,
			RecipientID: rcp.ID,
			Amount:      300,
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := transfer.NewMockProviderClient(ctrl)
		recipients, _, rcp := seedRecipient(t)

		svc := transfer.NewService(ledger.NewEngine(repo), recipients, provider, "payments")

		_, err := svc.Initiate(context.Background(), transfer.InitiateParams{
			AccountID:   accountID,
			RecipientID: rcp.ID,
			Amount:      -50,
		})
		assert.Error(t, err)
	})
}

func TestService_Settle(t *testing.T) {
	accountID := uuid.New()
	txID := uuid.New()

	pendingTransfer := func() *ledger.Transaction {
		return &ledger.Transaction{
			ID:         txID,
			ExternalID: "tr-55",
			AccountID:  accountID,
			Amount:     -300,
			Currency:   "USD",
			Type:       ledger.TypeTransfer,
			Status:     ledger.StatusPending,
			Provider:   "payments",
		}
	}

	newService := func(repo *ledger.MockRepository) *transfer.Service {
		return transfer.NewService(ledger.NewEngine(repo), nil, nil, "payments")
	}

	t.Run("SuccessCompletesPendingTransfer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)

		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-55").Return(pendingTransfer(), nil)
		repo.EXPECT().GetTransaction(gomock.Any(), txID).Return(pendingTransfer(), nil)
		repo.EXPECT().UpdateTransactionStatus(gomock.Any(), txID, ledger.StatusCompleted).Return(nil)

		err := newService(repo).Settle(context.Background(), "payments", "tr-55", true)
		assert.NoError(t, err)
	})

	t.Run("SuccessTwiceIsNoOp", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)

		completed := pendingTransfer()
		completed.Status = ledger.StatusCompleted
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-55").Return(completed, nil)

		err := newService(repo).Settle(context.Background(), "payments", "tr-55", true)
		assert.NoError(t, err)
	})

	t.Run("FailureReversesThenFails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		atx := ledger.NewMockApplyTx(ctrl)

		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-55").Return(pendingTransfer(), nil)

		// The compensating reversal runs through the normal apply path,
		// keyed so redeliveries cannot credit twice.
		repo.EXPECT().BeginApply(gomock.Any(), accountID).Return(atx, nil)
		atx.EXPECT().Rollback().Return(nil).AnyTimes()

		gomock.InOrder(
			atx.EXPECT().LockAccount(gomock.Any(), accountID).Return(&ledger.Account{
				ID: accountID, Currency: "USD", Balance: 700, Active: true,
			}, nil),
			atx.EXPECT().ReserveEvent(gomock.Any(), "payments", "tr-55:reversal", gomock.Any()).Return(nil),
			atx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, tx *ledger.Transaction) error {
					assert.Equal(t, ledger.TypeRefund, tx.Type)
					assert.Equal(t, int64(300), tx.Amount)
					return nil
				}),
			atx.EXPECT().UpdateBalance(gomock.Any(), accountID, int64(1000)).Return(nil),
			atx.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).Return(nil),
			atx.EXPECT().Commit().Return(nil),
		)

		repo.EXPECT().GetTransaction(gomock.Any(), txID).Return(pendingTransfer(), nil)
		repo.EXPECT().UpdateTransactionStatus(gomock.Any(), txID, ledger.StatusFailed).Return(nil)

		err := newService(repo).Settle(context.Background(), "payments", "tr-55", false)
		assert.NoError(t, err)
	})

	t.Run("FailureAfterCompletionReverses", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		atx := ledger.NewMockApplyTx(ctrl)

		completed := pendingTransfer()
		completed.Status = ledger.StatusCompleted
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-55").Return(completed, nil)

		repo.EXPECT().BeginApply(gomock.Any(), accountID).Return(atx, nil)
		atx.EXPECT().Rollback().Return(nil).AnyTimes()
		atx.EXPECT().LockAccount(gomock.Any(), accountID).Return(&ledger.Account{
			ID: accountID, Currency: "USD", Balance: 700, Active: true,
		}, nil)
		atx.EXPECT().ReserveEvent(gomock.Any(), "payments", "tr-55:reversal", gomock.Any()).Return(nil)
		atx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil)
		atx.EXPECT().UpdateBalance(gomock.Any(), accountID, int64(1000)).Return(nil)
		atx.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).Return(nil)
		atx.EXPECT().Commit().Return(nil)

		reloaded := pendingTransfer()
		reloaded.Status = ledger.StatusCompleted
		repo.EXPECT().GetTransaction(gomock.Any(), txID).Return(reloaded, nil)
		repo.EXPECT().UpdateTransactionStatus(gomock.Any(), txID, ledger.StatusReversed).Return(nil)

		err := newService(repo).Settle(context.Background(), "payments", "tr-55", false)
		assert.NoError(t, err)
	})

	t.Run("FailureTwiceIsNoOp", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)

		failed := pendingTransfer()
		failed.Status = ledger.StatusFailed
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-55").Return(failed, nil)

		err := newService(repo).Settle(context.Background(), "payments", "tr-55", false)
		assert.NoError(t, err)
	})

	t.Run("SuccessOnFailedTransferConflicts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)

		failed := pendingTransfer()
		failed.Status = ledger.StatusFailed
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-55").Return(failed, nil)

		err := newService(repo).Settle(context.Background(), "payments", "tr-55", true)
		assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	})
}

func TestService_VerifyPending(t *testing.T) {
	accountID := uuid.New()
	txID := uuid.New()

	stale := &ledger.Transaction{
		ID:         txID,
		ExternalID: "tr-90",
		AccountID:  accountID,
		Amount:     -100,
		Currency:   "USD",
		Type:       ledger.TypeTransfer,
		Status:     ledger.StatusPending,
		Provider:   "payments",
	}

	t.Run("CompletesConfirmedTransfer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := transfer.NewMockProviderClient(ctrl)

		repo.EXPECT().ListPendingTransfers(gomock.Any(), gomock.Any()).Return([]*ledger.Transaction{stale}, nil)
		provider.EXPECT().VerifyTransfer(gomock.Any(), "tr-90").Return(transfer.OutcomeSuccess, nil)
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "payments", "tr-90").Return(stale, nil)
		repo.EXPECT().GetTransaction(gomock.Any(), txID).Return(stale, nil)
		repo.EXPECT().UpdateTransactionStatus(gomock.Any(), txID, ledger.StatusCompleted).Return(nil)

		svc := transfer.NewService(ledger.NewEngine(repo), nil, provider, "payments")

		assert.NoError(t, svc.VerifyPending(context.Background(), 10*time.Minute))
	})

	t.Run("StillPendingLeftAlone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := transfer.NewMockProviderClient(ctrl)

		repo.EXPECT().ListPendingTransfers(gomock.Any(), gomock.Any()).Return([]*ledger.Transaction{stale}, nil)
		provider.EXPECT().VerifyTransfer(gomock.Any(), "tr-90").Return(transfer.OutcomePending, nil)

		svc := transfer.NewService(ledger.NewEngine(repo), nil, provider, "payments")

		assert.NoError(t, svc.VerifyPending(context.Background(), 10*time.Minute))
	})
}
