package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/reconcile"
)

func TestService_Reconcile(t *testing.T) {
	accountID := uuid.New()

	linked := &ledger.Account{
		ID:                accountID,
		UserID:            uuid.New(),
		Currency:          "USD",
		Balance:           750,
		Provider:          "bank",
		ProviderAccountID: "acc-77",
		Active:            true,
	}

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("ClassifiesEveryRecord", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := reconcile.NewMockProviderClient(ctrl)
		ingestor := reconcile.NewMockIngestor(ctrl)

		repo.EXPECT().GetAccount(gomock.Any(), accountID).Return(linked, nil)

		provider.EXPECT().ListTransactions(gomock.Any(), "acc-77", from, to).Return([]reconcile.ProviderTransaction{
			{ExternalID: "t-1", Amount: 1000, Currency: "USD"},
			{ExternalID: "t-2", Amount: -250, Currency: "USD"},
			{ExternalID: "t-3", Amount: -90, Currency: "USD", Description: "ATM fee"},
		}, nil)

		matchedID := uuid.New()
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "bank", "t-1").
			Return(&ledger.Transaction{ID: matchedID, Amount: 1000}, nil)
		repo.EXPECT().MarkReconciled(gomock.Any(), matchedID, gomock.Any()).Return(nil)

		// Ledger holds t-2 with a different amount: disputed, untouched.
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "bank", "t-2").
			Return(&ledger.Transaction{ID: uuid.New(), Amount: -200}, nil)

		// t-3 is unknown: scheduled for ingestion through the normal path.
		repo.EXPECT().FindTransactionByExternalID(gomock.Any(), "bank", "t-3").
			Return(nil, ledger.ErrNotFound)
		ingestor.EXPECT().IngestBank(gomock.Any(), "bank", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, rec normalize.BankRecord) (*ledger.Transaction, bool, error) {
				assert.Equal(t, "t-3", rec.TransactionID)
				assert.Equal(t, "-0.90", rec.Amount)
				return &ledger.Transaction{}, true, nil
			})

		provider.EXPECT().Balance(gomock.Any(), "acc-77").Return(int64(750), nil)
		repo.EXPECT().SumEntries(gomock.Any(), accountID).Return(int64(750), nil)

		svc := reconcile.NewService(ledger.NewEngine(repo), provider, ingestor, time.Second)

		report, err := svc.Reconcile(context.Background(), accountID, from, to)
		require.NoError(t, err)

		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 1, report.Reconciled)
		assert.Equal(t, 1, report.Disputed)
		assert.Equal(t, 1, report.Unreconciled)
		require.Len(t, report.Discrepancies, 2)
		assert.Equal(t, reconcile.KindAmountMismatch, report.Discrepancies[0].Kind)
		assert.Equal(t, reconcile.KindMissing, report.Discrepancies[1].Kind)
		assert.Equal(t, int64(750), report.ProviderBalance)
		assert.Equal(t, int64(750), report.LedgerBalance)
	})

	t.Run("BalanceDriftReported", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := reconcile.NewMockProviderClient(ctrl)

		repo.EXPECT().GetAccount(gomock.Any(), accountID).Return(linked, nil)
		provider.EXPECT().ListTransactions(gomock.Any(), "acc-77", from, to).Return(nil, nil)
		provider.EXPECT().Balance(gomock.Any(), "acc-77").Return(int64(740), nil)
		repo.EXPECT().SumEntries(gomock.Any(), accountID).Return(int64(750), nil)

		svc := reconcile.NewService(ledger.NewEngine(repo), provider, nil, time.Second)

		report, err := svc.Reconcile(context.Background(), accountID, from, to)
		require.NoError(t, err)

		require.Len(t, report.Discrepancies, 1)
		assert.Equal(t, reconcile.KindBalanceDrift, report.Discrepancies[0].Kind)
		assert.Equal(t, int64(740), report.ProviderBalance)
		assert.Equal(t, int64(750), report.LedgerBalance)
	})

	t.Run("ManualAccountRejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := ledger.NewMockRepository(ctrl)
		provider := reconcile.NewMockProviderClient(ctrl)

		manual := &ledger.Account{ID: accountID, Provider: ledger.ProviderManual, Active: true}
		repo.EXPECT().GetAccount(gomock.Any(), accountID).Return(manual, nil)

		svc := reconcile.NewService(ledger.NewEngine(repo), provider, nil, time.Second)

		_, err := svc.Reconcile(context.Background(), accountID, from, to)
		assert.Error(t, err)
	})
}
