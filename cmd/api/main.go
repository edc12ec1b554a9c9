package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tallyhq/tally/internal/banksync"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/database"
	tallyHttp "github.com/tallyhq/tally/internal/http"
	syncHandler "github.com/tallyhq/tally/internal/http/banksync"
	importHandler "github.com/tallyhq/tally/internal/http/importcsv"
	ledgerHandler "github.com/tallyhq/tally/internal/http/ledger"
	queueHandler "github.com/tallyhq/tally/internal/http/queue"
	reconcileHandler "github.com/tallyhq/tally/internal/http/reconcile"
	recipientHandler "github.com/tallyhq/tally/internal/http/recipient"
	transferHandler "github.com/tallyhq/tally/internal/http/transfer"
	webhookHandler "github.com/tallyhq/tally/internal/http/webhook"
	"github.com/tallyhq/tally/internal/importer"
	"github.com/tallyhq/tally/internal/ingest"
	"github.com/tallyhq/tally/internal/ledger"
	ledgerStore "github.com/tallyhq/tally/internal/ledger/store"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/provider/bank"
	"github.com/tallyhq/tally/internal/provider/payments"
	"github.com/tallyhq/tally/internal/queue"
	queueStore "github.com/tallyhq/tally/internal/queue/store"
	"github.com/tallyhq/tally/internal/reconcile"
	"github.com/tallyhq/tally/internal/recipient"
	recipientStore "github.com/tallyhq/tally/internal/recipient/store"
	"github.com/tallyhq/tally/internal/transfer"
	"github.com/tallyhq/tally/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		bankClient     = bank.NewClient(cfg.Providers.BankBaseURL, cfg.Providers.BankToken, cfg.Providers.Timeout)
		paymentsClient = payments.NewClient(cfg.Providers.PaymentsBaseURL, cfg.Providers.PaymentsKey, cfg.Providers.Timeout)
	)

	var (
		engine           = ledger.NewEngine(ledgerStore.New(db))
		normalizer       = normalize.New(engine)
		deliveries       = queueStore.New(db)
		webhookService   = webhook.NewService(webhook.NewVerifier(cfg.WebhookSecrets()), deliveries)
		recipientService = recipient.NewService(recipientStore.New(db), paymentsClient)
		transferService  = transfer.NewService(engine, recipientService, paymentsClient, cfg.Transfer.ProviderTag)
		ingestService    = ingest.NewService(normalizer, engine, transferService)
		reconcileService = reconcile.NewService(engine, &bank.ReconcileClient{Client: bankClient}, ingestService, cfg.Reconcile.FetchTimeout)
		syncService      = banksync.NewService(engine, bankClient, ingestService, cfg.Sync.Overlap)
	)

	consumer := queue.NewConsumer(deliveries, ingestService, queue.ConsumerConfig{
		Workers:      cfg.Queue.Workers,
		BatchSize:    cfg.Queue.BatchSize,
		PollInterval: cfg.Queue.PollInterval,
		BackoffBase:  cfg.Queue.BackoffBase,
		BackoffMax:   cfg.Queue.BackoffMax,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		StaleAfter:   cfg.Queue.StaleAfter,
	})

	go consumer.Run(ctx)

	go verifyPendingTransfers(ctx, transferService, cfg.Transfer.VerifyInterval, cfg.Transfer.VerifyGrace)

	var (
		ledgerH    = ledgerHandler.NewHandler(engine)
		reconcileH = reconcileHandler.NewHandler(reconcileService)
		transferH  = transferHandler.NewHandler(transferService, engine)
		recipientH = recipientHandler.NewHandler(recipientService)
		importH    = importHandler.NewHandler(importer.Parsers(), ingestService)
		syncH      = syncHandler.NewHandler(syncService)
		queueH     = queueHandler.NewHandler(deliveries)
		webhookH   = webhookHandler.NewHandler(webhookService)
	)

	router := tallyHttp.New(cfg.Auth.JWTSecret, ledgerH, reconcileH, transferH, recipientH, importH, syncH, queueH, webhookH)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutting down server", "error", err)
		}
	}()

	slog.Info("starting server", "port", server.Addr)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// verifyPendingTransfers periodically asks the payment provider about
// transfers still pending past the grace window, covering settlement webhooks
// that never arrived.
func verifyPendingTransfers(ctx context.Context, transfers *transfer.Service, interval, grace time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := transfers.VerifyPending(ctx, grace); err != nil {
				slog.Error("verifying pending transfers", "error", err)
			}
		}
	}
}
