package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	authmw "github.com/tallyhq/tally/internal/http/middleware"

	syncHandler "github.com/tallyhq/tally/internal/http/banksync"
	importHandler "github.com/tallyhq/tally/internal/http/importcsv"
	ledgerHandler "github.com/tallyhq/tally/internal/http/ledger"
	queueHandler "github.com/tallyhq/tally/internal/http/queue"
	reconcileHandler "github.com/tallyhq/tally/internal/http/reconcile"
	recipientHandler "github.com/tallyhq/tally/internal/http/recipient"
	transferHandler "github.com/tallyhq/tally/internal/http/transfer"
	webhookHandler "github.com/tallyhq/tally/internal/http/webhook"
)

func New(
	jwtSecret string,
	ledgerV1 *ledgerHandler.Handler,
	reconcileV1 *reconcileHandler.Handler,
	transfersV1 *transferHandler.Handler,
	recipientsV1 *recipientHandler.Handler,
	importV1 *importHandler.Handler,
	syncV1 *syncHandler.Handler,
	queueV1 *queueHandler.Handler,
	webhooks *webhookHandler.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	// Webhooks authenticate with provider signatures, not bearer tokens, and
	// must see the raw body untouched.
	router.Route("/webhooks", webhooks.Routes)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(authmw.Authenticated(jwtSecret))

		r.Route("/ledger", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			ledgerV1.Routes(r)
			r.Route("/reconcile", reconcileV1.Routes)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			ledgerV1.AccountRoutes(r)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			transfersV1.Routes(r)
		})

		r.Route("/recipients", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			recipientsV1.Routes(r)
		})

		r.Route("/import", importV1.Routes)

		r.Route("/sync", syncV1.Routes)

		r.Route("/queue", queueV1.Routes)
	})

	return router
}
