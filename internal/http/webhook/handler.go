package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/webhook"
)

// SignatureHeader carries the provider's HMAC over the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// maxBodySize bounds webhook payloads; providers send small JSON bodies.
const maxBodySize = 1 << 20

type Handler struct {
	svc *webhook.Service
}

func NewHandler(svc *webhook.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/{provider}", h.receive)
}

// receive verifies and enqueues the callback, then acknowledges immediately.
// Processing happens off the queue; a slow pipeline must not make the
// provider retry and redeliver.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	_, err = h.svc.Accept(r.Context(), provider, body, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			http.Error(w, "invalid signature", http.StatusUnauthorized)
		case errors.Is(err, webhook.ErrUnknownProvider):
			http.Error(w, "unknown provider", http.StatusNotFound)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}

		return
	}

	w.WriteHeader(http.StatusAccepted)
}
