package banksync

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/banksync"
	"github.com/tallyhq/tally/internal/http/middleware"
)

type Handler struct {
	svc *banksync.Service
}

func NewHandler(svc *banksync.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.syncAll)
	r.Post("/{accountID}", h.syncAccount)
}

// syncAll pulls fresh transactions for every linked account of the caller.
// Overlapping pulls are safe; application is idempotent.
func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	if err := h.svc.SyncAll(r.Context(), userID); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) syncAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}

	if err := h.svc.SyncAccount(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
