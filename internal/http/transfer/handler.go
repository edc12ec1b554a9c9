package transfer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/http/middleware"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/recipient"
	"github.com/tallyhq/tally/internal/transfer"
)

type Handler struct {
	svc    *transfer.Service
	engine *ledger.Engine
}

func NewHandler(svc *transfer.Service, engine *ledger.Engine) *Handler {
	return &Handler{svc: svc, engine: engine}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.initiate)
	r.Get("/{id}", h.get)
	r.Post("/{id}/settle", h.settle)
}

type initiateRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      int64     `json:"amount"`
	Narration   string    `json:"narration"`
}

type transferResponse struct {
	ID          uuid.UUID     `json:"id"`
	Reference   string        `json:"reference"`
	AccountID   uuid.UUID     `json:"account_id"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Status      ledger.Status `json:"status"`
	Description string        `json:"description,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toResponse(tx *ledger.Transaction) transferResponse {
	return transferResponse{
		ID:          tx.ID,
		Reference:   tx.ExternalID,
		AccountID:   tx.AccountID,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Status:      tx.Status,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, _ := middleware.UserID(r.Context())

	tx, err := h.svc.Initiate(r.Context(), transfer.InitiateParams{
		UserID:      userID,
		AccountID:   req.AccountID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Narration:   req.Narration,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			http.Error(w, "insufficient balance", http.StatusUnprocessableEntity)
		case errors.Is(err, ledger.ErrNotFound), errors.Is(err, recipient.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(toResponse(tx)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tx, err := h.engine.Transaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "transfer not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(toResponse(tx)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type settleRequest struct {
	Succeeded bool `json:"succeeded"`
}

// settle is the internal confirmation path used when a provider outcome is
// obtained synchronously (verify poll, support tooling) rather than by
// webhook.
func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.engine.Transaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "transfer not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	if err := h.svc.Settle(r.Context(), tx.Provider, tx.ExternalID, req.Succeeded); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
