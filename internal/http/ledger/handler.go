package ledger

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
)

type Handler struct {
	engine *ledger.Engine
}

func NewHandler(engine *ledger.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/events", h.applyEvent)
	r.Get("/accounts/{id}/balance", h.balance)
	r.Get("/accounts/{id}/entries", h.entries)
}

func (h *Handler) AccountRoutes(r chi.Router) {
	r.Post("/", h.createAccount)
	r.Get("/", h.listAccounts)
	r.Get("/{id}", h.getAccount)
	r.Delete("/{id}", h.deactivateAccount)
}

// eventRequest is the pre-normalized event contract for internal callers.
// Amount is signed minor units; positive credits the account.
type eventRequest struct {
	Provider    string      `json:"provider"`
	ExternalID  string      `json:"external_id"`
	AccountID   uuid.UUID   `json:"account_id"`
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Type        ledger.Type `json:"type"`
	Description string      `json:"description"`
	Pending     bool        `json:"pending"`
	OccurredAt  *time.Time  `json:"occurred_at,omitempty"`
}

func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, _ := middleware.UserID(r.Context())

	ev := ledger.Event{
		Provider:    req.Provider,
		ExternalID:  req.ExternalID,
		UserID:      userID,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Type:        req.Type,
		Description: req.Description,
		Pending:     req.Pending,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}

	tx, applied, err := h.engine.ApplyEvent(r.Context(), ev)
	if err != nil {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, ledger.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ledger.ErrInsufficientBalance),
			errors.Is(err, ledger.ErrAccountInactive),
			errors.Is(err, ledger.ErrCurrencyMismatch),
			errors.Is(err, ledger.ErrInvalidType):
			status = http.StatusUnprocessableEntity
		}

		http.Error(w, err.Error(), status)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	// A duplicate resolves to the existing transaction: success, not error.
	if applied {
		w.WriteHeader(http.StatusCreated)
	}

	if err := json.NewEncoder(w).Encode(toTransactionResponse(tx)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	acct, err := h.engine.Account(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	resp := balanceResponse{
		AccountID:    acct.ID,
		Balance:      acct.Balance,
		Currency:     acct.Currency,
		LastSyncedAt: acct.LastSyncedAt,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	entries, err := h.engine.Entries(r.Context(), id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type entryResponse struct {
		ID            uuid.UUID `json:"id"`
		TransactionID uuid.UUID `json:"transaction_id"`
		Amount        int64     `json:"amount"`
		BalanceAfter  int64     `json:"balance_after"`
		Debit         bool      `json:"debit"`
		Description   string    `json:"description,omitempty"`
		Reference     string    `json:"reference,omitempty"`
		CreatedAt     time.Time `json:"created_at"`
	}

	resp := make([]entryResponse, len(entries))
	for i, e := range entries {
		resp[i] = entryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount,
			BalanceAfter:  e.BalanceAfter,
			Debit:         e.Debit,
			Description:   e.Description,
			Reference:     e.Reference,
			CreatedAt:     e.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type createAccountRequest struct {
	Name              string             `json:"name"`
	Type              ledger.AccountType `json:"type"`
	Currency          string             `json:"currency"`
	Provider          string             `json:"provider"`
	ProviderAccountID string             `json:"provider_account_id"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Currency == "" {
		http.Error(w, "name and currency are required", http.StatusBadRequest)
		return
	}

	userID, _ := middleware.UserID(r.Context())

	acct := &ledger.Account{
		UserID:            userID,
		Name:              req.Name,
		Type:              req.Type,
		Currency:          req.Currency,
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
	}

	if err := h.engine.CreateAccount(r.Context(), acct); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(toAccountResponse(acct)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	accts, err := h.engine.Accounts(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]accountResponse, len(accts))
	for i, acct := range accts {
		resp[i] = toAccountResponse(acct)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	acct, err := h.engine.Account(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(toAccountResponse(acct)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeactivateAccount(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
