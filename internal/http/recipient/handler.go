package recipient

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/http/middleware"
	"github.com/tallyhq/tally/internal/recipient"
)

type Handler struct {
	svc *recipient.Service
}

func NewHandler(svc *recipient.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.deactivate)
}

type createRequest struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
}

type recipientResponse struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	AccountNumber string     `json:"account_number"`
	BankCode      string     `json:"bank_code"`
	BankName      string     `json:"bank_name,omitempty"`
	Active        bool       `json:"active"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toResponse(r *recipient.Recipient) recipientResponse {
	return recipientResponse{
		ID:            r.ID,
		Name:          r.Name,
		AccountNumber: r.AccountNumber,
		BankCode:      r.BankCode,
		BankName:      r.BankName,
		Active:        r.Active,
		LastUsedAt:    r.LastUsedAt,
		CreatedAt:     r.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.AccountNumber == "" || req.BankCode == "" {
		http.Error(w, "name, account_number and bank_code are required", http.StatusBadRequest)
		return
	}

	userID, _ := middleware.UserID(r.Context())

	rcp, err := h.svc.Create(r.Context(), recipient.CreateParams{
		UserID:        userID,
		Name:          req.Name,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(toResponse(rcp)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	rcps, err := h.svc.List(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]recipientResponse, len(rcps))
	for i, rcp := range rcps {
		resp[i] = toResponse(rcp)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	rcp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recipient.ErrNotFound) {
			http.Error(w, "recipient not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(toResponse(rcp)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
