package queue

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/queue"
)

type Handler struct {
	store queue.Store
}

func NewHandler(store queue.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/dead-letters", h.deadLetters)
}

type deadLetterResponse struct {
	ID        int64      `json:"id"`
	Provider  string     `json:"provider"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// deadLetters surfaces deliveries that exhausted their retries, for operator
// follow-up. They are never dropped silently.
func (h *Handler) deadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	ds, err := h.store.ListDead(r.Context(), limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]deadLetterResponse, len(ds))
	for i, d := range ds {
		resp[i] = deadLetterResponse{
			ID:        d.ID,
			Provider:  d.Provider,
			Attempts:  d.Attempts,
			LastError: d.LastError,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
