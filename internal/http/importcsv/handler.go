package importcsv

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/importer"
	"github.com/tallyhq/tally/internal/ingest"
	"github.com/tallyhq/tally/internal/normalize"
)

const maxUploadSize = 10 << 20

type Handler struct {
	// parsers maps the provider tag in the URL to its statement profile.
	parsers map[string]*importer.Parser
	ingest  *ingest.Service
}

func NewHandler(parsers map[string]*importer.Parser, ingest *ingest.Service) *Handler {
	return &Handler{parsers: parsers, ingest: ingest}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/{provider}", h.upload)
}

type importResponse struct {
	Imported   int         `json:"imported"`
	Duplicates int         `json:"duplicates"`
	Applied    []uuid.UUID `json:"applied,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
}

// upload parses a statement CSV and feeds each row through the idempotent
// ingest path. Re-uploading an overlapping statement only applies the rows
// the ledger has not seen.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	parser, ok := h.parsers[provider]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "parsing upload", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("statement")
	if err != nil {
		http.Error(w, "missing statement file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	records, err := parser.Parse(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accountRef := r.FormValue("account")

	var resp importResponse

	for _, rec := range records {
		if rec.AccountID == "" {
			rec.AccountID = accountRef
		}

		tx, applied, err := h.ingest.IngestBank(r.Context(), provider, rec)
		if err != nil {
			if errors.Is(err, normalize.ErrUnresolvedAccount) || errors.Is(err, normalize.ErrMalformedPayload) {
				resp.Errors = append(resp.Errors, rec.TransactionID+": "+err.Error())
				continue
			}

			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}

		// Rows the ledger already holds resolve to their existing
		// transaction without new entries.
		if !applied {
			resp.Duplicates++
			continue
		}

		resp.Imported++
		resp.Applied = append(resp.Applied, tx.ID)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
