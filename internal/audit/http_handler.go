// Package audit exposes the validation decision log over HTTP.
package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/th-e-o/budgibot/internal/repository"
)

// Handler serves the recent decision history.
type Handler struct {
	repo repository.DecisionLogRepository
}

// NewHTTPHandler wraps the repository with a GET endpoint.
func NewHTTPHandler(repo repository.DecisionLogRepository) http.Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.repo.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(records)
}
