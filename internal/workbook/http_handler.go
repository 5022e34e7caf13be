package workbook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/th-e-o/budgibot/internal/domain"
)

// Broadcaster pushes workbook snapshots to connected peers after a bulk
// load.
type Broadcaster interface {
	BroadcastWorkbook(sheets []domain.SheetSnapshot)
}

// Handler exposes workbook upload and export over HTTP.
type Handler struct {
	service     *Service
	broadcaster Broadcaster
}

// NewHTTPHandler wraps the service with upload (POST) and export (GET)
// endpoints.
func NewHTTPHandler(service *Service, broadcaster Broadcaster) http.Handler {
	return &Handler{service: service, broadcaster: broadcaster}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		h.handleUpload(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/export"):
		h.handleExport(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		http.Error(w, "only .xlsx files are supported", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.Load(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sheets := h.service.Snapshots()
	if h.broadcaster != nil {
		h.broadcaster.BroadcastWorkbook(sheets)
	}

	names := make([]string, len(sheets))
	for i, s := range sheets {
		names[i] = s.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fileName": header.Filename,
		"sheets":   names,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if !h.service.HasWorkbook() {
		http.Error(w, "no workbook loaded", http.StatusNotFound)
		return
	}

	data, err := h.service.Export()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="workbook.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
