// Package api provides HTTP handlers for the exam-capture API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scanmark/backend/internal/ingest"
	"github.com/scanmark/backend/internal/store"
)

// Handler holds the upload endpoints' dependencies.
type Handler struct {
	ingester *ingest.Ingester
	records  store.Repository
}

// NewHandler creates a new Handler.
func NewHandler(ingester *ingest.Ingester, records store.Repository) *Handler {
	return &Handler{
		ingester: ingester,
		records:  records,
	}
}

// RegisterRoutes registers the upload and results endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload_docs", h.UploadDocs)
	r.Post("/upload_answer", h.UploadAnswer)
	r.Get("/sessions/{sessionID}/results", h.SessionResults)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status": "error", "message": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes the error-body convention shared by both upload
// endpoints.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"status": "error", "message": message})
}
