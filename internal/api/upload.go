package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/scanmark/backend/internal/domain"
)

// maxUploadBytes caps the in-memory portion of a multipart parse;
// larger parts spill to disk.
const maxUploadBytes = 32 << 20

// UploadDocs stores the question paper and answer key for a session.
// A second upload under the same session id replaces both documents.
func (h *Handler) UploadDocs(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		slog.Warn("Malformed docs upload", "error", err)
		Error(w, http.StatusBadRequest, "malformed multipart form")
		return
	}

	sessionID := r.FormValue("session_id")
	question, err := formFileBytes(r, "question")
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable question file")
		return
	}
	answer, err := formFileBytes(r, "answer")
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable answer file")
		return
	}

	// The pipeline is not cancelled if the uploader disconnects.
	if err := h.ingester.IngestDocuments(context.WithoutCancel(r.Context()), sessionID, question, answer); err != nil {
		writeIngestError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"session_id": sessionID,
	})
}

// UploadAnswer stores one captured answer-sheet page and triggers the
// broadcast-and-evaluate sequence for the session's room.
func (h *Handler) UploadAnswer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		slog.Warn("Malformed answer upload", "error", err)
		Error(w, http.StatusBadRequest, "malformed multipart form")
		return
	}

	sessionID := r.FormValue("session_id")
	page := r.FormValue("page_number")
	image, err := formFileBytes(r, "image")
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable image file")
		return
	}

	message, err := h.ingester.IngestPage(context.WithoutCancel(r.Context()), sessionID, page, image)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// SessionResults returns every recorded evaluation for a session.
func (h *Handler) SessionResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	recs, err := h.records.GetEvaluations(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session results", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load results")
		return
	}

	results := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		results = append(results, map[string]any{
			"page":       rec.Page,
			"evaluation": rec.Evaluation,
			"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"session_id": sessionID,
		"results":    results,
	})
}

// formFileBytes reads one multipart file field in full. A missing part
// or an empty filename comes back as nil bytes; the ingester decides
// whether that is a validation failure.
func formFileBytes(r *http.Request, field string) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	if header.Filename == "" {
		return nil, nil
	}
	return io.ReadAll(file)
}

// writeIngestError maps the pipeline's error taxonomy onto the HTTP
// signal convention: 400 for validation, 500 for storage, 502 for a
// failed evaluation (the image broadcast has already happened).
func writeIngestError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var storageErr *domain.StorageError
	var evalErr *domain.EvaluationError

	switch {
	case errors.As(err, &validationErr):
		Error(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &storageErr):
		slog.Error("Upload storage failure", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store upload")
	case errors.As(err, &evalErr):
		Error(w, http.StatusBadGateway, "evaluation failed")
	default:
		slog.Error("Upload failure", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
