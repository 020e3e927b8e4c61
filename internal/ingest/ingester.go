// Package ingest implements the upload pipeline: validate, persist,
// broadcast, evaluate, broadcast.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scanmark/backend/internal/domain"
	"github.com/scanmark/backend/internal/eval"
	"github.com/scanmark/backend/internal/storage"
)

// Broadcaster emits the per-upload event sequence to the owning room.
type Broadcaster interface {
	PageUploaded(sessionID, page string, image []byte)
	PageEvaluated(sessionID, page string, eval domain.Evaluation)
}

// ArtifactStore persists uploaded artifacts.
type ArtifactStore interface {
	Write(sessionID, name string, data []byte) error
	Path(sessionID, name string) (string, error)
}

// Recorder persists session activity and completed evaluations for
// later retrieval. Recorder failures never fail an upload.
type Recorder interface {
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	UpsertEvaluation(ctx context.Context, rec *domain.EvaluationRecord) error
}

// Ingester validates and persists uploads, then drives the
// broadcast-and-evaluate sequence for page images. It depends on the
// Evaluator contract only, never on a concrete scorer.
type Ingester struct {
	artifacts ArtifactStore
	dispatch  Broadcaster
	evaluator eval.Evaluator
	records   Recorder
}

// New creates an Ingester with its collaborators.
func New(artifacts ArtifactStore, dispatch Broadcaster, evaluator eval.Evaluator, records Recorder) *Ingester {
	return &Ingester{
		artifacts: artifacts,
		dispatch:  dispatch,
		evaluator: evaluator,
		records:   records,
	}
}

// IngestDocuments stores the question/answer pair for a session,
// replacing any previous pair under the same id. Document uploads are
// not broadcast to the room.
func (i *Ingester) IngestDocuments(ctx context.Context, sessionID string, question, answer []byte) error {
	if sessionID == "" {
		return &domain.ValidationError{Field: "session_id"}
	}
	if len(question) == 0 {
		return &domain.ValidationError{Field: "question file"}
	}
	if len(answer) == 0 {
		return &domain.ValidationError{Field: "answer file"}
	}

	if err := i.artifacts.Write(sessionID, storage.QuestionArtifact, question); err != nil {
		return err
	}
	if err := i.artifacts.Write(sessionID, storage.AnswerArtifact, answer); err != nil {
		return err
	}
	i.touch(ctx, sessionID)

	slog.Info("Stored question paper and answer key", "session_id", sessionID)
	return nil
}

// IngestPage stores one captured page image, announces it to the
// session's room, scores it, and announces the score — in that order.
// Re-uploading a page number replaces the artifact and produces a new
// broadcast pair; nothing is deduplicated. The returned message
// confirms the page on success.
//
// A viewer that joins after this call completes receives nothing for
// it: broadcasts to an empty room are dropped, never buffered.
func (i *Ingester) IngestPage(ctx context.Context, sessionID, page string, image []byte) (string, error) {
	if sessionID == "" {
		return "", &domain.ValidationError{Field: "session_id"}
	}
	if page == "" {
		return "", &domain.ValidationError{Field: "page_number"}
	}
	if len(image) == 0 {
		return "", &domain.ValidationError{Field: "image file"}
	}

	name := storage.PageArtifact(page)
	if err := i.artifacts.Write(sessionID, name, image); err != nil {
		return "", err
	}
	i.touch(ctx, sessionID)

	i.dispatch.PageUploaded(sessionID, page, image)

	path, err := i.artifacts.Path(sessionID, name)
	if err != nil {
		return "", err
	}

	slog.Info("Processing page", "session_id", sessionID, "page", page)
	result, err := i.evaluator.Evaluate(ctx, eval.Request{
		SessionID: sessionID,
		Page:      page,
		ImagePath: path,
	})
	if err != nil {
		// new_upload is already out. The room keeps the image with no
		// score; evaluation_result is never emitted for this upload.
		slog.Error("Evaluation failed after upload broadcast", "session_id", sessionID, "page", page, "error", err)
		return "", &domain.EvaluationError{SessionID: sessionID, Page: page, Err: err}
	}

	i.dispatch.PageEvaluated(sessionID, page, result)

	now := time.Now()
	rec := &domain.EvaluationRecord{
		SessionID:  sessionID,
		Page:       page,
		Evaluation: result,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := i.records.UpsertEvaluation(ctx, rec); err != nil {
		slog.Warn("Failed to record evaluation", "session_id", sessionID, "page", page, "error", err)
	}

	slog.Info("Uploaded page", "session_id", sessionID, "page", page)
	return fmt.Sprintf("Page %s uploaded", page), nil
}

func (i *Ingester) touch(ctx context.Context, sessionID string) {
	if err := i.records.TouchSession(ctx, sessionID, time.Now()); err != nil {
		slog.Warn("Failed to record session activity", "session_id", sessionID, "error", err)
	}
}
