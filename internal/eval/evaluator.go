// Package eval defines the page-scoring capability.
package eval

import (
	"context"

	"github.com/scanmark/backend/internal/domain"
)

// Request identifies one stored page artifact to score.
type Request struct {
	SessionID string
	Page      string
	ImagePath string
}

// Evaluator scores one stored page artifact. The call blocks until the
// result is ready; each HTTP upload runs on its own goroutine, so a
// slow evaluation only delays its own upload. Swapping in a real
// scorer happens here, without touching the ingestion pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (domain.Evaluation, error)
}
