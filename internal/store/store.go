// Package store provides persistence for session activity and
// evaluation records.
package store

import (
	"context"
	"time"

	"github.com/scanmark/backend/internal/domain"
)

// Repository defines the interface for persisting session activity and
// evaluation records.
type Repository interface {
	// TouchSession records upload activity for a session, creating the
	// session row on first touch.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// UpsertEvaluation stores the latest evaluation for a page,
	// replacing any previous record under the same (session, page) key.
	UpsertEvaluation(ctx context.Context, rec *domain.EvaluationRecord) error

	// GetEvaluations returns every recorded evaluation for a session,
	// ordered by page.
	GetEvaluations(ctx context.Context, sessionID string) ([]*domain.EvaluationRecord, error)

	// GetExpiredSessions returns sessions whose last upload is older
	// than ttl.
	GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionActivity, error)

	// DeleteSession removes a session's activity row and its
	// evaluation records.
	DeleteSession(ctx context.Context, sessionID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
