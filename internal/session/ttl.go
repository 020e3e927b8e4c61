// Package session provides lifecycle management for abandoned
// sessions. Sessions are never destroyed by clients; without a
// sweeper, rooms, artifacts, and evaluation rows grow without bound.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/scanmark/backend/internal/store"
)

const sweepInterval = 5 * time.Minute

// RoomCloser disconnects every viewer in a session's room.
type RoomCloser interface {
	CloseRoom(sessionID, reason string)
}

// ArtifactRemover deletes a session's stored artifacts.
type ArtifactRemover interface {
	RemoveSession(sessionID string) error
}

// StartTTLSweeper runs a background goroutine that periodically removes
// sessions with no upload activity within ttl: stored artifacts,
// evaluation records, and the live room. A ttl of zero or less
// disables sweeping.
func StartTTLSweeper(ctx context.Context, repo store.Repository, artifacts ArtifactRemover, rooms RoomCloser, ttl time.Duration) {
	if ttl <= 0 {
		slog.Info("Session TTL sweeper disabled")
		return
	}

	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session TTL sweeper started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, artifacts, rooms, ttl)
			case <-ctx.Done():
				slog.Info("Session TTL sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo store.Repository, artifacts ArtifactRemover, rooms RoomCloser, ttl time.Duration) {
	expired, err := repo.GetExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL sweeper failed to get expired sessions", "error", err)
		return
	}

	if len(expired) == 0 {
		return
	}

	slog.Info("TTL sweeper found expired sessions", "count", len(expired))

	for _, sess := range expired {
		slog.Info("TTL sweeper removing session",
			"session_id", sess.SessionID,
			"last_upload_at", sess.LastUploadAt)

		rooms.CloseRoom(sess.SessionID, "session expired")

		if err := artifacts.RemoveSession(sess.SessionID); err != nil {
			slog.Error("TTL sweeper failed to remove artifacts",
				"error", err,
				"session_id", sess.SessionID)
		}

		if err := repo.DeleteSession(ctx, sess.SessionID); err != nil {
			slog.Warn("TTL sweeper failed to delete session records",
				"error", err,
				"session_id", sess.SessionID)
		}
	}

	slog.Info("TTL sweeper cleanup completed", "cleaned", len(expired))
}
