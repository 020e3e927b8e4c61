package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/scanmark/backend/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_upload_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_upload ON sessions(last_upload_at);

	CREATE TABLE IF NOT EXISTS evaluations (
		session_id TEXT NOT NULL,
		page TEXT NOT NULL,
		score REAL NOT NULL,
		total_marks INTEGER NOT NULL,
		correct_answers INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		details_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, page)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TouchSession records upload activity for a session. The first touch
// fixes the session's creation time; later touches only advance
// last_upload_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	query := `
	INSERT INTO sessions (session_id, created_at, last_upload_at)
	VALUES (?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		last_upload_at = excluded.last_upload_at`

	_, err := s.db.ExecContext(ctx, query, sessionID, at.Unix(), at.Unix())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// UpsertEvaluation stores the latest evaluation for a page, replacing
// any previous record under the same (session, page) key.
func (s *SQLiteStore) UpsertEvaluation(ctx context.Context, rec *domain.EvaluationRecord) error {
	details, err := json.Marshal(rec.Evaluation.DetailedResults)
	if err != nil {
		return fmt.Errorf("marshal detailed results: %w", err)
	}

	query := `
	INSERT INTO evaluations (
		session_id, page, score, total_marks, correct_answers,
		total_questions, details_json, status, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, page) DO UPDATE SET
		score = excluded.score,
		total_marks = excluded.total_marks,
		correct_answers = excluded.correct_answers,
		total_questions = excluded.total_questions,
		details_json = excluded.details_json,
		status = excluded.status,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.Page,
		rec.Evaluation.Score, rec.Evaluation.TotalMarks,
		rec.Evaluation.CorrectAnswers, rec.Evaluation.TotalQuestions,
		string(details), rec.Evaluation.Status,
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

// GetEvaluations returns every recorded evaluation for a session,
// ordered by page.
func (s *SQLiteStore) GetEvaluations(ctx context.Context, sessionID string) ([]*domain.EvaluationRecord, error) {
	query := `
		SELECT session_id, page, score, total_marks, correct_answers,
		       total_questions, details_json, status, created_at, updated_at
		FROM evaluations WHERE session_id = ? ORDER BY page`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close evaluation rows", "error", closeErr)
		}
	}()

	var recs []*domain.EvaluationRecord
	for rows.Next() {
		var rec domain.EvaluationRecord
		var details string
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&rec.SessionID, &rec.Page,
			&rec.Evaluation.Score, &rec.Evaluation.TotalMarks,
			&rec.Evaluation.CorrectAnswers, &rec.Evaluation.TotalQuestions,
			&details, &rec.Evaluation.Status,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}

		if err := json.Unmarshal([]byte(details), &rec.Evaluation.DetailedResults); err != nil {
			return nil, fmt.Errorf("unmarshal detailed results: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		rec.UpdatedAt = time.Unix(updatedAt, 0)
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}

	return recs, nil
}

// GetExpiredSessions returns sessions whose last upload is older than
// ttl.
func (s *SQLiteStore) GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionActivity, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT session_id, created_at, last_upload_at
		FROM sessions WHERE last_upload_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.SessionActivity
	for rows.Next() {
		var sess domain.SessionActivity
		var createdAt, lastUploadAt int64

		if err := rows.Scan(&sess.SessionID, &createdAt, &lastUploadAt); err != nil {
			return nil, fmt.Errorf("scan expired session row: %w", err)
		}

		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.LastUploadAt = time.Unix(lastUploadAt, 0)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a session's activity row and its evaluation
// records.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM evaluations WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete evaluations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
