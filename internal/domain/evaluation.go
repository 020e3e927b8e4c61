package domain

import (
	"time"
)

// QuestionResult is the per-question breakdown of an evaluation.
type QuestionResult struct {
	Question int  `json:"question"`
	Correct  bool `json:"correct"`
	Marks    int  `json:"marks"`
}

// Evaluation is the structured result of scoring one page artifact.
// It is produced once per upload and never mutated afterwards.
type Evaluation struct {
	Score           float64          `json:"score"`
	TotalMarks      int              `json:"total_marks"`
	CorrectAnswers  int              `json:"correct_answers"`
	TotalQuestions  int              `json:"total_questions"`
	DetailedResults []QuestionResult `json:"detailed_results"`
	Status          string           `json:"status"`
}

// EvaluationRecord is a stored evaluation keyed by session and page.
// Re-uploading a page replaces the record, same as the artifact.
type EvaluationRecord struct {
	SessionID  string
	Page       string
	Evaluation Evaluation
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SessionActivity tracks when a session first and last received an
// upload. The TTL sweeper uses it to find abandoned sessions.
type SessionActivity struct {
	SessionID    string
	CreatedAt    time.Time
	LastUploadAt time.Time
}
