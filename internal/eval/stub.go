package eval

import (
	"context"
	"log/slog"
	"time"

	"github.com/scanmark/backend/internal/domain"
)

// DefaultStubDelay matches the simulated processing time of the
// placeholder scorer.
const DefaultStubDelay = 500 * time.Millisecond

// Stub is a placeholder evaluator. It ignores the artifact's content,
// sleeps a fixed simulated-processing duration, and returns a constant
// deterministic result.
type Stub struct {
	Delay time.Duration
}

// NewStub returns a stub evaluator with the default processing delay.
func NewStub() *Stub {
	return &Stub{Delay: DefaultStubDelay}
}

// Evaluate returns the fixed placeholder result after the configured
// delay. It never fails.
func (s *Stub) Evaluate(_ context.Context, req Request) (domain.Evaluation, error) {
	time.Sleep(s.Delay)

	result := domain.Evaluation{
		Score:          85.5,
		TotalMarks:     100,
		CorrectAnswers: 17,
		TotalQuestions: 20,
		DetailedResults: []domain.QuestionResult{
			{Question: 1, Correct: true, Marks: 5},
			{Question: 2, Correct: true, Marks: 5},
			{Question: 3, Correct: false, Marks: 0},
			{Question: 4, Correct: true, Marks: 5},
			{Question: 5, Correct: true, Marks: 5},
		},
		Status: "completed",
	}

	slog.Info("Evaluated page", "session_id", req.SessionID, "page", req.Page, "score", result.Score, "total_marks", result.TotalMarks)
	return result, nil
}
