package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scanmark/backend/internal/domain"
	"github.com/scanmark/backend/internal/eval"
	"github.com/scanmark/backend/internal/storage"
)

type fakeArtifacts struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	writes  []string
	failOn  string
	findErr error
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{blobs: make(map[string][]byte)}
}

func (f *fakeArtifacts) key(sessionID, name string) string {
	return sessionID + "/" + name
}

func (f *fakeArtifacts) Write(sessionID, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == name {
		return &domain.StorageError{SessionID: sessionID, Artifact: name, Err: errors.New("disk full")}
	}
	f.blobs[f.key(sessionID, name)] = append([]byte(nil), data...)
	f.writes = append(f.writes, f.key(sessionID, name))
	return nil
}

func (f *fakeArtifacts) Path(sessionID, name string) (string, error) {
	if f.findErr != nil {
		return "", f.findErr
	}
	return filepath.Join("/tmp", sessionID, name), nil
}

func (f *fakeArtifacts) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeArtifacts) stored(sessionID, name string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[f.key(sessionID, name)]
}

type dispatchCall struct {
	kind      string
	sessionID string
	page      string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeDispatcher) PageUploaded(sessionID, page string, _ []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{kind: "new_upload", sessionID: sessionID, page: page})
}

func (f *fakeDispatcher) PageEvaluated(sessionID, page string, _ domain.Evaluation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{kind: "evaluation_result", sessionID: sessionID, page: page})
}

func (f *fakeDispatcher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, len(f.calls))
	for i, c := range f.calls {
		kinds[i] = c.kind
	}
	return kinds
}

type fakeEvaluator struct {
	mu     sync.Mutex
	calls  int
	err    error
	result domain.Evaluation
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ eval.Request) (domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Evaluation{}, f.err
	}
	return f.result, nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu      sync.Mutex
	touches []string
	records []*domain.EvaluationRecord
	err     error
}

func (f *fakeRecorder) TouchSession(_ context.Context, sessionID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches = append(f.touches, sessionID)
	return f.err
}

func (f *fakeRecorder) UpsertEvaluation(_ context.Context, rec *domain.EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newTestIngester() (*Ingester, *fakeArtifacts, *fakeDispatcher, *fakeEvaluator, *fakeRecorder) {
	artifacts := newFakeArtifacts()
	dispatcher := &fakeDispatcher{}
	evaluator := &fakeEvaluator{result: domain.Evaluation{Score: 85.5, Status: "completed"}}
	recorder := &fakeRecorder{}
	return New(artifacts, dispatcher, evaluator, recorder), artifacts, dispatcher, evaluator, recorder
}

func TestIngestPage_EmitsOrderedEventPair(t *testing.T) {
	ing, artifacts, dispatcher, evaluator, recorder := newTestIngester()

	message, err := ing.IngestPage(context.Background(), "S1", "1", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if message != "Page 1 uploaded" {
		t.Errorf("expected confirmation %q, got %q", "Page 1 uploaded", message)
	}

	kinds := dispatcher.kinds()
	if len(kinds) != 2 || kinds[0] != "new_upload" || kinds[1] != "evaluation_result" {
		t.Errorf("expected [new_upload evaluation_result], got %v", kinds)
	}
	if got := artifacts.stored("S1", storage.PageArtifact("1")); string(got) != "img" {
		t.Errorf("expected stored image, got %q", got)
	}
	if evaluator.callCount() != 1 {
		t.Errorf("expected 1 evaluation, got %d", evaluator.callCount())
	}
	if recorder.recordCount() != 1 {
		t.Errorf("expected 1 recorded evaluation, got %d", recorder.recordCount())
	}
}

func TestIngestPage_ValidationFailuresHaveNoSideEffects(t *testing.T) {
	cases := []struct {
		name      string
		sessionID string
		page      string
		image     []byte
	}{
		{"missing session_id", "", "1", []byte("img")},
		{"missing page_number", "S1", "", []byte("img")},
		{"empty image", "S1", "1", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing, artifacts, dispatcher, evaluator, _ := newTestIngester()

			_, err := ing.IngestPage(context.Background(), tc.sessionID, tc.page, tc.image)

			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if artifacts.writeCount() != 0 {
				t.Error("expected no storage writes")
			}
			if len(dispatcher.kinds()) != 0 {
				t.Error("expected no broadcasts")
			}
			if evaluator.callCount() != 0 {
				t.Error("expected no evaluation")
			}
		})
	}
}

func TestIngestPage_StorageFailureAbortsBeforeBroadcast(t *testing.T) {
	ing, artifacts, dispatcher, evaluator, _ := newTestIngester()
	artifacts.failOn = storage.PageArtifact("1")

	_, err := ing.IngestPage(context.Background(), "S1", "1", []byte("img"))

	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if len(dispatcher.kinds()) != 0 {
		t.Error("expected no broadcasts after storage failure")
	}
	if evaluator.callCount() != 0 {
		t.Error("expected no evaluation after storage failure")
	}
}

func TestIngestPage_EvaluationFailureSuppressesSecondEvent(t *testing.T) {
	ing, _, dispatcher, evaluator, recorder := newTestIngester()
	evaluator.err = errors.New("scorer crashed")

	_, err := ing.IngestPage(context.Background(), "S1", "1", []byte("img"))

	var evalErr *domain.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}

	kinds := dispatcher.kinds()
	if len(kinds) != 1 || kinds[0] != "new_upload" {
		t.Errorf("expected only new_upload, got %v", kinds)
	}
	if recorder.recordCount() != 0 {
		t.Error("expected no recorded evaluation")
	}
}

func TestIngestPage_ReuploadProducesNewEventPair(t *testing.T) {
	ing, artifacts, dispatcher, evaluator, _ := newTestIngester()

	for _, img := range []string{"first", "second"} {
		if _, err := ing.IngestPage(context.Background(), "S1", "3", []byte(img)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	kinds := dispatcher.kinds()
	want := []string{"new_upload", "evaluation_result", "new_upload", "evaluation_result"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
	if evaluator.callCount() != 2 {
		t.Errorf("expected 2 independent evaluations, got %d", evaluator.callCount())
	}
	if got := artifacts.stored("S1", storage.PageArtifact("3")); string(got) != "second" {
		t.Errorf("expected second upload to win, got %q", got)
	}
}

func TestIngestDocuments_StoresPairWithoutBroadcast(t *testing.T) {
	ing, artifacts, dispatcher, _, recorder := newTestIngester()

	err := ing.IngestDocuments(context.Background(), "S1", []byte("qp"), []byte("key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := artifacts.stored("S1", storage.QuestionArtifact); string(got) != "qp" {
		t.Errorf("expected question bytes, got %q", got)
	}
	if got := artifacts.stored("S1", storage.AnswerArtifact); string(got) != "key" {
		t.Errorf("expected answer bytes, got %q", got)
	}
	if len(dispatcher.kinds()) != 0 {
		t.Error("document uploads must not broadcast")
	}

	recorder.mu.Lock()
	touches := len(recorder.touches)
	recorder.mu.Unlock()
	if touches != 1 {
		t.Errorf("expected 1 session touch, got %d", touches)
	}
}

func TestIngestDocuments_ReplacesPreviousPair(t *testing.T) {
	ing, artifacts, _, _, _ := newTestIngester()

	if err := ing.IngestDocuments(context.Background(), "S1", []byte("q1"), []byte("a1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ing.IngestDocuments(context.Background(), "S1", []byte("q2"), []byte("a2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := artifacts.stored("S1", storage.QuestionArtifact); string(got) != "q2" {
		t.Errorf("expected second question upload, got %q", got)
	}
	if got := artifacts.stored("S1", storage.AnswerArtifact); string(got) != "a2" {
		t.Errorf("expected second answer upload, got %q", got)
	}
}

func TestIngestDocuments_ValidatesRequiredFields(t *testing.T) {
	cases := []struct {
		name      string
		sessionID string
		question  []byte
		answer    []byte
	}{
		{"missing session_id", "", []byte("q"), []byte("a")},
		{"missing question", "S1", nil, []byte("a")},
		{"missing answer", "S1", []byte("q"), nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing, artifacts, _, _, _ := newTestIngester()

			err := ing.IngestDocuments(context.Background(), tc.sessionID, tc.question, tc.answer)

			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if artifacts.writeCount() != 0 {
				t.Error("expected no storage writes")
			}
		})
	}
}

func TestIngestPage_RecorderFailureDoesNotFailUpload(t *testing.T) {
	artifacts := newFakeArtifacts()
	dispatcher := &fakeDispatcher{}
	evaluator := &fakeEvaluator{result: domain.Evaluation{Status: "completed"}}
	recorder := &fakeRecorder{err: errors.New("database is locked")}
	ing := New(artifacts, dispatcher, evaluator, recorder)

	message, err := ing.IngestPage(context.Background(), "S1", "1", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if message != "Page 1 uploaded" {
		t.Errorf("expected confirmation, got %q", message)
	}

	kinds := dispatcher.kinds()
	if len(kinds) != 2 {
		t.Errorf("expected both events despite recorder failure, got %v", kinds)
	}
}
