package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reviewstream/internal/accumulator"
	"github.com/reviewstream/internal/diff"
	"github.com/reviewstream/internal/engine"
	"github.com/reviewstream/internal/llm"
	"github.com/reviewstream/internal/scm"
	"github.com/reviewstream/internal/store"
	"github.com/reviewstream/pkg/models"
)

type stubAdapter struct {
	fetch     *scm.DiffFetch
	fetchErr  error
	published int
}

func (a *stubAdapter) GetDiff(context.Context, models.RepositoryID, models.ChangeRequestID) (*scm.DiffFetch, error) {
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.fetch, nil
}

func (a *stubAdapter) PublishReview(_ context.Context, _ models.RepositoryID, _ models.ChangeRequestID, result models.ReviewResult, doc *models.DiffDocument) (scm.PublishOutcome, error) {
	a.published++
	return scm.PublishOutcome{}, nil
}

func (a *stubAdapter) PublishSummaryComment(context.Context, models.RepositoryID, models.ChangeRequestID, string) error {
	return nil
}

func (a *stubAdapter) IsChangeRequestOpen(context.Context, models.RepositoryID, models.ChangeRequestID) (bool, error) {
	return true, nil
}

func (a *stubAdapter) GetRepository(context.Context, models.RepositoryID) (*scm.RepositoryInfo, error) {
	return nil, nil
}

func (a *stubAdapter) GetAllRepositories(context.Context) ([]scm.RepositoryInfo, error) {
	return nil, nil
}

func (a *stubAdapter) GetOpenChangeRequests(context.Context, models.RepositoryID) ([]scm.ChangeRequestSummary, error) {
	return nil, nil
}

func (a *stubAdapter) GetFileContent(context.Context, models.RepositoryID, string) (string, error) {
	return "", nil
}

func (a *stubAdapter) GetCommitsSince(context.Context, models.RepositoryID, string, time.Time, int) ([]scm.CommitInfo, error) {
	return nil, nil
}

type stubLLM struct {
	payload string
	fail    bool
}

func (s *stubLLM) Stream(ctx context.Context, _ string, fn llm.StreamFunc) error {
	if s.fail {
		return &models.LlmError{Kind: models.LlmTransport, Cause: errors.New("backend down")}
	}
	return fn(ctx, s.payload)
}

func (s *stubLLM) ProviderName() string { return "stub" }
func (s *stubLLM) ModelName() string    { return "stub-model" }

func testRequest() models.AsyncRequest {
	repo, _ := models.NewGitHubRepository("octocat", "hello")
	cr, _ := models.NewChangeRequestID(models.ProviderGitHub, 123)
	return models.AsyncRequest{
		RequestID:     "req-1",
		Provider:      models.ProviderGitHub,
		Repository:    repo,
		ChangeRequest: cr,
		Mode:          models.ModeDiff,
		SubmittedAt:   time.Now(),
	}
}

func testPipeline(t *testing.T, adapter scm.Client, client llm.StreamClient, status *store.StatusStore) *Pipeline {
	t.Helper()
	eng := engine.New(client, accumulator.DefaultConfig())
	issues := store.NewIssueIndex(time.Minute)
	return NewPipeline(eng, map[models.Provider]scm.Client{models.ProviderGitHub: adapter}, status, issues, nil, nil, PipelineConfig{
		JobTimeout: 30 * time.Second,
	})
}

func docFetch(t *testing.T) *scm.DiffFetch {
	t.Helper()
	doc, err := diff.NewParser().Parse("diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1,1 +1,2 @@\n x\n+y\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return &scm.DiffFetch{Document: doc, Meta: scm.ChangeRequestMeta{Title: "t"}}
}

func TestPipeline_CompletesAndStoresResult(t *testing.T) {
	status := store.NewStatusStore(time.Minute)
	status.SetPending("req-1")

	payload := `{"summary":"ok","issues":[{"file":"a.go","line":2,"severity":"warning","title":"w"}],"non_blocking_notes":[]}`
	p := testPipeline(t, &stubAdapter{fetch: docFetch(t)}, &stubLLM{payload: payload}, status)

	if err := p.Process(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := status.Get("req-1")
	if !ok || got.State != models.StateCompleted {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.Result == nil || len(got.Result.Issues) != 1 {
		t.Errorf("result missing: %+v", got.Result)
	}
	if got.ProcessingTimeMs < 0 {
		t.Errorf("processing time not recorded")
	}
}

func TestPipeline_FailureRecordsFailed(t *testing.T) {
	status := store.NewStatusStore(time.Minute)
	status.SetPending("req-1")

	p := testPipeline(t, &stubAdapter{fetchErr: errors.New("gone")}, &stubLLM{payload: "{}"}, status)

	if err := p.Process(context.Background(), testRequest()); err != nil {
		t.Fatalf("handled failures must not surface to the stream: %v", err)
	}

	got, _ := status.Get("req-1")
	if got.State != models.StateFailed {
		t.Fatalf("expected FAILED, got %s", got.State)
	}
	if got.Error == "" {
		t.Error("failure reason missing")
	}
}

func TestPipeline_LLMFailureDiscardsPartials(t *testing.T) {
	status := store.NewStatusStore(time.Minute)
	status.SetPending("req-1")

	p := testPipeline(t, &stubAdapter{fetch: docFetch(t)}, &stubLLM{fail: true}, status)
	p.Process(context.Background(), testRequest())

	got, _ := status.Get("req-1")
	if got.State != models.StateFailed {
		t.Fatalf("expected FAILED, got %s", got.State)
	}
	if got.Result != nil {
		t.Error("no partial result may be stored on transport failure")
	}
}

func TestPipeline_PublishOnFinish(t *testing.T) {
	status := store.NewStatusStore(time.Minute)
	status.SetPending("req-1")

	adapter := &stubAdapter{fetch: docFetch(t)}
	payload := `{"summary":"ok","issues":[],"non_blocking_notes":[]}`
	p := testPipeline(t, adapter, &stubLLM{payload: payload}, status)

	req := testRequest()
	req.PublishOnFinish = true
	p.Process(context.Background(), req)

	if adapter.published != 1 {
		t.Errorf("expected one publish call, got %d", adapter.published)
	}
}
