package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewstream/pkg/models"
)

// route dispatches on the escaped path so URL-encoded project ids
// (group%2Fproj) keep their slashes.
func route(t *testing.T, handlers map[string]http.HandlerFunc) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.EscapedPath()
		if h, ok := handlers[key]; ok {
			h(w, r)
			return
		}
		t.Errorf("unexpected request: %s", key)
		http.NotFound(w, r)
	})
}

func testAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := New(Config{BaseURL: server.URL, Token: "glpat-test"})
	require.NoError(t, err)
	return adapter
}

func changesPayload() map[string]interface{} {
	return map[string]interface{}{
		"title":         "Fix parsing",
		"description":   "handles renames",
		"state":         "opened",
		"source_branch": "fix/parse",
		"target_branch": "main",
		"author":        map[string]interface{}{"username": "dev"},
		"labels":        []string{"bug"},
		"changes": []map[string]interface{}{
			{
				"old_path": "file.java",
				"new_path": "file.java",
				"diff":     "@@ -1,1 +10,3 @@\n a\n+b\n+c\n",
			},
		},
		"diff_refs": map[string]interface{}{
			"base_sha":  "base",
			"head_sha":  "head",
			"start_sha": "start",
		},
	}
}

func TestGetDiff_ReassemblesUnifiedDiff(t *testing.T) {
	handler := route(t, map[string]http.HandlerFunc{
		"GET /api/v4/projects/group%2Fproj/merge_requests/7/changes": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "glpat-test", r.Header.Get("PRIVATE-TOKEN"))
			json.NewEncoder(w).Encode(changesPayload())
		},
	})

	adapter := testAdapter(t, handler)
	repo, _ := models.NewGitLabRepository("group/proj")
	cr, _ := models.NewChangeRequestID(models.ProviderGitLab, 7)

	fetch, err := adapter.GetDiff(context.Background(), repo, cr)
	require.NoError(t, err)

	assert.Equal(t, "Fix parsing", fetch.Meta.Title)
	assert.Equal(t, "dev", fetch.Meta.Author)
	assert.Equal(t, "main", fetch.Meta.BaseBranch)
	assert.Equal(t, "head", fetch.Meta.HeadSHA)
	assert.Equal(t, "start", fetch.Meta.StartSHA)

	require.Len(t, fetch.Document.Modifications, 1)
	mod := fetch.Document.Modifications[0]
	assert.Equal(t, "file.java", mod.NewPath)
	require.Len(t, mod.Hunks, 1)
	assert.Equal(t, 10, mod.Hunks[0].NewStart)
}

func TestPublishReview_PositionedDiscussion(t *testing.T) {
	var discussions []map[string]interface{}
	var notes []map[string]interface{}

	handler := route(t, map[string]http.HandlerFunc{
		"GET /api/v4/projects/group%2Fproj/merge_requests/7/versions": func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 2, "head_commit_sha": "head", "base_commit_sha": "base", "start_commit_sha": "start"},
				{"id": 1, "head_commit_sha": "older", "base_commit_sha": "older", "start_commit_sha": "older"},
			})
		},
		"POST /api/v4/projects/group%2Fproj/merge_requests/7/discussions": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			discussions = append(discussions, body)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "d1"}`))
		},
		"POST /api/v4/projects/group%2Fproj/merge_requests/7/notes": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			notes = append(notes, body)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 1}`))
		},
	})

	adapter := testAdapter(t, handler)
	repo, _ := models.NewGitLabRepository("group/proj")
	cr, _ := models.NewChangeRequestID(models.ProviderGitLab, 7)

	doc, err := adapter.parser.Parse("diff --git a/file.java b/file.java\n--- a/file.java\n+++ b/file.java\n@@ -1,1 +10,3 @@\n a\n+b\n+c\n")
	require.NoError(t, err)

	result := models.ReviewResult{
		Issues: []models.Issue{
			{File: "file.java", StartLine: 11, Severity: "critical", Title: "anchored"},
			{File: "file.java", StartLine: 2, Severity: "minor", Title: "stray"},
		},
	}

	outcome, err := adapter.PublishReview(context.Background(), repo, cr, result, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.InlineComments)
	assert.Equal(t, 1, outcome.FallbackItems)

	require.Len(t, discussions, 1)
	position, ok := discussions[0]["position"].(map[string]interface{})
	require.True(t, ok, "inline discussion must carry a position")
	assert.Equal(t, "head", position["head_sha"])
	assert.Equal(t, "base", position["base_sha"])
	assert.Equal(t, "start", position["start_sha"])
	assert.Equal(t, float64(11), position["new_line"])
	assert.Equal(t, "file.java", position["new_path"])

	require.Len(t, notes, 1)
	assert.Contains(t, notes[0]["body"], "## Additional Review Findings")
}

func TestPublishSummaryComment(t *testing.T) {
	var gotBody string
	handler := route(t, map[string]http.HandlerFunc{
		"POST /api/v4/projects/42/merge_requests/3/notes": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			gotBody = body["body"]
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 1}`))
		},
	})

	adapter := testAdapter(t, handler)
	repo, _ := models.NewGitLabRepository("42")
	cr, _ := models.NewChangeRequestID(models.ProviderGitLab, 3)

	err := adapter.PublishSummaryComment(context.Background(), repo, cr, "## Code Review\n\nAll good.")
	require.NoError(t, err)
	assert.Contains(t, gotBody, "All good.")
}

func TestGetDiff_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"404 Not Found"}`, http.StatusNotFound)
	})

	adapter := testAdapter(t, handler)
	repo, _ := models.NewGitLabRepository("42")
	cr, _ := models.NewChangeRequestID(models.ProviderGitLab, 999)

	_, err := adapter.GetDiff(context.Background(), repo, cr)
	require.Error(t, err)

	var scmErr *models.ScmError
	require.True(t, errors.As(err, &scmErr))
	assert.Equal(t, models.ScmNotFound, scmErr.Kind)
}
