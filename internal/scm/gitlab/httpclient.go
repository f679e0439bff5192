package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpClient issues the GitLab API calls the generated client gets wrong:
// MR changes, versions, and positioned discussion comments all go through
// the plural endpoints directly.
type httpClient struct {
	baseURL string // {host}/api/v4
	token   string
	client  *http.Client
}

func newHTTPClient(host, token string) *httpClient {
	return &httpClient{
		baseURL: host + "/api/v4",
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("GitLab API error (status %d): %s", resp.StatusCode, truncate(string(data), 300))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// mrVersion carries the SHAs a positioned comment needs.
type mrVersion struct {
	ID             int    `json:"id"`
	HeadCommitSHA  string `json:"head_commit_sha"`
	BaseCommitSHA  string `json:"base_commit_sha"`
	StartCommitSHA string `json:"start_commit_sha"`
}

// getLatestMRVersion returns the newest diff version of the merge request.
func (c *httpClient) getLatestMRVersion(ctx context.Context, projectID string, mrIID int) (*mrVersion, error) {
	var versions []mrVersion
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/versions", url.PathEscape(projectID), mrIID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &versions); err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no versions found for merge request %d", mrIID)
	}
	// The newest version is first in the list.
	return &versions[0], nil
}

// createDiscussion creates a discussion thread, optionally positioned on a
// diff line.
func (c *httpClient) createDiscussion(ctx context.Context, projectID string, mrIID int, body string, position map[string]interface{}) error {
	payload := map[string]interface{}{"body": body}
	if position != nil {
		payload["position"] = position
	}
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/discussions", url.PathEscape(projectID), mrIID)
	_, err := c.do(ctx, http.MethodPost, path, payload, nil)
	return err
}

// createLineComment anchors a comment to a post-image line using the
// version SHAs required by the discussions endpoint.
func (c *httpClient) createLineComment(ctx context.Context, projectID string, mrIID int, filePath string, line int, body string) error {
	version, err := c.getLatestMRVersion(ctx, projectID, mrIID)
	if err != nil {
		return fmt.Errorf("failed to get MR version: %w", err)
	}

	position := map[string]interface{}{
		"position_type": "text",
		"base_sha":      version.BaseCommitSHA,
		"head_sha":      version.HeadCommitSHA,
		"start_sha":     version.StartCommitSHA,
		"new_path":      filePath,
		"old_path":      filePath,
		"new_line":      line,
	}
	if err := c.createDiscussion(ctx, projectID, mrIID, body, position); err != nil {
		return fmt.Errorf("failed to create line comment: %w", err)
	}
	return nil
}

// createGeneralComment posts an unpositioned note on the merge request.
func (c *httpClient) createGeneralComment(ctx context.Context, projectID string, mrIID int, body string) error {
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/notes", url.PathEscape(projectID), mrIID)
	_, err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, nil)
	return err
}

// mrChanges is the subset of the changes payload the adapter consumes.
type mrChanges struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	State        string `json:"state"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	Author       struct {
		Username string `json:"username"`
	} `json:"author"`
	Labels  []string `json:"labels"`
	Changes []struct {
		OldPath     string `json:"old_path"`
		NewPath     string `json:"new_path"`
		Diff        string `json:"diff"`
		NewFile     bool   `json:"new_file"`
		RenamedFile bool   `json:"renamed_file"`
		DeletedFile bool   `json:"deleted_file"`
	} `json:"changes"`
	DiffRefs struct {
		BaseSHA  string `json:"base_sha"`
		HeadSHA  string `json:"head_sha"`
		StartSHA string `json:"start_sha"`
	} `json:"diff_refs"`
}

// getMRChanges fetches the merge request with its per-file diffs.
func (c *httpClient) getMRChanges(ctx context.Context, projectID string, mrIID int) (*mrChanges, error) {
	var changes mrChanges
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/changes", url.PathEscape(projectID), mrIID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &changes); err != nil {
		return nil, err
	}
	return &changes, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
