// Package gitlab implements the SCM adapter contract for GitLab merge
// requests. Repository and commit metadata go through the official client;
// diff changes and positioned discussion comments use a direct HTTP client
// because the generated client targets the wrong endpoints for those.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/reviewstream/internal/diff"
	"github.com/reviewstream/internal/scm"
	"github.com/reviewstream/pkg/models"
)

// Config parameterises the adapter.
type Config struct {
	BaseURL string `koanf:"base_url"` // e.g. https://gitlab.com
	Token   string `koanf:"token"`
}

// Adapter talks to one GitLab instance. Safe for concurrent use.
type Adapter struct {
	client  *gitlab.Client
	http    *httpClient
	parser  *diff.Parser
	limiter *rate.Limiter
}

// New builds a GitLab adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://gitlab.com"
	}

	client, err := gitlab.NewClient(cfg.Token, gitlab.WithBaseURL(base+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}

	return &Adapter{
		client:  client,
		http:    newHTTPClient(base, cfg.Token),
		parser:  diff.NewParser(),
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

func (a *Adapter) wait(ctx context.Context, op string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return models.NewScmError(models.ScmTransport, models.ProviderGitLab, op, err)
	}
	return nil
}

// GetDiff fetches the MR changes payload and reassembles it into one
// unified diff document.
func (a *Adapter) GetDiff(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID) (*scm.DiffFetch, error) {
	const op = "getDiff"
	if err := a.wait(ctx, op); err != nil {
		return nil, err
	}

	changes, err := a.http.getMRChanges(ctx, repo.ProjectID, cr.Number)
	if err != nil {
		return nil, mapHTTPError(op, err)
	}

	var raw strings.Builder
	for _, change := range changes.Changes {
		fmt.Fprintf(&raw, "diff --git a/%s b/%s\n", change.OldPath, change.NewPath)
		if change.RenamedFile {
			fmt.Fprintf(&raw, "rename from %s\nrename to %s\n", change.OldPath, change.NewPath)
		}
		fmt.Fprintf(&raw, "--- a/%s\n", change.OldPath)
		if change.DeletedFile {
			raw.WriteString("+++ /dev/null\n")
		} else {
			fmt.Fprintf(&raw, "+++ b/%s\n", change.NewPath)
		}
		raw.WriteString(change.Diff)
		if !strings.HasSuffix(change.Diff, "\n") {
			raw.WriteString("\n")
		}
	}

	doc, err := a.parser.Parse(raw.String())
	if err != nil {
		return nil, models.NewScmError(models.ScmMalformed, models.ProviderGitLab, op, err)
	}

	meta := scm.ChangeRequestMeta{
		Title:       changes.Title,
		Description: changes.Description,
		Author:      changes.Author.Username,
		BaseBranch:  changes.TargetBranch,
		HeadBranch:  changes.SourceBranch,
		Labels:      changes.Labels,
		BaseSHA:     changes.DiffRefs.BaseSHA,
		HeadSHA:     changes.DiffRefs.HeadSHA,
		StartSHA:    changes.DiffRefs.StartSHA,
	}

	return &scm.DiffFetch{Document: doc, RawDiff: raw.String(), Meta: meta}, nil
}

// PublishReview posts valid findings as positioned discussions and the rest
// as one fallback note.
func (a *Adapter) PublishReview(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID, result models.ReviewResult, doc *models.DiffDocument) (scm.PublishOutcome, error) {
	const op = "publishReview"

	return scm.RunPublish(models.ProviderGitLab, doc, result,
		func(file string, line int, body string) error {
			if err := a.wait(ctx, op); err != nil {
				return err
			}
			file = strings.TrimPrefix(file, "/")
			if err := a.http.createLineComment(ctx, repo.ProjectID, cr.Number, file, line, body); err != nil {
				return mapHTTPError(op, err)
			}
			return nil
		},
		func(body string) error {
			return a.PublishSummaryComment(ctx, repo, cr, body)
		},
	)
}

// PublishSummaryComment posts one top-level note on the merge request.
func (a *Adapter) PublishSummaryComment(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID, body string) error {
	const op = "publishSummaryComment"
	if err := a.wait(ctx, op); err != nil {
		return err
	}
	if err := a.http.createGeneralComment(ctx, repo.ProjectID, cr.Number, body); err != nil {
		return mapHTTPError(op, err)
	}
	return nil
}

// IsChangeRequestOpen reports whether the MR is in the opened state.
func (a *Adapter) IsChangeRequestOpen(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID) (bool, error) {
	const op = "isChangeRequestOpen"
	if err := a.wait(ctx, op); err != nil {
		return false, err
	}
	mr, resp, err := a.client.MergeRequests.GetMergeRequest(repo.ProjectID, cr.Number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return false, mapResponseError(op, resp, err)
	}
	return mr.State == "opened", nil
}

// GetRepository fetches plain project metadata.
func (a *Adapter) GetRepository(ctx context.Context, repo models.RepositoryID) (*scm.RepositoryInfo, error) {
	const op = "getRepository"
	if err := a.wait(ctx, op); err != nil {
		return nil, err
	}
	project, resp, err := a.client.Projects.GetProject(repo.ProjectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, mapResponseError(op, resp, err)
	}
	return &scm.RepositoryInfo{
		Name:          project.PathWithNamespace,
		Description:   project.Description,
		DefaultBranch: project.DefaultBranch,
		WebURL:        project.WebURL,
	}, nil
}

// GetAllRepositories lists projects the token is a member of.
func (a *Adapter) GetAllRepositories(ctx context.Context) ([]scm.RepositoryInfo, error) {
	const op = "getAllRepositories"
	var out []scm.RepositoryInfo
	opts := &gitlab.ListProjectsOptions{
		Membership:  gitlab.Ptr(true),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	for {
		if err := a.wait(ctx, op); err != nil {
			return nil, err
		}
		projects, resp, err := a.client.Projects.ListProjects(opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, mapResponseError(op, resp, err)
		}
		for _, project := range projects {
			out = append(out, scm.RepositoryInfo{
				Name:          project.PathWithNamespace,
				Description:   project.Description,
				DefaultBranch: project.DefaultBranch,
				WebURL:        project.WebURL,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetOpenChangeRequests lists opened MRs on the project.
func (a *Adapter) GetOpenChangeRequests(ctx context.Context, repo models.RepositoryID) ([]scm.ChangeRequestSummary, error) {
	const op = "getOpenChangeRequests"
	if err := a.wait(ctx, op); err != nil {
		return nil, err
	}
	opts := &gitlab.ListProjectMergeRequestsOptions{
		State:       gitlab.Ptr("opened"),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	mrs, resp, err := a.client.MergeRequests.ListProjectMergeRequests(repo.ProjectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, mapResponseError(op, resp, err)
	}
	var out []scm.ChangeRequestSummary
	for _, mr := range mrs {
		summary := scm.ChangeRequestSummary{
			Number: mr.IID,
			Title:  mr.Title,
			State:  mr.State,
			WebURL: mr.WebURL,
		}
		if mr.Author != nil {
			summary.Author = mr.Author.Username
		}
		out = append(out, summary)
	}
	return out, nil
}

// GetFileContent reads a file from the project's default branch.
func (a *Adapter) GetFileContent(ctx context.Context, repo models.RepositoryID, path string) (string, error) {
	const op = "getFileContent"
	if err := a.wait(ctx, op); err != nil {
		return "", err
	}

	project, resp, err := a.client.Projects.GetProject(repo.ProjectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", mapResponseError(op, resp, err)
	}

	raw, resp, err := a.client.RepositoryFiles.GetRawFile(repo.ProjectID, path, &gitlab.GetRawFileOptions{
		Ref: gitlab.Ptr(project.DefaultBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", mapResponseError(op, resp, err)
	}
	return string(raw), nil
}

// GetCommitsSince lists commits newest first, optionally path-restricted.
func (a *Adapter) GetCommitsSince(ctx context.Context, repo models.RepositoryID, path string, since time.Time, max int) ([]scm.CommitInfo, error) {
	const op = "getCommitsSince"
	if err := a.wait(ctx, op); err != nil {
		return nil, err
	}

	perPage := max
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	opts := &gitlab.ListCommitsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage},
	}
	if path != "" {
		opts.Path = gitlab.Ptr(path)
	}
	if !since.IsZero() {
		opts.Since = gitlab.Ptr(since)
	}

	commits, resp, err := a.client.Commits.ListCommits(repo.ProjectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, mapResponseError(op, resp, err)
	}

	var out []scm.CommitInfo
	for _, commit := range commits {
		if max > 0 && len(out) >= max {
			break
		}
		info := scm.CommitInfo{
			SHA:    commit.ID,
			Title:  commit.Title,
			Author: commit.AuthorName,
		}
		if commit.AuthoredDate != nil {
			info.AuthoredAt = *commit.AuthoredDate
		}
		out = append(out, info)
	}
	return out, nil
}

// mapResponseError classifies official-client errors by HTTP status.
func mapResponseError(op string, resp *gitlab.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return models.NewScmError(models.ScmAuth, models.ProviderGitLab, op, err)
		case http.StatusNotFound:
			return models.NewScmError(models.ScmNotFound, models.ProviderGitLab, op, err)
		case http.StatusTooManyRequests:
			return models.NewScmError(models.ScmRateLimited, models.ProviderGitLab, op, err)
		}
	}
	return models.NewScmError(models.ScmTransport, models.ProviderGitLab, op, err)
}

// mapHTTPError classifies direct-HTTP errors from their message. The raw
// client folds the status code into the error text.
func mapHTTPError(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "status 401"), strings.Contains(msg, "status 403"):
		return models.NewScmError(models.ScmAuth, models.ProviderGitLab, op, err)
	case strings.Contains(msg, "status 404"):
		return models.NewScmError(models.ScmNotFound, models.ProviderGitLab, op, err)
	case strings.Contains(msg, "status 429"):
		return models.NewScmError(models.ScmRateLimited, models.ProviderGitLab, op, err)
	case strings.Contains(msg, "status 4"):
		log.Debug().Str("op", op).Msg("treating 4xx as malformed request")
		return models.NewScmError(models.ScmMalformed, models.ProviderGitLab, op, err)
	default:
		return models.NewScmError(models.ScmTransport, models.ProviderGitLab, op, err)
	}
}
