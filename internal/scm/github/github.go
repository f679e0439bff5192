// Package github implements the SCM adapter contract for GitHub pull
// requests on top of go-github.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/reviewstream/internal/diff"
	"github.com/reviewstream/internal/scm"
	"github.com/reviewstream/pkg/models"
)

// Config parameterises the adapter.
type Config struct {
	Token   string `koanf:"token"`
	BaseURL string `koanf:"base_url"` // for GitHub Enterprise; empty = github.com
}

// Adapter talks to the GitHub API. One shared HTTP client serves every
// call; the adapter is safe for concurrent use.
type Adapter struct {
	client  *gh.Client
	parser  *diff.Parser
	limiter *rate.Limiter
}

// New builds a GitHub adapter from the config.
func New(cfg Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	client := gh.NewClient(&http.Client{Timeout: 30 * time.Second}).WithAuthToken(cfg.Token)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set enterprise base URL: %w", err)
		}
	}
	return &Adapter{
		client: client,
		parser: diff.NewParser(),
		// GitHub's secondary rate limits bite around 900 points/min for
		// REST; stay well below.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// NewWithClient injects an existing go-github client (tests point this at
// an httptest server).
func NewWithClient(client *gh.Client) *Adapter {
	return &Adapter{
		client:  client,
		parser:  diff.NewParser(),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func (a *Adapter) wait(ctx context.Context, op string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return models.NewScmError(models.ScmTransport, models.ProviderGitHub, op, err)
	}
	return nil
}

// GetDiff fetches the PR metadata, raw diff, and commit list.
func (a *Adapter) GetDiff(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID) (*scm.DiffFetch, error) {
	const op = "getDiff"
	if err := a.wait(ctx, op); err != nil {
		return nil, err
	}

	pr, _, err := a.client.PullRequests.Get(ctx, repo.Owner, repo.Repo, cr.Number)
	if err != nil {
		return nil, mapError(op, err)
	}

	raw, _, err := a.client.PullRequests.GetRaw(ctx, repo.Owner, repo.Repo, cr.Number, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return nil, mapError(op, err)
	}

	doc, err := a.parser.Parse(raw)
	if err != nil {
		return nil, models.NewScmError(models.ScmMalformed, models.ProviderGitHub, op, err)
	}

	meta := scm.ChangeRequestMeta{
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Author:      pr.GetUser().GetLogin(),
		BaseBranch:  pr.GetBase().GetRef(),
		HeadBranch:  pr.GetHead().GetRef(),
		BaseSHA:     pr.GetBase().GetSHA(),
		HeadSHA:     pr.GetHead().GetSHA(),
		CreatedAt:   pr.GetCreatedAt().Time,
	}
	for _, label := range pr.Labels {
		meta.Labels = append(meta.Labels, label.GetName())
	}

	commits, _, err := a.client.PullRequests.ListCommits(ctx, repo.Owner, repo.Repo, cr.Number, &gh.ListOptions{PerPage: 100})
	if err != nil {
		// Commit listing is auxiliary metadata; a failure here should not
		// sink the whole fetch.
		log.Warn().Err(err).Msg("failed to list PR commits")
	} else {
		for _, commit := range commits {
			meta.CommitSHAs = append(meta.CommitSHAs, commit.GetSHA())
		}
	}

	return &scm.DiffFetch{Document: doc, RawDiff: raw, Meta: meta}, nil
}

// PublishReview posts valid findings as positioned review comments and the
// rest as one fallback summary.
func (a *Adapter) PublishReview(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID, result models.ReviewResult, doc *models.DiffDocument) (scm.PublishOutcome, error) {
	const op = "publishReview"
	if err := a.wait(ctx, op); err != nil {
		return scm.PublishOutcome{}, err
	}

	pr, _, err := a.client.PullRequests.Get(ctx, repo.Owner, repo.Repo, cr.Number)
	if err != nil {
		return scm.PublishOutcome{}, mapError(op, err)
	}
	headSHA := pr.GetHead().GetSHA()

	return scm.RunPublish(models.ProviderGitHub, doc, result,
		func(file string, line int, body string) error {
			if err := a.wait(ctx, op); err != nil {
				return err
			}
			comment := &gh.PullRequestComment{
				Body:     gh.Ptr(body),
				Path:     gh.Ptr(file),
				Line:     gh.Ptr(line),
				Side:     gh.Ptr("RIGHT"),
				CommitID: gh.Ptr(headSHA),
			}
			_, _, err := a.client.PullRequests.CreateComment(ctx, repo.Owner, repo.Repo, cr.Number, comment)
			if err != nil {
				return mapError(op, err)
			}
			return nil
		},
		func(body string) error {
			return a.PublishSummaryComment(ctx, repo, cr, body)
		},
	)
}

// PublishSummaryComment posts a top-level issue comment on the PR.
func (a *Adapter) PublishSummaryComment(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID, body string) error {
	const op = "publishSummaryComment"
	if err := a.wait(ctx, op); err != nil {
		return err
	}
	_, _, err := a.client.Issues.CreateComment(ctx, repo.Owner, repo.Repo, cr.Number, &gh.IssueComment{Body: gh.Ptr(body)})
	if err != nil {
		return mapError(op, err)
	}
	return nil
}

// IsChangeRequestOpen reports whether the PR is still open.
func (a *Adapter) IsChangeRequestOpen(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID) (bool, error) {
	const op = "isChangeRequestOpen"
	if err := a.wait(ctx, op); err != nil {
		return false, err
	}
	pr, _, err := a.client.PullRequests.Get(ctx, repo.Owner, repo.Repo, cr.Number)
	if err != nil {
		return false, mapError(op, err)
	}
	return pr.GetState() == "open", nil
}

// GetRepository fetches plain repository metadata.
func (a *Adapter) GetRepository(ctx context.Context, repo models.RepositoryID) (*scm.RepositoryInfo, error) {
	const op = "getRepository"
	if err := a.wait(ctx, op); err != nil {
		return nil, err
	}
	r, _, err := a.client.Repositories.Get(ctx, repo.Owner, repo.Repo)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &scm.RepositoryInfo{
		Name:          r.GetFullName(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		WebURL:        r.GetHTMLURL(),
	}, nil
}

// GetAllRepositories lists repositories visible to the token.
func (a *Adapter) GetAllRepositories(ctx context.Context) ([]scm.RepositoryInfo, error) {
	const op = "getAllRepositories"
	var out []scm.RepositoryInfo
	opts := &gh.RepositoryListByAuthenticatedUserOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		if err := a.wait(ctx, op); err != nil {
			return nil, err
		}
		repos, resp, err := a.client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, mapError(op, err)
		}
		for _, r := range repos {
			out = append(out, scm.RepositoryInfo{
				Name:          r.GetFullName(),
				Description:   r.GetDescription(),
				DefaultBranch: r.GetDefaultBranch(),
				WebURL:        r.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetOpenChangeRequests lists open PRs on the repository.
func (a *Adapter) GetOpenChangeRequests(ctx context.Context, repo models.RepositoryID) ([]scm.ChangeRequestSummary, error) {
	const op = "getOpenChangeRequests"
	var out []scm.ChangeRequestSummary
	opts := &gh.PullRequestListOptions{State: "open", ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		if err := a.wait(ctx, op); err != nil {
			return nil, err
		}
		prs, resp, err := a.client.PullRequests.List(ctx, repo.Owner, repo.Repo, opts)
		if err != nil {
			return nil, mapError(op, err)
		}
		for _, pr := range prs {
			out = append(out, scm.ChangeRequestSummary{
				Number: pr.GetNumber(),
				Title:  pr.GetTitle(),
				Author: pr.GetUser().GetLogin(),
				State:  pr.GetState(),
				WebURL: pr.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetFileContent reads a file from the repository default branch.
func (a *Adapter) GetFileContent(ctx context.Context, repo models.RepositoryID, path string) (string, error) {
	const op = "getFileContent"
	if err := a.wait(ctx, op); err != nil {
		return "", err
	}
	file, _, _, err := a.client.Repositories.GetContents(ctx, repo.Owner, repo.Repo, path, nil)
	if err != nil {
		return "", mapError(op, err)
	}
	if file == nil {
		return "", models.NewScmError(models.ScmNotFound, models.ProviderGitHub, op, fmt.Errorf("%s is a directory", path))
	}
	content, err := file.GetContent()
	if err != nil {
		return "", models.NewScmError(models.ScmMalformed, models.ProviderGitHub, op, err)
	}
	return content, nil
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
	opts := &gh.CommitsListOptions{
		Path:        path,
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	commits, _, err := a.client.Repositories.ListCommits(ctx, repo.Owner, repo.Repo, opts)
	if err != nil {
		return nil, mapError(op, err)
	}

	var out []scm.CommitInfo
	for _, commit := range commits {
		if max > 0 && len(out) >= max {
			break
		}
		out = append(out, scm.CommitInfo{
			SHA:        commit.GetSHA(),
			Title:      firstLine(commit.GetCommit().GetMessage()),
			Author:     commit.GetCommit().GetAuthor().GetName(),
			AuthoredAt: commit.GetCommit().GetAuthor().GetDate().Time,
		})
	}
	return out, nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// mapError classifies go-github errors into the ScmError taxonomy.
func mapError(op string, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return models.NewScmError(models.ScmRateLimited, models.ProviderGitHub, op, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return models.NewScmError(models.ScmAuth, models.ProviderGitHub, op, err)
		case http.StatusNotFound:
			return models.NewScmError(models.ScmNotFound, models.ProviderGitHub, op, err)
		case http.StatusTooManyRequests:
			return models.NewScmError(models.ScmRateLimited, models.ProviderGitHub, op, err)
		case http.StatusUnprocessableEntity:
			return models.NewScmError(models.ScmMalformed, models.ProviderGitHub, op, err)
		}
	}
	return models.NewScmError(models.ScmTransport, models.ProviderGitHub, op, err)
}
