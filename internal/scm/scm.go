// Package scm defines the provider-agnostic contract for talking to the
// hosting platform: fetching diffs and metadata, and publishing review
// output back onto the change request.
package scm

import (
	"context"
	"time"

	"github.com/reviewstream/pkg/models"
)

// ChangeRequestMeta is the metadata fetched alongside a diff.
type ChangeRequestMeta struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	BaseBranch  string    `json:"base_branch"`
	HeadBranch  string    `json:"head_branch"`
	Labels      []string  `json:"labels,omitempty"`
	CommitSHAs  []string  `json:"commit_shas,omitempty"`
	BaseSHA     string    `json:"base_sha,omitempty"`
	HeadSHA     string    `json:"head_sha,omitempty"`
	StartSHA    string    `json:"start_sha,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// DiffFetch bundles the parsed document, the raw text it came from, and the
// change-request metadata.
type DiffFetch struct {
	Document *models.DiffDocument
	RawDiff  string
	Meta     ChangeRequestMeta
}

// FindingError records one finding whose publication failed. Finding-level
// failures never abort the batch.
type FindingError struct {
	File string
	Line int
	Err  error
}

// PublishOutcome summarises a publication run.
type PublishOutcome struct {
	InlineComments int
	FallbackItems  int
	Errors         []FindingError
}

// RepositoryInfo is plain repository metadata.
type RepositoryInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch"`
	WebURL        string `json:"web_url,omitempty"`
}

// ChangeRequestSummary is one row in a change-request listing.
type ChangeRequestSummary struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	State  string `json:"state"`
	WebURL string `json:"web_url,omitempty"`
}

// CommitInfo is one commit in a history listing.
type CommitInfo struct {
	SHA        string    `json:"sha"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	AuthoredAt time.Time `json:"authored_at"`
}

// Client is the full adapter contract. Implementations keep one shared HTTP
// client per provider and are safe for concurrent use.
type Client interface {
	// GetDiff fetches and parses the change request's diff plus metadata.
	GetDiff(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID) (*DiffFetch, error)

	// PublishReview validates each finding against the diff, posts valid
	// ones as inline comments and collects the rest into one fallback
	// summary note. Per-finding errors are accumulated in the outcome.
	PublishReview(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID, result models.ReviewResult, doc *models.DiffDocument) (PublishOutcome, error)

	// PublishSummaryComment posts one top-level comment.
	PublishSummaryComment(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID, body string) error

	IsChangeRequestOpen(ctx context.Context, repo models.RepositoryID, cr models.ChangeRequestID) (bool, error)
	GetRepository(ctx context.Context, repo models.RepositoryID) (*RepositoryInfo, error)
	GetAllRepositories(ctx context.Context) ([]RepositoryInfo, error)
	GetOpenChangeRequests(ctx context.Context, repo models.RepositoryID) ([]ChangeRequestSummary, error)

	// GetFileContent reads the full file on the repository default branch.
	GetFileContent(ctx context.Context, repo models.RepositoryID, path string) (string, error)

	// GetCommitsSince lists commits, optionally restricted to a path,
	// newest first, capped at max.
	GetCommitsSince(ctx context.Context, repo models.RepositoryID, path string, since time.Time, max int) ([]CommitInfo, error)
}
