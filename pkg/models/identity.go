package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Provider identifies the hosting SCM platform.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// ParseProvider validates a wire-format provider name.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "github":
		return ProviderGitHub, nil
	case "gitlab":
		return ProviderGitLab, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// RepositoryID is a closed variant over the two hosting providers.
// GitHub repositories are addressed as owner/repo; GitLab projects by
// numeric id or full namespace path (group/subgroup/project).
type RepositoryID struct {
	Provider Provider `json:"provider"`

	// GitHub
	Owner string `json:"owner,omitempty"`
	Repo  string `json:"repo,omitempty"`

	// GitLab: numeric id as string, or namespace path
	ProjectID string `json:"project_id,omitempty"`
}

// NewGitHubRepository builds a GitHub repository identity.
func NewGitHubRepository(owner, repo string) (RepositoryID, error) {
	if owner == "" || repo == "" {
		return RepositoryID{}, fmt.Errorf("github repository requires owner and repo, got %q/%q", owner, repo)
	}
	return RepositoryID{Provider: ProviderGitHub, Owner: owner, Repo: repo}, nil
}

// NewGitLabRepository builds a GitLab repository identity from a numeric id
// or a namespace path.
func NewGitLabRepository(projectID string) (RepositoryID, error) {
	if projectID == "" {
		return RepositoryID{}, fmt.Errorf("gitlab repository requires a project id or path")
	}
	return RepositoryID{Provider: ProviderGitLab, ProjectID: projectID}, nil
}

// ParseRepositoryID interprets the wire form of a repository segment for the
// given provider. The segment must already be URL-decoded: a GitLab path may
// contain slashes (group/subgroup/project).
func ParseRepositoryID(provider Provider, raw string) (RepositoryID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepositoryID{}, fmt.Errorf("repository id is required")
	}
	switch provider {
	case ProviderGitHub:
		parts := strings.SplitN(raw, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return RepositoryID{}, fmt.Errorf("github repository id must be owner/repo, got %q", raw)
		}
		return NewGitHubRepository(parts[0], parts[1])
	case ProviderGitLab:
		return NewGitLabRepository(raw)
	default:
		return RepositoryID{}, fmt.Errorf("unknown provider %q", provider)
	}
}

// DisplayName renders the repository the way its host displays it.
func (r RepositoryID) DisplayName() string {
	switch r.Provider {
	case ProviderGitHub:
		return r.Owner + "/" + r.Repo
	case ProviderGitLab:
		return r.ProjectID
	}
	return ""
}

// PathEscaped returns the id as a single URL path segment. GitLab namespace
// paths need their slashes escaped before they can appear in an API URL.
func (r RepositoryID) PathEscaped() string {
	return url.PathEscape(r.DisplayName())
}

// ChangeRequestID identifies a pull request (GitHub) or merge request
// (GitLab) within its repository. The number is the PR number or MR IID and
// is always positive.
type ChangeRequestID struct {
	Provider Provider `json:"provider"`
	Number   int      `json:"number"`
}

// NewChangeRequestID validates and builds a change-request identity.
func NewChangeRequestID(provider Provider, number int) (ChangeRequestID, error) {
	if number <= 0 {
		return ChangeRequestID{}, fmt.Errorf("change request number must be positive, got %d", number)
	}
	return ChangeRequestID{Provider: provider, Number: number}, nil
}

// String renders the id in the host's vocabulary.
func (c ChangeRequestID) String() string {
	if c.Provider == ProviderGitLab {
		return "!" + strconv.Itoa(c.Number)
	}
	return "#" + strconv.Itoa(c.Number)
}
