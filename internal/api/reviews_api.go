package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/reviewstream/internal/scm"
	"github.com/reviewstream/pkg/models"
)

// parseTarget resolves the provider/repoId/n path triple shared by the
// review endpoints. The repoId segment is URL-decoded first: a single
// segment may contain encoded slashes (GitLab group/subgroup/project).
func (s *Server) parseTarget(c echo.Context) (models.Provider, models.RepositoryID, models.ChangeRequestID, error) {
	provider, _, err := s.adapterFor(c.Param("provider"))
	if err != nil {
		return "", models.RepositoryID{}, models.ChangeRequestID{}, err
	}

	rawRepo := c.Param("repoId")
	if decoded, derr := url.PathUnescape(rawRepo); derr == nil {
		rawRepo = decoded
	}
	repo, err := models.ParseRepositoryID(provider, rawRepo)
	if err != nil {
		return "", models.RepositoryID{}, models.ChangeRequestID{}, models.NewValidationError("repositoryId", err.Error())
	}

	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n <= 0 {
		return "", models.RepositoryID{}, models.ChangeRequestID{}, models.NewValidationError("changeRequestId", "Change request ID must be positive")
	}
	cr, err := models.NewChangeRequestID(provider, n)
	if err != nil {
		return "", models.RepositoryID{}, models.ChangeRequestID{}, models.NewValidationError("changeRequestId", err.Error())
	}

	return provider, repo, cr, nil
}

// SubmitAsyncReview queues a review without the idempotency gate.
func (s *Server) SubmitAsyncReview(c echo.Context) error {
	provider, repo, cr, err := s.parseTarget(c)
	if err != nil {
		return respondError(c, err)
	}

	req := models.AsyncRequest{
		RequestID:     uuid.NewString(),
		Provider:      provider,
		Repository:    repo,
		ChangeRequest: cr,
		Mode:          models.ParseReviewMode(c.QueryParam("reviewMode")),
		TriggerSource: "api",
		SubmittedAt:   time.Now().UTC(),
	}

	if _, err := s.sender.Send(c.Request().Context(), req); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("stream append failed")
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"status":  models.StateFailed,
			"message": "Failed to queue review request",
		})
	}

	if err := s.status.SetPending(req.RequestID); err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to record PENDING status")
	}
	s.audit.Record(c.Request().Context(), req)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"requestId": req.RequestID,
		"status":    models.StatePending,
		"statusUrl": fmt.Sprintf("/api/v1/async-reviews/%s/status", req.RequestID),
	})
}

// GetReviewStatus reports the request's current state. Unknown ids read as
// PENDING to tolerate the submit/propagation race.
func (s *Server) GetReviewStatus(c echo.Context) error {
	requestID := c.Param("requestId")
	status, _ := s.status.Get(requestID)
	return c.JSON(http.StatusOK, status)
}

// GetReview returns the same body but answers 404 once the entry has aged
// out of the store.
func (s *Server) GetReview(c echo.Context) error {
	requestID := c.Param("requestId")
	status, ok := s.status.Get(requestID)
	if !ok {
		return respondError(c, &models.NotFoundError{Entity: "review request", ID: requestID})
	}
	return c.JSON(http.StatusOK, status)
}

// ListChangeRequests lists open change requests on the repository.
func (s *Server) ListChangeRequests(c echo.Context) error {
	provider, adapter, err := s.adapterFor(c.Param("provider"))
	if err != nil {
		return respondError(c, err)
	}

	rawRepo := c.Param("repoId")
	if decoded, derr := url.PathUnescape(rawRepo); derr == nil {
		rawRepo = decoded
	}
	repo, err := models.ParseRepositoryID(provider, rawRepo)
	if err != nil {
		return respondError(c, models.NewValidationError("repositoryId", err.Error()))
	}

	summaries, err := adapter.GetOpenChangeRequests(c.Request().Context(), repo)
	if err != nil {
		return respondError(c, err)
	}
	if summaries == nil {
		summaries = []scm.ChangeRequestSummary{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider":       provider,
		"repository":     repo.DisplayName(),
		"changeRequests": summaries,
	})
}

// ListRepositories lists repositories visible to the provider token.
func (s *Server) ListRepositories(c echo.Context) error {
	provider, adapter, err := s.adapterFor(c.Param("provider"))
	if err != nil {
		return respondError(c, err)
	}
	repos, err := adapter.GetAllRepositories(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider":     provider,
		"repositories": repos,
	})
}

// PublishProvidedReview posts a caller-supplied result back to the host.
func (s *Server) PublishProvidedReview(c echo.Context) error {
	provider, repo, cr, err := s.parseTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	adapter := s.adapters[provider]

	var result models.ReviewResult
	if err := c.Bind(&result); err != nil {
		return respondError(c, models.NewValidationError("body", "Body must be a valid review result"))
	}

	fetch, err := adapter.GetDiff(c.Request().Context(), repo, cr)
	if err != nil {
		return respondError(c, err)
	}

	outcome, err := adapter.PublishReview(c.Request().Context(), repo, cr, result, fetch.Document)
	if err != nil {
		return respondError(c, err)
	}

	message := fmt.Sprintf("Posted %d inline comment(s), %d fallback item(s)", outcome.InlineComments, outcome.FallbackItems)
	if len(outcome.Errors) > 0 {
		message += fmt.Sprintf(", %d finding(s) failed", len(outcome.Errors))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "published",
		"message":         message,
		"provider":        provider,
		"repository":      repo.DisplayName(),
		"changeRequestId": cr.Number,
	})
}

// GetIssue looks a single indexed finding up by id.
func (s *Server) GetIssue(c echo.Context) error {
	issueID := strings.TrimSpace(c.Param("issueId"))
	record, ok := s.issues.Get(issueID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Issue not found",
		})
	}
	return c.JSON(http.StatusOK, record)
}
