package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/reviewstream/pkg/models"
)

// webhookRequest is the inbound webhook body.
type webhookRequest struct {
	Provider        string `json:"provider"`
	RepositoryID    string `json:"repositoryId"`
	ChangeRequestID int    `json:"changeRequestId"`
	TriggerSource   string `json:"triggerSource"`
	ReviewMode      string `json:"reviewMode"`
}

// HandleWebhook is the idempotency-gated ingress: API-key check, field
// validation, dedup on the client's idempotency key, then append to the
// mode's stream.
func (s *Server) HandleWebhook(c echo.Context) error {
	if !s.cfg.Server.WebhooksEnabled {
		return c.JSON(http.StatusForbidden, errorEnvelope{Error: "forbidden", Message: "Webhook processing is disabled"})
	}
	if !s.apiKeyValid(c.Request().Header.Get("X-API-Key")) {
		return c.JSON(http.StatusUnauthorized, errorEnvelope{Error: "unauthorized", Message: "A valid X-API-Key header is required"})
	}

	var body webhookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorEnvelope{Error: "validation_error", Message: "Request body must be valid JSON"})
	}

	req, verr := s.buildAsyncRequest(body)
	if verr != nil {
		return c.JSON(http.StatusBadRequest, errorEnvelope{Error: "validation_error", Message: verr.Message})
	}

	// Replay check before any work: a key seen within the TTL returns the
	// original request untouched.
	idemKey := strings.TrimSpace(c.Request().Header.Get("X-Idempotency-Key"))
	if idemKey != "" {
		if existing, ok := s.idempotency.Lookup(idemKey); ok {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"requestId": existing,
				"status":    "already_processed",
				"message":   "Request with this idempotency key was already accepted",
			})
		}
	}

	if _, err := s.sender.Send(c.Request().Context(), req); err != nil {
		// The stream append failed: the status store stays untouched so a
		// retry starts clean.
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("stream append failed")
		return c.JSON(http.StatusInternalServerError, errorEnvelope{Error: "internal_error", Message: "Failed to queue review request"})
	}

	if idemKey != "" {
		s.idempotency.Claim(idemKey, req.RequestID)
	}
	if err := s.status.SetPending(req.RequestID); err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to record PENDING status")
	}
	s.audit.Record(c.Request().Context(), req)

	log.Info().
		Str("request_id", req.RequestID).
		Str("provider", string(req.Provider)).
		Str("repository", req.Repository.DisplayName()).
		Str("mode", string(req.Mode)).
		Str("trigger", req.TriggerSource).
		Msg("webhook accepted")

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"requestId": req.RequestID,
		"status":    "accepted",
		"message":   "Review request queued for processing",
	})
}

// buildAsyncRequest validates the webhook fields and constructs the stream
// record. Each violation carries its own message.
func (s *Server) buildAsyncRequest(body webhookRequest) (models.AsyncRequest, *models.ValidationError) {
	if strings.TrimSpace(body.Provider) == "" {
		return models.AsyncRequest{}, models.NewValidationError("provider", "Provider is required")
	}
	provider, err := models.ParseProvider(body.Provider)
	if err != nil {
		return models.AsyncRequest{}, models.NewValidationError("provider", "Provider must be 'github' or 'gitlab'")
	}

	if strings.TrimSpace(body.RepositoryID) == "" {
		return models.AsyncRequest{}, models.NewValidationError("repositoryId", "Repository ID is required")
	}
	repo, err := models.ParseRepositoryID(provider, body.RepositoryID)
	if err != nil {
		return models.AsyncRequest{}, models.NewValidationError("repositoryId", err.Error())
	}

	if body.ChangeRequestID <= 0 {
		return models.AsyncRequest{}, models.NewValidationError("changeRequestId", "Change request ID must be positive")
	}
	cr, err := models.NewChangeRequestID(provider, body.ChangeRequestID)
	if err != nil {
		return models.AsyncRequest{}, models.NewValidationError("changeRequestId", err.Error())
	}

	return models.AsyncRequest{
		RequestID:     uuid.NewString(),
		Provider:      provider,
		Repository:    repo,
		ChangeRequest: cr,
		Mode:          models.ParseReviewMode(body.ReviewMode),
		TriggerSource: body.TriggerSource,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// apiKeyValid runs a constant-time membership check over the configured key
// set.
func (s *Server) apiKeyValid(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	valid := false
	for _, candidate := range s.cfg.Server.APIKeys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			valid = true
		}
	}
	return valid
}
