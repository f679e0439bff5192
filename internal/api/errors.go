package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reviewstream/pkg/models"
)

// errorEnvelope is the stable wire shape for non-validation server errors.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError maps the error taxonomy onto HTTP codes and the envelope.
func respondError(c echo.Context, err error) error {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		return c.JSON(http.StatusBadRequest, errorEnvelope{Error: "validation_error", Message: validation.Message})
	}

	var unauthorized *models.UnauthorizedError
	if errors.As(err, &unauthorized) {
		return c.JSON(http.StatusUnauthorized, errorEnvelope{Error: "unauthorized", Message: unauthorized.Error()})
	}

	var forbidden *models.ForbiddenError
	if errors.As(err, &forbidden) {
		return c.JSON(http.StatusForbidden, errorEnvelope{Error: "forbidden", Message: forbidden.Error()})
	}

	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		return c.JSON(http.StatusNotFound, errorEnvelope{Error: "not_found", Message: notFound.Error()})
	}

	var scmErr *models.ScmError
	if errors.As(err, &scmErr) {
		switch scmErr.Kind {
		case models.ScmNotFound:
			return c.JSON(http.StatusNotFound, errorEnvelope{Error: "scm_not_found", Message: scmErr.Error()})
		case models.ScmAuth:
			return c.JSON(http.StatusBadGateway, errorEnvelope{Error: "scm_auth", Message: scmErr.Error()})
		case models.ScmRateLimited:
			return c.JSON(http.StatusServiceUnavailable, errorEnvelope{Error: "scm_rate_limited", Message: scmErr.Error()})
		default:
			return c.JSON(http.StatusBadGateway, errorEnvelope{Error: "scm_error", Message: scmErr.Error()})
		}
	}

	var llmErr *models.LlmError
	if errors.As(err, &llmErr) {
		return c.JSON(http.StatusBadGateway, errorEnvelope{Error: "llm_error", Message: llmErr.Error()})
	}

	var streamErr *models.StreamError
	if errors.As(err, &streamErr) {
		return c.JSON(http.StatusInternalServerError, errorEnvelope{Error: "stream_error", Message: streamErr.Error()})
	}

	return c.JSON(http.StatusInternalServerError, errorEnvelope{Error: "internal_error", Message: err.Error()})
}
