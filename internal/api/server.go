// Package api exposes the HTTP surface: the webhook ingress, the async
// review API, and the live SSE streaming endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/reviewstream/internal/config"
	"github.com/reviewstream/internal/dispatch"
	"github.com/reviewstream/internal/engine"
	"github.com/reviewstream/internal/scm"
	"github.com/reviewstream/internal/store"
	"github.com/reviewstream/pkg/models"
)

// Sender is the producer half of the dispatcher.
type Sender interface {
	Send(ctx context.Context, req models.AsyncRequest) (int64, error)
}

// Deps carries everything the server needs; construction is explicit at
// startup, no ambient container.
type Deps struct {
	Config      *config.Config
	Sender      Sender
	Status      *store.StatusStore
	Idempotency *store.IdempotencyStore
	Issues      *store.IssueIndex
	Adapters    map[models.Provider]scm.Client
	Engine      *engine.Engine
	Audit       *dispatch.AuditRepo
	Version     string
}

// Server is the echo HTTP server.
type Server struct {
	echo        *echo.Echo
	cfg         *config.Config
	sender      Sender
	status      *store.StatusStore
	idempotency *store.IdempotencyStore
	issues      *store.IssueIndex
	adapters    map[models.Provider]scm.Client
	engine      *engine.Engine
	audit       *dispatch.AuditRepo
	version     string
}

// NewServer wires routes and middleware.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:        e,
		cfg:         deps.Config,
		sender:      deps.Sender,
		status:      deps.Status,
		idempotency: deps.Idempotency,
		issues:      deps.Issues,
		adapters:    deps.Adapters,
		engine:      deps.Engine,
		audit:       deps.Audit,
		version:     deps.Version,
	}
	s.setupRoutes()
	return s
}

// Echo exposes the router, primarily for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.echo.GET("/api/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"apiVersion": "v1", "version": s.version})
	})

	// Webhook ingress carries the idempotency gate; the deadline
	// middleware bounds the synchronous work of every surface.
	s.echo.POST("/webhooks", s.HandleWebhook, s.deadlineMiddleware())

	v1 := s.echo.Group("/api/v1", s.deadlineMiddleware())

	// Async review surface (no idempotency gate).
	v1.POST("/async-reviews/:provider/:repoId/change-requests/:n", s.SubmitAsyncReview)
	v1.GET("/async-reviews/:requestId/status", s.GetReviewStatus)
	v1.GET("/async-reviews/:requestId", s.GetReview)

	// Synchronous review surface.
	v1.GET("/reviews/:provider/:repoId/change-requests", s.ListChangeRequests)
	v1.GET("/reviews/:provider/repositories", s.ListRepositories)
	v1.GET("/reviews/:provider/:repoId/change-requests/:n/stream", s.StreamReview)
	v1.GET("/reviews/:provider/:repoId/change-requests/:n/stream-and-publish", s.StreamAndPublishReview)
	v1.POST("/reviews/:provider/:repoId/change-requests/:n/review", s.PublishProvidedReview)
	v1.GET("/reviews/issues/:issueId", s.GetIssue)
}

// deadlineMiddleware bounds accumulated per-request work. SSE endpoints get
// a much longer leash than plain JSON handlers; expiry cancels any upstream
// LLM or SCM call through the request context.
func (s *Server) deadlineMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timeout := s.cfg.RequestTimeout()
			if timeout <= 0 {
				return next(c)
			}
			if c.Request().Header.Get(echo.HeaderAccept) == "text/event-stream" {
				timeout = s.cfg.JobTimeout()
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := fmt.Sprintf("0.0.0.0:%d", s.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(bind); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info().Int("port", s.cfg.Server.Port).Msg("API server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// adapterFor resolves a provider path segment to its configured adapter.
func (s *Server) adapterFor(providerParam string) (models.Provider, scm.Client, error) {
	provider, err := models.ParseProvider(providerParam)
	if err != nil {
		return "", nil, models.NewValidationError("provider", "Provider must be 'github' or 'gitlab'")
	}
	adapter, ok := s.adapters[provider]
	if !ok {
		return "", nil, models.NewValidationError("provider", fmt.Sprintf("Provider %s is not configured", provider))
	}
	return provider, adapter, nil
}
