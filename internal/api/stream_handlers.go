package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/reviewstream/internal/engine"
)

// StreamReview runs the review synchronously and streams chunks to the
// client as server-sent events. Client disconnect cancels the upstream
// model call at the next token boundary.
func (s *Server) StreamReview(c echo.Context) error {
	return s.streamReview(c, false)
}

// StreamAndPublishReview streams identically and, when the stream finishes
// cleanly, publishes the accumulated result back to the host.
func (s *Server) StreamAndPublishReview(c echo.Context) error {
	return s.streamReview(c, true)
}

func (s *Server) streamReview(c echo.Context, publish bool) error {
	provider, repo, cr, err := s.parseTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	adapter := s.adapters[provider]
	ctx := c.Request().Context()

	fetch, err := adapter.GetDiff(ctx, repo, cr)
	if err != nil {
		return respondError(c, err)
	}

	prompt := engine.BuildPrompt(engine.ChangeRequestInfo{
		Title:       fetch.Meta.Title,
		Description: fetch.Meta.Description,
		Author:      fetch.Meta.Author,
		BaseBranch:  fetch.Meta.BaseBranch,
		HeadBranch:  fetch.Meta.HeadBranch,
		Labels:      fetch.Meta.Labels,
	}, fetch.Document)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	stream := s.engine.Review(ctx, prompt)
	sub := stream.Subscribe()

	for chunk := range sub {
		payload, merr := json.Marshal(chunk)
		if merr != nil {
			continue
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", payload); werr != nil {
			// Client went away; the request context cancellation stops the
			// upstream read. Drain the subscription so its pump can exit.
			log.Debug().Err(werr).Msg("SSE client disconnected")
			go func() {
				for range sub {
				}
			}()
			break
		}
		w.Flush()
	}

	result, err := stream.Wait()
	if err != nil {
		fmt.Fprintf(w, "data: {\"type\":\"ERROR\",\"text\":%q}\n\n", err.Error())
		w.Flush()
		return nil
	}

	summary, merr := json.Marshal(result)
	if merr == nil {
		fmt.Fprintf(w, "event: result\ndata: %s\n\n", summary)
		w.Flush()
	}

	if publish {
		outcome, perr := adapter.PublishReview(ctx, repo, cr, result, fetch.Document)
		if perr != nil {
			log.Warn().Err(perr).Msg("publish after stream failed")
			fmt.Fprintf(w, "data: {\"type\":\"ERROR\",\"text\":\"publish failed\"}\n\n")
			w.Flush()
			return nil
		}
		fmt.Fprintf(w, "event: published\ndata: {\"inline\":%d,\"fallback\":%d}\n\n",
			outcome.InlineComments, outcome.FallbackItems)
		w.Flush()
	}

	return nil
}
