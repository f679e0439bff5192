package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewstream/internal/engine"
	"github.com/reviewstream/internal/logging"
	"github.com/reviewstream/internal/scan"
	"github.com/reviewstream/internal/scm"
	"github.com/reviewstream/internal/store"
	"github.com/reviewstream/pkg/models"
)

// PipelineConfig tunes per-job behaviour.
type PipelineConfig struct {
	JobTimeout        time.Duration
	PublishOnComplete bool
}

// Pipeline executes one review job end to end: fetch the diff, run the
// mode's analysis, record the outcome, optionally publish back to the host.
type Pipeline struct {
	engine   *engine.Engine
	adapters map[models.Provider]scm.Client
	status   *store.StatusStore
	issues   *store.IssueIndex
	scanner  *scan.SecretScanner
	audit    *AuditRepo
	cfg      PipelineConfig
}

// NewPipeline wires the job executor.
func NewPipeline(eng *engine.Engine, adapters map[models.Provider]scm.Client, status *store.StatusStore, issues *store.IssueIndex, scanner *scan.SecretScanner, audit *AuditRepo, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		engine:   eng,
		adapters: adapters,
		status:   status,
		issues:   issues,
		scanner:  scanner,
		audit:    audit,
		cfg:      cfg,
	}
}

// Process runs the request's pipeline. All failures are folded into the
// status store, and a failure to record a status is only logged; the
// returned error is always nil, because stream redelivery must not re-run
// handled failures.
func (p *Pipeline) Process(ctx context.Context, req models.AsyncRequest) error {
	started := time.Now()

	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	if err := p.status.SetProcessing(req.RequestID); err != nil {
		log.Warn().Str("request_id", req.RequestID).Err(err).Msg("status transition rejected, skipping job")
		return nil
	}
	p.audit.MarkState(ctx, req.RequestID, models.StateProcessing)

	reviewLog, logErr := logging.StartReviewLogging(req.RequestID)
	if logErr != nil {
		log.Warn().Err(logErr).Msg("review file logging unavailable")
	}
	defer reviewLog.Close()

	result, err := p.run(ctx, req, reviewLog)
	elapsed := time.Since(started)

	if err != nil {
		reason := failureReason(ctx, err)
		reviewLog.LogError("pipeline", err)
		log.Error().Str("request_id", req.RequestID).Dur("elapsed", elapsed).Err(err).Msg("review failed")
		if serr := p.status.SetFailed(req.RequestID, reason, elapsed); serr != nil {
			log.Warn().Str("request_id", req.RequestID).Err(serr).Msg("failed to record FAILED status")
		}
		p.audit.MarkState(context.WithoutCancel(ctx), req.RequestID, models.StateFailed)
		return nil
	}

	if serr := p.status.SetCompleted(req.RequestID, result, elapsed); serr != nil {
		log.Warn().Str("request_id", req.RequestID).Err(serr).Msg("failed to record COMPLETED status")
	}
	if p.issues != nil {
		p.issues.Register(req.RequestID, result.Issues)
	}
	p.audit.MarkState(context.WithoutCancel(ctx), req.RequestID, models.StateCompleted)

	stats := result.Stats()
	log.Info().
		Str("request_id", req.RequestID).
		Str("mode", string(req.Mode)).
		Int("issues", stats.TotalIssues).
		Int("notes", stats.TotalNotes).
		Dur("elapsed", elapsed).
		Msg("review completed")

	return nil
}

func (p *Pipeline) run(ctx context.Context, req models.AsyncRequest, reviewLog *logging.ReviewLogger) (models.ReviewResult, error) {
	adapter, ok := p.adapters[req.Provider]
	if !ok {
		return models.ReviewResult{}, fmt.Errorf("no adapter configured for provider %s", req.Provider)
	}

	reviewLog.Log("Fetching diff for %s %s", req.Repository.DisplayName(), req.ChangeRequest)
	fetch, err := adapter.GetDiff(ctx, req.Repository, req.ChangeRequest)
	if err != nil {
		return models.ReviewResult{}, fmt.Errorf("diff fetch failed: %w", err)
	}
	reviewLog.Log("Diff fetched: %d files", len(fetch.Document.Modifications))

	prompt := engine.BuildPrompt(engine.ChangeRequestInfo{
		Title:       fetch.Meta.Title,
		Description: fetch.Meta.Description,
		Author:      fetch.Meta.Author,
		BaseBranch:  fetch.Meta.BaseBranch,
		HeadBranch:  fetch.Meta.HeadBranch,
		Labels:      fetch.Meta.Labels,
	}, fetch.Document)
	reviewLog.LogPrompt("review", prompt)

	stream := p.engine.Review(ctx, prompt)
	result, err := stream.Wait()
	if err != nil {
		return models.ReviewResult{}, fmt.Errorf("review stream failed: %w", err)
	}
	reviewLog.LogResponse(result.RawLLMResponse)

	if req.Mode == models.ModeAgentic && p.scanner != nil {
		secrets := p.scanner.ScanDiff(fetch.Document)
		reviewLog.Log("Security scan: %d finding(s)", len(secrets))
		result = scan.MergeSecurityFindings(result, secrets)
	}

	if p.cfg.PublishOnComplete || req.PublishOnFinish {
		outcome, pubErr := adapter.PublishReview(ctx, req.Repository, req.ChangeRequest, result, fetch.Document)
		if pubErr != nil {
			// Publication is best-effort once the result exists; the
			// client still gets it through the status endpoint.
			reviewLog.LogError("publish", pubErr)
			log.Warn().Str("request_id", req.RequestID).Err(pubErr).Msg("publish back to SCM failed")
		} else {
			reviewLog.Log("Published: %d inline, %d fallback, %d errors",
				outcome.InlineComments, outcome.FallbackItems, len(outcome.Errors))
			for _, fe := range outcome.Errors {
				log.Warn().Str("file", fe.File).Int("line", fe.Line).Err(fe.Err).Msg("inline comment failed")
			}
		}
	}

	return result, nil
}

func failureReason(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "job deadline exceeded"
	}
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
