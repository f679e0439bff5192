// Package cmd holds the CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/reviewstream/internal/accumulator"
	"github.com/reviewstream/internal/api"
	"github.com/reviewstream/internal/config"
	"github.com/reviewstream/internal/dispatch"
	"github.com/reviewstream/internal/engine"
	"github.com/reviewstream/internal/llm"
	"github.com/reviewstream/internal/logging"
	"github.com/reviewstream/internal/scan"
	"github.com/reviewstream/internal/scm"
	githubadapter "github.com/reviewstream/internal/scm/github"
	gitlabadapter "github.com/reviewstream/internal/scm/gitlab"
	"github.com/reviewstream/internal/store"
	"github.com/reviewstream/pkg/models"
)

// Version information, set from main.
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ServeCommand runs the API server with its dispatcher and worker pools.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the review API server and stream workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override the configured listen port",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "pretty-logs",
				Usage: "Human-readable console logs",
			},
		},
		Action: func(c *cli.Context) error {
			logging.Setup(c.Bool("debug"), c.Bool("pretty-logs"))

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if port := c.Int("port"); port > 0 {
				cfg.Server.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return fmt.Errorf("no SCM provider configured: set scm.github.token and/or scm.gitlab.token")
	}

	llmClient, err := llm.NewLangchainClient(llm.Config{
		ProviderType: cfg.LLM.ProviderType,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise LLM client: %w", err)
	}

	eng := engine.New(llmClient, accumulator.Config{
		ConfidenceThreshold: cfg.Review.ConfidenceThreshold,
		MaxIssuesPerFile:    cfg.Review.MaxIssuesPerFile,
	})

	scanner, err := scan.NewSecretScanner()
	if err != nil {
		return fmt.Errorf("failed to initialise secret scanner: %w", err)
	}

	statusStore := store.NewStatusStore(cfg.StatusTTL())
	idempotencyStore := store.NewIdempotencyStore(cfg.IdempotencyTTL())
	issueIndex := store.NewIssueIndex(cfg.StatusTTL())

	audit, err := dispatch.NewAuditRepo(cfg.Dispatch.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("audit repository unavailable, continuing without it")
		audit = nil
	} else {
		defer audit.Close()
	}

	pipeline := dispatch.NewPipeline(eng, adapters, statusStore, issueIndex, scanner, audit, dispatch.PipelineConfig{
		JobTimeout:        cfg.JobTimeout(),
		PublishOnComplete: cfg.Review.PublishOnComplete,
	})

	dispatcher, err := dispatch.NewDispatcher(cfg.Dispatch.DatabaseURL, pipeline, dispatch.WorkerCounts{
		Diff:    cfg.Dispatch.DiffWorkers,
		Agentic: cfg.Dispatch.AgenticWorkers,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise dispatcher: %w", err)
	}

	server := api.NewServer(api.Deps{
		Config:      cfg,
		Sender:      dispatcher,
		Status:      statusStore,
		Idempotency: idempotencyStore,
		Issues:      issueIndex,
		Adapters:    adapters,
		Engine:      eng,
		Audit:       audit,
		Version:     Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream workers: %w", err)
	}
	log.Info().Msg("stream workers started")

	serveErr := server.Start(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := dispatcher.Stop(stopCtx); err != nil {
		log.Warn().Err(err).Msg("dispatcher shutdown error")
	}
	log.Info().Str("version", Version).Str("commit", GitCommit).Str("built", BuildTime).Msg("shutdown complete")

	return serveErr
}

func buildAdapters(cfg *config.Config) (map[models.Provider]scm.Client, error) {
	adapters := map[models.Provider]scm.Client{}

	if cfg.SCM.GitHub.Token != "" {
		gh, err := githubadapter.New(githubadapter.Config{
			Token:   cfg.SCM.GitHub.Token,
			BaseURL: cfg.SCM.GitHub.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("github adapter: %w", err)
		}
		adapters[models.ProviderGitHub] = gh
	}

	if cfg.SCM.GitLab.Token != "" {
		gl, err := gitlabadapter.New(gitlabadapter.Config{
			Token:   cfg.SCM.GitLab.Token,
			BaseURL: cfg.SCM.GitLab.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("gitlab adapter: %w", err)
		}
		adapters[models.ProviderGitLab] = gl
	}

	return adapters, nil
}
