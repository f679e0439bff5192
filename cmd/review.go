package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/reviewstream/internal/accumulator"
	"github.com/reviewstream/internal/config"
	"github.com/reviewstream/internal/diff"
	"github.com/reviewstream/internal/engine"
	"github.com/reviewstream/internal/llm"
	"github.com/reviewstream/internal/logging"
	"github.com/reviewstream/internal/scan"
	"github.com/reviewstream/pkg/models"
)

// ReviewCommand reviews a local diff file once and prints the result. It is
// the quickest way to exercise the engine without a server or database.
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "review",
		Usage:     "Review a unified diff from a file (or stdin with -)",
		ArgsUsage: "DIFF_FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "agentic",
				Usage: "Also run the security scan over added lines",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw result JSON",
			},
		},
		Action: func(c *cli.Context) error {
			logging.Setup(false, true)

			if c.NArg() != 1 {
				return fmt.Errorf("exactly one diff file argument is required")
			}

			var raw []byte
			var err error
			if c.Args().First() == "-" {
				raw, err = io.ReadAll(os.Stdin)
			} else {
				raw, err = os.ReadFile(c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to read diff: %w", err)
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}

			result, err := reviewOnce(context.Background(), cfg, string(raw), c.Bool("agentic"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				payload, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(payload))
				return nil
			}

			printResult(result)
			return nil
		},
	}
}

func reviewOnce(ctx context.Context, cfg *config.Config, rawDiff string, agentic bool) (models.ReviewResult, error) {
	doc, err := diff.NewParser().Parse(rawDiff)
	if err != nil {
		return models.ReviewResult{}, fmt.Errorf("diff parse failed: %w", err)
	}

	client, err := llm.NewLangchainClient(llm.Config{
		ProviderType: cfg.LLM.ProviderType,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
	})
	if err != nil {
		return models.ReviewResult{}, err
	}

	eng := engine.New(client, accumulator.Config{
		ConfidenceThreshold: cfg.Review.ConfidenceThreshold,
		MaxIssuesPerFile:    cfg.Review.MaxIssuesPerFile,
	})

	prompt := engine.BuildPrompt(engine.ChangeRequestInfo{Title: "local diff"}, doc)
	stream := eng.Review(ctx, prompt)

	// Mirror the chunks to the terminal as they stream.
	sub := stream.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range sub {
			fmt.Print(chunk.Text)
		}
		fmt.Println()
	}()

	result, err := stream.Wait()
	<-done
	if err != nil {
		return models.ReviewResult{}, err
	}

	if agentic {
		scanner, serr := scan.NewSecretScanner()
		if serr != nil {
			return models.ReviewResult{}, serr
		}
		result = scan.MergeSecurityFindings(result, scanner.ScanDiff(doc))
	}

	return result, nil
}

func printResult(result models.ReviewResult) {
	fmt.Printf("\nSummary: %s\n\n", result.Summary)
	for _, issue := range result.Issues {
		confidence := ""
		if issue.Confidence != nil {
			confidence = fmt.Sprintf(" (confidence %.2f)", *issue.Confidence)
		}
		fmt.Printf("  [%s] %s:%d %s%s\n", issue.Severity, issue.File, issue.StartLine, issue.Title, confidence)
		if issue.Suggestion != "" {
			fmt.Printf("      -> %s\n", issue.Suggestion)
		}
	}
	for _, note := range result.Notes {
		fmt.Printf("  note %s:%d %s\n", note.File, note.Line, note.Text)
	}
}
