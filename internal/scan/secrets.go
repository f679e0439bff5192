// Package scan runs the agentic pipeline's static security pass over a
// diff. Added lines are fed through the gitleaks detector and every hit
// becomes a critical-severity issue merged into the review result.
package scan

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/reviewstream/pkg/models"
)

// SecretScanner detects leaked credentials in added diff lines.
type SecretScanner struct {
	detector *detect.Detector
}

// NewSecretScanner builds a scanner with the default gitleaks ruleset.
func NewSecretScanner() (*SecretScanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks default config: %w", err)
	}
	return &SecretScanner{detector: detector}, nil
}

// ScanDiff walks every hunk's added lines and returns one issue per secret
// hit, anchored to the post-image line the secret lands on.
func (s *SecretScanner) ScanDiff(doc *models.DiffDocument) []models.Issue {
	var issues []models.Issue
	if doc == nil {
		return issues
	}

	confidence := 0.95

	for _, mod := range doc.Modifications {
		if mod.NewPath == "/dev/null" {
			continue
		}
		for _, hunk := range mod.Hunks {
			newLine := hunk.NewStart
			for _, line := range hunk.Lines {
				if len(line) == 0 {
					continue
				}
				switch line[0] {
				case '+':
					content := line[1:]
					findings := s.detector.Detect(detect.Fragment{
						Raw:      content,
						FilePath: mod.NewPath,
					})
					for _, finding := range findings {
						issues = append(issues, models.Issue{
							File:       mod.NewPath,
							StartLine:  newLine,
							Severity:   "critical",
							Title:      fmt.Sprintf("Secret detected: %s", finding.RuleID),
							Suggestion: "Remove the credential from the change and rotate it; load it from configuration or a secret store instead.",
							Confidence: &confidence,
						})
					}
					newLine++
				case '-':
					// deleted lines are not part of the post-image
				default:
					newLine++
				}
			}
		}
	}

	if len(issues) > 0 {
		log.Info().Int("count", len(issues)).Msg("secret scan found leaked credentials")
	}
	return issues
}

// MergeSecurityFindings appends scan issues to the model's result,
// skipping hits the model already reported at the same file and line.
func MergeSecurityFindings(result models.ReviewResult, scanIssues []models.Issue) models.ReviewResult {
	if len(scanIssues) == 0 {
		return result
	}

	existing := map[string]bool{}
	for _, issue := range result.Issues {
		existing[fmt.Sprintf("%s:%d", issue.File, issue.StartLine)] = true
	}

	merged := make([]models.Issue, len(result.Issues))
	copy(merged, result.Issues)
	for _, issue := range scanIssues {
		if existing[fmt.Sprintf("%s:%d", issue.File, issue.StartLine)] {
			continue
		}
		merged = append(merged, issue)
	}
	return result.WithIssues(merged)
}
