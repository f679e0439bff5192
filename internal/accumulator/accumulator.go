// Package accumulator folds streamed review chunks into the final
// structured result. The model is expected to embed one JSON document in
// the concatenated stream; everything around it (markdown fences, prose
// preamble, trailing commentary) is stripped before parsing.
package accumulator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reviewstream/pkg/models"
)

// Config tunes the post-parse filters.
type Config struct {
	// ConfidenceThreshold drops issues whose reported confidence is below
	// it. Issues without a confidence always pass.
	ConfidenceThreshold float64
	// MaxIssuesPerFile caps the issues kept per file after sorting by
	// priority and confidence.
	MaxIssuesPerFile int
}

// DefaultConfig mirrors the shipped defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		MaxIssuesPerFile:    10,
	}
}

// wire format of the model's JSON document
type wireIssue struct {
	File         string   `json:"file"`
	Line         int      `json:"line"`
	Severity     string   `json:"severity"`
	Title        string   `json:"title"`
	Suggestion   string   `json:"suggestion"`
	Confidence   *float64 `json:"confidence"`
	SuggestedFix string   `json:"suggested_fix"`
}

type wireNote struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type wireResult struct {
	Summary string      `json:"summary"`
	Issues  []wireIssue `json:"issues"`
	Notes   []wireNote  `json:"non_blocking_notes"`
}

// Accumulate folds a chunk sequence into a ReviewResult. It is a pure
// function of its inputs: feeding the same sequence twice, or the same text
// re-split at different chunk boundaries, yields the same result.
func Accumulate(chunks []models.ReviewChunk, cfg Config) (models.ReviewResult, error) {
	if chunks == nil {
		return models.ReviewResult{}, &models.InvalidInputError{Message: "chunk sequence is nil"}
	}

	var buf strings.Builder
	for _, chunk := range chunks {
		buf.WriteString(chunk.Text)
	}
	raw := buf.String()

	jsonStr := ExtractJSONObject(raw)
	if jsonStr == "" {
		return models.ReviewResult{}, &models.NonJsonResponseError{
			Hint: "is the model configured for structured output?",
		}
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		// The model frequently emits almost-JSON (trailing commas,
		// truncated tail). Run it through the repair library before
		// giving up.
		repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
		if repairErr != nil {
			return models.ReviewResult{}, &models.JsonValidationError{Field: "$", Message: err.Error()}
		}
		if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
			return models.ReviewResult{}, &models.JsonValidationError{Field: "$", Message: err.Error()}
		}
	}

	result, err := validate(wire)
	if err != nil {
		return models.ReviewResult{}, err
	}
	result.RawLLMResponse = raw

	result = result.WithIssues(applyConfidenceFilter(result.Issues, cfg.ConfidenceThreshold))
	result = result.WithIssues(applyPerFileCap(result.Issues, cfg.MaxIssuesPerFile))

	return result, nil
}

func validate(wire wireResult) (models.ReviewResult, error) {
	result := models.ReviewResult{Summary: wire.Summary}

	for i, wi := range wire.Issues {
		if wi.File == "" {
			return models.ReviewResult{}, &models.JsonValidationError{
				Field:   fmt.Sprintf("issues[%d].file", i),
				Message: "file is required",
			}
		}
		if wi.Line < 1 {
			return models.ReviewResult{}, &models.JsonValidationError{
				Field:   fmt.Sprintf("issues[%d].line", i),
				Message: fmt.Sprintf("line must be >= 1, got %d", wi.Line),
			}
		}
		if wi.Severity != "" && !models.RecognizedSeverity(wi.Severity) {
			return models.ReviewResult{}, &models.JsonValidationError{
				Field:   fmt.Sprintf("issues[%d].severity", i),
				Message: fmt.Sprintf("unrecognized severity %q", wi.Severity),
			}
		}
		if wi.Confidence != nil && (*wi.Confidence < 0 || *wi.Confidence > 1) {
			return models.ReviewResult{}, &models.JsonValidationError{
				Field:   fmt.Sprintf("issues[%d].confidence", i),
				Message: fmt.Sprintf("confidence must be in [0,1], got %f", *wi.Confidence),
			}
		}
		result.Issues = append(result.Issues, models.Issue{
			File:         wi.File,
			StartLine:    wi.Line,
			Severity:     wi.Severity,
			Title:        wi.Title,
			Suggestion:   wi.Suggestion,
			Confidence:   wi.Confidence,
			SuggestedFix: wi.SuggestedFix,
		})
	}

	for i, wn := range wire.Notes {
		if wn.File == "" {
			return models.ReviewResult{}, &models.JsonValidationError{
				Field:   fmt.Sprintf("non_blocking_notes[%d].file", i),
				Message: "file is required",
			}
		}
		if wn.Line < 1 {
			return models.ReviewResult{}, &models.JsonValidationError{
				Field:   fmt.Sprintf("non_blocking_notes[%d].line", i),
				Message: fmt.Sprintf("line must be >= 1, got %d", wn.Line),
			}
		}
		result.Notes = append(result.Notes, models.Note{File: wn.File, Line: wn.Line, Text: wn.Text})
	}

	return result, nil
}

func applyConfidenceFilter(issues []models.Issue, threshold float64) []models.Issue {
	if threshold <= 0 {
		return issues
	}
	var kept []models.Issue
	for _, issue := range issues {
		if issue.Confidence != nil && *issue.Confidence < threshold {
			continue
		}
		kept = append(kept, issue)
	}
	return kept
}

// applyPerFileCap keeps at most max issues per file, sorted by priority
// ordinal ascending then confidence descending. Files keep their order of
// first appearance.
func applyPerFileCap(issues []models.Issue, max int) []models.Issue {
	if max <= 0 || len(issues) == 0 {
		return issues
	}

	var fileOrder []string
	byFile := map[string][]models.Issue{}
	for _, issue := range issues {
		if _, ok := byFile[issue.File]; !ok {
			fileOrder = append(fileOrder, issue.File)
		}
		byFile[issue.File] = append(byFile[issue.File], issue)
	}

	var out []models.Issue
	for _, file := range fileOrder {
		group := byFile[file]
		sort.SliceStable(group, func(a, b int) bool {
			pa := models.SeverityPriority(group[a].Severity)
			pb := models.SeverityPriority(group[b].Severity)
			if pa != pb {
				return pa < pb
			}
			return confidenceOf(group[a]) > confidenceOf(group[b])
		})
		if len(group) > max {
			group = group[:max]
		}
		out = append(out, group...)
	}
	return out
}

// confidenceOf treats a missing confidence as lowest for ordering so
// explicit high-confidence findings surface first.
func confidenceOf(issue models.Issue) float64 {
	if issue.Confidence == nil {
		return -1
	}
	return *issue.Confidence
}

// ExtractJSONObject locates the largest balanced {...} object in mixed
// text, stripping markdown code fences and any prose around it. Returns ""
// when no object can be found.
func ExtractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// Prefer the contents of a fenced code block when one exists.
	if strings.Contains(raw, "```") {
		if inner := extractFromFences(raw); inner != "" {
			raw = inner
		}
	}

	start := strings.Index(raw, "{")
	if start == -1 {
		return ""
	}

	// Scan for the matching close brace, respecting strings and escapes.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}

	// Unbalanced: return from the first brace onward and let repair close
	// the structures.
	return raw[start:]
}

func extractFromFences(raw string) string {
	lines := strings.Split(raw, "\n")
	var inner []string
	inBlock := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			inner = append(inner, line)
		}
	}
	return strings.TrimSpace(strings.Join(inner, "\n"))
}
