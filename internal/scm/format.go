package scm

import (
	"fmt"
	"strings"

	"github.com/reviewstream/internal/validator"
	"github.com/reviewstream/pkg/models"
)

// FormatInlineComment renders the markdown body for one inline issue
// comment. The provider selects the suggestion-block dialect.
func FormatInlineComment(provider models.Provider, issue models.Issue) string {
	blocking := "non-blocking"
	if issue.Blocking() {
		blocking = "blocking"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "issue (%s), %s: %s\n", blocking, strings.ToLower(issue.Severity), issue.Title)

	if issue.Suggestion != "" {
		fmt.Fprintf(&b, "\n**Recommendation:** %s\n", issue.Suggestion)
	}

	if issue.HighConfidence() && issue.SuggestedFix != "" {
		b.WriteString("\n")
		b.WriteString(suggestionBlock(provider, issue.SuggestedFix))
	}

	return b.String()
}

// suggestionBlock renders the platform's native apply-this-fix fence. The
// fix replaces the anchored line only.
func suggestionBlock(provider models.Provider, fix string) string {
	fix = strings.TrimRight(fix, "\n")
	if provider == models.ProviderGitLab {
		// suggestion:-A+B replaces A lines above through B lines below the
		// anchor; a single-line replacement is -0+0.
		return fmt.Sprintf("```suggestion:-0+0\n%s\n```\n", fix)
	}
	return fmt.Sprintf("```suggestion\n%s\n```\n", fix)
}

// FormatInlineNote renders the body for an anchored non-blocking note.
func FormatInlineNote(note models.Note) string {
	return fmt.Sprintf("note: %s", note.Text)
}

// FormatFallbackComment collects findings that could not be anchored into
// one markdown document.
func FormatFallbackComment(invalid models.ReviewResult) string {
	var b strings.Builder
	b.WriteString("## Additional Review Findings\n\n")
	b.WriteString("The following findings reference lines outside the visible diff:\n\n")

	for _, issue := range invalid.Issues {
		fmt.Fprintf(&b, "- **%s:%d** (%s): %s", issue.File, issue.StartLine, strings.ToLower(issue.Severity), issue.Title)
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, " — %s", issue.Suggestion)
		}
		b.WriteString("\n")
	}
	for _, note := range invalid.Notes {
		fmt.Fprintf(&b, "- %s:%d: %s\n", note.File, note.Line, note.Text)
	}

	return b.String()
}

// FormatSummaryComment renders the top-level review summary.
func FormatSummaryComment(result models.ReviewResult) string {
	stats := result.Stats()
	var b strings.Builder
	b.WriteString("## Code Review\n\n")
	b.WriteString(result.Summary)
	fmt.Fprintf(&b, "\n\n%d issue(s), %d note(s).", stats.TotalIssues, stats.TotalNotes)
	if stats.HasCritical {
		b.WriteString(" Contains critical findings.")
	}
	return b.String()
}

// InlinePoster posts one anchored comment; implemented per provider.
type InlinePoster func(file string, line int, body string) error

// SummaryPoster posts one top-level comment; implemented per provider.
type SummaryPoster func(body string) error

// RunPublish is the provider-independent publication loop: split the result
// against the diff, post valid findings inline in issue order, then collect
// the invalid remainder into a single fallback comment. Per-finding errors
// accumulate; they do not stop the loop.
func RunPublish(provider models.Provider, doc *models.DiffDocument, result models.ReviewResult, postInline InlinePoster, postSummary SummaryPoster) (PublishOutcome, error) {
	outcome := PublishOutcome{}
	split := validator.Split(doc, result)

	for _, issue := range split.Valid.Issues {
		body := FormatInlineComment(provider, issue)
		if err := postInline(issue.File, issue.StartLine, body); err != nil {
			outcome.Errors = append(outcome.Errors, FindingError{File: issue.File, Line: issue.StartLine, Err: err})
			continue
		}
		outcome.InlineComments++
	}
	for _, note := range split.Valid.Notes {
		if err := postInline(note.File, note.Line, FormatInlineNote(note)); err != nil {
			outcome.Errors = append(outcome.Errors, FindingError{File: note.File, Line: note.Line, Err: err})
			continue
		}
		outcome.InlineComments++
	}

	outcome.FallbackItems = len(split.Invalid.Issues) + len(split.Invalid.Notes)
	if outcome.FallbackItems > 0 {
		if err := postSummary(FormatFallbackComment(split.Invalid)); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}
