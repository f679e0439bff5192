// Package validator decides whether review findings can be anchored as
// inline comments in the post-image of a diff, and partitions a result into
// inline-placeable and fallback sets.
package validator

import (
	"github.com/reviewstream/pkg/models"
)

// LineAnchorable reports whether the (file, line) pair lands on an added or
// context line in the post-image of the diff. Deleted lines and lines
// outside every hunk are not anchorable.
func LineAnchorable(doc *models.DiffDocument, file string, line int) bool {
	if doc == nil || line < 1 {
		return false
	}
	mod := doc.Modification(file)
	if mod == nil {
		return false
	}

	for _, hunk := range mod.Hunks {
		// Track the current post-image line while walking the hunk. Only
		// "+" and " " lines occupy post-image positions.
		newLine := hunk.NewStart
		for _, l := range hunk.Lines {
			if len(l) == 0 {
				continue
			}
			switch l[0] {
			case '+', ' ':
				if newLine == line {
					return true
				}
				newLine++
			case '-':
				// deleted lines do not advance the post-image counter
			default:
				// parser normalises unknown prefixes to context; anything
				// else is treated the same way
				if newLine == line {
					return true
				}
				newLine++
			}
		}
	}
	return false
}

// SplitResult partitions one result's findings into inline-valid and
// fallback sets. The two views never share a finding and their union is the
// input.
type SplitResult struct {
	Valid   models.ReviewResult
	Invalid models.ReviewResult
}

// Split routes each issue and note by anchorability. Splitting never fails:
// un-anchorable findings are not errors, they belong in the fallback
// summary comment.
func Split(doc *models.DiffDocument, result models.ReviewResult) SplitResult {
	valid := result.WithIssues(nil).WithNotes(nil)
	invalid := result.WithIssues(nil).WithNotes(nil)

	for _, issue := range result.Issues {
		if LineAnchorable(doc, issue.File, issue.StartLine) {
			valid.Issues = append(valid.Issues, issue)
		} else {
			invalid.Issues = append(invalid.Issues, issue)
		}
	}
	for _, note := range result.Notes {
		if LineAnchorable(doc, note.File, note.Line) {
			valid.Notes = append(valid.Notes, note)
		} else {
			invalid.Notes = append(invalid.Notes, note)
		}
	}

	return SplitResult{Valid: valid, Invalid: invalid}
}
