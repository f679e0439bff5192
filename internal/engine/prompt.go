package engine

import (
	"fmt"
	"strings"

	"github.com/reviewstream/pkg/models"
)

// ChangeRequestInfo is the metadata shown to the model alongside the diff.
type ChangeRequestInfo struct {
	Title       string
	Description string
	Author      string
	BaseBranch  string
	HeadBranch  string
	Labels      []string
}

const promptHeader = `You are a senior engineer reviewing a code change. Analyse the diff below
and respond with EXACTLY ONE JSON object, no prose before or after, using
this schema:

{
  "summary": "<one paragraph describing the change and overall assessment>",
  "issues": [
    {
      "file": "<path as it appears after the change>",
      "line": <post-image line number the issue is on>,
      "severity": "critical|major|minor|info|warning|error|blocker|low|high|medium|suggestion",
      "title": "<short issue title>",
      "suggestion": "<how to fix it>",
      "confidence": <0.0 to 1.0>,
      "suggested_fix": "<replacement source line(s), only when you are sure>"
    }
  ],
  "non_blocking_notes": [
    {"file": "<path>", "line": <line>, "text": "<minor remark>"}
  ]
}

Line numbers refer to the NEW column of the annotated diff. Only comment on
lines that appear in the diff.`

// BuildPrompt renders the full review prompt: instructions, change-request
// metadata, then every file's hunks annotated with an OLD | NEW | CONTENT
// line-number table so the model can anchor issues precisely.
func BuildPrompt(info ChangeRequestInfo, doc *models.DiffDocument) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n")

	if info.Title != "" {
		fmt.Fprintf(&b, "Change request: %s\n", info.Title)
	}
	if info.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", info.Author)
	}
	if info.BaseBranch != "" || info.HeadBranch != "" {
		fmt.Fprintf(&b, "Branches: %s <- %s\n", info.BaseBranch, info.HeadBranch)
	}
	if len(info.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(info.Labels, ", "))
	}
	if info.Description != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", info.Description)
	}

	b.WriteString("\n## Code Changes\n")
	for _, mod := range doc.Modifications {
		if mod.OldPath != mod.NewPath && mod.OldPath != "" {
			fmt.Fprintf(&b, "\n### %s (renamed from %s)\n", mod.NewPath, mod.OldPath)
		} else {
			fmt.Fprintf(&b, "\n### %s\n", mod.NewPath)
		}
		for _, hunk := range mod.Hunks {
			b.WriteString(formatHunkWithLineNumbers(hunk))
		}
	}

	return b.String()
}

// formatHunkWithLineNumbers renders a hunk as an OLD | NEW | CONTENT table.
// This is what lets the model report post-image line numbers the validator
// will accept.
func formatHunkWithLineNumbers(hunk models.DiffHunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", hunk.OldStart, hunk.OldCount, hunk.NewStart, hunk.NewCount)
	b.WriteString("OLD | NEW | CONTENT\n")
	b.WriteString("----|-----|--------\n")

	oldLine := hunk.OldStart
	newLine := hunk.NewStart

	for _, line := range hunk.Lines {
		if len(line) == 0 {
			continue
		}
		prefix := line[:1]
		content := line[1:]

		var oldNum, newNum string
		switch prefix {
		case "+":
			oldNum = "   "
			newNum = fmt.Sprintf("%3d", newLine)
			newLine++
		case "-":
			oldNum = fmt.Sprintf("%3d", oldLine)
			newNum = "   "
			oldLine++
		default:
			oldNum = fmt.Sprintf("%3d", oldLine)
			newNum = fmt.Sprintf("%3d", newLine)
			oldLine++
			newLine++
		}
		fmt.Fprintf(&b, "%s | %s | %s%s\n", oldNum, newNum, prefix, content)
	}

	return b.String()
}
