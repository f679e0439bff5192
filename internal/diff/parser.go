// Package diff parses git-style unified diffs into the structured document
// the review pipeline anchors comments against.
package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/reviewstream/pkg/models"
)

// ParseError reports structurally unrecoverable diff input.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("diff parse error at line %d: %s", e.Line, e.Message)
}

// hunkHeaderRe matches "@@ -o[,oc] +n[,nc] @@"; the counts are optional and
// default to 1 per the unified-diff format.
var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parser parses git diff output into structured data.
type Parser struct{}

// NewParser creates a new diff parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a unified diff into a DiffDocument. An empty input yields an
// empty document. A ParseError is returned for structurally unrecoverable
// input: a hunk header or a "+++" line appearing before any file header, or
// two file modifications sharing the same new path.
func (p *Parser) Parse(diffText string) (*models.DiffDocument, error) {
	doc := &models.DiffDocument{}
	if strings.TrimSpace(diffText) == "" {
		return doc, nil
	}

	lines := strings.Split(diffText, "\n")

	var current *models.FileModification
	var hunk *models.DiffHunk
	seenPaths := map[string]bool{}

	flushHunk := func() {
		if hunk != nil && current != nil {
			current.Hunks = append(current.Hunks, *hunk)
		}
		hunk = nil
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			doc.Modifications = append(doc.Modifications, *current)
		}
		current = nil
	}

	for i, line := range lines {
		lineNo := i + 1

		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			oldPath, newPath := parseGitHeader(line)
			current = &models.FileModification{OldPath: oldPath, NewPath: newPath}

		case strings.HasPrefix(line, "--- "):
			if current == nil {
				// Plain unified diff without "diff --git" headers.
				current = &models.FileModification{}
			}
			if hunk == nil {
				current.OldPath = stripPathPrefix(strings.TrimPrefix(line, "--- "))
				continue
			}
			// "---" inside a hunk is content.
			hunk.Lines = append(hunk.Lines, line)

		case strings.HasPrefix(line, "+++ "):
			if current != nil && hunk == nil {
				current.NewPath = stripPathPrefix(strings.TrimPrefix(line, "+++ "))
				continue
			}
			if current == nil {
				return nil, &ParseError{Line: lineNo, Message: "file content before any file header"}
			}
			hunk.Lines = append(hunk.Lines, line)

		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				// Not a well-formed header; inside a hunk it is content,
				// elsewhere it is noise we skip.
				if hunk != nil {
					hunk.Lines = append(hunk.Lines, line)
				}
				continue
			}
			if current == nil {
				return nil, &ParseError{Line: lineNo, Message: "hunk header before any file header"}
			}
			flushHunk()
			hunk = &models.DiffHunk{
				OldStart: atoiDefault(m[1], 1),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 1),
				NewCount: atoiDefault(m[4], 1),
			}

		case strings.HasPrefix(line, `\ No newline at end of file`):
			// Marker only; the preceding line already carries the content.

		case strings.HasPrefix(line, "rename from "):
			if current != nil {
				current.OldPath = strings.TrimPrefix(line, "rename from ")
			}

		case strings.HasPrefix(line, "rename to "):
			if current != nil {
				current.NewPath = strings.TrimPrefix(line, "rename to ")
			}

		case strings.HasPrefix(line, "deleted file mode") && strings.Contains(diffTail(lines, i), "Binary files"):
			if current != nil {
				current.NewPath = "/dev/null"
			}

		default:
			if hunk == nil {
				// Git metadata (index, mode, Binary files …) between the file
				// header and the first hunk.
				continue
			}
			if line == "" && i == len(lines)-1 {
				// Trailing newline artifact from the split.
				continue
			}
			switch {
			case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"), strings.HasPrefix(line, " "):
				hunk.Lines = append(hunk.Lines, line)
			default:
				// Unknown prefix inside a hunk: preserve as context.
				hunk.Lines = append(hunk.Lines, " "+line)
			}
		}
	}
	flushFile()

	for _, mod := range doc.Modifications {
		if mod.NewPath != "" && mod.NewPath != "/dev/null" {
			if seenPaths[mod.NewPath] {
				return nil, &ParseError{Line: 0, Message: fmt.Sprintf("duplicate file path %q", mod.NewPath)}
			}
			seenPaths[mod.NewPath] = true
		}
	}

	return doc, nil
}

// parseGitHeader extracts the old and new paths from a "diff --git a/x b/y"
// line. Quoted paths are not unescaped; the b/ side is authoritative for the
// post-image.
func parseGitHeader(line string) (oldPath, newPath string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	// The common case has no spaces in paths: "a/old b/new".
	if idx := strings.Index(rest, " b/"); idx >= 0 {
		oldPath = strings.TrimPrefix(rest[:idx], "a/")
		newPath = rest[idx+3:]
		return oldPath, newPath
	}
	parts := strings.Fields(rest)
	if len(parts) == 2 {
		return stripPathPrefix(parts[0]), stripPathPrefix(parts[1])
	}
	return "", ""
}

// stripPathPrefix removes the a/ or b/ marker and handles /dev/null.
func stripPathPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "/dev/null" {
		return p
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

// diffTail joins the remaining lines after index i for lookahead checks.
func diffTail(lines []string, i int) string {
	end := i + 4
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[i:end], "\n")
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
