package diff

import (
	"strings"
	"testing"
)

const simpleDiff = `diff --git a/main.go b/main.go
index 83db48f..bf269f4 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
+import "fmt"

 func main() {
`

func TestParse_SingleFile(t *testing.T) {
	doc, err := NewParser().Parse(simpleDiff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Modifications) != 1 {
		t.Fatalf("expected 1 modification, got %d", len(doc.Modifications))
	}

	mod := doc.Modifications[0]
	if mod.OldPath != "main.go" || mod.NewPath != "main.go" {
		t.Errorf("unexpected paths: old=%q new=%q", mod.OldPath, mod.NewPath)
	}
	if len(mod.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(mod.Hunks))
	}

	h := mod.Hunks[0]
	if h.OldStart != 1 || h.OldCount != 3 || h.NewStart != 1 || h.NewCount != 4 {
		t.Errorf("unexpected hunk header: %+v", h)
	}
	if h.AddedCount() != 1 {
		t.Errorf("expected 1 added line, got %d", h.AddedCount())
	}
}

func TestParse_EmptyInput(t *testing.T) {
	doc, err := NewParser().Parse("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Modifications) != 0 {
		t.Errorf("expected empty document, got %d modifications", len(doc.Modifications))
	}
}

func TestParse_MissingHunkCounts(t *testing.T) {
	input := "diff --git a/x.txt b/x.txt\n--- a/x.txt\n+++ b/x.txt\n@@ -1 +1 @@\n-old\n+new\n"
	doc, err := NewParser().Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := doc.Modifications[0].Hunks[0]
	if h.OldCount != 1 || h.NewCount != 1 {
		t.Errorf("missing counts should default to 1, got %+v", h)
	}
}

func TestParse_Rename(t *testing.T) {
	input := strings.Join([]string{
		"diff --git a/old/name.go b/new/name.go",
		"similarity index 92%",
		"rename from old/name.go",
		"rename to new/name.go",
		"--- a/old/name.go",
		"+++ b/new/name.go",
		"@@ -10,2 +10,3 @@",
		" ctx",
		"+added",
		" ctx2",
		"",
	}, "\n")

	doc, err := NewParser().Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mod := doc.Modifications[0]
	if mod.OldPath != "old/name.go" || mod.NewPath != "new/name.go" {
		t.Errorf("rename paths wrong: %+v", mod)
	}
}

func TestParse_NoNewlineMarkerSkipped(t *testing.T) {
	input := "diff --git a/f b/f\n--- a/f\n+++ b/f\n@@ -1,1 +1,1 @@\n-old\n+new\n\\ No newline at end of file\n"
	doc, err := NewParser().Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := doc.Modifications[0].Hunks[0]
	for _, line := range h.Lines {
		if strings.HasPrefix(line, `\`) {
			t.Errorf("no-newline marker leaked into hunk lines: %q", line)
		}
	}
	if len(h.Lines) != 2 {
		t.Errorf("expected 2 content lines, got %d: %v", len(h.Lines), h.Lines)
	}
}

func TestParse_HunkBeforeFileHeaderFails(t *testing.T) {
	_, err := NewParser().Parse("@@ -1,2 +1,2 @@\n context\n")
	if err == nil {
		t.Fatal("expected parse error for hunk before file header")
	}
	if !strings.Contains(err.Error(), "hunk header before any file header") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParse_MultipleFilesAndHunks(t *testing.T) {
	input := strings.Join([]string{
		"diff --git a/a.go b/a.go",
		"--- a/a.go",
		"+++ b/a.go",
		"@@ -1,2 +1,3 @@",
		" one",
		"+two",
		" three",
		"@@ -10,1 +11,2 @@",
		" ten",
		"+eleven",
		"diff --git a/b.go b/b.go",
		"--- a/b.go",
		"+++ b/b.go",
		"@@ -5,2 +5,2 @@",
		"-x",
		"+y",
		" z",
		"",
	}, "\n")

	doc, err := NewParser().Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Modifications) != 2 {
		t.Fatalf("expected 2 modifications, got %d", len(doc.Modifications))
	}
	if len(doc.Modifications[0].Hunks) != 2 {
		t.Errorf("expected 2 hunks in a.go, got %d", len(doc.Modifications[0].Hunks))
	}
	if doc.Modification("b.go") == nil {
		t.Error("lookup by new path failed")
	}
	if doc.Modification("missing.go") != nil {
		t.Error("lookup for untouched path should be nil")
	}
}

func TestParse_UnknownPrefixPreservedAsContext(t *testing.T) {
	input := "diff --git a/f b/f\n--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n context\n~weird\n"
	doc, err := NewParser().Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := doc.Modifications[0].Hunks[0]
	if len(h.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", h.Lines)
	}
	if h.Lines[1] != " ~weird" {
		t.Errorf("unknown prefix should be preserved as context, got %q", h.Lines[1])
	}
}

func TestParse_DuplicatePathsRejected(t *testing.T) {
	input := strings.Join([]string{
		"diff --git a/a.go b/a.go",
		"--- a/a.go",
		"+++ b/a.go",
		"@@ -1,1 +1,1 @@",
		"-x",
		"+y",
		"diff --git a/a.go b/a.go",
		"--- a/a.go",
		"+++ b/a.go",
		"@@ -2,1 +2,1 @@",
		"-p",
		"+q",
		"",
	}, "\n")
	if _, err := NewParser().Parse(input); err == nil {
		t.Error("expected duplicate path error")
	}
}
