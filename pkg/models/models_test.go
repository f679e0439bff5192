package models

import "testing"

func floatPtr(f float64) *float64 { return &f }

func TestParseRepositoryID_GitHub(t *testing.T) {
	repo, err := ParseRepositoryID(ProviderGitHub, "octocat/hello-world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.Owner != "octocat" || repo.Repo != "hello-world" {
		t.Errorf("unexpected parse: %+v", repo)
	}
	if repo.DisplayName() != "octocat/hello-world" {
		t.Errorf("unexpected display name: %s", repo.DisplayName())
	}

	if _, err := ParseRepositoryID(ProviderGitHub, "just-one-segment"); err == nil {
		t.Error("expected error for missing repo segment")
	}
	if _, err := ParseRepositoryID(ProviderGitHub, ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestParseRepositoryID_GitLab(t *testing.T) {
	repo, err := ParseRepositoryID(ProviderGitLab, "group/subgroup/project")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.ProjectID != "group/subgroup/project" {
		t.Errorf("unexpected project id: %s", repo.ProjectID)
	}
	if repo.PathEscaped() != "group%2Fsubgroup%2Fproject" {
		t.Errorf("unexpected escaped path: %s", repo.PathEscaped())
	}

	numeric, err := ParseRepositoryID(ProviderGitLab, "4242")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if numeric.ProjectID != "4242" {
		t.Errorf("numeric id should pass through, got %s", numeric.ProjectID)
	}
}

func TestNewChangeRequestID(t *testing.T) {
	if _, err := NewChangeRequestID(ProviderGitHub, 0); err == nil {
		t.Error("expected error for zero number")
	}
	if _, err := NewChangeRequestID(ProviderGitLab, -3); err == nil {
		t.Error("expected error for negative number")
	}

	cr, err := NewChangeRequestID(ProviderGitLab, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cr.String() != "!7" {
		t.Errorf("gitlab change request renders as %s, want !7", cr.String())
	}

	pr, _ := NewChangeRequestID(ProviderGitHub, 7)
	if pr.String() != "#7" {
		t.Errorf("github change request renders as %s, want #7", pr.String())
	}
}

func TestParseReviewMode(t *testing.T) {
	cases := map[string]ReviewMode{
		"diff":    ModeDiff,
		"DIFF":    ModeDiff,
		"agentic": ModeAgentic,
		"AgEnTiC": ModeAgentic,
		"":        ModeDiff,
		"unknown": ModeDiff,
	}
	for in, want := range cases {
		if got := ParseReviewMode(in); got != want {
			t.Errorf("ParseReviewMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestState_Terminal(t *testing.T) {
	if StatePending.Terminal() || StateProcessing.Terminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Error("completed/failed must be terminal")
	}
}

func TestIssueBlocking(t *testing.T) {
	if !(Issue{Severity: "critical"}).Blocking() {
		t.Error("critical should block")
	}
	if !(Issue{Severity: "Major"}).Blocking() {
		t.Error("major should block (case-insensitive)")
	}
	if (Issue{Severity: "warning"}).Blocking() {
		t.Error("warning should not block")
	}
}

func TestReviewResultQueries(t *testing.T) {
	result := ReviewResult{
		Summary: "two files touched",
		Issues: []Issue{
			{File: "a.go", StartLine: 3, Severity: "critical", Title: "nil deref"},
			{File: "b.go", StartLine: 9, Severity: "info", Title: "naming"},
			{File: "a.go", StartLine: 20, Severity: "Critical", Title: "race"},
		},
	}

	if got := len(result.IssuesForFile("a.go")); got != 2 {
		t.Errorf("IssuesForFile(a.go) = %d issues, want 2", got)
	}
	if got := len(result.IssuesWithSeverity("CRITICAL")); got != 2 {
		t.Errorf("IssuesWithSeverity(CRITICAL) = %d, want 2", got)
	}
}

func TestStats(t *testing.T) {
	result := ReviewResult{
		Issues: []Issue{
			{File: "a.go", Severity: "critical", Title: "SQL injection risk", Confidence: floatPtr(0.9)},
			{File: "a.go", Severity: "critical", Title: "SQL injection risk", Confidence: floatPtr(0.8)},
			{File: "b.go", Severity: "info", Title: "style"},
		},
		Notes: []Note{{File: "c.go", Line: 1, Text: "ok"}},
	}

	stats := result.Stats()
	if stats.TotalIssues != 3 || stats.TotalNotes != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if !stats.HasCritical {
		t.Error("expected HasCritical")
	}
	if !stats.HasSecurityIssue {
		t.Error("expected HasSecurityIssue from injection title")
	}
	if stats.DuplicatesDropped != 1 {
		t.Errorf("expected 1 duplicate, got %d", stats.DuplicatesDropped)
	}
	want := (0.9 + 0.8) / 2
	if stats.OverallConfidence < want-0.001 || stats.OverallConfidence > want+0.001 {
		t.Errorf("unexpected overall confidence: %f", stats.OverallConfidence)
	}
}

func TestStats_NoConfidences(t *testing.T) {
	stats := (ReviewResult{Issues: []Issue{{File: "a.go", Severity: "info", Title: "x"}}}).Stats()
	if stats.OverallConfidence != 1.0 {
		t.Errorf("confidence with no reports should be 1.0, got %f", stats.OverallConfidence)
	}
}
