package models

import (
	"strconv"
	"strings"
)

// FindingStats summarises an accumulated finding set for dashboards and
// publish decisions.
type FindingStats struct {
	TotalIssues       int            `json:"total_issues"`
	TotalNotes        int            `json:"total_notes"`
	BySeverity        map[string]int `json:"by_severity"`
	ByPriority        map[string]int `json:"by_priority"`
	DuplicatesDropped int            `json:"duplicates_dropped"`
	OverallConfidence float64        `json:"overall_confidence"`
	HasCritical       bool           `json:"has_critical"`
	HasSecurityIssue  bool           `json:"has_security_issue"`
}

// Stats computes aggregate statistics over the result. Duplicates are
// counted by (file, line, title) identity; the overall confidence is the
// mean of the confidences that are present, 1.0 when none are.
func (r ReviewResult) Stats() FindingStats {
	stats := FindingStats{
		TotalIssues: len(r.Issues),
		TotalNotes:  len(r.Notes),
		BySeverity:  map[string]int{},
		ByPriority:  map[string]int{},
	}

	seen := map[string]bool{}
	confidenceSum := 0.0
	confidenceCount := 0

	for _, issue := range r.Issues {
		sev := normalizeSeverity(issue.Severity)
		stats.BySeverity[sev]++
		prio := SeverityPriority(issue.Severity)
		stats.ByPriority[prio.String()]++

		if prio == PriorityCritical {
			stats.HasCritical = true
		}
		if looksSecurityRelated(issue.Title) {
			stats.HasSecurityIssue = true
		}

		key := issue.File + "\x00" + strconv.Itoa(issue.StartLine) + "\x00" + issue.Title
		if seen[key] {
			stats.DuplicatesDropped++
		}
		seen[key] = true

		if issue.Confidence != nil {
			confidenceSum += *issue.Confidence
			confidenceCount++
		}
	}

	if confidenceCount > 0 {
		stats.OverallConfidence = confidenceSum / float64(confidenceCount)
	} else {
		stats.OverallConfidence = 1.0
	}

	return stats
}

func looksSecurityRelated(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range []string{"security", "injection", "secret", "credential", "xss", "vulnerab"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
