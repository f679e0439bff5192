package models

import "testing"

func TestSeverityPriority_KnownSeverities(t *testing.T) {
	cases := map[string]Priority{
		"critical":   PriorityCritical,
		"blocker":    PriorityCritical,
		"CRITICAL":   PriorityCritical,
		"error":      PriorityHigh,
		"high":       PriorityHigh,
		"warning":    PriorityMedium,
		"medium":     PriorityMedium,
		"info":       PriorityLow,
		"low":        PriorityLow,
		"suggestion": PriorityLow,
	}

	for severity, want := range cases {
		if got := SeverityPriority(severity); got != want {
			t.Errorf("SeverityPriority(%q) = %v, want %v", severity, got, want)
		}
	}
}

func TestSeverityPriority_Total(t *testing.T) {
	// Every string, including empty and garbage, must land in exactly one
	// bucket. Unknowns default to MEDIUM.
	for _, severity := range []string{"", "super-critical", "???", "  ", "Major"} {
		got := SeverityPriority(severity)
		if got < PriorityCritical || got > PriorityLow {
			t.Errorf("SeverityPriority(%q) = %v, outside the four levels", severity, got)
		}
	}

	if got := SeverityPriority(""); got != PriorityMedium {
		t.Errorf("empty severity should map to MEDIUM, got %v", got)
	}
	if got := SeverityPriority("whatever"); got != PriorityMedium {
		t.Errorf("unknown severity should map to MEDIUM, got %v", got)
	}
}

func TestRecognizedSeverity(t *testing.T) {
	for _, severity := range []string{"critical", "major", "minor", "info", "warning", "error", "blocker", "low", "high", "medium", "suggestion"} {
		if !RecognizedSeverity(severity) {
			t.Errorf("expected %q to be recognized", severity)
		}
	}
	if RecognizedSeverity("super-critical") {
		t.Error("super-critical should not be recognized")
	}
}

func TestPriorityString(t *testing.T) {
	if PriorityCritical.String() != "CRITICAL" || PriorityLow.String() != "LOW" {
		t.Error("unexpected priority names")
	}
}
