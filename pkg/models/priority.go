package models

import "strings"

// Priority buckets severities into four ordered levels. Lower ordinal means
// more urgent.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// String returns the canonical name of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// recognizedSeverities is the closed set the accumulator accepts from the
// model.
var recognizedSeverities = map[string]bool{
	"critical":   true,
	"major":      true,
	"minor":      true,
	"info":       true,
	"warning":    true,
	"error":      true,
	"blocker":    true,
	"low":        true,
	"high":       true,
	"medium":     true,
	"suggestion": true,
}

// RecognizedSeverity reports whether the severity string belongs to the
// accepted set (case-insensitive).
func RecognizedSeverity(severity string) bool {
	return recognizedSeverities[normalizeSeverity(severity)]
}

// SeverityPriority maps any severity string, including empty and unknown
// ones, to exactly one priority level.
func SeverityPriority(severity string) Priority {
	switch normalizeSeverity(severity) {
	case "critical", "blocker":
		return PriorityCritical
	case "error", "high":
		return PriorityHigh
	case "info", "low", "suggestion":
		return PriorityLow
	default:
		// warning, medium, major, minor, empty, and anything unrecognised
		return PriorityMedium
	}
}

func normalizeSeverity(severity string) string {
	return strings.ToLower(strings.TrimSpace(severity))
}
