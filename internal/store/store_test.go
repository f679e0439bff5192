package store

import (
	"testing"
	"time"

	"github.com/reviewstream/pkg/models"
)

func TestIdempotencyStore_ClaimAndReplay(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)

	id, first := s.Claim("commit-sha-123", "req-1")
	if !first || id != "req-1" {
		t.Fatalf("first claim should win: id=%s first=%v", id, first)
	}

	id, first = s.Claim("commit-sha-123", "req-2")
	if first {
		t.Error("replay within TTL must not claim")
	}
	if id != "req-1" {
		t.Errorf("replay must return the original request id, got %s", id)
	}

	if got, ok := s.Lookup("commit-sha-123"); !ok || got != "req-1" {
		t.Errorf("lookup: got %s ok=%v", got, ok)
	}
}

func TestIdempotencyStore_Expiry(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Claim("key", "req-1")

	current = current.Add(2 * time.Minute)
	id, first := s.Claim("key", "req-2")
	if !first || id != "req-2" {
		t.Errorf("expired key should be claimable again: id=%s first=%v", id, first)
	}
}

func TestStatusStore_Lifecycle(t *testing.T) {
	s := NewStatusStore(time.Minute)

	if err := s.SetPending("r1"); err != nil {
		t.Fatalf("pending: %v", err)
	}
	status, ok := s.Get("r1")
	if !ok || status.State != models.StatePending {
		t.Fatalf("unexpected status after submit: %+v ok=%v", status, ok)
	}

	if err := s.SetProcessing("r1"); err != nil {
		t.Fatalf("processing: %v", err)
	}

	result := models.ReviewResult{Summary: "done", Issues: []models.Issue{{File: "a.go", StartLine: 1, Severity: "info", Title: "t"}}}
	if err := s.SetCompleted("r1", result, 1500*time.Millisecond); err != nil {
		t.Fatalf("completed: %v", err)
	}

	status, ok = s.Get("r1")
	if !ok || status.State != models.StateCompleted {
		t.Fatalf("unexpected terminal status: %+v", status)
	}
	if status.Result == nil || status.Result.Summary != "done" || len(status.Result.Issues) != 1 {
		t.Errorf("result did not roundtrip: %+v", status.Result)
	}
	if status.ProcessingTimeMs != 1500 {
		t.Errorf("processing time = %d, want 1500", status.ProcessingTimeMs)
	}
}

func TestStatusStore_TerminalStatesFrozen(t *testing.T) {
	s := NewStatusStore(time.Minute)
	s.SetPending("r1")
	s.SetProcessing("r1")
	s.SetFailed("r1", "llm timeout", time.Second)

	if err := s.SetProcessing("r1"); err == nil {
		t.Error("FAILED must not transition back to PROCESSING")
	}
	if err := s.SetCompleted("r1", models.ReviewResult{}, time.Second); err == nil {
		t.Error("FAILED must not transition to COMPLETED")
	}

	status, _ := s.Get("r1")
	if status.State != models.StateFailed || status.Error != "llm timeout" {
		t.Errorf("terminal state mutated: %+v", status)
	}
}

func TestStatusStore_NoBackwardsTransition(t *testing.T) {
	s := NewStatusStore(time.Minute)
	s.SetPending("r1")
	s.SetProcessing("r1")
	if err := s.SetPending("r1"); err == nil {
		t.Error("PROCESSING must not revert to PENDING")
	}
}

func TestStatusStore_MissingKeyReadsPending(t *testing.T) {
	s := NewStatusStore(time.Minute)
	status, ok := s.Get("ghost")
	if ok {
		t.Error("missing key should report ok=false")
	}
	if status.State != models.StatePending {
		t.Errorf("missing key should read PENDING, got %s", status.State)
	}
}

func TestStatusStore_Expiry(t *testing.T) {
	s := NewStatusStore(time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.SetPending("r1")
	current = current.Add(2 * time.Minute)

	if _, ok := s.Get("r1"); ok {
		t.Error("expired entry should read as absent")
	}
}
