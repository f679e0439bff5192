package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewstream/pkg/models"
)

// StatusStore tracks async request lifecycles. Entries are flat string
// maps (status, result, error, processingTimeMs) with a per-entry TTL, the
// way a Redis-hash-backed store would hold them. Writes are single-writer
// per key (the owning worker); reads are cheap and may observe a state one
// write behind.
type StatusStore struct {
	mu      sync.RWMutex
	entries map[string]*statusEntry
	ttl     time.Duration
	now     func() time.Time
}

type statusEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// NewStatusStore creates a store whose entries expire ttl after their last
// write.
func NewStatusStore(ttl time.Duration) *StatusStore {
	s := &StatusStore{
		entries: map[string]*statusEntry{},
		ttl:     ttl,
		now:     time.Now,
	}
	go s.janitor()
	return s
}

// SetPending records a freshly submitted request.
func (s *StatusStore) SetPending(requestID string) error {
	return s.transition(requestID, models.StatePending, map[string]string{})
}

// SetProcessing marks the request as picked up by a worker.
func (s *StatusStore) SetProcessing(requestID string) error {
	return s.transition(requestID, models.StateProcessing, map[string]string{})
}

// SetCompleted stores the final result and processing time.
func (s *StatusStore) SetCompleted(requestID string, result models.ReviewResult, elapsed time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return s.transition(requestID, models.StateCompleted, map[string]string{
		"result":           string(payload),
		"processingTimeMs": strconv.FormatInt(elapsed.Milliseconds(), 10),
	})
}

// SetFailed stores the failure reason.
func (s *StatusStore) SetFailed(requestID string, reason string, elapsed time.Duration) error {
	return s.transition(requestID, models.StateFailed, map[string]string{
		"error":            reason,
		"processingTimeMs": strconv.FormatInt(elapsed.Milliseconds(), 10),
	})
}

// transition enforces the forward-only state machine: terminal states are
// frozen, and a state never moves backwards.
func (s *StatusStore) transition(requestID string, next models.RequestState, extra map[string]string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[requestID]
	if ok && entry.expiresAt.After(now) {
		current := models.RequestState(entry.fields["status"])
		if current.Terminal() {
			return fmt.Errorf("request %s is already %s", requestID, current)
		}
		if rank(next) < rank(current) {
			return fmt.Errorf("request %s cannot move from %s back to %s", requestID, current, next)
		}
	} else {
		entry = &statusEntry{fields: map[string]string{}}
		s.entries[requestID] = entry
	}

	entry.fields["status"] = string(next)
	for k, v := range extra {
		entry.fields[k] = v
	}
	entry.expiresAt = now.Add(s.ttl)
	return nil
}

func rank(state models.RequestState) int {
	switch state {
	case models.StatePending:
		return 0
	case models.StateProcessing:
		return 1
	default:
		return 2
	}
}

// Get returns the request's visible status. A missing or expired key reads
// as PENDING with ok=false so the status endpoint can tolerate the
// submit/propagation race.
func (s *StatusStore) Get(requestID string) (models.RequestStatus, bool) {
	now := s.now()

	s.mu.RLock()
	entry, ok := s.entries[requestID]
	if !ok || !entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return models.RequestStatus{RequestID: requestID, State: models.StatePending}, false
	}
	fields := make(map[string]string, len(entry.fields))
	for k, v := range entry.fields {
		fields[k] = v
	}
	s.mu.RUnlock()

	status := models.RequestStatus{
		RequestID: requestID,
		State:     models.RequestState(fields["status"]),
		Error:     fields["error"],
	}
	if raw, ok := fields["result"]; ok && raw != "" {
		var result models.ReviewResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			log.Warn().Str("request_id", requestID).Err(err).Msg("stored result failed to decode")
		} else {
			status.Result = &result
		}
	}
	if raw, ok := fields["processingTimeMs"]; ok && raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			status.ProcessingTimeMs = ms
		}
	}
	return status, true
}

func (s *StatusStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := s.now()
		s.mu.Lock()
		for key, entry := range s.entries {
			if !entry.expiresAt.After(now) {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}
