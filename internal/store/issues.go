package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/reviewstream/pkg/models"
)

// IssueRecord is one indexed finding, addressable by its own id.
type IssueRecord struct {
	IssueID   string       `json:"issue_id"`
	RequestID string       `json:"request_id"`
	Issue     models.Issue `json:"issue"`
}

// IssueIndex makes individual findings addressable after a review
// completes. Entries share the status store's TTL discipline.
type IssueIndex struct {
	mu      sync.RWMutex
	entries map[string]issueEntry
	ttl     time.Duration
	now     func() time.Time
}

type issueEntry struct {
	record    IssueRecord
	expiresAt time.Time
}

// NewIssueIndex creates an index whose entries expire after ttl.
func NewIssueIndex(ttl time.Duration) *IssueIndex {
	idx := &IssueIndex{
		entries: map[string]issueEntry{},
		ttl:     ttl,
		now:     time.Now,
	}
	go idx.janitor()
	return idx
}

// Register indexes a completed review's issues and returns their ids, in
// issue order.
func (idx *IssueIndex) Register(requestID string, issues []models.Issue) []string {
	now := idx.now()
	ids := make([]string, 0, len(issues))

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, issue := range issues {
		id := fmt.Sprintf("%s-%d", requestID, i+1)
		idx.entries[id] = issueEntry{
			record:    IssueRecord{IssueID: id, RequestID: requestID, Issue: issue},
			expiresAt: now.Add(idx.ttl),
		}
		ids = append(ids, id)
	}
	return ids
}

// Get returns the indexed issue.
func (idx *IssueIndex) Get(issueID string) (IssueRecord, bool) {
	now := idx.now()
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entry, ok := idx.entries[issueID]
	if !ok || !entry.expiresAt.After(now) {
		return IssueRecord{}, false
	}
	return entry.record, true
}

func (idx *IssueIndex) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := idx.now()
		idx.mu.Lock()
		for key, entry := range idx.entries {
			if !entry.expiresAt.After(now) {
				delete(idx.entries, key)
			}
		}
		idx.mu.Unlock()
	}
}
