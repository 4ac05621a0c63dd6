package dedup

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// DiscussionTracker remembers discussion identifiers so each is reported once.
// Memory is bounded by capacity and by retention: the feed only carries the
// most recent discussions, so ids older than the window cannot reappear.
type DiscussionTracker struct {
	seen *expirable.LRU[string, time.Time]
}

// NewDiscussionTracker creates a tracker holding at most capacity ids for retention.
func NewDiscussionTracker(capacity int, retention time.Duration) *DiscussionTracker {
	return &DiscussionTracker{
		seen: expirable.NewLRU[string, time.Time](capacity, nil, retention),
	}
}

// MarkNew records id and reports whether it had not been seen before.
func (t *DiscussionTracker) MarkNew(id string) bool {
	if t.seen.Contains(id) {
		return false
	}
	t.seen.Add(id, domain.Now())
	return true
}

// Filter marks every item and returns the ones seen for the first time, in order.
func (t *DiscussionTracker) Filter(items []domain.DiscussionItem) []domain.DiscussionItem {
	var fresh []domain.DiscussionItem
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if t.MarkNew(item.ID) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

// Len reports how many ids are retained.
func (t *DiscussionTracker) Len() int {
	return t.seen.Len()
}
