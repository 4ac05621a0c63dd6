// Package dedup decides which polled events are genuinely new.
//
// Warnings and discussions are tracked independently. Warnings are compared
// against the set that was active on the previous poll, so a warning that
// stays active is reported once, and one that drops out and comes back is
// reported again. Discussions are remembered for a bounded retention window.
package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// Policy selects what a warning is compared against.
type Policy string

const (
	// PolicyPreviousCycle compares against the immediately preceding poll only.
	PolicyPreviousCycle Policy = "previous-cycle"
	// PolicyCumulative compares against every id seen within the retention window.
	PolicyCumulative Policy = "cumulative"
)

// WarningTracker holds the warnings active as of the last poll. Observe is
// called by a single cycle at a time; Current may be called concurrently.
type WarningTracker struct {
	mu       sync.RWMutex
	policy   Policy
	previous map[string]struct{}
	seen     *expirable.LRU[string, struct{}]
	current  []domain.WarningEvent
	updated  time.Time
}

// NewWarningTracker creates a tracker. retention and capacity only apply to
// PolicyCumulative; a zero capacity means unbounded.
func NewWarningTracker(policy Policy, capacity int, retention time.Duration) *WarningTracker {
	t := &WarningTracker{
		policy:   policy,
		previous: make(map[string]struct{}),
	}
	if policy == PolicyCumulative {
		t.seen = expirable.NewLRU[string, struct{}](capacity, nil, retention)
	}
	return t
}

// Observe records the warnings active in this poll and returns the ones that
// were not active in the previous poll, in input order. The tracked list is
// replaced wholesale; warnings missing from current age out silently.
func (t *WarningTracker) Observe(current []domain.WarningEvent) []domain.WarningEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]struct{}, len(current))
	var fresh []domain.WarningEvent
	for _, ev := range current {
		if _, dup := next[ev.ID]; dup {
			continue
		}
		next[ev.ID] = struct{}{}
		if t.isKnown(ev.ID) {
			continue
		}
		fresh = append(fresh, ev)
	}

	if t.seen != nil {
		for id := range next {
			t.seen.Add(id, struct{}{})
		}
	}

	t.previous = next
	t.current = append([]domain.WarningEvent(nil), current...)
	t.updated = domain.Now()
	return fresh
}

func (t *WarningTracker) isKnown(id string) bool {
	if _, ok := t.previous[id]; ok {
		return true
	}
	return t.seen != nil && t.seen.Contains(id)
}

// Current returns a copy of the warnings active as of the last poll.
func (t *WarningTracker) Current() []domain.WarningEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.WarningEvent(nil), t.current...)
}

// Len reports how many warnings are tracked.
func (t *WarningTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.current)
}

// UpdatedAt is when Observe last ran; zero before the first poll.
func (t *WarningTracker) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updated
}
