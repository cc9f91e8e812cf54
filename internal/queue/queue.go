// Package queue holds the pure scheduling rules of the sync queue: the
// backoff table, the entity priority table, dependency ordering and retry
// eligibility. Nothing here touches storage or the network.
package queue

import (
	"sort"
	"time"

	"github.com/roach88/possync/internal/model"
)

// DefaultMaxRetries is the retry budget before an item is considered dead.
const DefaultMaxRetries = 5

// DefaultBackoff is the default retry delay table.
var DefaultBackoff = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	300 * time.Second,
}

// Policy bundles the retry budget and the backoff table.
type Policy struct {
	MaxRetries int
	Backoff    []time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	backoff := make([]time.Duration, len(DefaultBackoff))
	copy(backoff, DefaultBackoff)
	return Policy{MaxRetries: DefaultMaxRetries, Backoff: backoff}
}

// BackoffDelay returns the wait before retry number retries.
//
// Counts past the end of the table clamp to its last entry; negative counts
// map to the first entry. An empty table means no delay.
func (p Policy) BackoffDelay(retries int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retries < 0 {
		retries = 0
	}
	if retries >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[retries]
}

// ShouldRetryNow reports whether a failed item may be retried at now.
//
// The delay is measured from the item's creation time.
func (p Policy) ShouldRetryNow(item *model.QueueItem, now time.Time) bool {
	if item.Status != model.QueueStatusFailed {
		return false
	}
	if item.Retries >= p.MaxRetries {
		return false
	}
	return now.Sub(item.CreatedAt) >= p.BackoffDelay(item.Retries)
}

// Eligible reports whether item should be picked up by a pass at now.
func (p Policy) Eligible(item *model.QueueItem, now time.Time) bool {
	return item.Status == model.QueueStatusPending || p.ShouldRetryNow(item, now)
}

// FilterEligible returns the items eligible at now, preserving order.
func (p Policy) FilterEligible(items []model.QueueItem, now time.Time) []model.QueueItem {
	out := make([]model.QueueItem, 0, len(items))
	for i := range items {
		if p.Eligible(&items[i], now) {
			out = append(out, items[i])
		}
	}
	return out
}

// BackoffDelay applies the default table.
func BackoffDelay(retries int) time.Duration {
	return Policy{Backoff: DefaultBackoff}.BackoffDelay(retries)
}

// priorityOther ranks entity types without an entry in the table.
const priorityOther = 3

// Priority ranks entity types so that foreign-key parents sort first:
// sessions, then orders, then payments, then anything else.
func Priority(e model.EntityType) int {
	switch e {
	case model.EntitySession:
		return 0
	case model.EntityOrder:
		return 1
	case model.EntityPayment:
		return 2
	default:
		return priorityOther
	}
}

// SortByDependency returns a copy of items ordered by priority, then
// creation time, then id. The input slice is not modified.
func SortByDependency(items []model.QueueItem) []model.QueueItem {
	sorted := make([]model.QueueItem, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if pa, pb := Priority(a.Entity), Priority(b.Entity); pa != pb {
			return pa < pb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return sorted
}
