package engine

import "sync"

// Trigger names what started a pass.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerStartup   Trigger = "startup"
	TriggerTick      Trigger = "tick"
	TriggerReconnect Trigger = "reconnect"
)

// scheduled reports whether t is subject to the auto-sync and online gates.
func (t Trigger) scheduled() bool {
	return t != TriggerManual
}

// triggerQueue is a thread-safe FIFO of pass triggers for the background
// loop.
//
// The queue uses a channel for signaling so the loop can wait on it in a
// select next to its tickers.
type triggerQueue struct {
	mu       sync.Mutex
	triggers []Trigger
	closed   bool
	signal   chan struct{} // Signals availability (buffered, size 1)
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{signal: make(chan struct{}, 1)}
}

// Enqueue adds a trigger. Returns false if the queue is closed.
func (q *triggerQueue) Enqueue(t Trigger) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.triggers = append(q.triggers, t)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns every queued trigger.
func (q *triggerQueue) Drain() []Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.triggers
	q.triggers = nil
	return out
}

// Wait returns a channel that signals when triggers may be available.
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued triggers.
func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.triggers)
}

// Close rejects further triggers. Queued triggers are dropped.
func (q *triggerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.triggers = nil
}

// coalesce collapses queued triggers into a single pass labelled by the
// first.
func coalesce(ts []Trigger) []Trigger {
	if len(ts) <= 1 {
		return ts
	}
	return ts[:1]
}
