package engine

import "sync/atomic"

// Sequence numbers sync passes.
//
// Each pass is stamped with a strictly increasing number so log lines and
// pass summaries from one process can be ordered without wall-clock time.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence whose next value is start+1.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next number and increments the sequence.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last number handed out.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
