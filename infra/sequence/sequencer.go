// Package sequence issues the global command sequence the journal,
// snapshots, and outbox all key on.
package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic sequence numbers. Safe for
// concurrent use, though commands are serialized anyway.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer that will issue start+1 first.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset moves the sequencer; used once, after journal replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
