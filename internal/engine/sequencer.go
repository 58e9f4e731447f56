package engine

import "sync/atomic"

// Sequencer generates strictly monotonic ids. The first call to Next
// returns start+1.
type Sequencer struct {
	next atomic.Uint64
}

// NewSequencer creates a sequencer starting from start.
func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id, or the start value if none was
// issued yet.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}
