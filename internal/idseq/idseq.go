// Package idseq allocates process-wide, monotonically increasing ids.
package idseq

import "sync/atomic"

// Sequence hands out unique ids. The zero value starts at 1.
type Sequence struct {
	last atomic.Int64
}

// New returns a sequence whose first id is start.
func New(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start - 1)
	return s
}

// Next returns the next id. Safe for concurrent use.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Current returns the most recently allocated id, or start-1 if none was.
func (s *Sequence) Current() int64 {
	return s.last.Load()
}
