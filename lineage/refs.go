package lineage

import (
	"cmp"
	"slices"
	"sync"

	"github.com/hupe1980/spill"
)

// refSet is a set of back-references. Collected envelopes are pruned
// lazily.
type refSet struct {
	mu   sync.Mutex
	refs map[spill.Ref]struct{}
}

func (s *refSet) add(ref spill.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == nil {
		s.refs = make(map[spill.Ref]struct{})
	}
	s.refs[ref] = struct{}{}
}

func (s *refSet) remove(ref spill.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs, ref)
}

func (s *refSet) alive() []spill.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]spill.Ref, 0, len(s.refs))
	for ref := range s.refs {
		if !ref.Alive() {
			delete(s.refs, ref)
			continue
		}
		out = append(out, ref)
	}
	slices.SortFunc(out, func(a, b spill.Ref) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

func (s *refSet) clear() []spill.Ref {
	out := s.alive()
	s.mu.Lock()
	s.refs = nil
	s.mu.Unlock()
	return out
}
