package fetch

// subscribers fans state-change notifications out to registered listeners.
// It is embedded in the fetch primitives and guarded by the owner's mutex;
// callbacks run without the lock held.
type subscribers struct {
	next int
	subs map[int]func()
}

func (s *subscribers) add(fn func()) func() {
	if s.subs == nil {
		s.subs = make(map[int]func())
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() { delete(s.subs, id) }
}

func (s *subscribers) snapshot() []func() {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
