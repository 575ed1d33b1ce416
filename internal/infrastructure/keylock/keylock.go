package keylock

import "sync"

// Set is a per-key try-lock. A held key rejects other holders until its
// release func runs; callers defer the release so every exit path frees it.
type Set struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func New() *Set {
	return &Set{held: make(map[string]struct{})}
}

// TryLock acquires key without blocking. The returned release is
// idempotent.
func (s *Set) TryLock(key string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.held[key]; busy {
		return func() {}, false
	}
	s.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, key)
			s.mu.Unlock()
		})
	}, true
}

func (s *Set) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[key]
	return ok
}
