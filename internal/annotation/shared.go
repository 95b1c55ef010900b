package annotation

import "sync"

// Shared serializes concurrent callers onto one Engine. The HTTP layer
// and the refresh loop both mutate drawings, so access goes through here
// while the engine itself stays lock-free.
type Shared struct {
	mu  sync.Mutex
	eng *Engine
}

// NewShared wraps an engine for concurrent use.
func NewShared(eng *Engine) *Shared {
	return &Shared{eng: eng}
}

// Do runs fn with exclusive access to the engine.
func (s *Shared) Do(fn func(*Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.eng)
}
