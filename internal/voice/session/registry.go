package session

import "sync"

// Registry tracks live sessions by call SID. It replaces any notion of
// a package-global session table; the service container owns one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.CallSID] = s
	r.mu.Unlock()
}

func (r *Registry) Get(callSID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callSID]
	return s, ok
}

func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	delete(r.sessions, callSID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session, used during server shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range open {
		s.Close(reason)
	}
}
