package upstream

import (
	"fmt"
	"sync"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// Registry is the thread-safe map of upstream name to Session (spec §4.2).
// It is owned by one running vMCP instance; the Composer and adapter look
// sessions up by name on every request rather than holding references.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds a Session under its server's name, replacing any prior
// session registered under that name. Callers should Close the old
// session themselves if they need a graceful handoff.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Server().Name] = s
}

// Get returns the Session registered under name, if any.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// MustGet returns the Session registered under name, or an error wrapping
// ErrUnknownTool's sibling condition: no such upstream is configured.
func (r *Registry) MustGet(name string) (*Session, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: no upstream registered under %q", vmcp.ErrUpstreamUnavailable, name)
	}
	return s, nil
}

// All returns a snapshot slice of every registered Session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Remove unregisters and closes the session under name, if present.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	s, ok := r.sessions[name]
	delete(r.sessions, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// CloseAll closes every registered session, collecting the first error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
