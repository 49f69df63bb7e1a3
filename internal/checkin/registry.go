package checkin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory builds a session with the given id.
type Factory func(ctx context.Context, id string) *Session

// Registry owns the live sessions of a station.
type Registry struct {
	build Factory
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(build Factory) *Registry {
	return &Registry{build: build, now: time.Now, sessions: make(map[string]*Session)}
}

// Create starts a session under a fresh id, owned by owner.
func (r *Registry) Create(ctx context.Context, owner string) *Session {
	s := r.build(ctx, uuid.NewString())
	s.owner = owner
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get returns the session if owner created it, and marks it active.
func (r *Registry) Get(id, owner string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.owner != owner {
		return nil, ErrNotOwner
	}
	s.touch()
	return s, nil
}

// Delete closes and forgets a session.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Len counts live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap closes sessions nobody touched for longer than idle and returns how
// many it closed. Sessions with a step in flight stay.
func (r *Registry) Reap(idle time.Duration) int {
	cutoff := r.now().UTC().Add(-idle)
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince(cutoff) {
			delete(r.sessions, id)
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run reaps idle sessions every interval until ctx ends. onReap, if set,
// sees each non-zero count.
func (r *Registry) Run(ctx context.Context, idle, every time.Duration, onReap func(n int)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(idle); n > 0 && onReap != nil {
				onReap(n)
			}
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
