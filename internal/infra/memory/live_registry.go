package memory

import (
	"sync"

	"caselab-service/internal/app"
)

// LiveRegistry is an in-memory implementation of app.LiveRegistry.
type LiveRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*app.LiveSession
}

func NewLiveRegistry() *LiveRegistry {
	return &LiveRegistry{
		sessions: make(map[string]*app.LiveSession),
	}
}

func (r *LiveRegistry) GetOrCreate(sessionID string) *app.LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		return session
	}
	session := app.NewLiveSession(sessionID)
	r.sessions[sessionID] = session
	return session
}

func (r *LiveRegistry) Get(sessionID string) (*app.LiveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	return session, ok
}

func (r *LiveRegistry) DeleteIfEmpty(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if session.IsEmpty() {
		delete(r.sessions, sessionID)
	}
}
