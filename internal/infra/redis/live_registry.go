package redis

import (
	"context"
	"sync"
	"time"

	"caselab-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// LiveRegistry is a Redis-aware implementation of app.LiveRegistry.
// Notes:
//   - It still keeps a local in-memory map of live sessions to reuse the
//     existing in-process broadcast logic.
//   - Redis marks session liveness so dashboards on other instances can tell
//     which sessions currently have students online.
//   - For true multi-instance fan-out you'd pair this with a pub/sub projector
//     that routes events across instances.
type LiveRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.LiveSession
}

func NewLiveRegistry(client *redis.Client, ttl time.Duration) *LiveRegistry {
	return &LiveRegistry{
		client:   client,
		ttl:      ttl,
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
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(sessionID), "1", r.ttl).Err()
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
		_ = r.client.Del(context.Background(), r.key(sessionID)).Err()
	}
}

func (r *LiveRegistry) key(sessionID string) string {
	return "session:live:" + sessionID
}
