package app

import (
	"sync"
	"time"

	"caselab-service/internal/domain"
)

// LiveSession is the in-process fan-out hub for one running session: the
// presence roster plus the subscriber channels that receive session events.
// The durable session record stays authoritative; this only carries the
// ephemeral state and the push path.
type LiveSession struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu          sync.RWMutex
	presence    map[string]*domain.Presence
	subscribers map[chan domain.SessionEvent]struct{}
}

// NewLiveSession is exported for infrastructure layers that need to seed
// sessions.
func NewLiveSession(id string) *LiveSession {
	return NewLiveSessionWithClock(id, time.Now)
}

// NewLiveSessionWithClock allows deterministic timestamps in tests.
func NewLiveSessionWithClock(id string, now func() time.Time) *LiveSession {
	return &LiveSession{
		id:          id,
		createdAt:   now(),
		now:         now,
		presence:    make(map[string]*domain.Presence),
		subscribers: make(map[chan domain.SessionEvent]struct{}),
	}
}

func (l *LiveSession) join(studentID, name string) []domain.Presence {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if p, ok := l.presence[studentID]; ok {
		p.Name = name
		p.Present = true
		p.LastSeen = now
	} else {
		l.presence[studentID] = &domain.Presence{
			StudentID: studentID,
			Name:      name,
			Present:   true,
			LastSeen:  now,
		}
	}
	return l.presenceSnapshotLocked()
}

// heartbeat refreshes the owning student's last-seen stamp. Only the owning
// client heartbeats its own entry.
func (l *LiveSession) heartbeat(studentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.presence[studentID]; ok {
		p.Present = true
		p.LastSeen = l.now()
	}
}

// leave marks the student offline but keeps the entry for last-seen display.
func (l *LiveSession) leave(studentID string) []domain.Presence {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.presence[studentID]; ok {
		p.Present = false
		p.LastSeen = l.now()
	}
	return l.presenceSnapshotLocked()
}

func (l *LiveSession) isEmpty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.presence {
		if p.Present {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no student is currently online.
func (l *LiveSession) IsEmpty() bool {
	return l.isEmpty()
}

// Presence returns the current presence roster, online students first is not
// guaranteed; callers sort for display.
func (l *LiveSession) Presence() []domain.Presence {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.presenceSnapshotLocked()
}

func (l *LiveSession) subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 8)

	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	initial := domain.SessionEvent{
		Type:      domain.EventPresence,
		SessionID: l.id,
		Payload:   l.presenceSnapshotLocked(),
		At:        l.now(),
	}
	l.mu.Unlock()

	ch <- initial

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subscribers[ch]; ok {
			delete(l.subscribers, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// broadcast pushes an event to every subscriber. Slow consumers lose the
// oldest buffered event instead of blocking the sender.
func (l *LiveSession) broadcast(eventType domain.EventType, payload any) domain.SessionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.broadcastLocked(eventType, payload)
}

func (l *LiveSession) broadcastLocked(eventType domain.EventType, payload any) domain.SessionEvent {
	event := domain.SessionEvent{
		Type:      eventType,
		SessionID: l.id,
		Payload:   payload,
		At:        l.now(),
	}
	for ch := range l.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return event
}

func (l *LiveSession) presenceSnapshotLocked() []domain.Presence {
	snapshot := make([]domain.Presence, 0, len(l.presence))
	for _, p := range l.presence {
		snapshot = append(snapshot, *p)
	}
	return snapshot
}
