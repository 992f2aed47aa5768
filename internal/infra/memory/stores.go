package memory

import (
	"context"
	"sync"

	"caselab-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore with the
// same compare-and-swap semantics as the Postgres store: Update only applies
// when the caller holds the current version.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	byCode   map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		byCode:   make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	s.byCode[session.Code] = session.ID
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) GetByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) Update(_ context.Context, session *domain.Session, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	session.Version = expectedVersion + 1
	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.byCode, session.Code)
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) ListActive(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []domain.Session
	for _, session := range s.sessions {
		if session.Active {
			active = append(active, session)
		}
	}
	return active, nil
}

// ResponseStore keeps student answers keyed by (session, student, question) so
// a resubmission overwrites the live row instead of duplicating it.
type ResponseStore struct {
	mu        sync.RWMutex
	responses map[responseKey]domain.Response
}

type responseKey struct {
	sessionID  string
	studentID  string
	questionID string
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{
		responses: make(map[responseKey]domain.Response),
	}
}

func (s *ResponseStore) Upsert(_ context.Context, response *domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{response.SessionID, response.StudentID, response.QuestionID}
	if existing, ok := s.responses[key]; ok {
		// Keep the original row identity on overwrite.
		response.ID = existing.ID
	}
	s.responses[key] = *response
	return nil
}

func (s *ResponseStore) ListBySession(_ context.Context, sessionID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Response
	for key, response := range s.responses {
		if key.sessionID == sessionID {
			out = append(out, response)
		}
	}
	return out, nil
}

// CaseStudyStore is the in-memory authoring store. It doubles as a
// CaseStudyLoader so it can sit behind the caching repository.
type CaseStudyStore struct {
	mu          sync.RWMutex
	caseStudies map[string]domain.CaseStudy
}

func NewCaseStudyStore() *CaseStudyStore {
	return &CaseStudyStore{
		caseStudies: make(map[string]domain.CaseStudy),
	}
}

func (s *CaseStudyStore) Create(_ context.Context, cs *domain.CaseStudy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseStudies[cs.ID] = *cs
	return nil
}

func (s *CaseStudyStore) Get(_ context.Context, id string) (domain.CaseStudy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.caseStudies[id]
	if !ok {
		return domain.CaseStudy{}, domain.ErrCaseStudyNotFound
	}
	return cs, nil
}

func (s *CaseStudyStore) Update(_ context.Context, cs *domain.CaseStudy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caseStudies[cs.ID]; !ok {
		return domain.ErrCaseStudyNotFound
	}
	s.caseStudies[cs.ID] = *cs
	return nil
}

func (s *CaseStudyStore) ListByTeacher(_ context.Context, teacherID string) ([]domain.CaseStudy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CaseStudy
	for _, cs := range s.caseStudies {
		if cs.TeacherID == teacherID {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (s *CaseStudyStore) LoadCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error) {
	return s.Get(ctx, id)
}
