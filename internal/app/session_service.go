package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"caselab-service/internal/domain"
)

// SessionStore is the authoritative store for session records. Update is a
// compare-and-swap on the record version: a stale writer gets
// domain.ErrVersionConflict and must re-read.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	GetByCode(ctx context.Context, code string) (domain.Session, error)
	Update(ctx context.Context, session *domain.Session, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]domain.Session, error)
}

// ResponseStore persists student answers. Upsert enforces the one-live-row
// rule per (session, student, question).
type ResponseStore interface {
	Upsert(ctx context.Context, response *domain.Response) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.Response, error)
}

// CaseStudyRepository loads case study content (from cache/backing store).
type CaseStudyRepository interface {
	GetCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error)
}

// LiveRegistry tracks the in-process fan-out hubs, one per running session.
type LiveRegistry interface {
	GetOrCreate(sessionID string) *LiveSession
	Get(sessionID string) (*LiveSession, bool)
	DeleteIfEmpty(sessionID string)
}

// Assessment is the outcome of grading one free-text answer.
type Assessment struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
	Correct  bool   `json:"correct"`
	Raw      string `json:"-"`
}

// Assessor grades text and essay answers. Multiple-choice variants are scored
// locally and never reach it.
type Assessor interface {
	AssessAnswer(ctx context.Context, question domain.Question, answer string) (Assessment, error)
}

// codeAlphabet excludes 0/O/1/I so codes survive being read off a projector.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const sessionCodeLength = 6

// SessionService contains the live-session use cases: lifecycle, the section
// release state machine, response ingestion, and progress snapshots.
type SessionService struct {
	sessions    SessionStore
	responses   ResponseStore
	caseStudies CaseStudyRepository
	live        LiveRegistry
	assessor    Assessor // nil disables AI grading of text answers
	now         func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewSessionService(sessions SessionStore, responses ResponseStore, caseStudies CaseStudyRepository, live LiveRegistry, assessor Assessor) *SessionService {
	return NewSessionServiceWithClock(sessions, responses, caseStudies, live, assessor, time.Now)
}

// NewSessionServiceWithClock is test-only for deterministic timestamps.
func NewSessionServiceWithClock(sessions SessionStore, responses ResponseStore, caseStudies CaseStudyRepository, live LiveRegistry, assessor Assessor, now func() time.Time) *SessionService {
	return &SessionService{
		sessions:    sessions,
		responses:   responses,
		caseStudies: caseStudies,
		live:        live,
		assessor:    assessor,
		now:         now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateSession starts a new run of a case study. Section 0 is released
// immediately and a fresh join code is generated.
func (s *SessionService) CreateSession(ctx context.Context, caseStudyID, teacherID string) (domain.Session, error) {
	cs, err := s.caseStudies.GetCaseStudy(ctx, caseStudyID)
	if err != nil {
		return domain.Session{}, err
	}
	if len(cs.Sections) == 0 {
		return domain.Session{}, domain.ErrInvalidCaseStudy
	}

	now := s.now()
	session := domain.Session{
		ID:                     uuid.NewString(),
		CaseStudyID:            caseStudyID,
		TeacherID:              teacherID,
		Active:                 true,
		StartedAt:              now,
		LastActivityAt:         now,
		StudentsJoined:         []string{},
		CurrentReleasedSection: 0,
		Version:                1,
	}

	// Retry on the unlikely code collision.
	for attempt := 0; attempt < 5; attempt++ {
		session.Code = s.newSessionCode()
		if _, err := s.sessions.GetByCode(ctx, session.Code); err == domain.ErrSessionNotFound {
			break
		}
		if attempt == 4 {
			return domain.Session{}, fmt.Errorf("could not allocate a unique session code")
		}
	}

	if err := s.sessions.Create(ctx, &session); err != nil {
		return domain.Session{}, err
	}
	s.live.GetOrCreate(session.ID)
	return session, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return s.sessions.Get(ctx, id)
}

// GetSessionByCode resolves a join code regardless of the case the student
// typed it in.
func (s *SessionService) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.sessions.GetByCode(ctx, domain.NormalizeCode(code))
}

// Join adds a student to the roster (append-only) and registers their
// presence. Rejoining refreshes presence without duplicating the roster entry.
func (s *SessionService) Join(ctx context.Context, code, studentID, name string) (domain.Session, []domain.Presence, error) {
	session, err := s.GetSessionByCode(ctx, code)
	if err != nil {
		return domain.Session{}, nil, err
	}
	if !session.Active {
		return domain.Session{}, nil, domain.ErrSessionInactive
	}

	if !session.HasStudent(studentID) {
		session, err = s.updateWithRetry(ctx, session.ID, func(record *domain.Session) error {
			if !record.Active {
				return domain.ErrSessionInactive
			}
			if !record.HasStudent(studentID) {
				record.StudentsJoined = append(record.StudentsJoined, studentID)
			}
			record.LastActivityAt = s.now()
			return nil
		})
		if err != nil {
			return domain.Session{}, nil, err
		}
	}

	live := s.live.GetOrCreate(session.ID)
	presence := live.join(studentID, name)
	live.broadcast(domain.EventJoined, map[string]string{"studentId": studentID, "name": name})
	live.broadcast(domain.EventPresence, presence)
	return session, presence, nil
}

// ReleaseNext advances the release frontier by exactly one section.
//
// fromSection is the index the caller believes is current; pass a negative
// value to skip that check. The store update itself is version-guarded, so two
// racing teachers cannot skip or double-release a section: the loser gets
// domain.ErrVersionConflict and must re-read.
func (s *SessionService) ReleaseNext(ctx context.Context, sessionID string, fromSection int) (domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.Active {
		return domain.Session{}, domain.ErrSessionInactive
	}
	if fromSection >= 0 && fromSection != session.CurrentReleasedSection {
		return domain.Session{}, domain.ErrVersionConflict
	}

	cs, err := s.caseStudies.GetCaseStudy(ctx, session.CaseStudyID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.CurrentReleasedSection+1 >= len(cs.Sections) {
		return domain.Session{}, domain.ErrAllSectionsReleased
	}

	expected := session.Version
	session.CurrentReleasedSection++
	session.LastActivityAt = s.now()
	if err := s.sessions.Update(ctx, &session, expected); err != nil {
		return domain.Session{}, err
	}

	if live, ok := s.live.Get(session.ID); ok {
		live.broadcast(domain.EventSectionReleased, map[string]any{
			"sectionIndex":     session.CurrentReleasedSection,
			"releasedSections": session.ReleasedSections(),
		})
		s.broadcastProgress(ctx, live, cs, session)
	}
	return session, nil
}

// ToggleActive pauses/resumes or ends a session. Release state is untouched.
func (s *SessionService) ToggleActive(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.updateWithRetry(ctx, sessionID, func(record *domain.Session) error {
		now := s.now()
		if record.Active {
			record.Active = false
			record.EndedAt = &now
		} else {
			record.Active = true
			record.EndedAt = nil
			record.StartedAt = now
			record.LastActivityAt = now
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	if live, ok := s.live.Get(session.ID); ok {
		if session.Active {
			live.broadcast(domain.EventSessionResumed, nil)
		} else {
			live.broadcast(domain.EventSessionEnded, nil)
		}
	}
	return session, nil
}

// DeleteSession removes a session record. Only inactive sessions may be
// deleted.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Active {
		return domain.ErrSessionActive
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.live.DeleteIfEmpty(sessionID)
	return nil
}

// errSessionFresh aborts a sweep mutation whose target is no longer stale.
var errSessionFresh = fmt.Errorf("session is no longer stale")

// SweepInactiveSessions ends every active session whose last activity is older
// than staleAfter. Run from a server-side ticker; best-effort per session.
func (s *SessionService) SweepInactiveSessions(ctx context.Context, staleAfter time.Duration) (int, error) {
	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-staleAfter)
	ended := 0
	for _, session := range active {
		if session.LastActivityAt.After(cutoff) {
			continue
		}
		// The listing is a snapshot: re-check the record inside the mutation
		// so a session that was ended or touched in the meantime is left
		// alone. A blind toggle here would resurrect an ended session.
		updated, err := s.updateWithRetry(ctx, session.ID, func(record *domain.Session) error {
			if !record.Active || record.LastActivityAt.After(cutoff) {
				return errSessionFresh
			}
			now := s.now()
			record.Active = false
			record.EndedAt = &now
			return nil
		})
		if err != nil {
			continue
		}
		ended++
		if live, ok := s.live.Get(updated.ID); ok {
			live.broadcast(domain.EventSessionEnded, nil)
		}
	}
	return ended, nil
}

// SubmitRequest is one student answer to one question.
type SubmitRequest struct {
	SessionID  string
	StudentID  string
	QuestionID string
	Answer     string
}

// SubmitResult is the immediate feedback plus the recomputed progress
// snapshot.
type SubmitResult struct {
	Response        domain.Response        `json:"response"`
	Correct         bool                   `json:"correct"`
	Awarded         int                    `json:"awarded"`
	Feedback        string                 `json:"feedback"`
	Progress        domain.StudentProgress `json:"progress"`
	ProgressChanged bool                   `json:"progressChanged"`
	Report          domain.ProgressReport  `json:"report"`
}

// SubmitResponse records one answer. Multiple-choice variants are scored
// locally; text and essay answers go to the assessor when one is configured.
// Resubmitting a question overwrites the earlier response.
func (s *SessionService) SubmitResponse(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !session.Active {
		return SubmitResult{}, domain.ErrSessionInactive
	}
	if !session.HasStudent(req.StudentID) {
		return SubmitResult{}, domain.ErrStudentNotJoined
	}

	cs, err := s.caseStudies.GetCaseStudy(ctx, session.CaseStudyID)
	if err != nil {
		return SubmitResult{}, err
	}
	question, sectionIndex, ok := cs.QuestionByID(req.QuestionID)
	if !ok {
		return SubmitResult{}, domain.ErrQuestionNotFound
	}
	if !session.SectionReleased(sectionIndex) {
		return SubmitResult{}, domain.ErrSectionNotReleased
	}

	before, err := s.responses.ListBySession(ctx, session.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	prior := ComputeStudentProgress(cs, session, before, req.StudentID)

	correct, awarded, feedback, assessmentRaw, scored, err := s.scoreAnswer(ctx, question, req.Answer)
	if err != nil {
		return SubmitResult{}, err
	}

	response := domain.Response{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		StudentID:   req.StudentID,
		QuestionID:  req.QuestionID,
		Response:    req.Answer,
		Assessment:  assessmentRaw,
		SubmittedAt: s.now(),
	}
	if scored {
		points := awarded
		response.Points = &points
	}
	if err := s.responses.Upsert(ctx, &response); err != nil {
		return SubmitResult{}, err
	}

	if updated, err := s.updateWithRetry(ctx, session.ID, func(record *domain.Session) error {
		record.LastActivityAt = s.now()
		return nil
	}); err == nil {
		session = updated
	}

	after, err := s.responses.ListBySession(ctx, session.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	progress := ComputeStudentProgress(cs, session, after, req.StudentID)
	report := BuildProgressReport(cs, session, after, s.now())

	if live, ok := s.live.Get(session.ID); ok {
		live.broadcast(domain.EventResponseRecorded, map[string]string{
			"studentId":  req.StudentID,
			"questionId": req.QuestionID,
		})
		live.broadcast(domain.EventProgress, report)
	}

	return SubmitResult{
		Response:        response,
		Correct:         correct,
		Awarded:         awarded,
		Feedback:        feedback,
		Progress:        progress,
		ProgressChanged: progress != prior,
		Report:          report,
	}, nil
}

// scoreAnswer matches the question variant exhaustively. scored reports
// whether a points value was assigned at all (text answers without an assessor
// stay unscored pending review).
func (s *SessionService) scoreAnswer(ctx context.Context, question domain.Question, answer string) (correct bool, awarded int, feedback, raw string, scored bool, err error) {
	switch question.Type {
	case domain.QuestionMultipleChoice:
		idx := MatchOption(answer, question.Options)
		correct = idx >= 0 && idx == question.CorrectAnswer
		if correct {
			awarded = question.Points
		}
		feedback = question.CorrectAnswerExplanation
		return correct, awarded, feedback, "", true, nil
	case domain.QuestionMultipleChoiceFeedback:
		// No canonical answer: every non-empty choice is fully correct.
		correct = strings.TrimSpace(answer) != ""
		if correct {
			awarded = question.Points
		}
		return correct, awarded, question.CorrectAnswerExplanation, "", true, nil
	case domain.QuestionText, domain.QuestionEssay:
		if s.assessor == nil {
			return false, 0, "Answer recorded.", "", false, nil
		}
		assessment, aerr := s.assessor.AssessAnswer(ctx, question, answer)
		if aerr != nil {
			return false, 0, "", "", false, fmt.Errorf("assess answer: %w", aerr)
		}
		awarded = assessment.Score
		if awarded < 0 {
			awarded = 0
		}
		if awarded > question.Points {
			awarded = question.Points
		}
		return assessment.Correct, awarded, assessment.Feedback, assessment.Raw, true, nil
	default:
		return false, 0, "", "", false, domain.ErrInvalidQuestion
	}
}

// Progress recomputes the class-wide snapshot from current state.
func (s *SessionService) Progress(ctx context.Context, sessionID string) (domain.ProgressReport, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ProgressReport{}, err
	}
	cs, err := s.caseStudies.GetCaseStudy(ctx, session.CaseStudyID)
	if err != nil {
		return domain.ProgressReport{}, err
	}
	responses, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return domain.ProgressReport{}, err
	}
	return BuildProgressReport(cs, session, responses, s.now()), nil
}

// OptionBreakdown computes the selection distribution for released
// multiple-choice questions.
func (s *SessionService) OptionBreakdown(ctx context.Context, sessionID string) ([]domain.OptionDistribution, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cs, err := s.caseStudies.GetCaseStudy(ctx, session.CaseStudyID)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ComputeOptionDistributions(cs, session, responses), nil
}

// StudentProgressSnapshot computes one student's current progress.
func (s *SessionService) StudentProgressSnapshot(ctx context.Context, sessionID, studentID string) (domain.StudentProgress, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	cs, err := s.caseStudies.GetCaseStudy(ctx, session.CaseStudyID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	responses, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	return ComputeStudentProgress(cs, session, responses, studentID), nil
}

// StudentStats aggregates one student's session statistics for achievement
// checks.
func (s *SessionService) StudentStats(ctx context.Context, sessionID, studentID string) (domain.StudentStats, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.StudentStats{}, err
	}
	cs, err := s.caseStudies.GetCaseStudy(ctx, session.CaseStudyID)
	if err != nil {
		return domain.StudentStats{}, err
	}
	responses, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return domain.StudentStats{}, err
	}
	return ComputeStudentStats(cs, session, responses, studentID), nil
}

// Subscribe returns a channel that receives live events for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionEvent, func(), error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.live.GetOrCreate(sessionID).subscribe()
	return ch, cancel, nil
}

// Heartbeat refreshes a student's presence entry.
func (s *SessionService) Heartbeat(sessionID, studentID string) {
	if live, ok := s.live.Get(sessionID); ok {
		live.heartbeat(studentID)
	}
}

// Leave marks the student offline and drops the live hub when nobody is left.
func (s *SessionService) Leave(sessionID, studentID string) {
	live, ok := s.live.Get(sessionID)
	if !ok {
		return
	}
	presence := live.leave(studentID)
	live.broadcast(domain.EventPresence, presence)
	if live.IsEmpty() {
		s.live.DeleteIfEmpty(sessionID)
	}
}

func (s *SessionService) broadcastProgress(ctx context.Context, live *LiveSession, cs domain.CaseStudy, session domain.Session) {
	responses, err := s.responses.ListBySession(ctx, session.ID)
	if err != nil {
		return
	}
	live.broadcast(domain.EventProgress, BuildProgressReport(cs, session, responses, s.now()))
}

// updateWithRetry handles commutative session mutations (roster append,
// activity stamps, toggles) that can safely re-read and retry on a version
// conflict. The release path deliberately does not use it.
func (s *SessionService) updateWithRetry(ctx context.Context, sessionID string, mutate func(*domain.Session) error) (domain.Session, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		expected := session.Version
		if err := mutate(&session); err != nil {
			return domain.Session{}, err
		}
		if err := s.sessions.Update(ctx, &session, expected); err != nil {
			if err == domain.ErrVersionConflict {
				lastErr = err
				continue
			}
			return domain.Session{}, err
		}
		return session, nil
	}
	return domain.Session{}, lastErr
}

func (s *SessionService) newSessionCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	code := make([]byte, sessionCodeLength)
	for i := range code {
		code[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(code)
}
