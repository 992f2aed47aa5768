package domain

import "errors"

var (
	// ErrCaseStudyNotFound indicates the case study content could not be loaded.
	ErrCaseStudyNotFound = errors.New("case study not found")
	// ErrInvalidCaseStudy indicates a structural invariant was violated.
	ErrInvalidCaseStudy = errors.New("invalid case study")
	// ErrInvalidQuestion indicates a question fails its variant-specific checks.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrSessionNotFound is returned when no session matches the id or code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned when an interaction hits a paused or ended session.
	ErrSessionInactive = errors.New("session is not active")
	// ErrSessionActive is returned when deleting a session that is still running.
	ErrSessionActive = errors.New("session is still active")
	// ErrStudentNotJoined is returned when a student submits before joining the roster.
	ErrStudentNotJoined = errors.New("student has not joined the session")
	// ErrQuestionNotFound indicates a submitted question ID is not in the case study.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSectionNotReleased is returned when a student answers a question ahead
	// of the release frontier.
	ErrSectionNotReleased = errors.New("section not released")
	// ErrAllSectionsReleased is the no-op signal when the release frontier is
	// already at the last section.
	ErrAllSectionsReleased = errors.New("all sections already released")
	// ErrVersionConflict is returned when a guarded update lost a race; the
	// caller should re-read before deciding to retry.
	ErrVersionConflict = errors.New("session was modified concurrently")
)
