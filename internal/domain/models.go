package domain

import (
	"strings"
	"time"
)

// SectionType discriminates the content variants a case study section can carry.
type SectionType string

const (
	SectionReading    SectionType = "reading"
	SectionDiscussion SectionType = "discussion"
	SectionActivity   SectionType = "activity"
)

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionEssay          QuestionType = "essay"
	QuestionMultipleChoice QuestionType = "multiple-choice"
	// QuestionMultipleChoiceFeedback looks like multiple-choice but has no
	// canonical correct answer; every submitted option scores full points.
	QuestionMultipleChoiceFeedback QuestionType = "multiple-choice-feedback"
)

// Question is a tagged union over QuestionType. Options and CorrectAnswer are
// only meaningful for the multiple-choice variants.
type Question struct {
	ID     string       `json:"id"`
	Text   string       `json:"text"`
	Type   QuestionType `json:"type"`
	Points int          `json:"points"`

	Options                  []string `json:"options,omitempty"`
	CorrectAnswer            int      `json:"correctAnswer,omitempty"`
	CorrectAnswerExplanation string   `json:"correctAnswerExplanation,omitempty"`
}

// Validate checks the variant-specific shape of a question.
func (q Question) Validate() error {
	if q.Text == "" || q.Points <= 0 {
		return ErrInvalidQuestion
	}
	switch q.Type {
	case QuestionText, QuestionEssay:
		return nil
	case QuestionMultipleChoice:
		if len(q.Options) < 2 {
			return ErrInvalidQuestion
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return ErrInvalidQuestion
		}
		return nil
	case QuestionMultipleChoiceFeedback:
		if len(q.Options) < 2 {
			return ErrInvalidQuestion
		}
		return nil
	default:
		return ErrInvalidQuestion
	}
}

// Section is one ordered content block. The rich-text field in use depends on
// the section type; the others stay empty.
type Section struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Order int         `json:"order"`
	Type  SectionType `json:"type"`

	Content              string `json:"content,omitempty"`              // reading
	DiscussionPrompt     string `json:"discussionPrompt,omitempty"`     // discussion
	ActivityInstructions string `json:"activityInstructions,omitempty"` // activity

	Questions []Question `json:"questions,omitempty"`
}

// CaseStudy is authored teaching content: an ordered list of sections with
// embedded questions. TotalPoints is derived, never edited directly.
type CaseStudy struct {
	ID                 string    `json:"id"`
	TeacherID          string    `json:"teacherId"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	ConclusionGuidance string    `json:"conclusionGuidance,omitempty"`
	TotalPoints        int       `json:"totalPoints"`
	Archived           bool      `json:"archived"`
	Sections           []Section `json:"sections"`
}

// RecomputeTotalPoints sums question points across all sections and stores the
// result. Called after every structural edit.
func (cs *CaseStudy) RecomputeTotalPoints() int {
	total := 0
	for _, section := range cs.Sections {
		for _, q := range section.Questions {
			total += q.Points
		}
	}
	cs.TotalPoints = total
	return total
}

// Validate checks the structural invariants: non-empty title, contiguous
// zero-indexed section order, known section types, well-formed questions.
func (cs CaseStudy) Validate() error {
	if cs.Title == "" || len(cs.Sections) == 0 {
		return ErrInvalidCaseStudy
	}
	for i, section := range cs.Sections {
		if section.Order != i {
			return ErrInvalidCaseStudy
		}
		switch section.Type {
		case SectionReading, SectionDiscussion, SectionActivity:
		default:
			return ErrInvalidCaseStudy
		}
		for _, q := range section.Questions {
			if err := q.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// QuestionByID finds a question anywhere in the case study and reports which
// section index it lives in.
func (cs CaseStudy) QuestionByID(questionID string) (Question, int, bool) {
	for i, section := range cs.Sections {
		for _, q := range section.Questions {
			if q.ID == questionID {
				return q, i, true
			}
		}
	}
	return Question{}, 0, false
}

// Session is one live run of a case study with a group of students. Release
// state is stored as the single frontier index; the released set is always the
// prefix {0..CurrentReleasedSection}. Version guards read-modify-write updates.
type Session struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	CaseStudyID string `json:"caseStudyId"`
	TeacherID   string `json:"teacherId"`

	Active         bool       `json:"active"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	LastActivityAt time.Time  `json:"lastActivityAt"`

	StudentsJoined         []string `json:"studentsJoined"`
	CurrentReleasedSection int      `json:"currentReleasedSection"`

	Version int64 `json:"version"`
}

// ReleasedSections materializes the released prefix for display payloads.
func (s Session) ReleasedSections() []int {
	released := make([]int, 0, s.CurrentReleasedSection+1)
	for i := 0; i <= s.CurrentReleasedSection; i++ {
		released = append(released, i)
	}
	return released
}

// SectionReleased reports whether a section index is visible to students.
func (s Session) SectionReleased(index int) bool {
	return index >= 0 && index <= s.CurrentReleasedSection
}

// HasStudent reports roster membership. The roster is append-only.
func (s Session) HasStudent(studentID string) bool {
	for _, id := range s.StudentsJoined {
		if id == studentID {
			return true
		}
	}
	return false
}

// NormalizeCode maps user-typed join codes to their stored form. Codes are
// compared case-insensitively and stored uppercase.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Response is one student answer to one question within a session. At most one
// live row exists per (session, student, question); resubmission overwrites.
type Response struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	StudentID   string    `json:"studentId"`
	QuestionID  string    `json:"questionId"`
	Response    string    `json:"response"`
	Points      *int      `json:"points,omitempty"`
	Assessment  string    `json:"assessment,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Presence is the ephemeral online signal for one student in one session. It is
// display-only and never consulted for scoring or release decisions.
type Presence struct {
	StudentID string    `json:"studentId"`
	Name      string    `json:"name"`
	Present   bool      `json:"present"`
	LastSeen  time.Time `json:"lastSeen"`
}

// StudentProgress is the per-student completion snapshot over released
// sections only.
type StudentProgress struct {
	StudentID       string `json:"studentId"`
	AnsweredCount   int    `json:"answeredCount"`
	TotalQuestions  int    `json:"totalQuestions"`
	ProgressPercent int    `json:"progressPercent"`
	Completed       bool   `json:"completed"`
	Score           int    `json:"score"`
}

// ProgressReport is the class-wide view recomputed from scratch on every
// update. The average runs over the roster, not over responders.
type ProgressReport struct {
	SessionID    string            `json:"sessionId"`
	Students     []StudentProgress `json:"students"`
	ClassAverage int               `json:"classAverage"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// OptionCount pairs one option with how many students selected it.
type OptionCount struct {
	Option string `json:"option"`
	Count  int    `json:"count"`
}

// OptionDistribution is the per-question selection breakdown for released
// multiple-choice questions. Correct/Incorrect counts are only populated when
// Scored is true (plain multiple-choice; the feedback variant has no wrong
// answer).
type OptionDistribution struct {
	QuestionID     string        `json:"questionId"`
	SectionIndex   int           `json:"sectionIndex"`
	Counts         []OptionCount `json:"counts"`
	Scored         bool          `json:"scored"`
	CorrectCount   int           `json:"correctCount"`
	IncorrectCount int           `json:"incorrectCount"`
}

// EventType labels events pushed to live session subscribers.
type EventType string

const (
	EventJoined           EventType = "joined"
	EventPresence         EventType = "presence"
	EventSectionReleased  EventType = "sectionReleased"
	EventResponseRecorded EventType = "responseRecorded"
	EventProgress         EventType = "progress"
	EventSessionEnded     EventType = "sessionEnded"
	EventSessionResumed   EventType = "sessionResumed"
)

// SessionEvent is the unit of live fan-out to subscribed viewers.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}
