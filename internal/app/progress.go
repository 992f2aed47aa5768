package app

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"caselab-service/internal/domain"
)

// The aggregator is a pure function of the current state: every refresh
// recomputes from the session record, the case study, and the full response
// set. Nothing is cached incrementally.

// ComputeStudentProgress derives one student's completion snapshot over
// released sections. Unreleased sections never count toward the denominator,
// so releasing a section re-bases progress instead of regressing it silently.
func ComputeStudentProgress(cs domain.CaseStudy, session domain.Session, responses []domain.Response, studentID string) domain.StudentProgress {
	answered := make(map[string]bool)
	score := 0
	for _, r := range responses {
		if r.StudentID != studentID || r.SessionID != session.ID {
			continue
		}
		_, sectionIndex, ok := cs.QuestionByID(r.QuestionID)
		if !ok || !session.SectionReleased(sectionIndex) {
			continue
		}
		// Distinct question IDs only: duplicate rows for the same question
		// must not double count.
		if !answered[r.QuestionID] {
			answered[r.QuestionID] = true
			if r.Points != nil {
				score += *r.Points
			}
		}
	}

	total := releasedQuestionCount(cs, session)
	percent := roundPercent(len(answered), total)
	return domain.StudentProgress{
		StudentID:       studentID,
		AnsweredCount:   len(answered),
		TotalQuestions:  total,
		ProgressPercent: percent,
		Completed:       percent == 100,
		Score:           score,
	}
}

// BuildProgressReport computes the class-wide view. The average runs over the
// joined roster, not over whoever happens to have responded.
func BuildProgressReport(cs domain.CaseStudy, session domain.Session, responses []domain.Response, now time.Time) domain.ProgressReport {
	students := make([]domain.StudentProgress, 0, len(session.StudentsJoined))
	sum := 0
	for _, studentID := range session.StudentsJoined {
		p := ComputeStudentProgress(cs, session, responses, studentID)
		students = append(students, p)
		sum += p.ProgressPercent
	}

	sort.Slice(students, func(i, j int) bool {
		if students[i].Score != students[j].Score {
			return students[i].Score > students[j].Score
		}
		if students[i].ProgressPercent != students[j].ProgressPercent {
			return students[i].ProgressPercent > students[j].ProgressPercent
		}
		return students[i].StudentID < students[j].StudentID
	})

	average := 0
	if len(students) > 0 {
		average = int(math.Floor(float64(sum)/float64(len(students)) + 0.5))
	}
	return domain.ProgressReport{
		SessionID:    session.ID,
		Students:     students,
		ClassAverage: average,
		UpdatedAt:    now,
	}
}

// ComputeOptionDistributions builds the per-question selection breakdown for
// every released multiple-choice question. Presentation-only.
func ComputeOptionDistributions(cs domain.CaseStudy, session domain.Session, responses []domain.Response) []domain.OptionDistribution {
	var distributions []domain.OptionDistribution
	for sectionIndex, section := range cs.Sections {
		if !session.SectionReleased(sectionIndex) {
			continue
		}
		for _, q := range section.Questions {
			if q.Type != domain.QuestionMultipleChoice && q.Type != domain.QuestionMultipleChoiceFeedback {
				continue
			}
			dist := domain.OptionDistribution{
				QuestionID:   q.ID,
				SectionIndex: sectionIndex,
				Scored:       q.Type == domain.QuestionMultipleChoice,
				Counts:       make([]domain.OptionCount, len(q.Options)),
			}
			for i, opt := range q.Options {
				dist.Counts[i] = domain.OptionCount{Option: opt}
			}
			// One vote per student per question; later duplicates are ignored.
			seen := make(map[string]bool)
			for _, r := range responses {
				if r.SessionID != session.ID || r.QuestionID != q.ID || seen[r.StudentID] {
					continue
				}
				seen[r.StudentID] = true
				idx := MatchOption(r.Response, q.Options)
				if idx < 0 {
					continue
				}
				dist.Counts[idx].Count++
				if dist.Scored {
					if idx == q.CorrectAnswer {
						dist.CorrectCount++
					} else {
						dist.IncorrectCount++
					}
				}
			}
			distributions = append(distributions, dist)
		}
	}
	return distributions
}

// MatchOption maps a raw response to an option index: text match first,
// numeric-index parse as fallback. Returns -1 when nothing matches.
func MatchOption(response string, options []string) int {
	trimmed := strings.TrimSpace(response)
	for i, opt := range options {
		if strings.EqualFold(trimmed, strings.TrimSpace(opt)) {
			return i
		}
	}
	if idx, err := strconv.Atoi(trimmed); err == nil && idx >= 0 && idx < len(options) {
		return idx
	}
	return -1
}

func releasedQuestionCount(cs domain.CaseStudy, session domain.Session) int {
	total := 0
	for i, section := range cs.Sections {
		if session.SectionReleased(i) {
			total += len(section.Questions)
		}
	}
	return total
}

// roundPercent rounds half-up to the nearest integer percent; zero when the
// denominator is zero.
func roundPercent(numerator, denominator int) int {
	if denominator == 0 {
		return 0
	}
	return int(math.Floor(100*float64(numerator)/float64(denominator) + 0.5))
}
