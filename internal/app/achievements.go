package app

import (
	"caselab-service/internal/domain"
)

// DefaultAchievements is the built-in set evaluated when a teacher has not
// authored their own. Threshold values follow the stock classroom set.
func DefaultAchievements() []domain.Achievement {
	return []domain.Achievement{
		{
			ID:       "first-answer",
			Name:     "First Steps",
			Category: "participation",
			Rarity:   "common",
			Icon:     "footprints",
			Requirement: domain.AchievementRequirement{
				Type: domain.RequireQuestionsAnswered, Value: 1, Scope: "session",
			},
			XPReward: 10, Enabled: true, IsDefault: true,
		},
		{
			ID:       "on-a-roll",
			Name:     "On a Roll",
			Category: "participation",
			Rarity:   "common",
			Icon:     "flame",
			Requirement: domain.AchievementRequirement{
				Type: domain.RequireQuestionsAnswered, Value: 5, Scope: "session",
			},
			XPReward: 25, Enabled: true, IsDefault: true,
		},
		{
			ID:       "sharp-shooter",
			Name:     "Sharp Shooter",
			Category: "accuracy",
			Rarity:   "rare",
			Icon:     "target",
			Requirement: domain.AchievementRequirement{
				Type: domain.RequireCorrectAnswers, Value: 5, Scope: "session",
			},
			XPReward: 50, GradeBonus: 1, Enabled: true, IsDefault: true,
		},
		{
			ID:       "point-collector",
			Name:     "Point Collector",
			Category: "score",
			Rarity:   "rare",
			Icon:     "gem",
			Requirement: domain.AchievementRequirement{
				Type: domain.RequireTotalPoints, Value: 50, Scope: "session",
			},
			XPReward: 50, Enabled: true, IsDefault: true,
		},
		{
			ID:       "regular",
			Name:     "Regular",
			Category: "attendance",
			Rarity:   "uncommon",
			Icon:     "calendar",
			Requirement: domain.AchievementRequirement{
				Type: domain.RequireSessionsJoined, Value: 3, Scope: "all-time",
			},
			XPReward: 30, Enabled: true, IsDefault: true,
		},
	}
}

// EvaluateMilestones checks each enabled achievement's threshold against the
// student's stats. Disabled achievements report unachieved rather than being
// omitted so clients render a stable list.
func EvaluateMilestones(achievements []domain.Achievement, stats domain.StudentStats) []domain.Milestone {
	milestones := make([]domain.Milestone, 0, len(achievements))
	for _, a := range achievements {
		milestones = append(milestones, domain.Milestone{
			AchievementID: a.ID,
			Name:          a.Name,
			Achieved:      a.Enabled && requirementMet(a.Requirement, stats),
		})
	}
	return milestones
}

func requirementMet(req domain.AchievementRequirement, stats domain.StudentStats) bool {
	switch req.Type {
	case domain.RequireQuestionsAnswered:
		return stats.QuestionsAnswered >= req.Value
	case domain.RequireCorrectAnswers:
		return stats.CorrectAnswers >= req.Value
	case domain.RequireSessionsJoined:
		return stats.SessionsJoined >= req.Value
	case domain.RequireTotalPoints:
		return stats.TotalPoints >= req.Value
	default:
		return false
	}
}

// ComputeStudentStats aggregates one student's per-session statistics from the
// raw responses. A response counts as correct when it earned full points.
func ComputeStudentStats(cs domain.CaseStudy, session domain.Session, responses []domain.Response, studentID string) domain.StudentStats {
	stats := domain.StudentStats{SessionsJoined: 1}
	seen := make(map[string]bool)
	for _, r := range responses {
		if r.StudentID != studentID || r.SessionID != session.ID || seen[r.QuestionID] {
			continue
		}
		question, sectionIndex, ok := cs.QuestionByID(r.QuestionID)
		if !ok || !session.SectionReleased(sectionIndex) {
			continue
		}
		seen[r.QuestionID] = true
		stats.QuestionsAnswered++
		if r.Points != nil {
			stats.TotalPoints += *r.Points
			if *r.Points >= question.Points {
				stats.CorrectAnswers++
			}
		}
	}
	return stats
}
