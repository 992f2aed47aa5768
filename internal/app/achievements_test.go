package app_test

import (
	"testing"

	"caselab-service/internal/app"
	"caselab-service/internal/domain"
)

func TestEvaluateMilestones(t *testing.T) {
	achievements := app.DefaultAchievements()

	stats := domain.StudentStats{
		QuestionsAnswered: 5,
		CorrectAnswers:    4,
		TotalPoints:       50,
		SessionsJoined:    1,
	}
	milestones := app.EvaluateMilestones(achievements, stats)
	if len(milestones) != len(achievements) {
		t.Fatalf("expected one milestone per achievement, got %d", len(milestones))
	}

	achieved := make(map[string]bool)
	for _, m := range milestones {
		achieved[m.AchievementID] = m.Achieved
	}
	if !achieved["first-answer"] || !achieved["on-a-roll"] || !achieved["point-collector"] {
		t.Fatalf("expected participation and score milestones achieved: %v", achieved)
	}
	if achieved["sharp-shooter"] {
		t.Fatalf("4 correct answers must not reach the 5-answer accuracy milestone")
	}
	if achieved["regular"] {
		t.Fatalf("one joined session must not reach the attendance milestone")
	}
}

func TestEvaluateMilestonesDisabledStayListed(t *testing.T) {
	achievements := []domain.Achievement{{
		ID:          "quiet",
		Name:        "Quiet",
		Enabled:     false,
		Requirement: domain.AchievementRequirement{Type: domain.RequireQuestionsAnswered, Value: 1},
	}}
	milestones := app.EvaluateMilestones(achievements, domain.StudentStats{QuestionsAnswered: 10})
	if len(milestones) != 1 {
		t.Fatalf("disabled achievements must stay in the list")
	}
	if milestones[0].Achieved {
		t.Fatalf("disabled achievements must report unachieved")
	}
}

func TestComputeStudentStats(t *testing.T) {
	cs := progressFixture()
	session := domain.Session{ID: "sess-p", StudentsJoined: []string{"stu-1"}, CurrentReleasedSection: 0}
	responses := []domain.Response{
		response("stu-1", "p0q1", "Green", intPtr(10)),
		response("stu-1", "p0q2", "Red", intPtr(0)),
		response("stu-1", "p0q3", "Green", intPtr(7)), // partial credit is not "correct"
		response("stu-1", "p1q1", "Green", intPtr(10)), // unreleased, excluded
	}

	stats := app.ComputeStudentStats(cs, session, responses, "stu-1")
	if stats.QuestionsAnswered != 3 {
		t.Fatalf("expected 3 answered, got %d", stats.QuestionsAnswered)
	}
	if stats.CorrectAnswers != 1 {
		t.Fatalf("only full-point answers count as correct, got %d", stats.CorrectAnswers)
	}
	if stats.TotalPoints != 17 {
		t.Fatalf("expected 17 points, got %d", stats.TotalPoints)
	}
	if stats.SessionsJoined != 1 {
		t.Fatalf("expected 1 session joined, got %d", stats.SessionsJoined)
	}
}
