package app_test

import (
	"testing"
	"time"

	"caselab-service/internal/app"
	"caselab-service/internal/domain"
)

func progressFixture() domain.CaseStudy {
	q := func(id string) domain.Question {
		return domain.Question{
			ID:            id,
			Text:          "pick one",
			Type:          domain.QuestionMultipleChoice,
			Points:        10,
			Options:       []string{"Red", "Green", "Blue"},
			CorrectAnswer: 1,
		}
	}
	cs := domain.CaseStudy{
		ID:    "cs-p",
		Title: "Colors",
		Sections: []domain.Section{
			{ID: "p0", Order: 0, Type: domain.SectionReading,
				Questions: []domain.Question{q("p0q1"), q("p0q2"), q("p0q3")}},
			{ID: "p1", Order: 1, Type: domain.SectionDiscussion, Content: "discuss",
				Questions: []domain.Question{q("p1q1")}},
		},
	}
	cs.RecomputeTotalPoints()
	return cs
}

func response(studentID, questionID, answer string, points *int) domain.Response {
	return domain.Response{
		ID:         studentID + "-" + questionID,
		SessionID:  "sess-p",
		StudentID:  studentID,
		QuestionID: questionID,
		Response:   answer,
		Points:     points,
	}
}

func intPtr(v int) *int { return &v }

func TestComputeStudentProgressRounding(t *testing.T) {
	cs := progressFixture()
	session := domain.Session{ID: "sess-p", StudentsJoined: []string{"stu-1"}, CurrentReleasedSection: 0}

	responses := []domain.Response{
		response("stu-1", "p0q1", "Green", intPtr(10)),
	}
	p := app.ComputeStudentProgress(cs, session, responses, "stu-1")
	if p.ProgressPercent != 33 {
		t.Fatalf("1 of 3 should round to 33, got %d", p.ProgressPercent)
	}

	responses = append(responses, response("stu-1", "p0q2", "Red", intPtr(0)))
	p = app.ComputeStudentProgress(cs, session, responses, "stu-1")
	if p.ProgressPercent != 67 {
		t.Fatalf("2 of 3 should round half-up to 67, got %d", p.ProgressPercent)
	}
	if p.Score != 10 {
		t.Fatalf("expected score 10, got %d", p.Score)
	}
}

func TestComputeStudentProgressCountsAllReleasedSectionTypes(t *testing.T) {
	cs := progressFixture()
	session := domain.Session{ID: "sess-p", StudentsJoined: []string{"stu-1"}, CurrentReleasedSection: 1}

	responses := []domain.Response{
		response("stu-1", "p0q1", "Green", intPtr(10)),
		response("stu-1", "p0q2", "Green", intPtr(10)),
		response("stu-1", "p0q3", "Green", intPtr(10)),
	}
	p := app.ComputeStudentProgress(cs, session, responses, "stu-1")
	// The discussion section's question joins the denominator once released.
	if p.TotalQuestions != 4 || p.ProgressPercent != 75 {
		t.Fatalf("expected 3/4 = 75%%, got %+v", p)
	}
	if p.Completed {
		t.Fatalf("75%% must not report completed")
	}
}

func TestComputeStudentProgressIgnoresUnreleasedAndDuplicates(t *testing.T) {
	cs := progressFixture()
	session := domain.Session{ID: "sess-p", StudentsJoined: []string{"stu-1"}, CurrentReleasedSection: 0}

	responses := []domain.Response{
		response("stu-1", "p0q1", "Green", intPtr(10)),
		response("stu-1", "p0q1", "Green", intPtr(10)), // duplicate row
		response("stu-1", "p1q1", "Green", intPtr(10)), // unreleased section
		response("stu-2", "p0q2", "Green", intPtr(10)), // someone else
	}
	p := app.ComputeStudentProgress(cs, session, responses, "stu-1")
	if p.AnsweredCount != 1 || p.Score != 10 {
		t.Fatalf("expected 1 answered / score 10, got %+v", p)
	}
}

func TestComputeStudentProgressZeroQuestions(t *testing.T) {
	cs := domain.CaseStudy{
		ID: "cs-empty",
		Sections: []domain.Section{
			{ID: "e0", Order: 0, Type: domain.SectionDiscussion, Content: "talk"},
		},
	}
	session := domain.Session{ID: "sess-e", StudentsJoined: []string{"stu-1"}}
	p := app.ComputeStudentProgress(cs, session, nil, "stu-1")
	if p.ProgressPercent != 0 || p.Completed {
		t.Fatalf("zero released questions must report 0%%, got %+v", p)
	}
}

func TestBuildProgressReportAveragesOverRoster(t *testing.T) {
	cs := progressFixture()
	// stu-2 joined but never answered; the average still counts them.
	session := domain.Session{ID: "sess-p", StudentsJoined: []string{"stu-1", "stu-2"}, CurrentReleasedSection: 0}
	responses := []domain.Response{
		response("stu-1", "p0q1", "Green", intPtr(10)),
		response("stu-1", "p0q2", "Green", intPtr(10)),
		response("stu-1", "p0q3", "Green", intPtr(10)),
	}

	report := app.BuildProgressReport(cs, session, responses, time.Now())
	if report.ClassAverage != 50 {
		t.Fatalf("expected class average 50, got %d", report.ClassAverage)
	}
	if len(report.Students) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(report.Students))
	}
	if report.Students[0].StudentID != "stu-1" {
		t.Fatalf("expected leaderboard ordered by score, got %v", report.Students)
	}
}

func TestComputeOptionDistributions(t *testing.T) {
	cs := progressFixture()
	session := domain.Session{ID: "sess-p", StudentsJoined: []string{"stu-1", "stu-2", "stu-3"}, CurrentReleasedSection: 0}
	responses := []domain.Response{
		response("stu-1", "p0q1", "Green", intPtr(10)),
		response("stu-2", "p0q1", "red", intPtr(0)),   // case-insensitive text match
		response("stu-3", "p0q1", "2", intPtr(0)),     // numeric index fallback
		response("stu-1", "p0q2", "Purple", intPtr(0)), // matches nothing
	}

	dists := app.ComputeOptionDistributions(cs, session, responses)
	if len(dists) != 3 {
		t.Fatalf("expected one distribution per released MC question, got %d", len(dists))
	}

	var q1 domain.OptionDistribution
	for _, d := range dists {
		if d.QuestionID == "p0q1" {
			q1 = d
		}
	}
	if q1.Counts[0].Count != 1 || q1.Counts[1].Count != 1 || q1.Counts[2].Count != 1 {
		t.Fatalf("unexpected counts: %+v", q1.Counts)
	}
	if q1.CorrectCount != 1 || q1.IncorrectCount != 2 {
		t.Fatalf("expected 1 correct / 2 incorrect, got %+v", q1)
	}
	if !q1.Scored {
		t.Fatalf("plain multiple-choice must be scored")
	}
}

func TestMatchOption(t *testing.T) {
	options := []string{"Red", "Green", "Blue"}
	cases := []struct {
		response string
		want     int
	}{
		{"Green", 1},
		{"  green ", 1},
		{"0", 0},
		{"2", 2},
		{"3", -1},
		{"-1", -1},
		{"Purple", -1},
	}
	for _, tc := range cases {
		if got := app.MatchOption(tc.response, options); got != tc.want {
			t.Errorf("MatchOption(%q) = %d, want %d", tc.response, got, tc.want)
		}
	}
}
