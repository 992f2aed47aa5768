package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"caselab-service/internal/app"
	"caselab-service/internal/domain"
	"caselab-service/internal/infra/memory"
	"caselab-service/internal/llm"
)

type stubGenerator struct {
	generateCalls int
	generated     domain.CaseStudy
	generateErr   error

	summary      string
	summarizeErr error

	conclusion llm.ConclusionResult
}

func (g *stubGenerator) GenerateCaseStudy(_ context.Context, teacherID, _, _ string) (domain.CaseStudy, error) {
	g.generateCalls++
	if g.generateErr != nil {
		return domain.CaseStudy{}, g.generateErr
	}
	cs := g.generated
	cs.TeacherID = teacherID
	return cs, nil
}

func (g *stubGenerator) GenerateConclusion(_ context.Context, req llm.ConclusionRequest) llm.ConclusionResult {
	if g.conclusion.Result != "" {
		return g.conclusion
	}
	return llm.ConclusionResult{Result: llm.FallbackConclusion(req), Fallback: true}
}

func (g *stubGenerator) SummarizeResponses(_ context.Context, _ string, _ []llm.StudentResponse, _ string) (string, error) {
	if g.summarizeErr != nil {
		return "", g.summarizeErr
	}
	return g.summary, nil
}

type testEnv struct {
	server    *httptest.Server
	sessions  *app.SessionService
	studies   *app.CaseStudyService
	generator *stubGenerator
	cases     *memory.CaseStudyStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	caseStore := memory.NewCaseStudyStore()
	repo := memory.NewCaseStudyRepository(caseStore, 5*time.Minute)
	sessions := app.NewSessionService(memory.NewSessionStore(), memory.NewResponseStore(), repo, memory.NewLiveRegistry(), nil)
	studies := app.NewCaseStudyService(caseStore)
	generator := &stubGenerator{}

	api := NewAPIHandler(sessions, studies, generator)
	ws := NewWSHandler(sessions)
	server := httptest.NewServer(NewRouter(api, ws))
	t.Cleanup(server.Close)

	return &testEnv{server: server, sessions: sessions, studies: studies, generator: generator, cases: caseStore}
}

func (e *testEnv) seedCaseStudy(t *testing.T) domain.CaseStudy {
	t.Helper()
	cs, err := e.studies.Save(context.Background(), domain.CaseStudy{
		TeacherID: "teacher-1",
		Title:     "The Water Cycle",
		Sections: []domain.Section{
			{Title: "Evaporation", Type: domain.SectionReading, Content: "…",
				Questions: []domain.Question{{
					Text:          "What drives evaporation?",
					Type:          domain.QuestionMultipleChoice,
					Points:        10,
					Options:       []string{"Wind", "Heat from the sun"},
					CorrectAnswer: 1,
				}}},
			{Title: "Talk", Type: domain.SectionDiscussion, DiscussionPrompt: "Discuss."},
		},
	})
	if err != nil {
		t.Fatalf("seed case study: %v", err)
	}
	return cs
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestGenerateCaseStudyRejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/generate-case-study", map[string]string{
		"prompt":    "   ",
		"teacherId": "teacher-1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !strings.Contains(body["error"], "prompt") {
		t.Fatalf("error must name the missing field: %q", body["error"])
	}
	// Validation happens before any model call.
	if env.generator.generateCalls != 0 {
		t.Fatalf("generator called %d times for an invalid request", env.generator.generateCalls)
	}
}

func TestGenerateCaseStudySavesResult(t *testing.T) {
	env := newTestEnv(t)
	env.generator.generated = domain.CaseStudy{
		Title: "Generated",
		Sections: []domain.Section{
			{Title: "S", Type: domain.SectionReading, Content: "c",
				Questions: []domain.Question{{Text: "Q", Type: domain.QuestionText, Points: 10}}},
		},
	}

	resp := env.postJSON(t, "/api/generate-case-study", map[string]string{
		"prompt":    "water cycle for 6th grade",
		"teacherId": "teacher-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Success   bool             `json:"success"`
		CaseStudy domain.CaseStudy `json:"caseStudy"`
	}](t, resp)
	if !body.Success || body.CaseStudy.ID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.CaseStudy.TotalPoints != 10 {
		t.Fatalf("expected recomputed total, got %d", body.CaseStudy.TotalPoints)
	}

	// The generated study is persisted and retrievable.
	stored, err := env.studies.Get(context.Background(), body.CaseStudy.ID)
	if err != nil || stored.Title != "Generated" {
		t.Fatalf("expected stored case study, got %+v %v", stored, err)
	}
}

func TestGenerateConclusionRequiresTitle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/generate-conclusion", map[string]any{
		"studentName": "Alice",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGenerateConclusionFallbackIsStill200(t *testing.T) {
	env := newTestEnv(t)
	env.generator.conclusion = llm.ConclusionResult{
		Result:        "fallback text",
		Fallback:      true,
		OriginalError: "model unavailable",
	}

	resp := env.postJSON(t, "/api/generate-conclusion", map[string]any{
		"caseStudyTitle": "Tides",
		"performance":    map[string]int{"score": 10, "totalPoints": 20, "progressPercent": 50},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fallback conclusions must be 200, got %d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["fallback"] != true || body["result"] != "fallback text" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSummarizeResponsesFiltersBlanks(t *testing.T) {
	env := newTestEnv(t)
	env.generator.summary = "Common theme: condensation."

	resp := env.postJSON(t, "/api/summarize-responses", map[string]any{
		"questionText": "What causes rain?",
		"responses": []map[string]string{
			{"studentName": "Alice", "response": "   "},
			{"studentName": "Bob", "response": ""},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("all-blank responses must be 400, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/api/summarize-responses", map[string]any{
		"questionText": "What causes rain?",
		"responses": []map[string]string{
			{"studentName": "Alice", "response": "Condensation."},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["result"] != "Common theme: condensation." {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestChatRecordsAnswerAndProgress(t *testing.T) {
	env := newTestEnv(t)
	cs := env.seedCaseStudy(t)

	session, err := env.sessions.CreateSession(context.Background(), cs.ID, "teacher-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, _, err := env.sessions.Join(context.Background(), session.Code, "stu-1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	questionID := cs.Sections[0].Questions[0].ID
	resp := env.postJSON(t, "/api/chat", map[string]string{
		"message":    "Heat from the sun",
		"studentId":  "stu-1",
		"sessionId":  session.ID,
		"questionId": questionID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody[chatResponse](t, resp)
	if body.Status.Progress != 100 || !body.Status.ProgressChanged {
		t.Fatalf("unexpected status: %+v", body.Status)
	}
	if body.Message == "" {
		t.Fatalf("expected feedback message")
	}
	var firstSteps bool
	for _, m := range body.Status.Milestones {
		if m.AchievementID == "first-answer" && m.Achieved {
			firstSteps = true
		}
	}
	if !firstSteps {
		t.Fatalf("expected first-answer milestone achieved: %+v", body.Status.Milestones)
	}
}

func TestChatDegradesToWellFormed500(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/chat", map[string]string{
		"message":    "hello",
		"studentId":  "stu-1",
		"sessionId":  "no-such-session",
		"questionId": "q1",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeBody[chatResponse](t, resp)
	if body.Message == "" || body.Timestamp.IsZero() {
		t.Fatalf("degraded payload must stay well-formed: %+v", body)
	}
	if body.Status.Progress != 0 || body.Status.ProgressChanged {
		t.Fatalf("degraded status must be zeroed: %+v", body.Status)
	}
	if len(body.Status.Milestones) == 0 {
		t.Fatalf("degraded payload must still list milestones")
	}
	for _, m := range body.Status.Milestones {
		if m.Achieved {
			t.Fatalf("degraded milestones must all be unachieved: %+v", m)
		}
	}
}

func TestChatMissingFields(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/chat", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !strings.Contains(body["error"], "studentId") || !strings.Contains(body["error"], "sessionId") {
		t.Fatalf("error must name the missing fields: %q", body["error"])
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	cs := env.seedCaseStudy(t)

	resp := env.postJSON(t, "/api/sessions/", map[string]string{
		"caseStudyId": cs.ID,
		"teacherId":   "teacher-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeBody[struct {
		Session domain.Session `json:"session"`
		JoinURL string         `json:"joinUrl"`
	}](t, resp)
	if created.JoinURL != "/session/"+created.Session.Code {
		t.Fatalf("unexpected join url: %q", created.JoinURL)
	}

	// Advance to the last section, then confirm the bound response.
	resp = env.postJSON(t, "/api/sessions/"+created.Session.ID+"/release", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("release: expected 200, got %d", resp.StatusCode)
	}
	released := decodeBody[struct {
		Advanced bool           `json:"advanced"`
		Session  domain.Session `json:"session"`
	}](t, resp)
	if !released.Advanced || released.Session.CurrentReleasedSection != 1 {
		t.Fatalf("unexpected release body: %+v", released)
	}

	resp = env.postJSON(t, "/api/sessions/"+created.Session.ID+"/release", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bounded release: expected 200, got %d", resp.StatusCode)
	}
	bounded := decodeBody[struct {
		Advanced bool           `json:"advanced"`
		Session  domain.Session `json:"session"`
	}](t, resp)
	if bounded.Advanced || bounded.Session.CurrentReleasedSection != 1 {
		t.Fatalf("expected advanced=false at the bound, got %+v", bounded)
	}

	// Stale-writer release: the body pins an already-advanced frontier.
	resp = env.postJSON(t, "/api/sessions/"+created.Session.ID+"/release", map[string]int{"fromSection": 0})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for stale fromSection, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteActiveSessionConflicts(t *testing.T) {
	env := newTestEnv(t)
	cs := env.seedCaseStudy(t)
	session, _ := env.sessions.CreateSession(context.Background(), cs.ID, "teacher-1")

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/sessions/"+session.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for active session, got %d", resp.StatusCode)
	}

	if _, err := env.sessions.ToggleActive(context.Background(), session.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestGetSessionByCodeNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/sessions/code/ZZZZZZ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWriteDomainErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrCaseStudyNotFound, http.StatusNotFound},
		{domain.ErrVersionConflict, http.StatusConflict},
		{domain.ErrSectionNotReleased, http.StatusConflict},
		{domain.ErrStudentNotJoined, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("writeDomainError(%v) = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}
