package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"caselab-service/internal/app"
	"caselab-service/internal/domain"
	"caselab-service/internal/llm"
)

// Generator is the slice of the LLM client the API layer needs; tests stub it.
type Generator interface {
	GenerateCaseStudy(ctx context.Context, teacherID, prompt, learningObjectives string) (domain.CaseStudy, error)
	GenerateConclusion(ctx context.Context, req llm.ConclusionRequest) llm.ConclusionResult
	SummarizeResponses(ctx context.Context, questionText string, responses []llm.StudentResponse, extra string) (string, error)
}

// APIHandler holds shared dependencies for the JSON endpoints.
type APIHandler struct {
	sessions     *app.SessionService
	studies      *app.CaseStudyService
	generator    Generator // nil disables the AI endpoints
	achievements []domain.Achievement
}

func NewAPIHandler(sessions *app.SessionService, studies *app.CaseStudyService, generator Generator) *APIHandler {
	return &APIHandler{
		sessions:     sessions,
		studies:      studies,
		generator:    generator,
		achievements: app.DefaultAchievements(),
	}
}

// NewRouter mounts the REST API and the websocket endpoint.
func NewRouter(api *APIHandler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)
	api.Routes(r)
	return r
}

// Routes registers all JSON endpoints.
func (h *APIHandler) Routes(r chi.Router) {
	r.Post("/api/generate-case-study", h.handleGenerateCaseStudy)
	r.Post("/api/generate-conclusion", h.handleGenerateConclusion)
	r.Post("/api/summarize-responses", h.handleSummarizeResponses)
	r.Get("/api/chat", h.handleChatHealth)
	r.Post("/api/chat", h.handleChat)

	r.Route("/api/case-studies", func(r chi.Router) {
		r.Post("/", h.handleSaveCaseStudy)
		r.Get("/", h.handleListCaseStudies)
		r.Get("/{id}", h.handleGetCaseStudy)
		r.Put("/{id}", h.handleSaveCaseStudy)
		r.Post("/{id}/archive", h.handleArchiveCaseStudy)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/{id}", h.handleGetSession)
		r.Delete("/{id}", h.handleDeleteSession)
		r.Get("/code/{code}", h.handleGetSessionByCode)
		r.Post("/{id}/release", h.handleReleaseNext)
		r.Post("/{id}/toggle", h.handleToggleActive)
		r.Get("/{id}/progress", h.handleProgress)
		r.Get("/{id}/breakdown", h.handleBreakdown)
	})
}

// --- AI endpoints ---

func (h *APIHandler) handleGenerateCaseStudy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt             string `json:"prompt"`
		LearningObjectives string `json:"learningObjectives"`
		TeacherID          string `json:"teacherId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var missing []string
	if strings.TrimSpace(req.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if strings.TrimSpace(req.TeacherID) == "" {
		missing = append(missing, "teacherId")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}
	if h.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "AI generation is not configured")
		return
	}

	cs, err := h.generator.GenerateCaseStudy(r.Context(), req.TeacherID, req.Prompt, req.LearningObjectives)
	if err != nil {
		log.Printf("case study generation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Case study generation failed. Please try again.",
			"details": err.Error(),
		})
		return
	}

	saved, err := h.studies.Save(r.Context(), cs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not save generated case study")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "caseStudy": saved})
}

func (h *APIHandler) handleGenerateConclusion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseStudyTitle       string                `json:"caseStudyTitle"`
		CaseStudyDescription string                `json:"caseStudyDescription"`
		StudentName          string                `json:"studentName"`
		TeacherGuidance      string                `json:"teacherGuidance"`
		Responses            []llm.StudentResponse `json:"responses"`
		Performance          struct {
			Score           int `json:"score"`
			TotalPoints     int `json:"totalPoints"`
			ProgressPercent int `json:"progressPercent"`
		} `json:"performance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.CaseStudyTitle) == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: caseStudyTitle")
		return
	}

	conclusionReq := llm.ConclusionRequest{
		CaseStudyTitle:       req.CaseStudyTitle,
		CaseStudyDescription: req.CaseStudyDescription,
		StudentName:          req.StudentName,
		TeacherGuidance:      req.TeacherGuidance,
		Responses:            req.Responses,
		Score:                req.Performance.Score,
		TotalPoints:          req.Performance.TotalPoints,
		ProgressPercent:      req.Performance.ProgressPercent,
	}

	var result llm.ConclusionResult
	if h.generator != nil {
		result = h.generator.GenerateConclusion(r.Context(), conclusionReq)
	} else {
		result = llm.ConclusionResult{Result: llm.FallbackConclusion(conclusionReq), Fallback: true}
	}

	resp := map[string]any{"success": true, "result": result.Result}
	if result.Fallback {
		resp["fallback"] = true
		resp["originalError"] = result.OriginalError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) handleSummarizeResponses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionText string                `json:"questionText"`
		Responses    []llm.StudentResponse `json:"responses"`
		Context      string                `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	filtered := req.Responses[:0]
	for _, resp := range req.Responses {
		if strings.TrimSpace(resp.Response) != "" {
			filtered = append(filtered, resp)
		}
	}
	if len(filtered) == 0 {
		writeError(w, http.StatusBadRequest, "responses is required and must contain at least one non-empty response")
		return
	}
	if h.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "AI summarization is not configured")
		return
	}

	result, err := h.generator.SummarizeResponses(r.Context(), req.QuestionText, filtered, req.Context)
	if err != nil {
		log.Printf("summarization failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Summarization failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

// --- chat / response ingestion ---

type chatStatus struct {
	Progress        int                `json:"progress"`
	ProgressChanged bool               `json:"progressChanged"`
	Milestones      []domain.Milestone `json:"milestones"`
}

type chatResponse struct {
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Status    chatStatus `json:"status"`
}

func (h *APIHandler) handleChatHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

// handleChat accepts one student answer, scores it, and returns immediate
// feedback plus the recomputed progress snapshot. A downstream failure never
// propagates: the client always gets a well-formed payload.
func (h *APIHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message    string `json:"message"`
		StudentID  string `json:"studentId"`
		SessionID  string `json:"sessionId"`
		QuestionID string `json:"questionId"`
		Context    string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var missing []string
	if req.StudentID == "" {
		missing = append(missing, "studentId")
	}
	if req.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	if req.QuestionID == "" {
		// No question attached: acknowledge and report current standing.
		progress, err := h.sessions.StudentProgressSnapshot(r.Context(), req.SessionID, req.StudentID)
		if err != nil {
			h.writeDegradedChat(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Message:   "Message received. Keep working through the released sections.",
			Timestamp: time.Now(),
			Status: chatStatus{
				Progress:   progress.ProgressPercent,
				Milestones: h.milestones(r.Context(), req.SessionID, req.StudentID),
			},
		})
		return
	}

	result, err := h.sessions.SubmitResponse(r.Context(), app.SubmitRequest{
		SessionID:  req.SessionID,
		StudentID:  req.StudentID,
		QuestionID: req.QuestionID,
		Answer:     req.Message,
	})
	if err != nil {
		h.writeDegradedChat(w, err)
		return
	}

	message := result.Feedback
	if message == "" {
		if result.Correct {
			message = "Correct! Nice work."
		} else {
			message = "Answer recorded."
		}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Message:   message,
		Timestamp: time.Now(),
		Status: chatStatus{
			Progress:        result.Progress.ProgressPercent,
			ProgressChanged: result.ProgressChanged,
			Milestones:      h.milestones(r.Context(), req.SessionID, req.StudentID),
		},
	})
}

// writeDegradedChat is the catch-all failure path: HTTP 500 with a zeroed but
// well-formed payload so clients never see a raw error.
func (h *APIHandler) writeDegradedChat(w http.ResponseWriter, err error) {
	log.Printf("chat request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, chatResponse{
		Message:   "We couldn't process that answer right now. Please try again.",
		Timestamp: time.Now(),
		Status: chatStatus{
			Progress:        0,
			ProgressChanged: false,
			Milestones:      app.EvaluateMilestones(h.achievements, domain.StudentStats{}),
		},
	})
}

func (h *APIHandler) milestones(ctx context.Context, sessionID, studentID string) []domain.Milestone {
	stats, err := h.sessions.StudentStats(ctx, sessionID, studentID)
	if err != nil {
		stats = domain.StudentStats{}
	}
	return app.EvaluateMilestones(h.achievements, stats)
}

// --- case study authoring ---

func (h *APIHandler) handleSaveCaseStudy(w http.ResponseWriter, r *http.Request) {
	var cs domain.CaseStudy
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		cs.ID = id
	}
	saved, err := h.studies.Save(r.Context(), cs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *APIHandler) handleListCaseStudies(w http.ResponseWriter, r *http.Request) {
	teacherID := r.URL.Query().Get("teacherId")
	if teacherID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: teacherId")
		return
	}
	list, err := h.studies.ListByTeacher(r.Context(), teacherID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *APIHandler) handleGetCaseStudy(w http.ResponseWriter, r *http.Request) {
	cs, err := h.studies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *APIHandler) handleArchiveCaseStudy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cs, err := h.studies.Archive(r.Context(), chi.URLParam(r, "id"), req.Archived)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// --- sessions ---

func (h *APIHandler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseStudyID string `json:"caseStudyId"`
		TeacherID   string `json:"teacherId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CaseStudyID == "" || req.TeacherID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: caseStudyId, teacherId")
		return
	}
	session, err := h.sessions.CreateSession(r.Context(), req.CaseStudyID, req.TeacherID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": session,
		"joinUrl": "/session/" + session.Code,
	})
}

func (h *APIHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) handleGetSessionByCode(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSessionByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) handleReleaseNext(w http.ResponseWriter, r *http.Request) {
	fromSection := -1
	if r.Body != nil && r.ContentLength != 0 {
		var req struct {
			FromSection *int `json:"fromSection"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.FromSection != nil {
			fromSection = *req.FromSection
		}
	}

	session, err := h.sessions.ReleaseNext(r.Context(), chi.URLParam(r, "id"), fromSection)
	if errors.Is(err, domain.ErrAllSectionsReleased) {
		// Not an error: the frontier is at the last section and the control
		// renders disabled.
		current, gerr := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
		if gerr != nil {
			writeDomainError(w, gerr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"advanced": false, "session": current})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": true, "session": session})
}

func (h *APIHandler) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	report, err := h.sessions.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *APIHandler) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.sessions.OptionBreakdown(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrCaseStudyNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrSessionActive),
		errors.Is(err, domain.ErrSessionInactive),
		errors.Is(err, domain.ErrSectionNotReleased):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCaseStudy),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrStudentNotJoined):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
