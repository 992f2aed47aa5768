package llm

import (
	"fmt"
	"strings"

	"caselab-service/internal/domain"
)

func buildGenerationSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a curriculum designer creating interactive classroom case studies.\n")
	sb.WriteString("A case study is an ordered list of sections. Each section has a type:\n")
	sb.WriteString("- reading: narrative content with embedded graded questions\n")
	sb.WriteString("- discussion: a discussion prompt, no graded questions\n")
	sb.WriteString("- activity: hands-on instructions, no graded questions\n\n")
	sb.WriteString("Question types: text, essay, multiple-choice (options plus correctAnswer index), ")
	sb.WriteString("multiple-choice-feedback (options, no correct answer).\n")
	sb.WriteString("Only reading sections may carry questions. Each question needs a positive points value.\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"title": "...", "description": "...", "sections": [{"title": "...", "type": "reading", "content": "...", "questions": [{"text": "...", "type": "multiple-choice", "points": 10, "options": ["..."], "correctAnswer": 0, "explanation": "..."}]}]}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildGenerationUserPrompt(prompt, learningObjectives string) string {
	var sb strings.Builder
	sb.WriteString("TOPIC:\n" + prompt + "\n")
	if learningObjectives != "" {
		sb.WriteString("\nLEARNING OBJECTIVES:\n" + learningObjectives + "\n")
	}
	sb.WriteString("\nProduce 3 to 5 sections mixing reading, discussion, and activity types.\n")
	return sb.String()
}

func buildAssessmentPrompt(q domain.Question) string {
	var sb strings.Builder
	sb.WriteString("You are grading one student answer during a live classroom session.\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	fmt.Fprintf(&sb, "MAX POINTS: %d\n\n", q.Points)
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Evaluate the answer for correctness, completeness, and understanding.\n")
	sb.WriteString("- Feedback is shown to the student immediately; keep it short and encouraging.\n")
	sb.WriteString("- Mark correct=true only when the answer deserves at least half the points.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	fmt.Fprintf(&sb, `{"score": <integer 0 to %d>, "feedback": "<brief feedback>", "correct": <true/false>}`, q.Points)
	sb.WriteString("\n")
	return sb.String()
}

func buildConclusionPrompt(req ConclusionRequest) string {
	var sb strings.Builder
	sb.WriteString("Write a short personalized conclusion for a student who just finished a classroom case study.\n\n")
	sb.WriteString("CASE STUDY: " + req.CaseStudyTitle + "\n")
	if req.CaseStudyDescription != "" {
		sb.WriteString("DESCRIPTION: " + req.CaseStudyDescription + "\n")
	}
	if req.StudentName != "" {
		sb.WriteString("STUDENT: " + req.StudentName + "\n")
	}
	fmt.Fprintf(&sb, "PERFORMANCE: %d of %d points, %d%% of released questions answered\n", req.Score, req.TotalPoints, req.ProgressPercent)
	if req.TeacherGuidance != "" {
		sb.WriteString("\nTEACHER GUIDANCE:\n" + req.TeacherGuidance + "\n")
	}
	if len(req.Responses) > 0 {
		sb.WriteString("\nSELECTED ANSWERS:\n")
		for _, r := range req.Responses {
			sb.WriteString("- " + r.Response + "\n")
		}
	}
	sb.WriteString("\nKeep it to two or three sentences, addressed to the student.\n")
	return sb.String()
}

func buildSummaryPrompt(questionText string, responses []StudentResponse, extra string) string {
	var sb strings.Builder
	sb.WriteString("Summarize the class's answers to one question for the teacher's dashboard.\n\n")
	sb.WriteString("QUESTION: " + questionText + "\n\n")
	sb.WriteString("ANSWERS:\n")
	for _, r := range responses {
		sb.WriteString("- " + r.StudentName + ": " + r.Response + "\n")
	}
	if extra != "" {
		sb.WriteString("\nCONTEXT:\n" + extra + "\n")
	}
	sb.WriteString("\nIdentify the common themes and any notable misconceptions in a short paragraph.\n")
	return sb.String()
}
