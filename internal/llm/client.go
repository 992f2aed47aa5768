package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"caselab-service/internal/app"
	"caselab-service/internal/domain"
)

// ErrMalformedGeneration indicates the model produced JSON that fails the
// shallow shape checks (missing title or empty sections).
var ErrMalformedGeneration = errors.New("generated case study is malformed")

// DefaultGenerationTimeout bounds a single case study generation request.
const DefaultGenerationTimeout = 2 * time.Minute

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New creates a new LLM client. timeout bounds generation requests; zero
// selects the default.
func New(baseURL, apiKey, modelName string, timeout time.Duration) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
	}
}

// generatedCaseStudy is the wire shape the generation prompt asks for.
type generatedCaseStudy struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Sections    []struct {
		Title                string `json:"title"`
		Type                 string `json:"type"`
		Content              string `json:"content"`
		DiscussionPrompt     string `json:"discussionPrompt"`
		ActivityInstructions string `json:"activityInstructions"`
		Questions            []struct {
			Text          string   `json:"text"`
			Type          string   `json:"type"`
			Points        int      `json:"points"`
			Options       []string `json:"options"`
			CorrectAnswer int      `json:"correctAnswer"`
			Explanation   string   `json:"explanation"`
		} `json:"questions"`
	} `json:"sections"`
}

// GenerateCaseStudy turns a teacher's free-text prompt and objectives into a
// structured case study. The raw model output goes through fence stripping and
// JSON extraction before parsing; shape validation is shallow (title present,
// sections non-empty).
func (c *Client) GenerateCaseStudy(ctx context.Context, teacherID, prompt, learningObjectives string) (domain.CaseStudy, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildGenerationSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildGenerationUserPrompt(prompt, learningObjectives)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return domain.CaseStudy{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.CaseStudy{}, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	return ParseGeneratedCaseStudy(teacherID, raw)
}

// ParseGeneratedCaseStudy converts raw model output into a validated case
// study. Split out of GenerateCaseStudy so the parsing path is testable
// without an API key. The case study ID stays empty: the content is not
// persisted yet, and the authoring service assigns IDs on create.
func ParseGeneratedCaseStudy(teacherID, raw string) (domain.CaseStudy, error) {
	extracted, err := ExtractJSON(raw)
	if err != nil {
		return domain.CaseStudy{}, fmt.Errorf("%w: %v", ErrMalformedGeneration, err)
	}

	var generated generatedCaseStudy
	if err := json.Unmarshal([]byte(extracted), &generated); err != nil {
		return domain.CaseStudy{}, fmt.Errorf("%w: %v", ErrMalformedGeneration, err)
	}
	if generated.Title == "" || len(generated.Sections) == 0 {
		return domain.CaseStudy{}, ErrMalformedGeneration
	}

	cs := domain.CaseStudy{
		TeacherID:   teacherID,
		Title:       generated.Title,
		Description: generated.Description,
	}
	for i, gs := range generated.Sections {
		section := domain.Section{
			ID:                   uuid.NewString(),
			Title:                gs.Title,
			Order:                i,
			Type:                 sectionType(gs.Type),
			Content:              gs.Content,
			DiscussionPrompt:     gs.DiscussionPrompt,
			ActivityInstructions: gs.ActivityInstructions,
		}
		// The generation path only attaches graded questions to reading
		// sections; discussion and activity sections stay unscored.
		if section.Type == domain.SectionReading {
			for _, gq := range gs.Questions {
				points := gq.Points
				if points <= 0 {
					points = 10
				}
				section.Questions = append(section.Questions, domain.Question{
					ID:                       uuid.NewString(),
					Text:                     gq.Text,
					Type:                     questionType(gq.Type),
					Points:                   points,
					Options:                  gq.Options,
					CorrectAnswer:            gq.CorrectAnswer,
					CorrectAnswerExplanation: gq.Explanation,
				})
			}
		}
		cs.Sections = append(cs.Sections, section)
	}
	cs.RecomputeTotalPoints()
	return cs, nil
}

func sectionType(raw string) domain.SectionType {
	switch domain.SectionType(strings.ToLower(raw)) {
	case domain.SectionDiscussion:
		return domain.SectionDiscussion
	case domain.SectionActivity:
		return domain.SectionActivity
	default:
		return domain.SectionReading
	}
}

func questionType(raw string) domain.QuestionType {
	switch domain.QuestionType(strings.ToLower(raw)) {
	case domain.QuestionEssay:
		return domain.QuestionEssay
	case domain.QuestionMultipleChoice:
		return domain.QuestionMultipleChoice
	case domain.QuestionMultipleChoiceFeedback:
		return domain.QuestionMultipleChoiceFeedback
	default:
		return domain.QuestionText
	}
}

// AssessAnswer grades one free-text answer against the question.
func (c *Client) AssessAnswer(ctx context.Context, question domain.Question, answer string) (app.Assessment, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildAssessmentPrompt(question)},
			{Role: openai.ChatMessageRoleUser, Content: answer},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return app.Assessment{}, fmt.Errorf("LLM assessment call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return app.Assessment{}, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	var result app.Assessment
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return app.Assessment{}, fmt.Errorf("parse assessment response: %w (raw: %s)", err, raw)
	}
	result.Raw = raw
	return result, nil
}

// ConclusionRequest carries everything the conclusion prompt needs.
type ConclusionRequest struct {
	CaseStudyTitle       string
	CaseStudyDescription string
	StudentName          string
	TeacherGuidance      string
	Responses            []StudentResponse
	Score                int
	TotalPoints          int
	ProgressPercent      int
}

// ConclusionResult is either the model's text or the deterministic fallback.
type ConclusionResult struct {
	Result        string `json:"result"`
	Fallback      bool   `json:"fallback,omitempty"`
	OriginalError string `json:"originalError,omitempty"`
}

// GenerateConclusion produces a closing summary for one student. An AI failure
// degrades to a heuristic fallback instead of erroring.
func (c *Client) GenerateConclusion(ctx context.Context, req ConclusionRequest) ConclusionResult {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildConclusionPrompt(req)},
		},
		Temperature: 0.5,
	})
	if err == nil && len(resp.Choices) > 0 {
		return ConclusionResult{Result: strings.TrimSpace(resp.Choices[0].Message.Content)}
	}
	if err == nil {
		err = fmt.Errorf("LLM returned no choices")
	}
	log.Printf("conclusion generation failed, using fallback: %v", err)
	return ConclusionResult{
		Result:        FallbackConclusion(req),
		Fallback:      true,
		OriginalError: err.Error(),
	}
}

// FallbackConclusion is the deterministic summary used when the model is
// unavailable.
func FallbackConclusion(req ConclusionRequest) string {
	name := req.StudentName
	if name == "" {
		name = "The student"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s completed the case study %q", name, req.CaseStudyTitle)
	if req.TotalPoints > 0 {
		fmt.Fprintf(&sb, " scoring %d of %d points", req.Score, req.TotalPoints)
	}
	fmt.Fprintf(&sb, " with %d%% of released questions answered.", req.ProgressPercent)
	switch {
	case req.ProgressPercent == 100:
		sb.WriteString(" All released questions were answered.")
	case req.ProgressPercent >= 50:
		sb.WriteString(" Most released questions were answered; review the remaining sections together.")
	default:
		sb.WriteString(" Several questions remain unanswered; a follow-up discussion is recommended.")
	}
	return sb.String()
}

// StudentResponse pairs a student with one raw answer for summarization.
type StudentResponse struct {
	StudentName string `json:"studentName"`
	Response    string `json:"response"`
}

// SummarizeResponses condenses a set of free-text answers to one question into
// themes for the teacher's dashboard.
func (c *Client) SummarizeResponses(ctx context.Context, questionText string, responses []StudentResponse, extra string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSummaryPrompt(questionText, responses, extra)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM summarization call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
