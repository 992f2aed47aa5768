package llm

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON indicates no JSON object could be found in the model output.
	ErrNoJSON = errors.New("no JSON object in model response")

	codeFenceRegex  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON pulls the first top-level JSON object out of raw model output.
// Models routinely wrap JSON in markdown code fences or surround it with
// prose; both are stripped before extraction.
func ExtractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	if obj := jsonObjectRegex.FindString(cleaned); obj != "" {
		return obj, nil
	}
	return "", ErrNoJSON
}
