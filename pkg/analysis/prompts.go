package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxTopics = 8

func buildAnalyzePrompt(text string) string {
	return "Analyze this personal note and extract structured metadata.\n" +
		"Return ONLY valid JSON with these fields:\n\n" +
		"{\n" +
		"  \"title\": \"a short title of at most 8 words\",\n" +
		"  \"summary\": \"1-2 sentence summary of the note\",\n" +
		"  \"topics\": [\"3 to 6 short lowercase topic phrases\"]\n" +
		"}\n\nNote:\n" + text
}

func buildExplainPrompt(a, b string) string {
	return "Two personal notes were found to be related.\n" +
		"Explain in one short sentence what connects them.\n" +
		"Return ONLY valid JSON: {\"explanation\": \"...\"}\n\n" +
		"First note:\n" + a + "\n\nSecond note:\n" + b
}

// jsonSpan returns the outermost {...} of a response, which may be wrapped
// in markdown code fences.
func jsonSpan(response string) string {
	if idx := strings.Index(response, "{"); idx >= 0 {
		if end := strings.LastIndex(response, "}"); end > idx {
			return response[idx : end+1]
		}
	}
	return response
}

func parseAnalysis(response string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(jsonSpan(response)), &r); err != nil {
		return nil, fmt.Errorf("unmarshal analysis JSON: %w", err)
	}

	r.Title = strings.TrimSpace(r.Title)
	r.Summary = strings.TrimSpace(r.Summary)
	r.Topics = cleanTopics(r.Topics)

	if r.Summary == "" {
		return nil, fmt.Errorf("analysis returned an empty summary")
	}
	if len(r.Topics) == 0 {
		return nil, fmt.Errorf("analysis returned no topics")
	}

	return &r, nil
}

func parseExplanation(response string) string {
	var out struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(jsonSpan(response)), &out); err == nil {
		return strings.TrimSpace(out.Explanation)
	}

	// Plain-text answers are accepted as they are.
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "{") {
		return ""
	}
	return text
}

func cleanTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTopics {
			break
		}
	}
	return out
}
