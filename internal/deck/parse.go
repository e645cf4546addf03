package deck

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultTitle is used when the agent output carries no usable title.
const DefaultTitle = "Generated Presentation"

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// agentOutput is the structured shape the agent is instructed to emit.
type agentOutput struct {
	Title    string `json:"title"`
	Sections []any  `json:"sections"`
}

// ParseAgentOutput extracts the deck title and section markup from the
// agent's final text. Strategies are tried in order: a fenced JSON code
// block, a bare JSON object containing the "sections" key, the outermost
// {...} span. If everything fails, a single diagnostic section holding the
// raw text (truncated) is returned with degraded=true, so the caller always
// gets something renderable.
func ParseAgentOutput(text string) (title string, sections []string, degraded bool) {
	if out, ok := parseFenced(text); ok {
		return out.Title, normalizeSections(out.Sections), false
	}
	if out, ok := parseBareObject(text); ok {
		return out.Title, normalizeSections(out.Sections), false
	}
	if out, ok := parseOutermost(text); ok {
		return out.Title, normalizeSections(out.Sections), false
	}

	return DefaultTitle, []string{DiagnosticSection(text)}, true
}

// parseFenced tries each fenced code block in turn.
func parseFenced(text string) (agentOutput, bool) {
	for _, m := range fencedJSONPattern.FindAllStringSubmatch(text, -1) {
		if out, ok := decodeOutput(m[1]); ok {
			return out, true
		}
	}
	return agentOutput{}, false
}

// parseBareObject finds the object enclosing the "sections" key by
// scanning back to the nearest opening brace and forward to its match.
// Heuristic: nested braces inside slide markup can defeat it, which is why
// the diagnostic fallback exists.
func parseBareObject(text string) (agentOutput, bool) {
	idx := strings.Index(text, `"sections"`)
	if idx < 0 {
		return agentOutput{}, false
	}

	start := strings.LastIndexByte(text[:idx], '{')
	if start < 0 {
		return agentOutput{}, false
	}

	end := matchingBrace(text, start)
	if end < 0 {
		return agentOutput{}, false
	}

	return decodeOutput(text[start : end+1])
}

// parseOutermost takes the span from the first '{' to the last '}'.
func parseOutermost(text string) (agentOutput, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return agentOutput{}, false
	}
	return decodeOutput(text[start : end+1])
}

// matchingBrace returns the offset of the brace closing the one at start,
// honoring JSON string literals and escapes.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeOutput(candidate string) (agentOutput, bool) {
	var out agentOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return agentOutput{}, false
	}
	if len(out.Sections) == 0 {
		return agentOutput{}, false
	}
	if out.Title == "" {
		out.Title = DefaultTitle
	}
	return out, true
}

// normalizeSections accepts both the current shape (bare markup strings)
// and the legacy shape (objects with a "slide" field).
func normalizeSections(raw []any) []string {
	sections := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				sections = append(sections, v)
			}
		case map[string]any:
			if slide, ok := v["slide"].(string); ok && strings.TrimSpace(slide) != "" {
				sections = append(sections, slide)
			} else if h, ok := v["html"].(string); ok && strings.TrimSpace(h) != "" {
				sections = append(sections, h)
			}
		}
	}
	return sections
}
