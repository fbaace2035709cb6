package filter

import (
	"encoding/json"
	"regexp"
	"strings"

	"fcfilter/internal/domain"
)

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseSelection interprets the auxiliary model's reply. The second result
// is false for an empty reply, anything that is not a JSON object, an object
// without a non-empty string "name", or one whose "parameters" is present
// but not an object.
func ParseSelection(raw string) (domain.ToolSelection, bool) {
	text := stripCodeFences(raw)
	if text == "" {
		return domain.ToolSelection{}, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return domain.ToolSelection{}, false
	}

	name, ok := obj["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return domain.ToolSelection{}, false
	}

	params := map[string]any{}
	switch p := obj["parameters"].(type) {
	case nil:
	case map[string]any:
		params = p
	default:
		return domain.ToolSelection{}, false
	}
	return domain.ToolSelection{Name: name, Parameters: params}, true
}
