package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"fcfilter/internal/domain"
)

// DefaultHistoryTurns is how many trailing messages the selection prompt shows.
const DefaultHistoryTurns = 4

const selectionPolicy = `If a function tool doesn't match the query, return an empty string. ` +
	`Else, pick a function tool, fill in the parameters from the function tool's schema, ` +
	`and return it in the format { "name": "functionName", "parameters": { "key": "value" } }. ` +
	`Only pick a function if the user asks. Only return the object. Do not return any other text.`

// BuildPrompt renders the two-message tool selection prompt: a system
// message listing the tools and the selection policy, and a user message
// with the most recent turns (newest first) followed by the query.
func BuildPrompt(specs []domain.ToolSpec, history []domain.Message, query string, turns int) ([]domain.Message, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if specs == nil {
		specs = []domain.ToolSpec{}
	}
	if err := enc.Encode(specs); err != nil {
		return nil, fmt.Errorf("encode tool specs: %w", err)
	}

	system := "Tools: " + strings.TrimRight(buf.String(), "\n") + "\n" + selectionPolicy

	var user strings.Builder
	user.WriteString("History:\n")
	lines := make([]string, 0, turns)
	for i := len(history) - 1; i >= 0 && len(lines) < turns; i-- {
		m := history[i]
		lines = append(lines, m.Role+": "+m.Content.String())
	}
	user.WriteString(strings.Join(lines, "\n"))
	user.WriteString("\nQuery: ")
	user.WriteString(query)

	return []domain.Message{
		domain.NewMessage(domain.RoleSystem, system),
		domain.NewMessage(domain.RoleUser, user.String()),
	}, nil
}
