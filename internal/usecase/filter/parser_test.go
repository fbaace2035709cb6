package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fcfilter/internal/domain"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *domain.ToolSelection
	}{
		{"empty", "", nil},
		{"whitespace", "  \n\t", nil},
		{"not json", "not json", nil},
		{"empty object params", `{"name":"x","parameters":{}}`, &domain.ToolSelection{Name: "x", Parameters: map[string]any{}}},
		{"no name", `{"foo":1}`, nil},
		{"params absent", `{"name":"get_current_time"}`, &domain.ToolSelection{Name: "get_current_time", Parameters: map[string]any{}}},
		{"params null", `{"name":"t","parameters":null}`, &domain.ToolSelection{Name: "t", Parameters: map[string]any{}}},
		{"params values", `{"name":"w","parameters":{"location":"Rome","days":3}}`,
			&domain.ToolSelection{Name: "w", Parameters: map[string]any{"location": "Rome", "days": float64(3)}}},
		{"params not object", `{"name":"t","parameters":"location=Rome"}`, nil},
		{"name not string", `{"name":42}`, nil},
		{"name blank", `{"name":"  "}`, nil},
		{"array", `[{"name":"t"}]`, nil},
		{"json string", `""`, nil},
		{"null", `null`, nil},
		{"trailing text", `{"name":"t"} I picked t`, nil},
		{"fenced", "```json\n{\"name\":\"t\",\"parameters\":{}}\n```", &domain.ToolSelection{Name: "t", Parameters: map[string]any{}}},
		{"fenced no lang", "```\n{\"name\":\"t\"}\n```", &domain.ToolSelection{Name: "t", Parameters: map[string]any{}}},
		{"surrounding whitespace", "\n  {\"name\":\"t\"}  \n", &domain.ToolSelection{Name: "t", Parameters: map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSelection(tt.raw)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, *tt.want, got)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```JSON\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", stripCodeFences("  plain  "))
}
