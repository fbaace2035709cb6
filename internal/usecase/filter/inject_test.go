package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
)

func TestInjectMergesNewBeforeOld(t *testing.T) {
	body := &domain.ChatBody{Messages: []domain.Message{
		domain.NewMessage(domain.RoleSystem, "A"),
		domain.NewMessage(domain.RoleUser, "q"),
	}}

	out := NewInjector("Ctx: {{CONTEXT}}", 0).Inject(body, "B")
	require.Len(t, out.Messages, 2)
	assert.Equal(t, domain.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, "Ctx: B\nA", out.Messages[0].Content.String())
	assert.Equal(t, "q", out.Messages[1].Content.String())

	assert.Equal(t, "A", body.Messages[0].Content.String(), "input must not be mutated")
}

func TestInjectInsertsSystemMessage(t *testing.T) {
	body := &domain.ChatBody{Messages: []domain.Message{domain.NewMessage(domain.RoleUser, "hi")}}

	out := NewInjector("Ctx: {{CONTEXT}}", 0).Inject(body, "B")
	require.Len(t, out.Messages, 2)
	assert.Equal(t, domain.NewMessage(domain.RoleSystem, "Ctx: B"), out.Messages[0])
	assert.Equal(t, body.Messages[0], out.Messages[1])
	assert.Len(t, body.Messages, 1)
}

func TestInjectLaterSystemMessageIsNotMerged(t *testing.T) {
	body := &domain.ChatBody{Messages: []domain.Message{
		domain.NewMessage(domain.RoleUser, "hi"),
		domain.NewMessage(domain.RoleSystem, "late"),
	}}
	out := NewInjector("{{CONTEXT}}", 0).Inject(body, "B")
	require.Len(t, out.Messages, 3)
	assert.Equal(t, "B", out.Messages[0].Content.String())
	assert.Equal(t, "late", out.Messages[2].Content.String())
}

func TestInjectPreservesBodyFields(t *testing.T) {
	in := `{"model":"llama3","stream":true,"metadata":{"chat_id":"c1"},` +
		`"messages":[{"role":"system","content":"A","id":"s1"},{"role":"user","content":"q"}]}`
	var body domain.ChatBody
	require.NoError(t, json.Unmarshal([]byte(in), &body))

	out := NewInjector("Ctx: {{CONTEXT}}", 0).Inject(&body, "B")
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"llama3","stream":true,"metadata":{"chat_id":"c1"},`+
		`"messages":[{"role":"system","content":"Ctx: B\nA","id":"s1"},{"role":"user","content":"q"}]}`, string(data))
}

func TestInjectFlattensPartContent(t *testing.T) {
	body := &domain.ChatBody{Messages: []domain.Message{{
		Role: domain.RoleSystem,
		Content: domain.Content{Parts: []domain.ContentPart{
			{Type: "text", Text: "one"},
			{Type: "text", Text: "two"},
		}},
	}}}
	out := NewInjector("{{CONTEXT}}", 0).Inject(body, "B")
	assert.False(t, out.Messages[0].Content.IsParts())
	assert.Equal(t, "B\none\ntwo", out.Messages[0].Content.String())
	assert.True(t, body.Messages[0].Content.IsParts())
}

func TestRenderReplacesEveryPlaceholder(t *testing.T) {
	r := NewInjector("<context>{{CONTEXT}}</context> again: {{CONTEXT}}", 0).Render("X")
	assert.Equal(t, "<context>X</context> again: X", r)
}

func TestRenderDefaultTemplate(t *testing.T) {
	r := NewInjector(config.DefaultTemplate, 0).Render("Current Time = 14:30:00")
	assert.Contains(t, r, "Current Time = 14:30:00")
	assert.NotContains(t, r, config.ContextPlaceholder)
}

func TestRenderCapsResult(t *testing.T) {
	r := NewInjector("[{{CONTEXT}}]", 5).Render("abcdefghij")
	assert.Equal(t, "[abcde...]", r)

	r = NewInjector("[{{CONTEXT}}]", 5).Render("abc")
	assert.Equal(t, "[abc]", r)
}
