package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatBodyPreservesUnknownFields(t *testing.T) {
	in := `{"model":"llama3","stream":true,"metadata":{"chat_id":"c1"},"messages":[{"role":"user","content":"hi","id":"m1"}]}`

	var body ChatBody
	require.NoError(t, json.Unmarshal([]byte(in), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, RoleUser, body.Messages[0].Role)
	assert.Equal(t, "hi", body.Messages[0].Content.String())

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestChatBodyTitleFlag(t *testing.T) {
	cases := map[string]bool{
		`{"messages":[]}`:               false,
		`{"title":true,"messages":[]}`:  true,
		`{"title":false,"messages":[]}`: false,
		`{"title":"yes","messages":[]}`: false,
	}
	for in, want := range cases {
		var body ChatBody
		require.NoError(t, json.Unmarshal([]byte(in), &body))
		assert.Equal(t, want, body.IsTitleRequest(), in)
	}
}

func TestChatBodyKeepsWireShape(t *testing.T) {
	cases := []string{
		`{"title":true,"messages":[{"role":"assistant","content":null,"tool_calls":[{"id":"1"}]},{"role":"user","content":"hi"}]}`,
		`{"messages":[{"role":"assistant","tool_calls":[{"id":"1"}]}]}`,
		`{"messages":[{"content":"no role"}]}`,
		`{"messages":[{"role":"user","content":""}]}`,
		`{"model":"m","messages":null}`,
		`{"model":"m"}`,
	}
	for _, in := range cases {
		var body ChatBody
		require.NoError(t, json.Unmarshal([]byte(in), &body), in)
		out, err := json.Marshal(body)
		require.NoError(t, err, in)
		assert.JSONEq(t, in, string(out), in)
	}
}

func TestNullContent(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":null}`), &m))
	assert.True(t, m.Content.IsNull())
	assert.Equal(t, "", m.Content.String())

	assert.False(t, NewMessage(RoleUser, "").Content.IsNull())
	out, err := json.Marshal(NewMessage(RoleUser, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":""}`, string(out))
}

func TestWithMessagesFromEmptyBody(t *testing.T) {
	var body ChatBody
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m"}`), &body))
	out, err := json.Marshal(body.WithMessages([]Message{NewMessage(RoleSystem, "s")}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m","messages":[{"role":"system","content":"s"}]}`, string(out))
}

func TestContentParts(t *testing.T) {
	in := `[{"type":"text","text":"what is this"},{"type":"image_url","image_url":{"url":"data:x"}},{"type":"text","text":"picture"}]`

	var c Content
	require.NoError(t, json.Unmarshal([]byte(in), &c))
	assert.True(t, c.IsParts())
	assert.Equal(t, "what is this\npicture", c.String())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestContentRejectsObject(t *testing.T) {
	var c Content
	assert.Error(t, json.Unmarshal([]byte(`{"text":"x"}`), &c))
}

func TestLastUserMessage(t *testing.T) {
	body := &ChatBody{Messages: []Message{
		NewMessage(RoleSystem, "sys"),
		NewMessage(RoleUser, "first"),
		NewMessage(RoleAssistant, "reply"),
		NewMessage(RoleUser, "second"),
		NewMessage(RoleAssistant, "trailing"),
	}}
	got, ok := body.LastUserMessage()
	assert.True(t, ok)
	assert.Equal(t, "second", got)

	_, ok = (&ChatBody{}).LastUserMessage()
	assert.False(t, ok)
}

func TestWithMessagesDoesNotTouchOriginal(t *testing.T) {
	body := &ChatBody{
		Messages: []Message{NewMessage(RoleUser, "hi")},
		Extra:    map[string]json.RawMessage{"model": json.RawMessage(`"x"`)},
	}
	next := body.WithMessages([]Message{NewMessage(RoleSystem, "s"), NewMessage(RoleUser, "hi")})

	assert.Len(t, body.Messages, 1)
	assert.Len(t, next.Messages, 2)
	assert.Equal(t, body.Extra, next.Extra)
}

func TestToolArgsAccessors(t *testing.T) {
	args := ToolArgs{"s": "text", "n": float64(3), "b": true}
	assert.Equal(t, "text", args.String("s"))
	assert.Equal(t, "", args.String("missing"))
	assert.Equal(t, 3, args.Int("n"))
	assert.True(t, args.Bool("b"))
	assert.False(t, args.Bool("s"))
}
