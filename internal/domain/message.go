package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPart is one typed part of a multi-part message (e.g. text, image_url).
// Parts other than text are carried through verbatim.
type ContentPart struct {
	Type string
	Text string
	raw  json.RawMessage
}

// MarshalJSON writes the original part when it was decoded from the wire,
// otherwise a plain text part.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: p.Type, Text: p.Text})
}

// UnmarshalJSON keeps the raw part so unknown fields survive a round trip.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	p.Type = head.Type
	p.Text = head.Text
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Content is either a plain string or a sequence of typed parts. A JSON
// null decodes to empty content that encodes back to null.
type Content struct {
	Text  string
	Parts []ContentPart
	null  bool
}

// TextContent builds plain-string content.
func TextContent(s string) Content { return Content{Text: s} }

// IsParts reports whether the content is in multi-part form.
func (c Content) IsParts() bool { return c.Parts != nil }

// String returns the textual view of the content. Text parts are joined
// with newlines; non-text parts contribute nothing.
func (c Content) String() string {
	if !c.IsParts() {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// IsNull reports whether the content was decoded from a JSON null.
func (c Content) IsNull() bool { return c.null }

func (c Content) isZero() bool {
	return c.Text == "" && c.Parts == nil && !c.null
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.null {
		return []byte("null"), nil
	}
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		*c = Content{}
		return nil
	case bytes.Equal(data, []byte("null")):
		*c = Content{null: true}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case data[0] == '[':
		parts := []ContentPart{}
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("content: want string or array, got %s", truncateJSON(data))
	}
}

// Message represents a single turn in a conversation. Fields other than
// role and content are kept in Extra and written back unchanged. A role or
// content key absent on the wire stays absent unless it is later set.
type Message struct {
	Role    string
	Content Content
	Extra   map[string]json.RawMessage

	noRole    bool
	noContent bool
}

// NewMessage builds a plain-text message.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: TextContent(content)}
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if !(m.noRole && m.Role == "") {
		out["role"] = m.Role
	}
	if !(m.noContent && m.Content.isZero()) {
		out["content"] = m.Content
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = Message{}
	if raw, ok := fields["role"]; ok {
		if err := json.Unmarshal(raw, &m.Role); err != nil {
			return fmt.Errorf("message role: %w", err)
		}
		delete(fields, "role")
	} else {
		m.noRole = true
	}
	if raw, ok := fields["content"]; ok {
		if err := json.Unmarshal(raw, &m.Content); err != nil {
			return fmt.Errorf("message content: %w", err)
		}
		delete(fields, "content")
	} else {
		m.noContent = true
	}
	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// ChatBody is the inbound request the host hands to the filter. Every field
// other than messages is preserved verbatim in Extra.
type ChatBody struct {
	Messages []Message
	Extra    map[string]json.RawMessage

	// Wire shape of messages, consulted only while Messages is nil.
	noMessages   bool
	nullMessages bool
}

// IsTitleRequest reports whether the host flagged this body as a
// title-generation request.
func (b *ChatBody) IsTitleRequest() bool {
	raw, ok := b.Extra["title"]
	if !ok {
		return false
	}
	var title bool
	if err := json.Unmarshal(raw, &title); err != nil {
		return false
	}
	return title
}

// WithMessages returns a shallow copy of the body with messages replaced.
func (b *ChatBody) WithMessages(msgs []Message) *ChatBody {
	return &ChatBody{Messages: msgs, Extra: b.Extra}
}

// LastUserMessage returns the text of the most recent user turn.
func (b *ChatBody) LastUserMessage() (string, bool) {
	for i := len(b.Messages) - 1; i >= 0; i-- {
		if b.Messages[i].Role == RoleUser {
			return b.Messages[i].Content.String(), true
		}
	}
	return "", false
}

func (b ChatBody) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+1)
	for k, v := range b.Extra {
		out[k] = v
	}
	switch {
	case b.Messages != nil:
		out["messages"] = b.Messages
	case b.noMessages:
	case b.nullMessages:
		out["messages"] = nil
	default:
		out["messages"] = []Message{}
	}
	return json.Marshal(out)
}

func (b *ChatBody) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*b = ChatBody{}
	if raw, ok := fields["messages"]; ok {
		if err := json.Unmarshal(raw, &b.Messages); err != nil {
			return fmt.Errorf("messages: %w", err)
		}
		b.nullMessages = b.Messages == nil
		delete(fields, "messages")
	} else {
		b.noMessages = true
	}
	b.Extra = fields
	return nil
}

// ChatRequest is sent to the auxiliary model.
type ChatRequest struct {
	Model    string
	Messages []Message
}

// ChatResponse is returned from the auxiliary model.
type ChatResponse struct {
	Model   string
	Content string
}

func truncateJSON(data []byte) string {
	if len(data) > 32 {
		return string(data[:32]) + "..."
	}
	return string(data)
}
