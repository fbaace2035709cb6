package filter

import (
	"strings"
	"unicode/utf8"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
)

// Injector splices a tool result into the conversation's system message.
type Injector struct {
	template string
	maxBytes int
}

// NewInjector creates an injector. maxBytes <= 0 leaves results uncapped.
func NewInjector(template string, maxBytes int) *Injector {
	return &Injector{template: template, maxBytes: maxBytes}
}

// Render substitutes result for every context placeholder in the template.
func (i *Injector) Render(result string) string {
	if i.maxBytes > 0 {
		result = truncate(result, i.maxBytes)
	}
	return strings.ReplaceAll(i.template, config.ContextPlaceholder, result)
}

// Inject returns a copy of body whose leading system message carries the
// rendered context ahead of its previous text, or which gains a new leading
// system message. body itself is left untouched.
func (i *Injector) Inject(body *domain.ChatBody, result string) *domain.ChatBody {
	rendered := i.Render(result)

	if len(body.Messages) > 0 && body.Messages[0].Role == domain.RoleSystem {
		msgs := make([]domain.Message, len(body.Messages))
		copy(msgs, body.Messages)
		first := msgs[0]
		first.Content = domain.TextContent(rendered + "\n" + first.Content.String())
		msgs[0] = first
		return body.WithMessages(msgs)
	}

	msgs := make([]domain.Message, 0, len(body.Messages)+1)
	msgs = append(msgs, domain.NewMessage(domain.RoleSystem, rendered))
	msgs = append(msgs, body.Messages...)
	return body.WithMessages(msgs)
}

// truncate shortens s to maxLen bytes on a clean UTF-8 boundary,
// appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
