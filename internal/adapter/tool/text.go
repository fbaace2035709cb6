package tool

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultMaxBodySize = 1 * 1024 * 1024 // 1MB

// condense splits text into sentences and reduces each to its alphanumeric,
// non-stopword tokens. Sentences left empty are dropped.
func condense(text string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		var kept []string
		for _, tok := range strings.FieldsFunc(sentence, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if englishStopwords[strings.ToLower(tok)] {
				continue
			}
			kept = append(kept, tok)
		}
		if len(kept) > 0 {
			out = append(out, strings.Join(kept, " "))
		}
	}
	return out
}

// splitSentences breaks on '.', '!' or '?' followed by whitespace, and on
// blank lines. A period between digits ("3.5") does not end a sentence.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size
		switch {
		case r == '.' || r == '!' || r == '?':
			if next >= len(text) {
				break
			}
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if unicode.IsSpace(nr) {
				flush(next)
			}
		case r == '\n' && strings.HasPrefix(text[next:], "\n"):
			flush(next)
		}
		i = next
	}
	flush(len(text))
	return out
}

// truncate shortens a string to maxLen bytes on a clean UTF-8 boundary,
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

// englishStopwords is the common English stop word list used for search
// result condensation.
var englishStopwords = func() map[string]bool {
	words := strings.Fields(`
i me my myself we our ours ourselves you you're you've you'll you'd your yours yourself
yourselves he him his himself she she's her hers herself it it's its itself they them their
theirs themselves what which who whom this that that'll these those am is are was were be been
being have has had having do does did doing a an the and but if or because as until while of at
by for with about against between into through during before after above below to from up down
in out on off over under again further then once here there when where why how all any both each
few more most other some such no nor not only own same so than too very s t can will just don
don't should should've now d ll m o re ve y ain aren aren't couldn couldn't didn didn't doesn
doesn't hadn hadn't hasn hasn't haven haven't isn isn't ma mightn mightn't mustn mustn't needn
needn't shan shan't shouldn shouldn't wasn wasn't weren weren't won won't wouldn wouldn't`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
