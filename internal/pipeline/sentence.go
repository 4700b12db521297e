package pipeline

import "strings"

var abbreviations = []string{
	"dr.", "mr.", "mrs.", "ms.", "jr.", "sr.", "st.", "ave.", "apt.",
	"inc.", "ltd.", "co.", "vs.", "etc.", "i.e.", "e.g.", "a.m.", "p.m.",
}

// SentenceBuffer collects model fragments and releases whole sentences. A
// sentence ends at '.', '!' or '?' followed by whitespace, unless the period
// closes a known abbreviation or a single initial.
type SentenceBuffer struct {
	pending strings.Builder
}

func NewSentenceBuffer() *SentenceBuffer {
	return &SentenceBuffer{}
}

// Add appends fragment and returns the sentences it completed, trimmed and
// never empty.
func (b *SentenceBuffer) Add(fragment string) []string {
	b.pending.WriteString(fragment)
	content := b.pending.String()

	var out []string
	last := 0
	for i := 0; i+1 < len(content); i++ {
		if !sentenceEndsAt(content, i) {
			continue
		}
		if s := strings.TrimSpace(content[last : i+1]); s != "" {
			out = append(out, s)
		}
		last = i + 1
	}
	if last > 0 {
		b.pending.Reset()
		b.pending.WriteString(content[last:])
	}
	return out
}

// Flush returns the trailing text that never reached a boundary.
func (b *SentenceBuffer) Flush() string {
	s := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	return s
}

func sentenceEndsAt(s string, i int) bool {
	switch s[i] {
	case '.', '!', '?':
	default:
		return false
	}
	if !isSpace(s[i+1]) {
		return false
	}
	return s[i] != '.' || !endsAbbreviation(s, i)
}

func endsAbbreviation(s string, i int) bool {
	start := i
	for start > 0 && !isSpace(s[start-1]) {
		start--
	}
	word := strings.ToLower(s[start : i+1])
	for _, abbr := range abbreviations {
		if word == abbr {
			return true
		}
	}
	// Initials such as "J."
	return i-start == 1 && s[start] >= 'A' && s[start] <= 'Z'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
