package helpers

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute. Content of script, style and similar elements is dropped.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText returns the visible text of an HTML document or fragment with entities
// decoded and whitespace collapsed.
func PlainText(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	// Tag boundaries become spaces so adjacent block elements do not fuse words.
	spaced := strings.ReplaceAll(markup, "<", " <")
	return NormalizeWhitespace(html.UnescapeString(StrictHTMLPolicy().Sanitize(spaced)))
}

// NormalizeWhitespace collapses runs of spaces and tabs, keeps at most one blank
// line between paragraphs and trims the result.
func NormalizeWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}

// TruncateRunes cuts s to at most n runes. n <= 0 disables truncation.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
