package telegram

import (
	"strings"
	"unicode/utf8"
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// escapeMarkdown makes free text from task definitions and rail responses
// safe to embed in a legacy Markdown message.
func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// codeSpan wraps text in an inline code span. Backticks cannot be escaped
// inside a span in legacy Markdown, so they are replaced.
func codeSpan(text string) string {
	if text == "" {
		return "-"
	}
	return "`" + strings.ReplaceAll(text, "`", "'") + "`"
}

// truncateMessage keeps a message within maxLen runes, cutting at the last
// newline in the second half of the allowed text when there is one.
func truncateMessage(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	const suffix = "\n\n... (truncated)"
	runes := []rune(text)
	keep := maxLen - utf8.RuneCountInString(suffix)
	chunk := string(runes[:keep])
	if i := strings.LastIndex(chunk, "\n"); i > len(chunk)/2 {
		chunk = chunk[:i]
	}
	return chunk + suffix
}
