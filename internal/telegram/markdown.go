package telegram

import (
	"regexp"
	"strings"
)

var codeSpan = regexp.MustCompile("(?s)```.*?```|`.*?`")

const markdownV2Special = "_*[]()~`>#+-=|{}.!"

// FormatMarkdownV2 prepares model output for parse_mode=MarkdownV2: fenced
// and inline code spans pass through untouched, every other reserved
// character is backslash-escaped.
func FormatMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/8)
	last := 0
	for _, loc := range codeSpan.FindAllStringIndex(text, -1) {
		escapeInto(&b, text[last:loc[0]])
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	escapeInto(&b, text[last:])
	return b.String()
}

func escapeInto(b *strings.Builder, s string) {
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
}
