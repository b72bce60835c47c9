package format

import "strings"

const mdV2Specials = "_*[]()~`>#+-=|{}.!"

// EscapeV2 escapes all MarkdownV2 special characters in plain text so it can
// be embedded in a MarkdownV2 message verbatim.
func EscapeV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 128 && strings.ContainsRune(mdV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Bold wraps escaped text in MarkdownV2 bold markers.
func Bold(text string) string {
	return "*" + EscapeV2(text) + "*"
}

// Link renders a MarkdownV2 inline link. The URL part only needs ')' and '\'
// escaped per the Bot API rules.
func Link(label, url string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(url)
	return "[" + EscapeV2(label) + "](" + escaped + ")"
}
