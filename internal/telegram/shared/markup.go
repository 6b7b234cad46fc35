package shared

import "strings"

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes text for Telegram HTML mode.
func EscapeHTML(value string) string {
	return htmlReplacer.Replace(value)
}

// Bold wraps escaped text in a bold tag.
func Bold(value string) string {
	return "<b>" + EscapeHTML(value) + "</b>"
}

// Code wraps escaped text in an inline code tag.
func Code(value string) string {
	return "<code>" + EscapeHTML(value) + "</code>"
}

// Field renders a "label: value" line with a bold label and an escaped value.
func Field(label, value string) string {
	return Bold(label) + ": " + EscapeHTML(value)
}
