// Package format renders text for Telegram parse modes.
package format

import "strings"

// mdV2Specials lists characters that must be escaped anywhere in MarkdownV2 text.
const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var mdV2Replacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(mdV2Specials)*2)
	for _, r := range mdV2Specials {
		pairs = append(pairs, string(r), "\\"+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// EscapeMarkdownV2 escapes text so it renders literally in MarkdownV2 messages.
func EscapeMarkdownV2(text string) string {
	return mdV2Replacer.Replace(text)
}

// EscapeCodeV2 escapes text placed inside `code` or ```pre``` entities, where only ` and \ are special.
func EscapeCodeV2(text string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text)
}

// Bold wraps already escaped text into a bold entity.
func Bold(escaped string) string {
	return "*" + escaped + "*"
}

// Code renders raw text as an inline code entity.
func Code(raw string) string {
	return "`" + EscapeCodeV2(raw) + "`"
}
