package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DetectMentions returns the participants whose names are @-mentioned in
// content, in the participants' given order. A mention matches the full
// display name or its first token, case-insensitively, at a word boundary.
// No mentions means the message addresses everyone.
func DetectMentions(content string, participants []string) []string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "@") {
		return nil
	}
	var mentioned []string
	for _, name := range participants {
		full := strings.ToLower(strings.TrimSpace(name))
		if full == "" {
			continue
		}
		if containsMention(lower, full) {
			mentioned = append(mentioned, name)
			continue
		}
		// First-name shorthand: "@rene" matches "René Descartes" only when
		// no other participant's full name already claimed the text.
		if first := strings.Fields(full)[0]; first != full && containsMention(lower, first) {
			mentioned = append(mentioned, name)
		}
	}
	return mentioned
}

// containsMention reports whether content contains "@"+name ending at a word
// boundary. Both arguments are already lowercased.
func containsMention(content, name string) bool {
	target := "@" + name
	for start := 0; ; {
		i := strings.Index(content[start:], target)
		if i < 0 {
			return false
		}
		end := start + i + len(target)
		if end >= len(content) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(content[end:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		start = start + i + 1
	}
}
