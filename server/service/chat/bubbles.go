package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// Replies shorter than this read fine as one bubble.
	bubbleMinSplitLen = 60
	// A bubble growing past this forces a boundary at the next sentence.
	bubbleMaxLen = 300
)

// Sentence openers that read like a turn in thought and so start a new
// bubble even when the current one still has room.
var bubbleTransitions = []string{
	"however",
	"but",
	"although",
	"that said",
	"on the other hand",
	"still",
	"yet",
	"moreover",
	"furthermore",
	"meanwhile",
	"nevertheless",
	"in fact",
	"then again",
}

// SplitBubbles splits a thinker reply into chat bubbles at sentence
// boundaries. Short replies are never split; long ones break at bubbleMaxLen
// or at a transition word. Quoted spans are kept intact, so a quoted
// participant name never straddles two bubbles.
func SplitBubbles(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if utf8.RuneCountInString(content) < bubbleMinSplitLen {
		return []string{content}
	}

	sentences := splitSentences(content)
	if len(sentences) <= 1 {
		return []string{content}
	}

	var bubbles []string
	var cur strings.Builder
	curRunes := 0
	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		if cur.Len() > 0 && (curRunes+n > bubbleMaxLen || startsWithTransition(sentence)) {
			bubbles = append(bubbles, strings.TrimSpace(cur.String()))
			cur.Reset()
			curRunes = 0
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
			curRunes++
		}
		cur.WriteString(sentence)
		curRunes += n
	}
	if cur.Len() > 0 {
		bubbles = append(bubbles, strings.TrimSpace(cur.String()))
	}
	if len(bubbles) == 1 {
		return []string{content}
	}
	return bubbles
}

// splitSentences cuts content at terminal punctuation followed by whitespace.
// Punctuation inside double quotes does not end a sentence.
func splitSentences(content string) []string {
	var sentences []string
	var cur strings.Builder
	inQuote := false

	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cur.WriteRune(r)
		switch r {
		case '"', '“', '”':
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			// Swallow closing quotes and repeated punctuation.
			for i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '”' || runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
				cur.WriteRune(runes[i])
			}
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
				for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
					i++
				}
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func startsWithTransition(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, w := range bubbleTransitions {
		if strings.HasPrefix(lower, w) {
			rest := lower[len(w):]
			if rest == "" {
				return true
			}
			r, _ := utf8.DecodeRuneInString(rest)
			if !unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}
