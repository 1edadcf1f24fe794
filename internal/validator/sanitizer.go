package validator

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Facts are the business attributes available as deterministic filler
// when padding under-length content.
type Facts struct {
	CompanyName string
	City        string
	Category    string
}

func (f Facts) complete() bool {
	return f.CompanyName != "" && f.City != "" && f.Category != ""
}

// Sanitize is the best-effort repair pass for format/length rejections:
// keep only the first sentence, fix leading capitalization and terminal
// punctuation, truncate over-length text at a word boundary, and pad
// under-length text with a templated sentence built from facts. Callers
// re-validate the result exactly once; a second rejection is a hard
// failure for the generation attempt.
func Sanitize(text string, facts Facts) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return text
	}

	text = firstSentence(text)
	text = capitalizeFirst(text)
	text = ensureTerminal(text)

	if utf8.RuneCountInString(text) > MaxLength {
		text = truncateAtWordBoundary(text, MaxLength)
	}

	if utf8.RuneCountInString(text) < MinLength && facts.complete() {
		filler := fmt.Sprintf(
			"%s accompagne ses clients à %s pour chaque intervention de %s réalisée avec sérieux.",
			facts.CompanyName, facts.City, strings.ToLower(facts.Category),
		)
		text = text + " " + filler
		if utf8.RuneCountInString(text) > MaxLength {
			text = truncateAtWordBoundary(text, MaxLength)
		}
	}

	return text
}

func firstSentence(text string) string {
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		return strings.TrimSpace(text[:idx+1])
	}
	return text
}

func capitalizeFirst(text string) string {
	first, size := utf8.DecodeRuneInString(text)
	if unicode.IsUpper(first) {
		return text
	}
	return string(unicode.ToUpper(first)) + text[size:]
}

func ensureTerminal(text string) string {
	last, _ := utf8.DecodeLastRuneInString(text)
	if last == '.' || last == '!' || last == '?' {
		return text
	}
	return text + "."
}

// truncateAtWordBoundary cuts at the last space before max runes, leaving
// room for the final period.
func truncateAtWordBoundary(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max-1])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	cut = strings.TrimRight(cut, " ,;:")
	return ensureTerminal(cut)
}
