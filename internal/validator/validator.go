package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length bounds for accepted content, in characters after trimming.
const (
	MinLength = 50
	MaxLength = 500
)

// Rejection reason codes. Validate returns "<code>: <detail>"; sinks are
// keyed by the code alone.
const (
	ReasonEmpty        = "empty_content"
	ReasonTooShort     = "too_short"
	ReasonTooLong      = "too_long"
	ReasonPattern      = "invalid_pattern"
	ReasonPhrase       = "forbidden_phrase"
	ReasonFormat       = "invalid_format"
	ReasonNoSubstance  = "no_meaningful_content"
	ReasonRepetition   = "excessive_repetition"
)

var invalidPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\{.*\}$`),          // raw JSON wrapper
	regexp.MustCompile(`^\[.*\]$`),          // raw array wrapper
	regexp.MustCompile(`<[^>]+>`),           // HTML/XML tags
	regexp.MustCompile(`(?i)lorem ipsum`),   // placeholder
	regexp.MustCompile(`(?i)\btodo\b`),      // placeholder
	regexp.MustCompile(`(?i)à compléter`),   // placeholder
	regexp.MustCompile(`(?i)\[placeholder\]`),
}

// Boilerplate "no information available" phrases the generation service
// falls back to when it has nothing to say. Substring match, lowercased.
var forbiddenPhrases = []string{
	"aucune information disponible",
	"aucune information n'est disponible",
	"aucune donnée disponible",
	"aucune donnée n'est disponible",
	"information non disponible",
	"pas d'information disponible",
	"données insuffisantes",
	"informations insuffisantes",
	"aucun avis disponible",
	"aucune évaluation disponible",
	"pas de données",
	"données manquantes",
	"information manquante",
	"contenu indisponible",
}

// Generic filler words that carry no business-specific substance.
var commonWords = map[string]struct{}{
	"cette": {}, "entreprise": {}, "société": {}, "offre": {}, "propose": {},
	"service": {}, "services": {}, "client": {}, "clients": {}, "qualité": {},
	"depuis": {}, "années": {}, "travail": {}, "équipe": {}, "domaine": {},
}

// Short function words excluded from the repetition check.
var stopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {},
	"de": {}, "du": {}, "et": {}, "à": {}, "en": {},
}

var longWordRe = regexp.MustCompile(`\p{L}{4,}`)

// Validator applies the editorial acceptance rules to generated text.
// Validate is pure: same input, same verdict; the only side effect is the
// rejection sink, which is injected so deployments can choose between a
// process-local counter and a shared metrics backend.
type Validator struct {
	sink RejectionSink
}

func New(sink RejectionSink) *Validator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Validator{sink: sink}
}

// Validate checks text against the acceptance rules in order; the first
// failing rule wins. It returns (true, "") on acceptance and
// (false, "<code>: <detail>") on rejection.
func (v *Validator) Validate(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return v.reject(ReasonEmpty, "empty or non-text content")
	}

	text = strings.TrimSpace(text)
	length := utf8.RuneCountInString(text)
	if length < MinLength {
		return v.reject(ReasonTooShort, fmt.Sprintf("%d < %d characters", length, MinLength))
	}
	if length > MaxLength {
		return v.reject(ReasonTooLong, fmt.Sprintf("%d > %d characters", length, MaxLength))
	}

	lower := strings.ToLower(text)

	for _, re := range invalidPatterns {
		if re.MatchString(lower) {
			return v.reject(ReasonPattern, re.String())
		}
	}

	for _, phrase := range forbiddenPhrases {
		if strings.Contains(lower, phrase) {
			return v.reject(ReasonPhrase, phrase)
		}
	}

	if !isJournalisticSentence(text) {
		return v.reject(ReasonFormat, "expected one to two journalistic sentences")
	}

	if !hasMeaningfulContent(lower) {
		return v.reject(ReasonNoSubstance, "content too generic")
	}

	if hasExcessiveRepetition(lower) {
		return v.reject(ReasonRepetition, "a token dominates the text")
	}

	if a, ok := v.sink.(AcceptanceSink); ok {
		a.Accepted()
	}
	return true, ""
}

func (v *Validator) reject(code, detail string) (bool, string) {
	v.sink.Rejected(code)
	return false, code + ": " + detail
}

// isJournalisticSentence: starts uppercase, ends with terminal
// punctuation, at most two sentences, at least five words of four or
// more letters.
func isJournalisticSentence(text string) bool {
	first, _ := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(first) {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	if last != '.' && last != '!' && last != '?' {
		return false
	}
	if strings.Count(text, ".")+strings.Count(text, "!")+strings.Count(text, "?") > 2 {
		return false
	}
	return len(longWordRe.FindAllString(text, -1)) >= 5
}

func hasMeaningfulContent(lower string) bool {
	words := longWordRe.FindAllString(lower, -1)
	if len(words) < 5 {
		return false
	}
	unique := 0
	for _, w := range words {
		if _, ok := commonWords[w]; !ok {
			unique++
		}
	}
	return float64(unique)/float64(len(words)) >= 0.4
}

func hasExcessiveRepetition(lower string) bool {
	tokens := strings.Fields(lower)
	if len(tokens) < 5 {
		return false
	}
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for tok, n := range counts {
		if _, stop := stopWords[tok]; stop || utf8.RuneCountInString(tok) <= 3 {
			continue
		}
		if float64(n)/float64(len(tokens)) > 0.3 {
			return true
		}
	}
	return false
}
