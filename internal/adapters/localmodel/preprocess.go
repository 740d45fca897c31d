package localmodel

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Preprocess strips URLs, collapses whitespace and lowercases text
func Preprocess(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = norm.NFKC.String(text)
	return strings.TrimSpace(cases.Lower(language.Und).String(text))
}

// Tokenize splits preprocessed text into word tokens, keeping at most maxTokens.
// A non-positive maxTokens keeps every token.
func Tokenize(text string, maxTokens int) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if maxTokens > 0 && len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	return tokens
}
