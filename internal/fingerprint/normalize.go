// Package fingerprint computes the near-duplicate signals for documents: a
// 64-bit simhash fingerprint and TF-IDF term vectors for cosine comparison.
// Everything here is a pure function of its input text.
package fingerprint

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlExpr   = regexp.MustCompile(`https?://\S+`)
	tagExpr   = regexp.MustCompile(`<[^>]*>`)
	spaceExpr = regexp.MustCompile(`\s+`)
)

// Normalize lowercases the text and strips URLs, HTML markup, punctuation and
// duplicated whitespace. Identical input always yields identical output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(text)
	text = urlExpr.ReplaceAllString(text, " ")
	text = tagExpr.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	return strings.TrimSpace(spaceExpr.ReplaceAllString(b.String(), " "))
}

// Tokenize normalizes the text and splits it into terms, dropping stop words
// and single-character fragments.
func Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if isStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TermFrequencies returns the token frequency map for the text.
func TermFrequencies(text string) map[string]int {
	tokens := Tokenize(text)
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}
