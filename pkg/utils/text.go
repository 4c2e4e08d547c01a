// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// Prefix returns the first n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Tokenize lower-cases s and splits it into runs of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize lower-cases s and collapses every run of non-alphanumeric characters to one space,
// so "Editing-Palette", "editing_palette" and "editing palette" compare equal.
func Normalize(s string) string {
	return strings.Join(Tokenize(s), " ")
}

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at
		be because been before being below between both but by can could did do does doing down
		during each few for from further had has have having he her here hers him his how i if in
		into is it its itself just me more most my no nor not of off on once only or other our ours
		out over own same she should so some such than that the their theirs them then there these
		they this those through to too under until up very was we were what when where which while
		who whom why will with would you your yours`) {
		stopwords[w] = true
	}
}

// IsStopword reports whether the lower-case token is a common English function word.
func IsStopword(token string) bool {
	return stopwords[token]
}

// ContentTokens returns the tokens of s that are not stopwords, de-duplicated in first-seen order.
func ContentTokens(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokenize(s) {
		if IsStopword(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// TokenSet returns the set of tokens of s.
func TokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(s) {
		set[t] = true
	}
	return set
}
