package simhash

import (
	"strings"
	"unicode"
)

// normalizeWords lowercases text, drops links and collapses mentions and
// numbers to placeholders.
func normalizeWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "http://"), strings.HasPrefix(f, "https://"):
			continue
		case strings.HasPrefix(f, "@") && len(f) > 1:
			words = append(words, "@user")
			continue
		case isNumber(f):
			words = append(words, "#num")
			continue
		}
		w := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) && r != '#'
		})
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func isNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',' || r == '%' || r == '$':
		default:
			return false
		}
	}
	return digits > 0
}

// makeShingles joins each run of n consecutive tokens with "_".
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
