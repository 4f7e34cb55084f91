package parser

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Tokenize lowercases text, keeps purely alphabetic words, drops stopwords and
// stems what remains. Queries and documents go through the same function so
// their terms line up in the index.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if isStopword(word) {
			continue
		}
		stemmed := english.Stem(word, false)
		if stemmed == "" || isStopword(stemmed) {
			continue
		}
		tokens = append(tokens, stemmed)
	}
	return tokens
}
