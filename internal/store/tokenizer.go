package store

import (
	"strings"
	"unicode"
)

// DefaultEnglishStopWords are dropped from plain lexical queries.
var DefaultEnglishStopWords = []string{
	"a", "about", "after", "all", "also", "an", "and", "any", "are", "as", "at",
	"be", "been", "but", "by", "can", "could", "did", "do", "does", "for", "from",
	"had", "has", "have", "he", "her", "his", "how", "if", "in", "into", "is", "it",
	"its", "me", "more", "most", "my", "no", "not", "of", "on", "or", "our", "out",
	"she", "so", "such", "than", "that", "the", "their", "them", "then", "there",
	"these", "they", "this", "those", "to", "up", "us", "was", "we", "were", "what",
	"when", "where", "which", "who", "why", "will", "with", "would", "you", "your",
}

// TokenizeText splits prose into lowercased letter/digit runs. Apostrophes
// inside words are dropped ("Fed's" becomes "feds"). Tokens shorter than
// minLen runes are skipped.
func TokenizeText(text string, minLen int) []string {
	var tokens []string
	var cur strings.Builder
	n := 0

	flush := func() {
		if n >= minLen && n > 0 {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
		n = 0
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(unicode.ToLower(r))
			n++
		case (r == '\'' || r == '’') && n > 0:
			// skip
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// queryTerms tokenizes a plain query and removes stop words and repeats.
func queryTerms(query string, cfg BM25Config, stopWords map[string]struct{}) []string {
	minLen := cfg.MinTokenLength
	if minLen <= 0 {
		minLen = 2
	}
	tokens := FilterStopWords(TokenizeText(query, minLen), stopWords)

	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
