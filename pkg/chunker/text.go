package chunker

import (
	"regexp"
	"sort"
	"strings"
)

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// Tokenize lowercases text and returns its word tokens.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// IsStopword reports whether a lowercased token is a common English stopword.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

var stopwords = stopwordSet(nil)

func stopwordSet(custom []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range getStopwords() {
		set[w] = struct{}{}
	}
	for _, w := range custom {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// topic returns the most frequent content word of four or more letters.
func topic(text string, stop map[string]struct{}) string {
	counts := make(map[string]int)
	for _, tok := range Tokenize(text) {
		if len([]rune(tok)) < 4 {
			continue
		}
		if _, ok := stop[tok]; ok {
			continue
		}
		counts[tok]++
	}
	if len(counts) == 0 {
		return ""
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return words[0]
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "about", "after", "all", "also", "an", "and", "any", "are", "as", "at",
		"be", "because", "been", "but", "by", "can", "could", "do", "does", "for",
		"from", "had", "has", "have", "he", "her", "his", "how", "i", "if", "in",
		"into", "is", "it", "its", "just", "more", "most", "not", "now", "of", "on",
		"one", "or", "other", "our", "she", "so", "some", "such", "than", "that",
		"the", "their", "them", "then", "there", "these", "they", "this", "those",
		"through", "to", "very", "was", "we", "were", "what", "when", "where",
		"which", "while", "who", "why", "will", "with", "would", "you", "your",
	}
}
