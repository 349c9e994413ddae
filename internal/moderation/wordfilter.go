package moderation

import (
	"strings"
	"unicode"

	"guildkeeper/internal/config"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Filter flags messages that resemble a banned entry. The comparison is the
// whole normalized message against each entry via edit-distance similarity,
// not substring containment.
type Filter struct {
	words     []string
	threshold float64
}

func NewFilter(cfg config.ModerationConfig) *Filter {
	words := make([]string, 0, len(cfg.BannedWords))
	for _, word := range cfg.BannedWords {
		normalized := Normalize(word)
		if normalized != "" {
			words = append(words, normalized)
		}
	}
	return &Filter{words: words, threshold: cfg.SimilarityThreshold}
}

// Match returns the banned entry the message resembles, if any.
func (f *Filter) Match(content string) (string, bool) {
	normalized := Normalize(content)
	if normalized == "" {
		return "", false
	}
	for _, word := range f.words {
		if Similarity(normalized, word) >= f.threshold {
			return word, true
		}
	}
	return "", false
}

// Normalize lower-cases and strips diacritics so "Racïste" and "raciste"
// compare equal.
func Normalize(input string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, input)
	if err != nil {
		stripped = input
	}
	return strings.ToLower(strings.TrimSpace(stripped))
}

// Similarity maps edit distance into [0, 1], where 1 is an exact match.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
