package moderation

import (
	"testing"

	"guildkeeper/internal/config"
)

func testFilter() *Filter {
	return NewFilter(config.ModerationConfig{
		BannedWords:         []string{"raciste", "homophobe"},
		SimilarityThreshold: 0.8,
	})
}

func TestMatchExactWord(t *testing.T) {
	filter := testFilter()
	if _, matched := filter.Match("raciste"); !matched {
		t.Fatalf("expected exact match")
	}
}

func TestMatchDiacriticsAndCase(t *testing.T) {
	filter := testFilter()
	word, matched := filter.Match("Racïste")
	if !matched {
		t.Fatalf("expected diacritic-insensitive match")
	}
	if word != "raciste" {
		t.Fatalf("unexpected matched entry %q", word)
	}
}

func TestMatchNearMiss(t *testing.T) {
	filter := testFilter()
	// One substitution in a seven-letter word stays above 0.8.
	if _, matched := filter.Match("racisto"); !matched {
		t.Fatalf("expected fuzzy match")
	}
}

func TestLongMessageDoesNotMatch(t *testing.T) {
	// Whole-message comparison: padding the word out drops similarity
	// below the threshold. This is the documented behavior.
	filter := testFilter()
	if _, matched := filter.Match("ce long message contient raciste quelque part"); matched {
		t.Fatalf("did not expect whole-message fuzzy match on a long message")
	}
}

func TestSafeMessage(t *testing.T) {
	filter := testFilter()
	if _, matched := filter.Match("bonjour tout le monde"); matched {
		t.Fatalf("did not expect match")
	}
}

func TestSimilarityBounds(t *testing.T) {
	if Similarity("abc", "abc") != 1 {
		t.Fatalf("identical strings must score 1")
	}
	if score := Similarity("abc", "xyz"); score != 0 {
		t.Fatalf("disjoint strings must score 0, got %f", score)
	}
}
