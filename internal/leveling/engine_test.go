package leveling

import (
	"testing"

	"guildkeeper/internal/config"
)

func testEngine() *Engine {
	return NewEngine(config.LevelingConfig{Levels: []config.LevelTier{
		{Name: "Newcomer", Threshold: 0},
		{Name: "Regular", Threshold: 50},
		{Name: "Active", Threshold: 200},
	}})
}

func TestLevelForHighestThreshold(t *testing.T) {
	engine := testEngine()
	cases := []struct {
		messages int
		want     string
	}{
		{0, "Newcomer"},
		{49, "Newcomer"},
		{50, "Regular"},
		{199, "Regular"},
		{200, "Active"},
		{5000, "Active"},
	}
	for _, tc := range cases {
		if got := engine.LevelFor(tc.messages); got != tc.want {
			t.Fatalf("LevelFor(%d) = %q, want %q", tc.messages, got, tc.want)
		}
	}
}

func TestLevelForMonotonic(t *testing.T) {
	engine := testEngine()
	rank := map[string]int{"": -1, "Newcomer": 0, "Regular": 1, "Active": 2}
	prev := -1
	for messages := 0; messages <= 300; messages++ {
		current := rank[engine.LevelFor(messages)]
		if current < prev {
			t.Fatalf("level decreased at %d messages", messages)
		}
		prev = current
	}
}

func TestCrossedThreshold(t *testing.T) {
	engine := testEngine()
	if name, ok := engine.CrossedThreshold(50); !ok || name != "Regular" {
		t.Fatalf("expected Regular crossing at 50, got %q ok=%t", name, ok)
	}
	if _, ok := engine.CrossedThreshold(51); ok {
		t.Fatalf("did not expect crossing at 51")
	}
	if _, ok := engine.CrossedThreshold(0); ok {
		t.Fatalf("did not expect crossing at 0")
	}
}

func TestProgress(t *testing.T) {
	engine := testEngine()
	current, next, percent := engine.Progress(125)
	if current != "Regular" || next != "Active" {
		t.Fatalf("unexpected tiers: %q -> %q", current, next)
	}
	if percent != 50 {
		t.Fatalf("expected 50 percent, got %d", percent)
	}

	current, next, percent = engine.Progress(200)
	if current != "Active" || next != "" || percent != 100 {
		t.Fatalf("expected top tier, got %q -> %q at %d", current, next, percent)
	}
}
