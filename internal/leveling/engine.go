package leveling

import (
	"sort"

	"guildkeeper/internal/config"
)

// Engine resolves message counts against the ordered level table. It holds no
// mutable state; counters live in the store.
type Engine struct {
	tiers []config.LevelTier
}

func NewEngine(cfg config.LevelingConfig) *Engine {
	tiers := make([]config.LevelTier, len(cfg.Levels))
	copy(tiers, cfg.Levels)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold < tiers[j].Threshold
	})
	return &Engine{tiers: tiers}
}

// LevelFor returns the name of the highest tier whose threshold does not
// exceed messages, and is monotonically non-decreasing in messages.
func (e *Engine) LevelFor(messages int) string {
	name := ""
	for _, tier := range e.tiers {
		if messages < tier.Threshold {
			break
		}
		name = tier.Name
	}
	return name
}

// CrossedThreshold reports whether messages lands exactly on a tier boundary,
// which is the moment a level-up announcement fires.
func (e *Engine) CrossedThreshold(messages int) (string, bool) {
	for _, tier := range e.tiers {
		if tier.Threshold == messages && tier.Threshold > 0 {
			return tier.Name, true
		}
	}
	return "", false
}

// Progress returns the current level, the next tier name, and the percentage
// toward it. At the top tier the percentage is 100 and next is empty.
func (e *Engine) Progress(messages int) (current, next string, percent int) {
	current = e.LevelFor(messages)

	var prev config.LevelTier
	for _, tier := range e.tiers {
		if messages < tier.Threshold {
			span := tier.Threshold - prev.Threshold
			if span <= 0 {
				return current, tier.Name, 0
			}
			percent = (messages - prev.Threshold) * 100 / span
			return current, tier.Name, percent
		}
		prev = tier
	}
	return current, "", 100
}
