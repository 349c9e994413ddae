package giveaway

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"

	"guildkeeper/internal/storage"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseDuration accepts the `<integer><s|m|h|d>` grammar used by the
// /giveaway command.
func ParseDuration(raw string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, fmt.Errorf("invalid duration %q, expected forms like 30s, 10m, 2h, 1d", raw)
	}
	value, err := strconv.Atoi(match[1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	switch match[2] {
	case "s":
		return time.Duration(value) * time.Second, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	default:
		return time.Duration(value) * 24 * time.Hour, nil
	}
}

// ConcludeFunc announces the result and hands back the entrant draw. It runs
// once per giveaway, either when the timer fires or during restart recovery.
type ConcludeFunc func(ctx context.Context, giveaway storage.Giveaway)

// Scheduler owns the end timers. All giveaway state lives in the store; the
// timers are re-armed from persisted end timestamps after a restart.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	store    *storage.Store
	logger   *zap.Logger
	conclude ConcludeFunc
	timers   map[string]Timer
	stopped  bool
}

func NewScheduler(store *storage.Store, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:  realClock{},
		store:  store,
		logger: logger,
		timers: make(map[string]Timer),
	}
}

func (s *Scheduler) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Scheduler) SetConcluder(conclude ConcludeFunc) {
	s.conclude = conclude
}

// Start persists the giveaway and arms its end timer.
func (s *Scheduler) Start(ctx context.Context, giveaway storage.Giveaway) error {
	if err := s.store.AddGiveaway(ctx, giveaway); err != nil {
		return err
	}
	s.arm(giveaway)
	return nil
}

// Recover re-arms timers for persisted giveaways. Expired ones conclude
// immediately.
func (s *Scheduler) Recover(ctx context.Context) error {
	giveaways, err := s.store.ListGiveaways(ctx)
	if err != nil {
		return err
	}
	for _, giveaway := range giveaways {
		s.arm(giveaway)
	}
	if len(giveaways) > 0 {
		s.logger.Info("giveaways recovered", zap.Int("count", len(giveaways)))
	}
	return nil
}

func (s *Scheduler) arm(giveaway storage.Giveaway) {
	remaining := giveaway.EndsAt.Sub(s.clock.Now())
	if remaining <= 0 {
		s.fire(giveaway.MessageID)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	messageID := giveaway.MessageID
	s.timers[messageID] = s.clock.AfterFunc(remaining, func() {
		s.fire(messageID)
	})
	s.mu.Unlock()
}

func (s *Scheduler) fire(messageID string) {
	s.mu.Lock()
	delete(s.timers, messageID)
	s.mu.Unlock()

	ctx := context.Background()
	giveaway, err := s.store.GetGiveaway(ctx, messageID)
	if err != nil {
		s.logger.Error("giveaway load failed", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	if giveaway.MessageID == "" {
		return
	}

	if s.conclude != nil {
		s.conclude(ctx, giveaway)
	}
	if err := s.store.DeleteGiveaway(ctx, messageID); err != nil {
		s.logger.Error("giveaway delete failed", zap.String("message_id", messageID), zap.Error(err))
	}
}

// Stop cancels all armed timers. Persisted rows survive for the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// DrawWinners picks up to count unique entrants uniformly at random,
// excluding the bot's own entry reaction.
func DrawWinners(entrants []string, count int, excludeID string) []string {
	seen := make(map[string]struct{}, len(entrants))
	pool := make([]string, 0, len(entrants))
	for _, id := range entrants {
		if id == excludeID || id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if count > len(pool) {
		count = len(pool)
	}
	if count < 0 {
		count = 0
	}
	return pool[:count]
}
