package giveaway

import (
	"context"
	"sync"
	"testing"
	"time"

	"guildkeeper/internal/storage"

	"go.uber.org/zap"
)

type fakeTimer struct {
	fn func()
}

func (t *fakeTimer) Stop() bool { return true }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	f.delays = append(f.delays, d)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due []*fakeTimer
	var keepTimers []*fakeTimer
	var keepDelays []time.Duration
	for i, timer := range f.timers {
		if f.delays[i] <= d {
			due = append(due, timer)
		} else {
			keepTimers = append(keepTimers, timer)
			keepDelays = append(keepDelays, f.delays[i]-d)
		}
	}
	f.timers = keepTimers
	f.delays = keepDelays
	f.mu.Unlock()
	for _, timer := range due {
		timer.fn()
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"10s", 10 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.raw)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "10", "s", "10x", "-5s", "1.5h", "10 s"} {
		if _, err := ParseDuration(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestSchedulerConcludesOnTimer(t *testing.T) {
	store, _ := storage.New(":memory:")
	defer store.Close()
	_ = store.Migrate()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	scheduler := NewScheduler(store, zap.NewNop())
	scheduler.WithClock(clock)

	var concluded []storage.Giveaway
	scheduler.SetConcluder(func(ctx context.Context, giveaway storage.Giveaway) {
		concluded = append(concluded, giveaway)
	})

	giveaway := storage.Giveaway{
		MessageID:   "m1",
		ChannelID:   "c1",
		GuildID:     "g1",
		Prize:       "X",
		WinnerCount: 2,
		EndsAt:      clock.Now().Add(10 * time.Second),
	}
	if err := scheduler.Start(context.Background(), giveaway); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(9 * time.Second)
	if len(concluded) != 0 {
		t.Fatalf("concluded early")
	}

	clock.Advance(1 * time.Second)
	if len(concluded) != 1 || concluded[0].Prize != "X" {
		t.Fatalf("expected one conclusion, got %d", len(concluded))
	}

	remaining, err := store.ListGiveaways(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected persisted record removed, got %d", len(remaining))
	}
}

func TestRecoverConcludesExpired(t *testing.T) {
	store, _ := storage.New(":memory:")
	defer store.Close()
	_ = store.Migrate()

	clock := &fakeClock{now: time.Unix(5000, 0)}
	expired := storage.Giveaway{MessageID: "m1", ChannelID: "c1", GuildID: "g1", Prize: "old", WinnerCount: 1, EndsAt: clock.Now().Add(-time.Minute)}
	pending := storage.Giveaway{MessageID: "m2", ChannelID: "c1", GuildID: "g1", Prize: "new", WinnerCount: 1, EndsAt: clock.Now().Add(time.Minute)}
	_ = store.AddGiveaway(context.Background(), expired)
	_ = store.AddGiveaway(context.Background(), pending)

	scheduler := NewScheduler(store, zap.NewNop())
	scheduler.WithClock(clock)
	var concluded []string
	scheduler.SetConcluder(func(ctx context.Context, giveaway storage.Giveaway) {
		concluded = append(concluded, giveaway.MessageID)
	})

	if err := scheduler.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(concluded) != 1 || concluded[0] != "m1" {
		t.Fatalf("expected only the expired giveaway concluded, got %v", concluded)
	}

	clock.Advance(time.Minute)
	if len(concluded) != 2 || concluded[1] != "m2" {
		t.Fatalf("expected re-armed giveaway to conclude, got %v", concluded)
	}
}

func TestDrawWinners(t *testing.T) {
	entrants := []string{"u1", "u2", "bot", "u3", "u1"}
	winners := DrawWinners(entrants, 2, "bot")
	if len(winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(winners))
	}
	seen := map[string]struct{}{}
	for _, winner := range winners {
		if winner == "bot" {
			t.Fatalf("bot must be excluded")
		}
		if _, dup := seen[winner]; dup {
			t.Fatalf("duplicate winner %s", winner)
		}
		seen[winner] = struct{}{}
	}

	if got := DrawWinners([]string{"u1"}, 5, "bot"); len(got) != 1 {
		t.Fatalf("expected draw capped at pool size, got %d", len(got))
	}
	if got := DrawWinners(nil, 3, "bot"); len(got) != 0 {
		t.Fatalf("expected empty draw, got %d", len(got))
	}
}
