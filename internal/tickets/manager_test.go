package tickets

import (
	"context"
	"errors"
	"testing"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func testManager(t *testing.T) (*Manager, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	manager := NewManager(store, config.TicketConfig{PingCooldownMinutes: 15, CloseDelaySeconds: 1}, zap.NewNop())
	return manager, store
}

func TestOpenRejectsSecondTicket(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	first := storage.Ticket{ChannelID: "c1", GuildID: "g1", UserID: "u1", Slug: "support"}
	if err := manager.Open(ctx, first); err != nil {
		t.Fatalf("open: %v", err)
	}

	second := storage.Ticket{ChannelID: "c2", GuildID: "g1", UserID: "u1", Slug: "report"}
	if err := manager.Open(ctx, second); !errors.Is(err, storage.ErrTicketExists) {
		t.Fatalf("expected ErrTicketExists, got %v", err)
	}

	// A different guild is unaffected.
	other := storage.Ticket{ChannelID: "c3", GuildID: "g2", UserID: "u1", Slug: "support"}
	if err := manager.Open(ctx, other); err != nil {
		t.Fatalf("open in other guild: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	manager, store := testManager(t)
	ctx := context.Background()

	if err := manager.Open(ctx, storage.Ticket{ChannelID: "c1", GuildID: "g1", UserID: "u1", Slug: "support"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	messages := []storage.TranscriptMessage{
		{AuthorID: "u1", AuthorName: "alice", Content: "hello", PostedAt: time.Unix(100, 0)},
		{AuthorID: "u2", AuthorName: "staff", Content: "hi", PostedAt: time.Unix(200, 0)},
	}

	transcript, transitioned, err := manager.Close(ctx, "c1", messages)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !transitioned {
		t.Fatalf("expected first close to transition")
	}

	saved, err := store.GetTranscriptMessages(ctx, transcript.ID)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if len(saved) != 2 || saved[0].Content != "hello" || saved[1].Content != "hi" {
		t.Fatalf("unexpected transcript contents: %+v", saved)
	}

	_, transitioned, err = manager.Close(ctx, "c1", messages)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if transitioned {
		t.Fatalf("second close must not transition again")
	}

	// Closed ticket frees the slot for a new one.
	if err := manager.Open(ctx, storage.Ticket{ChannelID: "c9", GuildID: "g1", UserID: "u1", Slug: "support"}); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}

func TestAllowPingCooldown(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	if err := manager.Open(ctx, storage.Ticket{ChannelID: "c1", GuildID: "g1", UserID: "u1", Slug: "support"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Now()
	allowed, err := manager.AllowPing(ctx, "c1", base)
	if err != nil || !allowed {
		t.Fatalf("expected first ping allowed, got allowed=%t err=%v", allowed, err)
	}
	allowed, err = manager.AllowPing(ctx, "c1", base.Add(5*time.Minute))
	if err != nil || allowed {
		t.Fatalf("expected ping on cooldown, got allowed=%t err=%v", allowed, err)
	}
	allowed, err = manager.AllowPing(ctx, "c1", base.Add(16*time.Minute))
	if err != nil || !allowed {
		t.Fatalf("expected ping after cooldown, got allowed=%t err=%v", allowed, err)
	}
}

func TestBuildTranscriptChronologicalNonEmpty(t *testing.T) {
	// History arrives newest first, the way paginated fetches return it.
	history := []*discordgo.Message{
		{Author: &discordgo.User{ID: "u2", Username: "staff"}, Content: "third", Timestamp: time.Unix(300, 0)},
		{Author: &discordgo.User{ID: "u1", Username: "alice"}, Content: "", Timestamp: time.Unix(250, 0)},
		{Author: &discordgo.User{ID: "u1", Username: "alice"}, Content: "second", Timestamp: time.Unix(200, 0)},
		{Author: &discordgo.User{ID: "u1", Username: "alice"}, Content: "first", Timestamp: time.Unix(100, 0)},
	}

	messages := BuildTranscript(history)
	if len(messages) != 3 {
		t.Fatalf("expected 3 non-empty messages, got %d", len(messages))
	}
	if messages[0].Content != "first" || messages[1].Content != "second" || messages[2].Content != "third" {
		t.Fatalf("expected chronological order, got %+v", messages)
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName("support", "Alice B"); got != "ticket-support-alice-b" {
		t.Fatalf("unexpected channel name %q", got)
	}
	if got := ChannelName("bug report", "Ûser!!"); got != "ticket-bug-report-ser" {
		t.Fatalf("unexpected channel name %q", got)
	}
}
