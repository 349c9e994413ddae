package storage

import (
	"context"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestGuildSettingsLastWriteWins(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	settings, err := store.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings.ModlogChannel != "" {
		t.Fatalf("expected empty defaults, got %+v", settings)
	}

	settings.ModlogChannel = "c-mod"
	settings.SupportRole = "r-support"
	if err := store.UpsertGuildSettings(ctx, settings); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Clearing a binding and setting another in a later write must stick.
	settings.ModlogChannel = ""
	settings.WelcomeChannel = "c-welcome"
	if err := store.UpsertGuildSettings(ctx, settings); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("get after writes: %v", err)
	}
	if got.ModlogChannel != "" || got.WelcomeChannel != "c-welcome" || got.SupportRole != "r-support" {
		t.Fatalf("expected last write to win, got %+v", got)
	}
}

func TestTicketTypesOrderedBySlugAndPosition(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, tt := range []TicketType{
		{GuildID: "g1", Slug: "report", Label: "Report a member", Position: 2},
		{GuildID: "g1", Slug: "support", Label: "General support", Position: 1},
		{GuildID: "g2", Slug: "other", Label: "Other guild", Position: 0},
	} {
		if err := store.PutTicketType(ctx, tt); err != nil {
			t.Fatalf("put %s: %v", tt.Slug, err)
		}
	}

	// Re-put updates in place instead of duplicating.
	if err := store.PutTicketType(ctx, TicketType{GuildID: "g1", Slug: "support", Label: "Support", Position: 1}); err != nil {
		t.Fatalf("re-put: %v", err)
	}

	types, err := store.ListTicketTypes(ctx, "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("expected 2 types for g1, got %d", len(types))
	}
	if types[0].Slug != "support" || types[0].Label != "Support" || types[1].Slug != "report" {
		t.Fatalf("unexpected order or labels: %+v", types)
	}

	if err := store.DeleteTicketType(ctx, "g1", "report"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.GetTicketType(ctx, "g1", "report"); got.Slug != "" {
		t.Fatalf("expected removed type, got %+v", got)
	}
}

func TestInfractionIncrementAndReset(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.IncrementInfraction(ctx, "g1", "u1")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d strikes, got %d", want, got)
		}
	}

	// Strikes are scoped to the guild.
	if got, _ := store.IncrementInfraction(ctx, "g2", "u1"); got != 1 {
		t.Fatalf("expected 1 strike in other guild, got %d", got)
	}

	if err := store.ResetInfraction(ctx, "g1", "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	inf, err := store.GetInfraction(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	if inf.Strikes != 0 {
		t.Fatalf("expected 0 strikes after reset, got %d", inf.Strikes)
	}
}

func TestRoleBindingRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	binding := RoleBinding{GuildID: "g1", Category: "colors", ChannelID: "c1", Description: "Pick a color"}
	pairs := []RolePair{
		{Emoji: "🔴", RoleName: "Red", Position: 0},
		{Emoji: "🔵", RoleName: "Blue", Position: 1},
	}
	if err := store.UpsertRoleBinding(ctx, binding, pairs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.SetBindingMessage(ctx, "g1", "colors", "c1", "m1"); err != nil {
		t.Fatalf("set message: %v", err)
	}
	byMessage, err := store.GetBindingByMessage(ctx, "g1", "m1")
	if err != nil {
		t.Fatalf("get by message: %v", err)
	}
	if byMessage.Category != "colors" || byMessage.Verification {
		t.Fatalf("unexpected binding %+v", byMessage)
	}

	// Re-upsert replaces the pair set.
	if err := store.UpsertRoleBinding(ctx, binding, pairs[:1]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err := store.ListRolePairs(ctx, "g1", "colors")
	if err != nil {
		t.Fatalf("list pairs: %v", err)
	}
	if len(got) != 1 || got[0].RoleName != "Red" {
		t.Fatalf("expected replaced pairs, got %+v", got)
	}

	if err := store.DeleteRoleBinding(ctx, "g1", "colors"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if b, _ := store.GetRoleBinding(ctx, "g1", "colors"); b.Category != "" {
		t.Fatalf("expected binding removed, got %+v", b)
	}
	if p, _ := store.ListRolePairs(ctx, "g1", "colors"); len(p) != 0 {
		t.Fatalf("expected pairs removed, got %+v", p)
	}
}

func TestModActionsSinceWindow(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old := ModAction{GuildID: "g1", UserID: "u1", Action: "strike", CreatedAt: time.Now().Add(-48 * time.Hour)}
	recent := ModAction{GuildID: "g1", UserID: "u2", Action: "ticket_open", CreatedAt: time.Now()}
	if err := store.AddModAction(ctx, old); err != nil {
		t.Fatalf("add old: %v", err)
	}
	if err := store.AddModAction(ctx, recent); err != nil {
		t.Fatalf("add recent: %v", err)
	}

	actions, err := store.ListModActions(ctx, "g1", time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != "ticket_open" {
		t.Fatalf("expected only the recent action, got %+v", actions)
	}
}

func TestActivityFloorAndNotifyToggle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if count, err := store.IncrementActivity(ctx, "u1", 5, "Newcomer"); err != nil || count != 5 {
		t.Fatalf("expected count 5, got %d err %v", count, err)
	}
	if count, err := store.IncrementActivity(ctx, "u1", -10, "Newcomer"); err != nil || count != 0 {
		t.Fatalf("expected floor at 0, got %d err %v", count, err)
	}

	if err := store.SetNotifyEnabled(ctx, "u1", false); err != nil {
		t.Fatalf("set notify: %v", err)
	}
	activity, err := store.GetActivity(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if activity.NotifyEnabled {
		t.Fatalf("expected notifications disabled")
	}
}
