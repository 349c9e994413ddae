package modlog

import (
	"context"
	"time"

	"guildkeeper/internal/storage"

	"go.uber.org/zap"
)

const (
	ActionStrike        = "strike"
	ActionStrikeLimit   = "strike_limit"
	ActionTicketOpen    = "ticket_open"
	ActionTicketClose   = "ticket_close"
	ActionGiveawayStart = "giveaway_start"
	ActionGiveawayEnd   = "giveaway_end"
	ActionRoleAssign    = "role_assign"
	ActionRoleRemove    = "role_remove"
)

// Logger records moderation actions to the store, mirrors them to the guild's
// modlog channel through the notifier, and emits a structured log line.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.ModAction)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.ModAction)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, guildID, userID, action, details string) {
	entry := storage.ModAction{
		GuildID:   guildID,
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddModAction(ctx, entry)
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("mod action",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.String("details", details))
}

type Report struct {
	Total    int
	ByAction map[string]int
}

func (l *Logger) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	actions, err := l.store.ListModActions(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByAction: make(map[string]int)}
	for _, action := range actions {
		report.Total++
		report.ByAction[action.Action]++
	}
	return report, nil
}
