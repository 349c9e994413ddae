package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/giveaway"
	"guildkeeper/internal/leveling"
	"guildkeeper/internal/moderation"
	"guildkeeper/internal/modlog"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/tickets"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	modlog    *modlog.Logger
	filter    *moderation.Filter
	levels    *leveling.Engine
	giveaways *giveaway.Scheduler
	tickets   *tickets.Manager
	session   *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, modLogger *modlog.Logger,
	filter *moderation.Filter, levels *leveling.Engine, giveaways *giveaway.Scheduler,
	ticketManager *tickets.Manager) (*Bot, error) {

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		modlog:    modLogger,
		filter:    filter,
		levels:    levels,
		giveaways: giveaways,
		tickets:   ticketManager,
		session:   session,
	}

	b.giveaways.SetConcluder(b.concludeGiveaway)
	if b.modlog != nil {
		b.modlog.SetNotifier(b.notifyModAction)
	}

	return b, nil
}

// Start binds exactly one handler per platform event and opens the gateway.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onMessageReactionRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	b.giveaways.Stop()
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
	if err := b.giveaways.Recover(context.Background()); err != nil {
		b.logger.Error("giveaway recovery failed", zap.Error(err))
	}
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	ctx := context.Background()
	if b.handleBannedWord(ctx, session, msg) {
		return
	}
	b.handleLeveling(ctx, session, msg)
}

// handleBannedWord reports whether the message was removed by the filter.
func (b *Bot) handleBannedWord(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate) bool {
	word, matched := b.filter.Match(msg.Content)
	if !matched {
		return false
	}

	if err := session.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
		b.logger.Warn("banned word delete failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}

	strikes, err := b.store.IncrementInfraction(ctx, msg.GuildID, msg.Author.ID)
	if err != nil {
		b.logger.Error("strike increment failed", zap.Error(err))
		return true
	}

	b.modlog.Log(ctx, msg.GuildID, msg.Author.ID, modlog.ActionStrike,
		fmt.Sprintf("word=%s strikes=%d/%d", word, strikes, b.cfg.Moderation.StrikeLimit))
	_, _ = session.ChannelMessageSend(msg.ChannelID,
		fmt.Sprintf("<@%s> that language is not allowed here. Strike %d/%d.", msg.Author.ID, strikes, b.cfg.Moderation.StrikeLimit))

	if strikes >= b.cfg.Moderation.StrikeLimit {
		b.applyStrikeLimit(ctx, session, msg.GuildID, msg.Author.ID)
	}
	return true
}

// applyStrikeLimit sanctions the member exactly once per threshold crossing
// and resets the counter, so the next sanction requires a fresh set of
// strikes. The ban falls back to a timeout when the bot lacks ban rights.
func (b *Bot) applyStrikeLimit(ctx context.Context, session *discordgo.Session, guildID, userID string) {
	hours := b.cfg.Moderation.RestrictHours
	if hours <= 0 {
		hours = 24
	}

	sanction := "ban"
	banErr := session.GuildBanCreateWithReason(guildID, userID,
		fmt.Sprintf("reached %d strikes", b.cfg.Moderation.StrikeLimit), 0)
	if banErr != nil {
		b.logger.Warn("strike ban failed, falling back to timeout",
			zap.String("user_id", userID), zap.Error(banErr))
		sanction = "timeout"
		until := time.Now().Add(time.Duration(hours) * time.Hour)
		if err := session.GuildMemberTimeout(guildID, userID, &until); err != nil {
			b.logger.Warn("strike timeout failed", zap.String("user_id", userID), zap.Error(err))
		}
		if roleID := b.cfg.Moderation.RestrictRoleID; roleID != "" {
			if err := session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
				b.logger.Warn("restrict role add failed", zap.String("user_id", userID), zap.Error(err))
			} else {
				time.AfterFunc(time.Duration(hours)*time.Hour, func() {
					if err := session.GuildMemberRoleRemove(guildID, userID, roleID); err != nil {
						b.logger.Warn("restrict role remove failed", zap.String("user_id", userID), zap.Error(err))
					}
				})
			}
		}
	}

	if err := b.store.ResetInfraction(ctx, guildID, userID); err != nil {
		b.logger.Error("strike reset failed", zap.Error(err))
	}
	b.modlog.Log(ctx, guildID, userID, modlog.ActionStrikeLimit,
		fmt.Sprintf("sanction=%s hours=%d", sanction, hours))
}

func (b *Bot) handleLeveling(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate) {
	activity, err := b.store.GetActivity(ctx, msg.Author.ID)
	if err != nil {
		b.logger.Error("activity load failed", zap.Error(err))
		return
	}

	newCount := activity.MessageCount + 1
	level := b.levels.LevelFor(newCount)
	if _, err := b.store.IncrementActivity(ctx, msg.Author.ID, 1, level); err != nil {
		b.logger.Error("activity update failed", zap.Error(err))
		return
	}

	name, crossed := b.levels.CrossedThreshold(newCount)
	if !crossed || !activity.NotifyEnabled {
		return
	}

	settings := b.guildSettings(ctx, msg.GuildID)
	channelID := settings.LevelupChannel
	if channelID == "" {
		channelID = msg.ChannelID
	}
	_, _ = session.ChannelMessageSend(channelID,
		fmt.Sprintf("<@%s> reached level **%s** at %d messages.", msg.Author.ID, name, newCount))
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.Member.User == nil || event.GuildID == "" {
		return
	}
	ctx := context.Background()
	settings := b.guildSettings(ctx, event.GuildID)

	if settings.WelcomeChannel != "" {
		_, _ = session.ChannelMessageSend(settings.WelcomeChannel,
			fmt.Sprintf("Welcome <@%s>!", event.Member.User.ID))
	}
	if settings.JoinlogChannel != "" {
		_, _ = session.ChannelMessageSend(settings.JoinlogChannel,
			fmt.Sprintf("%s joined.", event.Member.User.Username))
	}
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.Member.User == nil || event.GuildID == "" {
		return
	}
	ctx := context.Background()
	settings := b.guildSettings(ctx, event.GuildID)
	if settings.JoinlogChannel != "" {
		_, _ = session.ChannelMessageSend(settings.JoinlogChannel,
			fmt.Sprintf("%s left.", event.Member.User.Username))
	}
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	settings, err := b.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.Error(err))
		return storage.GuildSettings{GuildID: guildID}
	}
	return settings
}

func (b *Bot) notifyModAction(ctx context.Context, entry storage.ModAction) {
	settings := b.guildSettings(ctx, entry.GuildID)
	if settings.ModlogChannel == "" {
		return
	}

	userValue := "system"
	if entry.UserID != "" {
		userValue = "<@" + entry.UserID + ">"
	}
	embed := &discordgo.MessageEmbed{
		Title:     "Moderation",
		Color:     0xF59E0B,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Action", Value: entry.Action, Inline: true},
			{Name: "User", Value: userValue, Inline: true},
			{Name: "Details", Value: nonEmpty(entry.Details, "-"), Inline: false},
		},
	}
	_, _ = b.session.ChannelMessageSendEmbed(settings.ModlogChannel, embed)
}

// roleIDByName resolves a configured role name against the guild's role list,
// preferring the state cache.
func (b *Bot) roleIDByName(guildID, name string) string {
	var roles []*discordgo.Role
	if guild, err := b.session.State.Guild(guildID); err == nil && guild != nil {
		roles = guild.Roles
	}
	if len(roles) == 0 {
		roles, _ = b.session.GuildRoles(guildID)
	}
	for _, role := range roles {
		if role != nil && strings.EqualFold(role.Name, name) {
			return role.ID
		}
	}
	return ""
}

func (b *Bot) isAdmin(interaction *discordgo.InteractionCreate) bool {
	if interaction.Member != nil && interaction.Member.User != nil && interaction.Member.User.ID == b.cfg.OwnerID {
		return true
	}
	return interaction.Member != nil && interaction.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

func nonEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
