package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/modlog"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.GuildID == "" {
		return
	}

	ctx := context.Background()
	var err error

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		name := interaction.ApplicationCommandData().Name
		if adminCommands[name] && !b.isAdmin(interaction) {
			b.respond(session, interaction, "You need the Administrator permission for that.", true)
			return
		}
		err = b.dispatchCommand(ctx, session, interaction, name)
	case discordgo.InteractionMessageComponent:
		err = b.dispatchComponent(ctx, session, interaction)
	default:
		return
	}

	if err != nil {
		b.logger.Error("interaction failed",
			zap.String("guild_id", interaction.GuildID),
			zap.Error(err))
		b.respond(session, interaction, "Something went wrong, please try again.", true)
	}
}

func (b *Bot) dispatchCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, name string) error {
	switch name {
	case "config":
		return b.handleConfig(ctx, session, interaction)
	case "tickettype":
		return b.handleTicketType(ctx, session, interaction)
	case "ticketpanel":
		return b.handleTicketPanel(ctx, session, interaction)
	case "strike":
		return b.handleStrike(ctx, session, interaction)
	case "strikes":
		return b.handleStrikes(ctx, session, interaction)
	case "level":
		return b.handleLevel(ctx, session, interaction)
	case "levelnotify":
		return b.handleLevelNotify(ctx, session, interaction)
	case "activity":
		return b.handleActivity(ctx, session, interaction)
	case "giveaway":
		return b.handleGiveaway(ctx, session, interaction)
	case "reactionrole":
		return b.handleReactionRole(ctx, session, interaction)
	case "modreport":
		return b.handleModReport(ctx, session, interaction)
	default:
		b.respond(session, interaction, "Unknown command.", true)
		return nil
	}
}

func (b *Bot) dispatchComponent(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	data := interaction.MessageComponentData()
	switch data.CustomID {
	case ticketSelectID:
		return b.handleTicketSelect(ctx, session, interaction, data.Values)
	case ticketCloseID:
		return b.handleTicketCloseButton(ctx, session, interaction)
	case ticketPingID:
		return b.handleTicketPingButton(ctx, session, interaction)
	default:
		return nil
	}
}

func subCommand(interaction *discordgo.InteractionCreate) (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	options := interaction.ApplicationCommandData().Options
	if len(options) == 0 {
		return "", nil
	}
	return options[0].Name, options[0].Options
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		byName[option.Name] = option
	}
	return byName
}

func (b *Bot) handleConfig(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	sub, options := subCommand(interaction)
	switch sub {
	case "set":
		return b.handleConfigSet(ctx, session, interaction, options)
	case "view":
		return b.handleConfigView(ctx, session, interaction)
	default:
		b.respond(session, interaction, "Unknown subcommand.", true)
		return nil
	}
}

func (b *Bot) handleConfigSet(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) error {
	opts := optionMap(options)
	setting := opts["setting"].StringValue()

	value := ""
	mention := ""
	if opt, ok := opts["channel"]; ok {
		if channel := opt.ChannelValue(session); channel != nil {
			value = channel.ID
			mention = "<#" + channel.ID + ">"
		}
	}
	if opt, ok := opts["role"]; ok {
		if role := opt.RoleValue(session, interaction.GuildID); role != nil {
			value = role.ID
			mention = "<@&" + role.ID + ">"
		}
	}

	settings, err := b.store.GetGuildSettings(ctx, interaction.GuildID)
	if err != nil {
		return err
	}

	switch setting {
	case "modlog_channel":
		settings.ModlogChannel = value
	case "joinlog_channel":
		settings.JoinlogChannel = value
	case "welcome_channel":
		settings.WelcomeChannel = value
	case "levelup_channel":
		settings.LevelupChannel = value
	case "ticket_category":
		settings.TicketCategory = value
	case "transcript_channel":
		settings.TranscriptChannel = value
	case "support_role":
		settings.SupportRole = value
	case "verify_role":
		settings.VerifyRole = value
	default:
		b.respond(session, interaction, "Unknown setting.", true)
		return nil
	}

	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		return err
	}

	if value == "" {
		b.respond(session, interaction, fmt.Sprintf("Cleared `%s`.", setting), true)
	} else {
		b.respond(session, interaction, fmt.Sprintf("Set `%s` to %s.", setting, mention), true)
	}
	return nil
}

func (b *Bot) handleConfigView(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	settings, err := b.store.GetGuildSettings(ctx, interaction.GuildID)
	if err != nil {
		return err
	}

	channelOrDash := func(id string) string {
		if id == "" {
			return "-"
		}
		return "<#" + id + ">"
	}
	roleOrDash := func(id string) string {
		if id == "" {
			return "-"
		}
		return "<@&" + id + ">"
	}

	embed := &discordgo.MessageEmbed{
		Title: "Guild configuration",
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "modlog_channel", Value: channelOrDash(settings.ModlogChannel), Inline: true},
			{Name: "joinlog_channel", Value: channelOrDash(settings.JoinlogChannel), Inline: true},
			{Name: "welcome_channel", Value: channelOrDash(settings.WelcomeChannel), Inline: true},
			{Name: "levelup_channel", Value: channelOrDash(settings.LevelupChannel), Inline: true},
			{Name: "ticket_category", Value: channelOrDash(settings.TicketCategory), Inline: true},
			{Name: "transcript_channel", Value: channelOrDash(settings.TranscriptChannel), Inline: true},
			{Name: "support_role", Value: roleOrDash(settings.SupportRole), Inline: true},
			{Name: "verify_role", Value: roleOrDash(settings.VerifyRole), Inline: true},
		},
	}
	b.respondEmbed(session, interaction, embed, true)
	return nil
}

func (b *Bot) handleTicketType(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	sub, options := subCommand(interaction)
	opts := optionMap(options)

	switch sub {
	case "add":
		tt := storage.TicketType{
			GuildID: interaction.GuildID,
			Slug:    strings.ToLower(strings.TrimSpace(opts["slug"].StringValue())),
			Label:   opts["label"].StringValue(),
		}
		if opt, ok := opts["description"]; ok {
			tt.Description = opt.StringValue()
		}
		if opt, ok := opts["position"]; ok {
			tt.Position = int(opt.IntValue())
		}
		if tt.Slug == "" {
			b.respond(session, interaction, "The slug cannot be empty.", true)
			return nil
		}
		if err := b.store.PutTicketType(ctx, tt); err != nil {
			return err
		}
		b.respond(session, interaction, fmt.Sprintf("Ticket type `%s` saved.", tt.Slug), true)
		return nil

	case "remove":
		slug := strings.ToLower(strings.TrimSpace(opts["slug"].StringValue()))
		if err := b.store.DeleteTicketType(ctx, interaction.GuildID, slug); err != nil {
			return err
		}
		b.respond(session, interaction, fmt.Sprintf("Ticket type `%s` removed.", slug), true)
		return nil

	case "list":
		types, err := b.store.ListTicketTypes(ctx, interaction.GuildID)
		if err != nil {
			return err
		}
		if len(types) == 0 {
			b.respond(session, interaction, "No ticket types configured.", true)
			return nil
		}
		var lines []string
		for _, tt := range types {
			lines = append(lines, fmt.Sprintf("`%s`: %s", tt.Slug, tt.Label))
		}
		b.respond(session, interaction, strings.Join(lines, "\n"), true)
		return nil

	default:
		b.respond(session, interaction, "Unknown subcommand.", true)
		return nil
	}
}

func (b *Bot) handleStrike(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	opts := optionMap(interaction.ApplicationCommandData().Options)
	user := opts["user"].UserValue(session)
	if user == nil {
		b.respond(session, interaction, "Unknown user.", true)
		return nil
	}
	reason := "manual strike"
	if opt, ok := opts["reason"]; ok && opt.StringValue() != "" {
		reason = opt.StringValue()
	}

	strikes, err := b.store.IncrementInfraction(ctx, interaction.GuildID, user.ID)
	if err != nil {
		return err
	}
	b.modlog.Log(ctx, interaction.GuildID, user.ID, modlog.ActionStrike,
		fmt.Sprintf("reason=%s strikes=%d/%d", reason, strikes, b.cfg.Moderation.StrikeLimit))

	if strikes >= b.cfg.Moderation.StrikeLimit {
		b.applyStrikeLimit(ctx, session, interaction.GuildID, user.ID)
	}
	b.respond(session, interaction,
		fmt.Sprintf("<@%s> now has %d/%d strikes.", user.ID, strikes, b.cfg.Moderation.StrikeLimit), false)
	return nil
}

func (b *Bot) handleStrikes(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	opts := optionMap(interaction.ApplicationCommandData().Options)
	user := opts["user"].UserValue(session)
	if user == nil {
		b.respond(session, interaction, "Unknown user.", true)
		return nil
	}

	infraction, err := b.store.GetInfraction(ctx, interaction.GuildID, user.ID)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("<@%s> has %d/%d strikes.", user.ID, infraction.Strikes, b.cfg.Moderation.StrikeLimit)
	if !infraction.LastAt.IsZero() && infraction.Strikes > 0 {
		content += fmt.Sprintf(" Last strike %s.", infraction.LastAt.UTC().Format("2006-01-02 15:04"))
	}
	b.respond(session, interaction, content, true)
	return nil
}

func (b *Bot) handleLevel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	target := interaction.Member.User
	opts := optionMap(interaction.ApplicationCommandData().Options)
	if opt, ok := opts["user"]; ok {
		if user := opt.UserValue(session); user != nil {
			target = user
		}
	}

	activity, err := b.store.GetActivity(ctx, target.ID)
	if err != nil {
		return err
	}

	current, next, percent := b.levels.Progress(activity.MessageCount)
	description := fmt.Sprintf("**%s** with %d messages.", current, activity.MessageCount)
	if next != "" {
		description += fmt.Sprintf(" %d%% of the way to **%s**.", percent, next)
	} else {
		description += " Top level reached."
	}

	b.respondEmbed(session, interaction, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Level for %s", target.Username),
		Description: description,
		Color:       0x57F287,
	}, true)
	return nil
}

func (b *Bot) handleLevelNotify(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	opts := optionMap(interaction.ApplicationCommandData().Options)
	enabled := opts["enabled"].BoolValue()

	if err := b.store.SetNotifyEnabled(ctx, interaction.Member.User.ID, enabled); err != nil {
		return err
	}
	if enabled {
		b.respond(session, interaction, "Level-up notifications enabled.", true)
	} else {
		b.respond(session, interaction, "Level-up notifications disabled.", true)
	}
	return nil
}

func (b *Bot) handleActivity(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	sub, options := subCommand(interaction)
	opts := optionMap(options)

	user := opts["user"].UserValue(session)
	if user == nil {
		b.respond(session, interaction, "Unknown user.", true)
		return nil
	}
	amount := int(opts["amount"].IntValue())
	if amount <= 0 {
		b.respond(session, interaction, "The amount must be positive.", true)
		return nil
	}

	delta := amount
	if sub == "remove" {
		delta = -amount
	}

	// Compute the level from the projected count so the stored label matches.
	activity, err := b.store.GetActivity(ctx, user.ID)
	if err != nil {
		return err
	}
	projected := activity.MessageCount + delta
	if projected < 0 {
		projected = 0
	}
	level := b.levels.LevelFor(projected)

	newCount, err := b.store.IncrementActivity(ctx, user.ID, delta, level)
	if err != nil {
		return err
	}
	b.respond(session, interaction,
		fmt.Sprintf("<@%s> now has %d messages (%s).", user.ID, newCount, level), true)
	return nil
}

func (b *Bot) handleModReport(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	days := 7
	opts := optionMap(interaction.ApplicationCommandData().Options)
	if opt, ok := opts["days"]; ok && opt.IntValue() > 0 {
		days = int(opt.IntValue())
	}

	since := time.Now().AddDate(0, 0, -days)
	report, err := b.modlog.Report(ctx, interaction.GuildID, since)
	if err != nil {
		return err
	}

	if report.Total == 0 {
		b.respond(session, interaction, fmt.Sprintf("No moderation actions in the last %d days.", days), true)
		return nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("%d actions in the last %d days:", report.Total, days))
	for action, count := range report.ByAction {
		lines = append(lines, fmt.Sprintf("- %s: %d", action, count))
	}
	b.respond(session, interaction, strings.Join(lines, "\n"), true)
	return nil
}
