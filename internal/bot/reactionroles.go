package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"guildkeeper/internal/modlog"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleReactionRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	sub, options := subCommand(interaction)
	opts := optionMap(options)
	category := strings.ToLower(strings.TrimSpace(opts["category"].StringValue()))
	if category == "" {
		b.respond(session, interaction, "The category cannot be empty.", true)
		return nil
	}

	switch sub {
	case "set":
		return b.handleReactionRoleSet(ctx, session, interaction, category, opts)
	case "publish":
		return b.handleReactionRolePublish(ctx, session, interaction, category)
	case "remove":
		return b.handleReactionRoleRemove(ctx, session, interaction, category)
	default:
		b.respond(session, interaction, "Unknown subcommand.", true)
		return nil
	}
}

func (b *Bot) handleReactionRoleSet(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, category string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) error {
	channel := opts["channel"].ChannelValue(session)
	if channel == nil {
		b.respond(session, interaction, "Unknown channel.", true)
		return nil
	}

	pairs, err := parsePairs(opts["pairs"].StringValue())
	if err != nil {
		b.respond(session, interaction, err.Error(), true)
		return nil
	}

	binding := storage.RoleBinding{
		GuildID:      interaction.GuildID,
		Category:     category,
		ChannelID:    channel.ID,
		Verification: category == verificationSlug,
	}
	if opt, ok := opts["description"]; ok {
		binding.Description = opt.StringValue()
	}

	if err := b.store.UpsertRoleBinding(ctx, binding, pairs); err != nil {
		return err
	}
	b.respond(session, interaction,
		fmt.Sprintf("Binding `%s` saved with %d pairs. Run /reactionrole publish to post it.", category, len(pairs)), true)
	return nil
}

func (b *Bot) handleReactionRolePublish(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, category string) error {
	binding, err := b.store.GetRoleBinding(ctx, interaction.GuildID, category)
	if err != nil {
		return err
	}
	if binding.Category == "" {
		b.respond(session, interaction, "No such binding. Create it with /reactionrole set.", true)
		return nil
	}
	pairs, err := b.store.ListRolePairs(ctx, interaction.GuildID, category)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		b.respond(session, interaction, "The binding has no emoji pairs.", true)
		return nil
	}

	// Republish replaces the previous panel message.
	if binding.MessageID != "" {
		if err := session.ChannelMessageDelete(binding.ChannelID, binding.MessageID); err != nil {
			b.logger.Warn("stale panel delete failed", zap.String("message_id", binding.MessageID), zap.Error(err))
		}
	}

	var lines []string
	if binding.Description != "" {
		lines = append(lines, binding.Description, "")
	}
	for _, pair := range pairs {
		lines = append(lines, fmt.Sprintf("%s %s", pair.Emoji, pair.RoleName))
	}

	message, err := session.ChannelMessageSendEmbed(binding.ChannelID, &discordgo.MessageEmbed{
		Title:       strings.ToUpper(category[:1]) + category[1:],
		Description: strings.Join(lines, "\n"),
		Color:       0x5865F2,
	})
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		if err := session.MessageReactionAdd(binding.ChannelID, message.ID, pair.Emoji); err != nil {
			b.logger.Warn("panel self-react failed", zap.String("emoji", pair.Emoji), zap.Error(err))
		}
	}

	if err := b.store.SetBindingMessage(ctx, interaction.GuildID, category, binding.ChannelID, message.ID); err != nil {
		return err
	}
	b.respond(session, interaction, fmt.Sprintf("Binding `%s` published to <#%s>.", category, binding.ChannelID), true)
	return nil
}

func (b *Bot) handleReactionRoleRemove(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, category string) error {
	binding, err := b.store.GetRoleBinding(ctx, interaction.GuildID, category)
	if err != nil {
		return err
	}
	if binding.Category == "" {
		b.respond(session, interaction, "No such binding.", true)
		return nil
	}

	if binding.MessageID != "" {
		if err := session.ChannelMessageDelete(binding.ChannelID, binding.MessageID); err != nil {
			b.logger.Warn("panel message delete failed", zap.String("message_id", binding.MessageID), zap.Error(err))
		}
	}
	if err := b.store.DeleteRoleBinding(ctx, interaction.GuildID, category); err != nil {
		return err
	}
	b.respond(session, interaction, fmt.Sprintf("Binding `%s` removed.", category), true)
	return nil
}

// parsePairs parses the "emoji=Role Name, emoji=Role Name" grammar.
func parsePairs(raw string) ([]storage.RolePair, error) {
	var pairs []storage.RolePair
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, "=", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid pair %q, expected emoji=Role Name", part)
		}
		emoji := strings.TrimSpace(fields[0])
		roleName := strings.TrimSpace(fields[1])
		if emoji == "" || roleName == "" {
			return nil, fmt.Errorf("invalid pair %q, expected emoji=Role Name", part)
		}
		pairs = append(pairs, storage.RolePair{Emoji: emoji, RoleName: roleName, Position: len(pairs)})
	}
	if len(pairs) == 0 {
		return nil, errors.New("no pairs given, expected emoji=Role Name, emoji=Role Name")
	}
	return pairs, nil
}

func (b *Bot) onMessageReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.GuildID == "" || event.UserID == session.State.User.ID {
		return
	}

	ctx := context.Background()
	binding, err := b.store.GetBindingByMessage(ctx, event.GuildID, event.MessageID)
	if err != nil {
		b.logger.Error("binding lookup failed", zap.Error(err))
		return
	}
	if binding.Category == "" {
		return
	}

	if binding.Verification {
		b.openVerificationTicket(ctx, session, event)
		return
	}

	roleID, roleName := b.resolvePairRole(ctx, event.GuildID, binding.Category, event.Emoji.APIName())
	if roleID == "" {
		return
	}
	if err := session.GuildMemberRoleAdd(event.GuildID, event.UserID, roleID); err != nil {
		b.logger.Warn("reaction role add failed", zap.String("role", roleName), zap.Error(err))
		return
	}
	b.modlog.Log(ctx, event.GuildID, event.UserID, modlog.ActionRoleAssign, "role="+roleName)
}

func (b *Bot) onMessageReactionRemove(session *discordgo.Session, event *discordgo.MessageReactionRemove) {
	if event.GuildID == "" || event.UserID == session.State.User.ID {
		return
	}

	ctx := context.Background()
	binding, err := b.store.GetBindingByMessage(ctx, event.GuildID, event.MessageID)
	if err != nil {
		b.logger.Error("binding lookup failed", zap.Error(err))
		return
	}
	if binding.Category == "" || binding.Verification {
		return
	}

	roleID, roleName := b.resolvePairRole(ctx, event.GuildID, binding.Category, event.Emoji.APIName())
	if roleID == "" {
		return
	}
	if err := session.GuildMemberRoleRemove(event.GuildID, event.UserID, roleID); err != nil {
		b.logger.Warn("reaction role remove failed", zap.String("role", roleName), zap.Error(err))
		return
	}
	b.modlog.Log(ctx, event.GuildID, event.UserID, modlog.ActionRoleRemove, "role="+roleName)
}

// resolvePairRole maps a reacted emoji through the stored pairs to a live
// role id. An unmatched emoji or unknown role name resolves to "".
func (b *Bot) resolvePairRole(ctx context.Context, guildID, category, emoji string) (roleID, roleName string) {
	pairs, err := b.store.ListRolePairs(ctx, guildID, category)
	if err != nil {
		b.logger.Error("pair lookup failed", zap.Error(err))
		return "", ""
	}
	for _, pair := range pairs {
		if pair.Emoji == emoji {
			return b.roleIDByName(guildID, pair.RoleName), pair.RoleName
		}
	}
	return "", ""
}

func (b *Bot) openVerificationTicket(ctx context.Context, session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	var user *discordgo.User
	if event.Member != nil {
		user = event.Member.User
	}
	if user == nil {
		var err error
		user, err = session.User(event.UserID)
		if err != nil {
			b.logger.Warn("verification user lookup failed", zap.String("user_id", event.UserID), zap.Error(err))
			return
		}
	}

	_, err := b.openTicketChannel(ctx, session, event.GuildID, user, verificationSlug,
		"Answer the verification questions here and a team member will approve you.", true)
	if err != nil && !errors.Is(err, storage.ErrTicketExists) {
		b.logger.Error("verification ticket open failed", zap.String("user_id", event.UserID), zap.Error(err))
	}

	// Reset the reaction so the panel stays clean for the next member.
	if err := session.MessageReactionRemove(event.ChannelID, event.MessageID, event.Emoji.APIName(), event.UserID); err != nil {
		b.logger.Warn("verification reaction reset failed", zap.Error(err))
	}
}
