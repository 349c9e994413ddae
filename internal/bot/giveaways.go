package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/giveaway"
	"guildkeeper/internal/modlog"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const reactorPageSize = 100

func (b *Bot) handleGiveaway(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	opts := optionMap(interaction.ApplicationCommandData().Options)

	duration, err := giveaway.ParseDuration(opts["duration"].StringValue())
	if err != nil {
		b.respond(session, interaction, err.Error(), true)
		return nil
	}
	prize := opts["prize"].StringValue()

	winners := 1
	if opt, ok := opts["winners"]; ok && opt.IntValue() > 0 {
		winners = int(opt.IntValue())
	}
	title := "Giveaway"
	if opt, ok := opts["title"]; ok && opt.StringValue() != "" {
		title = opt.StringValue()
	}

	endsAt := time.Now().Add(duration)
	message, err := session.ChannelMessageSendEmbed(interaction.ChannelID, &discordgo.MessageEmbed{
		Title: title,
		Description: fmt.Sprintf("Prize: **%s**\nWinners: **%d**\nEnds: <t:%d:R>\n\nReact with %s to enter!",
			prize, winners, endsAt.Unix(), b.cfg.Giveaway.EntryEmoji),
		Color: 0xEB459E,
	})
	if err != nil {
		return err
	}

	if err := session.MessageReactionAdd(interaction.ChannelID, message.ID, b.cfg.Giveaway.EntryEmoji); err != nil {
		b.logger.Warn("giveaway self-react failed", zap.String("message_id", message.ID), zap.Error(err))
	}

	record := storage.Giveaway{
		MessageID:   message.ID,
		ChannelID:   interaction.ChannelID,
		GuildID:     interaction.GuildID,
		Title:       title,
		Prize:       prize,
		WinnerCount: winners,
		EndsAt:      endsAt,
	}
	if err := b.giveaways.Start(ctx, record); err != nil {
		// Nothing will conclude it, so take the announcement down.
		_ = session.ChannelMessageDelete(interaction.ChannelID, message.ID)
		return err
	}

	b.modlog.Log(ctx, interaction.GuildID, "", modlog.ActionGiveawayStart,
		fmt.Sprintf("prize=%s winners=%d ends=%s", prize, winners, endsAt.UTC().Format(time.RFC3339)))
	b.respond(session, interaction, fmt.Sprintf("Giveaway started, ending <t:%d:R>.", endsAt.Unix()), true)
	return nil
}

// concludeGiveaway runs when a giveaway timer fires. It re-fetches the entry
// reactions, draws the winners, and announces the result in place.
func (b *Bot) concludeGiveaway(ctx context.Context, record storage.Giveaway) {
	entrants, err := b.fetchReactors(record.ChannelID, record.MessageID, b.cfg.Giveaway.EntryEmoji)
	if err != nil {
		b.logger.Warn("giveaway entrant fetch incomplete",
			zap.String("message_id", record.MessageID), zap.Error(err))
	}

	winners := giveaway.DrawWinners(entrants, record.WinnerCount, b.session.State.User.ID)

	var announcement string
	if len(winners) == 0 {
		announcement = fmt.Sprintf("The **%s** giveaway ended with no valid entries.", record.Prize)
	} else {
		mentions := make([]string, 0, len(winners))
		for _, winner := range winners {
			mentions = append(mentions, "<@"+winner+">")
		}
		announcement = fmt.Sprintf("Congratulations %s! You won **%s**.",
			strings.Join(mentions, ", "), record.Prize)
	}
	if _, err := b.session.ChannelMessageSend(record.ChannelID, announcement); err != nil {
		b.logger.Warn("giveaway announcement failed", zap.String("channel_id", record.ChannelID), zap.Error(err))
	}

	b.modlog.Log(ctx, record.GuildID, "", modlog.ActionGiveawayEnd,
		fmt.Sprintf("prize=%s entrants=%d winners=%d", record.Prize, len(entrants), len(winners)))
}

// fetchReactors pages forward through the entry reaction and returns every
// reacting user id. A partial list is returned alongside the error.
func (b *Bot) fetchReactors(channelID, messageID, emoji string) ([]string, error) {
	var entrants []string
	afterID := ""
	for {
		users, err := b.session.MessageReactions(channelID, messageID, emoji, reactorPageSize, "", afterID)
		if err != nil {
			return entrants, err
		}
		for _, user := range users {
			if user != nil {
				entrants = append(entrants, user.ID)
			}
		}
		if len(users) < reactorPageSize {
			return entrants, nil
		}
		afterID = users[len(users)-1].ID
	}
}
