package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/modlog"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/tickets"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	ticketSelectID = "ticket_select"
	ticketCloseID  = "ticket_close"
	ticketPingID   = "ticket_ping"

	verificationSlug = "verification"

	historyPageSize = 100
)

// handleTicketPanel posts the dropdown panel in the invoking channel.
func (b *Bot) handleTicketPanel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	types, err := b.store.ListTicketTypes(ctx, interaction.GuildID)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		b.respond(session, interaction, "Add ticket types with /tickettype before posting the panel.", true)
		return nil
	}

	options := make([]discordgo.SelectMenuOption, 0, len(types))
	for _, tt := range types {
		options = append(options, discordgo.SelectMenuOption{
			Label:       tt.Label,
			Value:       tt.Slug,
			Description: tt.Description,
		})
	}

	_, err = session.ChannelMessageSendComplex(interaction.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Support tickets",
			Description: "Pick a category below to open a private ticket with the team.",
			Color:       0x5865F2,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    ticketSelectID,
					Placeholder: "What do you need help with?",
					Options:     options,
				},
			}},
		},
	})
	if err != nil {
		return err
	}

	b.respond(session, interaction, "Ticket panel posted.", true)
	return nil
}

func (b *Bot) handleTicketSelect(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, values []string) error {
	if len(values) == 0 || interaction.Member == nil || interaction.Member.User == nil {
		return nil
	}
	slug := values[0]

	tt, err := b.store.GetTicketType(ctx, interaction.GuildID, slug)
	if err != nil {
		return err
	}
	if tt.Slug == "" {
		b.respond(session, interaction, "That ticket type no longer exists.", true)
		return nil
	}

	channelID, err := b.openTicketChannel(ctx, session, interaction.GuildID, interaction.Member.User, tt.Slug, tt.Description, false)
	if errors.Is(err, storage.ErrTicketExists) {
		b.respond(session, interaction, "You already have an open ticket.", true)
		return nil
	}
	if err != nil {
		return err
	}

	b.respond(session, interaction, fmt.Sprintf("Your ticket is ready: <#%s>", channelID), true)
	return nil
}

// openTicketChannel creates the private channel, persists the ticket, and
// posts the pinned control message. The verification flag swaps the support
// role for the verify role on the channel overwrites.
func (b *Bot) openTicketChannel(ctx context.Context, session *discordgo.Session, guildID string, user *discordgo.User, slug, description string, verification bool) (string, error) {
	if existing, err := b.store.GetOpenTicket(ctx, guildID, user.ID); err != nil {
		return "", err
	} else if existing.ChannelID != "" {
		return "", storage.ErrTicketExists
	}

	settings := b.guildSettings(ctx, guildID)
	staffRole := settings.SupportRole
	if verification && settings.VerifyRole != "" {
		staffRole = settings.VerifyRole
	}

	memberAllow := int64(discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory)

	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares the guild's id.
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: int64(discordgo.PermissionViewChannel),
		},
		{
			ID:    user.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow,
		},
		{
			ID:    session.State.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow,
		},
	}
	if staffRole != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    staffRole,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: memberAllow,
		})
	}

	channel, err := session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 tickets.ChannelName(slug, user.Username),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             settings.TicketCategory,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", fmt.Errorf("create ticket channel: %w", err)
	}

	ticket := storage.Ticket{
		ChannelID:   channel.ID,
		GuildID:     guildID,
		UserID:      user.ID,
		Slug:        slug,
		Description: description,
	}
	if err := b.tickets.Open(ctx, ticket); err != nil {
		// Lost the race to another open; remove the orphan channel.
		_, _ = session.ChannelDelete(channel.ID)
		return "", err
	}

	if err := b.postTicketControls(session, channel.ID, user.ID, slug, description); err != nil {
		b.logger.Warn("ticket control message failed", zap.String("channel_id", channel.ID), zap.Error(err))
	}

	b.modlog.Log(ctx, guildID, user.ID, modlog.ActionTicketOpen, "slug="+slug)
	return channel.ID, nil
}

func (b *Bot) postTicketControls(session *discordgo.Session, channelID, userID, slug, description string) error {
	if description == "" {
		description = "A team member will be with you shortly."
	}
	message, err := session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s>", userID),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       fmt.Sprintf("Ticket: %s", slug),
			Description: description,
			Color:       0x5865F2,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Ping support", Style: discordgo.SecondaryButton, CustomID: ticketPingID},
				discordgo.Button{Label: "Close ticket", Style: discordgo.DangerButton, CustomID: ticketCloseID},
			}},
		},
	})
	if err != nil {
		return err
	}
	if err := session.ChannelMessagePin(channelID, message.ID); err != nil {
		b.logger.Warn("ticket pin failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	return nil
}

func (b *Bot) handleTicketPingButton(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	allowed, err := b.tickets.AllowPing(ctx, interaction.ChannelID, time.Now())
	if err != nil {
		return err
	}
	if !allowed {
		b.respond(session, interaction, "Support was pinged recently, please wait a bit.", true)
		return nil
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	mention := "Support"
	if settings.SupportRole != "" {
		mention = "<@&" + settings.SupportRole + ">"
	}
	b.respond(session, interaction, fmt.Sprintf("%s, assistance requested in this ticket.", mention), false)
	return nil
}

func (b *Bot) handleTicketCloseButton(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	ticket, err := b.store.GetTicket(ctx, interaction.ChannelID)
	if err != nil {
		return err
	}
	if ticket.ChannelID == "" {
		b.respond(session, interaction, "This channel is not a ticket.", true)
		return nil
	}

	if !b.canCloseTicket(ctx, interaction, ticket) {
		b.respond(session, interaction, "Only the requester, support, or an admin can close this.", true)
		return nil
	}

	b.respond(session, interaction, "Closing the ticket and saving the transcript...", false)
	return b.closeTicket(ctx, session, ticket)
}

func (b *Bot) canCloseTicket(ctx context.Context, interaction *discordgo.InteractionCreate, ticket storage.Ticket) bool {
	if interaction.Member == nil || interaction.Member.User == nil {
		return false
	}
	if interaction.Member.User.ID == ticket.UserID || b.isAdmin(interaction) {
		return true
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	staff := map[string]bool{}
	if settings.SupportRole != "" {
		staff[settings.SupportRole] = true
	}
	if settings.VerifyRole != "" {
		staff[settings.VerifyRole] = true
	}
	for _, roleID := range interaction.Member.Roles {
		if staff[roleID] {
			return true
		}
	}
	return false
}

// closeTicket runs the full close workflow: transcript capture, delivery, the
// verify-role grant for verification tickets, and delayed channel removal.
func (b *Bot) closeTicket(ctx context.Context, session *discordgo.Session, ticket storage.Ticket) error {
	history, err := b.fetchChannelHistory(session, ticket.ChannelID)
	if err != nil {
		b.logger.Warn("ticket history fetch incomplete", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
	}
	messages := tickets.BuildTranscript(history)

	_, transitioned, err := b.tickets.Close(ctx, ticket.ChannelID, messages)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	b.deliverTranscript(ctx, session, ticket, messages)

	if ticket.Slug == verificationSlug {
		settings := b.guildSettings(ctx, ticket.GuildID)
		if settings.VerifyRole != "" {
			if err := session.GuildMemberRoleAdd(ticket.GuildID, ticket.UserID, settings.VerifyRole); err != nil {
				b.logger.Warn("verify role grant failed", zap.String("user_id", ticket.UserID), zap.Error(err))
			} else {
				b.modlog.Log(ctx, ticket.GuildID, ticket.UserID, modlog.ActionRoleAssign, "verify role")
			}
		}
	}

	b.modlog.Log(ctx, ticket.GuildID, ticket.UserID, modlog.ActionTicketClose, "slug="+ticket.Slug)

	delay := time.Duration(b.cfg.Tickets.CloseDelaySeconds) * time.Second
	channelID := ticket.ChannelID
	time.AfterFunc(delay, func() {
		if _, err := session.ChannelDelete(channelID); err != nil {
			b.logger.Warn("ticket channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	})
	return nil
}

// deliverTranscript forwards the rendered transcript to the transcript
// channel and DMs it to the requester. Both deliveries are best effort.
func (b *Bot) deliverTranscript(ctx context.Context, session *discordgo.Session, ticket storage.Ticket, messages []storage.TranscriptMessage) {
	rendered := tickets.RenderTranscript(ticket, messages)
	filename := fmt.Sprintf("transcript-%s.txt", ticket.ChannelID)

	send := func(channelID string) error {
		_, err := session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content: fmt.Sprintf("Transcript for ticket `%s` opened by <@%s>.", ticket.Slug, ticket.UserID),
			Files: []*discordgo.File{{
				Name:        filename,
				ContentType: "text/plain",
				Reader:      strings.NewReader(rendered),
			}},
		})
		return err
	}

	settings := b.guildSettings(ctx, ticket.GuildID)
	if settings.TranscriptChannel != "" {
		if err := send(settings.TranscriptChannel); err != nil {
			b.logger.Warn("transcript channel delivery failed", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
		}
	}

	dm, err := session.UserChannelCreate(ticket.UserID)
	if err != nil {
		b.logger.Warn("transcript dm channel failed", zap.String("user_id", ticket.UserID), zap.Error(err))
		return
	}
	if err := send(dm.ID); err != nil {
		b.logger.Warn("transcript dm delivery failed", zap.String("user_id", ticket.UserID), zap.Error(err))
	}
}

// fetchChannelHistory pages backward through the channel and returns the full
// history newest first, the order the API delivers it in.
func (b *Bot) fetchChannelHistory(session *discordgo.Session, channelID string) ([]*discordgo.Message, error) {
	var history []*discordgo.Message
	beforeID := ""
	for {
		page, err := session.ChannelMessages(channelID, historyPageSize, beforeID, "", "")
		if err != nil {
			return history, err
		}
		history = append(history, page...)
		if len(page) < historyPageSize {
			return history, nil
		}
		beforeID = page[len(page)-1].ID
	}
}
