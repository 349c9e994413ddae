package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var settingKeys = []string{
	"modlog_channel",
	"joinlog_channel",
	"welcome_channel",
	"levelup_channel",
	"ticket_category",
	"transcript_channel",
	"support_role",
	"verify_role",
}

// adminCommands are checked against the Administrator permission (or the
// configured owner id) before dispatch, on top of the registered default
// member permissions.
var adminCommands = map[string]bool{
	"config":       true,
	"tickettype":   true,
	"ticketpanel":  true,
	"strike":       true,
	"activity":     true,
	"giveaway":     true,
	"reactionrole": true,
	"modreport":    true,
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)

	settingChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(settingKeys))
	for _, key := range settingKeys {
		settingChoices = append(settingChoices, &discordgo.ApplicationCommandOptionChoice{Name: key, Value: key})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "config",
			Description:              "Guild channel and role bindings",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Set or clear one binding",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "setting", Description: "Binding to change", Required: true, Choices: settingChoices},
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel value for channel bindings"},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role value for role bindings"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "Show current bindings",
				},
			},
		},
		{
			Name:                     "tickettype",
			Description:              "Ticket type catalog",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add or update a ticket type",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "slug", Description: "Short identifier", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "label", Description: "Label shown in the panel", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Panel description"},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "position", Description: "Sort position"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a ticket type",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "slug", Description: "Short identifier", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List ticket types",
				},
			},
		},
		{
			Name:                     "ticketpanel",
			Description:              "Post the ticket panel in this channel",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     "strike",
			Description:              "Give a member a manual strike",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to strike", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason"},
			},
		},
		{
			Name:        "strikes",
			Description: "Show a member's strike count",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to inspect", Required: true},
			},
		},
		{
			Name:        "level",
			Description: "Show activity level and progress",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to inspect"},
			},
		},
		{
			Name:        "levelnotify",
			Description: "Toggle your level-up notifications",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Receive level-up announcements", Required: true},
			},
		},
		{
			Name:                     "activity",
			Description:              "Adjust a member's activity counter",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add messages to the counter",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Messages to add", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove messages from the counter",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Messages to remove", Required: true},
					},
				},
			},
		},
		{
			Name:                     "giveaway",
			Description:              "Start a giveaway in this channel",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "How long it runs (30s, 10m, 2h, 1d)", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "prize", Description: "What the winners get", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "winners", Description: "Number of winners (default 1)"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "title", Description: "Announcement title"},
			},
		},
		{
			Name:                     "reactionrole",
			Description:              "Reaction role bindings",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Store a binding and its emoji=role pairs",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Binding name (verification is special)", Required: true},
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel the panel is published to", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "pairs", Description: "emoji=Role Name, emoji=Role Name", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Panel description"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "publish",
					Description: "Publish or republish the panel message",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Binding name", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Delete a binding",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Binding name", Required: true},
					},
				},
			},
		},
		{
			Name:                     "modreport",
			Description:              "Summarize recent moderation actions",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Window in days (default 7)"},
			},
		},
	}
}

// registerCommands converges the registered global commands to the desired
// set: create missing, overwrite existing by name, delete leftovers.
func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	desired := commandDefinitions()

	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}
	byName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		byName[cmd.Name] = cmd
	}

	for _, cmd := range desired {
		if current, ok := byName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return fmt.Errorf("edit command %s: %w", cmd.Name, err)
			}
			delete(byName, cmd.Name)
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return fmt.Errorf("create command %s: %w", cmd.Name, err)
		}
	}

	for name, leftover := range byName {
		if err := b.session.ApplicationCommandDelete(appID, "", leftover.ID); err != nil {
			return fmt.Errorf("delete command %s: %w", name, err)
		}
	}

	b.logger.Info("commands registered", zap.Int("count", len(desired)))
	return nil
}
