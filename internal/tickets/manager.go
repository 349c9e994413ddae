package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager implements the ticket lifecycle over the store. The store is the
// single source of truth; there is no in-process open-ticket map.
type Manager struct {
	store  *storage.Store
	cfg    config.TicketConfig
	logger *zap.Logger
}

func NewManager(store *storage.Store, cfg config.TicketConfig, logger *zap.Logger) *Manager {
	return &Manager{store: store, cfg: cfg, logger: logger}
}

// Open persists the ticket row for an already-created channel. It returns
// storage.ErrTicketExists when the user still has a non-closed ticket.
func (m *Manager) Open(ctx context.Context, ticket storage.Ticket) error {
	if ticket.Status == "" {
		ticket.Status = storage.TicketStatusOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	return m.store.CreateTicket(ctx, ticket)
}

// Close transitions the ticket to closed and, when this call performed the
// transition, persists the transcript. The bool result is false on repeat
// closes, so a transcript is never duplicated.
func (m *Manager) Close(ctx context.Context, channelID string, messages []storage.TranscriptMessage) (storage.Transcript, bool, error) {
	ticket, err := m.store.GetTicket(ctx, channelID)
	if err != nil {
		return storage.Transcript{}, false, err
	}
	if ticket.ChannelID == "" {
		return storage.Transcript{}, false, nil
	}

	transitioned, err := m.store.CloseTicket(ctx, channelID)
	if err != nil {
		return storage.Transcript{}, false, err
	}
	if !transitioned {
		return storage.Transcript{}, false, nil
	}

	transcript := storage.Transcript{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		GuildID:   ticket.GuildID,
		UserID:    ticket.UserID,
		CreatedAt: time.Now(),
	}
	if err := m.store.SaveTranscript(ctx, transcript, messages); err != nil {
		m.logger.Error("transcript save failed", zap.String("channel_id", channelID), zap.Error(err))
		return transcript, true, err
	}
	return transcript, true, nil
}

// AllowPing reports whether the support ping is off cooldown and records the
// ping time when it is. The cooldown is persisted on the ticket row so it
// survives restarts.
func (m *Manager) AllowPing(ctx context.Context, channelID string, now time.Time) (bool, error) {
	ticket, err := m.store.GetTicket(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ticket.ChannelID == "" || ticket.Status == storage.TicketStatusClosed {
		return false, nil
	}

	cooldown := time.Duration(m.cfg.PingCooldownMinutes) * time.Minute
	if !ticket.LastPingAt.IsZero() && now.Sub(ticket.LastPingAt) < cooldown {
		return false, nil
	}
	if err := m.store.TouchTicketPing(ctx, channelID, now); err != nil {
		return false, err
	}
	return true, nil
}

// BuildTranscript converts a backward-paginated history fetch into the
// chronological list of non-empty messages.
func BuildTranscript(history []*discordgo.Message) []storage.TranscriptMessage {
	messages := make([]storage.TranscriptMessage, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Author == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, storage.TranscriptMessage{
			AuthorID:   msg.Author.ID,
			AuthorName: msg.Author.Username,
			Content:    msg.Content,
			PostedAt:   msg.Timestamp,
		})
	}
	return messages
}

// RenderTranscript formats the transcript as the text file forwarded to the
// transcript channel and DMed to the requester.
func RenderTranscript(ticket storage.Ticket, messages []storage.TranscriptMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s (%s) opened by %s at %s\n\n",
		ticket.ChannelID, ticket.Slug, ticket.UserID, ticket.CreatedAt.UTC().Format(time.RFC3339))
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.PostedAt.UTC().Format(time.RFC3339), msg.AuthorName, msg.Content)
	}
	return b.String()
}

// ChannelName derives the ticket channel name from the type slug and the
// requesting user's name.
func ChannelName(slug, username string) string {
	return "ticket-" + sanitize(slug) + "-" + sanitize(username)
}

func sanitize(input string) string {
	lower := strings.ToLower(input)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '_':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		return "ticket"
	}
	return name
}
