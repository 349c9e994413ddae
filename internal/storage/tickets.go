package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	TicketStatusOpen    = "open"
	TicketStatusPending = "pending"
	TicketStatusClosed  = "closed"
)

// ErrTicketExists is returned when a user already has a non-closed ticket in
// the guild. The partial unique index on tickets enforces the same invariant
// at the database level, so racing opens also surface as this error.
var ErrTicketExists = errors.New("user already has an open ticket")

type Ticket struct {
	ChannelID   string
	GuildID     string
	UserID      string
	Slug        string
	Description string
	Status      string
	LastPingAt  time.Time
	CreatedAt   time.Time
	ClosedAt    *time.Time
}

type Transcript struct {
	ID        string
	ChannelID string
	GuildID   string
	UserID    string
	CreatedAt time.Time
}

type TranscriptMessage struct {
	AuthorID   string
	AuthorName string
	Content    string
	PostedAt   time.Time
}

func (s *Store) CreateTicket(ctx context.Context, ticket Ticket) error {
	existing, err := s.GetOpenTicket(ctx, ticket.GuildID, ticket.UserID)
	if err != nil {
		return err
	}
	if existing.ChannelID != "" {
		return ErrTicketExists
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (channel_id, guild_id, user_id, slug, description, status, last_ping_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, ticket.ChannelID, ticket.GuildID, ticket.UserID, ticket.Slug, ticket.Description, ticket.Status, ticket.CreatedAt.Unix())
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrTicketExists
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, channelID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel_id, guild_id, user_id, slug, description, status, last_ping_at, created_at, closed_at
		FROM tickets WHERE channel_id = ?`, channelID)
	return scanTicket(row)
}

// GetOpenTicket returns the user's non-closed ticket in the guild, or a zero
// Ticket when none exists.
func (s *Store) GetOpenTicket(ctx context.Context, guildID, userID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel_id, guild_id, user_id, slug, description, status, last_ping_at, created_at, closed_at
		FROM tickets WHERE guild_id = ? AND user_id = ? AND status != 'closed'`, guildID, userID)
	return scanTicket(row)
}

func scanTicket(row *sql.Row) (Ticket, error) {
	var ticket Ticket
	var lastPing, created int64
	var closed sql.NullInt64
	err := row.Scan(&ticket.ChannelID, &ticket.GuildID, &ticket.UserID, &ticket.Slug,
		&ticket.Description, &ticket.Status, &lastPing, &created, &closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, nil
		}
		return Ticket{}, err
	}
	if lastPing > 0 {
		ticket.LastPingAt = time.Unix(lastPing, 0)
	}
	ticket.CreatedAt = time.Unix(created, 0)
	if closed.Valid {
		value := time.Unix(closed.Int64, 0)
		ticket.ClosedAt = &value
	}
	return ticket, nil
}

// CloseTicket marks the ticket closed and reports whether this call performed
// the transition. A second close on the same channel returns false, which
// keeps transcript capture idempotent.
func (s *Store) CloseTicket(ctx context.Context, channelID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = 'closed', closed_at = ?
		WHERE channel_id = ? AND status != 'closed'
	`, time.Now().Unix(), channelID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Store) SetTicketStatus(ctx context.Context, channelID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ? WHERE channel_id = ? AND status != 'closed'
	`, status, channelID)
	return err
}

func (s *Store) TouchTicketPing(ctx context.Context, channelID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tickets SET last_ping_at = ? WHERE channel_id = ?`, at.Unix(), channelID)
	return err
}

func (s *Store) SaveTranscript(ctx context.Context, transcript Transcript, messages []TranscriptMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transcripts (id, channel_id, guild_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, transcript.ID, transcript.ChannelID, transcript.GuildID, transcript.UserID, transcript.CreatedAt.Unix())
	if err != nil {
		return err
	}

	for idx, msg := range messages {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transcript_messages (transcript_id, idx, author_id, author_name, content, posted_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, transcript.ID, idx, msg.AuthorID, msg.AuthorName, msg.Content, msg.PostedAt.Unix())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetTranscriptMessages(ctx context.Context, transcriptID string) ([]TranscriptMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT author_id, author_name, content, posted_at
		FROM transcript_messages WHERE transcript_id = ? ORDER BY idx
	`, transcriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []TranscriptMessage
	for rows.Next() {
		var msg TranscriptMessage
		var posted int64
		if err := rows.Scan(&msg.AuthorID, &msg.AuthorName, &msg.Content, &posted); err != nil {
			return nil, err
		}
		msg.PostedAt = time.Unix(posted, 0)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) GetTranscriptForChannel(ctx context.Context, channelID string) (Transcript, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, guild_id, user_id, created_at
		FROM transcripts WHERE channel_id = ? ORDER BY created_at DESC LIMIT 1
	`, channelID)

	var transcript Transcript
	var created int64
	err := row.Scan(&transcript.ID, &transcript.ChannelID, &transcript.GuildID, &transcript.UserID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, nil
		}
		return Transcript{}, err
	}
	transcript.CreatedAt = time.Unix(created, 0)
	return transcript, nil
}
