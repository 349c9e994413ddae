package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Giveaway struct {
	MessageID   string
	ChannelID   string
	GuildID     string
	Title       string
	Prize       string
	WinnerCount int
	EndsAt      time.Time
}

func (s *Store) AddGiveaway(ctx context.Context, giveaway Giveaway) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO giveaways (message_id, channel_id, guild_id, title, prize, winner_count, ends_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, giveaway.MessageID, giveaway.ChannelID, giveaway.GuildID, giveaway.Title, giveaway.Prize, giveaway.WinnerCount, giveaway.EndsAt.Unix())
	return err
}

func (s *Store) GetGiveaway(ctx context.Context, messageID string) (Giveaway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, channel_id, guild_id, title, prize, winner_count, ends_at
		FROM giveaways WHERE message_id = ?`, messageID)

	var giveaway Giveaway
	var ends int64
	err := row.Scan(&giveaway.MessageID, &giveaway.ChannelID, &giveaway.GuildID,
		&giveaway.Title, &giveaway.Prize, &giveaway.WinnerCount, &ends)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Giveaway{}, nil
		}
		return Giveaway{}, err
	}
	giveaway.EndsAt = time.Unix(ends, 0)
	return giveaway, nil
}

func (s *Store) ListGiveaways(ctx context.Context) ([]Giveaway, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, channel_id, guild_id, title, prize, winner_count, ends_at
		FROM giveaways ORDER BY ends_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var giveaways []Giveaway
	for rows.Next() {
		var giveaway Giveaway
		var ends int64
		if err := rows.Scan(&giveaway.MessageID, &giveaway.ChannelID, &giveaway.GuildID,
			&giveaway.Title, &giveaway.Prize, &giveaway.WinnerCount, &ends); err != nil {
			return nil, err
		}
		giveaway.EndsAt = time.Unix(ends, 0)
		giveaways = append(giveaways, giveaway)
	}
	return giveaways, rows.Err()
}

func (s *Store) DeleteGiveaway(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM giveaways WHERE message_id = ?`, messageID)
	return err
}
