package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Infraction struct {
	GuildID string
	UserID  string
	Strikes int
	LastAt  time.Time
}

func (s *Store) GetInfraction(ctx context.Context, guildID, userID string) (Infraction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, strikes, last_at
		FROM infractions
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	var inf Infraction
	var lastAt int64
	err := row.Scan(&inf.GuildID, &inf.UserID, &inf.Strikes, &lastAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Infraction{GuildID: guildID, UserID: userID}, nil
		}
		return Infraction{}, err
	}
	inf.LastAt = time.Unix(lastAt, 0)
	return inf, nil
}

// IncrementInfraction adds one strike for (guild, user) and returns the new
// total. The read-modify-write runs in a transaction so two concurrent
// triggers never lose a strike.
func (s *Store) IncrementInfraction(ctx context.Context, guildID, userID string) (int, error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var strikes int
	row := tx.QueryRowContext(ctx, `
		SELECT strikes FROM infractions WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	scanErr := row.Scan(&strikes)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}

	strikes++
	_, err = tx.ExecContext(ctx, `
		INSERT INTO infractions (guild_id, user_id, strikes, last_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			strikes = excluded.strikes,
			last_at = excluded.last_at
	`, guildID, userID, strikes, now.Unix())
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return strikes, nil
}

func (s *Store) ResetInfraction(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM infractions WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}
