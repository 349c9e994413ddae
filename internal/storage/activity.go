package storage

import (
	"context"
	"database/sql"
	"errors"
)

// UserActivity is global across guilds, keyed by user id alone.
type UserActivity struct {
	UserID        string
	MessageCount  int
	Level         string
	NotifyEnabled bool
}

func (s *Store) GetActivity(ctx context.Context, userID string) (UserActivity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, message_count, level, notify_enabled
		FROM user_activity WHERE user_id = ?`, userID)

	var activity UserActivity
	var notify int
	err := row.Scan(&activity.UserID, &activity.MessageCount, &activity.Level, &notify)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserActivity{UserID: userID, NotifyEnabled: true}, nil
		}
		return UserActivity{}, err
	}
	activity.NotifyEnabled = notify == 1
	return activity, nil
}

// IncrementActivity bumps the message counter by delta (which may be negative
// for admin removals, floored at zero) and records the resulting level label.
// It returns the new count.
func (s *Store) IncrementActivity(ctx context.Context, userID string, delta int, level string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	row := tx.QueryRowContext(ctx, `SELECT message_count FROM user_activity WHERE user_id = ?`, userID)
	scanErr := row.Scan(&count)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}

	count += delta
	if count < 0 {
		count = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_activity (user_id, message_count, level, notify_enabled)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id) DO UPDATE SET
			message_count = excluded.message_count,
			level = excluded.level
	`, userID, count, level)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetActivityLevel(ctx context.Context, userID, level string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE user_activity SET level = ? WHERE user_id = ?`, level, userID)
	return err
}

func (s *Store) SetNotifyEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_activity (user_id, message_count, level, notify_enabled)
		VALUES (?, 0, '', ?)
		ON CONFLICT(user_id) DO UPDATE SET notify_enabled = excluded.notify_enabled
	`, userID, boolToInt(enabled))
	return err
}
