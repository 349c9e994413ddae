package storage

import (
	"context"
	"database/sql"
	"errors"
)

// RoleBinding ties a posted message to an ordered set of emoji -> role-name
// pairs. The "verification" category is the special binding whose reaction
// opens a verification ticket instead of assigning a role.
type RoleBinding struct {
	GuildID      string
	Category     string
	ChannelID    string
	MessageID    string
	Description  string
	Verification bool
}

type RolePair struct {
	Emoji    string
	RoleName string
	Position int
}

func (s *Store) UpsertRoleBinding(ctx context.Context, binding RoleBinding, pairs []RolePair) error {
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
		INSERT INTO reaction_roles (guild_id, category, channel_id, message_id, description, verification)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, category) DO UPDATE SET
			channel_id = excluded.channel_id,
			description = excluded.description,
			verification = excluded.verification
	`, binding.GuildID, binding.Category, binding.ChannelID, binding.MessageID, binding.Description, boolToInt(binding.Verification))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM reaction_role_pairs WHERE guild_id = ? AND category = ?`,
		binding.GuildID, binding.Category)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reaction_role_pairs (guild_id, category, emoji, role_name, position)
			VALUES (?, ?, ?, ?, ?)
		`, binding.GuildID, binding.Category, pair.Emoji, pair.RoleName, pair.Position)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetBindingMessage records the message a publish posted for the binding.
func (s *Store) SetBindingMessage(ctx context.Context, guildID, category, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reaction_roles SET channel_id = ?, message_id = ?
		WHERE guild_id = ? AND category = ?
	`, channelID, messageID, guildID, category)
	return err
}

func (s *Store) GetRoleBinding(ctx context.Context, guildID, category string) (RoleBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, category, channel_id, message_id, description, verification
		FROM reaction_roles WHERE guild_id = ? AND category = ?`, guildID, category)
	return scanBinding(row)
}

// GetBindingByMessage resolves the binding a reaction landed on, if any.
func (s *Store) GetBindingByMessage(ctx context.Context, guildID, messageID string) (RoleBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, category, channel_id, message_id, description, verification
		FROM reaction_roles WHERE guild_id = ? AND message_id = ?`, guildID, messageID)
	return scanBinding(row)
}

func scanBinding(row *sql.Row) (RoleBinding, error) {
	var binding RoleBinding
	var verification int
	err := row.Scan(&binding.GuildID, &binding.Category, &binding.ChannelID,
		&binding.MessageID, &binding.Description, &verification)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RoleBinding{}, nil
		}
		return RoleBinding{}, err
	}
	binding.Verification = verification == 1
	return binding, nil
}

func (s *Store) ListRolePairs(ctx context.Context, guildID, category string) ([]RolePair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emoji, role_name, position
		FROM reaction_role_pairs WHERE guild_id = ? AND category = ? ORDER BY position
	`, guildID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []RolePair
	for rows.Next() {
		var pair RolePair
		if err := rows.Scan(&pair.Emoji, &pair.RoleName, &pair.Position); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (s *Store) DeleteRoleBinding(ctx context.Context, guildID, category string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM reaction_role_pairs WHERE guild_id = ? AND category = ?`, guildID, category)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM reaction_roles WHERE guild_id = ? AND category = ?`, guildID, category)
	if err != nil {
		return err
	}
	return tx.Commit()
}
