package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// GuildSettings holds the per-guild channel and role bindings mutated by the
// /config command. Empty string means "not configured".
type GuildSettings struct {
	GuildID           string
	ModlogChannel     string
	JoinlogChannel    string
	WelcomeChannel    string
	LevelupChannel    string
	TicketCategory    string
	TranscriptChannel string
	SupportRole       string
	VerifyRole        string
}

type TicketType struct {
	GuildID     string
	Slug        string
	Label       string
	Description string
	Position    int
}

type ModAction struct {
	ID        int64
	GuildID   string
	UserID    string
	Action    string
	Details   string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (GuildSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT modlog_channel, joinlog_channel, welcome_channel, levelup_channel,
		ticket_category, transcript_channel, support_role, verify_role
		FROM guild_settings WHERE guild_id = ?`, guildID)

	result := GuildSettings{GuildID: guildID}
	err := row.Scan(
		&result.ModlogChannel,
		&result.JoinlogChannel,
		&result.WelcomeChannel,
		&result.LevelupChannel,
		&result.TicketCategory,
		&result.TranscriptChannel,
		&result.SupportRole,
		&result.VerifyRole,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return GuildSettings{}, err
	}
	return result, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (
			guild_id, modlog_channel, joinlog_channel, welcome_channel, levelup_channel,
			ticket_category, transcript_channel, support_role, verify_role
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			modlog_channel = excluded.modlog_channel,
			joinlog_channel = excluded.joinlog_channel,
			welcome_channel = excluded.welcome_channel,
			levelup_channel = excluded.levelup_channel,
			ticket_category = excluded.ticket_category,
			transcript_channel = excluded.transcript_channel,
			support_role = excluded.support_role,
			verify_role = excluded.verify_role
	`,
		settings.GuildID,
		settings.ModlogChannel,
		settings.JoinlogChannel,
		settings.WelcomeChannel,
		settings.LevelupChannel,
		settings.TicketCategory,
		settings.TranscriptChannel,
		settings.SupportRole,
		settings.VerifyRole,
	)
	return err
}

func (s *Store) PutTicketType(ctx context.Context, tt TicketType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_types (guild_id, slug, label, description, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, slug) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			position = excluded.position
	`, tt.GuildID, tt.Slug, tt.Label, tt.Description, tt.Position)
	return err
}

func (s *Store) DeleteTicketType(ctx context.Context, guildID, slug string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ticket_types WHERE guild_id = ? AND slug = ?`, guildID, slug)
	return err
}

func (s *Store) ListTicketTypes(ctx context.Context, guildID string) ([]TicketType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, slug, label, description, position
		FROM ticket_types WHERE guild_id = ? ORDER BY position, slug`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []TicketType
	for rows.Next() {
		var tt TicketType
		if err := rows.Scan(&tt.GuildID, &tt.Slug, &tt.Label, &tt.Description, &tt.Position); err != nil {
			return nil, err
		}
		types = append(types, tt)
	}
	return types, rows.Err()
}

func (s *Store) GetTicketType(ctx context.Context, guildID, slug string) (TicketType, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, slug, label, description, position
		FROM ticket_types WHERE guild_id = ? AND slug = ?`, guildID, slug)

	var tt TicketType
	err := row.Scan(&tt.GuildID, &tt.Slug, &tt.Label, &tt.Description, &tt.Position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TicketType{}, nil
		}
		return TicketType{}, err
	}
	return tt, nil
}

func (s *Store) AddModAction(ctx context.Context, action ModAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mod_actions (guild_id, user_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, action.GuildID, action.UserID, action.Action, action.Details, action.CreatedAt.Unix())
	return err
}

func (s *Store) ListModActions(ctx context.Context, guildID string, since time.Time) ([]ModAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, action, details, created_at
		FROM mod_actions
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []ModAction
	for rows.Next() {
		var action ModAction
		var created int64
		if err := rows.Scan(&action.ID, &action.GuildID, &action.UserID, &action.Action, &action.Details, &created); err != nil {
			return nil, err
		}
		action.CreatedAt = time.Unix(created, 0)
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
