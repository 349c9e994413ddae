package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string           `yaml:"discord_token"`
	OwnerID      string           `yaml:"owner_id"`
	DatabasePath string           `yaml:"database_path"`
	LogLevel     string           `yaml:"log_level"`
	Health       HealthConfig     `yaml:"health"`
	Moderation   ModerationConfig `yaml:"moderation"`
	Leveling     LevelingConfig   `yaml:"leveling"`
	Giveaway     GiveawayConfig   `yaml:"giveaway"`
	Tickets      TicketConfig     `yaml:"tickets"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ModerationConfig struct {
	BannedWords         []string `yaml:"banned_words"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	StrikeLimit         int      `yaml:"strike_limit"`
	RestrictHours       int      `yaml:"restrict_hours"`
	RestrictRoleID      string   `yaml:"restrict_role_id"`
}

type LevelingConfig struct {
	Levels []LevelTier `yaml:"levels"`
}

type LevelTier struct {
	Name      string `yaml:"name"`
	Threshold int    `yaml:"threshold"`
}

type GiveawayConfig struct {
	EntryEmoji string `yaml:"entry_emoji"`
}

type TicketConfig struct {
	PingCooldownMinutes int `yaml:"ping_cooldown_minutes"`
	CloseDelaySeconds   int `yaml:"close_delay_seconds"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "/data/guildkeeper.db",
		LogLevel:     "info",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Moderation: ModerationConfig{
			BannedWords:         []string{"raciste", "racisme", "homophobe", "xenophobe", "antisemite"},
			SimilarityThreshold: 0.8,
			StrikeLimit:         3,
			RestrictHours:       24,
			RestrictRoleID:      "",
		},
		Leveling: LevelingConfig{
			Levels: []LevelTier{
				{Name: "Newcomer", Threshold: 0},
				{Name: "Regular", Threshold: 50},
				{Name: "Active", Threshold: 200},
				{Name: "Veteran", Threshold: 500},
				{Name: "Elder", Threshold: 1000},
			},
		},
		Giveaway: GiveawayConfig{EntryEmoji: "\U0001F389"},
		Tickets:  TicketConfig{PingCooldownMinutes: 15, CloseDelaySeconds: 5},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.Moderation.SimilarityThreshold <= 0 || cfg.Moderation.SimilarityThreshold > 1 {
		cfg.Moderation.SimilarityThreshold = 0.8
	}
	if cfg.Moderation.StrikeLimit <= 0 {
		cfg.Moderation.StrikeLimit = 3
	}
	if len(cfg.Leveling.Levels) == 0 {
		cfg.Leveling.Levels = DefaultConfig().Leveling.Levels
	}
	if cfg.Giveaway.EntryEmoji == "" {
		cfg.Giveaway.EntryEmoji = DefaultConfig().Giveaway.EntryEmoji
	}
	if cfg.Tickets.PingCooldownMinutes <= 0 {
		cfg.Tickets.PingCooldownMinutes = 15
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.OwnerID = envString("OWNER_ID", cfg.OwnerID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Moderation.StrikeLimit = envInt("STRIKE_LIMIT", cfg.Moderation.StrikeLimit)
	cfg.Moderation.RestrictHours = envInt("RESTRICT_HOURS", cfg.Moderation.RestrictHours)
	cfg.Moderation.RestrictRoleID = envString("RESTRICT_ROLE_ID", cfg.Moderation.RestrictRoleID)
	cfg.Giveaway.EntryEmoji = envString("GIVEAWAY_ENTRY_EMOJI", cfg.Giveaway.EntryEmoji)
	cfg.Tickets.PingCooldownMinutes = envInt("TICKET_PING_COOLDOWN_MINUTES", cfg.Tickets.PingCooldownMinutes)
	cfg.Tickets.CloseDelaySeconds = envInt("TICKET_CLOSE_DELAY_SECONDS", cfg.Tickets.CloseDelaySeconds)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
