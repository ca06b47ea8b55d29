// Package config loads the pulsebot configuration.
//
// Settings are read once at startup and the resulting struct is passed by
// injection to every component; there is no cached package-level instance.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting for the daemon.
type Config struct {
	Tracker  TrackerConfig  `yaml:"tracker"`
	Chat     ChatConfig     `yaml:"chat"`
	AI       AIConfig       `yaml:"ai"`
	Schedule ScheduleConfig `yaml:"schedule"`

	Timezone     string `yaml:"timezone"`
	DatabasePath string `yaml:"database_path"`
	ListenAddr   string `yaml:"listen_addr"`

	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

// TrackerConfig configures the issue-tracker client.
type TrackerConfig struct {
	SpaceKey   string   `yaml:"space_key"`
	APIKey     string   `yaml:"api_key"`
	ProjectIDs []string `yaml:"project_ids"`
}

// ChatConfig configures the chat-platform client.
type ChatConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChannelID   string `yaml:"channel_id"`
	AdminUserID string `yaml:"admin_user_id"`
}

// AIConfig selects and configures the free-text responder.
type AIConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// ScheduleConfig holds the cron expressions for the five standing jobs.
// Defaults match the reference schedule: sync prompt/reminder/summary on
// weekday mornings, daily report mid-morning, weekly report Monday.
type ScheduleConfig struct {
	SyncPrompt   string `yaml:"sync_prompt"`
	SyncReminder string `yaml:"sync_reminder"`
	SyncSummary  string `yaml:"sync_summary"`
	DailyReport  string `yaml:"daily_report"`
	WeeklyReport string `yaml:"weekly_report"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() Config {
	return Config{
		AI: AIConfig{
			Provider: "openai",
		},
		Schedule: ScheduleConfig{
			SyncPrompt:   "0 9 * * 1-5",
			SyncReminder: "15 9 * * 1-5",
			SyncSummary:  "30 9 * * 1-5",
			DailyReport:  "0 10 * * *",
			WeeklyReport: "0 11 * * 1",
		},
		Timezone:        "Asia/Tokyo",
		DatabasePath:    "pulsebot.db",
		ListenAddr:      "127.0.0.1:7467",
		CacheTTLMinutes: 30,
	}
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets and connection settings from the environment so
// they can stay out of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PULSEBOT_TRACKER_SPACE_KEY"); v != "" {
		cfg.Tracker.SpaceKey = v
	}
	if v := os.Getenv("PULSEBOT_TRACKER_API_KEY"); v != "" {
		cfg.Tracker.APIKey = v
	}
	if v := os.Getenv("PULSEBOT_TRACKER_PROJECT_IDS"); v != "" {
		ids := strings.Split(v, ",")
		cfg.Tracker.ProjectIDs = cfg.Tracker.ProjectIDs[:0]
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Tracker.ProjectIDs = append(cfg.Tracker.ProjectIDs, id)
			}
		}
	}
	if v := os.Getenv("PULSEBOT_CHAT_BOT_TOKEN"); v != "" {
		cfg.Chat.BotToken = v
	}
	if v := os.Getenv("PULSEBOT_CHAT_CHANNEL_ID"); v != "" {
		cfg.Chat.ChannelID = v
	}
	if v := os.Getenv("PULSEBOT_CHAT_ADMIN_USER_ID"); v != "" {
		cfg.Chat.AdminUserID = v
	}
	if v := os.Getenv("PULSEBOT_AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("PULSEBOT_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("PULSEBOT_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("PULSEBOT_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PULSEBOT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PULSEBOT_CACHE_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLMinutes = n
		}
	}
}

// Validate checks the settings required for the daemon to run.
func (c *Config) Validate() error {
	var missing []string
	if c.Tracker.SpaceKey == "" {
		missing = append(missing, "tracker.space_key")
	}
	if c.Tracker.APIKey == "" {
		missing = append(missing, "tracker.api_key")
	}
	if len(c.Tracker.ProjectIDs) == 0 {
		missing = append(missing, "tracker.project_ids")
	}
	if c.Chat.BotToken == "" {
		missing = append(missing, "chat.bot_token")
	}
	if c.Chat.ChannelID == "" {
		missing = append(missing, "chat.channel_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.AI.Provider != "" && c.AI.Provider != "openai" && c.AI.Provider != "anthropic" {
		return fmt.Errorf("config: ai.provider must be \"openai\" or \"anthropic\", got %q", c.AI.Provider)
	}
	if c.CacheTTLMinutes <= 0 {
		return fmt.Errorf("config: cache_ttl_minutes must be positive, got %d", c.CacheTTLMinutes)
	}
	return nil
}

// CacheTTL returns the task-cache time-to-live as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
