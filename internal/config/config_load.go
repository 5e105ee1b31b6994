package config

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{Settings: Settings{
		Discord: DiscordConfig{TokenType: "bot"},
		Queue:   QueueConfig{DelayMs: 1500},
		Router:  RouterConfig{RemoteRateLimit: 30},
		Rotation: RotationConfig{
			IntervalMinutes: 10,
		},
		Policies: PoliciesConfig{
			BanLimit:         10,
			VoteBanThreshold: 0.5,
			VoteTTLMinutes:   5,
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			Path:         "~/.vcwarden/state.db",
			FlushDelayMs: 1000,
		},
		Telemetry: TelemetryConfig{ServiceName: "vcwarden"},
	}}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides lists every VCWARDEN_* variable. Unset fields leave the file
// value untouched.
type envOverrides struct {
	DiscordToken      string   `env:"VCWARDEN_DISCORD_TOKEN"`
	TokenType         string   `env:"VCWARDEN_DISCORD_TOKEN_TYPE"`
	GuildID           string   `env:"VCWARDEN_GUILD_ID"`
	ModerationBotID   string   `env:"VCWARDEN_MODERATION_BOT_ID"`
	ManagedCategoryID string   `env:"VCWARDEN_MANAGED_CATEGORY_ID"`
	CreationChannelID string   `env:"VCWARDEN_CREATION_CHANNEL_ID"`
	Prefix            string   `env:"VCWARDEN_PREFIX"`
	RemoteOperators   []string `env:"VCWARDEN_REMOTE_OPERATORS" envSeparator:","`
	QueueEnabled      *bool    `env:"VCWARDEN_QUEUE_ENABLED"`
	QueueDelayMs      *int     `env:"VCWARDEN_QUEUE_DELAY_MS"`

	StoreDriver string `env:"VCWARDEN_STORE_DRIVER"`
	StorePath   string `env:"VCWARDEN_STORE_PATH"`
	PostgresDSN string `env:"VCWARDEN_POSTGRES_DSN"`

	HTTPListen string `env:"VCWARDEN_HTTP_LISTEN"`
	HTTPToken  string `env:"VCWARDEN_HTTP_TOKEN"`
	Debug      *bool  `env:"VCWARDEN_DEBUG"`

	TelemetryEnabled     *bool  `env:"VCWARDEN_TELEMETRY_ENABLED"`
	TelemetryEndpoint    string `env:"VCWARDEN_TELEMETRY_ENDPOINT"`
	TelemetryProtocol    string `env:"VCWARDEN_TELEMETRY_PROTOCOL"`
	TelemetryInsecure    *bool  `env:"VCWARDEN_TELEMETRY_INSECURE"`
	TelemetryServiceName string `env:"VCWARDEN_TELEMETRY_SERVICE_NAME"`
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	str := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	s := &c.Settings
	str(o.DiscordToken, &s.Discord.Token)
	str(o.TokenType, &s.Discord.TokenType)
	str(o.GuildID, &s.Discord.GuildID)
	str(o.ModerationBotID, &s.Discord.ModerationBotID)
	str(o.ManagedCategoryID, &s.Discord.ManagedCategoryID)
	str(o.CreationChannelID, &s.Discord.CreationChannelID)
	str(o.Prefix, &s.Router.Prefix)
	if len(o.RemoteOperators) > 0 {
		s.Router.RemoteOperators = FlexibleStringSlice(o.RemoteOperators)
	}
	if o.QueueEnabled != nil {
		s.Queue.Enabled = o.QueueEnabled
	}
	if o.QueueDelayMs != nil && *o.QueueDelayMs >= 0 {
		s.Queue.DelayMs = *o.QueueDelayMs
	}

	str(o.StoreDriver, &s.Store.Driver)
	str(o.StorePath, &s.Store.Path)
	str(o.PostgresDSN, &s.Store.PostgresDSN)
	str(o.HTTPListen, &s.HTTP.Listen)
	str(o.HTTPToken, &s.HTTP.Token)
	if o.Debug != nil {
		s.Debug = *o.Debug
	}

	if o.TelemetryEnabled != nil {
		s.Telemetry.Enabled = *o.TelemetryEnabled
	}
	if o.TelemetryInsecure != nil {
		s.Telemetry.Insecure = *o.TelemetryInsecure
	}
	str(o.TelemetryEndpoint, &s.Telemetry.Endpoint)
	str(o.TelemetryProtocol, &s.Telemetry.Protocol)
	str(o.TelemetryServiceName, &s.Telemetry.ServiceName)
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	s := c.Current()
	var errs []error
	if s.Queue.DelayMs < 0 {
		errs = append(errs, errors.New("queue.delay_ms must be >= 0"))
	}
	if s.Rotation.Schedule != "" && !gronx.New().IsValid(s.Rotation.Schedule) {
		errs = append(errs, fmt.Errorf("rotation.schedule: invalid cron expression %q", s.Rotation.Schedule))
	}
	if t := s.Policies.VoteBanThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("policies.vote_ban_threshold must be in (0, 1], got %v", t))
	}
	if s.Policies.BanLimit < 0 {
		errs = append(errs, errors.New("policies.ban_limit must be >= 0"))
	}
	switch s.Store.Driver {
	case "sqlite", "":
	case "postgres":
		if s.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.driver=postgres requires VCWARDEN_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", s.Store.Driver))
	}
	switch s.Discord.TokenType {
	case "", "bot", "user":
	default:
		errs = append(errs, fmt.Errorf("discord.token_type: expected bot or user, got %q", s.Discord.TokenType))
	}
	return errors.Join(errs...)
}

// Save writes the config to a JSON file. Secrets are stripped first so they
// never persist in config.json.
func Save(path string, cfg *Config) error {
	snapshot := &Config{Settings: cfg.Current()}
	snapshot.StripSecrets()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	s := c.Current()
	data, _ := json.Marshal(s)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// StorePath returns the expanded sqlite path.
func (c *Config) StorePath() string {
	return ExpandHome(c.Current().Store.Path)
}

const secretMask = "***"

// MaskedCopy returns a copy of the settings with secret fields masked.
// Used by the HTTP state endpoint and the doctor command.
func (c *Config) MaskedCopy() Settings {
	s := c.Current()
	maskNonEmpty(&s.Discord.Token)
	maskNonEmpty(&s.Store.PostgresDSN)
	maskNonEmpty(&s.HTTP.Token)
	if len(s.Telemetry.Headers) > 0 {
		h := make(map[string]string, len(s.Telemetry.Headers))
		for k := range s.Telemetry.Headers {
			h[k] = secretMask
		}
		s.Telemetry.Headers = h
	}
	return s
}

// StripSecrets zeros out all secret fields in the config.
func (c *Config) StripSecrets() {
	c.Update(func(s *Settings) {
		s.Discord.Token = ""
		s.Store.PostgresDSN = ""
		s.HTTP.Token = ""
	})
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
